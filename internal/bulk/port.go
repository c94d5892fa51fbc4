package bulk

import "context"

// Entity kinds the import/export core understands.
const (
	EntityProducts = "products"
	EntityUsers    = "users"
)

// Event is the fire-and-forget completion notification emitted when a batch
// finishes. No acknowledgment, no retry.
type Event struct {
	Message string `json:"message"`
	Status  string `json:"status"` // "success" | "failed"
}

type Notifier interface {
	Publish(ev Event)
}

// Job is one unit of background work: a full import or export batch.
type Job func(ctx context.Context)

type JobQueue interface {
	// Enqueue returns false when the queue cannot take the job, in which case
	// the caller runs it inline.
	Enqueue(job Job) bool
}
