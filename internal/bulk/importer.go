package bulk

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"catalog-bulk-api/internal/oplog"
	"catalog-bulk-api/internal/product"
	"catalog-bulk-api/internal/storage"
	"catalog-bulk-api/internal/user"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

var priceMin = 0.0
var stockMin = 0.0

var productRules = []FieldRule{
	{Name: "name", Required: true, Type: TypeString, MaxLen: 255},
	{Name: "category", Type: TypeString, MaxLen: 100},
	{Name: "price", Required: true, Type: TypeNumeric, Min: &priceMin},
	{Name: "stock", Type: TypeInteger, Min: &stockMin},
	{Name: "status", Required: true, Type: TypeEnum, Enum: []string{"selling", "out of stock", "discontinued"}},
	{Name: "tags", Type: TypeString},
	{Name: "url", Type: TypeURL},
}

var userRules = []FieldRule{
	{Name: "firstname", Required: true, Type: TypeString, MaxLen: 100},
	{Name: "lastname", Required: true, Type: TypeString, MaxLen: 100},
	{Name: "email", Required: true, Type: TypeString, MaxLen: 100},
	{Name: "role", Type: TypeString, MaxLen: 100},
	{Name: "active", Type: TypeEnum, Enum: []string{"true", "false", "yes", "no", "1", "0"}},
	{Name: "joined", Type: TypeDate},
}

// ImportRequest describes one queued import batch. Data holds the raw
// spreadsheet bytes exactly as uploaded.
type ImportRequest struct {
	Entity   string
	Filename string
	Clean    bool
	UserID   uint
	Data     []byte
}

type Importer struct {
	DB     *gorm.DB
	Logs   *oplog.LogService
	Store  storage.BlobStore
	Notify Notifier
}

// rowFailure carries one rejected row out of the batch transaction so its
// detail record can be written on the log service's own connection and
// survive a rollback.
type rowFailure struct {
	Line     int
	Messages []string
	Raw      map[string]string
}

// Process runs one import batch against an already-created operation log.
// Batch-fatal errors are absorbed into the log and the completion event; the
// returned error exists only for the caller's own logging.
func (im *Importer) Process(ctx context.Context, logRow *oplog.OperationLog, req ImportRequest) error {
	// archive the original upload before touching the database
	archivePath := fmt.Sprintf("imports/%s_%s", time.Now().Format("20060102150405"), req.Filename)
	if _, err := im.Store.Save(ctx, archivePath, contentTypeFor(req.Filename), req.Data); err != nil {
		return im.fail(logRow, fmt.Errorf("failed to archive upload: %w", err))
	}

	headers, rows, err := ParseSheet(req.Filename, req.Data)
	if err != nil {
		return im.fail(logRow, err)
	}

	if len(rows) == 0 {
		_ = im.Logs.AddDetail(logRow.ID, 0, "file has no data rows", nil)
		_ = im.Logs.Finalize(logRow.ID, 0, oplog.StatusError)
		im.publish(req.Filename, false)
		return nil
	}

	// provisional estimate, overwritten by Finalize with the accepted count
	_ = im.Logs.SetTotal(logRow.ID, len(rows))

	var accepted, rejected int
	switch req.Entity {
	case EntityProducts:
		accepted, rejected, err = im.importProducts(logRow, headers, rows, req.Clean)
	case EntityUsers:
		accepted, rejected, err = im.importUsers(logRow, headers, rows, req.Clean)
	default:
		err = fmt.Errorf("unknown entity kind: %s", req.Entity)
	}
	if err != nil {
		return im.fail(logRow, err)
	}

	status := batchStatus(accepted, rejected)
	_ = im.Logs.Finalize(logRow.ID, accepted, status)
	im.publish(req.Filename, status != oplog.StatusError)
	return nil
}

// importProducts validates every row in file order, allocates codes for the
// accepted ones, and inserts them in a single statement inside one
// transaction. A constraint violation in that statement aborts the whole
// batch; per-row validation failures never do.
func (im *Importer) importProducts(logRow *oplog.OperationLog, headers []string, rows [][]string, clean bool) (int, int, error) {
	var accepted []product.Product
	var rejected []rowFailure

	err := im.DB.Transaction(func(tx *gorm.DB) error {
		if clean {
			if err := tx.Unscoped().Where("1 = 1").Delete(&product.Product{}).Error; err != nil {
				return err
			}
		}

		alloc := product.NewCodeAllocator(tx)

		for i, row := range rows {
			line := i + 2 // 1-based position in the file, header is line 1
			rec := NormalizeRow(rowToMap(headers, row))

			if v := ValidateRow(rec, productRules); len(v) > 0 {
				rejected = append(rejected, rowFailure{Line: line, Messages: flattenViolations(v), Raw: rec})
				continue
			}

			code, err := alloc.Next(rec["name"])
			if err != nil {
				return err
			}

			price, _ := strconv.ParseFloat(strings.TrimSpace(rec["price"]), 64)
			stock, _ := strconv.Atoi(strings.TrimSpace(rec["stock"]))

			accepted = append(accepted, product.Product{
				Code:     code,
				Name:     strings.TrimSpace(rec["name"]),
				Category: strings.TrimSpace(rec["category"]),
				Price:    price,
				Stock:    stock,
				Status:   product.StatusCode(rec["status"]),
				Tags:     splitTags(rec["tags"]),
				URL:      strings.TrimSpace(rec["url"]),
			})
		}

		if len(accepted) == 0 {
			return nil
		}
		return tx.Create(&accepted).Error
	})

	// details go through the log service's own connection so they survive a
	// rollback of the batch transaction
	for _, rf := range rejected {
		_ = im.Logs.AddDetail(logRow.ID, rf.Line, strings.Join(rf.Messages, "; "), rf.Raw)
	}

	if err != nil {
		return 0, len(rejected), err
	}
	return len(accepted), len(rejected), nil
}

func (im *Importer) importUsers(logRow *oplog.OperationLog, headers []string, rows [][]string, clean bool) (int, int, error) {
	var accepted []user.User
	var rejected []rowFailure

	err := im.DB.Transaction(func(tx *gorm.DB) error {
		if clean {
			if err := tx.Where("1 = 1").Delete(&user.User{}).Error; err != nil {
				return err
			}
		}

		for i, row := range rows {
			line := i + 2
			rec := NormalizeRow(rowToMap(headers, row))

			if v := ValidateRow(rec, userRules); len(v) > 0 {
				rejected = append(rejected, rowFailure{Line: line, Messages: flattenViolations(v), Raw: rec})
				continue
			}

			u := user.User{
				FirstName: strings.TrimSpace(rec["firstname"]),
				LastName:  strings.TrimSpace(rec["lastname"]),
				Email:     strings.ToLower(strings.TrimSpace(rec["email"])),
				GroupRole: strings.TrimSpace(rec["role"]),
				IsActive:  parseActive(rec["active"]),
			}
			if joined := strings.TrimSpace(rec["joined"]); joined != "" {
				if t, err := time.Parse("2006-01-02", joined); err == nil {
					u.JoinedAt = &t
				}
			}

			accepted = append(accepted, u)
		}

		if len(accepted) == 0 {
			return nil
		}
		return tx.Create(&accepted).Error
	})

	for _, rf := range rejected {
		_ = im.Logs.AddDetail(logRow.ID, rf.Line, strings.Join(rf.Messages, "; "), rf.Raw)
	}

	if err != nil {
		return 0, len(rejected), err
	}
	return len(accepted), len(rejected), nil
}

func (im *Importer) fail(logRow *oplog.OperationLog, err error) error {
	_ = im.Logs.AddDetail(logRow.ID, 0, err.Error(), nil)
	_ = im.Logs.Finalize(logRow.ID, 0, oplog.StatusError)
	im.publish(logRow.Filename, false)
	return err
}

func (im *Importer) publish(filename string, ok bool) {
	if im.Notify == nil {
		return
	}
	status := "success"
	verb := "finished"
	if !ok {
		status = "failed"
		verb = "failed"
	}
	im.Notify.Publish(Event{
		Message: fmt.Sprintf("import of %s %s", filename, verb),
		Status:  status,
	})
}

func batchStatus(accepted, rejected int) int {
	switch {
	case accepted == 0:
		return oplog.StatusError
	case rejected == 0:
		return oplog.StatusSuccess
	default:
		return oplog.StatusPartial
	}
}

// splitTags turns a semicolon-separated cell into a text[] value.
func splitTags(raw string) pq.StringArray {
	parts := strings.Split(raw, ";")
	out := make(pq.StringArray, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func parseActive(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "false", "no", "0":
		return false
	default:
		return true
	}
}
