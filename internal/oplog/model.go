package oplog

import (
	"time"

	"gorm.io/datatypes"
)

// Operation outcome codes.
const (
	StatusError      = 0
	StatusSuccess    = 1
	StatusPartial    = 2
	StatusInProgress = 3
)

const (
	DirectionImport = "import"
	DirectionExport = "export"
)

// OperationLog records one import or export run. A row is created with
// StatusInProgress and closed exactly once by Finalize.
type OperationLog struct {
	ID           uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	Filename     string         `gorm:"size:512" json:"filename"`
	Direction    string         `gorm:"size:10;not null;index" json:"direction"`
	Entity       string         `gorm:"size:50;not null;index" json:"entity"`
	Criteria     datatypes.JSON `gorm:"type:jsonb" json:"criteria,omitempty"`
	TotalRecords int            `gorm:"not null;default:0" json:"total_records"`
	Status       int            `gorm:"not null;default:3" json:"status"`
	UserID       uint           `gorm:"not null;index" json:"user_id"`
	ArtifactPath string         `gorm:"size:512" json:"artifact_path,omitempty"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`

	Details []OperationLogDetail `gorm:"foreignKey:LogID;constraint:OnDelete:CASCADE" json:"details,omitempty"`
}

func (OperationLog) TableName() string {
	return "operation_logs"
}

// OperationLogDetail is one recorded failure. RowNumber is the 1-based
// position in the source file (header included); 0 marks a whole-batch
// failure. Details are insert-only.
type OperationLogDetail struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	LogID     uint           `gorm:"not null;index" json:"log_id"`
	RowNumber int            `gorm:"not null" json:"row_number"`
	Message   string         `gorm:"type:text;not null" json:"message"`
	RawRow    datatypes.JSON `gorm:"type:jsonb" json:"raw_row,omitempty"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func (OperationLogDetail) TableName() string {
	return "operation_log_details"
}

type LogFilterInput struct {
	Direction *string `json:"direction"`
	Entity    *string `json:"entity"`
	Status    *int    `json:"status"`
	UserID    *uint   `json:"user_id"`
	Filename  *string `json:"filename"`

	StartDate *string `json:"start_date"` // "YYYY-MM-DD"
	EndDate   *string `json:"end_date"`   // "YYYY-MM-DD"

	Search   *string `json:"search"`
	Page     int     `json:"page"`
	PageSize int     `json:"page_size"`
}

type LogRow struct {
	OperationLog
	Firstname string `json:"firstname" gorm:"column:firstname"`
	Lastname  string `json:"lastname" gorm:"column:lastname"`
}
