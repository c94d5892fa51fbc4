package oplog

import (
	"encoding/json"
	"math"
	"path"
	"strings"

	"catalog-bulk-api/internal/util"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type LogService struct {
	DB *gorm.DB
}

// Create opens a new operation log in the in_progress state. criteria (export
// filters) may be nil; anything JSON-marshalable is stored as-is.
func (ls *LogService) Create(direction, entity, filename string, userID uint, criteria interface{}) (*OperationLog, error) {
	logRow := OperationLog{
		Filename:  filename,
		Direction: direction,
		Entity:    entity,
		Status:    StatusInProgress,
		UserID:    userID,
	}

	if criteria != nil {
		if b, err := json.Marshal(criteria); err == nil {
			logRow.Criteria = datatypes.JSON(b)
		}
	}

	if err := ls.DB.Create(&logRow).Error; err != nil {
		return nil, err
	}
	return &logRow, nil
}

// SetTotal records the provisional row estimate before per-row processing so
// partial progress stays observable even when the batch later fails outright.
func (ls *LogService) SetTotal(logID uint, total int) error {
	return ls.DB.Model(&OperationLog{}).
		Where("id = ?", logID).
		Update("total_records", total).Error
}

// SetArtifact points the log at its downloadable artifact. The stored filename
// follows the artifact so listings show what a download will return.
func (ls *LogService) SetArtifact(logID uint, artifactPath string) error {
	return ls.DB.Model(&OperationLog{}).
		Where("id = ?", logID).
		Updates(map[string]interface{}{
			"artifact_path": artifactPath,
			"filename":      path.Base(artifactPath),
		}).Error
}

// Finalize is the single closing update for a log: final count and status.
// Repeating it with the same values leaves the row unchanged.
func (ls *LogService) Finalize(logID uint, total int, status int) error {
	return ls.DB.Model(&OperationLog{}).
		Where("id = ?", logID).
		Updates(map[string]interface{}{
			"total_records": total,
			"status":        status,
		}).Error
}

// AddDetail appends one immutable failure record. rawRow may be nil.
func (ls *LogService) AddDetail(logID uint, rowNumber int, message string, rawRow map[string]string) error {
	det := OperationLogDetail{
		LogID:     logID,
		RowNumber: rowNumber,
		Message:   message,
	}
	if rawRow != nil {
		if b, err := json.Marshal(rawRow); err == nil {
			det.RawRow = datatypes.JSON(b)
		}
	}
	return ls.DB.Create(&det).Error
}

// GetLogs lists operation logs with the owning user's name, most recently
// updated first. Only present, non-empty filters constrain the query.
func (ls *LogService) GetLogs(input LogFilterInput) ([]LogRow, int64, int, error) {
	if input.Page <= 0 {
		input.Page = 1
	}
	if input.PageSize <= 0 || input.PageSize > 100 {
		input.PageSize = 20
	}

	base := ls.DB.
		Table("operation_logs").
		Select("operation_logs.*, u.firstname as firstname, u.lastname as lastname").
		Joins("LEFT JOIN users u ON operation_logs.user_id = u.id")

	if input.Direction != nil && strings.TrimSpace(*input.Direction) != "" {
		base = base.Where("operation_logs.direction = ?", strings.TrimSpace(*input.Direction))
	}
	if input.Entity != nil && strings.TrimSpace(*input.Entity) != "" {
		base = base.Where("operation_logs.entity = ?", strings.TrimSpace(*input.Entity))
	}
	if input.Status != nil {
		base = base.Where("operation_logs.status = ?", *input.Status)
	}
	if input.UserID != nil {
		base = base.Where("operation_logs.user_id = ?", *input.UserID)
	}
	if input.Filename != nil && strings.TrimSpace(*input.Filename) != "" {
		base = base.Where("operation_logs.filename ILIKE ?", "%"+strings.TrimSpace(*input.Filename)+"%")
	}

	start, hasStart, endExclusive, hasEnd, err := util.ParseDateRange(input.StartDate, input.EndDate)
	if err != nil {
		return nil, 0, 0, err
	}
	if hasStart {
		base = base.Where("operation_logs.created_at >= ?", start)
	}
	if hasEnd {
		base = base.Where("operation_logs.created_at < ?", endExclusive)
	}

	if input.Search != nil && strings.TrimSpace(*input.Search) != "" {
		like := "%" + strings.TrimSpace(*input.Search) + "%"
		base = base.Where(
			`CAST(operation_logs.id AS TEXT) ILIKE ?
			 OR operation_logs.filename ILIKE ?
			 OR operation_logs.entity ILIKE ?
			 OR operation_logs.direction ILIKE ?
			 OR COALESCE(u.firstname,'') ILIKE ?
			 OR COALESCE(u.lastname,'') ILIKE ?`,
			like, like, like, like, like, like,
		)
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, 0, err
	}

	totalPages := int(math.Ceil(float64(total) / float64(input.PageSize)))
	if totalPages == 0 {
		totalPages = 1
	}

	var rows []LogRow
	if err := base.
		Session(&gorm.Session{}).
		Order("operation_logs.updated_at DESC").
		Limit(input.PageSize).
		Offset((input.Page - 1) * input.PageSize).
		Scan(&rows).Error; err != nil {
		return nil, 0, 0, err
	}

	return rows, total, totalPages, nil
}

// GetLog fetches one log with its details in file order.
func (ls *LogService) GetLog(id uint) (*OperationLog, error) {
	var logRow OperationLog
	if err := ls.DB.First(&logRow, id).Error; err != nil {
		return nil, err
	}

	if err := ls.DB.
		Where("log_id = ?", id).
		Order("row_number ASC, id ASC").
		Find(&logRow.Details).Error; err != nil {
		return nil, err
	}

	return &logRow, nil
}
