package bulk

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"catalog-bulk-api/internal/oplog"
	"catalog-bulk-api/internal/product"
	"catalog-bulk-api/internal/storage"
	"catalog-bulk-api/internal/user"
	"catalog-bulk-api/internal/util"

	"github.com/iancoleman/orderedmap"
	"github.com/lib/pq"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// ProductFilter narrows a product export. Nil fields match everything;
// Status "all" is the controller's explicit wildcard.
type ProductFilter struct {
	Status    *string  `json:"status"`
	PriceFrom *float64 `json:"price_from"`
	PriceTo   *float64 `json:"price_to"`
	Tags      []string `json:"tags"`
	SortField string   `json:"sort_field"`
	SortDir   string   `json:"sort_dir"`
}

type UserFilter struct {
	IsActive  *bool   `json:"is_active"`
	GroupRole *string `json:"group_role"`
	StartDate *string `json:"start_date"`
	EndDate   *string `json:"end_date"`
	SortField string  `json:"sort_field"`
	SortDir   string  `json:"sort_dir"`
}

type ExportRequest struct {
	Entity  string         `json:"entity"`
	Format  string         `json:"format"`
	Product *ProductFilter `json:"product,omitempty"`
	User    *UserFilter    `json:"user,omitempty"`
	UserID  uint           `json:"-"`
}

type Exporter struct {
	DB     *gorm.DB
	Logs   *oplog.LogService
	Store  storage.BlobStore
	Notify Notifier

	// Now is swappable in tests; nil means time.Now.
	Now func() time.Time
}

// Column header labels shared by both output formats.
var (
	productHeaders = []string{"code", "name", "category", "price", "stock", "status", "tags", "url"}
	userHeaders    = []string{"firstname", "lastname", "email", "role", "active", "joined"}
)

var productSortFields = map[string]string{
	"code":       "code",
	"name":       "name",
	"category":   "category",
	"price":      "price",
	"stock":      "stock",
	"status":     "status",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

var userSortFields = map[string]string{
	"firstname":  "firstname",
	"lastname":   "lastname",
	"email":      "email",
	"group_role": "group_role",
	"joined_at":  "joined_at",
	"created_at": "created_at",
}

// Criteria renders the request's filter as JSON with a stable key order so
// identical requests always produce identical criteria documents.
func (req ExportRequest) Criteria() *orderedmap.OrderedMap {
	om := orderedmap.New()
	om.Set("entity", req.Entity)
	om.Set("format", req.Format)

	switch req.Entity {
	case EntityProducts:
		if f := req.Product; f != nil {
			if f.Status != nil {
				om.Set("status", *f.Status)
			}
			if f.PriceFrom != nil {
				om.Set("price_from", *f.PriceFrom)
			}
			if f.PriceTo != nil {
				om.Set("price_to", *f.PriceTo)
			}
			if len(f.Tags) > 0 {
				om.Set("tags", f.Tags)
			}
			if f.SortField != "" {
				om.Set("sort_field", f.SortField)
				om.Set("sort_dir", f.SortDir)
			}
		}
	case EntityUsers:
		if f := req.User; f != nil {
			if f.IsActive != nil {
				om.Set("is_active", *f.IsActive)
			}
			if f.GroupRole != nil {
				om.Set("group_role", *f.GroupRole)
			}
			if f.StartDate != nil {
				om.Set("start_date", *f.StartDate)
			}
			if f.EndDate != nil {
				om.Set("end_date", *f.EndDate)
			}
			if f.SortField != "" {
				om.Set("sort_field", f.SortField)
				om.Set("sort_dir", f.SortDir)
			}
		}
	}
	return om
}

// Process runs one export batch against an already-created operation log.
func (ex *Exporter) Process(ctx context.Context, logRow *oplog.OperationLog, req ExportRequest) error {
	var headers []string
	var rows [][]string
	var err error

	switch req.Entity {
	case EntityProducts:
		headers, rows, err = ex.collectProducts(req.Product)
	case EntityUsers:
		headers, rows, err = ex.collectUsers(req.User)
	default:
		err = fmt.Errorf("unknown entity kind: %s", req.Entity)
	}
	if err != nil {
		return ex.fail(logRow, err)
	}

	if len(rows) == 0 {
		_ = ex.Logs.AddDetail(logRow.ID, 0, "No data to export", nil)
		_ = ex.Logs.Finalize(logRow.ID, 0, oplog.StatusError)
		ex.publish(req.Entity, false)
		return nil
	}

	var payload []byte
	switch req.Format {
	case FormatXLSX:
		payload, err = buildXLSX(req.Entity, headers, rows)
	default:
		payload, err = buildCSV(headers, rows)
	}
	if err != nil {
		return ex.fail(logRow, err)
	}

	now := time.Now
	if ex.Now != nil {
		now = ex.Now
	}
	ext := FormatCSV
	if req.Format == FormatXLSX {
		ext = FormatXLSX
	}
	objectName := fmt.Sprintf("exports/%s_%s.%s", req.Entity, now().Format("20060102150405"), ext)

	if _, err := ex.Store.Save(ctx, objectName, contentTypeFor(objectName), payload); err != nil {
		// drop a possibly half-written object before reporting the failure
		_ = ex.Store.Delete(ctx, objectName)
		return ex.fail(logRow, fmt.Errorf("failed to store export: %w", err))
	}

	_ = ex.Logs.SetArtifact(logRow.ID, objectName)
	_ = ex.Logs.Finalize(logRow.ID, len(rows), oplog.StatusSuccess)
	ex.publish(req.Entity, true)
	return nil
}

func (ex *Exporter) collectProducts(f *ProductFilter) ([]string, [][]string, error) {
	q := ex.DB.Model(&product.Product{})

	sortField, sortDir := "code", "asc"
	if f != nil {
		if f.Status != nil && *f.Status != "all" {
			q = q.Where("status = ?", product.StatusCode(*f.Status))
		}
		if f.PriceFrom != nil {
			q = q.Where("price >= ?", *f.PriceFrom)
		}
		if f.PriceTo != nil {
			q = q.Where("price <= ?", *f.PriceTo)
		}
		if len(f.Tags) > 0 {
			q = q.Where("tags && ?", pq.Array(f.Tags))
		}
		if col, ok := productSortFields[f.SortField]; ok {
			sortField = col
			if strings.EqualFold(f.SortDir, "desc") {
				sortDir = "desc"
			}
		}
	}

	var items []product.Product
	if err := q.Order(fmt.Sprintf("%s %s, code asc", sortField, sortDir)).Find(&items).Error; err != nil {
		return nil, nil, err
	}

	rows := make([][]string, 0, len(items))
	for _, p := range items {
		rows = append(rows, []string{
			p.Code,
			p.Name,
			p.Category,
			strconv.FormatFloat(p.Price, 'f', -1, 64),
			strconv.Itoa(p.Stock),
			product.StatusLabel(p.Status),
			strings.Join(p.Tags, ";"),
			p.URL,
		})
	}
	return productHeaders, rows, nil
}

func (ex *Exporter) collectUsers(f *UserFilter) ([]string, [][]string, error) {
	q := ex.DB.Model(&user.User{}).Where("is_delete = ?", false)

	sortField, sortDir := "id", "asc"
	if f != nil {
		if f.IsActive != nil {
			q = q.Where("is_active = ?", *f.IsActive)
		}
		if f.GroupRole != nil {
			q = q.Where("group_role = ?", *f.GroupRole)
		}
		start, hasStart, end, hasEnd, err := util.ParseDateRange(f.StartDate, f.EndDate)
		if err != nil {
			return nil, nil, err
		}
		if hasStart {
			q = q.Where("joined_at >= ?", start)
		}
		if hasEnd {
			q = q.Where("joined_at < ?", end)
		}
		if col, ok := userSortFields[f.SortField]; ok {
			sortField = col
			if strings.EqualFold(f.SortDir, "desc") {
				sortDir = "desc"
			}
		}
	}

	var items []user.User
	if err := q.Order(fmt.Sprintf("%s %s, id asc", sortField, sortDir)).Find(&items).Error; err != nil {
		return nil, nil, err
	}

	rows := make([][]string, 0, len(items))
	for _, u := range items {
		joined := ""
		if u.JoinedAt != nil {
			joined = u.JoinedAt.Format("2006-01-02")
		}
		rows = append(rows, []string{
			u.FirstName,
			u.LastName,
			u.Email,
			u.GroupRole,
			strconv.FormatBool(u.IsActive),
			joined,
		})
	}
	return userHeaders, rows, nil
}

func (ex *Exporter) fail(logRow *oplog.OperationLog, err error) error {
	_ = ex.Logs.AddDetail(logRow.ID, 0, err.Error(), nil)
	_ = ex.Logs.Finalize(logRow.ID, 0, oplog.StatusError)
	ex.publish(logRow.Entity, false)
	return err
}

func (ex *Exporter) publish(entity string, ok bool) {
	if ex.Notify == nil {
		return
	}
	status := "success"
	verb := "finished"
	if !ok {
		status = "failed"
		verb = "failed"
	}
	ex.Notify.Publish(Event{
		Message: fmt.Sprintf("export of %s %s", entity, verb),
		Status:  status,
	})
}

// buildCSV renders rows as UTF-8 CSV with a BOM and CRLF line endings so the
// file opens cleanly in Excel.
func buildCSV(headers []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(utf8BOM)

	w := csv.NewWriter(&buf)
	w.UseCRLF = true
	if err := w.Write(headers); err != nil {
		return nil, err
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func buildXLSX(sheetName string, headers []string, rows [][]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := safeSheetName(sheetName)
	f.SetSheetName("Sheet1", sheet)

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return nil, err
	}

	styleID, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E2E8F0"}, Pattern: 1},
	})
	if err != nil {
		return nil, err
	}

	headerCells := make([]interface{}, len(headers))
	for i, h := range headers {
		headerCells[i] = excelize.Cell{StyleID: styleID, Value: h}
	}
	if err := sw.SetRow("A1", headerCells); err != nil {
		return nil, err
	}

	for i, row := range rows {
		cells := make([]interface{}, len(row))
		for j, v := range row {
			cells[j] = v
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := sw.SetRow(cell, cells); err != nil {
			return nil, err
		}
	}

	if err := sw.Flush(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func safeSheetName(name string) string {
	if name == "" {
		return "Sheet1"
	}
	if len(name) > 31 {
		name = name[:31]
	}
	return name
}
