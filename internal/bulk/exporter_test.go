package bulk

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"catalog-bulk-api/internal/oplog"
	"catalog-bulk-api/internal/product"
	"catalog-bulk-api/internal/user"

	"github.com/xuri/excelize/v2"
)

func newExporter(t *testing.T) (*Exporter, *memStore, *recordingNotifier) {
	t.Helper()
	db := newTestDB(t)
	store := newMemStore()
	notify := &recordingNotifier{}
	return &Exporter{
		DB:     db,
		Logs:   &oplog.LogService{DB: db},
		Store:  store,
		Notify: notify,
		Now:    func() time.Time { return time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC) },
	}, store, notify
}

func seedProducts(t *testing.T, ex *Exporter) {
	t.Helper()
	rows := []product.Product{
		{Code: "W00000001", Name: "Widget", Category: "tools", Price: 19.99, Stock: 5, Status: product.StatusSelling},
		{Code: "G00000001", Name: "Gadget", Category: "tools", Price: 5, Stock: 0, Status: product.StatusOutOfStock},
		{Code: "G00000002", Name: "Gizmo", Category: "toys", Price: 50, Stock: 2, Status: product.StatusDiscontinued},
	}
	if err := ex.DB.Create(&rows).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestExportProductsCSV(t *testing.T) {
	ex, store, notify := newExporter(t)
	seedProducts(t, ex)

	logRow := newExportLog(t, ex.Logs, EntityProducts)
	req := ExportRequest{Entity: EntityProducts, Format: FormatCSV, UserID: 1}
	if err := ex.Process(context.Background(), logRow, req); err != nil {
		t.Fatalf("process: %v", err)
	}

	got, err := ex.Logs.GetLog(logRow.ID)
	if err != nil {
		t.Fatalf("get log: %v", err)
	}
	if got.Status != oplog.StatusSuccess {
		t.Errorf("expected success status, got %d", got.Status)
	}
	if got.TotalRecords != 3 {
		t.Errorf("expected 3 records, got %d", got.TotalRecords)
	}
	if got.ArtifactPath != "exports/products_20260831120000.csv" {
		t.Errorf("unexpected artifact path: %q", got.ArtifactPath)
	}
	if got.Filename != "products_20260831120000.csv" {
		t.Errorf("expected filename to follow artifact, got %q", got.Filename)
	}

	rc, contentType, err := store.Open(context.Background(), got.ArtifactPath)
	if err != nil {
		t.Fatalf("open artifact: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)

	if !strings.HasPrefix(contentType, "text/csv") {
		t.Errorf("unexpected content type: %q", contentType)
	}
	if !bytes.HasPrefix(data, utf8BOM) {
		t.Error("expected UTF-8 BOM prefix")
	}
	if !bytes.Contains(data, []byte("\r\n")) {
		t.Error("expected CRLF line endings")
	}

	lines := strings.Split(strings.TrimSpace(string(bytes.TrimPrefix(data, utf8BOM))), "\r\n")
	if len(lines) != 4 {
		t.Fatalf("expected header + 3 rows, got %d lines", len(lines))
	}
	// default ordering is by code
	if !strings.HasPrefix(lines[1], "G00000001,") || !strings.HasPrefix(lines[3], "W00000001,") {
		t.Errorf("unexpected row order: %v", lines[1:])
	}
	if !strings.Contains(lines[3], "selling") {
		t.Errorf("expected status label in widget row: %q", lines[3])
	}

	if ev := notify.last(t); ev.Status != "success" {
		t.Errorf("expected success event, got %+v", ev)
	}
}

func TestExportProductsFiltered(t *testing.T) {
	ex, store, _ := newExporter(t)
	seedProducts(t, ex)

	status := "selling"
	logRow := newExportLog(t, ex.Logs, EntityProducts)
	req := ExportRequest{
		Entity:  EntityProducts,
		Format:  FormatCSV,
		Product: &ProductFilter{Status: &status},
		UserID:  1,
	}
	if err := ex.Process(context.Background(), logRow, req); err != nil {
		t.Fatalf("process: %v", err)
	}

	got, _ := ex.Logs.GetLog(logRow.ID)
	if got.TotalRecords != 1 {
		t.Errorf("expected 1 matching record, got %d", got.TotalRecords)
	}

	rc, _, err := store.Open(context.Background(), got.ArtifactPath)
	if err != nil {
		t.Fatalf("open artifact: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if !bytes.Contains(data, []byte("Widget")) || bytes.Contains(data, []byte("Gizmo")) {
		t.Errorf("filter not applied: %s", data)
	}
}

func TestExportProductsPriceRangeAndSort(t *testing.T) {
	ex, store, _ := newExporter(t)
	seedProducts(t, ex)

	from, to := 4.0, 30.0
	logRow := newExportLog(t, ex.Logs, EntityProducts)
	req := ExportRequest{
		Entity: EntityProducts,
		Format: FormatCSV,
		Product: &ProductFilter{
			PriceFrom: &from,
			PriceTo:   &to,
			SortField: "price",
			SortDir:   "desc",
		},
		UserID: 1,
	}
	if err := ex.Process(context.Background(), logRow, req); err != nil {
		t.Fatalf("process: %v", err)
	}

	got, _ := ex.Logs.GetLog(logRow.ID)
	rc, _, _ := store.Open(context.Background(), got.ArtifactPath)
	defer rc.Close()
	data, _ := io.ReadAll(rc)

	lines := strings.Split(strings.TrimSpace(string(bytes.TrimPrefix(data, utf8BOM))), "\r\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %v", lines)
	}
	if !strings.Contains(lines[1], "Widget") || !strings.Contains(lines[2], "Gadget") {
		t.Errorf("expected price desc order, got %v", lines[1:])
	}
}

func TestExportNoMatchingRows(t *testing.T) {
	ex, store, notify := newExporter(t)
	// no products seeded

	logRow := newExportLog(t, ex.Logs, EntityProducts)
	req := ExportRequest{Entity: EntityProducts, Format: FormatCSV, UserID: 1}
	if err := ex.Process(context.Background(), logRow, req); err != nil {
		t.Fatalf("process: %v", err)
	}

	got, _ := ex.Logs.GetLog(logRow.ID)
	if got.Status != oplog.StatusError {
		t.Errorf("expected error status, got %d", got.Status)
	}
	if got.ArtifactPath != "" {
		t.Errorf("expected no artifact, got %q", got.ArtifactPath)
	}
	if len(got.Details) != 1 || got.Details[0].Message != "No data to export" {
		t.Errorf("unexpected details: %v", got.Details)
	}

	names, _ := store.List(context.Background(), "exports/")
	if len(names) != 0 {
		t.Errorf("expected no stored artifacts, got %v", names)
	}
	if ev := notify.last(t); ev.Status != "failed" {
		t.Errorf("expected failed event, got %+v", ev)
	}
}

func TestExportRepeatedRunsProduceIdenticalArtifacts(t *testing.T) {
	ex, store, _ := newExporter(t)
	seedProducts(t, ex)

	req := ExportRequest{Entity: EntityProducts, Format: FormatCSV, UserID: 1}

	first := newExportLog(t, ex.Logs, EntityProducts)
	if err := ex.Process(context.Background(), first, req); err != nil {
		t.Fatalf("first run: %v", err)
	}
	rc, _, _ := store.Open(context.Background(), "exports/products_20260831120000.csv")
	data1, _ := io.ReadAll(rc)
	rc.Close()

	second := newExportLog(t, ex.Logs, EntityProducts)
	if err := ex.Process(context.Background(), second, req); err != nil {
		t.Fatalf("second run: %v", err)
	}
	rc, _, _ = store.Open(context.Background(), "exports/products_20260831120000.csv")
	data2, _ := io.ReadAll(rc)
	rc.Close()

	if !bytes.Equal(data1, data2) {
		t.Error("expected identical artifacts for identical requests")
	}
}

func TestExportUsersDateRangeAndFlags(t *testing.T) {
	ex, store, _ := newExporter(t)

	jan := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	jun := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	users := []user.User{
		{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", IsActive: true, JoinedAt: &jan},
		{FirstName: "Grace", LastName: "Hopper", Email: "grace@example.com", IsActive: true, JoinedAt: &jun},
		{FirstName: "Gone", LastName: "User", Email: "gone@example.com", IsActive: true, IsDelete: true, JoinedAt: &jan},
		{FirstName: "Idle", LastName: "User", Email: "idle@example.com", IsActive: false, JoinedAt: &jan},
	}
	if err := ex.DB.Create(&users).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	active := true
	start, end := "2024-01-01", "2024-03-31"
	logRow := newExportLog(t, ex.Logs, EntityUsers)
	req := ExportRequest{
		Entity: EntityUsers,
		Format: FormatCSV,
		User:   &UserFilter{IsActive: &active, StartDate: &start, EndDate: &end},
		UserID: 1,
	}
	if err := ex.Process(context.Background(), logRow, req); err != nil {
		t.Fatalf("process: %v", err)
	}

	got, _ := ex.Logs.GetLog(logRow.ID)
	if got.TotalRecords != 1 {
		t.Fatalf("expected 1 record, got %d", got.TotalRecords)
	}

	rc, _, _ := store.Open(context.Background(), got.ArtifactPath)
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if !bytes.Contains(data, []byte("ada@example.com")) {
		t.Errorf("expected ada row, got %s", data)
	}
	for _, absent := range []string{"grace@", "gone@", "idle@"} {
		if bytes.Contains(data, []byte(absent)) {
			t.Errorf("unexpected row %s in %s", absent, data)
		}
	}
}

func TestExportProductsXLSX(t *testing.T) {
	ex, store, _ := newExporter(t)
	seedProducts(t, ex)

	logRow := newExportLog(t, ex.Logs, EntityProducts)
	req := ExportRequest{Entity: EntityProducts, Format: FormatXLSX, UserID: 1}
	if err := ex.Process(context.Background(), logRow, req); err != nil {
		t.Fatalf("process: %v", err)
	}

	got, _ := ex.Logs.GetLog(logRow.ID)
	if got.ArtifactPath != "exports/products_20260831120000.xlsx" {
		t.Fatalf("unexpected artifact path: %q", got.ArtifactPath)
	}

	rc, _, err := store.Open(context.Background(), got.ArtifactPath)
	if err != nil {
		t.Fatalf("open artifact: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("reopen workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected header + 3 rows, got %d", len(rows))
	}
	if rows[0][0] != "code" || rows[1][0] != "G00000001" {
		t.Errorf("unexpected sheet content: %v", rows[:2])
	}
}

func TestExportStoreFailureLeavesNoArtifact(t *testing.T) {
	ex, store, notify := newExporter(t)
	seedProducts(t, ex)
	store.failSave = true

	logRow := newExportLog(t, ex.Logs, EntityProducts)
	req := ExportRequest{Entity: EntityProducts, Format: FormatCSV, UserID: 1}
	if err := ex.Process(context.Background(), logRow, req); err == nil {
		t.Fatal("expected store error")
	}

	got, _ := ex.Logs.GetLog(logRow.ID)
	if got.Status != oplog.StatusError {
		t.Errorf("expected error status, got %d", got.Status)
	}
	if got.ArtifactPath != "" {
		t.Errorf("expected no artifact recorded, got %q", got.ArtifactPath)
	}
	if ev := notify.last(t); ev.Status != "failed" {
		t.Errorf("expected failed event, got %+v", ev)
	}
}

func TestExportRequestCriteriaStable(t *testing.T) {
	status := "selling"
	from := 1.0
	req := ExportRequest{
		Entity:  EntityProducts,
		Format:  FormatCSV,
		Product: &ProductFilter{Status: &status, PriceFrom: &from, SortField: "price", SortDir: "asc"},
	}

	b1, err := json.Marshal(req.Criteria())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	b2, _ := json.Marshal(req.Criteria())

	if !bytes.Equal(b1, b2) {
		t.Error("expected stable criteria encoding")
	}
	want := `{"entity":"products","format":"csv","status":"selling","price_from":1,"sort_field":"price","sort_dir":"asc"}`
	if string(b1) != want {
		t.Errorf("unexpected criteria: %s", b1)
	}
}
