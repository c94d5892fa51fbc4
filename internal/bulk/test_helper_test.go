package bulk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"catalog-bulk-api/internal/oplog"
	"catalog-bulk-api/internal/product"
	"catalog-bulk-api/internal/user"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testDBSeq uint64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	id := atomic.AddUint64(&testDBSeq, 1)
	dsn := fmt.Sprintf("file:bulk_test_%d?mode=memory&cache=shared", id)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := db.AutoMigrate(
		&product.Product{},
		&user.User{},
		&oplog.OperationLog{},
		&oplog.OperationLogDetail{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	return db
}

// memStore is an in-memory BlobStore for exercising the import and export
// paths without a bucket. failSave makes every Save return an error.
type memStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	types    map[string]string
	failSave bool
}

func newMemStore() *memStore {
	return &memStore{
		objects: map[string][]byte{},
		types:   map[string]string{},
	}
}

func (m *memStore) Save(_ context.Context, objectName, contentType string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave {
		return "", errors.New("save failed")
	}
	m.objects[objectName] = append([]byte(nil), data...)
	m.types[objectName] = contentType
	return "mem://" + objectName, nil
}

func (m *memStore) Open(_ context.Context, objectName string) (io.ReadCloser, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[objectName]
	if !ok {
		return nil, "", errors.New("object not found: " + objectName)
	}
	return io.NopCloser(bytes.NewReader(data)), m.types[objectName], nil
}

func (m *memStore) Delete(_ context.Context, objectName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, objectName)
	delete(m.types, objectName)
	return nil
}

func (m *memStore) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for name := range m.objects {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// recordingNotifier captures published events for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (rn *recordingNotifier) Publish(ev Event) {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	rn.events = append(rn.events, ev)
}

func (rn *recordingNotifier) last(t *testing.T) Event {
	t.Helper()
	rn.mu.Lock()
	defer rn.mu.Unlock()
	if len(rn.events) == 0 {
		t.Fatal("no events published")
	}
	return rn.events[len(rn.events)-1]
}

func newImportLog(t *testing.T, logs *oplog.LogService, entity, filename string) *oplog.OperationLog {
	t.Helper()
	logRow, err := logs.Create(oplog.DirectionImport, entity, filename, 1, nil)
	if err != nil {
		t.Fatalf("create log: %v", err)
	}
	return logRow
}

func newExportLog(t *testing.T, logs *oplog.LogService, entity string) *oplog.OperationLog {
	t.Helper()
	logRow, err := logs.Create(oplog.DirectionExport, entity, "", 1, nil)
	if err != nil {
		t.Fatalf("create log: %v", err)
	}
	return logRow
}
