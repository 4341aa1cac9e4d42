package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/JonMunkholm/sheetimport/internal/apperrors"
	"github.com/JonMunkholm/sheetimport/internal/schema"
	"github.com/JonMunkholm/sheetimport/internal/store"
)

// memStore is an in-memory store.Manager with failure injection.
type memStore struct {
	backend   store.Backend
	batchSize int

	failCreate  error
	failBatchAt int // 1-based batch number that fails; 0 never
	failErr     error

	mu      sync.Mutex
	batches int
	tables  map[string]*memTable
}

type memTable struct {
	schema schema.TableSchema
	rows   []store.Row
	nextID int
}

func newMemStore(b store.Backend, batchSize int) *memStore {
	return &memStore{backend: b, batchSize: batchSize, tables: make(map[string]*memTable)}
}

func (m *memStore) Backend() store.Backend { return m.backend }
func (m *memStore) BatchSize() int         { return m.batchSize }

func (m *memStore) CreateOrReplace(_ context.Context, s schema.TableSchema) error {
	if m.failCreate != nil {
		return apperrors.CreateFailed(s.Target, m.failCreate)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[s.Target] = &memTable{schema: s}
	return nil
}

func (m *memStore) table(target string) (*memTable, error) {
	t, ok := m.tables[target]
	if !ok {
		return nil, apperrors.TargetNotFound(target)
	}
	return t, nil
}

func (m *memStore) GetColumnOrder(_ context.Context, target string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.table(target)
	if err != nil {
		return nil, err
	}
	return t.schema.Order(), nil
}

func (m *memStore) ImageColumns(_ context.Context, target string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.table(target)
	if err != nil {
		return nil, err
	}
	return t.schema.ImageColumns(), nil
}

func (m *memStore) ListTargets(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for name := range m.tables {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (m *memStore) idKey() string {
	if m.backend == store.BackendDocument {
		return schema.DocumentIDKey
	}
	return schema.SurrogateKey
}

func (m *memStore) InsertBatch(_ context.Context, s schema.TableSchema, rows [][]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.batches++
	if m.failBatchAt > 0 && m.batches == m.failBatchAt {
		if m.failErr != nil {
			return m.failErr
		}
		return errors.New("injected batch failure")
	}

	t, err := m.table(s.Target)
	if err != nil {
		return err
	}
	for _, values := range rows {
		t.nextID++
		row := store.Row{m.idKey(): strconv.Itoa(t.nextID)}
		for i, c := range s.Columns {
			row[c.Name] = values[i]
		}
		t.rows = append(t.rows, row)
	}
	return nil
}

func (m *memStore) ReadRows(_ context.Context, target string, offset, limit int) ([]store.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.table(target)
	if err != nil {
		return nil, err
	}
	rows := t.rows
	if offset >= len(rows) {
		return nil, nil
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return append([]store.Row(nil), rows...), nil
}

func (m *memStore) Count(_ context.Context, target string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.table(target)
	if err != nil {
		return 0, err
	}
	return int64(len(t.rows)), nil
}

func (m *memStore) find(t *memTable, id string) int {
	for i, r := range t.rows {
		if fmt.Sprint(r[m.idKey()]) == id {
			return i
		}
	}
	return -1
}

func (m *memStore) UpdateRow(_ context.Context, target, id string, values map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.table(target)
	if err != nil {
		return err
	}
	i := m.find(t, id)
	if i < 0 {
		return &apperrors.SchemaError{Code: apperrors.CodeRowNotFound, Target: target, Err: errors.New("row not found")}
	}
	for k, v := range values {
		t.rows[i][k] = v
	}
	return nil
}

func (m *memStore) DeleteRow(_ context.Context, target, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.table(target)
	if err != nil {
		return err
	}
	i := m.find(t, id)
	if i < 0 {
		return &apperrors.SchemaError{Code: apperrors.CodeRowNotFound, Target: target, Err: errors.New("row not found")}
	}
	t.rows = append(t.rows[:i], t.rows[i+1:]...)
	return nil
}

func (m *memStore) Drop(_ context.Context, target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tables, target)
	return nil
}

func (m *memStore) Close(context.Context) error { return nil }
