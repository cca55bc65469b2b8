package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/drewp/commentserve/database"
	"github.com/drewp/commentserve/statement"
)

type record struct {
	ref  database.BatchRef
	data []byte
}

// Memory keeps serialized batches in process memory.
type Memory struct {
	mu      sync.RWMutex
	records []record
	clock   database.Clock
	// Fault, when set, is called after a batch is serialized and before it
	// is committed. A non-nil error aborts the append.
	Fault func(ref database.BatchRef) error
}

func New() *Memory {
	return &Memory{}
}

func find(rs []record, filter func(r record) bool) []record {
	var result []record
	for _, r := range rs {
		if filter(r) {
			result = append(result, r)
		}
	}
	return result
}

func (m *Memory) Open(dsn string) error {
	return nil
}

func (m *Memory) Append(ctx context.Context, b statement.Batch) (database.BatchRef, error) {
	if err := b.Validate(); err != nil {
		return database.BatchRef{}, err
	}
	ref := database.RefFor(b)
	data, err := statement.Marshal(b)
	if err != nil {
		return database.BatchRef{}, err
	}
	if m.Fault != nil {
		if err := m.Fault(ref); err != nil {
			return database.BatchRef{}, err
		}
	}
	if err := ctx.Err(); err != nil {
		return database.BatchRef{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ref.Modified = m.clock.Next()
	m.records = append(m.records, record{ref: ref, data: data})
	return ref, nil
}

// AppendRaw stores an already serialized document without checking it.
// It exists to simulate corrupt stored data.
func (m *Memory) AppendRaw(name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record{
		ref:  database.BatchRef{Name: name, Modified: m.clock.Next()},
		data: data,
	})
}

func (m *Memory) Enumerate(ctx context.Context) ([]database.BatchRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	refs := make([]database.BatchRef, len(m.records))
	for i, r := range m.records {
		refs[i] = r.ref
	}
	return refs, nil
}

func (m *Memory) Staleness(ctx context.Context) (database.Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var tok database.Token
	for _, r := range m.records {
		tok = tok.Include(r.ref.Modified)
	}
	return tok, nil
}

func (m *Memory) ReadAll(ctx context.Context) ([]statement.Statement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var all []statement.Statement
	for _, r := range m.records {
		b, err := statement.Unmarshal(r.data)
		if err != nil {
			return nil, fmt.Errorf("batch %s: %w", r.ref.Name, err)
		}
		all = append(all, b.Statements...)
	}
	return all, nil
}

func (m *Memory) Classify(ctx context.Context, comment string, class database.Class) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records {
		if m.records[i].ref.Comment == comment {
			m.records[i].ref.Class = class
			m.records[i].ref.Modified = m.clock.Next()
			return nil
		}
	}
	return fmt.Errorf("comment %s: %w", comment, database.ErrNotFound)
}

func (m *Memory) Classes(ctx context.Context) (map[string]database.Class, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	classes := make(map[string]database.Class)
	for _, r := range find(m.records, func(r record) bool { return r.ref.Class != database.ClassNone }) {
		classes[r.ref.Comment] = r.ref.Class
	}
	return classes, nil
}

func (m *Memory) Close() error {
	return nil
}
