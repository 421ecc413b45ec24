// internal/store/memory.go
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process store used in dev mode and tests.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]Record
}

func NewMemory() *Memory {
	return &Memory{collections: make(map[string]map[string]Record)}
}

func (m *Memory) Create(ctx context.Context, collection string, rec Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	coll := m.collections[collection]
	if coll == nil {
		coll = make(map[string]Record)
		m.collections[collection] = coll
	}

	stored := rec.Clone()
	key := stored.Key()
	if key == "" {
		key = uuid.New().String()
		stored[KeyField] = key
	}
	if _, exists := coll[key]; exists {
		return nil, ErrConflict
	}
	coll[key] = stored
	return stored.Clone(), nil
}

func (m *Memory) Read(ctx context.Context, collection, key string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.collections[collection][key]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (m *Memory) Update(ctx context.Context, collection, key string, partial Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.collections[collection][key]
	if !ok {
		return nil, ErrNotFound
	}
	updated := rec.Clone()
	for k, v := range partial {
		if k == KeyField {
			continue
		}
		updated[k] = v
	}
	m.collections[collection][key] = updated
	return updated.Clone(), nil
}

func (m *Memory) Delete(ctx context.Context, collection, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.collections[collection][key]; !ok {
		return ErrNotFound
	}
	delete(m.collections[collection], key)
	return nil
}

func (m *Memory) Query(ctx context.Context, collection string, q Query) (Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []Record
	for _, rec := range m.collections[collection] {
		ok := true
		for _, p := range q.Predicates {
			if !Matches(rec, p) {
				ok = false
				break
			}
		}
		if ok {
			matched = append(matched, rec.Clone())
		}
	}

	sortField := q.SortField
	if sortField == "" {
		sortField = KeyField
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := compareKey(matched[i], sortField), compareKey(matched[j], sortField)
		if q.SortDesc {
			return a > b
		}
		return a < b
	})

	// Cursor pagination resumes after the cursor key.
	if q.Cursor != "" {
		idx := 0
		for i, rec := range matched {
			if rec.Key() == q.Cursor {
				idx = i + 1
				break
			}
		}
		matched = matched[idx:]
	} else if q.Offset > 0 {
		if q.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[q.Offset:]
		}
	}

	nextCursor := ""
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
		nextCursor = matched[len(matched)-1].Key()
	}

	out := make([]Record, 0, len(matched))
	for _, rec := range matched {
		out = append(out, Project(rec, q.Projection))
	}
	return Page{Records: out, NextCursor: nextCursor}, nil
}

func compareKey(rec Record, field string) string {
	if v, ok := rec[field].(string); ok {
		return v
	}
	if f, ok := toFloat(rec[field]); ok {
		// zero-pad so lexicographic order matches numeric order
		return fmt.Sprintf("%020.3f", f)
	}
	return ""
}
