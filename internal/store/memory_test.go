// internal/store/memory_test.go
package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedPets(t *testing.T, m *Memory, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		_, err := m.Create(context.Background(), "pets", Record{
			"id":      fmt.Sprintf("p%02d", i),
			"name":    fmt.Sprintf("pet-%02d", i),
			"species": map[bool]string{true: "cat", false: "dog"}[i%2 == 0],
			"age":     float64(i),
		})
		require.NoError(t, err)
	}
}

func TestMemoryCreateAssignsKey(t *testing.T) {
	m := NewMemory()
	rec, err := m.Create(context.Background(), "pets", Record{"name": "rex"})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.Key())

	got, err := m.Read(context.Background(), "pets", rec.Key())
	require.NoError(t, err)
	assert.Equal(t, "rex", got["name"])
}

func TestMemoryCreateConflictOnExistingKey(t *testing.T) {
	m := NewMemory()
	_, err := m.Create(context.Background(), "pets", Record{"id": "p1", "name": "rex"})
	require.NoError(t, err)

	_, err = m.Create(context.Background(), "pets", Record{"id": "p1", "name": "other"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestMemoryUpdateMergesPartial(t *testing.T) {
	m := NewMemory()
	_, err := m.Create(context.Background(), "pets", Record{"id": "p1", "name": "rex", "age": 3})
	require.NoError(t, err)

	updated, err := m.Update(context.Background(), "pets", "p1", Record{"age": 4, "id": "hijack"})
	require.NoError(t, err)
	assert.Equal(t, 4, updated["age"])
	assert.Equal(t, "rex", updated["name"])
	assert.Equal(t, "p1", updated.Key(), "key is immutable through updates")

	_, err = m.Update(context.Background(), "pets", "missing", Record{"age": 1})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryDelete(t *testing.T) {
	m := NewMemory()
	_, err := m.Create(context.Background(), "pets", Record{"id": "p1"})
	require.NoError(t, err)

	require.NoError(t, m.Delete(context.Background(), "pets", "p1"))
	_, err = m.Read(context.Background(), "pets", "p1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.Delete(context.Background(), "pets", "p1"), ErrNotFound)
}

func TestMemoryQueryPredicates(t *testing.T) {
	m := NewMemory()
	seedPets(t, m, 10)

	page, err := m.Query(context.Background(), "pets", Query{
		Predicates: []Predicate{{Field: "species", Op: OpEq, Value: "cat"}},
	})
	require.NoError(t, err)
	assert.Len(t, page.Records, 5)

	page, err = m.Query(context.Background(), "pets", Query{
		Predicates: []Predicate{
			{Field: "age", Op: OpGte, Value: float64(3)},
			{Field: "age", Op: OpLte, Value: float64(5)},
		},
	})
	require.NoError(t, err)
	assert.Len(t, page.Records, 3)

	page, err = m.Query(context.Background(), "pets", Query{
		Predicates: []Predicate{{Field: "species", Op: OpNe, Value: "cat"}},
	})
	require.NoError(t, err)
	assert.Len(t, page.Records, 5)
}

func TestMemoryQueryOffsetPaging(t *testing.T) {
	m := NewMemory()
	seedPets(t, m, 10)

	page, err := m.Query(context.Background(), "pets", Query{Limit: 4})
	require.NoError(t, err)
	require.Len(t, page.Records, 4)
	assert.Equal(t, "p01", page.Records[0].Key())

	page, err = m.Query(context.Background(), "pets", Query{Limit: 4, Offset: 8})
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	assert.Equal(t, "p09", page.Records[0].Key())

	page, err = m.Query(context.Background(), "pets", Query{Limit: 4, Offset: 100})
	require.NoError(t, err)
	assert.Empty(t, page.Records)
}

func TestMemoryQueryCursorPaging(t *testing.T) {
	m := NewMemory()
	seedPets(t, m, 7)

	var keys []string
	cursor := ""
	for {
		page, err := m.Query(context.Background(), "pets", Query{Limit: 3, Cursor: cursor})
		require.NoError(t, err)
		for _, rec := range page.Records {
			keys = append(keys, rec.Key())
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	assert.Equal(t, []string{"p01", "p02", "p03", "p04", "p05", "p06", "p07"}, keys)
}

func TestMemoryQueryProjection(t *testing.T) {
	m := NewMemory()
	seedPets(t, m, 2)

	page, err := m.Query(context.Background(), "pets", Query{
		Projection: []string{"name"},
	})
	require.NoError(t, err)
	for _, rec := range page.Records {
		assert.Contains(t, rec, "name")
		assert.Contains(t, rec, KeyField, "key survives projection")
		assert.NotContains(t, rec, "species")
	}
}
