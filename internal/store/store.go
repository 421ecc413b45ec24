// internal/store/store.go
// Package store defines the data store collaborator capability the runtime
// depends on: create/read/update/delete/query. The dispatcher never sees a
// specific store technology.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// KeyField is the record key property every collection carries.
const KeyField = "id"

var (
	ErrNotFound = errors.New("RECORD_NOT_FOUND")
	ErrConflict = errors.New("RECORD_CONFLICT")
)

// Record is a schemaless document persisted under a collection.
type Record map[string]interface{}

// Key returns the record key, empty when unset.
func (r Record) Key() string {
	if v, ok := r[KeyField].(string); ok {
		return v
	}
	return ""
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// PredicateOp is a comparison operator on a record field.
type PredicateOp string

const (
	OpEq  PredicateOp = "eq"
	OpNe  PredicateOp = "ne"
	OpGte PredicateOp = "gte"
	OpLte PredicateOp = "lte"
)

// Predicate is a single field comparison.
type Predicate struct {
	Field string
	Op    PredicateOp
	Value interface{}
}

// Query is the store-level query shape produced by the query translator.
type Query struct {
	Predicates []Predicate
	SortField  string
	SortDesc   bool
	Limit      int
	Offset     int
	Cursor     string
	Projection []string
}

// Page is one page of query results. NextCursor is set when more records
// may follow under cursor pagination.
type Page struct {
	Records    []Record
	NextCursor string
}

// Store is the abstract capability set the executor depends on.
type Store interface {
	Create(ctx context.Context, collection string, rec Record) (Record, error)
	Read(ctx context.Context, collection, key string) (Record, error)
	Update(ctx context.Context, collection, key string, partial Record) (Record, error)
	Delete(ctx context.Context, collection, key string) error
	Query(ctx context.Context, collection string, q Query) (Page, error)
}

// Project strips a record down to the given fields. The key field is always
// retained. A nil projection returns the record unchanged.
func Project(rec Record, fields []string) Record {
	if len(fields) == 0 {
		return rec
	}
	out := Record{}
	if key := rec.Key(); key != "" {
		out[KeyField] = key
	}
	for _, f := range fields {
		if v, ok := rec[f]; ok {
			out[f] = v
		}
	}
	return out
}

// Matches evaluates a predicate against a record value in memory. Numeric
// comparisons coerce both sides to float64 the way JSON decoding does.
func Matches(rec Record, p Predicate) bool {
	v, ok := rec[p.Field]
	if !ok {
		// A record without the field can never equal the value; the
		// not-equal form (soft-delete exclusion relies on it) matches.
		return p.Op == OpNe
	}
	switch p.Op {
	case OpEq:
		return equalValues(v, p.Value)
	case OpNe:
		return !equalValues(v, p.Value)
	case OpGte:
		a, aok := toFloat(v)
		b, bok := toFloat(p.Value)
		return aok && bok && a >= b
	case OpLte:
		a, aok := toFloat(v)
		b, bok := toFloat(p.Value)
		return aok && bok && a <= b
	}
	return false
}

func equalValues(a, b interface{}) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
