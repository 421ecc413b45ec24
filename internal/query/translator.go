// internal/query/translator.go
// Package query turns declared filterable parameters, pagination inputs and
// soft-delete policy into store-level queries. Arbitrary querying is not a
// goal: only what the contract declares is translated.
package query

import (
	"strconv"
	"strings"

	"contract-runtime/internal/contract"
	"contract-runtime/internal/models"
	"contract-runtime/internal/store"
)

const (
	paramPage            = "page"
	paramPageSize        = "pageSize"
	paramCursor          = "cursor"
	paramFields          = "fields"
	paramIncludeInactive = "includeInactive"

	suffixGte = "_gte"
	suffixLte = "_lte"
)

// Translator builds store queries for list operations.
type Translator struct {
	defaultPageSize int
	maxPageSize     int
}

func NewTranslator(defaultPageSize, maxPageSize int) *Translator {
	return &Translator{defaultPageSize: defaultPageSize, maxPageSize: maxPageSize}
}

// BuildQuery translates query parameters into a store.Query for a list
// operation. An out-of-range pageSize is clamped to the effective maximum,
// never rejected: listings stay cheap to call and the cap stays enforced.
func (t *Translator) BuildQuery(op *contract.Operation, params map[string]string, principal *models.Principal) store.Query {
	q := store.Query{}

	declared := make(map[string]bool, len(op.Filterable))
	for _, f := range op.Filterable {
		declared[f] = true
	}

	for name, raw := range params {
		switch {
		case declared[name]:
			q.Predicates = append(q.Predicates, store.Predicate{
				Field: name, Op: store.OpEq, Value: coerce(raw),
			})
		case strings.HasSuffix(name, suffixGte) && declared[strings.TrimSuffix(name, suffixGte)]:
			q.Predicates = append(q.Predicates, store.Predicate{
				Field: strings.TrimSuffix(name, suffixGte), Op: store.OpGte, Value: coerce(raw),
			})
		case strings.HasSuffix(name, suffixLte) && declared[strings.TrimSuffix(name, suffixLte)]:
			q.Predicates = append(q.Predicates, store.Predicate{
				Field: strings.TrimSuffix(name, suffixLte), Op: store.OpLte, Value: coerce(raw),
			})
		}
	}

	if fields := params[paramFields]; fields != "" {
		for _, f := range strings.Split(fields, ",") {
			if f = strings.TrimSpace(f); f != "" {
				q.Projection = append(q.Projection, f)
			}
		}
	}

	t.paginate(op, params, &q)
	t.excludeSoftDeleted(op, params, principal, &q)
	return q
}

func (t *Translator) paginate(op *contract.Operation, params map[string]string, q *store.Query) {
	max := t.maxPageSize
	strategy := contract.PaginationOffset
	if op.Resource != nil {
		strategy = op.Resource.Pagination.Strategy
		if rm := op.Resource.Pagination.MaxPageSize; rm > 0 && rm < max {
			max = rm
		}
	}

	size := t.defaultPageSize
	if raw := params[paramPageSize]; raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			size = n
		}
	}
	if size > max {
		size = max
	}
	q.Limit = size

	if strategy == contract.PaginationCursor {
		q.Cursor = params[paramCursor]
		return
	}
	if raw := params[paramPage]; raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 1 {
			q.Offset = (n - 1) * size
		}
	}
}

// excludeSoftDeleted injects the discriminator predicate on every listing of
// a soft-deletable resource. Only includeInactive=true from an admin
// principal lifts it.
func (t *Translator) excludeSoftDeleted(op *contract.Operation, params map[string]string, principal *models.Principal, q *store.Query) {
	sd := op.EffectiveSoftDelete()
	if sd == nil {
		return
	}
	if params[paramIncludeInactive] == "true" && principal != nil && principal.HasRole(models.RoleAdmin) {
		return
	}
	q.Predicates = append(q.Predicates, store.Predicate{
		Field: sd.Property, Op: store.OpNe, Value: sd.Value,
	})
}

// coerce interprets numeric and boolean parameter literals so predicates
// compare against typed record values.
func coerce(raw string) interface{} {
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return n
	}
	if raw == "true" || raw == "false" {
		return raw == "true"
	}
	return raw
}
