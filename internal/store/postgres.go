// internal/store/postgres.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"contract-runtime/internal/common/logger"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Postgres persists every collection in a single records table with a JSONB
// document column. Per-record concurrency control is delegated to the
// database (primary key on collection+key, unique violations surface as
// ErrConflict).
type Postgres struct {
	db     *sql.DB
	logger logger.Logger
}

func NewPostgres(db *sql.DB, log logger.Logger) *Postgres {
	return &Postgres{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"store": "postgres"}),
	}
}

// EnsureSchema creates the records table when missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS records (
			collection TEXT NOT NULL,
			key        TEXT NOT NULL,
			doc        JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (collection, key)
		)`)
	if err != nil {
		return fmt.Errorf("ensure records table: %w", err)
	}
	p.logger.Debug("records table ensured", nil)
	return nil
}

func (p *Postgres) Create(ctx context.Context, collection string, rec Record) (Record, error) {
	stored := rec.Clone()
	key := stored.Key()
	if key == "" {
		key = uuid.New().String()
		stored[KeyField] = key
	}

	doc, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}

	now := time.Now().UTC()
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO records (collection, key, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)`,
		collection, key, doc, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("insert record: %w", err)
	}
	return stored, nil
}

func (p *Postgres) Read(ctx context.Context, collection, key string) (Record, error) {
	var doc []byte
	err := p.db.QueryRowContext(ctx, `
		SELECT doc FROM records WHERE collection = $1 AND key = $2`,
		collection, key,
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(doc, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return rec, nil
}

func (p *Postgres) Update(ctx context.Context, collection, key string, partial Record) (Record, error) {
	patch := partial.Clone()
	delete(patch, KeyField)

	doc, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("marshal partial: %w", err)
	}

	var updated []byte
	err = p.db.QueryRowContext(ctx, `
		UPDATE records SET doc = doc || $3::jsonb, updated_at = $4
		WHERE collection = $1 AND key = $2
		RETURNING doc`,
		collection, key, doc, time.Now().UTC(),
	).Scan(&updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(updated, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return rec, nil
}

func (p *Postgres) Delete(ctx context.Context, collection, key string) error {
	res, err := p.db.ExecContext(ctx, `
		DELETE FROM records WHERE collection = $1 AND key = $2`,
		collection, key,
	)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) Query(ctx context.Context, collection string, q Query) (Page, error) {
	where := []string{"collection = $1"}
	args := []interface{}{collection}

	for _, pred := range q.Predicates {
		placeholder := fmt.Sprintf("$%d", len(args)+1)
		field := fmt.Sprintf("doc->>'%s'", sanitizeField(pred.Field))
		switch pred.Op {
		case OpEq:
			where = append(where, fmt.Sprintf("%s = %s", field, placeholder))
			args = append(args, stringValue(pred.Value))
		case OpNe:
			where = append(where, fmt.Sprintf("%s IS DISTINCT FROM %s", field, placeholder))
			args = append(args, stringValue(pred.Value))
		case OpGte:
			where = append(where, fmt.Sprintf("(%s)::numeric >= %s", field, placeholder))
			args = append(args, numericValue(pred.Value))
		case OpLte:
			where = append(where, fmt.Sprintf("(%s)::numeric <= %s", field, placeholder))
			args = append(args, numericValue(pred.Value))
		}
	}

	if q.Cursor != "" {
		where = append(where, fmt.Sprintf("key > $%d", len(args)+1))
		args = append(args, q.Cursor)
	}

	query := fmt.Sprintf(`SELECT key, doc FROM records WHERE %s ORDER BY key`, strings.Join(where, " AND "))
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit+1)
	}
	if q.Cursor == "" && q.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", q.Offset)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Page{}, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var key string
		var doc []byte
		if err := rows.Scan(&key, &doc); err != nil {
			return Page{}, fmt.Errorf("scan record: %w", err)
		}
		var rec Record
		if err := json.Unmarshal(doc, &rec); err != nil {
			return Page{}, fmt.Errorf("unmarshal record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("iterate records: %w", err)
	}

	nextCursor := ""
	if q.Limit > 0 && len(records) > q.Limit {
		records = records[:q.Limit]
		nextCursor = records[len(records)-1].Key()
	}

	out := make([]Record, 0, len(records))
	for _, rec := range records {
		out = append(out, Project(rec, q.Projection))
	}
	return Page{Records: out, NextCursor: nextCursor}, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// sanitizeField keeps predicate fields to identifier characters; field names
// come from the contract, not the request, but the doc->> path is
// interpolated and must never carry quotes.
func sanitizeField(field string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return -1
	}, field)
}

func stringValue(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	if f, ok := toFloat(v); ok {
		data, _ := json.Marshal(f)
		return string(data)
	}
	return fmt.Sprintf("%v", v)
}

func numericValue(v interface{}) float64 {
	f, _ := toFloat(v)
	return f
}
