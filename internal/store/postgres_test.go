// internal/store/postgres_test.go
package store

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"

	"contract-runtime/internal/common/logger"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPostgresMock(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgres(db, logger.NewNoOpLogger()), mock
}

func TestPostgresCreate(t *testing.T) {
	pg, mock := newPostgresMock(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO records")).
		WithArgs("pets", "p1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec, err := pg.Create(context.Background(), "pets", Record{"id": "p1", "name": "rex"})
	require.NoError(t, err)
	assert.Equal(t, "p1", rec.Key())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateMapsUniqueViolation(t *testing.T) {
	pg, mock := newPostgresMock(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO records")).
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := pg.Create(context.Background(), "pets", Record{"id": "p1"})
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRead(t *testing.T) {
	pg, mock := newPostgresMock(t)

	doc, _ := json.Marshal(Record{"id": "p1", "name": "rex"})
	mock.ExpectQuery(regexp.QuoteMeta("SELECT doc FROM records")).
		WithArgs("pets", "p1").
		WillReturnRows(sqlmock.NewRows([]string{"doc"}).AddRow(doc))

	rec, err := pg.Read(context.Background(), "pets", "p1")
	require.NoError(t, err)
	assert.Equal(t, "rex", rec["name"])

	mock.ExpectQuery(regexp.QuoteMeta("SELECT doc FROM records")).
		WithArgs("pets", "missing").
		WillReturnRows(sqlmock.NewRows([]string{"doc"}))
	_, err = pg.Read(context.Background(), "pets", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateMergesViaJsonb(t *testing.T) {
	pg, mock := newPostgresMock(t)

	merged, _ := json.Marshal(Record{"id": "p1", "name": "rex", "petStatus": "inactive"})
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE records SET doc = doc || $3::jsonb")).
		WithArgs("pets", "p1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"doc"}).AddRow(merged))

	rec, err := pg.Update(context.Background(), "pets", "p1", Record{"petStatus": "inactive"})
	require.NoError(t, err)
	assert.Equal(t, "inactive", rec["petStatus"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDelete(t *testing.T) {
	pg, mock := newPostgresMock(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM records")).
		WithArgs("pets", "p1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, pg.Delete(context.Background(), "pets", "p1"))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM records")).
		WithArgs("pets", "gone").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, pg.Delete(context.Background(), "pets", "gone"), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresQueryCompilesPredicates(t *testing.T) {
	pg, mock := newPostgresMock(t)

	doc1, _ := json.Marshal(Record{"id": "p1", "species": "cat"})
	doc2, _ := json.Marshal(Record{"id": "p2", "species": "cat"})
	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT key, doc FROM records WHERE collection = $1 AND doc->>'species' = $2 AND (doc->>'age')::numeric >= $3 AND doc->>'petStatus' IS DISTINCT FROM $4 ORDER BY key LIMIT 3`)).
		WithArgs("pets", "cat", float64(2), "inactive").
		WillReturnRows(sqlmock.NewRows([]string{"key", "doc"}).
			AddRow("p1", doc1).
			AddRow("p2", doc2))

	page, err := pg.Query(context.Background(), "pets", Query{
		Predicates: []Predicate{
			{Field: "species", Op: OpEq, Value: "cat"},
			{Field: "age", Op: OpGte, Value: float64(2)},
			{Field: "petStatus", Op: OpNe, Value: "inactive"},
		},
		Limit: 2,
	})
	require.NoError(t, err)
	assert.Len(t, page.Records, 2)
	assert.Empty(t, page.NextCursor)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresQueryCursorSetsNextCursor(t *testing.T) {
	pg, mock := newPostgresMock(t)

	rows := sqlmock.NewRows([]string{"key", "doc"})
	for _, key := range []string{"p3", "p4", "p5"} {
		doc, _ := json.Marshal(Record{"id": key})
		rows.AddRow(key, doc)
	}
	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT key, doc FROM records WHERE collection = $1 AND key > $2 ORDER BY key LIMIT 3`)).
		WithArgs("pets", "p2").
		WillReturnRows(rows)

	page, err := pg.Query(context.Background(), "pets", Query{Cursor: "p2", Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	assert.Equal(t, "p4", page.NextCursor)
	assert.NoError(t, mock.ExpectationsWereMet())
}
