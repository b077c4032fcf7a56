package document

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/store"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	repo := NewRepository(database.NewDatabaseInstance(sqlx.NewDb(mockDB, "postgres"), logger), logger)
	repo.now = func() time.Time { return testNow }
	return repo, mock
}

func documentRows() *sqlmock.Rows {
	return sqlmock.NewRows(columns)
}

func TestRepository_FetchOne(t *testing.T) {
	repo, mock := newTestRepository(t)

	mock.ExpectQuery(`SELECT id, type, rev, data, created_at, updated_at FROM documents WHERE id IN \(\$1\) ORDER BY id LIMIT`).
		WillReturnRows(documentRows().AddRow("order-1", "order", "r1", []byte(`{"status":"paid","_rev":"ignored"}`), testNow, testNow))

	doc, err := repo.FetchOne(context.Background(), store.ByID("order-1"))
	require.NoError(t, err)

	assert.Equal(t, "order-1", doc.ID())
	assert.Equal(t, "order", doc.Type())
	assert.Equal(t, "r1", doc.Rev())
	assert.Equal(t, "paid", doc.String("status"))
	assert.Equal(t, "2024-05-01T12:00:00Z", doc.String(models.FieldCreatedAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_FetchOneMissing(t *testing.T) {
	repo, mock := newTestRepository(t)

	mock.ExpectQuery(`FROM documents`).WillReturnRows(documentRows())

	doc, err := repo.FetchOne(context.Background(), store.ByID("missing"))
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestRepository_FetchManyFilters(t *testing.T) {
	repo, mock := newTestRepository(t)

	mock.ExpectQuery(`WHERE type = \$1 AND \(data #>> \$2\) LIKE \$3 ORDER BY id`).
		WithArgs("invoice", sqlmock.AnyArg(), `INV\_X-%`).
		WillReturnRows(documentRows().
			AddRow("invoice-1", "invoice", "r1", []byte(`{"invoiceNumber":"INV_X-000001","total":10}`), testNow, testNow))

	docs, err := repo.FetchMany(context.Background(), store.Query{
		Type:   "invoice",
		Prefix: &store.PrefixFilter{Field: "invoiceNumber", Value: "INV_X-"},
		Fields: []string{"invoiceNumber"},
	})
	require.NoError(t, err)

	require.Len(t, docs, 1)
	assert.Equal(t, models.Document{"_id": "invoice-1", "_type": "invoice", "invoiceNumber": "INV_X-000001"}, docs[0])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_FetchManyError(t *testing.T) {
	repo, mock := newTestRepository(t)

	mock.ExpectQuery(`FROM documents`).WillReturnError(assert.AnError)

	_, err := repo.FetchMany(context.Background(), store.Query{Where: map[string]any{"slug.current": "shirt"}})
	assert.Error(t, err)
}

func TestRepository_Create(t *testing.T) {
	repo, mock := newTestRepository(t)

	mock.ExpectQuery(`INSERT INTO documents \(id, type, rev, data, created_at, updated_at\) VALUES .* ON CONFLICT \(id\) DO NOTHING RETURNING`).
		WithArgs("invoice-1", "invoice", sqlmock.AnyArg(), sqlmock.AnyArg(), testNow, testNow).
		WillReturnRows(documentRows().AddRow("invoice-1", "invoice", "r1", []byte(`{"status":"pending"}`), testNow, testNow))

	doc, err := repo.Create(context.Background(), models.Document{"_id": "invoice-1", "_type": "invoice", "status": "pending"})
	require.NoError(t, err)
	assert.Equal(t, "pending", doc.String("status"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_CreateConflict(t *testing.T) {
	repo, mock := newTestRepository(t)

	mock.ExpectQuery(`INSERT INTO documents`).WillReturnRows(documentRows())

	_, err := repo.Create(context.Background(), models.Document{"_id": "invoice-1", "_type": "invoice"})
	assert.True(t, store.IsConflict(err))
}

func TestRepository_CreateInvalid(t *testing.T) {
	repo, _ := newTestRepository(t)

	_, err := repo.Create(context.Background(), models.Document{"_id": "invoice-1"})
	assert.Error(t, err)
}

func TestRepository_CreateOrReplace(t *testing.T) {
	repo, mock := newTestRepository(t)

	mock.ExpectQuery(`ON CONFLICT \(id\) DO UPDATE SET type = EXCLUDED.type`).
		WillReturnRows(documentRows().AddRow("map-order-1", "map-order", "r2", []byte(`{"sourceId":"order-1"}`), testNow, testNow))

	doc, err := repo.CreateOrReplace(context.Background(), models.Document{"_id": "map-order-1", "_type": "map-order", "sourceId": "order-1"})
	require.NoError(t, err)
	assert.Equal(t, "order-1", doc.String("sourceId"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Patch(t *testing.T) {
	repo, mock := newTestRepository(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM documents WHERE id = \$1 FOR UPDATE`).
		WithArgs("shippingLabel-1").
		WillReturnRows(documentRows().AddRow("shippingLabel-1", "shippingLabel", "r1", []byte(`{"trackingNumber":"1Z999"}`), testNow, testNow))
	mock.ExpectExec(`UPDATE documents SET data = \$1, rev = \$2, updated_at = \$3 WHERE id = \$4`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), testNow, "shippingLabel-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	doc, err := store.NewPatch("shippingLabel-1").
		SetFields(map[string]any{"carrier": "ups", "_id": "hijack"}).
		IfRevisionID("r1").
		Commit(context.Background(), repo)
	require.NoError(t, err)

	assert.Equal(t, "shippingLabel-1", doc.ID())
	assert.Equal(t, "1Z999", doc.String("trackingNumber"))
	assert.Equal(t, "ups", doc.String("carrier"))
	assert.NotEqual(t, "r1", doc.Rev())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_PatchRevisionMismatch(t *testing.T) {
	repo, mock := newTestRepository(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WillReturnRows(documentRows().AddRow("invoice-1", "invoice", "r2", []byte(`{}`), testNow, testNow))
	mock.ExpectRollback()

	_, err := store.NewPatch("invoice-1").SetFields(map[string]any{"status": "paid"}).IfRevisionID("r1").Commit(context.Background(), repo)
	assert.True(t, store.IsConflict(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_PatchNotFound(t *testing.T) {
	repo, mock := newTestRepository(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WillReturnRows(documentRows())
	mock.ExpectRollback()

	_, err := store.NewPatch("missing").SetFields(map[string]any{"a": 1}).Commit(context.Background(), repo)
	assert.True(t, store.IsNotFound(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `INV\_1\%\\`, escapeLike(`INV_1%\`))
}
