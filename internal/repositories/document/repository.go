// Package document persists documents in Postgres. Each row keeps the
// store-managed fields in columns and the document body in a jsonb column.
package document

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/extractor"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/store"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const table = "documents"

var columns = []string{"id", "type", "rev", "data", "created_at", "updated_at"}

type row struct {
	ID        string                         `db:"id"`
	Type      string                         `db:"type"`
	Rev       string                         `db:"rev"`
	Data      database.JSONB[map[string]any] `db:"data"`
	CreatedAt time.Time                      `db:"created_at"`
	UpdatedAt time.Time                      `db:"updated_at"`
}

func (r row) toDocument() models.Document {
	doc := models.Document{}
	for k, v := range r.Data.Data {
		doc[k] = v
	}
	doc[models.FieldID] = r.ID
	doc[models.FieldType] = r.Type
	doc[models.FieldRev] = r.Rev
	doc[models.FieldCreatedAt] = r.CreatedAt.UTC().Format(time.RFC3339Nano)
	doc[models.FieldUpdatedAt] = r.UpdatedAt.UTC().Format(time.RFC3339Nano)
	return doc
}

// body returns the fields of doc stored in the data column.
func body(doc models.Document) map[string]any {
	data := make(map[string]any, len(doc))
	for k, v := range doc {
		if !store.IsReserved(k) {
			data[k] = v
		}
	}
	return data
}

// Repository implements store.Store on Postgres
type Repository struct {
	db     database.DB
	logger ectologger.Logger
	now    func() time.Time
}

// NewRepository creates a new document repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

var _ store.Store = (*Repository)(nil)

func (r *Repository) FetchOne(ctx context.Context, q store.Query) (models.Document, error) {
	q.Limit = 1
	docs, err := r.FetchMany(ctx, q)
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

func (r *Repository) FetchMany(ctx context.Context, q store.Query) ([]models.Document, error) {
	ctx, span := tracing.StartSpan(ctx, "document.Repository.FetchMany")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)

	var where []string
	if len(q.IDs) > 0 {
		ids := make([]any, len(q.IDs))
		for i, id := range q.IDs {
			ids[i] = id
		}
		where = append(where, sb.In("id", ids...))
	}
	if q.Type != "" {
		where = append(where, sb.Equal("type", q.Type))
	}
	for _, path := range sortedKeys(q.Where) {
		where = append(where, fieldEquals(sb, path, extractor.ToString(q.Where[path])))
	}
	if q.Prefix != nil {
		where = append(where, fmt.Sprintf("%s LIKE %s", fieldExpr(sb, q.Prefix.Field), sb.Var(escapeLike(q.Prefix.Value)+"%")))
	}
	if len(where) > 0 {
		sb.Where(where...)
	}
	sb.OrderBy("id")
	if q.Limit > 0 {
		sb.Limit(q.Limit)
	}

	query, args := sb.Build()
	var rows []row
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"ids":  q.IDs,
			"type": q.Type,
		}).Error("Failed to query documents")
		tracing.RecordError(span, err)
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to query documents: %v", err)
	}

	docs := make([]models.Document, 0, len(rows))
	for _, rw := range rows {
		docs = append(docs, store.Project(rw.toDocument(), q.Fields))
	}
	return docs, nil
}

func (r *Repository) Create(ctx context.Context, doc models.Document) (models.Document, error) {
	ctx, span := tracing.StartSpan(ctx, "document.Repository.Create")
	defer span.End()

	if err := store.Validate(doc); err != nil {
		return nil, err
	}

	now := r.now().UTC()
	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols(columns...)
	ib.Values(doc.ID(), doc.Type(), store.NewRevision(), database.JSONB[map[string]any]{Data: body(doc)}, now, now)
	ib.SQL("ON CONFLICT (id) DO NOTHING")
	ib.Returning(columns...)

	query, args := ib.Build()
	var created row
	if err := r.db.GetContext(ctx, &created, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.AlreadyExists(doc.ID())
		}
		r.logger.WithContext(ctx).WithError(err).WithField("document_id", doc.ID()).Error("Failed to create document")
		tracing.RecordError(span, err)
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to create document %s: %v", doc.ID(), err)
	}

	return created.toDocument(), nil
}

func (r *Repository) CreateOrReplace(ctx context.Context, doc models.Document) (models.Document, error) {
	ctx, span := tracing.StartSpan(ctx, "document.Repository.CreateOrReplace")
	defer span.End()

	if err := store.Validate(doc); err != nil {
		return nil, err
	}

	now := r.now().UTC()
	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols(columns...)
	ib.Values(doc.ID(), doc.Type(), store.NewRevision(), database.JSONB[map[string]any]{Data: body(doc)}, now, now)
	ib.SQL("ON CONFLICT (id) DO UPDATE SET type = EXCLUDED.type, rev = EXCLUDED.rev, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at")
	ib.Returning(columns...)

	query, args := ib.Build()
	var written row
	if err := r.db.GetContext(ctx, &written, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("document_id", doc.ID()).Error("Failed to write document")
		tracing.RecordError(span, err)
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to write document %s: %v", doc.ID(), err)
	}

	return written.toDocument(), nil
}

// Patch merges top-level fields into a document inside a transaction that
// holds the row lock, so the revision check and the write are atomic.
func (r *Repository) Patch(ctx context.Context, req store.PatchRequest) (models.Document, error) {
	ctx, span := tracing.StartSpan(ctx, "document.Repository.Patch")
	defer span.End()

	log := r.logger.WithContext(ctx).WithField("document_id", req.ID)

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.WrapError(http.StatusInternalServerError, err)
	}
	defer tx.Rollback(ctx)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("id", req.ID))
	sb.ForUpdate()

	query, args := sb.Build()
	var existing row
	if err := tx.GetContext(ctx, &existing, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFound(req.ID)
		}
		log.WithError(err).Error("Failed to lock document for patch")
		tracing.RecordError(span, err)
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to read document %s: %v", req.ID, err)
	}

	if req.IfRevision != "" && existing.Rev != req.IfRevision {
		return nil, store.RevisionMismatch(req.ID)
	}

	data := existing.Data.Data
	if data == nil {
		data = map[string]any{}
	}
	for k, v := range req.Set {
		if !store.IsReserved(k) {
			data[k] = v
		}
	}
	existing.Data = database.JSONB[map[string]any]{Data: data}
	existing.Rev = store.NewRevision()
	existing.UpdatedAt = r.now().UTC()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(
		ub.Assign("data", existing.Data),
		ub.Assign("rev", existing.Rev),
		ub.Assign("updated_at", existing.UpdatedAt),
	)
	ub.Where(ub.Equal("id", req.ID))

	query, args = ub.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		log.WithError(err).Error("Failed to patch document")
		tracing.RecordError(span, err)
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to patch document %s: %v", req.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, httperror.WrapError(http.StatusInternalServerError, err)
	}

	return existing.toDocument(), nil
}

// Ping checks database connectivity for readiness probes.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// fieldExpr renders the text value at a dotted document path.
func fieldExpr(sb *sqlbuilder.SelectBuilder, path string) string {
	switch path {
	case models.FieldID:
		return "id"
	case models.FieldType:
		return "type"
	case models.FieldRev:
		return "rev"
	}
	return fmt.Sprintf("(data #>> %s)", sb.Var(pq.Array(strings.Split(path, "."))))
}

func fieldEquals(sb *sqlbuilder.SelectBuilder, path, value string) string {
	return fmt.Sprintf("%s = %s", fieldExpr(sb, path), sb.Var(value))
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
