// Package store defines the document store the synchronization engine reads
// from and writes to.
package store

import (
	"context"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Store is the document store consumed by the engine.
type Store interface {
	// FetchOne returns the first document matching the query, or nil when none does.
	FetchOne(ctx context.Context, q Query) (models.Document, error)
	// FetchMany returns every document matching the query.
	FetchMany(ctx context.Context, q Query) ([]models.Document, error)
	// Create inserts a new document. It fails with a conflict when the id is taken.
	Create(ctx context.Context, doc models.Document) (models.Document, error)
	// CreateOrReplace writes the document by id, replacing any existing one.
	CreateOrReplace(ctx context.Context, doc models.Document) (models.Document, error)
	// Patch merges fields into an existing document.
	Patch(ctx context.Context, req PatchRequest) (models.Document, error)
}

// Query selects documents. All set criteria must match.
type Query struct {
	// IDs restricts the result to these document ids.
	IDs []string
	// Type restricts the result to one document type.
	Type string
	// Where holds dot-path equality filters.
	Where map[string]any
	// Prefix filters on a string field prefix.
	Prefix *PrefixFilter
	// Fields projects the result onto these top-level fields. _id and _type are always returned.
	Fields []string
	// Limit caps the result size when positive.
	Limit int
}

// PrefixFilter matches documents whose field starts with Value.
type PrefixFilter struct {
	Field string
	Value string
}

// ByID returns a query for a single document.
func ByID(id string) Query {
	return Query{IDs: []string{id}, Limit: 1}
}

// PatchRequest sets top-level fields on an existing document.
type PatchRequest struct {
	ID  string
	Set map[string]any
	// IfRevision rejects the patch with a conflict when the stored revision differs.
	IfRevision string
}

// NewPatch starts a patch for a document id.
func NewPatch(id string) *PatchRequest {
	return &PatchRequest{ID: id, Set: make(map[string]any)}
}

// SetFields adds fields to the patch.
func (p *PatchRequest) SetFields(fields map[string]any) *PatchRequest {
	for k, v := range fields {
		p.Set[k] = v
	}
	return p
}

// IfRevisionID makes the patch conditional on the stored revision.
func (p *PatchRequest) IfRevisionID(rev string) *PatchRequest {
	p.IfRevision = rev
	return p
}

// Commit applies the patch to s.
func (p *PatchRequest) Commit(ctx context.Context, s Store) (models.Document, error) {
	return s.Patch(ctx, *p)
}
