package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func TestMemoryStore_CreateAndFetch(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	created, err := s.Create(ctx, models.Document{"_id": "invoice-1", "_type": "invoice", "invoiceNumber": "INV-000001"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.Rev())
	assert.NotEmpty(t, created.String(models.FieldCreatedAt))

	_, err = s.Create(ctx, models.Document{"_id": "invoice-1", "_type": "invoice"})
	assert.True(t, IsConflict(err))

	found, err := s.FetchOne(ctx, ByID("invoice-1"))
	require.NoError(t, err)
	assert.Equal(t, "INV-000001", found.String("invoiceNumber"))

	missing, err := s.FetchOne(ctx, ByID("invoice-2"))
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = s.Create(ctx, models.Document{"_type": "invoice"})
	assert.Error(t, err)
}

func TestMemoryStore_Query(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.Seed(
		models.Document{"_id": "invoice-b", "_type": "invoice", "invoiceNumber": "INV-000002", "orderRef": models.Reference("order-1")},
		models.Document{"_id": "invoice-a", "_type": "invoice", "invoiceNumber": "INV-000001"},
		models.Document{"_id": "invoice-c", "_type": "invoice", "invoiceNumber": "A100"},
		models.Document{"_id": "order-1", "_type": "order", "total": 10.0},
	)

	docs, err := s.FetchMany(ctx, Query{Type: "invoice", Prefix: &PrefixFilter{Field: "invoiceNumber", Value: "INV-"}, Fields: []string{"invoiceNumber"}})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "invoice-a", docs[0].ID())
	assert.Equal(t, models.Document{"_id": "invoice-b", "_type": "invoice", "invoiceNumber": "INV-000002"}, docs[1])

	docs, err = s.FetchMany(ctx, Query{Where: map[string]any{"orderRef._ref": "order-1"}})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "invoice-b", docs[0].ID())

	docs, err = s.FetchMany(ctx, Query{Where: map[string]any{"total": 10}})
	require.NoError(t, err)
	require.Len(t, docs, 1)

	docs, err = s.FetchMany(ctx, Query{IDs: []string{"order-1", "missing", "invoice-c"}, Fields: []string{}})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "order-1", docs[0].ID())
}

func TestMemoryStore_Patch(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.Seed(models.Document{"_id": "label-1", "_type": "shippingLabel", "trackingNumber": "1Z"})
	rev := s.Get("label-1").Rev()

	_, err := s.Patch(ctx, PatchRequest{ID: "label-1", Set: map[string]any{"carrier": "ups"}, IfRevision: "stale"})
	assert.True(t, IsConflict(err))

	patched, err := NewPatch("label-1").SetFields(map[string]any{"carrier": "ups", "_id": "ignored"}).IfRevisionID(rev).Commit(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, "label-1", patched.ID())
	assert.Equal(t, "ups", patched.String("carrier"))
	assert.Equal(t, "1Z", patched.String("trackingNumber"))
	assert.NotEqual(t, rev, patched.Rev())

	_, err = s.Patch(ctx, PatchRequest{ID: "label-2", Set: map[string]any{"carrier": "ups"}})
	assert.True(t, IsNotFound(err))
}

func TestMemoryStore_CopiesDocuments(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	doc := models.Document{"_id": "p-1", "_type": "product", "tags": []any{"a"}}

	_, err := s.CreateOrReplace(ctx, doc)
	require.NoError(t, err)
	doc["tags"].([]any)[0] = "mutated"

	assert.Equal(t, []any{"a"}, s.Get("p-1")["tags"])
}
