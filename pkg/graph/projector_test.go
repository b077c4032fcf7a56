package graph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

type failingWriter struct {
	calls int
}

func (w *failingWriter) ExecuteWrite(_ context.Context, _ func(tx neo4j.ManagedTransaction) (any, error)) (any, error) {
	w.calls++
	return nil, errors.New("graph unavailable")
}

func TestEdgeID(t *testing.T) {
	assert.Equal(t, EdgeID("order-1", "invoice-A100"), EdgeID("order-1", "invoice-A100"))
	assert.NotEqual(t, EdgeID("order-1", "invoice-A100"), EdgeID("invoice-A100", "order-1"))
}

func TestEdges(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	result := &models.SyncResult{
		SourceID:   "order-1",
		SourceType: "order",
		Relationships: []models.RelationshipEntry{
			{TargetID: "invoice-A100", TargetType: "invoice", Action: models.ActionUpdated},
			{TargetID: "shippingLabel-A100", TargetType: "shippingLabel", Action: models.ActionSkipped, Reason: "boom"},
		},
	}

	edges := Edges(result, now)

	require.Len(t, edges, 1)
	assert.Equal(t, "order-1", edges[0]["from_id"])
	assert.Equal(t, "invoice", edges[0]["to_type"])
	assert.Equal(t, "updated", edges[0]["action"])
	assert.Equal(t, "2024-05-01T12:00:00Z", edges[0]["synced_at"])
}

func TestProjector_PublishSync(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

	t.Run("no edges skips the write", func(t *testing.T) {
		writer := &failingWriter{}
		err := NewProjector(writer, logger).PublishSync(context.Background(), &models.SyncResult{SourceID: "order-1"})

		require.NoError(t, err)
		assert.Equal(t, 0, writer.calls)
	})

	t.Run("write errors are returned", func(t *testing.T) {
		writer := &failingWriter{}
		err := NewProjector(writer, logger).PublishSync(context.Background(), &models.SyncResult{
			SourceID:      "order-1",
			Relationships: []models.RelationshipEntry{{TargetID: "invoice-1", Action: models.ActionCreated}},
		})

		assert.EqualError(t, err, "graph unavailable")
		assert.Equal(t, 1, writer.calls)
	})
}
