package graph

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// edgeNamespace scopes deterministic edge ids.
var edgeNamespace = uuid.MustParse("6f1d3c2e-8a4b-5c7d-9e0f-1a2b3c4d5e6f")

const mergeEdgesCypher = `
	UNWIND $edges AS edge
	MERGE (from:Document {id: edge.from_id})
	SET from.type = edge.from_type
	MERGE (to:Document {id: edge.to_id})
	SET to.type = edge.to_type
	MERGE (from)-[r:DERIVES {id: edge.id}]->(to)
	SET r.action = edge.action, r.synced_at = edge.synced_at
`

// EdgeWriter runs write transactions.
type EdgeWriter interface {
	ExecuteWrite(ctx context.Context, work func(tx neo4j.ManagedTransaction) (any, error)) (any, error)
}

// Projector mirrors sync results as DERIVES edges between Document nodes.
type Projector struct {
	writer EdgeWriter
	logger ectologger.Logger
	clock  func() time.Time
}

// NewProjector creates a Projector.
func NewProjector(writer EdgeWriter, logger ectologger.Logger) *Projector {
	return &Projector{
		writer: writer,
		logger: logger,
		clock:  time.Now,
	}
}

// EdgeID returns the deterministic id of the edge between two documents.
func EdgeID(sourceID, targetID string) string {
	return uuid.NewSHA1(edgeNamespace, []byte(sourceID+"->"+targetID)).String()
}

// Edges returns the edge parameters for every non-skipped relationship.
func Edges(result *models.SyncResult, syncedAt time.Time) []map[string]any {
	var edges []map[string]any
	for _, entry := range result.Relationships {
		if entry.IsSkipped() || entry.TargetID == "" {
			continue
		}
		edges = append(edges, map[string]any{
			"id":        EdgeID(result.SourceID, entry.TargetID),
			"from_id":   result.SourceID,
			"from_type": result.SourceType,
			"to_id":     entry.TargetID,
			"to_type":   entry.TargetType,
			"action":    string(entry.Action),
			"synced_at": syncedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	return edges
}

// PublishSync merges the result's edges in a single transaction.
func (p *Projector) PublishSync(ctx context.Context, result *models.SyncResult) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.PublishSync")
	defer span.End()

	edges := Edges(result, p.clock())
	if len(edges) == 0 {
		return nil
	}

	_, err := p.writer.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, mergeEdgesCypher, map[string]any{"edges": toAnySlice(edges)})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithField("source_id", result.SourceID).Error("Failed to project relationships to graph")
		tracing.RecordError(span, err)
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"source_id": result.SourceID,
		"edges":     len(edges),
	}).Debug("Projected relationships to graph")
	return nil
}

func toAnySlice(edges []map[string]any) []any {
	out := make([]any, len(edges))
	for i, edge := range edges {
		out[i] = edge
	}
	return out
}
