// Package events emits relationship lifecycle events.
package events

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// EventTypeRelationshipSynced is emitted for every recorded relationship.
const EventTypeRelationshipSynced = "relationship.synced"

// RelationshipPublisher writes relationship events to a broker.
type RelationshipPublisher interface {
	PublishRelationshipEvents(ctx context.Context, events []*kafka.RelationshipEvent) error
}

// Emitter turns sync results into relationship events.
type Emitter struct {
	producer RelationshipPublisher
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer RelationshipPublisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// PublishSync emits one relationship.synced event per non-skipped relationship.
func (e *Emitter) PublishSync(ctx context.Context, result *models.SyncResult) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.PublishSync")
	defer span.End()

	batch := RelationshipEvents(result)
	if len(batch) == 0 {
		return nil
	}

	if err := e.producer.PublishRelationshipEvents(ctx, batch); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithField("source_id", result.SourceID).Error("Failed to emit relationship.synced events")
		tracing.RecordError(span, err)
		return err
	}

	return nil
}

// RelationshipEvents builds the events for a sync result.
func RelationshipEvents(result *models.SyncResult) []*kafka.RelationshipEvent {
	var out []*kafka.RelationshipEvent
	for _, entry := range result.Relationships {
		if entry.IsSkipped() || entry.TargetID == "" {
			continue
		}
		out = append(out, &kafka.RelationshipEvent{
			EventType:     EventTypeRelationshipSynced,
			SchemaVersion: SchemaVersion,
			SourceID:      result.SourceID,
			SourceType:    result.SourceType,
			TargetID:      entry.TargetID,
			TargetType:    entry.TargetType,
			Action:        string(entry.Action),
			Status:        result.Status,
			Tags:          result.Tags,
		})
	}
	return out
}
