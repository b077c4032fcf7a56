// Package processor runs relationship synchronization for incoming change events.
package processor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"

	"github.com/Ramsey-B/fern/pkg/extractor"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizer"
	"github.com/Ramsey-B/fern/pkg/rules"
	"github.com/Ramsey-B/fern/pkg/store"
	"github.com/Ramsey-B/fern/pkg/summary"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/upsert"
)

// Publisher receives the result of every run that recorded relationships.
type Publisher interface {
	PublishSync(ctx context.Context, result *models.SyncResult) error
}

// Option configures a Processor.
type Option func(*Processor)

// WithClock sets the clock used to stamp mapping records.
func WithClock(clock func() time.Time) Option {
	return func(p *Processor) {
		p.clock = clock
	}
}

// WithPublishers adds result publishers.
func WithPublishers(publishers ...Publisher) Option {
	return func(p *Processor) {
		p.publishers = append(p.publishers, publishers...)
	}
}

// Processor synchronizes derived and mapping records for a source record.
type Processor struct {
	logger     ectologger.Logger
	store      store.Store
	engine     *upsert.Engine
	rules      *rules.Registry
	summaries  *summary.Builder
	validate   *validator.Validate
	clock      func() time.Time
	publishers []Publisher
}

// NewProcessor creates a Processor. All collaborators are injected; the
// processor keeps no state between runs.
func NewProcessor(
	logger ectologger.Logger,
	s store.Store,
	engine *upsert.Engine,
	registry *rules.Registry,
	summaries *summary.Builder,
	opts ...Option,
) *Processor {
	p := &Processor{
		logger:    logger,
		store:     s,
		engine:    engine,
		rules:     registry,
		summaries: summaries,
		validate:  validator.New(),
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs one synchronization for a change event. Failures of individual
// relationship writes are recorded on the mapping record and never returned.
// An error is returned only when the mapping record itself could not be written.
func (p *Processor) Process(ctx context.Context, event models.ChangeEvent) (*models.SyncResult, error) {
	ctx, span := tracing.StartSpan(ctx, "processor.Process")
	defer span.End()

	started := time.Now()
	rawID, sourceType := event.Identity()
	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"source_id":   rawID,
		"source_type": sourceType,
		"operation":   event.Operation,
	})

	result, err := p.process(ctx, event, rawID, sourceType, log)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	metrics.RecordSyncRun(sourceType, string(result.Outcome), time.Since(started).Seconds())
	return result, nil
}

func (p *Processor) process(ctx context.Context, event models.ChangeEvent, rawID, sourceType string, log ectologger.Logger) (*models.SyncResult, error) {
	if event.Operation == models.OperationDelete {
		log.Debug("Delete events are not synchronized, ignoring")
		return &models.SyncResult{SourceID: rawID, SourceType: sourceType, Outcome: models.OutcomeIgnored}, nil
	}
	if rawID == "" || sourceType == "" || event.CurrentSnapshot == nil {
		log.Warn("Change event is missing a document id or type, skipping")
		return &models.SyncResult{Outcome: models.OutcomeInvalid}, nil
	}
	if err := p.validate.Struct(event); err != nil {
		log.WithError(err).Warn("Change event failed validation, skipping")
		return &models.SyncResult{SourceID: rawID, SourceType: sourceType, Outcome: models.OutcomeInvalid}, nil
	}
	if strings.HasPrefix(sourceType, models.MappingPrefix) {
		log.Debug("Mapping records are not synchronized, ignoring")
		return &models.SyncResult{SourceID: rawID, SourceType: sourceType, Outcome: models.OutcomeIgnored}, nil
	}

	source := event.CurrentSnapshot
	sourceID := models.PublishedID(rawID)
	view := p.project(ctx, source, sourceType)

	result := &models.SyncResult{
		SourceID:        sourceID,
		SourceType:      sourceType,
		Status:          view.canonical.Status,
		Tags:            view.canonical.Tags,
		ReferencedTypes: view.referencedTypes,
		Summary:         view.summary,
	}

	var forward []models.RelationshipEntry
	if rule, ok := p.rules.For(sourceType); ok {
		entry := p.applyRule(ctx, rule, source, rawID, sourceID, view.canonical, log)
		metrics.RecordRelationship(sourceType, entry.TargetType, string(entry.Action))
		forward = append(forward, entry)
	}
	result.Relationships = forward

	existing := p.engine.FetchMapping(ctx, sourceID)
	entries := append(append([]models.RelationshipEntry{}, forward...), reverseEntries(existing)...)

	if len(entries) == 0 && view.summary == nil && len(view.referencedTypes) == 0 {
		log.Debug("Nothing to record for source")
		result.Outcome = models.OutcomeNoop
		return result, nil
	}

	mapping := view.mapping(sourceID, sourceType, entries, p.clock())
	written, err := p.engine.ReplaceMapping(ctx, mapping.ToDocument(), existing)
	if err != nil {
		log.WithError(err).Error("Failed to write mapping record")
		return nil, fmt.Errorf("failed to write mapping record for %s: %w", sourceID, err)
	}
	result.Outcome = models.OutcomeUnchanged
	if written {
		result.Outcome = models.OutcomeWritten
	}

	p.propagate(ctx, sourceID, sourceType, forward)
	p.publish(ctx, result, log)

	log.WithFields(map[string]any{
		"outcome":       result.Outcome,
		"relationships": len(forward),
	}).Info("Synchronized source record")

	return result, nil
}

// applyRule evaluates a rule and upserts its target. Every failure is turned
// into a skipped entry.
func (p *Processor) applyRule(
	ctx context.Context,
	rule rules.Rule,
	source models.Document,
	rawID, sourceID string,
	canonical normalizer.Canonical,
	log ectologger.Logger,
) models.RelationshipEntry {
	ctx, span := tracing.StartSpan(ctx, "processor.applyRule")
	defer span.End()

	decision := rule.Evaluate(source, sourceID, canonical)
	if !decision.Triggered {
		return models.RelationshipEntry{
			TargetType: rule.TargetType(),
			Action:     models.ActionSkipped,
			Reason:     decision.Reason,
		}
	}

	target := decision.Target
	existing := p.engine.FetchTarget(ctx, target.ID)
	upserted, err := p.engine.UpsertDerived(ctx, target, existing)
	if err != nil {
		log.WithError(err).WithField("target_id", target.ID).Warn("Failed to upsert derived record")
		return models.RelationshipEntry{
			TargetID:   target.ID,
			TargetType: target.Type,
			Action:     models.ActionSkipped,
			Reason:     failureReason(err),
		}
	}

	if decision.BackReference != "" {
		ids := []string{sourceID, models.DraftID(sourceID)}
		if rawID != sourceID && rawID != models.DraftID(sourceID) {
			ids = append(ids, rawID)
		}
		p.engine.LinkSource(ctx, ids, decision.BackReference, target.ID)
	}

	return models.RelationshipEntry{
		TargetID:   target.ID,
		TargetType: target.Type,
		Action:     upserted.Action,
	}
}

func failureReason(err error) string {
	if store.IsConflict(err) {
		return models.ReasonRevisionConflict + ": " + err.Error()
	}
	return err.Error()
}

// view is the recomputed projection of a record.
type view struct {
	canonical       normalizer.Canonical
	referencedIDs   []string
	referencedTypes []string
	summary         map[string]any
}

func (v view) mapping(sourceID, sourceType string, entries []models.RelationshipEntry, syncedAt time.Time) models.MappingRecord {
	return models.MappingRecord{
		SourceID:        sourceID,
		SourceType:      sourceType,
		Status:          v.canonical.Status,
		Tags:            v.canonical.Tags,
		Summary:         v.summary,
		ReferencedIDs:   v.referencedIDs,
		ReferencedTypes: v.referencedTypes,
		Relationships:   entries,
		SyncedAt:        syncedAt,
	}
}

func (p *Processor) project(ctx context.Context, doc models.Document, docType string) view {
	refs := extractor.References(doc)
	return view{
		canonical:       normalizer.Normalize(doc),
		referencedIDs:   refs,
		referencedTypes: p.resolveTypes(ctx, refs),
		summary:         p.summaries.Build(docType, doc),
	}
}

// resolveTypes fetches the type of every referenced id in one query and
// returns the sorted distinct types. Lookup failures yield no types.
func (p *Processor) resolveTypes(ctx context.Context, ids []string) []string {
	if len(ids) == 0 {
		return nil
	}

	docs, err := p.store.FetchMany(ctx, store.Query{IDs: ids, Fields: []string{models.FieldID}})
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Warn("Failed to resolve referenced documents")
		return nil
	}

	seen := make(map[string]bool)
	types := make([]string, 0, len(docs))
	for _, doc := range docs {
		docType := doc.Type()
		if docType == "" || seen[docType] {
			continue
		}
		seen[docType] = true
		types = append(types, docType)
	}
	sortStrings(types)
	return types
}

func (p *Processor) publish(ctx context.Context, result *models.SyncResult, log ectologger.Logger) {
	if len(result.Relationships) == 0 {
		return
	}
	for _, publisher := range p.publishers {
		if err := publisher.PublishSync(ctx, result); err != nil {
			log.WithError(err).Warn("Failed to publish sync result")
		}
	}
}
