package processor

import (
	"context"
	"sort"
	"sync"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/store"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// propagate mirrors each forward relationship into its target's mapping
// record. Targets are handled concurrently and failures are only logged.
func (p *Processor) propagate(ctx context.Context, sourceID, sourceType string, entries []models.RelationshipEntry) {
	var wg sync.WaitGroup
	for _, entry := range entries {
		if entry.IsSkipped() || entry.TargetID == "" {
			continue
		}
		wg.Add(1)
		go func(entry models.RelationshipEntry) {
			defer wg.Done()
			if err := p.reverse(ctx, sourceID, sourceType, entry); err != nil {
				metrics.RecordReverseFailure(entry.TargetType)
				p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
					"source_id": sourceID,
					"target_id": entry.TargetID,
				}).Warn("Failed to maintain reverse relationship")
			}
		}(entry)
	}
	wg.Wait()
}

func (p *Processor) reverse(ctx context.Context, sourceID, sourceType string, entry models.RelationshipEntry) error {
	ctx, span := tracing.StartSpan(ctx, "processor.reverse")
	defer span.End()

	target, err := p.store.FetchOne(ctx, store.ByID(entry.TargetID))
	if err != nil {
		tracing.RecordError(span, err)
		return err
	}
	if target == nil {
		p.logger.WithContext(ctx).WithField("target_id", entry.TargetID).Debug("Reverse target does not exist")
		return nil
	}

	targetType := target.Type()
	if targetType == "" {
		targetType = entry.TargetType
	}

	existing := p.engine.FetchMapping(ctx, entry.TargetID)
	back := models.RelationshipEntry{
		TargetID:   sourceID,
		TargetType: sourceType,
		Action:     models.ActionUpdated,
		Reason:     models.ReasonReverseMaintained,
	}

	entries := withReverse(models.RelationshipsFromDocument(existing), back)
	mapping := p.project(ctx, target, targetType).mapping(entry.TargetID, targetType, entries, p.clock())

	_, err = p.engine.ReplaceMapping(ctx, mapping.ToDocument(), existing)
	tracing.RecordError(span, err)
	return err
}

// reverseEntries returns the reverse entries other sources maintain on a
// mapping record, so a full replace keeps them.
func reverseEntries(mapping models.Document) []models.RelationshipEntry {
	if mapping == nil {
		return nil
	}
	var out []models.RelationshipEntry
	for _, entry := range models.RelationshipsFromDocument(mapping) {
		if entry.Reason == models.ReasonReverseMaintained {
			out = append(out, entry)
		}
	}
	return out
}

// withReverse puts back into entries, replacing an earlier reverse entry for
// the same source in place.
func withReverse(entries []models.RelationshipEntry, back models.RelationshipEntry) []models.RelationshipEntry {
	for i, entry := range entries {
		if entry.TargetID == back.TargetID && entry.Reason == models.ReasonReverseMaintained {
			entries[i] = back
			return entries
		}
	}
	return append(entries, back)
}

func sortStrings(values []string) {
	sort.Strings(values)
}
