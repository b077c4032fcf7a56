package upsert

import (
	"context"

	"github.com/Ramsey-B/fern/pkg/fingerprint"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/store"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// mappingExclusions are left out when comparing mapping records.
var mappingExclusions = fingerprint.Exclusions{
	"syncedAt":             true,
	models.FieldRev:        true,
	models.FieldCreatedAt:  true,
	models.FieldUpdatedAt:  true,
	"relationships.reason": true,
}

// MappingFingerprint hashes a mapping record. Relationship entries that
// reached their target compare equal whether they were created, updated or
// left unchanged, so a rerun over settled data hashes the same.
func MappingFingerprint(doc models.Document) string {
	normalized := doc.Clone()
	if entries, ok := normalized["relationships"].([]any); ok {
		for _, item := range entries {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if entry["action"] != string(models.ActionSkipped) {
				entry["action"] = "linked"
			} else {
				entry["skippedReason"] = entry["reason"]
			}
		}
	}
	return fingerprint.GenerateWithExclusions(normalized, mappingExclusions)
}

// FetchMapping reads the mapping record of a source id. Read failures are
// logged and reported as absent.
func (e *Engine) FetchMapping(ctx context.Context, sourceID string) models.Document {
	doc, err := e.store.FetchOne(ctx, store.ByID(models.MappingID(sourceID)))
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).WithField("source_id", sourceID).Warn("Failed to read mapping record")
		return nil
	}
	return doc
}

// ReplaceMapping writes doc over the stored mapping record unless existing
// already holds the same content. It reports whether a write happened.
func (e *Engine) ReplaceMapping(ctx context.Context, doc, existing models.Document) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "upsert.Engine.ReplaceMapping")
	defer span.End()

	if existing != nil && MappingFingerprint(existing) == MappingFingerprint(doc) {
		return false, nil
	}

	_, err := e.store.CreateOrReplace(ctx, doc)
	metrics.RecordStoreWrite("createOrReplace", err)
	if err != nil {
		tracing.RecordError(span, err)
		return false, err
	}

	e.logger.WithContext(ctx).WithField("mapping_id", doc.ID()).Debug("Replaced mapping record")
	return true, nil
}
