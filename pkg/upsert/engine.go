// Package upsert creates and enriches derived records and replaces mapping
// records without issuing redundant writes.
package upsert

import (
	"context"
	"sort"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/rules"
	"github.com/Ramsey-B/fern/pkg/store"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Result describes a derived record upsert.
type Result struct {
	Action  models.Action
	Applied map[string]any
	// Document is the stored target after the write, or the existing target when unchanged.
	Document models.Document
}

// Engine applies upserts against a store.
type Engine struct {
	store         store.Store
	logger        ectologger.Logger
	revisionCheck bool
}

// NewEngine creates an Engine. With revisionCheck set, patches are rejected
// when the target changed since it was read.
func NewEngine(s store.Store, logger ectologger.Logger, revisionCheck bool) *Engine {
	return &Engine{
		store:         s,
		logger:        logger,
		revisionCheck: revisionCheck,
	}
}

// FetchTarget reads a derived record. Read failures are logged and reported
// as absent, so the caller falls through to the create path.
func (e *Engine) FetchTarget(ctx context.Context, id string) models.Document {
	doc, err := e.store.FetchOne(ctx, store.ByID(id))
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).WithField("target_id", id).Warn("Failed to look up derived record, treating as absent")
		return nil
	}
	return doc
}

// UpsertDerived creates target when existing is nil, otherwise patches the
// fields that changed. An empty patch returns ActionUnchanged without writing.
func (e *Engine) UpsertDerived(ctx context.Context, target rules.Target, existing models.Document) (Result, error) {
	ctx, span := tracing.StartSpan(ctx, "upsert.Engine.UpsertDerived")
	defer span.End()

	if existing == nil {
		result, err := e.create(ctx, target)
		if err == nil || !store.IsConflict(err) {
			tracing.RecordError(span, err)
			return result, err
		}
		// Someone created the target between our read and write.
		existing = e.FetchTarget(ctx, target.ID)
		if existing == nil {
			tracing.RecordError(span, err)
			return Result{}, err
		}
	}

	patch := Diff(target.Fields, existing)
	if len(patch) == 0 {
		return Result{Action: models.ActionUnchanged, Document: existing}, nil
	}

	req := store.NewPatch(target.ID).SetFields(patch)
	if e.revisionCheck {
		req.IfRevisionID(existing.Rev())
	}

	updated, err := req.Commit(ctx, e.store)
	metrics.RecordStoreWrite("patch", err)
	if err != nil {
		tracing.RecordError(span, err)
		return Result{}, err
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"target_id":   target.ID,
		"target_type": target.Type,
		"fields":      fieldNames(patch),
	}).Debug("Patched derived record")

	return Result{Action: models.ActionUpdated, Applied: patch, Document: updated}, nil
}

func (e *Engine) create(ctx context.Context, target rules.Target) (Result, error) {
	doc := models.Document{}
	for k, v := range target.CreateFields {
		doc[k] = v
	}
	for k, v := range target.Fields {
		doc[k] = v
	}
	doc[models.FieldID] = target.ID
	doc[models.FieldType] = target.Type

	var created models.Document
	write := func(extra map[string]any) error {
		for k, v := range extra {
			if _, set := doc[k]; !set {
				doc[k] = v
			}
		}
		var err error
		created, err = e.store.Create(ctx, doc)
		metrics.RecordStoreWrite("create", err)
		return err
	}

	var err error
	if target.OnCreate != nil {
		err = target.OnCreate(ctx, write)
	} else {
		err = write(nil)
	}
	if err != nil {
		return Result{}, err
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"target_id":   target.ID,
		"target_type": target.Type,
	}).Info("Created derived record")

	applied := make(map[string]any, len(doc))
	for k, v := range doc {
		if k != models.FieldID && k != models.FieldType {
			applied[k] = v
		}
	}
	return Result{Action: models.ActionCreated, Applied: applied, Document: created}, nil
}

// LinkSource sets a reference field on each of the given source ids. Ids that
// do not exist and fields already pointing at targetID are left alone. It
// returns the number of documents patched.
func (e *Engine) LinkSource(ctx context.Context, sourceIDs []string, field, targetID string) int {
	ctx, span := tracing.StartSpan(ctx, "upsert.Engine.LinkSource")
	defer span.End()

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"field":     field,
		"target_id": targetID,
	})

	linked := 0
	for _, id := range sourceIDs {
		doc, err := e.store.FetchOne(ctx, store.ByID(id))
		if err != nil {
			log.WithError(err).WithField("source_id", id).Warn("Failed to read source for back-reference")
			continue
		}
		if doc == nil || models.PublishedID(doc.RefID(field)) == targetID {
			continue
		}

		req := store.NewPatch(id).SetFields(map[string]any{field: models.Reference(targetID)})
		if e.revisionCheck {
			req.IfRevisionID(doc.Rev())
		}
		_, err = req.Commit(ctx, e.store)
		metrics.RecordStoreWrite("patch", err)
		if err != nil {
			log.WithError(err).WithField("source_id", id).Warn("Failed to set back-reference")
			continue
		}
		linked++
	}
	return linked
}

func fieldNames(fields map[string]any) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
