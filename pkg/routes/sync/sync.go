// Package sync exposes the synchronization engine over HTTP for document
// store webhooks and for reading mapping records.
package sync

import (
	"context"
	"io"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/store"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const maxBodyBytes = 4 << 20

// Syncer runs one synchronization for a change event.
type Syncer interface {
	Process(ctx context.Context, event models.ChangeEvent) (*models.SyncResult, error)
}

type Handler struct {
	syncer Syncer
	store  store.Store
	logger ectologger.Logger
}

func NewHandler(syncer Syncer, s store.Store, logger ectologger.Logger) *Handler {
	return &Handler{syncer: syncer, store: s, logger: logger}
}

// Register mounts the routes on an /api/v1 group.
func (h *Handler) Register(g *echo.Group) {
	g.POST("/sync", h.Sync)
	g.GET("/mappings/:id", h.GetMapping)
}

// Sync accepts a change event, a bare document or a Debezium envelope and
// returns the synchronization result.
func (h *Handler) Sync(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "sync_handler.Sync")
	defer span.End()

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes))
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}

	event, err := kafka.DecodeEvent(body)
	if err != nil {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid change event: %s", err.Error())
	}
	if event == nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "request body is empty")
	}

	result, err := h.syncer.Process(ctx, *event)
	if err != nil {
		tracing.RecordError(span, err)
		h.logger.WithContext(ctx).WithError(err).Error("Synchronization failed")
		return httperror.WrapError(http.StatusInternalServerError, err)
	}

	status := http.StatusOK
	if result.Outcome == models.OutcomeInvalid {
		status = http.StatusUnprocessableEntity
	}
	return c.JSON(status, result)
}

// GetMapping returns the mapping record of a source id. Draft ids resolve to
// the published mapping.
func (h *Handler) GetMapping(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "sync_handler.GetMapping")
	defer span.End()

	sourceID := models.PublishedID(c.Param("id"))
	mapping, err := h.store.FetchOne(ctx, store.ByID(models.MappingID(sourceID)))
	if err != nil {
		tracing.RecordError(span, err)
		return httperror.WrapError(http.StatusInternalServerError, err)
	}
	if mapping == nil {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "mapping for '%s' not found", sourceID)
	}
	return c.JSON(http.StatusOK, mapping)
}
