package sync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/processor"
	"github.com/Ramsey-B/fern/pkg/rules"
	"github.com/Ramsey-B/fern/pkg/store"
	"github.com/Ramsey-B/fern/pkg/summary"
	"github.com/Ramsey-B/fern/pkg/upsert"
)

type failingSyncer struct{}

func (failingSyncer) Process(context.Context, models.ChangeEvent) (*models.SyncResult, error) {
	return nil, errors.New("store unavailable")
}

func newServer(t *testing.T, syncer Syncer, mem *store.MemoryStore) *echo.Echo {
	t.Helper()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

	if syncer == nil {
		syncer = processor.NewProcessor(
			logger,
			mem,
			upsert.NewEngine(mem, logger, true),
			rules.DefaultRegistry(rules.DefaultPolicy(), rules.NewNumberer(mem, nil, "INV", 0, logger)),
			summary.NewBuilder(),
			processor.WithClock(func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }),
		)
	}

	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(middleware.Context())
	NewHandler(syncer, mem, logger).Register(e.Group("/api/v1"))
	return e
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestSync_BareDocumentThenMapping(t *testing.T) {
	mem := store.NewMemoryStore()
	order := models.Document{
		"_id":         "order-1",
		"_type":       "order",
		"orderNumber": "A100",
		"status":      "paid",
	}
	mem.Seed(order)
	e := newServer(t, nil, mem)

	body, err := json.Marshal(order)
	require.NoError(t, err)

	rec := do(e, http.MethodPost, "/api/v1/sync", string(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result models.SyncResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, models.OutcomeWritten, result.Outcome)
	assert.Equal(t, "order-1", result.SourceID)

	rec = do(e, http.MethodGet, "/api/v1/mappings/drafts.order-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var mapping map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mapping))
	assert.Equal(t, "map-order-1", mapping["_id"])
	assert.Equal(t, "map-order", mapping["_type"])
}

func TestSync_ChangeEventEnvelope(t *testing.T) {
	mem := store.NewMemoryStore()
	product := models.Document{"_id": "product-1", "_type": "product", "title": "Blue Mug"}
	mem.Seed(product)
	e := newServer(t, nil, mem)

	body, err := json.Marshal(models.ChangeEvent{
		ID:              "product-1",
		Type:            "product",
		Operation:       models.OperationCreate,
		CurrentSnapshot: product,
	})
	require.NoError(t, err)

	rec := do(e, http.MethodPost, "/api/v1/sync", string(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotNil(t, mem.Get("map-product-1"))
}

func TestSync_Errors(t *testing.T) {
	tests := []struct {
		name   string
		syncer Syncer
		body   string
		status int
	}{
		{name: "malformed json", body: `{"_id":`, status: http.StatusBadRequest},
		{name: "empty body", body: ``, status: http.StatusBadRequest},
		{name: "missing identity", body: `{"operation":"update","currentSnapshot":{"title":"x"}}`, status: http.StatusUnprocessableEntity},
		{name: "processor failure", syncer: failingSyncer{}, body: `{"_id":"order-1","_type":"order"}`, status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newServer(t, tt.syncer, store.NewMemoryStore())
			rec := do(e, http.MethodPost, "/api/v1/sync", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestGetMapping_NotFound(t *testing.T) {
	e := newServer(t, nil, store.NewMemoryStore())

	rec := do(e, http.MethodGet, "/api/v1/mappings/order-9", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body middleware.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Message, "order-9")
}
