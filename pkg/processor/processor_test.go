package processor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/rules"
	"github.com/Ramsey-B/fern/pkg/store"
	"github.com/Ramsey-B/fern/pkg/summary"
	"github.com/Ramsey-B/fern/pkg/upsert"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// recordingStore counts writes and fails writes to documents of failType.
type recordingStore struct {
	store.Store
	mu       sync.Mutex
	writes   []string
	failType string
}

func (s *recordingStore) record(op, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, op+":"+id)
}

func (s *recordingStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

func (s *recordingStore) Create(ctx context.Context, doc models.Document) (models.Document, error) {
	s.record("create", doc.ID())
	if s.failType != "" && doc.Type() == s.failType {
		return nil, errors.New("label service unavailable")
	}
	return s.Store.Create(ctx, doc)
}

func (s *recordingStore) CreateOrReplace(ctx context.Context, doc models.Document) (models.Document, error) {
	s.record("replace", doc.ID())
	return s.Store.CreateOrReplace(ctx, doc)
}

func (s *recordingStore) Patch(ctx context.Context, req store.PatchRequest) (models.Document, error) {
	s.record("patch", req.ID)
	return s.Store.Patch(ctx, req)
}

type capturingPublisher struct {
	mu      sync.Mutex
	results []*models.SyncResult
}

func (p *capturingPublisher) PublishSync(_ context.Context, result *models.SyncResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results = append(p.results, result)
	return nil
}

type harness struct {
	mem       *store.MemoryStore
	store     *recordingStore
	processor *Processor
	publisher *capturingPublisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	mem := store.NewMemoryStore()
	recording := &recordingStore{Store: mem}
	numberer := rules.NewNumberer(recording, nil, "INV", 0, logger)
	publisher := &capturingPublisher{}

	p := NewProcessor(
		logger,
		recording,
		upsert.NewEngine(recording, logger, true),
		rules.DefaultRegistry(rules.DefaultPolicy(), numberer),
		summary.NewBuilder(),
		WithClock(func() time.Time { return fixedNow }),
		WithPublishers(publisher),
	)

	return &harness{mem: mem, store: recording, processor: p, publisher: publisher}
}

// seed stores doc and returns the change event the store would emit for it.
func (h *harness) seed(doc models.Document) models.ChangeEvent {
	h.mem.Seed(doc)
	return models.ChangeEvent{
		ID:              doc.ID(),
		Type:            doc.Type(),
		Operation:       models.OperationUpdate,
		CurrentSnapshot: doc,
		Timestamp:       fixedNow,
	}
}

func paidOrder() models.Document {
	return models.Document{
		"_id":          "order-1",
		"_type":        "order",
		"orderNumber":  "A100",
		"status":       "paid",
		"customerName": "Jane Doe",
		"totalAmount":  120.0,
	}
}

func TestProcess_CreatesInvoiceAndMapping(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	result, err := h.processor.Process(ctx, h.seed(paidOrder()))
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeWritten, result.Outcome)
	require.Len(t, result.Relationships, 1)
	assert.Equal(t, models.RelationshipEntry{TargetID: "invoice-A100", TargetType: "invoice", Action: models.ActionCreated}, result.Relationships[0])

	invoice := h.mem.Get("invoice-A100")
	require.NotNil(t, invoice)
	assert.Equal(t, "A100", invoice.String("invoiceNumber"))
	assert.Equal(t, "paid", invoice.String("status"))
	assert.Equal(t, "order-1", invoice.RefID("orderRef"))

	assert.Equal(t, "invoice-A100", h.mem.Get("order-1").RefID("invoiceRef"))

	mapping := h.mem.Get("map-order-1")
	require.NotNil(t, mapping)
	assert.Equal(t, "map-order", mapping.Type())
	assert.Equal(t, "order-1", mapping.RefID("source"))
	assert.Equal(t, "paid", mapping.String("status"))
	assert.Equal(t, fixedNow.Format(time.RFC3339Nano), mapping.String("syncedAt"))
	assert.Equal(t, []models.RelationshipEntry{result.Relationships[0]}, models.RelationshipsFromDocument(mapping))

	reverse := h.mem.Get("map-invoice-A100")
	require.NotNil(t, reverse)
	assert.Equal(t, "map-invoice", reverse.Type())
	assert.Equal(t, []models.RelationshipEntry{{
		TargetID:   "order-1",
		TargetType: "order",
		Action:     models.ActionUpdated,
		Reason:     "reverse relationship maintained",
	}}, models.RelationshipsFromDocument(reverse))
	assert.Equal(t, []any{"order"}, reverse["referencedTypes"])

	require.Len(t, h.publisher.results, 1)
}

func TestProcess_Idempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	event := h.seed(paidOrder())

	_, err := h.processor.Process(ctx, event)
	require.NoError(t, err)
	firstRunWrites := h.store.writeCount()
	require.Greater(t, firstRunWrites, 0)

	result, err := h.processor.Process(ctx, event)
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeUnchanged, result.Outcome)
	for _, entry := range result.Relationships {
		assert.Equal(t, models.ActionUnchanged, entry.Action)
	}
	assert.Equal(t, firstRunWrites, h.store.writeCount(), "second run wrote: %v", h.store.writes[firstRunWrites:])
}

func TestProcess_DeterministicInvoiceID(t *testing.T) {
	ctx := context.Background()

	for _, id := range []string{"order-1", "drafts.order-1", "order-xyz"} {
		h := newHarness(t)
		order := paidOrder()
		order["_id"] = id

		result, err := h.processor.Process(ctx, h.seed(order))
		require.NoError(t, err)
		require.Len(t, result.Relationships, 1)
		assert.Equal(t, "invoice-A100", result.Relationships[0].TargetID)
	}
}

func TestProcess_DraftSourceLinksBothVariants(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.mem.Seed(models.Document{"_id": "order-1", "_type": "order", "orderNumber": "A100"})

	order := paidOrder()
	order["_id"] = "drafts.order-1"
	result, err := h.processor.Process(ctx, h.seed(order))
	require.NoError(t, err)

	assert.Equal(t, "order-1", result.SourceID)
	assert.Equal(t, "invoice-A100", h.mem.Get("order-1").RefID("invoiceRef"))
	assert.Equal(t, "invoice-A100", h.mem.Get("drafts.order-1").RefID("invoiceRef"))
	assert.NotNil(t, h.mem.Get("map-order-1"))
	assert.Nil(t, h.mem.Get("map-drafts.order-1"))
}

func TestProcess_Gating(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	order := paidOrder()
	order["status"] = "pending"
	result, err := h.processor.Process(ctx, h.seed(order))
	require.NoError(t, err)

	require.Len(t, result.Relationships, 1)
	assert.Equal(t, models.ActionSkipped, result.Relationships[0].Action)
	assert.Equal(t, "Order not marked for invoicing", result.Relationships[0].Reason)
	assert.Nil(t, h.mem.Get("invoice-A100"))
	assert.Nil(t, h.mem.Get("order-1")["invoiceRef"])

	order["status"] = "paid"
	result, err = h.processor.Process(ctx, h.seed(order))
	require.NoError(t, err)
	assert.Equal(t, models.ActionCreated, result.Relationships[0].Action)
}

func TestProcess_GeneratedInvoiceNumber(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	for i := 1; i <= 4; i++ {
		number := rules.FormatNumber("INV", i)
		h.mem.Seed(models.Document{"_id": "invoice-" + number, "_type": "invoice", "invoiceNumber": number})
	}

	order := paidOrder()
	order["orderNumber"] = "#1005"
	result, err := h.processor.Process(ctx, h.seed(order))
	require.NoError(t, err)

	require.Equal(t, "invoice-order-1", result.Relationships[0].TargetID)
	assert.Equal(t, "INV-000005", h.mem.Get("invoice-order-1").String("invoiceNumber"))
}

func TestProcess_NonDestructivePatch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.mem.Seed(models.Document{
		"_id":            "shippingLabel-INV-000001",
		"_type":          "shippingLabel",
		"trackingNumber": "1Z999",
		"carrier":        "ups",
	})

	invoice := models.Document{
		"_id":             "invoice-1",
		"_type":           "invoice",
		"invoiceNumber":   "INV-000001",
		"status":          "paid",
		"shippingCarrier": "fedex",
	}
	result, err := h.processor.Process(ctx, h.seed(invoice))
	require.NoError(t, err)

	assert.Equal(t, models.ActionUpdated, result.Relationships[0].Action)
	label := h.mem.Get("shippingLabel-INV-000001")
	assert.Equal(t, "1Z999", label.String("trackingNumber"))
	assert.Equal(t, "fedex", label.String("carrier"))
	assert.Nil(t, label["weight"], "creation defaults must not be applied to an existing label")
}

func TestProcess_LabelDefaultsOnCreate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	invoice := models.Document{"_id": "invoice-1", "_type": "invoice", "invoiceNumber": "INV-000001", "tags": []any{"ship-now"}}
	_, err := h.processor.Process(ctx, h.seed(invoice))
	require.NoError(t, err)

	label := h.mem.Get("shippingLabel-INV-000001")
	require.NotNil(t, label)
	assert.Equal(t, rules.DefaultWeight, label["weight"])
	assert.Equal(t, rules.DefaultDimensions, label["dimensions"])
	assert.Equal(t, rules.DefaultShipTo, label["shipTo"])
	assert.Equal(t, "invoice-1", label.RefID("invoiceRef"))
}

func TestProcess_ReferencedTypes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.mem.Seed(
		models.Document{"_id": "customer-1", "_type": "customer"},
		models.Document{"_id": "customer-2", "_type": "customer"},
		models.Document{"_id": "product-1", "_type": "product"},
	)

	doc := models.Document{
		"_id":     "note-1",
		"_type":   "note",
		"product": models.Reference("product-1"),
		"people":  []any{models.Reference("customer-2"), models.Reference("customer-1"), models.Reference("missing")},
	}
	result, err := h.processor.Process(ctx, h.seed(doc))
	require.NoError(t, err)

	assert.Equal(t, []string{"customer", "product"}, result.ReferencedTypes)
	mapping := h.mem.Get("map-note-1")
	require.NotNil(t, mapping)
	assert.Equal(t, []any{"customer", "product"}, mapping["referencedTypes"])
	assert.Empty(t, result.Relationships)
}

func TestProcess_PartialFailureIsolation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.store.failType = "shippingLabel"

	invoice := models.Document{"_id": "invoice-1", "_type": "invoice", "invoiceNumber": "INV-000001", "status": "paid"}
	result, err := h.processor.Process(ctx, h.seed(invoice))
	require.NoError(t, err)

	require.Len(t, result.Relationships, 1)
	assert.Equal(t, models.ActionSkipped, result.Relationships[0].Action)
	assert.Equal(t, "label service unavailable", result.Relationships[0].Reason)
	assert.Equal(t, "shippingLabel-INV-000001", result.Relationships[0].TargetID)

	mapping := h.mem.Get("map-invoice-1")
	require.NotNil(t, mapping)
	assert.Equal(t, result.Relationships, models.RelationshipsFromDocument(mapping))
	assert.Nil(t, h.mem.Get("map-shippingLabel-INV-000001"))
}

func TestProcess_InvalidAndIgnored(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	tests := []struct {
		name     string
		event    models.ChangeEvent
		expected models.Outcome
	}{
		{"missing snapshot", models.ChangeEvent{ID: "order-1", Type: "order"}, models.OutcomeInvalid},
		{"missing id", models.ChangeEvent{CurrentSnapshot: models.Document{"_type": "order"}}, models.OutcomeInvalid},
		{"missing type", models.ChangeEvent{CurrentSnapshot: models.Document{"_id": "order-1"}}, models.OutcomeInvalid},
		{"bad operation", models.ChangeEvent{Operation: "merge", CurrentSnapshot: paidOrder()}, models.OutcomeInvalid},
		{"delete", models.ChangeEvent{Operation: models.OperationDelete, CurrentSnapshot: paidOrder()}, models.OutcomeIgnored},
		{"mapping record", models.ChangeEvent{CurrentSnapshot: models.Document{"_id": "map-order-1", "_type": "map-order"}}, models.OutcomeIgnored},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.processor.Process(ctx, tt.event)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result.Outcome)
		})
	}
	assert.Equal(t, 0, h.store.writeCount())
}

func TestProcess_Noop(t *testing.T) {
	h := newHarness(t)

	result, err := h.processor.Process(context.Background(), h.seed(models.Document{"_id": "customer-1", "_type": "customer", "email": "a@b.c"}))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeNoop, result.Outcome)
	assert.Equal(t, 0, h.store.writeCount())
}

func TestProcess_KeepsReverseEntriesOnReplace(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.processor.Process(ctx, h.seed(paidOrder()))
	require.NoError(t, err)

	// The invoice now syncs on its own and must keep the order's reverse entry.
	invoice := h.mem.Get("invoice-A100")
	_, err = h.processor.Process(ctx, h.seed(invoice))
	require.NoError(t, err)

	entries := models.RelationshipsFromDocument(h.mem.Get("map-invoice-A100"))
	require.Len(t, entries, 2)
	assert.Equal(t, "shippingLabel-A100", entries[0].TargetID)
	assert.Equal(t, "order-1", entries[1].TargetID)
	assert.Equal(t, models.ReasonReverseMaintained, entries[1].Reason)

	reverse := models.RelationshipsFromDocument(h.mem.Get("map-shippingLabel-A100"))
	require.Len(t, reverse, 1)
	assert.Equal(t, "invoice-A100", reverse[0].TargetID)
}

func TestHandleMessage(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	event := h.seed(paidOrder())

	require.NoError(t, h.processor.HandleMessage(ctx, &kafka.IncomingMessage{Event: &event}))
	assert.NotNil(t, h.mem.Get("map-order-1"))

	require.NoError(t, h.processor.HandleMessage(ctx, &kafka.IncomingMessage{Key: "order-1"}))
}
