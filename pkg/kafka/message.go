package kafka

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/fern/pkg/models"
)

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	// Trace context (extracted from Kafka headers)
	TraceParent string
	TraceState  string

	// Parsed content. Event is nil for tombstones.
	Event *models.ChangeEvent
}

// NewIncomingMessage copies a fetched Kafka message.
func NewIncomingMessage(msg kafka.Message) *IncomingMessage {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}

	return &IncomingMessage{
		Key:         string(msg.Key),
		Value:       msg.Value,
		Headers:     headers,
		Partition:   msg.Partition,
		Offset:      msg.Offset,
		Timestamp:   msg.Time,
		Topic:       msg.Topic,
		TraceParent: headers["traceparent"],
		TraceState:  headers["tracestate"],
	}
}

// Parse decodes the message value into a change event. Both plain change
// events and Debezium envelopes of the documents table are accepted.
func (m *IncomingMessage) Parse() error {
	event, err := DecodeEvent(m.Value)
	if err != nil {
		return err
	}
	m.Event = event
	return nil
}

// DecodeEvent decodes a plain change event, a bare document or a Debezium
// envelope. Tombstones decode to a nil event.
func DecodeEvent(data []byte) (*models.ChangeEvent, error) {
	value := bytes.TrimSpace(data)
	if len(value) == 0 || string(value) == "null" {
		// Debezium tombstone following a delete.
		return nil, nil
	}

	if isDebezium(value) {
		envelope, err := ParseDebeziumMessage(value)
		if err != nil {
			return nil, fmt.Errorf("invalid debezium envelope: %w", err)
		}
		return envelope.Payload.ChangeEvent()
	}

	return ParseChangeEvent(value)
}

// IsDebezium reports whether the value looks like a Debezium envelope.
func (m *IncomingMessage) IsDebezium() bool {
	return isDebezium(m.Value)
}

func isDebezium(value []byte) bool {
	var probe struct {
		Payload *struct {
			Op string `json:"op"`
		} `json:"payload"`
		Op *string `json:"op"`
	}
	if err := json.Unmarshal(value, &probe); err != nil {
		return false
	}
	return (probe.Payload != nil && probe.Payload.Op != "") || probe.Op != nil
}

// ParseChangeEvent decodes a plain change event. A bare document body, as
// sent by document store webhooks, becomes an update event for that document.
func ParseChangeEvent(data []byte) (*models.ChangeEvent, error) {
	var event models.ChangeEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("invalid change event: %w", err)
	}
	if event.CurrentSnapshot == nil {
		doc, err := models.ParseDocument(data)
		if err == nil && doc.ID() != "" {
			event = models.ChangeEvent{
				ID:              doc.ID(),
				Type:            doc.Type(),
				Operation:       models.OperationUpdate,
				CurrentSnapshot: doc,
			}
		}
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return &event, nil
}

// GetDocumentID returns the id of the changed document.
func (m *IncomingMessage) GetDocumentID() string {
	if m.Event != nil {
		id, _ := m.Event.Identity()
		return id
	}
	return m.Key
}
