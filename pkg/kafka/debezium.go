package kafka

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
)

// DebeziumEnvelope is the standard Debezium CDC message format
type DebeziumEnvelope struct {
	Schema  json.RawMessage `json:"schema,omitempty"`
	Payload DebeziumPayload `json:"payload"`
}

// DebeziumPayload contains the before/after state of a row
type DebeziumPayload struct {
	Before json.RawMessage `json:"before"`
	After  json.RawMessage `json:"after"`
	Source DebeziumSource  `json:"source"`
	Op     string          `json:"op"` // c=create, u=update, d=delete, r=read (snapshot)
	TsMs   int64           `json:"ts_ms"`
}

// DebeziumSource contains metadata about the source of the change
type DebeziumSource struct {
	Version   string `json:"version"`
	Connector string `json:"connector"`
	Name      string `json:"name"`
	TsMs      int64  `json:"ts_ms"`
	Snapshot  string `json:"snapshot,omitempty"`
	Db        string `json:"db"`
	Schema    string `json:"schema"`
	Table     string `json:"table"`
	TxId      int64  `json:"txId,omitempty"`
	Lsn       int64  `json:"lsn,omitempty"`
}

// IsCreate returns true if this is a create operation
func (p *DebeziumPayload) IsCreate() bool {
	return p.Op == "c" || p.Op == "r"
}

// IsUpdate returns true if this is an update operation
func (p *DebeziumPayload) IsUpdate() bool {
	return p.Op == "u"
}

// IsDelete returns true if this is a delete operation
func (p *DebeziumPayload) IsDelete() bool {
	return p.Op == "d"
}

// DocumentRow represents a row from the documents table
type DocumentRow struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Rev       string          `json:"rev"`
	Data      json.RawMessage `json:"data"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
}

// ToDocument rebuilds the stored document from the row columns.
func (r *DocumentRow) ToDocument() (models.Document, error) {
	doc := models.Document{}
	if len(r.Data) > 0 && string(r.Data) != "null" {
		if err := json.Unmarshal(r.Data, &doc); err != nil {
			return nil, fmt.Errorf("invalid document data for %s: %w", r.ID, err)
		}
	}

	doc[models.FieldID] = r.ID
	doc[models.FieldType] = r.Type
	if r.Rev != "" {
		doc[models.FieldRev] = r.Rev
	}
	if t := parseDebeziumTimestamp(r.CreatedAt); !t.IsZero() {
		doc[models.FieldCreatedAt] = t.UTC().Format(time.RFC3339Nano)
	}
	if t := parseDebeziumTimestamp(r.UpdatedAt); !t.IsZero() {
		doc[models.FieldUpdatedAt] = t.UTC().Format(time.RFC3339Nano)
	}
	return doc, nil
}

// parseDebeziumTimestamp parses a timestamp string from Debezium.
// Debezium can send timestamps in various formats depending on the connector config.
func parseDebeziumTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}

	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999Z",
		"2006-01-02T15:04:05.999999",
		"2006-01-02 15:04:05.999999",
		"2006-01-02 15:04:05",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}

	return time.Time{}
}

// ParseDebeziumMessage parses a raw Kafka message as a Debezium envelope.
// Envelopes produced without schemas carry the payload fields at the top level.
func ParseDebeziumMessage(data []byte) (*DebeziumEnvelope, error) {
	var envelope DebeziumEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, err
	}
	if envelope.Payload.Op == "" {
		if err := json.Unmarshal(data, &envelope.Payload); err != nil {
			return nil, err
		}
	}
	return &envelope, nil
}

func unwrapJSONStringJSON(raw json.RawMessage) (json.RawMessage, error) {
	raw = json.RawMessage(bytes.TrimSpace(raw))
	if len(raw) == 0 {
		return raw, nil
	}
	if raw[0] != '"' {
		return raw, nil // already object/array/etc.
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return json.RawMessage(s), nil
}

func parseDocumentRow(raw json.RawMessage) (*DocumentRow, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var row DocumentRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, err
	}

	unwrapped, err := unwrapJSONStringJSON(row.Data)
	if err != nil {
		return nil, err
	}
	row.Data = unwrapped

	return &row, nil
}

// ParseDocumentRows parses the Before and After payloads as document rows.
// Either may be nil.
func (p *DebeziumPayload) ParseDocumentRows() (before, after *DocumentRow, err error) {
	if before, err = parseDocumentRow(p.Before); err != nil {
		return nil, nil, fmt.Errorf("invalid before row: %w", err)
	}
	if after, err = parseDocumentRow(p.After); err != nil {
		return nil, nil, fmt.Errorf("invalid after row: %w", err)
	}
	return before, after, nil
}

// ChangeEvent converts the payload into a change event. Deletes carry the
// last known row as the current snapshot.
func (p *DebeziumPayload) ChangeEvent() (*models.ChangeEvent, error) {
	before, after, err := p.ParseDocumentRows()
	if err != nil {
		return nil, err
	}

	event := &models.ChangeEvent{Timestamp: p.Timestamp()}
	switch {
	case p.IsCreate():
		event.Operation = models.OperationCreate
	case p.IsUpdate():
		event.Operation = models.OperationUpdate
	case p.IsDelete():
		event.Operation = models.OperationDelete
	default:
		return nil, fmt.Errorf("unsupported debezium operation %q", p.Op)
	}

	if before != nil {
		if event.PreviousSnapshot, err = before.ToDocument(); err != nil {
			return nil, err
		}
		event.ID, event.Type = before.ID, before.Type
	}

	current := after
	if p.IsDelete() {
		current = before
	}
	if current != nil {
		if event.CurrentSnapshot, err = current.ToDocument(); err != nil {
			return nil, err
		}
		event.ID, event.Type = current.ID, current.Type
	}

	return event, nil
}

// Timestamp returns the event timestamp
func (p *DebeziumPayload) Timestamp() time.Time {
	if p.TsMs == 0 {
		return time.Now().UTC()
	}
	return time.UnixMilli(p.TsMs).UTC()
}
