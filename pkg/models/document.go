package models

import (
	"encoding/json"
	"strings"
)

// DraftPrefix marks the draft variant of a published document id.
const DraftPrefix = "drafts."

// Reserved document fields.
const (
	FieldID        = "_id"
	FieldType      = "_type"
	FieldRev       = "_rev"
	FieldCreatedAt = "_createdAt"
	FieldUpdatedAt = "_updatedAt"
	FieldRef       = "_ref"
	FieldKey       = "_key"
)

// Document is a schemaless content record as stored in the document store.
type Document map[string]any

// ID returns the document id, or "" when absent.
func (d Document) ID() string {
	return d.String(FieldID)
}

// Type returns the document type, or "" when absent.
func (d Document) Type() string {
	return d.String(FieldType)
}

// Rev returns the store revision of the document.
func (d Document) Rev() string {
	return d.String(FieldRev)
}

// String returns the trimmed string value of a top level field.
func (d Document) String(field string) string {
	if d == nil {
		return ""
	}
	s, ok := d[field].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// Map returns a nested object field, or nil.
func (d Document) Map(field string) map[string]any {
	if d == nil {
		return nil
	}
	m, _ := d[field].(map[string]any)
	return m
}

// RefID returns the id held by a reference field ({"_ref": "..."}).
func (d Document) RefID(field string) string {
	ref := d.Map(field)
	if ref == nil {
		return ""
	}
	s, _ := ref[FieldRef].(string)
	return strings.TrimSpace(s)
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return Document(deepCopy(map[string]any(d)).(map[string]any))
}

// PublishedID strips the draft prefix from an id.
func PublishedID(id string) string {
	return strings.TrimPrefix(id, DraftPrefix)
}

// DraftID returns the draft variant of an id.
func DraftID(id string) string {
	return DraftPrefix + PublishedID(id)
}

// IsDraftID reports whether the id is a draft id.
func IsDraftID(id string) bool {
	return strings.HasPrefix(id, DraftPrefix)
}

// Reference builds a strong reference value.
func Reference(id string) map[string]any {
	return map[string]any{
		FieldType: "reference",
		FieldRef:  id,
	}
}

// ParseDocument decodes a JSON object into a Document.
func ParseDocument(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = deepCopy(item)
		}
		return out
	case Document:
		return Document(deepCopy(map[string]any(val)).(map[string]any))
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopy(item)
		}
		return out
	case []string:
		out := make([]string, len(val))
		copy(out, val)
		return out
	default:
		return val
	}
}
