package models

import (
	"time"
)

// MappingPrefix prefixes both the id and the type of mapping records.
const MappingPrefix = "map-"

// MappingID returns the mapping record id for a source id.
func MappingID(sourceID string) string {
	return MappingPrefix + sourceID
}

// MappingType returns the mapping record type for a source type.
func MappingType(sourceType string) string {
	return MappingPrefix + sourceType
}

// MappingRecord is the shadow record kept for every synchronized source. It is
// recomputed on each run and written with a full replace.
type MappingRecord struct {
	SourceID        string
	SourceType      string
	Status          string
	Tags            []string
	Summary         map[string]any
	ReferencedIDs   []string
	ReferencedTypes []string
	Relationships   []RelationshipEntry
	SyncedAt        time.Time
}

// ID returns the mapping record id.
func (m MappingRecord) ID() string {
	return MappingID(m.SourceID)
}

// Type returns the mapping record type.
func (m MappingRecord) Type() string {
	return MappingType(m.SourceType)
}

// ToDocument renders the mapping record as a store document. Empty optional
// sections are omitted.
func (m MappingRecord) ToDocument() Document {
	doc := Document{
		FieldID:      m.ID(),
		FieldType:    m.Type(),
		"source":     Reference(m.SourceID),
		"sourceId":   m.SourceID,
		"sourceType": m.SourceType,
	}
	if m.Status != "" {
		doc["status"] = m.Status
	}
	if len(m.Tags) > 0 {
		doc["tags"] = toAnySlice(m.Tags)
	}
	if len(m.Summary) > 0 {
		doc["summary"] = m.Summary
	}
	if len(m.ReferencedIDs) > 0 {
		doc["referencedIds"] = toAnySlice(m.ReferencedIDs)
	}
	if len(m.ReferencedTypes) > 0 {
		doc["referencedTypes"] = toAnySlice(m.ReferencedTypes)
	}
	if len(m.Relationships) > 0 {
		entries := make([]any, 0, len(m.Relationships))
		for _, entry := range m.Relationships {
			entries = append(entries, entry.ToMap())
		}
		doc["relationships"] = entries
	}
	if !m.SyncedAt.IsZero() {
		doc["syncedAt"] = m.SyncedAt.UTC().Format(time.RFC3339Nano)
	}
	return doc
}

// RelationshipsFromDocument reads the relationship entries of a stored mapping
// record.
func RelationshipsFromDocument(doc Document) []RelationshipEntry {
	raw, _ := doc["relationships"].([]any)
	entries := make([]RelationshipEntry, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if entry, ok := RelationshipEntryFromMap(m); ok {
			entries = append(entries, entry)
		}
	}
	return entries
}

func toAnySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
