package models

// Outcome summarizes what a synchronization run did.
type Outcome string

const (
	// OutcomeInvalid means the event lacked an id or type.
	OutcomeInvalid Outcome = "invalid"
	// OutcomeNoop means there was nothing to record for the source.
	OutcomeNoop Outcome = "noop"
	// OutcomeWritten means the mapping record was replaced.
	OutcomeWritten Outcome = "written"
	// OutcomeUnchanged means the mapping record already matched.
	OutcomeUnchanged Outcome = "unchanged"
	// OutcomeIgnored means the event kind is not synchronized (deletes, mapping records).
	OutcomeIgnored Outcome = "ignored"
)

// SyncResult is returned by a synchronization run.
type SyncResult struct {
	SourceID        string              `json:"sourceId,omitempty"`
	SourceType      string              `json:"sourceType,omitempty"`
	Outcome         Outcome             `json:"outcome"`
	Status          string              `json:"status,omitempty"`
	Tags            []string            `json:"tags,omitempty"`
	ReferencedTypes []string            `json:"referencedTypes,omitempty"`
	Summary         map[string]any      `json:"summary,omitempty"`
	Relationships   []RelationshipEntry `json:"relationships,omitempty"`
}
