package models

// Action is the outcome recorded for a single relationship write.
type Action string

const (
	ActionCreated   Action = "created"
	ActionUpdated   Action = "updated"
	ActionUnchanged Action = "unchanged"
	ActionSkipped   Action = "skipped"
)

// Reasons recorded on relationship entries.
const (
	ReasonReverseMaintained = "reverse relationship maintained"
	ReasonRevisionConflict  = "revision conflict"
)

// RelationshipEntry describes one relationship write performed during a run.
type RelationshipEntry struct {
	TargetID   string `json:"targetId"`
	TargetType string `json:"targetType"`
	Action     Action `json:"action"`
	Reason     string `json:"reason,omitempty"`
}

// IsSkipped reports whether the entry did not reach its target.
func (r RelationshipEntry) IsSkipped() bool {
	return r.Action == ActionSkipped
}

// ToMap converts the entry into its stored representation.
func (r RelationshipEntry) ToMap() map[string]any {
	m := map[string]any{
		"targetId":   r.TargetID,
		"targetType": r.TargetType,
		"action":     string(r.Action),
	}
	if r.Reason != "" {
		m["reason"] = r.Reason
	}
	return m
}

// RelationshipEntryFromMap reads an entry from its stored representation.
func RelationshipEntryFromMap(m map[string]any) (RelationshipEntry, bool) {
	targetID, _ := m["targetId"].(string)
	if targetID == "" {
		return RelationshipEntry{}, false
	}
	targetType, _ := m["targetType"].(string)
	action, _ := m["action"].(string)
	reason, _ := m["reason"].(string)
	return RelationshipEntry{
		TargetID:   targetID,
		TargetType: targetType,
		Action:     Action(action),
		Reason:     reason,
	}, true
}
