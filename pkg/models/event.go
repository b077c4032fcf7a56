package models

import (
	"time"
)

// Operation is the kind of change that produced a ChangeEvent.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// ChangeEvent is delivered by the document store whenever a record changes.
type ChangeEvent struct {
	ID               string    `json:"id"`
	Type             string    `json:"type"`
	Operation        Operation `json:"operation" validate:"omitempty,oneof=create update delete"`
	PreviousSnapshot Document  `json:"previousSnapshot,omitempty"`
	CurrentSnapshot  Document  `json:"currentSnapshot" validate:"required"`
	Timestamp        time.Time `json:"timestamp"`
}

// Identity returns the id and type carried by the current snapshot, falling
// back to the envelope fields.
func (e ChangeEvent) Identity() (string, string) {
	id := e.CurrentSnapshot.ID()
	if id == "" {
		id = e.ID
	}
	docType := e.CurrentSnapshot.Type()
	if docType == "" {
		docType = e.Type
	}
	return id, docType
}
