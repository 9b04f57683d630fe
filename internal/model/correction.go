package model

import "time"

// EventType classifies a correction event.
type EventType string

const (
	EventFieldChange  EventType = "field_change"
	EventStatusChange EventType = "status_change"
	EventDeleted      EventType = "deleted"
)

// CorrectionEvent is an append-only audit record of a single change made
// to an offer during review. Events are never mutated or deleted.
type CorrectionEvent struct {
	ID           string    `json:"id"`
	PartitionKey string    `json:"partition_key"`
	RowKey       string    `json:"row_key"`
	Type         EventType `json:"type"`
	Field        string    `json:"field,omitempty"`
	OldValue     string    `json:"old_value,omitempty"`
	NewValue     string    `json:"new_value,omitempty"`
	Reviewer     string    `json:"reviewer"`
	Reason       string    `json:"reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
