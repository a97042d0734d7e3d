// Package models provides data model definitions for the StableSync core.
package models

import (
	"encoding/json"
	"time"
)

// Operation is the kind of local write a mutation record describes.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// MutationStatus is the lifecycle state of a queued mutation.
type MutationStatus string

const (
	MutationStatusPending   MutationStatus = "pending"
	MutationStatusCompleted MutationStatus = "completed"
	MutationStatusFailed    MutationStatus = "failed"
)

// MutationRecord is one durable queued local write awaiting push to the
// remote store. IDs are assigned by sqlite on insert and are monotonic,
// which makes them usable as coalescing targets.
type MutationRecord struct {
	ID           int64           `db:"id" json:"id"`
	EntityType   EntityType      `db:"entity_type" json:"entity_type"`
	EntityID     UUID            `db:"entity_id" json:"entity_id"`
	Operation    Operation       `db:"operation" json:"operation"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Priority     int             `db:"priority" json:"priority"`
	Status       MutationStatus  `db:"status" json:"status"`
	RetryCount   int             `db:"retry_count" json:"retry_count"`
	ErrorMessage string          `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    int64           `db:"created_at" json:"created_at"`
	UpdatedAt    int64           `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for MutationRecord.
func (MutationRecord) TableName() string {
	return "mutation_queue"
}

// PriorityFor derives the queue priority from the operation. Creates flush
// before updates and deletes so parents exist remotely before dependents
// reference them; ordering only, never correctness.
func PriorityFor(op Operation) int {
	switch op {
	case OperationCreate:
		return 1
	case OperationUpdate:
		return 2
	default:
		return 3
	}
}

// CreatedAtTime returns the CreatedAt as time.Time.
func (m *MutationRecord) CreatedAtTime() time.Time {
	return time.Unix(m.CreatedAt, 0)
}
