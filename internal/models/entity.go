// Package models provides data model definitions for the StableSync core.
package models

import "database/sql/driver"

// UUID is a wrapper around string for UUID v4 type safety.
type UUID string

// Value implements driver.Valuer for UUID.
func (u UUID) Value() (driver.Value, error) {
	return string(u), nil
}

// Scan implements sql.Scanner for UUID.
func (u *UUID) Scan(value interface{}) error {
	if value == nil {
		*u = ""
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*u = UUID(v)
	case string:
		*u = UUID(v)
	}
	return nil
}

// String returns the string representation of the UUID.
func (u UUID) String() string {
	return string(u)
}

// EntityType identifies which domain table a record belongs to.
type EntityType string

const (
	EntityClient       EntityType = "client"
	EntityHorse        EntityType = "horse"
	EntityServicePrice EntityType = "service_price"
	EntityAppointment  EntityType = "appointment"
	EntityInvoice      EntityType = "invoice"
)

// SyncStatus marks whether a domain entity carries unpushed local changes.
// A pulled remote copy may only overwrite a local entity that is Synced.
type SyncStatus string

const (
	SyncStatusSynced        SyncStatus = "synced"
	SyncStatusPendingCreate SyncStatus = "pending_create"
	SyncStatusPendingUpdate SyncStatus = "pending_update"
)

// Pending reports whether the status represents an unacknowledged local edit.
func (s SyncStatus) Pending() bool {
	return s == SyncStatusPendingCreate || s == SyncStatusPendingUpdate
}
