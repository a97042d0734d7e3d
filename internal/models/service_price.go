// Package models provides data model definitions for the StableSync core.
package models

import "time"

// ServicePrice represents a priced service the business offers
// (e.g. a full set of shoes, a trim, a dental check).
type ServicePrice struct {
	ID              UUID       `db:"id" json:"id"`
	UserID          string     `db:"user_id" json:"user_id"`
	Name            string     `db:"name" json:"name"`
	PriceCents      int64      `db:"price_cents" json:"price_cents"`
	DurationMinutes int        `db:"duration_minutes" json:"duration_minutes,omitempty"`
	SyncStatus      SyncStatus `db:"sync_status" json:"sync_status"`
	CreatedAt       int64      `db:"created_at" json:"created_at"`
	UpdatedAt       int64      `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for ServicePrice.
func (ServicePrice) TableName() string {
	return "service_prices"
}

// Touch updates the UpdatedAt timestamp.
func (s *ServicePrice) Touch() {
	s.UpdatedAt = time.Now().Unix()
}
