// Package models provides data model definitions for the StableSync core.
package models

import "time"

// Appointment represents a scheduled visit to a client.
// Horses holds the per-horse service assignments; during a pull, an update
// to the parent replaces the full assignment set (no child diffing).
type Appointment struct {
	ID              UUID               `db:"id" json:"id"`
	UserID          string             `db:"user_id" json:"user_id"`
	ClientID        UUID               `db:"client_id" json:"client_id"`
	ScheduledAt     int64              `db:"scheduled_at" json:"scheduled_at"`
	DurationMinutes int                `db:"duration_minutes" json:"duration_minutes"`
	Location        string             `db:"location" json:"location,omitempty"`
	Status          string             `db:"status" json:"status"` // scheduled, completed, cancelled
	Notes           string             `db:"notes" json:"notes,omitempty"`
	SyncStatus      SyncStatus         `db:"sync_status" json:"sync_status"`
	CreatedAt       int64              `db:"created_at" json:"created_at"`
	UpdatedAt       int64              `db:"updated_at" json:"updated_at"`
	Horses          []AppointmentHorse `db:"-" json:"horses,omitempty"`
}

// AppointmentHorse links one horse and the service booked for it to an appointment.
type AppointmentHorse struct {
	AppointmentID UUID   `db:"appointment_id" json:"appointment_id"`
	HorseID       UUID   `db:"horse_id" json:"horse_id"`
	ServiceName   string `db:"service_name" json:"service_name"`
	PriceCents    int64  `db:"price_cents" json:"price_cents"`
}

// TableName returns the table name for Appointment.
func (Appointment) TableName() string {
	return "appointments"
}

// TableName returns the table name for AppointmentHorse.
func (AppointmentHorse) TableName() string {
	return "appointment_horses"
}

// Touch updates the UpdatedAt timestamp.
func (a *Appointment) Touch() {
	a.UpdatedAt = time.Now().Unix()
}

// ScheduledAtTime returns the ScheduledAt as time.Time.
func (a *Appointment) ScheduledAtTime() time.Time {
	return time.Unix(a.ScheduledAt, 0)
}
