// Package models provides data model definitions for the StableSync core.
package models

import "time"

// Horse represents an animal under care, owned by a client.
type Horse struct {
	ID         UUID       `db:"id" json:"id"`
	UserID     string     `db:"user_id" json:"user_id"`
	ClientID   UUID       `db:"client_id" json:"client_id"`
	Name       string     `db:"name" json:"name"`
	Breed      string     `db:"breed" json:"breed,omitempty"`
	BirthYear  int        `db:"birth_year" json:"birth_year,omitempty"`
	Notes      string     `db:"notes" json:"notes,omitempty"`
	SyncStatus SyncStatus `db:"sync_status" json:"sync_status"`
	CreatedAt  int64      `db:"created_at" json:"created_at"`
	UpdatedAt  int64      `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for Horse.
func (Horse) TableName() string {
	return "horses"
}

// Touch updates the UpdatedAt timestamp.
func (h *Horse) Touch() {
	h.UpdatedAt = time.Now().Unix()
}
