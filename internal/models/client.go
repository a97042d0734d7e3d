// Package models provides data model definitions for the StableSync core.
package models

import "time"

// Client represents a customer of the business (a horse owner or yard).
type Client struct {
	ID         UUID       `db:"id" json:"id"`
	UserID     string     `db:"user_id" json:"user_id"`
	FirstName  string     `db:"first_name" json:"first_name"`
	LastName   string     `db:"last_name" json:"last_name"`
	Email      string     `db:"email" json:"email,omitempty"`
	Phone      string     `db:"phone" json:"phone,omitempty"`
	Address    string     `db:"address" json:"address,omitempty"`
	Notes      string     `db:"notes" json:"notes,omitempty"`
	SyncStatus SyncStatus `db:"sync_status" json:"sync_status"`
	CreatedAt  int64      `db:"created_at" json:"created_at"`
	UpdatedAt  int64      `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for Client.
func (Client) TableName() string {
	return "clients"
}

// Touch updates the UpdatedAt timestamp.
func (c *Client) Touch() {
	c.UpdatedAt = time.Now().Unix()
}

// UpdatedAtTime returns the UpdatedAt as time.Time.
func (c *Client) UpdatedAtTime() time.Time {
	return time.Unix(c.UpdatedAt, 0)
}
