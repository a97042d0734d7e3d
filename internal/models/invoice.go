// Package models provides data model definitions for the StableSync core.
package models

import "time"

// Invoice represents a bill issued to a client.
// Lines holds the invoice line items; during a pull, an update to the
// parent replaces the full line set (no child diffing).
type Invoice struct {
	ID            UUID          `db:"id" json:"id"`
	UserID        string        `db:"user_id" json:"user_id"`
	ClientID      UUID          `db:"client_id" json:"client_id"`
	AppointmentID UUID          `db:"appointment_id" json:"appointment_id,omitempty"`
	Number        string        `db:"number" json:"number"`
	Status        string        `db:"status" json:"status"` // draft, sent, paid, void
	TotalCents    int64         `db:"total_cents" json:"total_cents"`
	DueAt         int64         `db:"due_at" json:"due_at,omitempty"`
	SyncStatus    SyncStatus    `db:"sync_status" json:"sync_status"`
	CreatedAt     int64         `db:"created_at" json:"created_at"`
	UpdatedAt     int64         `db:"updated_at" json:"updated_at"`
	Lines         []InvoiceLine `db:"-" json:"lines,omitempty"`
}

// InvoiceLine is a single billed item on an invoice.
type InvoiceLine struct {
	InvoiceID      UUID   `db:"invoice_id" json:"invoice_id"`
	Position       int    `db:"position" json:"position"`
	Description    string `db:"description" json:"description"`
	Quantity       int    `db:"quantity" json:"quantity"`
	UnitPriceCents int64  `db:"unit_price_cents" json:"unit_price_cents"`
}

// TableName returns the table name for Invoice.
func (Invoice) TableName() string {
	return "invoices"
}

// TableName returns the table name for InvoiceLine.
func (InvoiceLine) TableName() string {
	return "invoice_lines"
}

// Touch updates the UpdatedAt timestamp.
func (i *Invoice) Touch() {
	i.UpdatedAt = time.Now().Unix()
}
