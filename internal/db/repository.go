// Package db provides CRUD repository operations for the StableSync data models.
package db

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/stablebook/stablesync/internal/models"
	"github.com/stablebook/stablesync/internal/uuid"
)

// Repository provides CRUD operations for all models.
// Frequently used queries go through a prepared statement cache.
type Repository struct {
	db *sql.DB

	// Statements are prepared on first use and cached for reuse
	stmtCache sync.Map // map[string]*sql.Stmt
}

// NewRepository creates a new Repository instance.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// PrepareStmt gets or creates a prepared statement from cache.
func (r *Repository) PrepareStmt(query string) (*sql.Stmt, error) {
	if stmt, ok := r.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := r.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	actual, loaded := r.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		// Another goroutine already prepared this, close our duplicate
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}

	return stmt, nil
}

// Close closes all cached prepared statements.
func (r *Repository) Close() error {
	var firstErr error
	r.stmtCache.Range(func(key, value interface{}) bool {
		stmt := value.(*sql.Stmt)
		if err := stmt.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}

// WithTx runs fn inside a single transaction, rolling back on error.
func (r *Repository) WithTx(fn func(tx *sql.Tx) error) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// entityTables maps entity types to their table names. Sync-status updates
// go through this map so table names are never built from caller input.
var entityTables = map[models.EntityType]string{
	models.EntityClient:       models.Client{}.TableName(),
	models.EntityHorse:        models.Horse{}.TableName(),
	models.EntityServicePrice: models.ServicePrice{}.TableName(),
	models.EntityAppointment:  models.Appointment{}.TableName(),
	models.EntityInvoice:      models.Invoice{}.TableName(),
}

// SetSyncStatus updates the sync_status column of one entity row.
func (r *Repository) SetSyncStatus(entityType models.EntityType, id models.UUID, status models.SyncStatus) error {
	return r.setSyncStatus(r.db, entityType, id, status)
}

// SetSyncStatusTx is the transactional variant of SetSyncStatus.
func (r *Repository) SetSyncStatusTx(tx *sql.Tx, entityType models.EntityType, id models.UUID, status models.SyncStatus) error {
	return r.setSyncStatus(tx, entityType, id, status)
}

type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

func (r *Repository) setSyncStatus(e execer, entityType models.EntityType, id models.UUID, status models.SyncStatus) error {
	table, ok := entityTables[entityType]
	if !ok {
		return fmt.Errorf("unknown entity type: %s", entityType)
	}
	query := fmt.Sprintf("UPDATE %s SET sync_status = ? WHERE id = ?", table)
	result, err := e.Exec(query, status, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// =====================================================
// Client Operations
// =====================================================

// InsertClient inserts a client row. The caller controls id, timestamps
// and sync status; pulled rows arrive with remote values already set.
func (r *Repository) InsertClient(c *models.Client) error {
	if c.ID == "" {
		c.ID = models.UUID(uuid.New())
	}
	now := time.Now().Unix()
	if c.CreatedAt == 0 {
		c.CreatedAt = now
	}
	if c.UpdatedAt == 0 {
		c.UpdatedAt = now
	}

	query := `
	INSERT INTO clients (id, user_id, first_name, last_name, email, phone, address, notes,
		sync_status, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, c.ID, c.UserID, c.FirstName, c.LastName, c.Email, c.Phone,
		c.Address, c.Notes, c.SyncStatus, c.CreatedAt, c.UpdatedAt)
	return err
}

// GetClient retrieves a client by ID.
func (r *Repository) GetClient(id models.UUID) (*models.Client, error) {
	query := `
	SELECT id, user_id, first_name, last_name, email, phone, address, notes,
		   sync_status, created_at, updated_at
	FROM clients WHERE id = ?
	`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}

	var c models.Client
	err = stmt.QueryRow(id).Scan(
		&c.ID, &c.UserID, &c.FirstName, &c.LastName, &c.Email, &c.Phone,
		&c.Address, &c.Notes, &c.SyncStatus, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListClients returns all clients for a user ordered by last name.
func (r *Repository) ListClients(userID string) ([]*models.Client, error) {
	query := `
	SELECT id, user_id, first_name, last_name, email, phone, address, notes,
		   sync_status, created_at, updated_at
	FROM clients WHERE user_id = ? ORDER BY last_name, first_name
	`
	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []*models.Client
	for rows.Next() {
		var c models.Client
		err := rows.Scan(&c.ID, &c.UserID, &c.FirstName, &c.LastName, &c.Email, &c.Phone,
			&c.Address, &c.Notes, &c.SyncStatus, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return nil, err
		}
		clients = append(clients, &c)
	}
	return clients, rows.Err()
}

// UpdateClient updates an existing client row in place.
func (r *Repository) UpdateClient(c *models.Client) error {
	query := `
	UPDATE clients
	SET first_name = ?, last_name = ?, email = ?, phone = ?, address = ?, notes = ?,
		sync_status = ?, updated_at = ?
	WHERE id = ?
	`
	result, err := r.db.Exec(query, c.FirstName, c.LastName, c.Email, c.Phone, c.Address,
		c.Notes, c.SyncStatus, c.UpdatedAt, c.ID)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteClient removes a client row.
func (r *Repository) DeleteClient(id models.UUID) error {
	_, err := r.db.Exec(`DELETE FROM clients WHERE id = ?`, id)
	return err
}

// =====================================================
// Horse Operations
// =====================================================

// InsertHorse inserts a horse row.
func (r *Repository) InsertHorse(h *models.Horse) error {
	if h.ID == "" {
		h.ID = models.UUID(uuid.New())
	}
	now := time.Now().Unix()
	if h.CreatedAt == 0 {
		h.CreatedAt = now
	}
	if h.UpdatedAt == 0 {
		h.UpdatedAt = now
	}

	query := `
	INSERT INTO horses (id, user_id, client_id, name, breed, birth_year, notes,
		sync_status, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, h.ID, h.UserID, h.ClientID, h.Name, h.Breed, h.BirthYear,
		h.Notes, h.SyncStatus, h.CreatedAt, h.UpdatedAt)
	return err
}

// GetHorse retrieves a horse by ID.
func (r *Repository) GetHorse(id models.UUID) (*models.Horse, error) {
	query := `
	SELECT id, user_id, client_id, name, breed, birth_year, notes,
		   sync_status, created_at, updated_at
	FROM horses WHERE id = ?
	`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}

	var h models.Horse
	err = stmt.QueryRow(id).Scan(
		&h.ID, &h.UserID, &h.ClientID, &h.Name, &h.Breed, &h.BirthYear,
		&h.Notes, &h.SyncStatus, &h.CreatedAt, &h.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// UpdateHorse updates an existing horse row in place.
func (r *Repository) UpdateHorse(h *models.Horse) error {
	query := `
	UPDATE horses
	SET client_id = ?, name = ?, breed = ?, birth_year = ?, notes = ?,
		sync_status = ?, updated_at = ?
	WHERE id = ?
	`
	result, err := r.db.Exec(query, h.ClientID, h.Name, h.Breed, h.BirthYear, h.Notes,
		h.SyncStatus, h.UpdatedAt, h.ID)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteHorse removes a horse row.
func (r *Repository) DeleteHorse(id models.UUID) error {
	_, err := r.db.Exec(`DELETE FROM horses WHERE id = ?`, id)
	return err
}

// =====================================================
// ServicePrice Operations
// =====================================================

// InsertServicePrice inserts a service price row.
func (r *Repository) InsertServicePrice(s *models.ServicePrice) error {
	if s.ID == "" {
		s.ID = models.UUID(uuid.New())
	}
	now := time.Now().Unix()
	if s.CreatedAt == 0 {
		s.CreatedAt = now
	}
	if s.UpdatedAt == 0 {
		s.UpdatedAt = now
	}

	query := `
	INSERT INTO service_prices (id, user_id, name, price_cents, duration_minutes,
		sync_status, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, s.ID, s.UserID, s.Name, s.PriceCents, s.DurationMinutes,
		s.SyncStatus, s.CreatedAt, s.UpdatedAt)
	return err
}

// GetServicePrice retrieves a service price by ID.
func (r *Repository) GetServicePrice(id models.UUID) (*models.ServicePrice, error) {
	query := `
	SELECT id, user_id, name, price_cents, duration_minutes, sync_status, created_at, updated_at
	FROM service_prices WHERE id = ?
	`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}

	var s models.ServicePrice
	err = stmt.QueryRow(id).Scan(
		&s.ID, &s.UserID, &s.Name, &s.PriceCents, &s.DurationMinutes,
		&s.SyncStatus, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateServicePrice updates an existing service price row in place.
func (r *Repository) UpdateServicePrice(s *models.ServicePrice) error {
	query := `
	UPDATE service_prices
	SET name = ?, price_cents = ?, duration_minutes = ?, sync_status = ?, updated_at = ?
	WHERE id = ?
	`
	result, err := r.db.Exec(query, s.Name, s.PriceCents, s.DurationMinutes,
		s.SyncStatus, s.UpdatedAt, s.ID)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteServicePrice removes a service price row.
func (r *Repository) DeleteServicePrice(id models.UUID) error {
	_, err := r.db.Exec(`DELETE FROM service_prices WHERE id = ?`, id)
	return err
}

// =====================================================
// Appointment Operations
// =====================================================

// InsertAppointment inserts an appointment row and its horse assignments.
func (r *Repository) InsertAppointment(a *models.Appointment) error {
	if a.ID == "" {
		a.ID = models.UUID(uuid.New())
	}
	now := time.Now().Unix()
	if a.CreatedAt == 0 {
		a.CreatedAt = now
	}
	if a.UpdatedAt == 0 {
		a.UpdatedAt = now
	}

	return r.WithTx(func(tx *sql.Tx) error {
		query := `
		INSERT INTO appointments (id, user_id, client_id, scheduled_at, duration_minutes,
			location, status, notes, sync_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err := tx.Exec(query, a.ID, a.UserID, a.ClientID, a.ScheduledAt, a.DurationMinutes,
			a.Location, a.Status, a.Notes, a.SyncStatus, a.CreatedAt, a.UpdatedAt)
		if err != nil {
			return err
		}
		return replaceAppointmentHorses(tx, a.ID, a.Horses)
	})
}

// GetAppointment retrieves an appointment by ID, including horse assignments.
func (r *Repository) GetAppointment(id models.UUID) (*models.Appointment, error) {
	query := `
	SELECT id, user_id, client_id, scheduled_at, duration_minutes, location, status, notes,
		   sync_status, created_at, updated_at
	FROM appointments WHERE id = ?
	`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}

	var a models.Appointment
	err = stmt.QueryRow(id).Scan(
		&a.ID, &a.UserID, &a.ClientID, &a.ScheduledAt, &a.DurationMinutes,
		&a.Location, &a.Status, &a.Notes, &a.SyncStatus, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	horses, err := r.GetAppointmentHorses(id)
	if err != nil {
		return nil, err
	}
	a.Horses = horses
	return &a, nil
}

// GetAppointmentHorses returns the horse assignments for one appointment.
func (r *Repository) GetAppointmentHorses(appointmentID models.UUID) ([]models.AppointmentHorse, error) {
	query := `
	SELECT appointment_id, horse_id, service_name, price_cents
	FROM appointment_horses WHERE appointment_id = ?
	`
	rows, err := r.db.Query(query, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var horses []models.AppointmentHorse
	for rows.Next() {
		var ah models.AppointmentHorse
		if err := rows.Scan(&ah.AppointmentID, &ah.HorseID, &ah.ServiceName, &ah.PriceCents); err != nil {
			return nil, err
		}
		horses = append(horses, ah)
	}
	return horses, rows.Err()
}

// UpdateAppointment updates an appointment row and replaces its horse
// assignments wholesale. Child rows are never diffed.
func (r *Repository) UpdateAppointment(a *models.Appointment) error {
	return r.WithTx(func(tx *sql.Tx) error {
		query := `
		UPDATE appointments
		SET client_id = ?, scheduled_at = ?, duration_minutes = ?, location = ?, status = ?,
			notes = ?, sync_status = ?, updated_at = ?
		WHERE id = ?
		`
		result, err := tx.Exec(query, a.ClientID, a.ScheduledAt, a.DurationMinutes, a.Location,
			a.Status, a.Notes, a.SyncStatus, a.UpdatedAt, a.ID)
		if err != nil {
			return err
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return sql.ErrNoRows
		}
		return replaceAppointmentHorses(tx, a.ID, a.Horses)
	})
}

// DeleteAppointment removes an appointment row; assignments cascade.
func (r *Repository) DeleteAppointment(id models.UUID) error {
	_, err := r.db.Exec(`DELETE FROM appointments WHERE id = ?`, id)
	return err
}

func replaceAppointmentHorses(tx *sql.Tx, appointmentID models.UUID, horses []models.AppointmentHorse) error {
	if _, err := tx.Exec(`DELETE FROM appointment_horses WHERE appointment_id = ?`, appointmentID); err != nil {
		return err
	}
	for _, ah := range horses {
		_, err := tx.Exec(
			`INSERT INTO appointment_horses (appointment_id, horse_id, service_name, price_cents) VALUES (?, ?, ?, ?)`,
			appointmentID, ah.HorseID, ah.ServiceName, ah.PriceCents,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// =====================================================
// Invoice Operations
// =====================================================

// InsertInvoice inserts an invoice row and its line items.
func (r *Repository) InsertInvoice(inv *models.Invoice) error {
	if inv.ID == "" {
		inv.ID = models.UUID(uuid.New())
	}
	now := time.Now().Unix()
	if inv.CreatedAt == 0 {
		inv.CreatedAt = now
	}
	if inv.UpdatedAt == 0 {
		inv.UpdatedAt = now
	}

	return r.WithTx(func(tx *sql.Tx) error {
		query := `
		INSERT INTO invoices (id, user_id, client_id, appointment_id, number, status,
			total_cents, due_at, sync_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err := tx.Exec(query, inv.ID, inv.UserID, inv.ClientID, inv.AppointmentID,
			inv.Number, inv.Status, inv.TotalCents, inv.DueAt, inv.SyncStatus,
			inv.CreatedAt, inv.UpdatedAt)
		if err != nil {
			return err
		}
		return replaceInvoiceLines(tx, inv.ID, inv.Lines)
	})
}

// GetInvoice retrieves an invoice by ID, including line items.
func (r *Repository) GetInvoice(id models.UUID) (*models.Invoice, error) {
	query := `
	SELECT id, user_id, client_id, appointment_id, number, status, total_cents, due_at,
		   sync_status, created_at, updated_at
	FROM invoices WHERE id = ?
	`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}

	var inv models.Invoice
	err = stmt.QueryRow(id).Scan(
		&inv.ID, &inv.UserID, &inv.ClientID, &inv.AppointmentID, &inv.Number, &inv.Status,
		&inv.TotalCents, &inv.DueAt, &inv.SyncStatus, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	lines, err := r.GetInvoiceLines(id)
	if err != nil {
		return nil, err
	}
	inv.Lines = lines
	return &inv, nil
}

// GetInvoiceLines returns the line items for one invoice in position order.
func (r *Repository) GetInvoiceLines(invoiceID models.UUID) ([]models.InvoiceLine, error) {
	query := `
	SELECT invoice_id, position, description, quantity, unit_price_cents
	FROM invoice_lines WHERE invoice_id = ? ORDER BY position
	`
	rows, err := r.db.Query(query, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []models.InvoiceLine
	for rows.Next() {
		var l models.InvoiceLine
		if err := rows.Scan(&l.InvoiceID, &l.Position, &l.Description, &l.Quantity, &l.UnitPriceCents); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// UpdateInvoice updates an invoice row and replaces its line items wholesale.
func (r *Repository) UpdateInvoice(inv *models.Invoice) error {
	return r.WithTx(func(tx *sql.Tx) error {
		query := `
		UPDATE invoices
		SET client_id = ?, appointment_id = ?, number = ?, status = ?, total_cents = ?,
			due_at = ?, sync_status = ?, updated_at = ?
		WHERE id = ?
		`
		result, err := tx.Exec(query, inv.ClientID, inv.AppointmentID, inv.Number, inv.Status,
			inv.TotalCents, inv.DueAt, inv.SyncStatus, inv.UpdatedAt, inv.ID)
		if err != nil {
			return err
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return sql.ErrNoRows
		}
		return replaceInvoiceLines(tx, inv.ID, inv.Lines)
	})
}

// DeleteInvoice removes an invoice row; line items cascade.
func (r *Repository) DeleteInvoice(id models.UUID) error {
	_, err := r.db.Exec(`DELETE FROM invoices WHERE id = ?`, id)
	return err
}

func replaceInvoiceLines(tx *sql.Tx, invoiceID models.UUID, lines []models.InvoiceLine) error {
	if _, err := tx.Exec(`DELETE FROM invoice_lines WHERE invoice_id = ?`, invoiceID); err != nil {
		return err
	}
	for i, l := range lines {
		position := l.Position
		if position == 0 {
			position = i + 1
		}
		_, err := tx.Exec(
			`INSERT INTO invoice_lines (invoice_id, position, description, quantity, unit_price_cents) VALUES (?, ?, ?, ?, ?)`,
			invoiceID, position, l.Description, l.Quantity, l.UnitPriceCents,
		)
		if err != nil {
			return err
		}
	}
	return nil
}
