package sync

import (
	"context"

	"github.com/stablebook/stablesync/internal/models"
)

// Session reports the currently authenticated user. An empty UserID
// means no session is active and sync must not run.
type Session interface {
	UserID() string
}

// StaticSession is a Session with a fixed user id, used by the CLI
// and by tests.
type StaticSession string

func (s StaticSession) UserID() string { return string(s) }

// ClientRemote is the server-side surface for client records.
type ClientRemote interface {
	FetchAll(ctx context.Context, userID string) ([]models.Client, error)
	Create(ctx context.Context, c *models.Client) error
	Update(ctx context.Context, c *models.Client) error
	Delete(ctx context.Context, id models.UUID) error
}

// HorseRemote is the server-side surface for horse records.
type HorseRemote interface {
	FetchAll(ctx context.Context, userID string) ([]models.Horse, error)
	Create(ctx context.Context, h *models.Horse) error
	Update(ctx context.Context, h *models.Horse) error
	Delete(ctx context.Context, id models.UUID) error
}

// ServicePriceRemote is the server-side surface for service price records.
type ServicePriceRemote interface {
	FetchAll(ctx context.Context, userID string) ([]models.ServicePrice, error)
	Create(ctx context.Context, p *models.ServicePrice) error
	Update(ctx context.Context, p *models.ServicePrice) error
	Delete(ctx context.Context, id models.UUID) error
}

// AppointmentRemote is the server-side surface for appointments.
// FetchHorses returns the horse line items attached to one appointment;
// it is called during pull when the parent record changes.
type AppointmentRemote interface {
	FetchAll(ctx context.Context, userID string) ([]models.Appointment, error)
	FetchHorses(ctx context.Context, appointmentID models.UUID) ([]models.AppointmentHorse, error)
	Create(ctx context.Context, a *models.Appointment) error
	Update(ctx context.Context, a *models.Appointment) error
	Delete(ctx context.Context, id models.UUID) error
}

// InvoiceRemote is the server-side surface for invoices.
type InvoiceRemote interface {
	FetchAll(ctx context.Context, userID string) ([]models.Invoice, error)
	FetchLines(ctx context.Context, invoiceID models.UUID) ([]models.InvoiceLine, error)
	Create(ctx context.Context, inv *models.Invoice) error
	Update(ctx context.Context, inv *models.Invoice) error
	Delete(ctx context.Context, id models.UUID) error
}

// Remotes bundles the per-entity remote surfaces the orchestrator
// pushes to and pulls from.
type Remotes struct {
	Clients       ClientRemote
	Horses        HorseRemote
	ServicePrices ServicePriceRemote
	Appointments  AppointmentRemote
	Invoices      InvoiceRemote
}
