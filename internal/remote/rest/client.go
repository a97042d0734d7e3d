// Package rest implements the remote collaborator surfaces against the
// hosted StableBook API over JSON/HTTP. Transport failures map to the
// network-unavailable code so the scheduler retries; HTTP error statuses
// map to the remote-rejected code so the failing item is absorbed.
package rest

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/stablebook/stablesync/internal/errors"
	"github.com/stablebook/stablesync/internal/models"
	syncpkg "github.com/stablebook/stablesync/internal/sync"
)

// Client is the shared HTTP client behind the per-entity surfaces.
type Client struct {
	http *resty.Client
}

// NewClient creates a Client for the API at baseURL, authenticating with
// the given bearer token.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	hc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if token != "" {
		hc.SetAuthToken(token)
	}
	return &Client{http: hc}
}

// Remotes returns the per-entity surfaces bundled for the orchestrator.
func (c *Client) Remotes() syncpkg.Remotes {
	return syncpkg.Remotes{
		Clients:       &clientAPI{c},
		Horses:        &horseAPI{c},
		ServicePrices: &priceAPI{c},
		Appointments:  &appointmentAPI{c},
		Invoices:      &invoiceAPI{c},
	}
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	res, err := c.http.R().SetContext(ctx).SetResult(out).Get(path)
	if err != nil {
		return errors.Wrap(errors.ErrNetworkUnavailable, "request to remote store failed", err)
	}
	if res.IsError() {
		return remoteError(res)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}) error {
	res, err := c.http.R().SetContext(ctx).SetBody(body).Post(path)
	if err != nil {
		return errors.Wrap(errors.ErrNetworkUnavailable, "request to remote store failed", err)
	}
	if res.IsError() {
		return remoteError(res)
	}
	return nil
}

func (c *Client) put(ctx context.Context, path string, body interface{}) error {
	res, err := c.http.R().SetContext(ctx).SetBody(body).Put(path)
	if err != nil {
		return errors.Wrap(errors.ErrNetworkUnavailable, "request to remote store failed", err)
	}
	if res.IsError() {
		return remoteError(res)
	}
	return nil
}

func (c *Client) delete(ctx context.Context, path string) error {
	res, err := c.http.R().SetContext(ctx).Delete(path)
	if err != nil {
		return errors.Wrap(errors.ErrNetworkUnavailable, "request to remote store failed", err)
	}
	if res.IsError() {
		return remoteError(res)
	}
	return nil
}

func remoteError(res *resty.Response) error {
	return errors.New(errors.ErrRemoteRejected,
		fmt.Sprintf("remote store returned %d for %s", res.StatusCode(), res.Request.URL))
}

type clientAPI struct{ c *Client }

func (a *clientAPI) FetchAll(ctx context.Context, userID string) ([]models.Client, error) {
	var out []models.Client
	err := a.c.get(ctx, fmt.Sprintf("/users/%s/clients", userID), &out)
	return out, err
}

func (a *clientAPI) Create(ctx context.Context, c *models.Client) error {
	return a.c.post(ctx, "/clients", c)
}

func (a *clientAPI) Update(ctx context.Context, c *models.Client) error {
	return a.c.put(ctx, fmt.Sprintf("/clients/%s", c.ID), c)
}

func (a *clientAPI) Delete(ctx context.Context, id models.UUID) error {
	return a.c.delete(ctx, fmt.Sprintf("/clients/%s", id))
}

type horseAPI struct{ c *Client }

func (a *horseAPI) FetchAll(ctx context.Context, userID string) ([]models.Horse, error) {
	var out []models.Horse
	err := a.c.get(ctx, fmt.Sprintf("/users/%s/horses", userID), &out)
	return out, err
}

func (a *horseAPI) Create(ctx context.Context, h *models.Horse) error {
	return a.c.post(ctx, "/horses", h)
}

func (a *horseAPI) Update(ctx context.Context, h *models.Horse) error {
	return a.c.put(ctx, fmt.Sprintf("/horses/%s", h.ID), h)
}

func (a *horseAPI) Delete(ctx context.Context, id models.UUID) error {
	return a.c.delete(ctx, fmt.Sprintf("/horses/%s", id))
}

type priceAPI struct{ c *Client }

func (a *priceAPI) FetchAll(ctx context.Context, userID string) ([]models.ServicePrice, error) {
	var out []models.ServicePrice
	err := a.c.get(ctx, fmt.Sprintf("/users/%s/service-prices", userID), &out)
	return out, err
}

func (a *priceAPI) Create(ctx context.Context, p *models.ServicePrice) error {
	return a.c.post(ctx, "/service-prices", p)
}

func (a *priceAPI) Update(ctx context.Context, p *models.ServicePrice) error {
	return a.c.put(ctx, fmt.Sprintf("/service-prices/%s", p.ID), p)
}

func (a *priceAPI) Delete(ctx context.Context, id models.UUID) error {
	return a.c.delete(ctx, fmt.Sprintf("/service-prices/%s", id))
}

type appointmentAPI struct{ c *Client }

func (a *appointmentAPI) FetchAll(ctx context.Context, userID string) ([]models.Appointment, error) {
	var out []models.Appointment
	err := a.c.get(ctx, fmt.Sprintf("/users/%s/appointments", userID), &out)
	return out, err
}

func (a *appointmentAPI) FetchHorses(ctx context.Context, appointmentID models.UUID) ([]models.AppointmentHorse, error) {
	var out []models.AppointmentHorse
	err := a.c.get(ctx, fmt.Sprintf("/appointments/%s/horses", appointmentID), &out)
	return out, err
}

func (a *appointmentAPI) Create(ctx context.Context, appt *models.Appointment) error {
	return a.c.post(ctx, "/appointments", appt)
}

func (a *appointmentAPI) Update(ctx context.Context, appt *models.Appointment) error {
	return a.c.put(ctx, fmt.Sprintf("/appointments/%s", appt.ID), appt)
}

func (a *appointmentAPI) Delete(ctx context.Context, id models.UUID) error {
	return a.c.delete(ctx, fmt.Sprintf("/appointments/%s", id))
}

type invoiceAPI struct{ c *Client }

func (a *invoiceAPI) FetchAll(ctx context.Context, userID string) ([]models.Invoice, error) {
	var out []models.Invoice
	err := a.c.get(ctx, fmt.Sprintf("/users/%s/invoices", userID), &out)
	return out, err
}

func (a *invoiceAPI) FetchLines(ctx context.Context, invoiceID models.UUID) ([]models.InvoiceLine, error) {
	var out []models.InvoiceLine
	err := a.c.get(ctx, fmt.Sprintf("/invoices/%s/lines", invoiceID), &out)
	return out, err
}

func (a *invoiceAPI) Create(ctx context.Context, inv *models.Invoice) error {
	return a.c.post(ctx, "/invoices", inv)
}

func (a *invoiceAPI) Update(ctx context.Context, inv *models.Invoice) error {
	return a.c.put(ctx, fmt.Sprintf("/invoices/%s", inv.ID), inv)
}

func (a *invoiceAPI) Delete(ctx context.Context, id models.UUID) error {
	return a.c.delete(ctx, fmt.Sprintf("/invoices/%s", id))
}
