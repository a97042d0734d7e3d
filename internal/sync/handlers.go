package sync

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/stablebook/stablesync/internal/db"
	"github.com/stablebook/stablesync/internal/errors"
	"github.com/stablebook/stablesync/internal/logging"
	"github.com/stablebook/stablesync/internal/models"
	"github.com/stablebook/stablesync/internal/sync/conflict"
	"github.com/stablebook/stablesync/internal/uuid"
)

// entityHandler adapts one entity type to the push and pull phases.
// push sends a single queued mutation to the remote store; pull fetches
// the remote collection and reconciles it into the local database.
type entityHandler interface {
	push(ctx context.Context, rec *models.MutationRecord) error
	pull(ctx context.Context, userID string) (pulled, skipped int, err error)
}

// handlerBase carries the pieces every handler shares.
type handlerBase struct {
	repo     *db.Repository
	resolver *conflict.Resolver
}

func (b *handlerBase) logConflict(entityType models.EntityType, entityID models.UUID, localTS, remoteTS int64) {
	entry := &models.ConflictLog{
		ID:              models.UUID(uuid.New()),
		EntityType:      entityType,
		EntityID:        entityID,
		LocalTimestamp:  localTS,
		RemoteTimestamp: remoteTS,
		Resolution:      "local_pending_wins",
		DetectedAt:      time.Now().Unix(),
	}
	if err := b.repo.InsertConflictLog(entry); err != nil {
		logging.Error("failed to record sync conflict", err, map[string]interface{}{
			"entity_type": string(entityType),
			"entity_id":   entityID.String(),
		})
	}
	logging.Warn("remote change dropped, local edit pending", map[string]interface{}{
		"entity_type": string(entityType),
		"entity_id":   entityID.String(),
	})
}

func (b *handlerBase) logReferentialSkip(entityType models.EntityType, entityID, parentID models.UUID) {
	logging.Warn("pulled record references missing parent, skipping", map[string]interface{}{
		"entity_type": string(entityType),
		"entity_id":   entityID.String(),
		"parent_id":   parentID.String(),
	})
}

// clientExists reports whether the referenced client is present locally.
// Pulled dependents whose parent has not arrived are skipped rather than
// inserted with a dangling foreign key.
func (b *handlerBase) clientExists(clientID models.UUID) (bool, error) {
	_, err := b.repo.GetClient(clientID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(errors.ErrDatabase, "failed to check client reference", err)
	}
	return true, nil
}

// clientHandler syncs client records.
type clientHandler struct {
	handlerBase
	remote ClientRemote
}

func (h *clientHandler) push(ctx context.Context, rec *models.MutationRecord) error {
	if rec.Operation == models.OperationDelete {
		return h.remote.Delete(ctx, rec.EntityID)
	}
	local, err := h.repo.GetClient(rec.EntityID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.New(errors.ErrLocalEntityMissing, "client no longer exists locally")
	}
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to load client for push", err)
	}
	if rec.Operation == models.OperationCreate {
		return h.remote.Create(ctx, local)
	}
	return h.remote.Update(ctx, local)
}

func (h *clientHandler) pull(ctx context.Context, userID string) (int, int, error) {
	remote, err := h.remote.FetchAll(ctx, userID)
	if err != nil {
		return 0, 0, err
	}
	pulled, skipped := 0, 0
	for i := range remote {
		rc := &remote[i]
		local, err := h.repo.GetClient(rc.ID)
		if stderrors.Is(err, sql.ErrNoRows) {
			rc.SyncStatus = models.SyncStatusSynced
			if err := h.repo.InsertClient(rc); err != nil {
				return pulled, skipped, errors.Wrap(errors.ErrDatabase, "failed to insert pulled client", err)
			}
			pulled++
			continue
		}
		if err != nil {
			return pulled, skipped, errors.Wrap(errors.ErrDatabase, "failed to load local client", err)
		}
		switch h.resolver.Decide(local.SyncStatus, local.UpdatedAt, rc.UpdatedAt) {
		case conflict.DecisionApplyRemote:
			rc.SyncStatus = models.SyncStatusSynced
			if err := h.repo.UpdateClient(rc); err != nil {
				return pulled, skipped, errors.Wrap(errors.ErrDatabase, "failed to apply pulled client", err)
			}
			pulled++
		case conflict.DecisionKeepLocal:
			h.logConflict(models.EntityClient, rc.ID, local.UpdatedAt, rc.UpdatedAt)
			skipped++
		}
	}
	return pulled, skipped, nil
}

// servicePriceHandler syncs the price catalogue.
type servicePriceHandler struct {
	handlerBase
	remote ServicePriceRemote
}

func (h *servicePriceHandler) push(ctx context.Context, rec *models.MutationRecord) error {
	if rec.Operation == models.OperationDelete {
		return h.remote.Delete(ctx, rec.EntityID)
	}
	local, err := h.repo.GetServicePrice(rec.EntityID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.New(errors.ErrLocalEntityMissing, "service price no longer exists locally")
	}
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to load service price for push", err)
	}
	if rec.Operation == models.OperationCreate {
		return h.remote.Create(ctx, local)
	}
	return h.remote.Update(ctx, local)
}

func (h *servicePriceHandler) pull(ctx context.Context, userID string) (int, int, error) {
	remote, err := h.remote.FetchAll(ctx, userID)
	if err != nil {
		return 0, 0, err
	}
	pulled, skipped := 0, 0
	for i := range remote {
		rp := &remote[i]
		local, err := h.repo.GetServicePrice(rp.ID)
		if stderrors.Is(err, sql.ErrNoRows) {
			rp.SyncStatus = models.SyncStatusSynced
			if err := h.repo.InsertServicePrice(rp); err != nil {
				return pulled, skipped, errors.Wrap(errors.ErrDatabase, "failed to insert pulled service price", err)
			}
			pulled++
			continue
		}
		if err != nil {
			return pulled, skipped, errors.Wrap(errors.ErrDatabase, "failed to load local service price", err)
		}
		switch h.resolver.Decide(local.SyncStatus, local.UpdatedAt, rp.UpdatedAt) {
		case conflict.DecisionApplyRemote:
			rp.SyncStatus = models.SyncStatusSynced
			if err := h.repo.UpdateServicePrice(rp); err != nil {
				return pulled, skipped, errors.Wrap(errors.ErrDatabase, "failed to apply pulled service price", err)
			}
			pulled++
		case conflict.DecisionKeepLocal:
			h.logConflict(models.EntityServicePrice, rp.ID, local.UpdatedAt, rp.UpdatedAt)
			skipped++
		}
	}
	return pulled, skipped, nil
}

// horseHandler syncs horse records. Horses reference a client, so a
// pulled horse whose client is absent locally is skipped until a later
// cycle delivers the parent.
type horseHandler struct {
	handlerBase
	remote HorseRemote
}

func (h *horseHandler) push(ctx context.Context, rec *models.MutationRecord) error {
	if rec.Operation == models.OperationDelete {
		return h.remote.Delete(ctx, rec.EntityID)
	}
	local, err := h.repo.GetHorse(rec.EntityID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.New(errors.ErrLocalEntityMissing, "horse no longer exists locally")
	}
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to load horse for push", err)
	}
	if rec.Operation == models.OperationCreate {
		return h.remote.Create(ctx, local)
	}
	return h.remote.Update(ctx, local)
}

func (h *horseHandler) pull(ctx context.Context, userID string) (int, int, error) {
	remote, err := h.remote.FetchAll(ctx, userID)
	if err != nil {
		return 0, 0, err
	}
	pulled, skipped := 0, 0
	for i := range remote {
		rh := &remote[i]
		local, err := h.repo.GetHorse(rh.ID)
		if stderrors.Is(err, sql.ErrNoRows) {
			ok, err := h.clientExists(rh.ClientID)
			if err != nil {
				return pulled, skipped, err
			}
			if !ok {
				h.logReferentialSkip(models.EntityHorse, rh.ID, rh.ClientID)
				skipped++
				continue
			}
			rh.SyncStatus = models.SyncStatusSynced
			if err := h.repo.InsertHorse(rh); err != nil {
				return pulled, skipped, errors.Wrap(errors.ErrDatabase, "failed to insert pulled horse", err)
			}
			pulled++
			continue
		}
		if err != nil {
			return pulled, skipped, errors.Wrap(errors.ErrDatabase, "failed to load local horse", err)
		}
		switch h.resolver.Decide(local.SyncStatus, local.UpdatedAt, rh.UpdatedAt) {
		case conflict.DecisionApplyRemote:
			rh.SyncStatus = models.SyncStatusSynced
			if err := h.repo.UpdateHorse(rh); err != nil {
				return pulled, skipped, errors.Wrap(errors.ErrDatabase, "failed to apply pulled horse", err)
			}
			pulled++
		case conflict.DecisionKeepLocal:
			h.logConflict(models.EntityHorse, rh.ID, local.UpdatedAt, rh.UpdatedAt)
			skipped++
		}
	}
	return pulled, skipped, nil
}

// appointmentHandler syncs appointments together with their per-horse
// service assignments. When the parent record changes the children are
// refetched and replaced wholesale.
type appointmentHandler struct {
	handlerBase
	remote AppointmentRemote
}

func (h *appointmentHandler) push(ctx context.Context, rec *models.MutationRecord) error {
	if rec.Operation == models.OperationDelete {
		return h.remote.Delete(ctx, rec.EntityID)
	}
	local, err := h.repo.GetAppointment(rec.EntityID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.New(errors.ErrLocalEntityMissing, "appointment no longer exists locally")
	}
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to load appointment for push", err)
	}
	if rec.Operation == models.OperationCreate {
		return h.remote.Create(ctx, local)
	}
	return h.remote.Update(ctx, local)
}

func (h *appointmentHandler) pull(ctx context.Context, userID string) (int, int, error) {
	remote, err := h.remote.FetchAll(ctx, userID)
	if err != nil {
		return 0, 0, err
	}
	pulled, skipped := 0, 0
	for i := range remote {
		ra := &remote[i]
		local, err := h.repo.GetAppointment(ra.ID)
		if stderrors.Is(err, sql.ErrNoRows) {
			ok, err := h.clientExists(ra.ClientID)
			if err != nil {
				return pulled, skipped, err
			}
			if !ok {
				h.logReferentialSkip(models.EntityAppointment, ra.ID, ra.ClientID)
				skipped++
				continue
			}
			if err := h.attachHorses(ctx, ra); err != nil {
				return pulled, skipped, err
			}
			ra.SyncStatus = models.SyncStatusSynced
			if err := h.repo.InsertAppointment(ra); err != nil {
				return pulled, skipped, errors.Wrap(errors.ErrDatabase, "failed to insert pulled appointment", err)
			}
			pulled++
			continue
		}
		if err != nil {
			return pulled, skipped, errors.Wrap(errors.ErrDatabase, "failed to load local appointment", err)
		}
		switch h.resolver.Decide(local.SyncStatus, local.UpdatedAt, ra.UpdatedAt) {
		case conflict.DecisionApplyRemote:
			if err := h.attachHorses(ctx, ra); err != nil {
				return pulled, skipped, err
			}
			ra.SyncStatus = models.SyncStatusSynced
			if err := h.repo.UpdateAppointment(ra); err != nil {
				return pulled, skipped, errors.Wrap(errors.ErrDatabase, "failed to apply pulled appointment", err)
			}
			pulled++
		case conflict.DecisionKeepLocal:
			h.logConflict(models.EntityAppointment, ra.ID, local.UpdatedAt, ra.UpdatedAt)
			skipped++
		}
	}
	return pulled, skipped, nil
}

func (h *appointmentHandler) attachHorses(ctx context.Context, a *models.Appointment) error {
	horses, err := h.remote.FetchHorses(ctx, a.ID)
	if err != nil {
		return err
	}
	a.Horses = horses
	return nil
}

// invoiceHandler syncs invoices together with their line items.
type invoiceHandler struct {
	handlerBase
	remote InvoiceRemote
}

func (h *invoiceHandler) push(ctx context.Context, rec *models.MutationRecord) error {
	if rec.Operation == models.OperationDelete {
		return h.remote.Delete(ctx, rec.EntityID)
	}
	local, err := h.repo.GetInvoice(rec.EntityID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.New(errors.ErrLocalEntityMissing, "invoice no longer exists locally")
	}
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to load invoice for push", err)
	}
	if rec.Operation == models.OperationCreate {
		return h.remote.Create(ctx, local)
	}
	return h.remote.Update(ctx, local)
}

func (h *invoiceHandler) pull(ctx context.Context, userID string) (int, int, error) {
	remote, err := h.remote.FetchAll(ctx, userID)
	if err != nil {
		return 0, 0, err
	}
	pulled, skipped := 0, 0
	for i := range remote {
		ri := &remote[i]
		local, err := h.repo.GetInvoice(ri.ID)
		if stderrors.Is(err, sql.ErrNoRows) {
			ok, err := h.clientExists(ri.ClientID)
			if err != nil {
				return pulled, skipped, err
			}
			if !ok {
				h.logReferentialSkip(models.EntityInvoice, ri.ID, ri.ClientID)
				skipped++
				continue
			}
			if err := h.attachLines(ctx, ri); err != nil {
				return pulled, skipped, err
			}
			ri.SyncStatus = models.SyncStatusSynced
			if err := h.repo.InsertInvoice(ri); err != nil {
				return pulled, skipped, errors.Wrap(errors.ErrDatabase, "failed to insert pulled invoice", err)
			}
			pulled++
			continue
		}
		if err != nil {
			return pulled, skipped, errors.Wrap(errors.ErrDatabase, "failed to load local invoice", err)
		}
		switch h.resolver.Decide(local.SyncStatus, local.UpdatedAt, ri.UpdatedAt) {
		case conflict.DecisionApplyRemote:
			if err := h.attachLines(ctx, ri); err != nil {
				return pulled, skipped, err
			}
			ri.SyncStatus = models.SyncStatusSynced
			if err := h.repo.UpdateInvoice(ri); err != nil {
				return pulled, skipped, errors.Wrap(errors.ErrDatabase, "failed to apply pulled invoice", err)
			}
			pulled++
		case conflict.DecisionKeepLocal:
			h.logConflict(models.EntityInvoice, ri.ID, local.UpdatedAt, ri.UpdatedAt)
			skipped++
		}
	}
	return pulled, skipped, nil
}

func (h *invoiceHandler) attachLines(ctx context.Context, inv *models.Invoice) error {
	lines, err := h.remote.FetchLines(ctx, inv.ID)
	if err != nil {
		return err
	}
	inv.Lines = lines
	return nil
}
