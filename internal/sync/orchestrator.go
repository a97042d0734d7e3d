// Package sync implements the push/pull reconciliation cycle between the
// local database and the remote store. One cycle pushes queued local
// mutations first, then pulls remote collections and reconciles them with
// last-write-wins, so fresh local edits are never clobbered by a stale
// remote read.
package sync

import (
	"context"
	stdsync "sync"
	"time"

	"github.com/stablebook/stablesync/internal/db"
	"github.com/stablebook/stablesync/internal/errors"
	"github.com/stablebook/stablesync/internal/logging"
	"github.com/stablebook/stablesync/internal/models"
	"github.com/stablebook/stablesync/internal/sync/conflict"
	"github.com/stablebook/stablesync/internal/sync/queue"
)

// pullOrder lists entity types parents-first so a pulled child can
// resolve its references within the same cycle.
var pullOrder = []models.EntityType{
	models.EntityClient,
	models.EntityServicePrice,
	models.EntityHorse,
	models.EntityAppointment,
	models.EntityInvoice,
}

// Result aggregates what one sync cycle accomplished.
type Result struct {
	Pushed   int           `json:"pushed"`
	Pulled   int           `json:"pulled"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration"`
}

// Orchestrator runs sync cycles. At most one cycle is in flight per
// user at any time; a second PerformSync for the same user fails fast
// with ErrSyncInProgress instead of racing over the same queue snapshot.
type Orchestrator struct {
	repo       *db.Repository
	queue      *queue.MutationQueue
	session    Session
	handlers   map[models.EntityType]entityHandler
	batchLimit int

	mu       stdsync.Mutex
	inFlight map[string]bool
}

// NewOrchestrator wires the per-entity handlers over the shared
// repository and remote surfaces.
func NewOrchestrator(repo *db.Repository, q *queue.MutationQueue, session Session, remotes Remotes) *Orchestrator {
	resolver := conflict.NewResolver(conflict.ResolutionStrategyLastWriteWins)
	base := handlerBase{repo: repo, resolver: resolver}
	return &Orchestrator{
		repo:    repo,
		queue:   q,
		session: session,
		handlers: map[models.EntityType]entityHandler{
			models.EntityClient:       &clientHandler{handlerBase: base, remote: remotes.Clients},
			models.EntityServicePrice: &servicePriceHandler{handlerBase: base, remote: remotes.ServicePrices},
			models.EntityHorse:        &horseHandler{handlerBase: base, remote: remotes.Horses},
			models.EntityAppointment:  &appointmentHandler{handlerBase: base, remote: remotes.Appointments},
			models.EntityInvoice:      &invoiceHandler{handlerBase: base, remote: remotes.Invoices},
		},
		batchLimit: queue.DefaultBatchLimit,
		inFlight:   make(map[string]bool),
	}
}

// SetBatchLimit overrides the push batch size. Values below one keep
// the default.
func (o *Orchestrator) SetBatchLimit(limit int) {
	if limit > 0 {
		o.batchLimit = limit
	}
}

// PerformSync executes one full push/pull cycle for the current user.
// Item-scoped failures are absorbed into the queue for a later retry;
// only systemic failures (no session, network loss, database errors)
// propagate as a cycle failure.
func (o *Orchestrator) PerformSync(ctx context.Context) (*Result, error) {
	userID := o.session.UserID()
	if userID == "" {
		return nil, errors.New(errors.ErrNotAuthenticated, "no authenticated user, sync aborted")
	}

	if !o.acquire(userID) {
		return nil, errors.New(errors.ErrSyncInProgress, "sync already running for user")
	}
	defer o.release(userID)

	started := time.Now()
	result := &Result{}

	if err := o.pushPhase(ctx, result); err != nil {
		return nil, err
	}
	if err := o.pullPhase(ctx, userID, result); err != nil {
		return nil, err
	}

	if removed, err := o.queue.DeleteCompleted(); err != nil {
		logging.Error("retention sweep failed", err, nil)
	} else if removed > 0 {
		logging.Debug("retention sweep removed completed mutations", map[string]interface{}{
			"removed": removed,
		})
	}

	result.Duration = time.Since(started)
	logging.Info("sync cycle completed", map[string]interface{}{
		"pushed":      result.Pushed,
		"pulled":      result.Pulled,
		"skipped":     result.Skipped,
		"duration_ms": result.Duration.Milliseconds(),
	})
	return result, nil
}

func (o *Orchestrator) acquire(userID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inFlight[userID] {
		return false
	}
	o.inFlight[userID] = true
	return true
}

func (o *Orchestrator) release(userID string) {
	o.mu.Lock()
	delete(o.inFlight, userID)
	o.mu.Unlock()
}

// pushPhase drains up to one batch of queued mutations. A network loss
// or cancellation aborts the cycle; any other per-item error marks the
// record failed and moves on.
func (o *Orchestrator) pushPhase(ctx context.Context, result *Result) error {
	batch, err := o.queue.GetPendingOperations(o.batchLimit)
	if err != nil {
		return err
	}

	for _, rec := range batch {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(errors.ErrSyncFailed, "sync cycle cancelled", err)
		}

		handler, ok := o.handlers[rec.EntityType]
		if !ok {
			logging.Warn("no push handler for entity type, skipping", map[string]interface{}{
				"entity_type": string(rec.EntityType),
				"mutation_id": rec.ID,
			})
			continue
		}

		if err := handler.push(ctx, rec); err != nil {
			if errors.Is(err, errors.ErrNetworkUnavailable) || ctx.Err() != nil {
				return err
			}
			logging.Warn("push failed for mutation", map[string]interface{}{
				"mutation_id": rec.ID,
				"entity_type": string(rec.EntityType),
				"entity_id":   rec.EntityID.String(),
				"error":       err.Error(),
			})
			if mErr := o.queue.MarkFailed(rec.ID, err); mErr != nil {
				return mErr
			}
			continue
		}

		if err := o.repo.ApplyPushSuccess(rec); err != nil {
			return errors.Wrap(errors.ErrDatabase, "failed to record push success", err)
		}
		result.Pushed++
	}

	o.queue.NotifyDrained()
	return nil
}

// pullPhase fetches each remote collection parents-first and reconciles
// it into the local store. A fetch failure is phase-scoped and fails the
// cycle; counts accumulated so far are discarded with it.
func (o *Orchestrator) pullPhase(ctx context.Context, userID string, result *Result) error {
	for _, entityType := range pullOrder {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(errors.ErrSyncFailed, "sync cycle cancelled", err)
		}

		handler := o.handlers[entityType]
		pulled, skipped, err := handler.pull(ctx, userID)
		result.Pulled += pulled
		result.Skipped += skipped
		if err != nil {
			return err
		}
	}
	return nil
}
