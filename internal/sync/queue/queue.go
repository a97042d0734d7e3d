// Package queue provides the durable mutation queue for offline-first writes.
// Local changes are recorded here and coalesced until a sync cycle pushes
// them to the remote store.
package queue

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/stablebook/stablesync/internal/db"
	apperrors "github.com/stablebook/stablesync/internal/errors"
	"github.com/stablebook/stablesync/internal/logging"
	"github.com/stablebook/stablesync/internal/models"
	"github.com/stablebook/stablesync/internal/observe"
	"github.com/stablebook/stablesync/internal/uuid"
)

const (
	// DefaultBatchLimit caps how many records one push batch may carry.
	DefaultBatchLimit = 50

	// DefaultMaxSize bounds queue growth while the device stays offline.
	DefaultMaxSize = 10000

	// retentionDays is how long completed records are kept for diagnostics.
	retentionDays = 7
)

// MutationQueue maintains a compact, order-preserving backlog of local
// writes awaiting push. Coalescing keeps at most one active record per
// (entityType, entityId) pair; every coalescing decision runs in a single
// transaction so a crash can never observe a half-applied decision.
type MutationQueue struct {
	repo      *db.Repository
	maxSize   int
	countFeed *observe.Feed[int]
}

// NewMutationQueue creates a MutationQueue over the given repository.
func NewMutationQueue(repo *db.Repository) *MutationQueue {
	return &MutationQueue{
		repo:      repo,
		maxSize:   DefaultMaxSize,
		countFeed: observe.NewFeed[int](),
	}
}

// Enqueue records a local change, applying coalescing rules against the
// newest active record for the same entity:
//
//   - CREATE then DELETE: the entity never reached the remote, so both
//     records annihilate; nothing remains to retract.
//   - CREATE then UPDATE: the CREATE survives carrying the newest payload;
//     the entity still needs exactly one remote create call.
//   - UPDATE then UPDATE: only the newest UPDATE survives; older ones
//     describe state the remote will never see.
//   - anything else: insert a new record.
//
// The record is persisted before Enqueue returns, so a crash immediately
// afterwards cannot lose the mutation. The returned record is nil when
// coalescing annihilated the change.
func (q *MutationQueue) Enqueue(entityType models.EntityType, entityID models.UUID, op models.Operation, payload json.RawMessage) (*models.MutationRecord, error) {
	if err := uuid.Validate(entityID.String()); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "entity id is not a valid UUID", err)
	}

	total, err := q.repo.CountMutations()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to count queue rows", err)
	}
	if total >= q.maxSize {
		return nil, apperrors.New(apperrors.ErrQueueFull, "mutation queue is full")
	}

	if payload == nil {
		payload = json.RawMessage(`{}`)
	}

	var result *models.MutationRecord
	err = q.repo.WithTx(func(tx *sql.Tx) error {
		existing, err := q.repo.LatestMutationForTx(tx, entityType, entityID)
		if err != nil && err != sql.ErrNoRows {
			return err
		}

		switch {
		case existing != nil && existing.Operation == models.OperationCreate && op == models.OperationDelete:
			return q.repo.DeleteMutationTx(tx, existing.ID)

		case existing != nil && existing.Operation == models.OperationCreate && op == models.OperationUpdate:
			if err := q.repo.UpdateMutationPayloadTx(tx, existing.ID, payload); err != nil {
				return err
			}
			existing.Payload = payload
			existing.UpdatedAt = time.Now().Unix()
			result = existing
			return q.markEntityPending(tx, entityType, entityID, op)

		case existing != nil && existing.Operation == models.OperationUpdate && op == models.OperationUpdate:
			rec := &models.MutationRecord{
				EntityType: entityType,
				EntityID:   entityID,
				Operation:  op,
				Payload:    payload,
			}
			if err := q.repo.InsertMutationTx(tx, rec); err != nil {
				return err
			}
			if err := q.repo.DeleteOlderMutationsTx(tx, entityType, entityID, rec.ID); err != nil {
				return err
			}
			result = rec
			return q.markEntityPending(tx, entityType, entityID, op)

		default:
			rec := &models.MutationRecord{
				EntityType: entityType,
				EntityID:   entityID,
				Operation:  op,
				Payload:    payload,
			}
			if err := q.repo.InsertMutationTx(tx, rec); err != nil {
				return err
			}
			result = rec
			return q.markEntityPending(tx, entityType, entityID, op)
		}
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to enqueue mutation", err)
	}

	logging.Debug("Enqueued mutation", map[string]interface{}{
		"entity_type": string(entityType),
		"entity_id":   entityID.String(),
		"operation":   string(op),
		"coalesced":   result == nil,
	})

	q.publishCount()
	return result, nil
}

// markEntityPending flips the entity's sync status inside the enqueue
// transaction. Deletes skip it: the local row is already gone. A missing
// row for create/update is tolerated; the entity write and the enqueue
// may race during app shutdown.
func (q *MutationQueue) markEntityPending(tx *sql.Tx, entityType models.EntityType, entityID models.UUID, op models.Operation) error {
	var status models.SyncStatus
	switch op {
	case models.OperationCreate:
		status = models.SyncStatusPendingCreate
	case models.OperationUpdate:
		status = models.SyncStatusPendingUpdate
	default:
		return nil
	}
	err := q.repo.SetSyncStatusTx(tx, entityType, entityID, status)
	if err == sql.ErrNoRows {
		return nil
	}
	return err
}

// GetPendingOperations returns the next batch of push-eligible records,
// ordered by priority then insertion order. Failed records stay eligible;
// retry happens because the record was never removed.
func (q *MutationQueue) GetPendingOperations(limit int) ([]*models.MutationRecord, error) {
	if limit <= 0 {
		limit = DefaultBatchLimit
	}
	records, err := q.repo.PendingMutations(limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to fetch pending mutations", err)
	}
	return records, nil
}

// MarkCompleted flips a record to completed. The orchestrator follows a
// successful push with ApplyPushSuccess, which deletes the row and flips
// the entity status in one transaction; MarkCompleted exists for callers
// that need the intermediate state visible.
func (q *MutationQueue) MarkCompleted(id int64) error {
	if err := q.repo.MarkMutationCompleted(id); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to mark mutation completed", err)
	}
	q.publishCount()
	return nil
}

// MarkFailed records a push failure on the record and bumps its retry count.
func (q *MutationQueue) MarkFailed(id int64, cause error) error {
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	if err := q.repo.MarkMutationFailed(id, message); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to mark mutation failed", err)
	}
	return nil
}

// DeleteCompleted sweeps completed records older than the retention window.
func (q *MutationQueue) DeleteCompleted() (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays).Unix()
	swept, err := q.repo.DeleteCompletedMutationsBefore(cutoff)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrDatabase, "failed to sweep completed mutations", err)
	}
	if swept > 0 {
		logging.Info("Swept completed mutations", map[string]interface{}{"count": swept})
		q.publishCount()
	}
	return swept, nil
}

// GetPendingCount returns the number of push-eligible records.
func (q *MutationQueue) GetPendingCount() (int, error) {
	count, err := q.repo.PendingMutationCount()
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrDatabase, "failed to count pending mutations", err)
	}
	return count, nil
}

// ObservePendingCount subscribes to pending-count changes for UI badges.
// The current value is not replayed; read GetPendingCount first.
func (q *MutationQueue) ObservePendingCount() (<-chan int, func()) {
	return q.countFeed.Subscribe()
}

// Stats returns per-status record counts for diagnostics.
func (q *MutationQueue) Stats() (map[string]int, error) {
	stats, err := q.repo.MutationStats()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to read queue stats", err)
	}
	return stats, nil
}

// NotifyDrained lets the orchestrator publish a fresh count after it has
// deleted records directly through the repository.
func (q *MutationQueue) NotifyDrained() {
	q.publishCount()
}

func (q *MutationQueue) publishCount() {
	count, err := q.repo.PendingMutationCount()
	if err != nil {
		logging.Warn("Failed to publish pending count", map[string]interface{}{"error": err.Error()})
		return
	}
	q.countFeed.Publish(count)
}
