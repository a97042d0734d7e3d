// Package db provides the persistence layer for the mutation queue.
package db

import (
	"database/sql"
	"time"

	"github.com/stablebook/stablesync/internal/models"
	"github.com/stablebook/stablesync/internal/uuid"
)

const mutationColumns = `id, entity_type, entity_id, operation, payload, priority, status,
	retry_count, error_message, created_at, updated_at`

func scanMutation(row interface {
	Scan(dest ...interface{}) error
}) (*models.MutationRecord, error) {
	var m models.MutationRecord
	var payload []byte
	err := row.Scan(
		&m.ID, &m.EntityType, &m.EntityID, &m.Operation, &payload, &m.Priority,
		&m.Status, &m.RetryCount, &m.ErrorMessage, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Payload = payload
	return &m, nil
}

// InsertMutationTx inserts a mutation record inside an open transaction.
// The monotonic id assigned by sqlite is written back into rec.
func (r *Repository) InsertMutationTx(tx *sql.Tx, rec *models.MutationRecord) error {
	now := time.Now().Unix()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if rec.Priority == 0 {
		rec.Priority = models.PriorityFor(rec.Operation)
	}
	if rec.Status == "" {
		rec.Status = models.MutationStatusPending
	}

	query := `
	INSERT INTO mutation_queue (entity_type, entity_id, operation, payload, priority, status,
		retry_count, error_message, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := tx.Exec(query, rec.EntityType, rec.EntityID, rec.Operation,
		[]byte(rec.Payload), rec.Priority, rec.Status, rec.RetryCount,
		rec.ErrorMessage, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return err
	}
	rec.ID, err = result.LastInsertId()
	return err
}

// LatestMutationForTx returns the most recently inserted active (pending or
// failed) record for an entity, or sql.ErrNoRows.
func (r *Repository) LatestMutationForTx(tx *sql.Tx, entityType models.EntityType, entityID models.UUID) (*models.MutationRecord, error) {
	query := `
	SELECT ` + mutationColumns + `
	FROM mutation_queue
	WHERE entity_type = ? AND entity_id = ? AND status IN ('pending', 'failed')
	ORDER BY id DESC LIMIT 1
	`
	return scanMutation(tx.QueryRow(query, entityType, entityID))
}

// GetMutation returns one record by id, or sql.ErrNoRows.
func (r *Repository) GetMutation(id int64) (*models.MutationRecord, error) {
	query := `SELECT ` + mutationColumns + ` FROM mutation_queue WHERE id = ?`
	return scanMutation(r.db.QueryRow(query, id))
}

// UpdateMutationPayloadTx replaces the payload of an existing record and
// refreshes its timestamp (CREATE followed by UPDATE coalescing).
func (r *Repository) UpdateMutationPayloadTx(tx *sql.Tx, id int64, payload []byte) error {
	query := `UPDATE mutation_queue SET payload = ?, updated_at = ? WHERE id = ?`
	result, err := tx.Exec(query, payload, time.Now().Unix(), id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteMutationTx removes a record inside an open transaction.
func (r *Repository) DeleteMutationTx(tx *sql.Tx, id int64) error {
	_, err := tx.Exec(`DELETE FROM mutation_queue WHERE id = ?`, id)
	return err
}

// DeleteMutation removes a record.
func (r *Repository) DeleteMutation(id int64) error {
	_, err := r.db.Exec(`DELETE FROM mutation_queue WHERE id = ?`, id)
	return err
}

// DeleteOlderMutationsTx removes all active records for an entity with an id
// lower than keepID (UPDATE followed by UPDATE coalescing: only the newest
// record survives).
func (r *Repository) DeleteOlderMutationsTx(tx *sql.Tx, entityType models.EntityType, entityID models.UUID, keepID int64) error {
	query := `
	DELETE FROM mutation_queue
	WHERE entity_type = ? AND entity_id = ? AND id < ? AND status IN ('pending', 'failed')
	`
	_, err := tx.Exec(query, entityType, entityID, keepID)
	return err
}

// PendingMutations returns the batch of records eligible for the next push,
// ordered by priority then insertion order. FAILED records stay eligible:
// retry happens because the record was never removed, with retry_count and
// error_message preserved across attempts.
func (r *Repository) PendingMutations(limit int) ([]*models.MutationRecord, error) {
	query := `
	SELECT ` + mutationColumns + `
	FROM mutation_queue
	WHERE status IN ('pending', 'failed')
	ORDER BY priority, id
	LIMIT ?
	`
	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.MutationRecord
	for rows.Next() {
		rec, err := scanMutation(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// MarkMutationCompleted flips a record to completed.
func (r *Repository) MarkMutationCompleted(id int64) error {
	query := `UPDATE mutation_queue SET status = 'completed', updated_at = ? WHERE id = ?`
	result, err := r.db.Exec(query, time.Now().Unix(), id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkMutationFailed flips a record to failed, recording the failure reason
// and bumping the retry counter.
func (r *Repository) MarkMutationFailed(id int64, errorMessage string) error {
	query := `
	UPDATE mutation_queue
	SET status = 'failed', retry_count = retry_count + 1, error_message = ?, updated_at = ?
	WHERE id = ?
	`
	result, err := r.db.Exec(query, errorMessage, time.Now().Unix(), id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ApplyPushSuccess deletes a pushed record and, for creates and updates,
// flips the entity's sync status to synced, in one transaction so the two
// writes are atomic from the orchestrator's point of view.
func (r *Repository) ApplyPushSuccess(rec *models.MutationRecord) error {
	return r.WithTx(func(tx *sql.Tx) error {
		if err := r.DeleteMutationTx(tx, rec.ID); err != nil {
			return err
		}
		if rec.Operation == models.OperationDelete {
			// The local row is already gone; nothing to flip.
			return nil
		}
		err := r.SetSyncStatusTx(tx, rec.EntityType, rec.EntityID, models.SyncStatusSynced)
		if err == sql.ErrNoRows {
			// Entity deleted locally between push and acknowledgement.
			return nil
		}
		return err
	})
}

// DeleteCompletedMutationsBefore removes completed records whose updated_at
// is older than the cutoff. Completed delete-type records are removed
// regardless of age; there is nothing to inspect once the remote row is gone.
// Returns the number of rows swept.
func (r *Repository) DeleteCompletedMutationsBefore(cutoff int64) (int64, error) {
	query := `DELETE FROM mutation_queue WHERE status = 'completed' AND (updated_at < ? OR operation = 'delete')`
	result, err := r.db.Exec(query, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// PendingMutationCount returns the number of push-eligible records.
func (r *Repository) PendingMutationCount() (int, error) {
	var count int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM mutation_queue WHERE status IN ('pending', 'failed')`,
	).Scan(&count)
	return count, err
}

// CountMutations returns the total number of queue rows.
func (r *Repository) CountMutations() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM mutation_queue`).Scan(&count)
	return count, err
}

// MutationStats returns per-status row counts for diagnostics.
func (r *Repository) MutationStats() (map[string]int, error) {
	stats := map[string]int{
		"total":     0,
		"pending":   0,
		"failed":    0,
		"completed": 0,
	}

	rows, err := r.db.Query(`SELECT status, COUNT(*) FROM mutation_queue GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
		stats["total"] += count
	}
	return stats, rows.Err()
}

// =====================================================
// ConflictLog Operations
// =====================================================

// InsertConflictLog creates a new conflict log entry.
func (r *Repository) InsertConflictLog(log *models.ConflictLog) error {
	log.ID = models.UUID(uuid.New())
	log.DetectedAt = time.Now().Unix()

	query := `
	INSERT INTO sync_conflicts (id, entity_type, entity_id, local_timestamp, remote_timestamp, resolution, detected_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, log.ID, log.EntityType, log.EntityID, log.LocalTimestamp,
		log.RemoteTimestamp, log.Resolution, log.DetectedAt)
	return err
}

// ListConflictLogs returns the most recent conflict entries.
func (r *Repository) ListConflictLogs(limit int) ([]*models.ConflictLog, error) {
	query := `
	SELECT id, entity_type, entity_id, local_timestamp, remote_timestamp, resolution, detected_at
	FROM sync_conflicts ORDER BY detected_at DESC LIMIT ?
	`
	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*models.ConflictLog
	for rows.Next() {
		var l models.ConflictLog
		err := rows.Scan(&l.ID, &l.EntityType, &l.EntityID, &l.LocalTimestamp,
			&l.RemoteTimestamp, &l.Resolution, &l.DetectedAt)
		if err != nil {
			return nil, err
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}
