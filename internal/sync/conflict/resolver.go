// Package conflict decides how a pulled remote entity reconciles against
// the local copy. The strategy is last-write-wins, deferring to local
// unsynced edits.
package conflict

import "github.com/stablebook/stablesync/internal/models"

// Decision is the outcome of comparing a remote copy against local state.
type Decision string

const (
	// DecisionApplyRemote overwrites the local copy with the remote one.
	DecisionApplyRemote Decision = "apply_remote"

	// DecisionKeepLocal preserves the local copy because it carries an
	// unacknowledged local edit; the remote copy is dropped.
	DecisionKeepLocal Decision = "keep_local"

	// DecisionNoChange leaves the local copy alone; the remote one is
	// not strictly newer.
	DecisionNoChange Decision = "no_change"
)

// ResolutionStrategy defines how conflicts are resolved.
type ResolutionStrategy string

const (
	ResolutionStrategyLastWriteWins ResolutionStrategy = "last_write_wins"
)

// Resolver applies the configured resolution strategy during pull
// reconciliation.
type Resolver struct {
	strategy ResolutionStrategy
}

// NewResolver creates a Resolver with the specified strategy.
func NewResolver(strategy ResolutionStrategy) *Resolver {
	return &Resolver{strategy: strategy}
}

// Decide compares the remote copy's timestamp against the local copy.
// Unacknowledged local edits always win regardless of timestamps: the
// remote state predates a local change that has not been pushed yet.
func (r *Resolver) Decide(localStatus models.SyncStatus, localUpdatedAt, remoteUpdatedAt int64) Decision {
	if localStatus.Pending() {
		return DecisionKeepLocal
	}
	if remoteUpdatedAt > localUpdatedAt {
		return DecisionApplyRemote
	}
	return DecisionNoChange
}
