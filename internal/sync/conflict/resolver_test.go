// Package conflict provides unit tests for last-write-wins decisions.
package conflict

import (
	"testing"

	"github.com/stablebook/stablesync/internal/models"
)

// TestDecideRemoteNewerWins tests that a strictly newer remote copy
// overwrites a synced local copy.
func TestDecideRemoteNewerWins(t *testing.T) {
	r := NewResolver(ResolutionStrategyLastWriteWins)

	got := r.Decide(models.SyncStatusSynced, 100, 200)
	if got != DecisionApplyRemote {
		t.Errorf("Expected apply_remote, got %s", got)
	}
}

// TestDecideEqualOrOlderRemoteIsNoChange tests strictness of the comparison.
func TestDecideEqualOrOlderRemoteIsNoChange(t *testing.T) {
	r := NewResolver(ResolutionStrategyLastWriteWins)

	if got := r.Decide(models.SyncStatusSynced, 200, 200); got != DecisionNoChange {
		t.Errorf("Expected no_change for equal timestamps, got %s", got)
	}
	if got := r.Decide(models.SyncStatusSynced, 200, 100); got != DecisionNoChange {
		t.Errorf("Expected no_change for older remote, got %s", got)
	}
}

// TestDecidePendingLocalAlwaysWins tests that unpushed local edits take
// precedence even over a newer remote timestamp.
func TestDecidePendingLocalAlwaysWins(t *testing.T) {
	r := NewResolver(ResolutionStrategyLastWriteWins)

	for _, status := range []models.SyncStatus{models.SyncStatusPendingCreate, models.SyncStatusPendingUpdate} {
		if got := r.Decide(status, 100, 9999); got != DecisionKeepLocal {
			t.Errorf("Status %s: expected keep_local, got %s", status, got)
		}
	}
}
