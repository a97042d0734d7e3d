// Package logging provides unit tests for the structured logger.
package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

// newTestLogger builds a logger writing to a buffer, bypassing the global.
func newTestLogger(minLevel LogLevel) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return &Logger{out: &buf, minLevel: minLevel}, &buf
}

// TestLoggerJSONEntry tests that entries are emitted as one JSON line.
func TestLoggerJSONEntry(t *testing.T) {
	l, buf := newTestLogger(LevelDebug)

	l.Info("sync started", map[string]interface{}{"user_id": "u1"})

	line := strings.TrimSpace(buf.String())
	var entry LogEntry
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("Failed to parse log line as JSON: %v", err)
	}

	if entry.Level != "INFO" {
		t.Errorf("Expected level INFO, got %s", entry.Level)
	}
	if entry.Message != "sync started" {
		t.Errorf("Expected message %q, got %q", "sync started", entry.Message)
	}
	if entry.Context["user_id"] != "u1" {
		t.Errorf("Expected context user_id u1, got %v", entry.Context["user_id"])
	}
}

// TestLoggerLevelFilter tests that entries below the minimum level are dropped.
func TestLoggerLevelFilter(t *testing.T) {
	l, buf := newTestLogger(LevelWarn)

	l.Debug("dropped")
	l.Info("dropped too")
	if buf.Len() != 0 {
		t.Errorf("Expected no output below min level, got %q", buf.String())
	}

	l.Warn("kept")
	if buf.Len() == 0 {
		t.Error("Expected warn entry to be written")
	}
}

// TestLoggerErrorWithCode tests that error codes land in the entry.
func TestLoggerErrorWithCode(t *testing.T) {
	l, buf := newTestLogger(LevelDebug)

	l.ErrorWithCode("cycle failed", "SYNC_FAILED", fmt.Errorf("boom"))

	var entry LogEntry
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("Failed to parse log line: %v", err)
	}
	if entry.Code != "SYNC_FAILED" {
		t.Errorf("Expected code SYNC_FAILED, got %s", entry.Code)
	}
	if entry.Error != "boom" {
		t.Errorf("Expected error boom, got %s", entry.Error)
	}
}

// TestMergeContext tests merging of multiple context maps.
func TestMergeContext(t *testing.T) {
	merged := mergeContext(
		map[string]interface{}{"a": 1},
		map[string]interface{}{"b": 2},
	)
	if merged["a"] != 1 || merged["b"] != 2 {
		t.Errorf("Expected merged context with both keys, got %v", merged)
	}

	if mergeContext() != nil {
		t.Error("Expected nil for empty context")
	}
}
