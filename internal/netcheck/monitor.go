// Package netcheck answers one question for the sync scheduler: does the
// device currently have connectivity. Detection is a cheap TCP dial to
// the API host; callers can force the answer for testing or a manual
// offline mode.
package netcheck

import (
	"net"
	"sync"
	"time"

	"github.com/stablebook/stablesync/internal/logging"
)

const defaultTimeout = 3 * time.Second

// Monitor probes reachability of a single address.
type Monitor struct {
	addr    string
	timeout time.Duration

	mu       sync.RWMutex
	override *bool
}

// NewMonitor creates a Monitor probing addr (host:port).
func NewMonitor(addr string, timeout time.Duration) *Monitor {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Monitor{addr: addr, timeout: timeout}
}

// Online reports whether the probe address is reachable. A manual
// override, when set, answers without dialing.
func (m *Monitor) Online() bool {
	m.mu.RLock()
	override := m.override
	m.mu.RUnlock()
	if override != nil {
		return *override
	}

	conn, err := net.DialTimeout("tcp", m.addr, m.timeout)
	if err != nil {
		logging.Debug("Connectivity probe failed", map[string]interface{}{
			"addr":  m.addr,
			"error": err.Error(),
		})
		return false
	}
	conn.Close()
	return true
}

// SetOnlineStatus forces the reported status, bypassing the probe.
func (m *Monitor) SetOnlineStatus(online bool) {
	m.mu.Lock()
	m.override = &online
	m.mu.Unlock()

	logging.Info("Online status override set", map[string]interface{}{
		"is_online": online,
	})
}

// ClearOverride returns the monitor to probe-based detection.
func (m *Monitor) ClearOverride() {
	m.mu.Lock()
	m.override = nil
	m.mu.Unlock()
}
