// Package click tracks pending network-click transactions between the
// request and confirmation phases of the two-phase commit.
//
// A transaction is created when a click request passes validation, consumed
// exactly once by the matching confirmation, and garbage-collected after the
// click timeout. Expiry is evaluated lazily: an expired transaction is
// simply absent at consume time.
package click

import (
	"time"

	"github.com/lsh-protocol/lshd/pkg/clock"
	"github.com/lsh-protocol/lshd/pkg/config"
	"github.com/lsh-protocol/lshd/pkg/protocol"
)

// Transaction is a pending click awaiting confirmation.
type Transaction struct {
	// Actors are the targeted LSH devices.
	Actors []config.Actor

	// OtherActors are external actuator names.
	OtherActors []string

	// CreatedAt is when the request was accepted.
	CreatedAt time.Time
}

// Key builds the transaction key for a click: "<device>.<buttonID>.<clickType>".
func Key(device, buttonID string, ct protocol.ClickType) string {
	return device + "." + buttonID + "." + string(ct)
}

// Manager holds pending click transactions. Part of the single-threaded
// orchestrator core; callers serialise access.
type Manager struct {
	clock   clock.Clock
	timeout time.Duration
	pending map[string]*Transaction
}

// NewManager creates a manager with the given click timeout.
func NewManager(clk clock.Clock, timeout time.Duration) *Manager {
	return &Manager{
		clock:   clk,
		timeout: timeout,
		pending: make(map[string]*Transaction),
	}
}

// Start records a pending transaction, unconditionally overwriting any
// prior one under the same key.
func (m *Manager) Start(key string, actors []config.Actor, otherActors []string) {
	m.pending[key] = &Transaction{
		Actors:      actors,
		OtherActors: otherActors,
		CreatedAt:   m.clock.Now(),
	}
}

// Consume atomically looks up and deletes a transaction. Expired
// transactions are absent.
func (m *Manager) Consume(key string) (*Transaction, bool) {
	tx, ok := m.pending[key]
	if !ok {
		return nil, false
	}
	delete(m.pending, key)
	if m.clock.Now().Sub(tx.CreatedAt) > m.timeout {
		return nil, false
	}
	return tx, true
}

// CleanupExpired removes every transaction older than the click timeout.
// Returns the number removed.
func (m *Manager) CleanupExpired() int {
	now := m.clock.Now()
	removed := 0
	for key, tx := range m.pending {
		if now.Sub(tx.CreatedAt) > m.timeout {
			delete(m.pending, key)
			removed++
		}
	}
	return removed
}

// PendingCount returns the number of pending transactions.
func (m *Manager) PendingCount() int {
	return len(m.pending)
}
