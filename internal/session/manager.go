// Package session holds the per-interaction mutable state of the engine:
// the exchange-rate collection queue of a settlement run and the
// allocation accumulator of an itemized split. Sessions are keyed by
// (context, actor) so concurrent flows in different chats never share
// state, and expire after a TTL so an abandoned flow does not leak.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/tallybot/tallybot/internal/models"
)

// ErrNotFound is returned when no live session exists for the key.
var ErrNotFound = errors.New("no active session")

// DefaultTTL is how long an untouched session stays alive.
const DefaultTTL = 30 * time.Minute

// Key identifies one in-flight interaction.
type Key struct {
	Context models.Context
	ActorID int64
}

// Manager owns all live sessions. It is safe for concurrent use by
// multiple request handlers. Expiry is enforced lazily: expired sessions
// are dropped when looked up and swept when a new session begins; there
// is no background timer.
type Manager struct {
	mu          sync.Mutex
	ttl         time.Duration
	now         func() time.Time
	settlements map[Key]*Settlement
	allocations map[Key]*Allocation
}

// NewManager creates a session manager. A non-positive ttl falls back to
// DefaultTTL.
func NewManager(ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		ttl:         ttl,
		now:         time.Now,
		settlements: make(map[Key]*Settlement),
		allocations: make(map[Key]*Allocation),
	}
}

// BeginSettlement starts a settlement session for the key, replacing any
// previous one for the same key.
func (m *Manager) BeginSettlement(key Key, s *Settlement) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()
	s.touched = m.now()
	m.settlements[key] = s
}

// Settlement returns the live settlement session for the key and
// refreshes its TTL.
func (m *Manager) Settlement(key Key) (*Settlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settlements[key]
	if !ok || m.expired(s.touched) {
		delete(m.settlements, key)
		return nil, ErrNotFound
	}
	s.touched = m.now()
	return s, nil
}

// EndSettlement discards the settlement session for the key, if any.
func (m *Manager) EndSettlement(key Key) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.settlements, key)
}

// BeginAllocation starts an allocation session for the key, replacing
// any previous one for the same key.
func (m *Manager) BeginAllocation(key Key, a *Allocation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()
	a.touched = m.now()
	m.allocations[key] = a
}

// Allocation returns the live allocation session for the key and
// refreshes its TTL.
func (m *Manager) Allocation(key Key) (*Allocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.allocations[key]
	if !ok || m.expired(a.touched) {
		delete(m.allocations, key)
		return nil, ErrNotFound
	}
	a.touched = m.now()
	return a, nil
}

// EndAllocation discards the allocation session for the key, if any.
func (m *Manager) EndAllocation(key Key) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.allocations, key)
}

func (m *Manager) expired(touched time.Time) bool {
	return m.now().Sub(touched) > m.ttl
}

func (m *Manager) sweepLocked() {
	for key, s := range m.settlements {
		if m.expired(s.touched) {
			delete(m.settlements, key)
		}
	}
	for key, a := range m.allocations {
		if m.expired(a.touched) {
			delete(m.allocations, key)
		}
	}
}
