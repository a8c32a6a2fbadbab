package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrConflict = errors.New("session is already ending")
)

// Manager is the in-process registry of active call sessions. A session is
// reachable until End, Remove or the expiry sweep removes it; removal is
// final. A claimed session is still registered but rejects every mutation
// until it is removed or released.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	claimed  map[string]struct{}
	timeout  time.Duration
	onExpire func(*Session)
	now      func() time.Time
	newID    func() (uuid.UUID, error)
}

func NewManager(timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &Manager{
		sessions: make(map[string]*Session),
		claimed:  make(map[string]struct{}),
		timeout:  timeout,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewRandom,
	}
}

func (m *Manager) SetExpireHook(hook func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// SetClock replaces the time source. Intended for tests.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Manager) Timeout() time.Duration { return m.timeout }

// Create registers a new active session with an empty conversation. It fails
// only when a random identifier cannot be generated.
func (m *Manager) Create() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var id string
	for {
		u, err := m.newID()
		if err != nil {
			return nil, fmt.Errorf("generate session id: %w", err)
		}
		id = u.String()
		if _, taken := m.sessions[id]; !taken {
			break
		}
	}

	now := m.now()
	s := &Session{
		ID:             id,
		Exchanges:      []Exchange{},
		CreatedAt:      now,
		LastActivityAt: now,
	}
	m.sessions[id] = s
	return clone(s), nil
}

func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.lookup(sessionID)
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

// lookup returns the session only while it is open. Callers hold mu.
func (m *Manager) lookup(sessionID string) (*Session, bool) {
	if _, ending := m.claimed[sessionID]; ending {
		return nil, false
	}
	s, ok := m.sessions[sessionID]
	return s, ok
}

func (m *Manager) Touch(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.lookup(sessionID)
	if !ok {
		return ErrNotFound
	}
	s.LastActivityAt = m.now()
	return nil
}

// AppendExchange adds ex to the conversation and returns the new exchange
// count.
func (m *Manager) AppendExchange(sessionID string, ex Exchange) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.lookup(sessionID)
	if !ok {
		return 0, ErrNotFound
	}
	if ex.Timestamp == "" {
		ex.Timestamp = m.now().Format(time.RFC3339Nano)
	}
	s.Exchanges = append(s.Exchanges, ex)
	s.LastActivityAt = m.now()
	return len(s.Exchanges), nil
}

// ContextWindow returns up to n of the most recent exchanges in
// chronological order.
func (m *Manager) ContextWindow(sessionID string, n int) ([]Exchange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.lookup(sessionID)
	if !ok {
		return nil, ErrNotFound
	}
	return Recent(s.Exchanges, n), nil
}

// End removes the session and returns its final state. Only one caller can
// ever observe a given session through End.
func (m *Manager) End(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if _, ending := m.claimed[sessionID]; ending {
		return nil, ErrConflict
	}
	delete(m.sessions, sessionID)
	return clone(s), nil
}

// Claim marks the session as ending and returns its final state. While
// claimed it accepts no exchanges and cannot be claimed or ended again; the
// claimant finishes with Remove on success or Release on failure.
func (m *Manager) Claim(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if _, ending := m.claimed[sessionID]; ending {
		return nil, ErrConflict
	}
	m.claimed[sessionID] = struct{}{}
	return clone(s), nil
}

// Remove deletes a claimed session for good.
func (m *Manager) Remove(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ending := m.claimed[sessionID]; !ending {
		if _, ok := m.sessions[sessionID]; ok {
			return ErrConflict
		}
		return ErrNotFound
	}
	delete(m.claimed, sessionID)
	delete(m.sessions, sessionID)
	return nil
}

// Release reopens a claimed session whose archiving did not complete. Its
// exchanges and creation time are unchanged.
func (m *Manager) Release(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ending := m.claimed[sessionID]; !ending {
		return ErrNotFound
	}
	delete(m.claimed, sessionID)
	return nil
}

// SweepExpired removes every session older than timeout, measured from
// creation. Removed conversations are not archived. Claimed sessions are left
// to their claimant; a released one is swept on the next pass.
func (m *Manager) SweepExpired(timeout time.Duration) []*Session {
	if timeout <= 0 {
		timeout = m.timeout
	}

	var expired []*Session
	m.mu.Lock()
	now := m.now()
	for id, s := range m.sessions {
		if now.Sub(s.CreatedAt) <= timeout {
			continue
		}
		if _, ending := m.claimed[id]; ending {
			continue
		}
		delete(m.sessions, id)
		expired = append(expired, clone(s))
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, s := range expired {
			hook(s)
		}
	}
	return expired
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.SweepExpired(m.timeout)
			}
		}
	}()
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Recent returns a copy of the last n exchanges. n <= 0 yields none.
func Recent(exchanges []Exchange, n int) []Exchange {
	if n <= 0 || len(exchanges) == 0 {
		return []Exchange{}
	}
	if n > len(exchanges) {
		n = len(exchanges)
	}
	out := make([]Exchange, n)
	copy(out, exchanges[len(exchanges)-n:])
	return out
}

func clone(s *Session) *Session {
	c := *s
	c.Exchanges = make([]Exchange, len(s.Exchanges))
	copy(c.Exchanges, s.Exchanges)
	return &c
}
