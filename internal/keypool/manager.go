package keypool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mohamed-oubenma/smarTube/pkg/log"
)

var (
	// ErrNoKeysConfigured means the pool is empty. The panel shows the
	// key-setup prompt for this one instead of a raw error message.
	ErrNoKeysConfigured = errors.New("no Supadata API keys configured")

	// ErrAllKeysExhausted means every credential is rate-limited or has
	// already been tried in the current fetch cycle.
	ErrAllKeysExhausted = errors.New("all Supadata API keys are currently rate-limited or exhausted")
)

// Manager owns the rotating credential pool. All mutations persist through
// the Store before the caller proceeds, so a crash mid-cycle leaves state the
// next invocation can trust.
type Manager struct {
	store Store

	mu       sync.Mutex
	keys     []APIKey
	activeID string
}

// NewManager hydrates the pool and the active-key pointer from the store.
func NewManager(ctx context.Context, store Store) (*Manager, error) {
	keys, err := store.LoadKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("load api keys: %w", err)
	}
	activeID, err := store.ActiveKeyID(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active key id: %w", err)
	}
	return &Manager{
		store:    store,
		keys:     keys,
		activeID: activeID,
	}, nil
}

// Select returns the credential to use next. The active key wins when it is
// usable and untried; otherwise the pool is scanned in registration order and
// the first usable key becomes active.
func (m *Manager) Select(ctx context.Context, tried map[string]bool) (APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.keys) == 0 {
		return APIKey{}, ErrNoKeysConfigured
	}

	if active, ok := m.findLocked(m.activeID); ok && !active.IsRateLimited && !tried[active.ID] {
		return active, nil
	}

	for _, key := range m.keys {
		if key.IsRateLimited || tried[key.ID] {
			continue
		}
		if key.ID != m.activeID {
			m.activeID = key.ID
			if err := m.store.SetActiveKeyID(ctx, key.ID); err != nil {
				return APIKey{}, fmt.Errorf("persist active key id: %w", err)
			}
			log.Info("Switched to available Supadata key: %s", keyLabel(key))
		}
		return key, nil
	}

	return APIKey{}, ErrAllKeysExhausted
}

// MarkRateLimited flags the key, advances the active pointer to the next
// untried non-rate-limited candidate in rotation order, and persists both.
// It returns the chosen candidate so the caller need not re-scan.
func (m *Manager) MarkRateLimited(ctx context.Context, id string, tried map[string]bool) (APIKey, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.indexLocked(id)
	if idx >= 0 {
		m.keys[idx].IsRateLimited = true
	}

	next, found := m.nextCandidateLocked(idx, tried)
	if found {
		m.activeID = next.ID
	}

	if err := m.persistLocked(ctx); err != nil {
		return APIKey{}, false, err
	}
	return next, found, nil
}

// MarkSucceeded optimistically clears the rate-limit flag: a request that
// just went through proves the limit no longer applies.
func (m *Manager) MarkSucceeded(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.indexLocked(id)
	if idx < 0 || !m.keys[idx].IsRateLimited {
		return nil
	}
	m.keys[idx].IsRateLimited = false
	if err := m.store.SaveKeys(ctx, m.snapshotLocked()); err != nil {
		return fmt.Errorf("persist api keys: %w", err)
	}
	return nil
}

// NextCandidate scans the pool starting one past the given key, wrapping
// once, and returns the first key that is neither rate-limited nor tried.
// Used for transport errors, where the failing key keeps its flags.
func (m *Manager) NextCandidate(ctx context.Context, afterID string, tried map[string]bool) (APIKey, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, found := m.nextCandidateLocked(m.indexLocked(afterID), tried)
	if found && next.ID != m.activeID {
		m.activeID = next.ID
		if err := m.store.SetActiveKeyID(ctx, next.ID); err != nil {
			return APIKey{}, false, fmt.Errorf("persist active key id: %w", err)
		}
	}
	return next, found, nil
}

// Size returns the number of configured keys.
func (m *Manager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.keys)
}

// List returns a snapshot of the pool in registration order.
func (m *Manager) List() []APIKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Add registers a new credential at the end of the rotation. The first key
// added to an empty pool becomes active.
func (m *Manager) Add(ctx context.Context, name, secret string) (APIKey, error) {
	name = strings.TrimSpace(name)
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return APIKey{}, fmt.Errorf("key secret is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := APIKey{
		ID:     uuid.NewString(),
		Name:   name,
		Secret: secret,
	}
	m.keys = append(m.keys, key)
	if m.activeID == "" {
		m.activeID = key.ID
	}
	if err := m.persistLocked(ctx); err != nil {
		return APIKey{}, err
	}
	return key, nil
}

// Remove deletes a credential. Removing the active key moves the pointer to
// the first remaining key, or clears it for an emptied pool.
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.indexLocked(id)
	if idx < 0 {
		return fmt.Errorf("unknown key id %q", id)
	}
	m.keys = append(m.keys[:idx], m.keys[idx+1:]...)
	if m.activeID == id {
		m.activeID = ""
		if len(m.keys) > 0 {
			m.activeID = m.keys[0].ID
		}
	}
	return m.persistLocked(ctx)
}

// ResetRateLimit clears the rate-limit flag on a key without a successful
// request, for when the user knows the quota window has rolled over.
func (m *Manager) ResetRateLimit(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.indexLocked(id)
	if idx < 0 {
		return fmt.Errorf("unknown key id %q", id)
	}
	if !m.keys[idx].IsRateLimited {
		return nil
	}
	m.keys[idx].IsRateLimited = false
	if err := m.store.SaveKeys(ctx, m.snapshotLocked()); err != nil {
		return fmt.Errorf("persist api keys: %w", err)
	}
	return nil
}

func (m *Manager) findLocked(id string) (APIKey, bool) {
	idx := m.indexLocked(id)
	if idx < 0 {
		return APIKey{}, false
	}
	return m.keys[idx], true
}

func (m *Manager) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i, key := range m.keys {
		if key.ID == id {
			return i
		}
	}
	return -1
}

// nextCandidateLocked walks the pool starting at (idx+1) mod size, wrapping
// exactly once. An unknown idx (-1) starts the scan at the pool head.
func (m *Manager) nextCandidateLocked(idx int, tried map[string]bool) (APIKey, bool) {
	size := len(m.keys)
	if size == 0 {
		return APIKey{}, false
	}
	for i := 0; i < size; i++ {
		candidate := m.keys[(idx+1+i)%size]
		if candidate.IsRateLimited || tried[candidate.ID] {
			continue
		}
		return candidate, true
	}
	return APIKey{}, false
}

func (m *Manager) persistLocked(ctx context.Context) error {
	if err := m.store.SaveKeys(ctx, m.snapshotLocked()); err != nil {
		return fmt.Errorf("persist api keys: %w", err)
	}
	if err := m.store.SetActiveKeyID(ctx, m.activeID); err != nil {
		return fmt.Errorf("persist active key id: %w", err)
	}
	return nil
}

func (m *Manager) snapshotLocked() []APIKey {
	ret := make([]APIKey, len(m.keys))
	copy(ret, m.keys)
	return ret
}

func keyLabel(key APIKey) string {
	if key.Name != "" {
		return key.Name
	}
	return key.ID
}
