package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tnjtools/alertqueue/internal/domain"
)

// ChangeFunc receives a copy of a row before and after a mutation.
// before is nil for inserts.
type ChangeFunc func(op string, before, after *domain.QueueItem)

// MockQueueRepository is a hand-written, in-memory implementation of
// QueueRepository used in unit tests. It honours the same conditional-update
// semantics as the SQL version, including the single-playing-row index.
type MockQueueRepository struct {
	mu     sync.Mutex
	items  map[string]*domain.QueueItem
	writes int

	// OnChange mirrors the database notify trigger: it fires for inserts and
	// status changes, not for heartbeats.
	OnChange ChangeFunc

	// Optional error overrides, set in tests to simulate failure paths.
	ListErr      error
	ClaimErr     error
	HeartbeatErr error
	CompleteErr  error
}

func NewMockQueueRepository() *MockQueueRepository {
	return &MockQueueRepository{items: make(map[string]*domain.QueueItem)}
}

// Writes returns the number of mutations that changed a row.
func (m *MockQueueRepository) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Seed stores an item as-is without counting a write or notifying.
func (m *MockQueueRepository) Seed(items ...*domain.QueueItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range items {
		m.items[it.ID] = cloneItem(it)
	}
}

func (m *MockQueueRepository) Insert(_ context.Context, it *domain.QueueItem) error {
	m.mu.Lock()
	m.items[it.ID] = cloneItem(it)
	m.writes++
	added := cloneItem(it)
	m.mu.Unlock()

	m.notify("INSERT", nil, added)
	return nil
}

func (m *MockQueueRepository) GetByID(_ context.Context, id string) (*domain.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneItem(it), nil
}

func (m *MockQueueRepository) List(_ context.Context) ([]*domain.QueueItem, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*domain.QueueItem, 0, len(m.items))
	for _, it := range m.items {
		result = append(result, cloneItem(it))
	}
	domain.SortQueue(result)
	return result, nil
}

func (m *MockQueueRepository) ClaimPending(_ context.Context, id, owner string, at time.Time) (bool, error) {
	if m.ClaimErr != nil {
		return false, m.ClaimErr
	}
	m.mu.Lock()
	it, ok := m.items[id]
	if !ok || it.Status != domain.StatusPending || m.playingLocked() {
		m.mu.Unlock()
		return false, nil
	}
	old := cloneItem(it)
	it.Status = domain.StatusPlaying
	it.StateChangedAt = at
	it.HeartbeatAt = &at
	it.ClaimedBy = &owner
	m.writes++
	updated := cloneItem(it)
	m.mu.Unlock()

	m.notify("UPDATE", old, updated)
	return true, nil
}

func (m *MockQueueRepository) Heartbeat(_ context.Context, id string, at time.Time) (bool, error) {
	if m.HeartbeatErr != nil {
		return false, m.HeartbeatErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok || it.Status != domain.StatusPlaying {
		return false, nil
	}
	it.HeartbeatAt = &at
	m.writes++
	return true, nil
}

func (m *MockQueueRepository) Complete(_ context.Context, id string, at time.Time) (bool, error) {
	if m.CompleteErr != nil {
		return false, m.CompleteErr
	}
	m.mu.Lock()
	it, ok := m.items[id]
	if !ok || it.Status != domain.StatusPlaying {
		m.mu.Unlock()
		return false, nil
	}
	old, updated := m.completeLocked(it, at)
	m.mu.Unlock()

	m.notify("UPDATE", old, updated)
	return true, nil
}

func (m *MockQueueRepository) CompleteStale(_ context.Context, cutoff, at time.Time) ([]string, error) {
	return m.completeMatching(at, func(it *domain.QueueItem) bool {
		return it.LastSeen().Before(cutoff)
	})
}

func (m *MockQueueRepository) CompleteAllPlaying(_ context.Context, at time.Time) ([]string, error) {
	return m.completeMatching(at, func(*domain.QueueItem) bool { return true })
}

func (m *MockQueueRepository) completeMatching(at time.Time, match func(*domain.QueueItem) bool) ([]string, error) {
	if m.CompleteErr != nil {
		return nil, m.CompleteErr
	}
	type change struct{ before, after *domain.QueueItem }
	var changes []change

	m.mu.Lock()
	for _, it := range m.items {
		if it.Status == domain.StatusPlaying && match(it) {
			old, updated := m.completeLocked(it, at)
			changes = append(changes, change{old, updated})
		}
	}
	m.mu.Unlock()

	ids := make([]string, 0, len(changes))
	for _, c := range changes {
		ids = append(ids, c.after.ID)
		m.notify("UPDATE", c.before, c.after)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MockQueueRepository) completeLocked(it *domain.QueueItem, at time.Time) (old, updated *domain.QueueItem) {
	old = cloneItem(it)
	it.Status = domain.StatusCompleted
	it.StateChangedAt = at
	it.CompletedAt = &at
	m.writes++
	return old, cloneItem(it)
}

func (m *MockQueueRepository) playingLocked() bool {
	for _, it := range m.items {
		if it.Status == domain.StatusPlaying {
			return true
		}
	}
	return false
}

func (m *MockQueueRepository) notify(op string, before, after *domain.QueueItem) {
	if m.OnChange != nil {
		m.OnChange(op, before, after)
	}
}

func cloneItem(it *domain.QueueItem) *domain.QueueItem {
	c := *it
	if it.Username != nil {
		v := *it.Username
		c.Username = &v
	}
	if it.Count != nil {
		v := *it.Count
		c.Count = &v
	}
	if it.HeartbeatAt != nil {
		v := *it.HeartbeatAt
		c.HeartbeatAt = &v
	}
	if it.CompletedAt != nil {
		v := *it.CompletedAt
		c.CompletedAt = &v
	}
	if it.ClaimedBy != nil {
		v := *it.ClaimedBy
		c.ClaimedBy = &v
	}
	return &c
}
