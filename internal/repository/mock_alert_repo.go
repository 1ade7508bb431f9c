package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/tnjtools/alertqueue/internal/domain"
)

// MockAlertRepository is an in-memory AlertRepository for unit tests.
type MockAlertRepository struct {
	mu     sync.RWMutex
	alerts map[string]*domain.Alert

	GetErr error
}

func NewMockAlertRepository(alerts ...*domain.Alert) *MockAlertRepository {
	m := &MockAlertRepository{alerts: make(map[string]*domain.Alert)}
	for _, a := range alerts {
		clone := *a
		m.alerts[a.ID] = &clone
	}
	return m
}

func (m *MockAlertRepository) Create(_ context.Context, a *domain.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.alerts {
		if existing.Slug == a.Slug {
			return domain.ErrConflict
		}
	}
	clone := *a
	m.alerts[a.ID] = &clone
	return nil
}

func (m *MockAlertRepository) GetByID(_ context.Context, id string) (*domain.Alert, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.alerts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *a
	return &clone, nil
}

func (m *MockAlertRepository) GetBySlug(_ context.Context, slug string) (*domain.Alert, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.alerts {
		if a.Slug == slug {
			clone := *a
			return &clone, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockAlertRepository) List(_ context.Context) ([]*domain.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		clone := *a
		result = append(result, &clone)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Title < result[j].Title })
	return result, nil
}
