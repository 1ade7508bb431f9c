package repository

import (
	"context"
	"time"

	"github.com/tnjtools/alertqueue/internal/domain"
)

// QueueRepository defines all persistence operations on the alert queue.
// Every mutation is a single conditional UPDATE keyed by the expected prior
// status; a false result means another writer got there first.
// The pgx implementation is in pg_queue_repo.go.
// Tests use a hand-written mock (mock_queue_repo.go).
type QueueRepository interface {
	Insert(ctx context.Context, item *domain.QueueItem) error
	GetByID(ctx context.Context, id string) (*domain.QueueItem, error)
	// List returns every row in processing order (created_at, id).
	List(ctx context.Context) ([]*domain.QueueItem, error)

	// ClaimPending moves id from pending to playing. It reports false when
	// the row is no longer pending or another row is already playing.
	ClaimPending(ctx context.Context, id, owner string, at time.Time) (bool, error)
	// Heartbeat stamps heartbeat_at on a row that is still playing.
	Heartbeat(ctx context.Context, id string, at time.Time) (bool, error)
	// Complete moves id from playing to completed.
	Complete(ctx context.Context, id string, at time.Time) (bool, error)
	// CompleteStale completes playing rows last seen before cutoff.
	CompleteStale(ctx context.Context, cutoff, at time.Time) ([]string, error)
	// CompleteAllPlaying completes every playing row regardless of age.
	CompleteAllPlaying(ctx context.Context, at time.Time) ([]string, error)
}

// AlertRepository persists alert definitions.
type AlertRepository interface {
	Create(ctx context.Context, a *domain.Alert) error
	GetByID(ctx context.Context, id string) (*domain.Alert, error)
	GetBySlug(ctx context.Context, slug string) (*domain.Alert, error)
	List(ctx context.Context) ([]*domain.Alert, error)
}
