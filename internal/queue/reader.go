// Package queue keeps an eventually consistent, in-memory snapshot of the
// alert queue table for the coordinator and the HTTP API.
package queue

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/tnjtools/alertqueue/internal/domain"
	"github.com/tnjtools/alertqueue/internal/feed"
)

// Lister is the read side of the queue store.
type Lister interface {
	List(ctx context.Context) ([]*domain.QueueItem, error)
}

// Reader holds the latest snapshot of every queue row.
// A failed refetch keeps the previous snapshot; retrying is left to
// whoever triggers the next refetch.
type Reader struct {
	store  Lister
	logger *zap.Logger

	mu      sync.RWMutex
	items   []*domain.QueueItem
	version uint64

	hooksMu    sync.Mutex
	onSnapshot []func(domain.StatusCounts)
}

func NewReader(store Lister, logger *zap.Logger) *Reader {
	return &Reader{store: store, logger: logger}
}

// OnSnapshot registers a callback receiving per-status counts after every
// successful refetch. Callbacks run in registration order and must not
// block.
func (r *Reader) OnSnapshot(fn func(domain.StatusCounts)) {
	if fn == nil {
		return
	}
	r.hooksMu.Lock()
	r.onSnapshot = append(r.onSnapshot, fn)
	r.hooksMu.Unlock()
}

// Refetch reads the store and replaces the snapshot. It returns once the
// new snapshot is visible to Snapshot callers.
func (r *Reader) Refetch(ctx context.Context) error {
	items, err := r.store.List(ctx)
	if err != nil {
		return fmt.Errorf("refetch queue: %w", err)
	}
	domain.SortQueue(items)

	r.mu.Lock()
	r.items = items
	r.version++
	r.mu.Unlock()

	counts := domain.CountByStatus(items)
	r.hooksMu.Lock()
	hooks := r.onSnapshot
	r.hooksMu.Unlock()
	for _, fn := range hooks {
		fn(counts)
	}
	return nil
}

// Snapshot returns the current rows in processing order. The slice is a
// copy; the items must be treated as read-only.
func (r *Reader) Snapshot() []*domain.QueueItem {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.QueueItem, len(r.items))
	copy(out, r.items)
	return out
}

// Version increases by one on every successful refetch.
func (r *Reader) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// Playing returns the playing item in the current snapshot, or nil.
func (r *Reader) Playing() *domain.QueueItem {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return domain.CurrentlyPlaying(r.items)
}

func (r *Reader) Counts() domain.StatusCounts {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return domain.CountByStatus(r.items)
}

// Follow refetches on every queue change event until ctx is cancelled or
// the subscription closes.
func (r *Reader) Follow(ctx context.Context, f feed.Feed) {
	events := f.Subscribe(ctx, feed.Filter{Table: feed.QueueTable})
	for range events {
		if err := r.Refetch(ctx); err != nil && ctx.Err() == nil {
			r.logger.Warn("queue refetch after change event failed", zap.Error(err))
		}
	}
}
