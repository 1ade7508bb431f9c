package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tnjtools/alertqueue/internal/domain"
	"github.com/tnjtools/alertqueue/internal/feed"
	"github.com/tnjtools/alertqueue/internal/queue"
	"github.com/tnjtools/alertqueue/internal/repository"
)

var t0 = time.Date(2026, 10, 15, 20, 0, 0, 0, time.UTC)

func item(id string, offset time.Duration, status domain.Status) *domain.QueueItem {
	return &domain.QueueItem{ID: id, AlertID: "a", Status: status, CreatedAt: t0.Add(offset), StateChangedAt: t0.Add(offset)}
}

func TestReader_RefetchOrdersSnapshot(t *testing.T) {
	repo := repository.NewMockQueueRepository()
	repo.Seed(
		item("late", 2*time.Second, domain.StatusPending),
		item("early", time.Second, domain.StatusPending),
		item("live", 0, domain.StatusPlaying),
	)
	r := queue.NewReader(repo, zap.NewNop())

	var counts domain.StatusCounts
	r.OnSnapshot(func(c domain.StatusCounts) { counts = c })

	if err := r.Refetch(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := r.Snapshot()
	if len(snap) != 3 || snap[0].ID != "live" || snap[1].ID != "early" || snap[2].ID != "late" {
		t.Fatalf("unexpected order: %v", ids(snap))
	}
	if p := r.Playing(); p == nil || p.ID != "live" {
		t.Fatalf("expected live to be playing, got %+v", p)
	}
	if counts.Pending != 2 || counts.Playing != 1 {
		t.Fatalf("unexpected counts %+v", counts)
	}
	if r.Version() != 1 {
		t.Fatalf("expected version 1, got %d", r.Version())
	}
}

// TestReader_RetainsSnapshotOnFailure verifies a failed read leaves the
// previous snapshot in place.
func TestReader_RetainsSnapshotOnFailure(t *testing.T) {
	repo := repository.NewMockQueueRepository()
	repo.Seed(item("p1", 0, domain.StatusPending))
	r := queue.NewReader(repo, zap.NewNop())
	ctx := context.Background()

	if err := r.Refetch(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	repo.ListErr = errors.New("connection refused")
	if err := r.Refetch(ctx); err == nil {
		t.Fatal("expected refetch error")
	}

	snap := r.Snapshot()
	if len(snap) != 1 || snap[0].ID != "p1" {
		t.Fatalf("expected previous snapshot to be retained, got %v", ids(snap))
	}
	if r.Version() != 1 {
		t.Fatalf("expected version to stay at 1, got %d", r.Version())
	}
}

func TestReader_FollowRefetchesOnChange(t *testing.T) {
	repo := repository.NewMockQueueRepository()
	broker := feed.NewBroker(zap.NewNop())
	repo.OnChange = func(op string, before, after *domain.QueueItem) {
		broker.Publish(feed.ChangeEvent{Table: feed.QueueTable, Op: feed.Op(op), Old: before, New: after})
	}
	r := queue.NewReader(repo, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Follow(ctx, broker)

	deadline := time.Now().Add(2 * time.Second)
	for broker.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("reader never subscribed")
		}
		time.Sleep(time.Millisecond)
	}

	_ = repo.Insert(ctx, item("p1", 0, domain.StatusPending))

	for r.Counts().Pending != 1 {
		if time.Now().After(deadline) {
			t.Fatal("snapshot was not refreshed after insert event")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func ids(items []*domain.QueueItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}
