package domain_test

import (
	"testing"
	"time"

	"github.com/tnjtools/alertqueue/internal/domain"
)

var t0 = time.Date(2026, 10, 15, 20, 0, 0, 0, time.UTC)

func queued(id string, created time.Time, status domain.Status) *domain.QueueItem {
	return &domain.QueueItem{ID: id, AlertID: "alert", Status: status, CreatedAt: created, StateChangedAt: created}
}

func TestNextPending_OldestFirst(t *testing.T) {
	items := []*domain.QueueItem{
		queued("p3", t0.Add(3*time.Second), domain.StatusPending),
		queued("p1", t0.Add(1*time.Second), domain.StatusPending),
		queued("done", t0, domain.StatusCompleted),
		queued("p2", t0.Add(2*time.Second), domain.StatusPending),
	}

	next := domain.NextPending(items)
	if next == nil || next.ID != "p1" {
		t.Fatalf("expected p1, got %+v", next)
	}
}

func TestNextPending_TieBreakByID(t *testing.T) {
	items := []*domain.QueueItem{
		queued("b", t0, domain.StatusPending),
		queued("c", t0, domain.StatusPending),
		queued("a", t0, domain.StatusPending),
	}
	if next := domain.NextPending(items); next.ID != "a" {
		t.Fatalf("expected a, got %s", next.ID)
	}

	domain.SortQueue(items)
	for i, want := range []string{"a", "b", "c"} {
		if items[i].ID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, items[i].ID)
		}
	}
}

func TestNextPending_None(t *testing.T) {
	items := []*domain.QueueItem{queued("x", t0, domain.StatusPlaying)}
	if next := domain.NextPending(items); next != nil {
		t.Fatalf("expected nil, got %s", next.ID)
	}
}

func TestQueueItem_IsStale(t *testing.T) {
	hb := t0.Add(5 * time.Second)
	item := queued("x", t0, domain.StatusPlaying)
	item.HeartbeatAt = &hb

	if item.IsStale(t0.Add(10*time.Second), 10*time.Second) {
		t.Fatal("heartbeat 5s old must not be stale with a 10s window")
	}
	if !item.IsStale(t0.Add(16*time.Second), 10*time.Second) {
		t.Fatal("heartbeat 11s old must be stale with a 10s window")
	}

	item.Status = domain.StatusCompleted
	if item.IsStale(t0.Add(time.Hour), time.Second) {
		t.Fatal("completed items are never stale")
	}
}

func TestCountByStatus(t *testing.T) {
	items := []*domain.QueueItem{
		queued("a", t0, domain.StatusPending),
		queued("b", t0, domain.StatusPending),
		queued("c", t0, domain.StatusPlaying),
		queued("d", t0, domain.StatusCompleted),
	}
	c := domain.CountByStatus(items)
	if c.Pending != 2 || c.Playing != 1 || c.Completed != 1 {
		t.Fatalf("unexpected counts %+v", c)
	}
}
