package domain

import (
	"sort"
	"time"
)

// Status tracks the lifecycle of a queue item.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPlaying   Status = "playing"
	StatusCompleted Status = "completed"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusPlaying, StatusCompleted:
		return true
	}
	return false
}

// QueueItem is one alert waiting for, occupying, or done with the display.
// Rows are inserted as pending by triggers and only ever mutated through
// conditional updates keyed by ID and expected prior status.
type QueueItem struct {
	ID             string     `json:"id"`
	AlertID        string     `json:"alert_id"`
	Username       *string    `json:"username,omitempty"`
	Count          *int       `json:"count,omitempty"`
	Status         Status     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	StateChangedAt time.Time  `json:"state_changed_at"`
	HeartbeatAt    *time.Time `json:"heartbeat_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	ClaimedBy      *string    `json:"claimed_by,omitempty"`
}

// LastSeen is the most recent proof of life for a playing item: the last
// heartbeat, or the transition time when no heartbeat was written yet.
func (q *QueueItem) LastSeen() time.Time {
	if q.HeartbeatAt != nil && q.HeartbeatAt.After(q.StateChangedAt) {
		return *q.HeartbeatAt
	}
	return q.StateChangedAt
}

// IsStale reports whether a playing item has gone longer than staleAfter
// without a heartbeat.
func (q *QueueItem) IsStale(now time.Time, staleAfter time.Duration) bool {
	return q.Status == StatusPlaying && now.Sub(q.LastSeen()) > staleAfter
}

// ClaimedByOwner reports whether the item was claimed by the given instance.
func (q *QueueItem) ClaimedByOwner(owner string) bool {
	return q.ClaimedBy != nil && *q.ClaimedBy == owner
}

// Before orders items oldest-first; equal creation times fall back to ID.
func (q *QueueItem) Before(other *QueueItem) bool {
	if !q.CreatedAt.Equal(other.CreatedAt) {
		return q.CreatedAt.Before(other.CreatedAt)
	}
	return q.ID < other.ID
}

// SortQueue sorts items in place into processing order.
func SortQueue(items []*QueueItem) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].Before(items[j]) })
}

// NextPending returns the pending item that should play next, or nil.
func NextPending(items []*QueueItem) *QueueItem {
	var next *QueueItem
	for _, it := range items {
		if it.Status != StatusPending {
			continue
		}
		if next == nil || it.Before(next) {
			next = it
		}
	}
	return next
}

// CurrentlyPlaying returns the first playing item in the slice, or nil.
func CurrentlyPlaying(items []*QueueItem) *QueueItem {
	for _, it := range items {
		if it.Status == StatusPlaying {
			return it
		}
	}
	return nil
}

// StatusCounts is a per-status tally of a queue snapshot.
type StatusCounts struct {
	Pending   int `json:"pending"`
	Playing   int `json:"playing"`
	Completed int `json:"completed"`
}

func CountByStatus(items []*QueueItem) StatusCounts {
	var c StatusCounts
	for _, it := range items {
		switch it.Status {
		case StatusPending:
			c.Pending++
		case StatusPlaying:
			c.Playing++
		case StatusCompleted:
			c.Completed++
		}
	}
	return c
}
