// Package feed carries row-level change notifications for the alert queue
// from PostgreSQL LISTEN/NOTIFY to in-process subscribers.
package feed

import (
	"encoding/json"
	"fmt"

	"github.com/tnjtools/alertqueue/internal/domain"
)

// QueueTable is the table name carried on alert queue change events.
const QueueTable = "alert_queue"

// Op is the row operation that produced an event.
type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

// ChangeEvent is one row change with its before and after images.
// Old is nil for inserts, New is nil for deletes.
type ChangeEvent struct {
	Table string            `json:"table"`
	Op    Op                `json:"op"`
	Old   *domain.QueueItem `json:"old"`
	New   *domain.QueueItem `json:"new"`
}

// Decode parses a notify payload produced by the alert_queue_notify trigger.
func Decode(payload string) (ChangeEvent, error) {
	var e ChangeEvent
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return ChangeEvent{}, fmt.Errorf("decode change event: %w", err)
	}
	if e.Table == "" || e.Op == "" {
		return ChangeEvent{}, fmt.Errorf("decode change event: missing table or op")
	}
	return e, nil
}

// IsFreshCompletion reports whether the event records a row that has just
// become completed, as opposed to an unrelated update of a completed row.
func (e ChangeEvent) IsFreshCompletion() bool {
	if e.New == nil || e.New.Status != domain.StatusCompleted || e.New.CompletedAt == nil {
		return false
	}
	return e.Old == nil || e.Old.Status != domain.StatusCompleted
}

// Filter narrows a subscription. Zero fields match anything.
type Filter struct {
	Table  string
	Op     Op
	Status domain.Status
}

func (f Filter) Matches(e ChangeEvent) bool {
	if f.Table != "" && f.Table != e.Table {
		return false
	}
	if f.Op != "" && f.Op != e.Op {
		return false
	}
	if f.Status != "" && (e.New == nil || e.New.Status != f.Status) {
		return false
	}
	return true
}
