package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tnjtools/alertqueue/internal/domain"
	"github.com/tnjtools/alertqueue/internal/feed"
)

// CompletionListener watches the change feed for items that have just
// finished and, after a short settle delay, asks for the next one.
// A burst of completions inside the delay produces a single request.
type CompletionListener struct {
	feed     feed.Feed
	next     Requester
	debounce time.Duration
	logger   *zap.Logger
}

func NewCompletionListener(s Settings, f feed.Feed, next Requester, logger *zap.Logger) *CompletionListener {
	return &CompletionListener{feed: f, next: next, debounce: s.CompletionDebounce, logger: logger}
}

// Run blocks until ctx is cancelled or the subscription closes.
func (l *CompletionListener) Run(ctx context.Context) {
	events := l.feed.Subscribe(ctx, feed.Filter{
		Table:  feed.QueueTable,
		Op:     feed.OpUpdate,
		Status: domain.StatusCompleted,
	})

	timer := time.NewTimer(l.debounce)
	timer.Stop()
	defer timer.Stop()
	var fire <-chan time.Time

	l.logger.Info("completion listener started", zap.Duration("debounce", l.debounce))

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("completion listener stopping")
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if !e.IsFreshCompletion() {
				continue
			}
			l.logger.Debug("item completed", zap.String("item_id", e.New.ID))
			timer.Reset(l.debounce)
			fire = timer.C
		case <-fire:
			fire = nil
			l.next.Request("completion")
		}
	}
}
