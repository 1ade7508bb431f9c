package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tnjtools/alertqueue/internal/queue"
	"github.com/tnjtools/alertqueue/internal/repository"
)

// Witness reports whether a connected display is showing an item.
type Witness interface {
	Vouched(itemID string, within time.Duration) bool
}

// HeartbeatMonitor stamps heartbeat_at on the playing item while a display
// connected to this instance reports it on screen. An item nobody is
// showing stops receiving heartbeats and is reclaimed by the staleness
// sweep.
//
// Heartbeat writes are fire-and-forget: a failed write is logged and
// counted but is not itself treated as a sign of staleness.
type HeartbeatMonitor struct {
	repo     repository.QueueRepository
	reader   *queue.Reader
	witness  Witness
	interval time.Duration
	window   time.Duration
	now      func() time.Time
	logger   *zap.Logger

	onHeartbeat func(ok bool)
}

func NewHeartbeatMonitor(
	s Settings,
	repo repository.QueueRepository,
	reader *queue.Reader,
	witness Witness,
	logger *zap.Logger,
	hooks MetricHooks,
) *HeartbeatMonitor {
	hooks = hooks.withDefaults()
	return &HeartbeatMonitor{
		repo:        repo,
		reader:      reader,
		witness:     witness,
		interval:    s.HeartbeatInterval,
		window:      s.displayTimeout(),
		now:         s.clock(),
		logger:      logger,
		onHeartbeat: hooks.OnHeartbeat,
	}
}

// Run ticks every interval and heartbeats the playing item.
// Stops cleanly when ctx is cancelled.
func (h *HeartbeatMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.logger.Info("heartbeat monitor started",
		zap.Duration("interval", h.interval), zap.Duration("display_timeout", h.window))

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("heartbeat monitor stopping")
			return
		case <-ticker.C:
			h.beat(ctx)
		}
	}
}

func (h *HeartbeatMonitor) beat(ctx context.Context) {
	item := h.reader.Playing()
	if item == nil {
		return
	}
	if !h.witness.Vouched(item.ID, h.window) {
		h.logger.Debug("heartbeat withheld, no display showing item", zap.String("item_id", item.ID))
		return
	}

	ok, err := h.repo.Heartbeat(ctx, item.ID, h.now())
	if err != nil {
		h.onHeartbeat(false)
		h.logger.Warn("heartbeat write failed", zap.String("item_id", item.ID), zap.Error(err))
		return
	}
	if !ok {
		// Completed elsewhere; the next refetch will drop it from the snapshot.
		h.logger.Debug("heartbeat skipped, item no longer playing", zap.String("item_id", item.ID))
		return
	}
	h.onHeartbeat(true)
}
