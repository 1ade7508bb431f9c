package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tnjtools/alertqueue/internal/repository"
)

// StalenessWorker completes playing items whose heartbeat has gone quiet
// for longer than staleAfter, so a crashed owner cannot wedge the queue
// until the next restart.
type StalenessWorker struct {
	repo       repository.QueueRepository
	next       Requester
	interval   time.Duration
	staleAfter time.Duration
	now        func() time.Time
	logger     *zap.Logger

	onRecovered func(reason string, n int)
}

func NewStalenessWorker(
	s Settings,
	repo repository.QueueRepository,
	next Requester,
	logger *zap.Logger,
	hooks MetricHooks,
) *StalenessWorker {
	hooks = hooks.withDefaults()
	return &StalenessWorker{
		repo:        repo,
		next:        next,
		interval:    s.SweepInterval,
		staleAfter:  s.StaleAfter,
		now:         s.clock(),
		logger:      logger,
		onRecovered: hooks.OnRecovered,
	}
}

// Run ticks every interval and sweeps stale items.
// Stops cleanly when ctx is cancelled.
func (sw *StalenessWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	sw.logger.Info("staleness worker started",
		zap.Duration("interval", sw.interval), zap.Duration("stale_after", sw.staleAfter))

	for {
		select {
		case <-ctx.Done():
			sw.logger.Info("staleness worker stopping")
			return
		case <-ticker.C:
			_, _ = sw.Sweep(ctx)
		}
	}
}

// Sweep completes every stale playing item and returns how many it found.
func (sw *StalenessWorker) Sweep(ctx context.Context) (int, error) {
	now := sw.now()
	ids, err := sw.repo.CompleteStale(ctx, now.Add(-sw.staleAfter), now)
	if err != nil {
		sw.logger.Error("staleness sweep error", zap.Error(err))
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	sw.onRecovered("stale", len(ids))
	sw.logger.Warn("completed stale playing items", zap.Strings("item_ids", ids))
	sw.next.Request("stale")
	return len(ids), nil
}
