package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tnjtools/alertqueue/internal/config"
	"github.com/tnjtools/alertqueue/internal/feed"
	"github.com/tnjtools/alertqueue/internal/queue"
	"github.com/tnjtools/alertqueue/internal/repository"
)

// Settings are the coordination knobs shared by every background worker.
type Settings struct {
	InstanceID         string
	PollInterval       time.Duration
	HeartbeatInterval  time.Duration
	DisplayTimeout     time.Duration
	StaleAfter         time.Duration
	SweepInterval      time.Duration
	CompletionDebounce time.Duration
	RecoverOnStartup   bool

	// Now defaults to time.Now in UTC.
	Now func() time.Time
}

func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		InstanceID:         cfg.InstanceID,
		PollInterval:       cfg.PollInterval,
		HeartbeatInterval:  cfg.HeartbeatInterval,
		DisplayTimeout:     cfg.DisplayTimeout,
		StaleAfter:         cfg.StaleAfter,
		SweepInterval:      cfg.SweepInterval,
		CompletionDebounce: cfg.CompletionDebounce,
		RecoverOnStartup:   cfg.RecoverOnStartup,
	}
}

func (s Settings) clock() func() time.Time {
	if s.Now != nil {
		return s.Now
	}
	return func() time.Time { return time.Now().UTC() }
}

// displayTimeout defaults to three heartbeat intervals.
func (s Settings) displayTimeout() time.Duration {
	if s.DisplayTimeout > 0 {
		return s.DisplayTimeout
	}
	return 3 * s.HeartbeatInterval
}

// MetricHooks carries the metric callback functions injected by main.
// Using a struct keeps the constructor signatures clean.
type MetricHooks struct {
	OnAdvance   func(outcome string)
	OnHeartbeat func(ok bool)
	OnRecovered func(reason string, n int)
}

func (h MetricHooks) withDefaults() MetricHooks {
	if h.OnAdvance == nil {
		h.OnAdvance = func(string) {}
	}
	if h.OnHeartbeat == nil {
		h.OnHeartbeat = func(bool) {}
	}
	if h.OnRecovered == nil {
		h.OnRecovered = func(string, int) {}
	}
	return h
}

// Pool manages the lifecycle of every queue background worker: the
// coordinator, the heartbeat monitor, the staleness sweeper, the
// completion listener and the snapshot follower.
type Pool struct {
	settings    Settings
	reader      *queue.Reader
	feed        feed.Feed
	coordinator *Coordinator
	heartbeat   *HeartbeatMonitor
	sweeper     *StalenessWorker
	completions *CompletionListener
	logger      *zap.Logger
	wg          sync.WaitGroup
}

func NewPool(
	s Settings,
	repo repository.QueueRepository,
	reader *queue.Reader,
	f feed.Feed,
	w Witness,
	logger *zap.Logger,
	hooks MetricHooks,
) *Pool {
	coord := NewCoordinator(s, repo, reader, logger.With(zap.String("component", "coordinator")), hooks)
	return &Pool{
		settings:    s,
		reader:      reader,
		feed:        f,
		coordinator: coord,
		heartbeat:   NewHeartbeatMonitor(s, repo, reader, w, logger.With(zap.String("component", "heartbeat")), hooks),
		sweeper:     NewStalenessWorker(s, repo, coord, logger.With(zap.String("component", "staleness")), hooks),
		completions: NewCompletionListener(s, f, coord, logger.With(zap.String("component", "completions"))),
		logger:      logger,
	}
}

// Coordinator exposes the coordinator so the API can request advancement.
func (p *Pool) Coordinator() *Coordinator { return p.coordinator }

// Start runs startup recovery (when enabled) and loads the first snapshot,
// then launches every worker as a goroutine. Cancelling ctx triggers a
// graceful shutdown of the whole pool.
func (p *Pool) Start(ctx context.Context) {
	if p.settings.RecoverOnStartup {
		if _, err := p.coordinator.Recover(ctx); err != nil {
			p.logger.Warn("continuing without startup recovery", zap.Error(err))
		}
	} else if err := p.reader.Refetch(ctx); err != nil {
		p.logger.Warn("initial queue read failed", zap.Error(err))
	}

	p.spawn(func() { p.reader.Follow(ctx, p.feed) })
	p.spawn(func() { p.completions.Run(ctx) })
	p.spawn(func() { p.heartbeat.Run(ctx) })
	p.spawn(func() { p.sweeper.Run(ctx) })
	p.spawn(func() { p.coordinator.Run(ctx) })
}

func (p *Pool) spawn(fn func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		fn()
	}()
}

// Wait blocks until every worker has returned after ctx is cancelled.
func (p *Pool) Wait() {
	p.wg.Wait()
}
