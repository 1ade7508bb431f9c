package worker

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tnjtools/alertqueue/internal/domain"
	"github.com/tnjtools/alertqueue/internal/queue"
	"github.com/tnjtools/alertqueue/internal/repository"
)

// Outcome describes what a single advancement attempt did.
type Outcome string

const (
	OutcomeAdvanced Outcome = "advanced"
	OutcomeBusy     Outcome = "busy"
	OutcomeEmpty    Outcome = "empty"
	OutcomeLostRace Outcome = "lost_race"
	OutcomeInFlight Outcome = "in_flight"
	OutcomeError    Outcome = "error"
)

// Result is returned by Advance. Item is set only for OutcomeAdvanced.
type Result struct {
	Outcome Outcome           `json:"outcome"`
	Item    *domain.QueueItem `json:"item,omitempty"`
}

// Requester is anything that can be asked to advance the queue soon.
type Requester interface {
	Request(reason string)
}

// Coordinator owns the pending → playing transition for this process.
//
// Every trigger (new item, completion event, stale sweep, manual action,
// poll tick) funnels into Request, and a single Run loop performs the
// advancement. Several processes may run coordinators against the same
// store: the conditional claim decides the winner and losers back off
// silently.
type Coordinator struct {
	owner        string
	repo         repository.QueueRepository
	reader       *queue.Reader
	pollInterval time.Duration
	now          func() time.Time
	logger       *zap.Logger

	requests chan string
	inFlight atomic.Bool

	onAdvance   func(outcome string)
	onRecovered func(reason string, n int)
}

func NewCoordinator(
	s Settings,
	repo repository.QueueRepository,
	reader *queue.Reader,
	logger *zap.Logger,
	hooks MetricHooks,
) *Coordinator {
	hooks = hooks.withDefaults()
	return &Coordinator{
		owner:        s.InstanceID,
		repo:         repo,
		reader:       reader,
		pollInterval: s.PollInterval,
		now:          s.clock(),
		logger:       logger,
		requests:     make(chan string, 1),
		onAdvance:    hooks.OnAdvance,
		onRecovered:  hooks.OnRecovered,
	}
}

// Owner is the instance id stamped into claimed_by.
func (c *Coordinator) Owner() string { return c.owner }

// Request asks the Run loop to attempt an advancement. It never blocks;
// requests arriving while one is already queued are coalesced.
func (c *Coordinator) Request(reason string) {
	select {
	case c.requests <- reason:
	default:
	}
}

// Run advances once immediately, then on every request and on every poll
// tick until ctx is cancelled. The poll tick runs regardless of change-feed
// health.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	c.logger.Info("coordinator started",
		zap.String("owner", c.owner), zap.Duration("poll_interval", c.pollInterval))
	c.attempt(ctx, "startup")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("coordinator stopping")
			return
		case reason := <-c.requests:
			c.attempt(ctx, reason)
		case <-ticker.C:
			c.attempt(ctx, "poll")
		}
	}
}

func (c *Coordinator) attempt(ctx context.Context, reason string) {
	res, err := c.Advance(ctx)
	if err != nil {
		return // already logged
	}
	if res.Outcome == OutcomeAdvanced {
		c.logger.Info("queue advanced",
			zap.String("reason", reason),
			zap.String("item_id", res.Item.ID),
			zap.String("alert_id", res.Item.AlertID),
		)
		return
	}
	c.logger.Debug("queue not advanced", zap.String("reason", reason), zap.String("outcome", string(res.Outcome)))
}

// Advance moves the oldest pending item to playing if nothing is playing.
// It never mutates the store when an item is already playing, when nothing
// is pending, or when the snapshot cannot be read.
func (c *Coordinator) Advance(ctx context.Context) (Result, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		c.onAdvance(string(OutcomeInFlight))
		return Result{Outcome: OutcomeInFlight}, nil
	}
	defer c.inFlight.Store(false)

	res, err := c.advance(ctx)
	c.onAdvance(string(res.Outcome))
	return res, err
}

func (c *Coordinator) advance(ctx context.Context) (Result, error) {
	if err := c.reader.Refetch(ctx); err != nil {
		c.logger.Error("advance: could not read queue", zap.Error(err))
		return Result{Outcome: OutcomeError}, err
	}

	snapshot := c.reader.Snapshot()
	if domain.CurrentlyPlaying(snapshot) != nil {
		return Result{Outcome: OutcomeBusy}, nil
	}
	next := domain.NextPending(snapshot)
	if next == nil {
		return Result{Outcome: OutcomeEmpty}, nil
	}

	at := c.now()
	ok, err := c.repo.ClaimPending(ctx, next.ID, c.owner, at)
	if err != nil {
		c.logger.Error("advance: claim failed", zap.String("item_id", next.ID), zap.Error(err))
		return Result{Outcome: OutcomeError}, err
	}
	if !ok {
		return Result{Outcome: OutcomeLostRace}, nil
	}

	if err := c.reader.Refetch(ctx); err != nil {
		c.logger.Warn("advance: refetch after claim failed", zap.Error(err))
	}

	owner := c.owner
	claimed := *next
	claimed.Status = domain.StatusPlaying
	claimed.StateChangedAt = at
	claimed.HeartbeatAt = &at
	claimed.ClaimedBy = &owner
	return Result{Outcome: OutcomeAdvanced, Item: &claimed}, nil
}

// Recover treats every item playing at boot as abandoned and completes it,
// then requests an advancement. It returns the number of items recovered;
// a second run against a queue with nothing playing recovers nothing.
func (c *Coordinator) Recover(ctx context.Context) (int, error) {
	ids, err := c.repo.CompleteAllPlaying(ctx, c.now())
	if err != nil {
		c.logger.Error("startup recovery failed", zap.Error(err))
		return 0, err
	}
	if len(ids) > 0 {
		c.onRecovered("startup", len(ids))
		c.logger.Warn("completed items left playing by a previous run", zap.Strings("item_ids", ids))
	}
	if err := c.reader.Refetch(ctx); err != nil {
		c.logger.Warn("refetch after recovery failed", zap.Error(err))
	}
	c.Request("recovery")
	return len(ids), nil
}

var _ Requester = (*Coordinator)(nil)
