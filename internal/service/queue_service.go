package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tnjtools/alertqueue/internal/display"
	"github.com/tnjtools/alertqueue/internal/domain"
	"github.com/tnjtools/alertqueue/internal/queue"
	"github.com/tnjtools/alertqueue/internal/ratelimiter"
	"github.com/tnjtools/alertqueue/internal/repository"
	"github.com/tnjtools/alertqueue/internal/worker"
)

// Advancer is the slice of the coordinator the service drives.
type Advancer interface {
	Request(reason string)
	Advance(ctx context.Context) (worker.Result, error)
}

// QueueService ties alert definitions, the queue store and the coordinator
// together. HTTP handlers and the display gateway depend on this service,
// not on the repositories directly.
type QueueService struct {
	alerts   repository.AlertRepository
	queue    repository.QueueRepository
	reader   *queue.Reader
	advancer Advancer
	limiter  *ratelimiter.KeyedLimiters
	now      func() time.Time
	logger   *zap.Logger

	onTrigger func(slug string)
}

func NewQueueService(
	alerts repository.AlertRepository,
	queueRepo repository.QueueRepository,
	reader *queue.Reader,
	advancer Advancer,
	limiter *ratelimiter.KeyedLimiters,
	logger *zap.Logger,
) *QueueService {
	return &QueueService{
		alerts:    alerts,
		queue:     queueRepo,
		reader:    reader,
		advancer:  advancer,
		limiter:   limiter,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
		onTrigger: func(string) {},
	}
}

// OnTrigger installs a callback fired for every accepted trigger.
func (s *QueueService) OnTrigger(fn func(slug string)) {
	if fn != nil {
		s.onTrigger = fn
	}
}

// ---- alert definitions ----

func (s *QueueService) CreateAlert(ctx context.Context, req domain.CreateAlertRequest) (*domain.Alert, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate alert id: %w", err)
	}
	a := &domain.Alert{
		ID:         id.String(),
		Title:      req.Title,
		Slug:       domain.Slugify(req.Title),
		Kind:       req.Kind,
		Message:    req.Message,
		DurationMs: req.DurationMs,
		CreatedAt:  s.now(),
	}
	if req.MediaURL != nil && *req.MediaURL != "" {
		a.MediaURL = req.MediaURL
	}

	if err := s.alerts.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("persist alert: %w", err)
	}
	return a, nil
}

func (s *QueueService) ListAlerts(ctx context.Context) ([]*domain.Alert, error) {
	return s.alerts.List(ctx)
}

func (s *QueueService) GetAlert(ctx context.Context, slug string) (*domain.Alert, error) {
	return s.alerts.GetBySlug(ctx, slug)
}

// ---- queue ----

// Trigger enqueues a pending item for the alert identified by slug and
// asks the coordinator to advance.
func (s *QueueService) Trigger(ctx context.Context, slug string, req domain.TriggerRequest) (*domain.QueueItem, error) {
	alert, err := s.alerts.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if err := req.Normalize(); err != nil {
		return nil, err
	}
	if !s.limiter.Allow(alert.Slug) {
		return nil, domain.ErrRateLimited
	}

	count := req.Count
	if count == nil && alert.Kind == domain.KindGift {
		one := 1
		count = &one
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate item id: %w", err)
	}
	now := s.now()
	item := &domain.QueueItem{
		ID:             id.String(),
		AlertID:        alert.ID,
		Username:       req.Username,
		Count:          count,
		Status:         domain.StatusPending,
		CreatedAt:      now,
		StateChangedAt: now,
	}
	if err := s.queue.Insert(ctx, item); err != nil {
		return nil, fmt.Errorf("enqueue alert: %w", err)
	}

	s.onTrigger(alert.Slug)
	s.logger.Info("alert triggered",
		zap.String("slug", alert.Slug),
		zap.String("item_id", item.ID),
	)
	s.advancer.Request("trigger")
	return item, nil
}

// Queue returns the reader's snapshot, refetching first when fresh is set.
func (s *QueueService) Queue(ctx context.Context, fresh bool) ([]*domain.QueueItem, error) {
	if fresh {
		if err := s.reader.Refetch(ctx); err != nil {
			return nil, err
		}
	}
	return s.reader.Snapshot(), nil
}

// Current returns the playing item, or nil when nothing is playing.
func (s *QueueService) Current() *domain.QueueItem {
	return s.reader.Playing()
}

func (s *QueueService) Counts() domain.StatusCounts {
	return s.reader.Counts()
}

func (s *QueueService) GetItem(ctx context.Context, id string) (*domain.QueueItem, error) {
	return s.queue.GetByID(ctx, id)
}

// Advance runs one advancement attempt synchronously.
func (s *QueueService) Advance(ctx context.Context) (worker.Result, error) {
	return s.advancer.Advance(ctx)
}

// Complete marks a playing item completed. The completion listener picks
// the change up from the feed and advances after its settle delay.
func (s *QueueService) Complete(ctx context.Context, id string) error {
	ok, err := s.queue.Complete(ctx, id, s.now())
	if err != nil {
		return fmt.Errorf("complete item: %w", err)
	}
	if ok {
		return nil
	}

	if _, err := s.queue.GetByID(ctx, id); err != nil {
		return err
	}
	return domain.ErrNotPlaying
}

// ---- display ----

// CurrentFrame renders the playing item for a newly connected display.
func (s *QueueService) CurrentFrame(ctx context.Context) (*display.Frame, error) {
	item := s.reader.Playing()
	if item == nil {
		return nil, nil
	}
	f, err := s.FrameFor(ctx, item)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *QueueService) FrameFor(ctx context.Context, item *domain.QueueItem) (display.Frame, error) {
	alert, err := s.alerts.GetByID(ctx, item.AlertID)
	if err != nil {
		return display.Frame{}, fmt.Errorf("alert %s for item %s: %w", item.AlertID, item.ID, err)
	}
	return display.Render(item, alert)
}

var _ display.Backend = (*QueueService)(nil)
