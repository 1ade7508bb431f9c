package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// Channel is the NOTIFY channel written by the alert_queue_notify trigger.
const Channel = "alert_queue_changes"

// ErrFeedExhausted is returned by Listener.Run when reconnection attempts
// are used up.
var ErrFeedExhausted = errors.New("change feed reconnect attempts exhausted")

// NotificationConn is the part of *pgx.Conn the listener relies on.
type NotificationConn interface {
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

// Dialer opens a connection that is already listening on the channel.
type Dialer func(ctx context.Context) (NotificationConn, error)

// PgDialer returns a Dialer that opens a dedicated connection (LISTEN
// cannot share a pooled one) and subscribes to Channel.
func PgDialer(databaseURL string) Dialer {
	return func(ctx context.Context) (NotificationConn, error) {
		conn, err := pgx.Connect(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{Channel}.Sanitize()); err != nil {
			_ = conn.Close(context.Background())
			return nil, fmt.Errorf("listen: %w", err)
		}
		return conn, nil
	}
}

// ListenerConfig bounds reconnection.
type ListenerConfig struct {
	// MaxRetries is the number of consecutive failed attempts tolerated
	// after the first one; a successful connect resets the count.
	MaxRetries     uint64
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Listener pumps notifications from the database into a Broker and
// reconnects with exponential backoff when the connection drops.
type Listener struct {
	dial   Dialer
	broker *Broker
	cfg    ListenerConfig
	logger *zap.Logger

	onEvent     func(Op)
	onReconnect func()
}

func NewListener(dial Dialer, broker *Broker, cfg ListenerConfig, logger *zap.Logger) *Listener {
	return &Listener{
		dial:        dial,
		broker:      broker,
		cfg:         cfg,
		logger:      logger,
		onEvent:     func(Op) {},
		onReconnect: func() {},
	}
}

// SetHooks installs metric callbacks. nil leaves the current hook in place.
func (l *Listener) SetHooks(onEvent func(Op), onReconnect func()) {
	if onEvent != nil {
		l.onEvent = onEvent
	}
	if onReconnect != nil {
		l.onReconnect = onReconnect
	}
}

// Run blocks until ctx is cancelled (returning nil) or reconnection gives
// up (returning an error wrapping ErrFeedExhausted). Giving up does not
// stop the queue: the coordinator's poll timer keeps advancing it.
func (l *Listener) Run(ctx context.Context) error {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = l.cfg.InitialBackoff
	expo.MaxInterval = l.cfg.MaxBackoff
	expo.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(expo, l.cfg.MaxRetries), ctx)

	connects := 0
	op := func() error {
		conn, err := l.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("connect: %w", err)
		}
		defer conn.Close(context.Background()) //nolint:errcheck

		connects++
		if connects > 1 {
			l.onReconnect()
			l.logger.Info("change feed reconnected", zap.Int("connects", connects))
		} else {
			l.logger.Info("change feed listening", zap.String("channel", Channel))
		}
		b.Reset()

		return l.consume(ctx, conn)
	}

	err := backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		l.logger.Warn("change feed disconnected, retrying",
			zap.Error(err), zap.Duration("backoff", wait))
	})
	if ctx.Err() != nil {
		l.logger.Info("change feed stopping")
		return nil
	}

	l.logger.Error("change feed gave up; queue continues on poll timer", zap.Error(err))
	return fmt.Errorf("%w: %v", ErrFeedExhausted, err)
}

func (l *Listener) consume(ctx context.Context, conn NotificationConn) error {
	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("wait for notification: %w", err)
		}

		e, err := Decode(n.Payload)
		if err != nil {
			l.logger.Warn("ignoring malformed notification", zap.Error(err))
			continue
		}
		l.onEvent(e.Op)
		l.broker.Publish(e)
	}
}
