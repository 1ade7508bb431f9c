package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tnjtools/alertqueue/internal/domain"
)

const queueColumns = `id::text, alert_id::text, username, count, status,
	created_at, state_changed_at, heartbeat_at, completed_at, claimed_by`

type pgQueueRepository struct {
	pool *pgxpool.Pool
}

// NewPgQueueRepository returns a QueueRepository backed by PostgreSQL.
func NewPgQueueRepository(pool *pgxpool.Pool) QueueRepository {
	return &pgQueueRepository{pool: pool}
}

func (r *pgQueueRepository) Insert(ctx context.Context, it *domain.QueueItem) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO alert_queue
			(id, alert_id, username, count, status, created_at, state_changed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		it.ID, it.AlertID, it.Username, it.Count, it.Status, it.CreatedAt, it.StateChangedAt,
	)
	if err != nil {
		if isPgError(err, pgerrcode.ForeignKeyViolation) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("insert queue item: %w", err)
	}
	return nil
}

func (r *pgQueueRepository) GetByID(ctx context.Context, id string) (*domain.QueueItem, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+queueColumns+` FROM alert_queue WHERE id = $1`, id)
	it, err := scanQueueItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		if isPgError(err, pgerrcode.InvalidTextRepresentation) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get queue item: %w", err)
	}
	return it, nil
}

func (r *pgQueueRepository) List(ctx context.Context) ([]*domain.QueueItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+queueColumns+` FROM alert_queue ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	defer rows.Close()
	return scanQueueItems(rows)
}

func (r *pgQueueRepository) ClaimPending(ctx context.Context, id, owner string, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE alert_queue
		SET status = 'playing', state_changed_at = $2, heartbeat_at = $2, claimed_by = $3
		WHERE id = $1 AND status = 'pending'`, id, at, owner)
	if err != nil {
		// alert_queue_one_playing_idx: someone else already has the stage.
		if isPgError(err, pgerrcode.UniqueViolation) {
			return false, nil
		}
		return false, fmt.Errorf("claim queue item: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *pgQueueRepository) Heartbeat(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE alert_queue SET heartbeat_at = $2
		WHERE id = $1 AND status = 'playing'`, id, at)
	if err != nil {
		return false, writeError("heartbeat queue item", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *pgQueueRepository) Complete(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE alert_queue
		SET status = 'completed', state_changed_at = $2, completed_at = $2
		WHERE id = $1 AND status = 'playing'`, id, at)
	if err != nil {
		return false, writeError("complete queue item", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *pgQueueRepository) CompleteStale(ctx context.Context, cutoff, at time.Time) ([]string, error) {
	return r.completeWhere(ctx, `COALESCE(heartbeat_at, state_changed_at) < $2`, at, cutoff)
}

func (r *pgQueueRepository) CompleteAllPlaying(ctx context.Context, at time.Time) ([]string, error) {
	return r.completeWhere(ctx, `TRUE`, at)
}

func (r *pgQueueRepository) completeWhere(ctx context.Context, cond string, args ...any) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE alert_queue
		SET status = 'completed', state_changed_at = $1, completed_at = $1
		WHERE status = 'playing' AND `+cond+`
		RETURNING id::text`, args...)
	if err != nil {
		return nil, fmt.Errorf("complete playing items: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("complete playing items: %w", err)
	}
	return ids, nil
}

// ---- helpers ----

// scanQueueItem reads a single queue row from any pgx row type.
func scanQueueItem(row pgx.Row) (*domain.QueueItem, error) {
	var it domain.QueueItem
	err := row.Scan(
		&it.ID, &it.AlertID, &it.Username, &it.Count, &it.Status,
		&it.CreatedAt, &it.StateChangedAt, &it.HeartbeatAt, &it.CompletedAt, &it.ClaimedBy,
	)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func scanQueueItems(rows pgx.Rows) ([]*domain.QueueItem, error) {
	var result []*domain.QueueItem
	for rows.Next() {
		it, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, it)
	}
	return result, rows.Err()
}

// writeError wraps a failed single-row update. An id that does not parse
// as a uuid cannot name any row, so it maps to domain.ErrNotFound.
func writeError(op string, err error) error {
	if isPgError(err, pgerrcode.InvalidTextRepresentation) {
		return domain.ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isPgError(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
