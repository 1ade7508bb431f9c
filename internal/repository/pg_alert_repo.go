package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tnjtools/alertqueue/internal/domain"
)

const alertColumns = `id::text, title, slug, kind, message, media_url, duration_ms, created_at`

type pgAlertRepository struct {
	pool *pgxpool.Pool
}

// NewPgAlertRepository returns an AlertRepository backed by PostgreSQL.
func NewPgAlertRepository(pool *pgxpool.Pool) AlertRepository {
	return &pgAlertRepository{pool: pool}
}

func (r *pgAlertRepository) Create(ctx context.Context, a *domain.Alert) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO alerts (id, title, slug, kind, message, media_url, duration_ms, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		a.ID, a.Title, a.Slug, a.Kind, a.Message, a.MediaURL, a.DurationMs, a.CreatedAt,
	)
	if err != nil {
		if isPgError(err, pgerrcode.UniqueViolation) {
			return domain.ErrConflict
		}
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (r *pgAlertRepository) GetByID(ctx context.Context, id string) (*domain.Alert, error) {
	return r.getOne(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id)
}

func (r *pgAlertRepository) GetBySlug(ctx context.Context, slug string) (*domain.Alert, error) {
	return r.getOne(ctx, `SELECT `+alertColumns+` FROM alerts WHERE slug = $1`, slug)
}

func (r *pgAlertRepository) List(ctx context.Context) ([]*domain.Alert, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+alertColumns+` FROM alerts ORDER BY title ASC`)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*domain.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (r *pgAlertRepository) getOne(ctx context.Context, query, arg string) (*domain.Alert, error) {
	a, err := scanAlert(r.pool.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) || isPgError(err, pgerrcode.InvalidTextRepresentation) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return a, nil
}

func scanAlert(row pgx.Row) (*domain.Alert, error) {
	var a domain.Alert
	err := row.Scan(&a.ID, &a.Title, &a.Slug, &a.Kind, &a.Message, &a.MediaURL, &a.DurationMs, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
