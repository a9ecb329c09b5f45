package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const triggerColumns = `key, spec, queue, type, data, next_run_at, last_run_at, updated_at`

// PgStore keeps triggers in the scheduler_triggers table.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) Get(ctx context.Context, key string) (*Trigger, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+triggerColumns+` FROM scheduler_triggers WHERE key = $1`, key)
	t, err := scanTrigger(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTriggerNotFound
	}
	return t, err
}

func (s *PgStore) List(ctx context.Context) ([]*Trigger, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+triggerColumns+` FROM scheduler_triggers ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list triggers: %w", err)
	}
	defer rows.Close()

	var out []*Trigger
	for rows.Next() {
		t, err := scanTrigger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PgStore) Upsert(ctx context.Context, t *Trigger) error {
	data := []byte(t.Data)
	if len(data) == 0 {
		data = []byte("{}")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scheduler_triggers (key, spec, queue, type, data, next_run_at, last_run_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (key) DO UPDATE SET
			spec        = EXCLUDED.spec,
			queue       = EXCLUDED.queue,
			type        = EXCLUDED.type,
			data        = EXCLUDED.data,
			next_run_at = EXCLUDED.next_run_at,
			last_run_at = EXCLUDED.last_run_at,
			updated_at  = NOW()`,
		t.Key, t.Spec, t.Queue, t.Type, data, t.NextRunAt, t.LastRunAt,
	)
	if err != nil {
		return fmt.Errorf("upsert trigger %s: %w", t.Key, err)
	}
	return nil
}

func (s *PgStore) Advance(ctx context.Context, key string, scheduled, firedAt, next time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE scheduler_triggers
		SET last_run_at = $3, next_run_at = $4, updated_at = NOW()
		WHERE key = $1 AND next_run_at = $2`,
		key, scheduled, firedAt, next,
	)
	if err != nil {
		return false, fmt.Errorf("advance trigger %s: %w", key, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PgStore) Delete(ctx context.Context, key string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM scheduler_triggers WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("delete trigger %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTriggerNotFound
	}
	return nil
}

func scanTrigger(row pgx.Row) (*Trigger, error) {
	var (
		t    Trigger
		data []byte
	)
	if err := row.Scan(&t.Key, &t.Spec, &t.Queue, &t.Type, &data, &t.NextRunAt, &t.LastRunAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Data = data
	return &t, nil
}
