package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const jobColumns = `
	id, queue, type, data, state, priority,
	attempts_made, max_attempts, backoff_type, backoff_delay_ms, timeout_ms, stalled_count,
	run_at, locked_by, heartbeat_at, created_at, started_at, finished_at,
	result, failed_reason, error_history`

// claimedColumns qualifies jobColumns for the UPDATE ... FROM in Claim.
const claimedColumns = `
	j.id, j.queue, j.type, j.data, j.state, j.priority,
	j.attempts_made, j.max_attempts, j.backoff_type, j.backoff_delay_ms, j.timeout_ms, j.stalled_count,
	j.run_at, j.locked_by, j.heartbeat_at, j.created_at, j.started_at, j.finished_at,
	j.result, j.failed_reason, j.error_history`

// PgStore is the PostgreSQL Store. Claims use FOR UPDATE SKIP LOCKED so any
// number of worker processes can share the jobs table.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) Add(ctx context.Context, j *Job, delay time.Duration) (*Job, bool, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO jobs
			(id, queue, type, data, state, priority, max_attempts,
			 backoff_type, backoff_delay_ms, timeout_ms, run_at, created_at)
		VALUES ($1,$2,$3,$4,'waiting',$5,$6,$7,$8,$9, NOW() + make_interval(secs => $10), NOW())
		ON CONFLICT (id) DO NOTHING
		RETURNING`+jobColumns,
		j.ID, j.Queue, j.Type, []byte(j.Data), j.Priority, j.MaxAttempts,
		string(j.Backoff.Type), j.Backoff.Delay.Milliseconds(), j.Timeout.Milliseconds(),
		delay.Seconds(),
	)
	stored, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		existing, getErr := s.Get(ctx, j.ID)
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("insert job: %w", err)
	}
	return stored, true, nil
}

func (s *PgStore) Claim(ctx context.Context, queue, workerID string) (*Job, error) {
	row := s.pool.QueryRow(ctx, `
		WITH next AS (
			SELECT id FROM jobs
			WHERE queue = $1
			  AND state = 'waiting'
			  AND run_at <= NOW()
			  AND NOT EXISTS (
				SELECT 1 FROM queue_settings qs WHERE qs.queue = $1 AND qs.paused
			  )
			ORDER BY priority DESC, run_at ASC, created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE jobs j SET
			state = 'active',
			locked_by = $2,
			attempts_made = j.attempts_made + 1,
			started_at = NOW(),
			heartbeat_at = NOW()
		FROM next
		WHERE j.id = next.id
		RETURNING`+claimedColumns,
		queue, workerID,
	)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return j, nil
}

func (s *PgStore) Heartbeat(ctx context.Context, id, workerID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET heartbeat_at = NOW()
		WHERE id = $1 AND state = 'active' AND locked_by = $2`, id, workerID)
	return ownedResult(tag, err, "heartbeat job")
}

func (s *PgStore) Complete(ctx context.Context, id, workerID string, result json.RawMessage) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET
			state = 'completed', locked_by = '', heartbeat_at = NULL,
			finished_at = NOW(), result = $3
		WHERE id = $1 AND state = 'active' AND locked_by = $2`,
		id, workerID, nullableJSON(result))
	return ownedResult(tag, err, "complete job")
}

func (s *PgStore) Retry(ctx context.Context, id, workerID, reason string, delay time.Duration) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET
			state = 'waiting', locked_by = '', heartbeat_at = NULL,
			run_at = NOW() + make_interval(secs => $4),
			failed_reason = $3,
			error_history = array_append(error_history, $3)
		WHERE id = $1 AND state = 'active' AND locked_by = $2`,
		id, workerID, reason, delay.Seconds())
	return ownedResult(tag, err, "retry job")
}

func (s *PgStore) Fail(ctx context.Context, id, workerID, reason string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET
			state = 'failed', locked_by = '', heartbeat_at = NULL,
			finished_at = NOW(),
			failed_reason = $3,
			error_history = array_append(error_history, $3)
		WHERE id = $1 AND state = 'active' AND locked_by = $2`,
		id, workerID, reason)
	return ownedResult(tag, err, "fail job")
}

func (s *PgStore) RecoverStalled(ctx context.Context, queue string, stalledAfter time.Duration, maxStalled int) (int, int, error) {
	// SET expressions see the pre-update row, so stalled_count + 1 is the new count.
	rows, err := s.pool.Query(ctx, `
		UPDATE jobs SET
			stalled_count = stalled_count + 1,
			locked_by = '',
			heartbeat_at = NULL,
			state = CASE WHEN stalled_count + 1 > $3 THEN 'failed' ELSE 'waiting' END,
			finished_at = CASE WHEN stalled_count + 1 > $3 THEN NOW() ELSE NULL END,
			failed_reason = CASE WHEN stalled_count + 1 > $3 THEN $4 ELSE failed_reason END,
			error_history = CASE WHEN stalled_count + 1 > $3
				THEN array_append(error_history, $4) ELSE error_history END,
			attempts_made = CASE WHEN stalled_count + 1 > $3
				THEN attempts_made ELSE GREATEST(attempts_made - 1, 0) END,
			run_at = CASE WHEN stalled_count + 1 > $3 THEN run_at ELSE NOW() END
		WHERE queue = $1
		  AND state = 'active'
		  AND COALESCE(heartbeat_at, started_at) < NOW() - make_interval(secs => $2)
		RETURNING state`,
		queue, stalledAfter.Seconds(), maxStalled, StalledReason)
	if err != nil {
		return 0, 0, fmt.Errorf("recover stalled jobs: %w", err)
	}
	defer rows.Close()

	var recovered, failed int
	for rows.Next() {
		var st string
		if err := rows.Scan(&st); err != nil {
			return 0, 0, fmt.Errorf("scan stalled job: %w", err)
		}
		if State(st) == StateFailed {
			failed++
		} else {
			recovered++
		}
	}
	return recovered, failed, rows.Err()
}

func (s *PgStore) Get(ctx context.Context, id string) (*Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT`+jobColumns+` FROM jobs WHERE id = $1`, id)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *PgStore) List(ctx context.Context, queue string, state State, limit int) ([]*Job, error) {
	paused, err := s.IsPaused(ctx, queue)
	if err != nil {
		return nil, err
	}

	var where, order string
	switch state {
	case StateWaiting:
		if paused {
			return nil, nil
		}
		where, order = "state = 'waiting' AND run_at <= NOW()", "priority DESC, run_at, created_at"
	case StatePaused:
		if !paused {
			return nil, nil
		}
		where, order = "state = 'waiting' AND run_at <= NOW()", "priority DESC, run_at, created_at"
	case StateDelayed:
		where, order = "state = 'waiting' AND run_at > NOW()", "run_at, created_at"
	case StateActive:
		where, order = "state = 'active'", "started_at"
	case StateCompleted, StateFailed:
		where, order = fmt.Sprintf("state = '%s'", state), "finished_at DESC"
	default:
		return nil, ErrInvalidState
	}
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(`SELECT%s FROM jobs WHERE queue = $1 AND %s ORDER BY %s LIMIT $2`,
		jobColumns, where, order)
	rows, err := s.pool.Query(ctx, query, queue, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

func (s *PgStore) Counts(ctx context.Context, queue string) (Counts, error) {
	var c Counts
	var paused bool
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE state = 'waiting' AND run_at <= NOW()),
			COUNT(*) FILTER (WHERE state = 'active'),
			COUNT(*) FILTER (WHERE state = 'completed'),
			COUNT(*) FILTER (WHERE state = 'failed'),
			COUNT(*) FILTER (WHERE state = 'waiting' AND run_at > NOW()),
			COALESCE((SELECT paused FROM queue_settings WHERE queue = $1), false)
		FROM jobs WHERE queue = $1`, queue,
	).Scan(&c.Waiting, &c.Active, &c.Completed, &c.Failed, &c.Delayed, &paused)
	if err != nil {
		return Counts{}, fmt.Errorf("count jobs: %w", err)
	}
	if paused {
		c.Paused, c.Waiting = c.Waiting, 0
	}
	return c, nil
}

func (s *PgStore) Remove(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1 AND state <> 'active'`, id)
	if err != nil {
		return fmt.Errorf("remove job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return ErrJobActive
	}
	return nil
}

func (s *PgStore) RetryFailed(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET
			state = 'waiting', attempts_made = 0, stalled_count = 0,
			failed_reason = '', finished_at = NULL, run_at = NOW()
		WHERE id = $1 AND state = 'failed'`, id)
	if err != nil {
		return fmt.Errorf("retry failed job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return ErrJobNotFailed
	}
	return nil
}

func (s *PgStore) Clean(ctx context.Context, queue string, state State, grace time.Duration, limit int) (int, error) {
	if !state.IsFinished() {
		return 0, ErrInvalidState
	}
	// LIMIT NULL means no limit.
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM jobs WHERE id IN (
			SELECT id FROM jobs
			WHERE queue = $1 AND state = $2
			  AND finished_at < NOW() - make_interval(secs => $3)
			ORDER BY finished_at
			LIMIT NULLIF($4, 0)
		)`, queue, string(state), grace.Seconds(), limit)
	if err != nil {
		return 0, fmt.Errorf("clean jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PgStore) Trim(ctx context.Context, queue string, state State, keep int) (int, error) {
	if !state.IsFinished() {
		return 0, ErrInvalidState
	}
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM jobs WHERE id IN (
			SELECT id FROM jobs
			WHERE queue = $1 AND state = $2
			ORDER BY finished_at DESC
			OFFSET $3
		)`, queue, string(state), keep)
	if err != nil {
		return 0, fmt.Errorf("trim jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PgStore) Pause(ctx context.Context, queue string) error {
	return s.setPaused(ctx, queue, true)
}

func (s *PgStore) Resume(ctx context.Context, queue string) error {
	return s.setPaused(ctx, queue, false)
}

func (s *PgStore) setPaused(ctx context.Context, queue string, paused bool) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO queue_settings (queue, paused, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (queue) DO UPDATE SET paused = EXCLUDED.paused, updated_at = NOW()`,
		queue, paused)
	if err != nil {
		return fmt.Errorf("set queue paused: %w", err)
	}
	return nil
}

func (s *PgStore) IsPaused(ctx context.Context, queue string) (bool, error) {
	var paused bool
	err := s.pool.QueryRow(ctx, `SELECT paused FROM queue_settings WHERE queue = $1`, queue).Scan(&paused)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read queue settings: %w", err)
	}
	return paused, nil
}

func ownedResult(tag pgconn.CommandTag, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLockLost
	}
	return nil
}

func nullableJSON(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}

func scanJob(row pgx.Row) (*Job, error) {
	var (
		j           Job
		state       string
		backoffType string
		backoffMs   int64
		timeoutMs   int64
		data        []byte
		result      []byte
	)
	err := row.Scan(
		&j.ID, &j.Queue, &j.Type, &data, &state, &j.Priority,
		&j.AttemptsMade, &j.MaxAttempts, &backoffType, &backoffMs, &timeoutMs, &j.StalledCount,
		&j.RunAt, &j.LockedBy, &j.HeartbeatAt, &j.CreatedAt, &j.StartedAt, &j.FinishedAt,
		&result, &j.FailedReason, &j.ErrorHistory,
	)
	if err != nil {
		return nil, err
	}
	j.Data = data
	j.Result = result
	j.State = State(state)
	j.Backoff = Backoff{Type: BackoffType(backoffType), Delay: time.Duration(backoffMs) * time.Millisecond}
	j.Timeout = time.Duration(timeoutMs) * time.Millisecond
	return &j, nil
}

func collectJobs(rows pgx.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

var _ Store = (*PgStore)(nil)
