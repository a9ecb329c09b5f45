package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifyhub/eventdesk/internal/domain"
)

const notificationColumns = `
	id, user_id, title, message, category, link, priority, dedupe_key,
	scheduled_for, expires_at, delivered_at, read_at, created_at`

type pgNotificationRepository struct {
	pool *pgxpool.Pool
}

// NewPgNotificationRepository returns a NotificationRepository backed by PostgreSQL.
func NewPgNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &pgNotificationRepository{pool: pool}
}

func (r *pgNotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications
			(id, user_id, title, message, category, link, priority, dedupe_key,
			 scheduled_for, expires_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		n.ID, n.UserID, n.Title, n.Message, n.Category, n.Link, n.Priority, n.DedupeKey,
		n.ScheduledFor, n.ExpiresAt, n.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *pgNotificationRepository) GetByDedupeKey(ctx context.Context, key string) (*domain.Notification, error) {
	row := r.pool.QueryRow(ctx, `SELECT`+notificationColumns+` FROM notifications WHERE dedupe_key = $1`, key)
	n, err := scanNotification(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return n, err
}

// pendingClause: due (unscheduled or scheduled_for has passed) and not expired.
const pendingClause = `
	(scheduled_for IS NULL OR scheduled_for <= $1)
	AND (expires_at IS NULL OR expires_at > $1)`

func (r *pgNotificationRepository) ListPending(ctx context.Context, userID string, now time.Time, limit int) ([]*domain.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT`+notificationColumns+`
		FROM notifications
		WHERE user_id = $2 AND`+pendingClause+`
		ORDER BY created_at DESC
		LIMIT $3`, now, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending notifications: %w", err)
	}
	defer rows.Close()
	return scanNotifications(rows)
}

func (r *pgNotificationRepository) MarkDelivered(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 500
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications SET delivered_at = $1
		WHERE id IN (
			SELECT id FROM notifications
			WHERE delivered_at IS NULL AND`+pendingClause+`
			ORDER BY created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)`, now, limit)
	if err != nil {
		return 0, fmt.Errorf("mark notifications delivered: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *pgNotificationRepository) MarkRead(ctx context.Context, id, userID string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications SET read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND user_id = $2`, id, userID, at)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *pgNotificationRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM notifications WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired notifications: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *pgNotificationRepository) DeleteReadBefore(ctx context.Context, before time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM notifications WHERE read_at IS NOT NULL AND read_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("delete read notifications: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ---- helpers ----

// scanNotification reads a single notification row from any pgx row type.
func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var n domain.Notification
	err := row.Scan(
		&n.ID, &n.UserID, &n.Title, &n.Message, &n.Category, &n.Link, &n.Priority, &n.DedupeKey,
		&n.ScheduledFor, &n.ExpiresAt, &n.DeliveredAt, &n.ReadAt, &n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func scanNotifications(rows pgx.Rows) ([]*domain.Notification, error) {
	var result []*domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

// isUniqueViolation checks for PostgreSQL unique_violation (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
