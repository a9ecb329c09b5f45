package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifyhub/eventdesk/internal/domain"
)

// NewPgStore returns every repository backed by the same pool.
func NewPgStore(pool *pgxpool.Pool) *Store {
	return &Store{
		Users:         &pgUserRepository{pool: pool},
		Events:        &pgEventRepository{pool: pool},
		Registrations: &pgRegistrationRepository{pool: pool},
		Certificates:  &pgCertificateRepository{pool: pool},
		Notifications: NewPgNotificationRepository(pool),
		Feedback:      &pgFeedbackRepository{pool: pool},
		Analytics:     &pgAnalyticsRepository{pool: pool},
	}
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

// ---- users ----

type pgUserRepository struct{ pool *pgxpool.Pool }

func (r *pgUserRepository) Create(ctx context.Context, u *domain.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, name, email, phone, role, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		u.ID, u.Name, u.Email, u.Phone, u.Role, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *pgUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, email, phone, role, created_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.Role, &u.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// ---- events ----

const eventColumns = `id, title, description, venue, start_time, end_time, created_at`

type pgEventRepository struct{ pool *pgxpool.Pool }

func (r *pgEventRepository) Create(ctx context.Context, e *domain.Event) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO events (`+eventColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		e.ID, e.Title, e.Description, e.Venue, e.StartTime, e.EndTime, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (r *pgEventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	e, err := scanEvent(r.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return e, nil
}

func (r *pgEventRepository) ListStartingBetween(ctx context.Context, from, to time.Time) ([]*domain.Event, error) {
	return r.list(ctx, `start_time >= $1 AND start_time < $2`, from, to)
}

func (r *pgEventRepository) ListEndedBetween(ctx context.Context, from, to time.Time) ([]*domain.Event, error) {
	return r.list(ctx, `end_time >= $1 AND end_time < $2`, from, to)
}

func (r *pgEventRepository) list(ctx context.Context, where string, args ...any) ([]*domain.Event, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+eventColumns+` FROM events WHERE `+where+` ORDER BY start_time`, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	var out []*domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEvent(row pgx.Row) (*domain.Event, error) {
	var e domain.Event
	if err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Venue, &e.StartTime, &e.EndTime, &e.CreatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

// ---- registrations ----

const registrationColumns = `id, event_id, user_id, status, registered_at, attended_at`

type pgRegistrationRepository struct{ pool *pgxpool.Pool }

func (r *pgRegistrationRepository) Create(ctx context.Context, reg *domain.Registration) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO registrations (`+registrationColumns+`) VALUES ($1,$2,$3,$4,$5,$6)`,
		reg.ID, reg.EventID, reg.UserID, reg.Status, reg.RegisteredAt, reg.AttendedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

func (r *pgRegistrationRepository) Get(ctx context.Context, eventID, userID string) (*domain.Registration, error) {
	reg, err := scanRegistration(r.pool.QueryRow(ctx, `
		SELECT `+registrationColumns+` FROM registrations WHERE event_id = $1 AND user_id = $2`,
		eventID, userID))
	if err != nil {
		return nil, notFound(err)
	}
	return reg, nil
}

func (r *pgRegistrationRepository) ListByEvent(ctx context.Context, eventID string, status domain.RegistrationStatus) ([]*domain.Registration, error) {
	return r.list(ctx, `
		SELECT `+registrationColumns+` FROM registrations
		WHERE event_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY user_id`, eventID, string(status))
}

func (r *pgRegistrationRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Registration, error) {
	return r.list(ctx, `
		SELECT `+registrationColumns+` FROM registrations WHERE user_id = $1 ORDER BY registered_at`, userID)
}

func (r *pgRegistrationRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Registration, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()
	var out []*domain.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, reg)
	}
	return out, rows.Err()
}

func (r *pgRegistrationRepository) MarkAttended(ctx context.Context, eventID, userID string, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE registrations SET status = 'attended', attended_at = $3
		WHERE event_id = $1 AND user_id = $2 AND status = 'registered'`,
		eventID, userID, at)
	if err != nil {
		return false, fmt.Errorf("mark attended: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	reg, err := r.Get(ctx, eventID, userID)
	if err != nil {
		return false, err
	}
	if reg.Status == domain.RegistrationCancelled {
		return false, domain.ErrRegistrationCancelled
	}
	return false, nil
}

func scanRegistration(row pgx.Row) (*domain.Registration, error) {
	var reg domain.Registration
	if err := row.Scan(&reg.ID, &reg.EventID, &reg.UserID, &reg.Status, &reg.RegisteredAt, &reg.AttendedAt); err != nil {
		return nil, err
	}
	return &reg, nil
}

// ---- certificates ----

const certificateColumns = `id, number, event_id, user_id, file_url, issued_at`

type pgCertificateRepository struct{ pool *pgxpool.Pool }

func (r *pgCertificateRepository) Create(ctx context.Context, c *domain.Certificate) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO certificates (`+certificateColumns+`) VALUES ($1,$2,$3,$4,$5,$6)`,
		c.ID, c.Number, c.EventID, c.UserID, c.FileURL, c.IssuedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("insert certificate: %w", err)
	}
	return nil
}

func (r *pgCertificateRepository) GetByEventAndUser(ctx context.Context, eventID, userID string) (*domain.Certificate, error) {
	return r.get(ctx, `event_id = $1 AND user_id = $2`, eventID, userID)
}

func (r *pgCertificateRepository) GetByNumber(ctx context.Context, number string) (*domain.Certificate, error) {
	return r.get(ctx, `number = $1`, number)
}

func (r *pgCertificateRepository) get(ctx context.Context, where string, args ...any) (*domain.Certificate, error) {
	c, err := scanCertificate(r.pool.QueryRow(ctx, `SELECT `+certificateColumns+` FROM certificates WHERE `+where, args...))
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

func (r *pgCertificateRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM certificates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete certificate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *pgCertificateRepository) List(ctx context.Context, eventID, userID string) ([]*domain.Certificate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+certificateColumns+` FROM certificates
		WHERE ($1 = '' OR event_id = $1) AND ($2 = '' OR user_id = $2)
		ORDER BY issued_at`, eventID, userID)
	if err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	defer rows.Close()
	var out []*domain.Certificate
	for rows.Next() {
		c, err := scanCertificate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCertificate(row pgx.Row) (*domain.Certificate, error) {
	var c domain.Certificate
	if err := row.Scan(&c.ID, &c.Number, &c.EventID, &c.UserID, &c.FileURL, &c.IssuedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// ---- feedback ----

type pgFeedbackRepository struct{ pool *pgxpool.Pool }

func (r *pgFeedbackRepository) Create(ctx context.Context, f *domain.Feedback) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO feedback (id, event_id, user_id, rating, recommend_score, comment, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		f.ID, f.EventID, f.UserID, f.Rating, f.RecommendScore, f.Comment, f.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

func (r *pgFeedbackRepository) ListByEvent(ctx context.Context, eventID string) ([]*domain.Feedback, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, event_id, user_id, rating, recommend_score, comment, created_at
		FROM feedback WHERE event_id = $1 ORDER BY created_at`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	defer rows.Close()
	var out []*domain.Feedback
	for rows.Next() {
		var f domain.Feedback
		if err := rows.Scan(&f.ID, &f.EventID, &f.UserID, &f.Rating, &f.RecommendScore, &f.Comment, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

func (r *pgFeedbackRepository) Exists(ctx context.Context, eventID, userID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM feedback WHERE event_id = $1 AND user_id = $2)`,
		eventID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check feedback: %w", err)
	}
	return exists, nil
}

// ---- analytics ----

type pgAnalyticsRepository struct{ pool *pgxpool.Pool }

func (r *pgAnalyticsRepository) PeriodCounts(ctx context.Context, from, to time.Time) (domain.PeriodCounts, error) {
	var c domain.PeriodCounts
	err := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users         WHERE created_at    >= $1 AND created_at    < $2),
			(SELECT COUNT(*) FROM registrations WHERE registered_at >= $1 AND registered_at < $2),
			(SELECT COUNT(*) FROM registrations WHERE attended_at   >= $1 AND attended_at   < $2),
			(SELECT COUNT(*) FROM certificates  WHERE issued_at     >= $1 AND issued_at     < $2),
			(SELECT COUNT(*) FROM feedback      WHERE created_at    >= $1 AND created_at    < $2)`,
		from, to,
	).Scan(&c.NewUsers, &c.Registrations, &c.CheckIns, &c.CertificatesIssued, &c.FeedbackReceived)
	if err != nil {
		return domain.PeriodCounts{}, fmt.Errorf("period counts: %w", err)
	}
	return c, nil
}
