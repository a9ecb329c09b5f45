// Package analytics computes read-only summaries over registrations,
// attendance, certificates and feedback. Nothing here writes domain state.
package analytics

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/notifyhub/eventdesk/internal/domain"
	"github.com/notifyhub/eventdesk/internal/repository"
)

// Period selects a rollup window.
type Period string

const (
	Daily   Period = "daily"
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
)

func (p Period) IsValid() bool {
	switch p {
	case Daily, Weekly, Monthly:
		return true
	}
	return false
}

// PeriodRange returns the last complete period before now as [from, to) in UTC.
// Weeks start on Monday.
func PeriodRange(p Period, now time.Time) (from, to time.Time, err error) {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch p {
	case Daily:
		return midnight.AddDate(0, 0, -1), midnight, nil
	case Weekly:
		offset := (int(midnight.Weekday()) + 6) % 7
		to = midnight.AddDate(0, 0, -offset)
		return to.AddDate(0, 0, -7), to, nil
	case Monthly:
		to = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return to.AddDate(0, -1, 0), to, nil
	}
	return time.Time{}, time.Time{}, fmt.Errorf("unknown period %q", p)
}

type EventStats struct {
	EventID            string  `json:"event_id"`
	Title              string  `json:"title"`
	Registered         int     `json:"registered"`
	Attended           int     `json:"attended"`
	Cancelled          int     `json:"cancelled"`
	Total              int     `json:"total"`
	AttendanceRate     float64 `json:"attendance_rate"`
	CertificatesIssued int     `json:"certificates_issued"`
	FeedbackCount      int     `json:"feedback_count"`
	AverageRating      float64 `json:"average_rating"`
}

type UserStats struct {
	UserID        string `json:"user_id"`
	Registrations int    `json:"registrations"`
	Attended      int    `json:"attended"`
	Cancelled     int    `json:"cancelled"`
	Certificates  int    `json:"certificates"`
}

type CertificateStats struct {
	EventID string `json:"event_id,omitempty"`
	Issued  int    `json:"issued"`
	// Pending counts attendees still waiting for a certificate; only set per event.
	Pending int `json:"pending"`
}

// FeedbackStats summarises ratings and the net promoter score
// (promoters 9-10, detractors 0-6).
type FeedbackStats struct {
	EventID            string      `json:"event_id"`
	Responses          int         `json:"responses"`
	AverageRating      float64     `json:"average_rating"`
	RatingDistribution map[int]int `json:"rating_distribution"`
	Promoters          int         `json:"promoters"`
	Passives           int         `json:"passives"`
	Detractors         int         `json:"detractors"`
	NPS                float64     `json:"nps"`
}

type Rollup struct {
	Period Period              `json:"period"`
	From   time.Time           `json:"from"`
	To     time.Time           `json:"to"`
	Counts domain.PeriodCounts `json:"counts"`
}

type Service struct {
	repos *repository.Store
	now   func() time.Time
}

func NewService(repos *repository.Store, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{repos: repos, now: now}
}

func (s *Service) EventStats(ctx context.Context, eventID string) (*EventStats, error) {
	event, err := s.repos.Events.GetByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("load event %s: %w", eventID, err)
	}
	regs, err := s.repos.Registrations.ListByEvent(ctx, eventID, "")
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	certs, err := s.repos.Certificates.List(ctx, eventID, "")
	if err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	fb, err := s.repos.Feedback.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}

	st := &EventStats{
		EventID:            event.ID,
		Title:              event.Title,
		Total:              len(regs),
		CertificatesIssued: len(certs),
		FeedbackCount:      len(fb),
	}
	for _, r := range regs {
		switch r.Status {
		case domain.RegistrationRegistered:
			st.Registered++
		case domain.RegistrationAttended:
			st.Attended++
		case domain.RegistrationCancelled:
			st.Cancelled++
		}
	}
	if active := st.Total - st.Cancelled; active > 0 {
		st.AttendanceRate = round2(float64(st.Attended) / float64(active) * 100)
	}
	st.AverageRating = averageRating(fb)
	return st, nil
}

func (s *Service) UserStats(ctx context.Context, userID string) (*UserStats, error) {
	if _, err := s.repos.Users.GetByID(ctx, userID); err != nil {
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}
	regs, err := s.repos.Registrations.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	certs, err := s.repos.Certificates.List(ctx, "", userID)
	if err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	st := &UserStats{UserID: userID, Registrations: len(regs), Certificates: len(certs)}
	for _, r := range regs {
		switch r.Status {
		case domain.RegistrationAttended:
			st.Attended++
		case domain.RegistrationCancelled:
			st.Cancelled++
		}
	}
	return st, nil
}

// CertificateStats counts issued certificates, for one event or overall when
// eventID is empty.
func (s *Service) CertificateStats(ctx context.Context, eventID string) (*CertificateStats, error) {
	certs, err := s.repos.Certificates.List(ctx, eventID, "")
	if err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	st := &CertificateStats{EventID: eventID, Issued: len(certs)}
	if eventID == "" {
		return st, nil
	}
	attended, err := s.repos.Registrations.ListByEvent(ctx, eventID, domain.RegistrationAttended)
	if err != nil {
		return nil, fmt.Errorf("list attendees: %w", err)
	}
	issued := make(map[string]bool, len(certs))
	for _, c := range certs {
		issued[c.UserID] = true
	}
	for _, r := range attended {
		if !issued[r.UserID] {
			st.Pending++
		}
	}
	return st, nil
}

func (s *Service) FeedbackStats(ctx context.Context, eventID string) (*FeedbackStats, error) {
	fb, err := s.repos.Feedback.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	st := &FeedbackStats{
		EventID:            eventID,
		Responses:          len(fb),
		AverageRating:      averageRating(fb),
		RatingDistribution: map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0},
	}
	for _, f := range fb {
		st.RatingDistribution[f.Rating]++
		switch {
		case f.RecommendScore >= 9:
			st.Promoters++
		case f.RecommendScore >= 7:
			st.Passives++
		default:
			st.Detractors++
		}
	}
	if st.Responses > 0 {
		st.NPS = round2(float64(st.Promoters-st.Detractors) / float64(st.Responses) * 100)
	}
	return st, nil
}

// Rollup aggregates the last complete period before the service clock.
func (s *Service) Rollup(ctx context.Context, p Period) (*Rollup, error) {
	from, to, err := PeriodRange(p, s.now())
	if err != nil {
		return nil, err
	}
	counts, err := s.repos.Analytics.PeriodCounts(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s rollup: %w", p, err)
	}
	return &Rollup{Period: p, From: from, To: to, Counts: counts}, nil
}

func averageRating(fb []*domain.Feedback) float64 {
	if len(fb) == 0 {
		return 0
	}
	sum := 0
	for _, f := range fb {
		sum += f.Rating
	}
	return round2(float64(sum) / float64(len(fb)))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
