package domain

import (
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Venue       string    `json:"venue"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	CreatedAt   time.Time `json:"created_at"`
}

// RegistrationStatus tracks an attendee's registration lifecycle.
type RegistrationStatus string

const (
	RegistrationRegistered RegistrationStatus = "registered"
	RegistrationAttended   RegistrationStatus = "attended"
	RegistrationCancelled  RegistrationStatus = "cancelled"
)

func (s RegistrationStatus) IsValid() bool {
	switch s {
	case RegistrationRegistered, RegistrationAttended, RegistrationCancelled:
		return true
	}
	return false
}

type Registration struct {
	ID           string             `json:"id"`
	EventID      string             `json:"event_id"`
	UserID       string             `json:"user_id"`
	Status       RegistrationStatus `json:"status"`
	RegisteredAt time.Time          `json:"registered_at"`
	AttendedAt   *time.Time         `json:"attended_at,omitempty"`
}

type Certificate struct {
	ID       string    `json:"id"`
	Number   string    `json:"number"`
	EventID  string    `json:"event_id"`
	UserID   string    `json:"user_id"`
	FileURL  string    `json:"file_url"`
	IssuedAt time.Time `json:"issued_at"`
}

// CertificateNumber formats the human-readable number CERT-YYYYMMDD-XXXXXXXX,
// taking the suffix from the first eight hex digits of id.
func CertificateNumber(issuedAt time.Time, id string) string {
	suffix := strings.ToUpper(strings.ReplaceAll(id, "-", ""))
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return fmt.Sprintf("CERT-%s-%s", issuedAt.UTC().Format("20060102"), suffix)
}

type Feedback struct {
	ID             string    `json:"id"`
	EventID        string    `json:"event_id"`
	UserID         string    `json:"user_id"`
	Rating         int       `json:"rating"`
	RecommendScore int       `json:"recommend_score"`
	Comment        string    `json:"comment,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func (f *Feedback) Validate() error {
	if f.Rating < 1 || f.Rating > 5 {
		return ErrInvalidRating
	}
	if f.RecommendScore < 0 || f.RecommendScore > 10 {
		return ErrInvalidRecommendScore
	}
	return nil
}

// PeriodCounts are the raw totals behind a daily, weekly or monthly rollup.
type PeriodCounts struct {
	NewUsers           int `json:"new_users"`
	Registrations      int `json:"registrations"`
	CheckIns           int `json:"check_ins"`
	CertificatesIssued int `json:"certificates_issued"`
	FeedbackReceived   int `json:"feedback_received"`
}
