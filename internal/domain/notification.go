package domain

import "time"

// Channel is a delivery channel for user-facing messages.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelInApp Channel = "in_app"
)

func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelInApp:
		return true
	}
	return false
}

// Priority controls queue ordering. High is processed first.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// JobPriority maps p onto the numeric job priority (higher runs first).
func (p Priority) JobPriority() int {
	switch p {
	case PriorityHigh:
		return 10
	case PriorityLow:
		return -10
	}
	return 0
}

// Notification is an in-app message addressed to one user.
//
// A notification is pending when it is due (no ScheduledFor, or ScheduledFor
// has passed) and not expired (no ExpiresAt, or ExpiresAt is in the future).
type Notification struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Title        string     `json:"title"`
	Message      string     `json:"message"`
	Category     string     `json:"category"`
	Link         string     `json:"link,omitempty"`
	Priority     Priority   `json:"priority"`
	DedupeKey    *string    `json:"dedupe_key,omitempty"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	DeliveredAt  *time.Time `json:"delivered_at,omitempty"`
	ReadAt       *time.Time `json:"read_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (n *Notification) IsDue(now time.Time) bool {
	return n.ScheduledFor == nil || !n.ScheduledFor.After(now)
}

func (n *Notification) IsExpired(now time.Time) bool {
	return n.ExpiresAt != nil && !n.ExpiresAt.After(now)
}

func (n *Notification) IsPending(now time.Time) bool {
	return n.IsDue(now) && !n.IsExpired(now)
}

const MaxBroadcastRecipients = 1000

// BroadcastRequest is the inbound payload for sending one notification to many users.
type BroadcastRequest struct {
	UserIDs      []string   `json:"user_ids"`
	Title        string     `json:"title"`
	Message      string     `json:"message"`
	Category     string     `json:"category"`
	Link         string     `json:"link,omitempty"`
	Priority     Priority   `json:"priority"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	SendEmail    bool       `json:"send_email"`
}

func (r *BroadcastRequest) Validate() error {
	if len(r.UserIDs) == 0 {
		return ErrNoRecipients
	}
	if len(r.UserIDs) > MaxBroadcastRecipients {
		return ErrTooManyRecipients
	}
	if r.Priority == "" {
		r.Priority = PriorityNormal
	}
	if !r.Priority.IsValid() {
		return ErrInvalidPriority
	}
	if r.Title == "" || len(r.Title) > 200 {
		return ErrInvalidTitle
	}
	if r.Message == "" || len(r.Message) > 4096 {
		return ErrInvalidMessage
	}
	if r.ExpiresAt != nil && r.ScheduledFor != nil && !r.ExpiresAt.After(*r.ScheduledFor) {
		return ErrInvalidExpiry
	}
	return nil
}
