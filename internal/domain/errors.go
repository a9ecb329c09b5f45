package domain

import "errors"

// Sentinel errors used throughout the application.
// Handlers translate these to HTTP status codes via a single mapError function.
var (
	ErrNotFound              = errors.New("not found")
	ErrConflict              = errors.New("conflict: record already exists")
	ErrInvalidChannel        = errors.New("invalid channel: must be email, sms, or in_app")
	ErrInvalidPriority       = errors.New("invalid priority: must be high, normal, or low")
	ErrInvalidTitle          = errors.New("title must be between 1 and 200 characters")
	ErrInvalidMessage        = errors.New("message must be between 1 and 4096 characters")
	ErrNoRecipients          = errors.New("at least one recipient is required")
	ErrTooManyRecipients     = errors.New("broadcast exceeds maximum of 1000 recipients")
	ErrInvalidExpiry         = errors.New("expiry must be after the scheduled time")
	ErrInvalidRating         = errors.New("rating must be between 1 and 5")
	ErrInvalidRecommendScore = errors.New("recommend score must be between 0 and 10")
	ErrNotAttended           = errors.New("user did not attend the event")
	ErrRegistrationCancelled = errors.New("registration is cancelled")
	ErrNotTicket             = errors.New("qr code is not an attendee ticket")
	ErrEventMismatch         = errors.New("ticket belongs to a different event")
	ErrUnauthorized          = errors.New("authentication required")
	ErrForbidden             = errors.New("admin role required")
)
