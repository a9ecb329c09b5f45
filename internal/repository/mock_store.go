package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/notifyhub/eventdesk/internal/domain"
)

// MockDB is a hand-written, in-memory implementation of every repository,
// used in unit tests. No mock-generation library needed.
type MockDB struct {
	mu            sync.RWMutex
	users         map[string]*domain.User
	events        map[string]*domain.Event
	registrations map[string]*domain.Registration // key: eventID/userID
	certificates  map[string]*domain.Certificate
	notifications map[string]*domain.Notification
	feedback      map[string]*domain.Feedback

	// Optional error overrides, set in tests to simulate failure paths.
	CreateNotificationErr error
	CreateCertificateErr  error
}

func NewMockDB() *MockDB {
	return &MockDB{
		users:         make(map[string]*domain.User),
		events:        make(map[string]*domain.Event),
		registrations: make(map[string]*domain.Registration),
		certificates:  make(map[string]*domain.Certificate),
		notifications: make(map[string]*domain.Notification),
		feedback:      make(map[string]*domain.Feedback),
	}
}

// Store exposes the mock through the repository interfaces.
func (m *MockDB) Store() *Store {
	return &Store{
		Users:         mockUsers{m},
		Events:        mockEvents{m},
		Registrations: mockRegistrations{m},
		Certificates:  mockCertificates{m},
		Notifications: mockNotifications{m},
		Feedback:      mockFeedback{m},
		Analytics:     mockAnalytics{m},
	}
}

// NewMockStore is shorthand for NewMockDB().Store().
func NewMockStore() *Store { return NewMockDB().Store() }

func regKey(eventID, userID string) string { return eventID + "/" + userID }

// ---- users ----

type mockUsers struct{ m *MockDB }

func (r mockUsers) Create(_ context.Context, u *domain.User) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.users[u.ID]; ok {
		return domain.ErrConflict
	}
	clone := *u
	r.m.users[u.ID] = &clone
	return nil
}

func (r mockUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	u, ok := r.m.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

// ---- events ----

type mockEvents struct{ m *MockDB }

func (r mockEvents) Create(_ context.Context, e *domain.Event) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.events[e.ID]; ok {
		return domain.ErrConflict
	}
	clone := *e
	r.m.events[e.ID] = &clone
	return nil
}

func (r mockEvents) GetByID(_ context.Context, id string) (*domain.Event, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	e, ok := r.m.events[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *e
	return &clone, nil
}

func (r mockEvents) ListStartingBetween(_ context.Context, from, to time.Time) ([]*domain.Event, error) {
	return r.filter(func(e *domain.Event) bool { return inRange(e.StartTime, from, to) }), nil
}

func (r mockEvents) ListEndedBetween(_ context.Context, from, to time.Time) ([]*domain.Event, error) {
	return r.filter(func(e *domain.Event) bool { return inRange(e.EndTime, from, to) }), nil
}

func (r mockEvents) filter(keep func(*domain.Event) bool) []*domain.Event {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var out []*domain.Event
	for _, e := range r.m.events {
		if keep(e) {
			clone := *e
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}

// ---- registrations ----

type mockRegistrations struct{ m *MockDB }

func (r mockRegistrations) Create(_ context.Context, reg *domain.Registration) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	key := regKey(reg.EventID, reg.UserID)
	if _, ok := r.m.registrations[key]; ok {
		return domain.ErrConflict
	}
	clone := *reg
	r.m.registrations[key] = &clone
	return nil
}

func (r mockRegistrations) Get(_ context.Context, eventID, userID string) (*domain.Registration, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	reg, ok := r.m.registrations[regKey(eventID, userID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *reg
	return &clone, nil
}

func (r mockRegistrations) ListByEvent(_ context.Context, eventID string, status domain.RegistrationStatus) ([]*domain.Registration, error) {
	return r.filter(func(reg *domain.Registration) bool {
		return reg.EventID == eventID && (status == "" || reg.Status == status)
	}), nil
}

func (r mockRegistrations) ListByUser(_ context.Context, userID string) ([]*domain.Registration, error) {
	return r.filter(func(reg *domain.Registration) bool { return reg.UserID == userID }), nil
}

func (r mockRegistrations) filter(keep func(*domain.Registration) bool) []*domain.Registration {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var out []*domain.Registration
	for _, reg := range r.m.registrations {
		if keep(reg) {
			clone := *reg
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func (r mockRegistrations) MarkAttended(_ context.Context, eventID, userID string, at time.Time) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	reg, ok := r.m.registrations[regKey(eventID, userID)]
	if !ok {
		return false, domain.ErrNotFound
	}
	switch reg.Status {
	case domain.RegistrationCancelled:
		return false, domain.ErrRegistrationCancelled
	case domain.RegistrationAttended:
		return false, nil
	}
	reg.Status = domain.RegistrationAttended
	reg.AttendedAt = &at
	return true, nil
}

// ---- certificates ----

type mockCertificates struct{ m *MockDB }

func (r mockCertificates) Create(_ context.Context, c *domain.Certificate) error {
	if r.m.CreateCertificateErr != nil {
		return r.m.CreateCertificateErr
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, existing := range r.m.certificates {
		if existing.EventID == c.EventID && existing.UserID == c.UserID {
			return domain.ErrConflict
		}
	}
	clone := *c
	r.m.certificates[c.ID] = &clone
	return nil
}

func (r mockCertificates) GetByEventAndUser(_ context.Context, eventID, userID string) (*domain.Certificate, error) {
	return r.find(func(c *domain.Certificate) bool { return c.EventID == eventID && c.UserID == userID })
}

func (r mockCertificates) GetByNumber(_ context.Context, number string) (*domain.Certificate, error) {
	return r.find(func(c *domain.Certificate) bool { return c.Number == number })
}

func (r mockCertificates) find(match func(*domain.Certificate) bool) (*domain.Certificate, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	for _, c := range r.m.certificates {
		if match(c) {
			clone := *c
			return &clone, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r mockCertificates) Delete(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.certificates[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.m.certificates, id)
	return nil
}

func (r mockCertificates) List(_ context.Context, eventID, userID string) ([]*domain.Certificate, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var out []*domain.Certificate
	for _, c := range r.m.certificates {
		if (eventID == "" || c.EventID == eventID) && (userID == "" || c.UserID == userID) {
			clone := *c
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.Before(out[j].IssuedAt) })
	return out, nil
}

// ---- notifications ----

type mockNotifications struct{ m *MockDB }

func (r mockNotifications) Create(_ context.Context, n *domain.Notification) error {
	if r.m.CreateNotificationErr != nil {
		return r.m.CreateNotificationErr
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if n.DedupeKey != nil {
		for _, existing := range r.m.notifications {
			if existing.DedupeKey != nil && *existing.DedupeKey == *n.DedupeKey {
				return domain.ErrConflict
			}
		}
	}
	clone := *n
	r.m.notifications[n.ID] = &clone
	return nil
}

func (r mockNotifications) GetByDedupeKey(_ context.Context, key string) (*domain.Notification, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	for _, n := range r.m.notifications {
		if n.DedupeKey != nil && *n.DedupeKey == key {
			clone := *n
			return &clone, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r mockNotifications) ListPending(_ context.Context, userID string, now time.Time, limit int) ([]*domain.Notification, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var out []*domain.Notification
	for _, n := range r.m.notifications {
		if n.UserID == userID && n.IsPending(now) {
			clone := *n
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r mockNotifications) MarkDelivered(_ context.Context, now time.Time, limit int) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	marked := 0
	for _, n := range r.m.notifications {
		if limit > 0 && marked >= limit {
			break
		}
		if n.DeliveredAt == nil && n.IsPending(now) {
			at := now
			n.DeliveredAt = &at
			marked++
		}
	}
	return marked, nil
}

func (r mockNotifications) MarkRead(_ context.Context, id, userID string, at time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	n, ok := r.m.notifications[id]
	if !ok || n.UserID != userID {
		return domain.ErrNotFound
	}
	if n.ReadAt == nil {
		n.ReadAt = &at
	}
	return nil
}

func (r mockNotifications) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	return r.deleteWhere(func(n *domain.Notification) bool { return n.IsExpired(now) }), nil
}

func (r mockNotifications) DeleteReadBefore(_ context.Context, before time.Time) (int, error) {
	return r.deleteWhere(func(n *domain.Notification) bool {
		return n.ReadAt != nil && n.ReadAt.Before(before)
	}), nil
}

func (r mockNotifications) deleteWhere(match func(*domain.Notification) bool) int {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	removed := 0
	for id, n := range r.m.notifications {
		if match(n) {
			delete(r.m.notifications, id)
			removed++
		}
	}
	return removed
}

// ---- feedback ----

type mockFeedback struct{ m *MockDB }

func (r mockFeedback) Create(_ context.Context, f *domain.Feedback) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, existing := range r.m.feedback {
		if existing.EventID == f.EventID && existing.UserID == f.UserID {
			return domain.ErrConflict
		}
	}
	clone := *f
	r.m.feedback[f.ID] = &clone
	return nil
}

func (r mockFeedback) ListByEvent(_ context.Context, eventID string) ([]*domain.Feedback, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var out []*domain.Feedback
	for _, f := range r.m.feedback {
		if f.EventID == eventID {
			clone := *f
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r mockFeedback) Exists(_ context.Context, eventID, userID string) (bool, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	for _, f := range r.m.feedback {
		if f.EventID == eventID && f.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

// ---- analytics ----

type mockAnalytics struct{ m *MockDB }

func (r mockAnalytics) PeriodCounts(_ context.Context, from, to time.Time) (domain.PeriodCounts, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var c domain.PeriodCounts
	for _, u := range r.m.users {
		if inRange(u.CreatedAt, from, to) {
			c.NewUsers++
		}
	}
	for _, reg := range r.m.registrations {
		if inRange(reg.RegisteredAt, from, to) {
			c.Registrations++
		}
		if reg.AttendedAt != nil && inRange(*reg.AttendedAt, from, to) {
			c.CheckIns++
		}
	}
	for _, cert := range r.m.certificates {
		if inRange(cert.IssuedAt, from, to) {
			c.CertificatesIssued++
		}
	}
	for _, f := range r.m.feedback {
		if inRange(f.CreatedAt, from, to) {
			c.FeedbackReceived++
		}
	}
	return c, nil
}
