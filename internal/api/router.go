package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/notifyhub/eventdesk/internal/api/handler"
	apimw "github.com/notifyhub/eventdesk/internal/api/middleware"
	"github.com/notifyhub/eventdesk/internal/service"
)

// Services is everything the HTTP layer calls into.
type Services struct {
	Queues        *service.QueueAdmin
	Notifications *service.NotificationService
	Certificates  *service.CertificateService
	Registrations *service.RegistrationService
	QR            *service.QRService
	Attendance    *service.AttendanceService
}

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(
	svc Services,
	auth *apimw.Authenticator,
	health map[string]handler.Pinger,
	gatherer prometheus.Gatherer,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestSize(1 << 20))
	r.Use(apimw.CorrelationID)
	r.Use(apimw.RequestLogger(logger))

	qh := handler.NewQueueHandler(svc.Queues, logger)
	nh := handler.NewNotificationHandler(svc.Notifications, logger)
	ch := handler.NewCertificateHandler(svc.Certificates, logger)
	eh := handler.NewEventHandler(svc.Registrations, svc.QR, logger)
	ah := handler.NewAttendanceHandler(svc.Attendance, svc.QR, logger)
	hh := handler.NewHealthHandler(health)

	r.Get("/health", hh.Health)
	r.Get("/ready", hh.Ready)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/certificates/{number}", ch.Lookup)

		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate)

			r.Post("/events/{id}/register", eh.Register)
			r.Get("/events/{id}/ticket", eh.Ticket)
			r.Get("/certificates", ch.Mine)
			r.Get("/notifications", nh.Pending)
			r.Post("/notifications/{id}/read", nh.MarkRead)

			r.Group(func(r chi.Router) {
				r.Use(apimw.RequireAdmin)

				r.Get("/events/{id}/qr", eh.EventQR)
				r.Post("/events/{id}/certificates", ch.GenerateForEvent)
				r.Post("/events/{id}/certificates/{userID}", ch.GenerateForUser)
				r.Post("/notifications/broadcast", nh.Broadcast)
				r.Post("/attendance/scan", ah.Scan)
				r.Post("/qr/verify", ah.Verify)

				// Literal segments are registered before /{name}.
				r.Get("/queues", qh.Overview)
				r.Post("/queues/clean", qh.Clean)
				r.Post("/queues/pause", qh.PauseAll)
				r.Post("/queues/resume", qh.ResumeAll)
				r.Get("/queues/{name}", qh.Get)
				r.Post("/queues/{name}/pause", qh.Pause)
				r.Post("/queues/{name}/resume", qh.Resume)
				r.Get("/queues/{name}/jobs", qh.ListJobs)
				r.Get("/queues/{name}/jobs/{jobID}", qh.GetJob)
				r.Post("/queues/{name}/jobs/{jobID}/retry", qh.RetryJob)
				r.Delete("/queues/{name}/jobs/{jobID}", qh.RemoveJob)
			})
		})
	})

	return otelhttp.NewHandler(r, "eventdesk.http",
		otelhttp.WithFilter(func(req *http.Request) bool {
			return req.URL.Path != "/health" && req.URL.Path != "/metrics"
		}),
	)
}
