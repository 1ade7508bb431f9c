package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tnjtools/alertqueue/internal/api/handler"
	apimw "github.com/tnjtools/alertqueue/internal/api/middleware"
	"github.com/tnjtools/alertqueue/internal/display"
	"github.com/tnjtools/alertqueue/internal/service"
)

// Deps carries everything the router needs to build its handlers.
type Deps struct {
	Service    *service.QueueService
	Hub        *display.Hub
	Gateway    http.Handler
	DB         handler.Pinger
	InstanceID string
	Gatherer   prometheus.Gatherer
}

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(d Deps, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)            // recover panics, return 500
	r.Use(chimw.RealIP)               // trust X-Forwarded-For / X-Real-IP
	r.Use(chimw.RequestSize(1 << 20)) // 1 MB max request body
	r.Use(apimw.CorrelationID)        // X-Correlation-ID inject / echo
	r.Use(apimw.RequestLogger(logger))

	// --- handler instances ---
	ah := handler.NewAlertHandler(d.Service, logger)
	qh := handler.NewQueueHandler(d.Service, logger)
	mh := handler.NewMetricsHandler(d.Service, d.Hub)
	hh := handler.NewHealthHandler(d.DB, d.InstanceID)

	// --- routes ---
	r.Get("/health", hh.Health)
	r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	r.Handle("/ws/display", d.Gateway)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/alerts", ah.List)
		r.Post("/alerts", ah.Create)
		r.Get("/alerts/{slug}", ah.Get)
		r.Post("/alerts/{slug}/trigger", ah.Trigger)
		r.Get("/alerts/{slug}/trigger", ah.TriggerQuery)

		// /queue/current and /queue/advance must be registered before
		// /queue/{id} so chi does not treat them as ids.
		r.Get("/queue", qh.List)
		r.Get("/queue/current", qh.Current)
		r.Post("/queue/advance", qh.Advance)
		r.Get("/queue/{id}", qh.GetByID)
		r.Post("/queue/{id}/complete", qh.Complete)

		r.Get("/metrics", mh.GetMetrics)
	})

	return r
}
