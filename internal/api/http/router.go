package httpapi

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Epky/GA-Enterprice-sub001/internal/api/http/middleware"
	"github.com/Epky/GA-Enterprice-sub001/internal/metrics"
	platformhealth "github.com/Epky/GA-Enterprice-sub001/platform/health/http"
	platformobservability "github.com/Epky/GA-Enterprice-sub001/platform/observability"
)

// NewRouter создаёт и настраивает HTTP роутер для Stock Service.
// checks - проверки зависимостей для /health (503, если хотя бы одна не прошла).
// m может быть nil, тогда /metrics не регистрируется.
func NewRouter(handler *Handler, checks map[string]platformhealth.Check, m *metrics.Metrics, logger *zap.Logger) chi.Router {
	router := chi.NewRouter()

	// Observability: trace context + span на каждый запрос, logger с trace_id в контексте
	if logger != nil {
		router.Use(platformobservability.HTTPMiddleware("stock", logger))
	}
	if m != nil {
		router.Use(m.HTTPMiddleware)
		router.Handle("/metrics", m.Handler())
	}

	router.Route("/stock", func(r chi.Router) {
		r.Get("/", handler.GetStock)
		r.Post("/restock", handler.PostRestock)
		r.Get("/movements", handler.GetMovements)
	})

	router.Route("/reservations", func(r chi.Router) {
		r.With(middleware.WithIdempotencyKey).Post("/", handler.PostReservations)
		r.Get("/{id}", handler.GetReservation)
		r.Patch("/{id}", handler.PatchReservation)
		r.Delete("/{id}", handler.DeleteReservation)
		r.Post("/{id}/fulfill", handler.PostFulfill)
	})

	router.Get("/health", platformhealth.Handler(checks))

	return router
}
