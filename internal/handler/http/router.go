package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marmota-alpina/gostack-desafio-08/internal/cartstore"
	"github.com/marmota-alpina/gostack-desafio-08/pkg/health"
	"github.com/marmota-alpina/gostack-desafio-08/pkg/middleware"
)

const serviceName = "cart"

// NewRouter creates a chi router with all cart routes registered.
func NewRouter(
	provider *cartstore.Provider,
	healthHandler *health.Handler,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(serviceName))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.RequestLogger(logger))

	cartHandler := NewCartHandler(logger)

	// The event stream is long-lived and must not be compressed or timed out.
	r.With(Provide(provider)).Get("/api/v1/cart/stream", cartHandler.Stream)

	r.Group(func(r chi.Router) {
		r.Use(chimw.Compress(5))
		r.Use(chimw.Timeout(30 * time.Second))

		r.Get("/health/live", healthHandler.LivenessHandler())
		r.Get("/health/ready", healthHandler.ReadinessHandler())
		r.Handle("/metrics", promhttp.Handler())

		r.Route("/api/v1/cart", func(r chi.Router) {
			r.Use(ContentTypeJSON)
			r.Use(Provide(provider))

			r.Get("/", cartHandler.GetCart)
			r.Delete("/", cartHandler.ClearCart)
			r.Post("/items", cartHandler.AddItem)
			r.Post("/items/{id}/increment", cartHandler.Increment)
			r.Post("/items/{id}/decrement", cartHandler.Decrement)
		})
	})

	return r
}
