package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/user/forum-crawler/internal/delivery/http/handler"
	"github.com/user/forum-crawler/internal/delivery/http/middleware"
	"github.com/user/forum-crawler/pkg/metrics"
)

// New wires the status API. metricsHandler serves /metrics.
func New(h *handler.Handler, metricsHandler http.Handler, m *metrics.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging(logger.Named("access")))
	r.Use(middleware.Metrics(m))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	r.Handle("/metrics", metricsHandler)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.HandleHealthCheck)
		r.Get("/runs", h.HandleListRuns)
		r.Post("/crawl", h.HandleStartCrawl)
	})

	return r
}
