// Package api exposes the simulation pipeline over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/monitoring"
	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/simulation"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Handler serves the API routes.
type Handler struct {
	svc      *simulation.Service
	metrics  *monitoring.Collector
	lookback int
}

// RouterOption configures optional routes.
type RouterOption func(*Handler)

// WithMetrics exposes GET /metrics from collector over the given window.
func WithMetrics(collector *monitoring.Collector, lookbackHours int) RouterOption {
	return func(h *Handler) {
		h.metrics = collector
		h.lookback = lookbackHours
	}
}

// NewRouter builds the HTTP routes. An empty allowedOrigins disables CORS.
func NewRouter(svc *simulation.Service, allowedOrigins []string, opts ...RouterOption) http.Handler {
	h := &Handler{svc: svc}
	for _, opt := range opts {
		opt(h)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", h.health)
	if h.metrics != nil {
		r.Get("/metrics", h.snapshot)
	}
	r.Post("/simulate", h.simulate)
	r.Post("/schedule", h.schedule)
	r.Get("/cities/{uf}", h.cities)
	r.Route("/simulations", func(r chi.Router) {
		r.Post("/", h.saveSimulation)
		r.Get("/", h.listSimulations)
		r.Get("/{id}", h.getSimulation)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
