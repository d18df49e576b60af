package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/iconidentify/tubefetch/internal/api/handler"
	mw "github.com/iconidentify/tubefetch/internal/api/middleware"
)

// NewRouter creates the ops HTTP router. The /api/v1 routes are only mounted
// when apiKey is set.
func NewRouter(
	healthHandler *handler.HealthHandler,
	historyHandler *handler.HistoryHandler,
	apiKey string,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CleanPath) // Normalize paths (e.g., //ready -> /ready)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	r.Use(middleware.Timeout(30 * time.Second))

	// Health endpoints (no auth)
	r.Get("/health", healthHandler.Live)
	r.Get("/ready", healthHandler.Ready)

	if apiKey == "" {
		return r
	}

	// API v1 (authenticated)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(apiKey))

		r.Get("/stats", healthHandler.Stats)
		r.Get("/history", historyHandler.List)
		r.Get("/history/summary", historyHandler.Summary)
	})

	return r
}
