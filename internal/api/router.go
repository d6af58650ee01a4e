/**
 * @description
 * This file sets up the HTTP router for the settlement service. The service
 * is primarily a cron-driven batch job; the HTTP surface is operational:
 * health, metrics, and a guarded manual cycle trigger.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SettlementRoutes creates and returns the router for the settlement service.
func SettlementRoutes(h *SettlementHandlers, internalAPIKey string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Handle("/metrics", promhttp.Handler())

	// Group routes that require the internal shared secret.
	r.Group(func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalAPIKey))

		r.Post("/internal/settlement/run", h.RunSettlementHandler)
	})

	return r
}
