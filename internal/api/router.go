// TrafficLens - Live Traffic Camera Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trafficlens

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tomtom215/trafficlens/internal/config"
	"github.com/tomtom215/trafficlens/internal/middleware"
)

// NewRouter wires the full HTTP surface: health probes, the camera API, the
// WebSocket upgrade, and Prometheus metrics.
func NewRouter(h *Handlers, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	// ========================
	// Global Middleware Stack
	// ========================
	// Applied to ALL routes in order
	r.Use(middleware.RequestID)    // Add X-Request-ID header with logging context
	r.Use(chimiddleware.RealIP)    // Extract real IP from X-Forwarded-For
	r.Use(chimiddleware.Recoverer) // Recover from panics

	// CORS must be global to handle OPTIONS preflight.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.API.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.RequestIDHeader},
		MaxAge:         300,
	}))

	// ========================
	// Health Endpoints
	// ========================
	// No rate limit so monitoring probes never get throttled.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Get("/live", h.HealthLive)
		r.Get("/ready", h.HealthReady)
	})

	// ========================
	// Core API Endpoints
	// ========================
	r.Route("/api/v1", func(r chi.Router) {
		if !cfg.API.RateLimitDisabled {
			r.Use(httprate.LimitByIP(cfg.API.RateLimitReqs, cfg.API.RateLimitWindow))
		}
		r.Use(middleware.Prometheus)

		r.Get("/cameras", h.GetCameras)
		r.Post("/cameras/revalidate", h.RevalidateCameras)
		r.Get("/sources", h.GetSources)
		r.Get("/config", h.GetConfig)
		r.Get("/ws", h.ServeWebSocket)
	})

	// ========================
	// Observability
	// ========================
	r.Handle("/metrics", promhttp.Handler())

	return r
}
