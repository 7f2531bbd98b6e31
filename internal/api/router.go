// Segmentfold - Audience Query & Segmentation Engine
// Copyright 2026 Segmentfold Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/segmentfold/segmentfold

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/segmentfold/segmentfold/internal/config"
	"github.com/segmentfold/segmentfold/internal/middleware"
)

// NewRouter assembles the HTTP routes and middleware chain.
func NewRouter(h *Handlers, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Prometheus)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Security.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if cfg.Security.RateLimitReqs > 0 {
		r.Use(httprate.LimitByIP(cfg.Security.RateLimitReqs, cfg.Security.RateLimitWindow))
	}

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/fields", h.Fields)

		r.Post("/query", h.Query)
		r.Post("/sources/describe", h.DescribeSource)

		r.Route("/segments", func(r chi.Router) {
			r.Post("/", h.CreateSegment)
			r.Get("/", h.ListSegments)
			r.Get("/{id}", h.GetSegment)
			r.Delete("/{id}", h.DeleteSegment)
			r.Post("/{id}/preview", h.PreviewSegment)
		})
	})

	return r
}
