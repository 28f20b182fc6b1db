// Interstop - Transit Segment Speed Estimation and Analytics
// Copyright 2026 M. Peeters (mpeeters-be)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpeeters-be/interstop

// Package api provides the HTTP surface of Interstop using the Chi
// router and its production middleware ecosystem.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mpeeters-be/interstop/internal/config"
)

// Router wires handlers into the HTTP route tree.
type Router struct {
	handler *Handler
	cfg     config.ServerConfig
}

// NewRouter creates a router serving the given handler set.
func NewRouter(handler *Handler, cfg config.ServerConfig) *Router {
	return &Router{handler: handler, cfg: cfg}
}

// Setup builds the full route tree.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to all routes in order.
	r.Use(requestLogging())
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: router.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         86400,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		if router.cfg.RateLimitReqs > 0 {
			r.Use(httprate.LimitByIP(router.cfg.RateLimitReqs, router.cfg.RateLimitWindow))
		}
		r.Use(prometheusMetrics)

		r.Get("/health", router.handler.Health)

		// Estimation queries carry a full parameter set, so POST.
		r.Post("/speeds", router.handler.Speeds)
		r.Post("/insights", router.handler.Insights)

		// Network topology lookups.
		r.Get("/lines", router.handler.Lines)
		r.Get("/lines/{lineID}/stops", router.handler.Stops)

		// Day-type calendar lookups.
		r.Get("/calendar/excluded", router.handler.CalendarExcluded)
	})

	// Observability.
	r.Handle("/metrics", promhttp.Handler())

	return r
}
