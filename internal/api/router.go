// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/recordsync/internal/middleware"
)

// Router assembles the operator API.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
	ws            http.Handler
}

// NewRouter creates a Router. ws serves the outcome feed and may be nil,
// in which case /api/v1/ws answers 503.
func NewRouter(handler *Handler, mw *ChiMiddleware, ws http.Handler) *Router {
	if mw == nil {
		mw = NewChiMiddleware(nil)
	}
	return &Router{handler: handler, chiMiddleware: mw, ws: ws}
}

// SetupChi configures all routes.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	// Applied to every route, in order.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.AccessLog)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS()) // global so OPTIONS preflight is answered

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).NotFound("Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).Error(http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "Method not allowed")
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())

		// The websocket upgrade needs the raw connection, so it skips the
		// response-wrapping middleware below.
		r.Get("/ws", router.serveWS)

		r.Group(func(r chi.Router) {
			r.Use(APISecurityHeaders())
			r.Use(middleware.PrometheusMetrics)

			r.Get("/health", router.handler.Health)
			r.Get("/health/upstream", router.handler.HealthUpstream)
			r.Get("/status", router.handler.Status)

			r.Get("/outcomes", router.handler.Outcomes)
			r.Get("/collections", router.handler.Collections)
			r.Get("/collections/{collection}/records/preview", router.handler.PreviewRecords)

			r.Group(func(r chi.Router) {
				r.Use(router.chiMiddleware.RateLimitSync())
				r.Post("/sync", router.handler.TriggerSync)
				r.Post("/sync/{collection}", router.handler.TriggerCollectionSync)
			})
		})
	})

	return r
}

func (router *Router) serveWS(w http.ResponseWriter, r *http.Request) {
	if router.ws == nil {
		NewResponseWriter(w, r).ServiceUnavailable("Outcome feed unavailable")
		return
	}
	router.ws.ServeHTTP(w, r)
}
