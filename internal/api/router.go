// Waveframe - Audio Poster Customization and Preview Service
// Copyright 2026 Waveframe Studio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waveframe-studio/waveframe

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/waveframe-studio/waveframe/internal/config"
	"github.com/waveframe-studio/waveframe/internal/middleware"
)

// Router assembles the HTTP handler tree.
type Router struct {
	handler *Handler
	mw      *Middleware
}

// NewRouter creates a router from the handler set and server config.
func NewRouter(handler *Handler, cfg config.ServerConfig) *Router {
	return &Router{
		handler: handler,
		mw: NewMiddleware(&MiddlewareConfig{
			CORSAllowedOrigins:   cfg.CORSOrigins,
			CORSAllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			CORSAllowedHeaders:   []string{"Content-Type", "X-Session-Token"},
			CORSAllowCredentials: false,
			CORSMaxAge:           86400,
			RateLimitRequests:    cfg.RateLimitReqs,
			RateLimitWindow:      cfg.RateLimitWindow,
			RateLimitDisabled:    cfg.RateLimitDisabled,
		}),
	}
}

// Setup configures all routes and returns the root handler.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global stack, applied to every route in order.
	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.mw.CORS())

	// Health endpoints: permissive rate limiting for monitoring probes.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.mw.RateLimitStatus("health"))
		r.Get("/", router.handler.Health)
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	// Session lifecycle endpoints.
	r.Route("/api/v1/session", func(r chi.Router) {
		r.Use(middleware.PrometheusMetrics)
		r.Use(middleware.Compression)

		// Uploads move the largest payloads; strictest tier.
		r.Group(func(r chi.Router) {
			r.Use(router.mw.RateLimitUpload("upload"))
			r.Post("/upload/photo", router.handler.UploadPhoto)
			r.Post("/upload/audio", router.handler.UploadAudio)
		})

		r.Route("/{token}", func(r chi.Router) {
			// Status polling is the fallback for clients without
			// websockets and runs on a short timer; permissive tier.
			r.With(router.mw.RateLimitStatus("status")).Get("/status", router.handler.Status)

			r.Group(func(r chi.Router) {
				r.Use(router.mw.RateLimit("session"))
				r.Patch("/customize", router.handler.Customize)
				r.Get("/preview", router.handler.Preview)
				r.Post("/finalize", router.handler.Finalize)
			})
		})
	})

	// Websocket upgrade needs the raw ResponseWriter (http.Hijacker), so
	// it stays outside the metrics and compression wrappers.
	r.Get("/api/v1/session/{token}/ws", router.handler.WebSocket)

	// Signed asset dereference. Auth is the URL token itself.
	r.Route("/api/v1/assets", func(r chi.Router) {
		r.Use(router.mw.RateLimitStatus("assets"))
		r.Get("/*", router.handler.Asset)
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

// NewServer builds an http.Server around the assembled routes.
func NewServer(router *Router, cfg config.ServerConfig) *http.Server {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Server{
		Addr:    cfg.Addr(),
		Handler: router.Setup(),

		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       timeout,
		// Write timeout must cover a full preview render plus transfer.
		WriteTimeout: 2 * timeout,
		IdleTimeout:  120 * time.Second,
	}
}
