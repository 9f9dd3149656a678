// Waveframe - Audio Poster Customization and Preview Service
// Copyright 2026 Waveframe Studio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waveframe-studio/waveframe

package api

import (
	"net/http"
	"time"
)

// healthStatus is the response payload for the health endpoints.
type healthStatus struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks,omitempty"`
}

// Version is injected at build time via -ldflags.
var Version = "dev"

// Health handles GET /api/v1/health: overall status with per-dependency
// check results. Degraded when any check fails.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	status := "healthy"
	checks := make(map[string]string, len(h.checks))
	for _, c := range h.checks {
		if err := c.Check(r.Context()); err != nil {
			status = "degraded"
			checks[c.Name] = err.Error()
		} else {
			checks[c.Name] = "ok"
		}
	}

	rw.Success(healthStatus{
		Status:        status,
		Version:       Version,
		UptimeSeconds: time.Since(h.startTime).Seconds(),
		Checks:        checks,
	})
}

// HealthLive handles GET /api/v1/health/live: the process is up and
// serving. No dependency checks; restart-loop detection only.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(healthStatus{
		Status:        "alive",
		Version:       Version,
		UptimeSeconds: time.Since(h.startTime).Seconds(),
	})
}

// HealthReady handles GET /api/v1/health/ready: 503 until every registered
// dependency check passes, so load balancers hold traffic during startup.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	for _, c := range h.checks {
		if err := c.Check(r.Context()); err != nil {
			rw.ErrorWithDetails(http.StatusServiceUnavailable, ErrCodeServiceUnavailable,
				"Dependency not ready", map[string]string{c.Name: err.Error()})
			return
		}
	}

	rw.Success(healthStatus{
		Status:        "ready",
		Version:       Version,
		UptimeSeconds: time.Since(h.startTime).Seconds(),
	})
}
