// Waveframe - Audio Poster Customization and Preview Service
// Copyright 2026 Waveframe Studio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waveframe-studio/waveframe

// Package middleware provides infrastructure HTTP middleware: Prometheus
// request instrumentation and gzip compression. Routing-level concerns
// (CORS, rate limiting, request IDs) live in the api package where they
// are configured.
package middleware
