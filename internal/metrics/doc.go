// Waveframe - Audio Poster Customization and Preview Service
// Copyright 2026 Waveframe Studio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waveframe-studio/waveframe

/*
Package metrics provides Prometheus metrics collection and export for observability.

This package instruments the customization pipeline end to end using the
Prometheus client library.

# Overview

The package provides metrics for:
  - HTTP request latency and throughput
  - Session lifecycle (creation, uploads, finalization)
  - Customization edits applied and rejected
  - Waveform derivation events
  - Preview rendering, representation fallbacks, and circuit breaker state
  - WebSocket status push connections
  - Background janitor sweeps

# Metrics Endpoint

Metrics are exposed at the /metrics endpoint in Prometheus text format:

	curl http://localhost:8480/metrics

All collectors are registered at package init via promauto; importing the
package is enough to make them visible to the default registry.
*/
package metrics
