// Waveframe - Audio Poster Customization and Preview Service
// Copyright 2026 Waveframe Studio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waveframe-studio/waveframe

// Package session implements the customization coordinator: the state
// machine that tracks per-session asset readiness, applies customization
// edits, and governs the one-time transition from temporary (pre-payment)
// assets to permanent (post-payment) order assets.
//
// Sessions are persisted in BadgerDB keyed by an opaque token. All mutating
// operations for one token are serialized through a per-token mutex; reads
// go through Badger's snapshot isolation without the lock.
//
// The package defines the full error taxonomy for rejected operations:
// every rejection carries a typed reason (not found, not ready, invalid,
// missing asset, already finalized) so callers can present a precise
// user-facing message instead of a generic failure.
package session
