// Waveframe - Audio Poster Customization and Preview Service
// Copyright 2026 Waveframe Studio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waveframe-studio/waveframe

package session

import (
	"context"
	"strings"
	"time"

	"github.com/waveframe-studio/waveframe/internal/logging"
	"github.com/waveframe-studio/waveframe/internal/metrics"
)

// PrefixStore is the listing/bulk-delete surface the janitor needs beyond
// the basic asset Store. Satisfied by assets.FSStore.
type PrefixStore interface {
	ListPrefix(ctx context.Context, prefix string) ([]string, error)
	DeletePrefix(ctx context.Context, prefix string) error
}

// Janitor removes temporary asset bytes left behind by expired sessions.
// Badger's TTL drops the session records themselves; this sweep reclaims
// the tmp/{token}/ objects whose owning record is gone. Permanent order
// assets are never touched.
type Janitor struct {
	store    *Store
	assets   PrefixStore
	interval time.Duration
}

// NewJanitor creates a janitor sweeping every interval.
func NewJanitor(store *Store, assetStore PrefixStore, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Janitor{
		store:    store,
		assets:   assetStore,
		interval: interval,
	}
}

// Run sweeps on a ticker until the context is canceled. Implements the
// supervised-service contract: returns ctx.Err() on shutdown.
func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := j.Sweep(ctx); err != nil {
				logging.Error().Err(err).Msg("Janitor sweep failed")
			}
		}
	}
}

// Sweep deletes tmp/ objects belonging to tokens with no live session.
func (j *Janitor) Sweep(ctx context.Context) error {
	metrics.JanitorSweeps.Inc()

	tokens, err := j.store.ActiveTokens(ctx)
	if err != nil {
		return err
	}
	live := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		live[t] = struct{}{}
	}

	keys, err := j.assets.ListPrefix(ctx, "tmp/")
	if err != nil {
		return err
	}

	// Collect orphaned tokens first so each prefix is deleted once.
	orphans := make(map[string]int)
	for _, key := range keys {
		rest := strings.TrimPrefix(key, "tmp/")
		token, _, ok := strings.Cut(rest, "/")
		if !ok || token == "" {
			continue
		}
		if _, ok := live[token]; !ok {
			orphans[token]++
		}
	}

	for token, count := range orphans {
		if err := j.assets.DeletePrefix(ctx, "tmp/"+token); err != nil {
			logging.Warn().Err(err).Str("session_token", token).Msg("Failed to delete orphaned assets")
			continue
		}
		metrics.JanitorAssetsDeleted.Add(float64(count))
		logging.Debug().Str("session_token", token).Int("assets", count).
			Msg("Deleted orphaned temporary assets")
	}

	return nil
}
