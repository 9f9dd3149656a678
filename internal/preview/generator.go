// Waveframe - Audio Poster Customization and Preview Service
// Copyright 2026 Waveframe Studio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waveframe-studio/waveframe

package preview

import (
	"context"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/google/uuid"

	"github.com/waveframe-studio/waveframe/internal/assets"
	"github.com/waveframe-studio/waveframe/internal/logging"
	"github.com/waveframe-studio/waveframe/internal/metrics"
	"github.com/waveframe-studio/waveframe/internal/models"
)

// SessionReserver is the coordinator surface the generator needs: reserve a
// render generation, then commit the artifact that generation produced.
type SessionReserver interface {
	ReservePreview(ctx context.Context, token string) (*models.Session, uint64, error)
	CommitPreview(ctx context.Context, token, ref string, generation, renderedVersion uint64) error
}

// Config holds generator policy.
type Config struct {
	// BreakerThreshold is the consecutive failure count that opens a
	// representation's circuit.
	BreakerThreshold uint32

	// BreakerCooldown is how long an open circuit waits before probing.
	BreakerCooldown time.Duration
}

// Result describes a committed preview artifact.
type Result struct {
	Ref            string
	Representation Representation
	ContentType    string
	Generation     uint64
}

// Generator orchestrates preview renders: it reserves a generation from the
// coordinator, renders from that immutable snapshot, stores the artifact
// under a generation-unique key, and commits the reference.
//
// Each representation runs behind its own circuit breaker. A failed or
// rejected render falls back to the alternate representation exactly once;
// if the alternate also fails, that failure is returned.
type Generator struct {
	sessions SessionReserver
	assets   assets.Store
	renderer Renderer
	breakers map[Representation]*gobreaker.CircuitBreaker[*Artifact]
}

// NewGenerator creates a generator with per-representation breakers.
func NewGenerator(sessions SessionReserver, assetStore assets.Store, renderer Renderer, cfg Config) *Generator {
	if cfg.BreakerThreshold == 0 {
		cfg.BreakerThreshold = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}

	breakers := make(map[Representation]*gobreaker.CircuitBreaker[*Artifact], 2)
	for _, rep := range []Representation{RepresentationImage, RepresentationDocument} {
		name := "preview-" + string(rep)
		metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

		breakers[rep] = gobreaker.NewCircuitBreaker[*Artifact](gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Timeout:     cfg.BreakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.BreakerThreshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				fromStr := stateToString(from)
				toStr := stateToString(to)
				logging.Info().Str("breaker", name).Str("from", fromStr).Str("to", toStr).Msg("Render circuit state transition")
				metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
				metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
			},
		})
	}

	return &Generator{
		sessions: sessions,
		assets:   assetStore,
		renderer: renderer,
		breakers: breakers,
	}
}

// Generate renders and commits a preview for the session. Errors from the
// coordinator (unknown session, missing assets) pass through unchanged so
// the API layer can map them; render problems surface as RenderFailureError.
func (g *Generator) Generate(ctx context.Context, token string, rep Representation) (*Result, error) {
	snap, generation, err := g.sessions.ReservePreview(ctx, token)
	if err != nil {
		return nil, err
	}

	photo, err := g.assets.Get(ctx, snap.PhotoRef)
	if err != nil {
		return nil, fmt.Errorf("load photo %s: %w", snap.PhotoRef, err)
	}
	waveform, err := g.assets.Get(ctx, snap.WaveformRef)
	if err != nil {
		return nil, fmt.Errorf("load waveform %s: %w", snap.WaveformRef, err)
	}

	spec := RenderSpec{
		Custom:    snap.Customization,
		Photo:     photo,
		Waveform:  waveform,
		Watermark: true,
	}

	artifact, used, err := g.renderWithFallback(ctx, rep, spec)
	if err != nil {
		return nil, err
	}

	// The generation in the key makes every committed preview a fresh URL;
	// clients never see a cached older artifact after refetching.
	key := fmt.Sprintf("tmp/%s/preview-%d-%s%s", token, generation, uuid.New().String(), artifact.Ext)
	if err := g.assets.Put(ctx, key, artifact.Data); err != nil {
		return nil, fmt.Errorf("store preview artifact: %w", err)
	}

	if err := g.sessions.CommitPreview(ctx, token, key, generation, snap.Version); err != nil {
		return nil, err
	}

	return &Result{
		Ref:            key,
		Representation: used,
		ContentType:    artifact.ContentType,
		Generation:     generation,
	}, nil
}

// renderWithFallback tries the requested representation, then the alternate
// once. The alternate's failure is the one reported.
func (g *Generator) renderWithFallback(ctx context.Context, rep Representation, spec RenderSpec) (*Artifact, Representation, error) {
	artifact, err := g.renderOne(ctx, rep, spec)
	if err == nil {
		return artifact, rep, nil
	}

	alt := rep.Alternate()
	logging.Ctx(ctx).Warn().Err(err).
		Str("requested", string(rep)).
		Str("fallback", string(alt)).
		Msg("Preview render failed, trying alternate representation")
	metrics.RecordPreviewFallback(string(rep), string(alt))

	artifact, altErr := g.renderOne(ctx, alt, spec)
	if altErr != nil {
		return nil, alt, altErr
	}
	return artifact, alt, nil
}

// renderOne runs a single breaker-protected render.
func (g *Generator) renderOne(ctx context.Context, rep Representation, spec RenderSpec) (*Artifact, error) {
	start := time.Now()
	artifact, err := g.breakers[rep].Execute(func() (*Artifact, error) {
		return g.renderer.Render(ctx, rep, spec)
	})
	metrics.RecordPreview(string(rep), time.Since(start), err)
	if err != nil {
		return nil, &RenderFailureError{Representation: rep, Err: err}
	}
	return artifact, nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
