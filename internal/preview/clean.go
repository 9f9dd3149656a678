// Waveframe - Audio Poster Customization and Preview Service
// Copyright 2026 Waveframe Studio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waveframe-studio/waveframe

package preview

import (
	"context"
	"fmt"

	"github.com/waveframe-studio/waveframe/internal/assets"
	"github.com/waveframe-studio/waveframe/internal/logging"
	"github.com/waveframe-studio/waveframe/internal/metrics"
	"github.com/waveframe-studio/waveframe/internal/models"
)

// CleanRenderer produces the final print document after an order is placed.
// It reads from the order's permanent assets, never the session's temporary
// ones, and renders without the watermark.
type CleanRenderer struct {
	assets   assets.Store
	renderer Renderer
}

// NewCleanRenderer creates the post-finalization renderer.
func NewCleanRenderer(assetStore assets.Store, renderer Renderer) *CleanRenderer {
	return &CleanRenderer{assets: assetStore, renderer: renderer}
}

// FinalKey is the permanent key of an order's clean render.
func FinalKey(orderID string) string {
	return fmt.Sprintf("perm/%s/final.pdf", orderID)
}

// RenderClean renders the clean document and stores it alongside the
// order's other permanent assets.
func (c *CleanRenderer) RenderClean(ctx context.Context, order *models.Order, custom models.Customization) error {
	photo, err := c.assets.Get(ctx, order.PermanentPhotoRef)
	if err != nil {
		metrics.CleanRenderFailures.Inc()
		return fmt.Errorf("load permanent photo: %w", err)
	}
	waveform, err := c.assets.Get(ctx, order.PermanentWaveformRef)
	if err != nil {
		metrics.CleanRenderFailures.Inc()
		return fmt.Errorf("load permanent waveform: %w", err)
	}

	artifact, err := c.renderer.Render(ctx, RepresentationDocument, RenderSpec{
		Custom:   custom,
		Photo:    photo,
		Waveform: waveform,
	})
	if err != nil {
		metrics.CleanRenderFailures.Inc()
		return &RenderFailureError{Representation: RepresentationDocument, Err: err}
	}

	key := FinalKey(order.ID)
	if err := c.assets.Put(ctx, key, artifact.Data); err != nil {
		metrics.CleanRenderFailures.Inc()
		return fmt.Errorf("store clean render: %w", err)
	}

	logging.Ctx(ctx).Info().Str("order", order.ID).Str("key", key).Msg("Clean render stored")
	return nil
}
