// Waveframe - Audio Poster Customization and Preview Service
// Copyright 2026 Waveframe Studio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waveframe-studio/waveframe

package preview

import (
	"context"
	"errors"
	"fmt"

	"github.com/waveframe-studio/waveframe/internal/models"
)

// Representation selects the preview output form. Image previews load faster
// in the editor; document previews show the exact print layout.
type Representation string

const (
	RepresentationImage    Representation = "image"
	RepresentationDocument Representation = "document"
)

// ParseRepresentation parses the query-level representation value. Empty
// selects the image form.
func ParseRepresentation(s string) (Representation, error) {
	switch s {
	case "", string(RepresentationImage):
		return RepresentationImage, nil
	case string(RepresentationDocument):
		return RepresentationDocument, nil
	default:
		return "", fmt.Errorf("unknown representation %q", s)
	}
}

// Alternate returns the other representation, used as the fallback when a
// render fails.
func (r Representation) Alternate() Representation {
	if r == RepresentationImage {
		return RepresentationDocument
	}
	return RepresentationImage
}

// RenderSpec is the immutable input to a single render: the customization
// snapshot plus the raw asset bytes it composes.
type RenderSpec struct {
	Custom   models.Customization
	Photo    []byte
	Waveform []byte

	// Watermark overlays the proof marking. Previews always set it; the
	// clean render after finalization never does.
	Watermark bool
}

// Artifact is a finished render.
type Artifact struct {
	Data        []byte
	ContentType string
	Ext         string
}

// Renderer produces a poster artifact in the requested representation.
type Renderer interface {
	Render(ctx context.Context, rep Representation, spec RenderSpec) (*Artifact, error)
}

// RenderFailureError wraps a renderer error with the representation that
// failed, so callers can distinguish it from session-state errors.
type RenderFailureError struct {
	Representation Representation
	Err            error
}

func (e *RenderFailureError) Error() string {
	return fmt.Sprintf("%s render failed: %v", e.Representation, e.Err)
}

func (e *RenderFailureError) Unwrap() error { return e.Err }

// IsRenderFailure reports whether err is a render failure.
func IsRenderFailure(err error) bool {
	var re *RenderFailureError
	return errors.As(err, &re)
}
