// Waveframe - Audio Poster Customization and Preview Service
// Copyright 2026 Waveframe Studio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waveframe-studio/waveframe

// Package models defines the persisted data types for Waveframe: the
// customization Session, the finalized Order, and the closed enumerations
// for photo shape and paper size.
package models

import "time"

// PhotoShape controls how the uploaded photo is composed onto the poster.
// Shape edits never depend on audio processing, so they are accepted even
// while the waveform is still being derived.
type PhotoShape string

// Photo shape values.
const (
	ShapeSquare   PhotoShape = "square"
	ShapeCircle   PhotoShape = "circle"
	ShapeOriginal PhotoShape = "original"
)

// Valid reports whether s is a known photo shape.
func (s PhotoShape) Valid() bool {
	switch s {
	case ShapeSquare, ShapeCircle, ShapeOriginal:
		return true
	}
	return false
}

// Readiness tracks which assets and derived artifacts are safe to use.
// Flags are monotonic: once true they never flip back to false, except
// when the underlying asset reference is removed on re-upload.
type Readiness struct {
	PhotoReady    bool `json:"photo_ready"`
	AudioReady    bool `json:"audio_ready"`
	WaveformReady bool `json:"waveform_ready"`
	PreviewReady  bool `json:"preview_ready"`
}

// Customization holds the user-controlled poster fields. All fields have
// defaults; TemplateID is derived from PDFSize and never set by clients.
type Customization struct {
	CustomText   string     `json:"custom_text"`
	FontID       string     `json:"font_id"`
	BackgroundID string     `json:"background_id"`
	PhotoShape   PhotoShape `json:"photo_shape"`
	PDFSize      PDFSize    `json:"pdf_size"`
	TemplateID   TemplateID `json:"template_id"`
}

// DefaultCustomization returns the customization applied to new sessions.
func DefaultCustomization() Customization {
	return Customization{
		PhotoShape: ShapeSquare,
		PDFSize:    SizeA4Portrait,
		TemplateID: TemplateForSize(SizeA4Portrait),
	}
}

// Session is the working record for one in-progress, unpaid customization
// attempt, keyed by an opaque token. It is the single source of truth for
// what a preview should render.
type Session struct {
	Token string `json:"token"`

	// Temporary asset references. Empty string means not uploaded yet.
	PhotoRef    string `json:"photo_ref,omitempty"`
	AudioRef    string `json:"audio_ref,omitempty"`
	WaveformRef string `json:"waveform_ref,omitempty"`

	Readiness     Readiness     `json:"readiness"`
	Customization Customization `json:"customization"`

	// Version counts accepted mutations (edits and asset changes). A
	// preview rendered from version N is stale once Version > N.
	Version uint64 `json:"version"`

	// PreviewRef points at the most recently committed preview artifact.
	// It goes stale (PreviewStale) on any accepted edit or asset change
	// but is not eagerly deleted.
	PreviewRef   string `json:"preview_ref,omitempty"`
	PreviewStale bool   `json:"preview_stale"`

	// PreviewSeq reserves generation numbers for in-flight renders;
	// PreviewGeneration records the generation of the committed ref.
	// Concurrent renders may both complete; the higher generation wins.
	PreviewSeq        uint64 `json:"preview_seq"`
	PreviewGeneration uint64 `json:"preview_generation"`

	// Finalized closes the session to further edits once an Order owns
	// permanent copies of its assets.
	Finalized bool   `json:"finalized"`
	OrderID   string `json:"order_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired reports whether the session has outlived its TTL.
func (s *Session) IsExpired() bool {
	return !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)
}

// Order owns the permanent asset copies made at finalization. Its refs are
// immutable once set and are the only valid inputs for the clean,
// non-watermarked render.
type Order struct {
	ID           string `json:"id"`
	SessionToken string `json:"session_token"`

	PermanentPhotoRef    string `json:"permanent_photo_ref"`
	PermanentAudioRef    string `json:"permanent_audio_ref"`
	PermanentWaveformRef string `json:"permanent_waveform_ref"`

	FinalizedAt time.Time `json:"finalized_at"`
}
