// Waveframe - Audio Poster Customization and Preview Service
// Copyright 2026 Waveframe Studio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waveframe-studio/waveframe

package session

// EditRequest is a partial customization update. Nil fields are absent from
// the request and leave the session value untouched. The set of fields is
// closed: unknown fields are rejected at decode time, and template_id is
// never accepted from clients because it is derived from pdf_size.
type EditRequest struct {
	CustomText   *string `json:"custom_text,omitempty"`
	FontID       *string `json:"font_id,omitempty"`
	BackgroundID *string `json:"background_id,omitempty"`
	PhotoShape   *string `json:"photo_shape,omitempty"`
	PDFSize      *string `json:"pdf_size,omitempty"`
}

// Empty reports whether the request carries no fields at all.
func (e *EditRequest) Empty() bool {
	return e.CustomText == nil && e.FontID == nil && e.BackgroundID == nil &&
		e.PhotoShape == nil && e.PDFSize == nil
}

// ShapeOnly reports whether the request carries photo_shape and nothing
// else. Shape-only edits bypass the waveform readiness gate because photo
// composition does not depend on audio-derived layout.
func (e *EditRequest) ShapeOnly() bool {
	return e.PhotoShape != nil && e.CustomText == nil && e.FontID == nil &&
		e.BackgroundID == nil && e.PDFSize == nil
}

// RequiresWaveform reports whether any field besides photo_shape is present.
func (e *EditRequest) RequiresWaveform() bool {
	return e.CustomText != nil || e.FontID != nil || e.BackgroundID != nil || e.PDFSize != nil
}

// MergeFrom overlays newer onto e: every field present in newer replaces
// the corresponding field in e. Used by the debounce buffer to coalesce a
// burst of edits into one request with later values winning.
func (e *EditRequest) MergeFrom(newer *EditRequest) {
	if newer.CustomText != nil {
		e.CustomText = newer.CustomText
	}
	if newer.FontID != nil {
		e.FontID = newer.FontID
	}
	if newer.BackgroundID != nil {
		e.BackgroundID = newer.BackgroundID
	}
	if newer.PhotoShape != nil {
		e.PhotoShape = newer.PhotoShape
	}
	if newer.PDFSize != nil {
		e.PDFSize = newer.PDFSize
	}
}

// WithoutShape returns a copy of e with photo_shape removed, and the
// extracted shape-only request. The debounce buffer dispatches the shape
// part immediately while the rest waits for the readiness gate.
func (e *EditRequest) WithoutShape() (rest, shape *EditRequest) {
	rest = &EditRequest{
		CustomText:   e.CustomText,
		FontID:       e.FontID,
		BackgroundID: e.BackgroundID,
		PDFSize:      e.PDFSize,
	}
	if e.PhotoShape != nil {
		shape = &EditRequest{PhotoShape: e.PhotoShape}
	}
	return rest, shape
}
