// Waveframe - Audio Poster Customization and Preview Service
// Copyright 2026 Waveframe Studio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waveframe-studio/waveframe

package models

// PDFSize is a (paper format, orientation) pair. It is the only layout
// input clients control; the layout template is derived from it.
type PDFSize string

// Supported paper sizes.
const (
	SizeA4Portrait  PDFSize = "a4-portrait"
	SizeA4Landscape PDFSize = "a4-landscape"
	SizeA3Portrait  PDFSize = "a3-portrait"
	SizeA3Landscape PDFSize = "a3-landscape"
	Size5070        PDFSize = "50x70-portrait"
)

// PDFSizes lists every supported size, in display order.
var PDFSizes = []PDFSize{
	SizeA4Portrait,
	SizeA4Landscape,
	SizeA3Portrait,
	SizeA3Landscape,
	Size5070,
}

// Valid reports whether s is a known paper size.
func (s PDFSize) Valid() bool {
	_, ok := templateBySize[s]
	return ok
}

// TemplateID identifies a layout template in the renderer.
type TemplateID string

// Layout templates, one per (paper format, orientation) pair.
const (
	TemplateA4Portrait  TemplateID = "tpl-a4-portrait"
	TemplateA4Landscape TemplateID = "tpl-a4-landscape"
	TemplateA3Portrait  TemplateID = "tpl-a3-portrait"
	TemplateA3Landscape TemplateID = "tpl-a3-landscape"
	Template5070        TemplateID = "tpl-50x70-portrait"
)

// templateBySize is the total derivation table. Every PDFSize has exactly
// one template, so a mismatched (size, template) pair is unrepresentable
// in persisted state.
var templateBySize = map[PDFSize]TemplateID{
	SizeA4Portrait:  TemplateA4Portrait,
	SizeA4Landscape: TemplateA4Landscape,
	SizeA3Portrait:  TemplateA3Portrait,
	SizeA3Landscape: TemplateA3Landscape,
	Size5070:        Template5070,
}

// TemplateForSize derives the layout template for a paper size. Callers
// must validate the size first; unknown sizes fall back to the A4 portrait
// template rather than producing an empty ID.
func TemplateForSize(size PDFSize) TemplateID {
	if id, ok := templateBySize[size]; ok {
		return id
	}
	return TemplateA4Portrait
}
