// Waveframe - Audio Poster Customization and Preview Service
// Copyright 2026 Waveframe Studio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waveframe-studio/waveframe

package preview

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/waveframe-studio/waveframe/internal/models"
)

// watermarkText is burned into every preview render.
const watermarkText = "PREVIEW"

// maxWaveformBars caps the rendered bar count; longer peak series are
// downsampled by bucket maximum so quiet passages stay visible.
const maxWaveformBars = 120

// waveformPeaks is the artifact format produced by the audio processing
// worker: normalized peak amplitudes in [0, 1].
type waveformPeaks struct {
	Version    int       `json:"version"`
	SampleRate int       `json:"sample_rate,omitempty"`
	Peaks      []float64 `json:"peaks"`
}

// pageDims maps each layout template to its page size in PostScript points.
var pageDims = map[models.TemplateID]struct{ W, H float64 }{
	models.TemplateA4Portrait:  {595.28, 841.89},
	models.TemplateA4Landscape: {841.89, 595.28},
	models.TemplateA3Portrait:  {841.89, 1190.55},
	models.TemplateA3Landscape: {1190.55, 841.89},
	models.Template5070:        {1417.32, 1984.25},
}

type fontSpec struct {
	PDFName   string // base-14 font name
	SVGFamily string
}

// fontCatalog maps font_id values to render fonts. Unknown IDs fall back
// to the sans entry so stale catalog references never fail a render.
var fontCatalog = map[string]fontSpec{
	"sans":   {"Helvetica", "Helvetica, Arial, sans-serif"},
	"serif":  {"Times-Roman", "Georgia, 'Times New Roman', serif"},
	"mono":   {"Courier", "'Courier New', monospace"},
	"script": {"Times-Italic", "'Brush Script MT', cursive"},
}

type backgroundSpec struct {
	Hex     string
	R, G, B float64 // 0..1 for PDF color operators
	Dark    bool    // dark backgrounds flip the ink color
}

// backgroundCatalog maps background_id values to poster colors.
var backgroundCatalog = map[string]backgroundSpec{
	"white":    {"#ffffff", 1, 1, 1, false},
	"ivory":    {"#f7f3e8", 0.969, 0.953, 0.910, false},
	"blush":    {"#f6e3e3", 0.965, 0.890, 0.890, false},
	"charcoal": {"#2b2b2b", 0.169, 0.169, 0.169, true},
	"midnight": {"#101828", 0.063, 0.094, 0.157, true},
}

func fontFor(id string) fontSpec {
	if f, ok := fontCatalog[id]; ok {
		return f
	}
	return fontCatalog["sans"]
}

func backgroundFor(id string) backgroundSpec {
	if b, ok := backgroundCatalog[id]; ok {
		return b
	}
	return backgroundCatalog["white"]
}

// PosterRenderer composes poster artifacts from the photo, the derived
// waveform peaks, and the customization. The image representation is an SVG
// document; the document representation is a single-page PDF at the exact
// print dimensions.
type PosterRenderer struct{}

// NewPosterRenderer creates the built-in renderer.
func NewPosterRenderer() *PosterRenderer {
	return &PosterRenderer{}
}

// Render produces the requested representation.
func (r *PosterRenderer) Render(ctx context.Context, rep Representation, spec RenderSpec) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	peaks, err := decodePeaks(spec.Waveform)
	if err != nil {
		return nil, fmt.Errorf("decode waveform peaks: %w", err)
	}

	switch rep {
	case RepresentationImage:
		return r.renderSVG(spec, peaks)
	case RepresentationDocument:
		return r.renderPDF(spec, peaks)
	default:
		return nil, fmt.Errorf("unknown representation %q", rep)
	}
}

// decodePeaks parses and normalizes the waveform artifact.
func decodePeaks(data []byte) ([]float64, error) {
	var wf waveformPeaks
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, err
	}
	if len(wf.Peaks) == 0 {
		return nil, fmt.Errorf("empty peak series")
	}

	peaks := wf.Peaks
	if len(peaks) > maxWaveformBars {
		peaks = downsample(peaks, maxWaveformBars)
	}
	for i, p := range peaks {
		if p < 0 {
			peaks[i] = 0
		} else if p > 1 {
			peaks[i] = 1
		}
	}
	return peaks, nil
}

// downsample reduces peaks to n buckets, keeping each bucket's maximum.
func downsample(peaks []float64, n int) []float64 {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		lo := i * len(peaks) / n
		hi := (i + 1) * len(peaks) / n
		if hi <= lo {
			hi = lo + 1
		}
		max := peaks[lo]
		for _, p := range peaks[lo:hi] {
			if p > max {
				max = p
			}
		}
		out[i] = max
	}
	return out
}

// layout computes the poster geometry: photo block on top, waveform band
// below it, caption under the band. All values in page units with the
// origin at the bottom-left, matching PDF coordinates.
type layout struct {
	W, H float64

	PhotoX, PhotoY, PhotoW, PhotoH float64
	WaveX, WaveY, WaveW, WaveH     float64
	TextY, TextSize                float64
	Margin                         float64
}

func layoutFor(tpl models.TemplateID, shape models.PhotoShape) layout {
	dims, ok := pageDims[tpl]
	if !ok {
		dims = pageDims[models.TemplateA4Portrait]
	}

	l := layout{W: dims.W, H: dims.H}
	l.Margin = dims.W * 0.08

	inner := dims.W - 2*l.Margin
	photoH := dims.H * 0.45
	if shape != models.ShapeOriginal {
		// Square and circle crops render as a square block.
		if photoH > inner {
			photoH = inner
		}
	}
	photoW := inner
	if shape != models.ShapeOriginal {
		photoW = photoH
	}

	l.PhotoW = photoW
	l.PhotoH = photoH
	l.PhotoX = (dims.W - photoW) / 2
	l.PhotoY = dims.H - l.Margin - photoH

	l.WaveW = inner
	l.WaveH = dims.H * 0.18
	l.WaveX = l.Margin
	l.WaveY = l.PhotoY - dims.H*0.06 - l.WaveH

	l.TextSize = dims.W * 0.045
	l.TextY = l.WaveY - dims.H*0.05 - l.TextSize

	return l
}

// renderSVG builds the image representation.
func (r *PosterRenderer) renderSVG(spec RenderSpec, peaks []float64) (*Artifact, error) {
	photoMIME := sniffImageMIME(spec.Photo)
	if photoMIME == "" {
		return nil, fmt.Errorf("unsupported photo format")
	}

	l := layoutFor(spec.Custom.TemplateID, spec.Custom.PhotoShape)
	bg := backgroundFor(spec.Custom.BackgroundID)
	font := fontFor(spec.Custom.FontID)
	ink := "#1a1a1a"
	if bg.Dark {
		ink = "#f2f2f2"
	}

	// SVG has a top-left origin; flip the PDF-style Y coordinates.
	fly := func(y, h float64) float64 { return l.H - y - h }

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%.0f" height="%.0f" viewBox="0 0 %.2f %.2f">`+"\n", l.W, l.H, l.W, l.H)
	fmt.Fprintf(&b, `<rect width="%.2f" height="%.2f" fill="%s"/>`+"\n", l.W, l.H, bg.Hex)

	photoY := fly(l.PhotoY, l.PhotoH)
	if spec.Custom.PhotoShape == models.ShapeCircle {
		cx := l.PhotoX + l.PhotoW/2
		cy := photoY + l.PhotoH/2
		fmt.Fprintf(&b, `<clipPath id="pc"><circle cx="%.2f" cy="%.2f" r="%.2f"/></clipPath>`+"\n", cx, cy, l.PhotoW/2)
		fmt.Fprintf(&b, `<image x="%.2f" y="%.2f" width="%.2f" height="%.2f" clip-path="url(#pc)" preserveAspectRatio="xMidYMid slice" href="data:%s;base64,%s"/>`+"\n",
			l.PhotoX, photoY, l.PhotoW, l.PhotoH, photoMIME, base64.StdEncoding.EncodeToString(spec.Photo))
	} else {
		aspect := `preserveAspectRatio="xMidYMid slice"`
		if spec.Custom.PhotoShape == models.ShapeOriginal {
			aspect = `preserveAspectRatio="xMidYMid meet"`
		}
		fmt.Fprintf(&b, `<image x="%.2f" y="%.2f" width="%.2f" height="%.2f" %s href="data:%s;base64,%s"/>`+"\n",
			l.PhotoX, photoY, l.PhotoW, l.PhotoH, aspect, photoMIME, base64.StdEncoding.EncodeToString(spec.Photo))
	}

	// Waveform bars, mirrored around the band's midline.
	barW := l.WaveW / float64(len(peaks)) * 0.7
	step := l.WaveW / float64(len(peaks))
	midY := fly(l.WaveY, l.WaveH) + l.WaveH/2
	for i, p := range peaks {
		h := p * l.WaveH
		if h < 1 {
			h = 1
		}
		x := l.WaveX + float64(i)*step + (step-barW)/2
		fmt.Fprintf(&b, `<rect x="%.2f" y="%.2f" width="%.2f" height="%.2f" fill="%s"/>`+"\n", x, midY-h/2, barW, h, ink)
	}

	if spec.Custom.CustomText != "" {
		fmt.Fprintf(&b, `<text x="%.2f" y="%.2f" text-anchor="middle" font-family="%s" font-size="%.2f" fill="%s">%s</text>`+"\n",
			l.W/2, fly(l.TextY, 0), font.SVGFamily, l.TextSize, ink, escapeXML(spec.Custom.CustomText))
	}

	if spec.Watermark {
		fmt.Fprintf(&b, `<text x="%.2f" y="%.2f" text-anchor="middle" font-family="Helvetica, sans-serif" font-size="%.2f" fill="#888888" fill-opacity="0.35" transform="rotate(-35 %.2f %.2f)">%s</text>`+"\n",
			l.W/2, l.H/2, l.W*0.16, l.W/2, l.H/2, watermarkText)
	}

	b.WriteString("</svg>\n")
	return &Artifact{Data: []byte(b.String()), ContentType: "image/svg+xml", Ext: ".svg"}, nil
}

// renderPDF builds the document representation: one page at the exact
// print size. JPEG photos embed directly as DCTDecode XObjects; other
// formats get a placeholder frame so the document stays valid.
func (r *PosterRenderer) renderPDF(spec RenderSpec, peaks []float64) (*Artifact, error) {
	l := layoutFor(spec.Custom.TemplateID, spec.Custom.PhotoShape)
	bg := backgroundFor(spec.Custom.BackgroundID)
	font := fontFor(spec.Custom.FontID)

	inkR, inkG, inkB := 0.1, 0.1, 0.1
	if bg.Dark {
		inkR, inkG, inkB = 0.95, 0.95, 0.95
	}

	embedPhoto := isJPEG(spec.Photo)
	var photoW, photoH int
	if embedPhoto {
		var err error
		photoW, photoH, err = jpegDims(spec.Photo)
		if err != nil {
			return nil, fmt.Errorf("parse photo dimensions: %w", err)
		}
	}

	var cs strings.Builder
	fmt.Fprintf(&cs, "%.3f %.3f %.3f rg\n0 0 %.2f %.2f re f\n", bg.R, bg.G, bg.B, l.W, l.H)

	if embedPhoto {
		// Center-fit the image inside the photo block.
		fw, fh := fitRect(float64(photoW), float64(photoH), l.PhotoW, l.PhotoH)
		fx := l.PhotoX + (l.PhotoW-fw)/2
		fy := l.PhotoY + (l.PhotoH-fh)/2
		fmt.Fprintf(&cs, "q %.2f 0 0 %.2f %.2f %.2f cm /Im1 Do Q\n", fw, fh, fx, fy)
	} else {
		fmt.Fprintf(&cs, "0.75 0.75 0.75 RG 1.5 w %.2f %.2f %.2f %.2f re S\n", l.PhotoX, l.PhotoY, l.PhotoW, l.PhotoH)
	}

	barW := l.WaveW / float64(len(peaks)) * 0.7
	step := l.WaveW / float64(len(peaks))
	midY := l.WaveY + l.WaveH/2
	fmt.Fprintf(&cs, "%.3f %.3f %.3f rg\n", inkR, inkG, inkB)
	for i, p := range peaks {
		h := p * l.WaveH
		if h < 1 {
			h = 1
		}
		x := l.WaveX + float64(i)*step + (step-barW)/2
		fmt.Fprintf(&cs, "%.2f %.2f %.2f %.2f re f\n", x, midY-h/2, barW, h)
	}

	if spec.Custom.CustomText != "" {
		// Center using the Helvetica-family average glyph width; exact
		// metrics are not worth carrying for a caption line.
		textW := float64(len(spec.Custom.CustomText)) * l.TextSize * 0.5
		fmt.Fprintf(&cs, "BT /F1 %.2f Tf %.3f %.3f %.3f rg %.2f %.2f Td (%s) Tj ET\n",
			l.TextSize, inkR, inkG, inkB, (l.W-textW)/2, l.TextY, escapePDF(spec.Custom.CustomText))
	}

	if spec.Watermark {
		size := l.W * 0.16
		fmt.Fprintf(&cs, "q 0.55 g 0.8191 0.5736 -0.5736 0.8191 %.2f %.2f cm BT /F1 %.2f Tf 0 0 Td (%s) Tj ET Q\n",
			l.W*0.18, l.H*0.35, size, watermarkText)
	}

	doc := buildPDF(l.W, l.H, font.PDFName, cs.String(), spec.Photo, embedPhoto, photoW, photoH)
	return &Artifact{Data: doc, ContentType: "application/pdf", Ext: ".pdf"}, nil
}

// fitRect scales (w, h) to fit inside (maxW, maxH), preserving aspect.
func fitRect(w, h, maxW, maxH float64) (float64, float64) {
	scale := maxW / w
	if s := maxH / h; s < scale {
		scale = s
	}
	return w * scale, h * scale
}

func escapeXML(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}

func escapePDF(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`, "\n", `\n`, "\r", `\r`)
	return r.Replace(s)
}

func isJPEG(data []byte) bool {
	return len(data) > 2 && data[0] == 0xFF && data[1] == 0xD8
}

// sniffImageMIME detects the photo format from magic bytes.
func sniffImageMIME(data []byte) string {
	switch {
	case isJPEG(data):
		return "image/jpeg"
	case len(data) > 8 && string(data[:8]) == "\x89PNG\r\n\x1a\n":
		return "image/png"
	case len(data) > 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return "image/webp"
	default:
		return ""
	}
}

// jpegDims extracts pixel dimensions from a JPEG's start-of-frame marker.
func jpegDims(data []byte) (w, h int, err error) {
	i := 2
	for i+9 < len(data) {
		if data[i] != 0xFF {
			i++
			continue
		}
		marker := data[i+1]
		// SOF0..SOF15, excluding DHT, JPG, DAC.
		if marker >= 0xC0 && marker <= 0xCF && marker != 0xC4 && marker != 0xC8 && marker != 0xCC {
			h = int(data[i+5])<<8 | int(data[i+6])
			w = int(data[i+7])<<8 | int(data[i+8])
			if w == 0 || h == 0 {
				return 0, 0, fmt.Errorf("zero dimension in SOF marker")
			}
			return w, h, nil
		}
		if marker == 0xD8 || marker == 0x01 || (marker >= 0xD0 && marker <= 0xD7) {
			i += 2
			continue
		}
		segLen := int(data[i+2])<<8 | int(data[i+3])
		if segLen < 2 {
			break
		}
		i += 2 + segLen
	}
	return 0, 0, fmt.Errorf("no SOF marker found")
}

// buildPDF assembles a single-page PDF. Object numbering is fixed:
// 1 catalog, 2 pages, 3 page, 4 content, 5 font, 6 image (when embedded).
func buildPDF(w, h float64, fontName, content string, photo []byte, embedPhoto bool, photoW, photoH int) []byte {
	var buf strings.Builder
	buf.WriteString("%PDF-1.4\n")

	offsets := make(map[int]int)
	writeObj := func(num int, body string) {
		offsets[num] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", num, body)
	}
	writeStreamObj := func(num int, dict string, data []byte) {
		offsets[num] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n<< %s /Length %d >>\nstream\n", num, dict, len(data))
		buf.Write(data)
		buf.WriteString("\nendstream\nendobj\n")
	}

	resources := "/Font << /F1 5 0 R >>"
	objCount := 5
	if embedPhoto {
		resources += " /XObject << /Im1 6 0 R >>"
		objCount = 6
	}

	writeObj(1, "<< /Type /Catalog /Pages 2 0 R >>")
	writeObj(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	writeObj(3, fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %.2f %.2f] /Resources << %s >> /Contents 4 0 R >>", w, h, resources))
	writeStreamObj(4, "", []byte(content))
	writeObj(5, fmt.Sprintf("<< /Type /Font /Subtype /Type1 /BaseFont /%s >>", fontName))
	if embedPhoto {
		writeStreamObj(6, fmt.Sprintf("/Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /DeviceRGB /BitsPerComponent 8 /Filter /DCTDecode", photoW, photoH), photo)
	}

	xrefPos := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", objCount+1)
	for i := 1; i <= objCount; i++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", objCount+1, xrefPos)

	return []byte(buf.String())
}
