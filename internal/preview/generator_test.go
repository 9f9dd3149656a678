// Waveframe - Audio Poster Customization and Preview Service
// Copyright 2026 Waveframe Studio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waveframe-studio/waveframe

package preview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/waveframe-studio/waveframe/internal/models"
)

// stubAssets is a map-backed asset store for generator tests.
type stubAssets struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newStubAssets() *stubAssets {
	return &stubAssets{objects: make(map[string][]byte)}
}

func (s *stubAssets) Put(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

func (s *stubAssets) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("no object %s", key)
	}
	return data, nil
}

func (s *stubAssets) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *stubAssets) SignedURL(key string, _ time.Duration) (string, error) {
	return "/assets/" + key, nil
}

type commitRecord struct {
	Ref             string
	Generation      uint64
	RenderedVersion uint64
}

// stubReserver hands out increasing generations over a fixed snapshot.
type stubReserver struct {
	sess       models.Session
	reserveErr error

	mu      sync.Mutex
	seq     uint64
	commits []commitRecord
}

func (s *stubReserver) ReservePreview(_ context.Context, token string) (*models.Session, uint64, error) {
	if s.reserveErr != nil {
		return nil, 0, s.reserveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	cp := s.sess
	cp.Token = token
	return &cp, s.seq, nil
}

func (s *stubReserver) CommitPreview(_ context.Context, _, ref string, generation, renderedVersion uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits = append(s.commits, commitRecord{ref, generation, renderedVersion})
	return nil
}

// scriptedRenderer fails selected representations and counts invocations.
type scriptedRenderer struct {
	mu           sync.Mutex
	failImage    bool
	failDocument bool
	calls        map[Representation]int
}

func newScriptedRenderer() *scriptedRenderer {
	return &scriptedRenderer{calls: make(map[Representation]int)}
}

func (r *scriptedRenderer) Render(_ context.Context, rep Representation, _ RenderSpec) (*Artifact, error) {
	r.mu.Lock()
	r.calls[rep]++
	r.mu.Unlock()

	if (rep == RepresentationImage && r.failImage) || (rep == RepresentationDocument && r.failDocument) {
		return nil, errors.New("compositor crashed")
	}
	ext := ".svg"
	ct := "image/svg+xml"
	if rep == RepresentationDocument {
		ext = ".pdf"
		ct = "application/pdf"
	}
	return &Artifact{Data: []byte("rendered-" + string(rep)), ContentType: ct, Ext: ext}, nil
}

func (r *scriptedRenderer) callCount(rep Representation) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[rep]
}

func newTestGenerator(t *testing.T, renderer Renderer, cfg Config) (*Generator, *stubReserver, *stubAssets) {
	t.Helper()

	reserver := &stubReserver{
		sess: models.Session{
			PhotoRef:    "tmp/tok/photo-1.jpg",
			AudioRef:    "tmp/tok/audio-1.mp3",
			WaveformRef: "tmp/tok/waveform.json",
			Version:     7,
			Customization: models.Customization{
				PDFSize:    models.SizeA4Portrait,
				TemplateID: models.TemplateA4Portrait,
			},
		},
	}
	store := newStubAssets()
	ctx := context.Background()
	if err := store.Put(ctx, "tmp/tok/photo-1.jpg", minimalJPEG); err != nil {
		t.Fatalf("seed photo: %v", err)
	}
	if err := store.Put(ctx, "tmp/tok/waveform.json", []byte(`{"version":1,"peaks":[0.5]}`)); err != nil {
		t.Fatalf("seed waveform: %v", err)
	}

	return NewGenerator(reserver, store, renderer, cfg), reserver, store
}

func TestGenerateCommitsArtifact(t *testing.T) {
	renderer := newScriptedRenderer()
	gen, reserver, store := newTestGenerator(t, renderer, Config{})

	res, err := gen.Generate(context.Background(), "tok", RepresentationImage)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if res.Representation != RepresentationImage {
		t.Errorf("Representation = %q, want image", res.Representation)
	}
	if res.ContentType != "image/svg+xml" {
		t.Errorf("ContentType = %q", res.ContentType)
	}
	if !strings.HasPrefix(res.Ref, "tmp/tok/preview-1-") || !strings.HasSuffix(res.Ref, ".svg") {
		t.Errorf("Unexpected artifact key %q", res.Ref)
	}
	if _, err := store.Get(context.Background(), res.Ref); err != nil {
		t.Errorf("Artifact not stored: %v", err)
	}

	if len(reserver.commits) != 1 {
		t.Fatalf("Expected 1 commit, got %d", len(reserver.commits))
	}
	c := reserver.commits[0]
	if c.Ref != res.Ref || c.Generation != 1 || c.RenderedVersion != 7 {
		t.Errorf("Commit = %+v", c)
	}
}

func TestGenerateFallsBackToAlternate(t *testing.T) {
	renderer := newScriptedRenderer()
	renderer.failDocument = true
	gen, _, _ := newTestGenerator(t, renderer, Config{})

	res, err := gen.Generate(context.Background(), "tok", RepresentationDocument)
	if err != nil {
		t.Fatalf("Generate should fall back, got %v", err)
	}
	if res.Representation != RepresentationImage {
		t.Errorf("Fallback representation = %q, want image", res.Representation)
	}
	if !strings.HasSuffix(res.Ref, ".svg") {
		t.Errorf("Fallback artifact key %q should carry the image extension", res.Ref)
	}
}

func TestGenerateBothRepresentationsFail(t *testing.T) {
	renderer := newScriptedRenderer()
	renderer.failImage = true
	renderer.failDocument = true
	gen, reserver, _ := newTestGenerator(t, renderer, Config{})

	_, err := gen.Generate(context.Background(), "tok", RepresentationImage)
	if !IsRenderFailure(err) {
		t.Fatalf("Expected render failure, got %v", err)
	}
	var rf *RenderFailureError
	errors.As(err, &rf)
	// The surfaced error is the fallback's, not the original request's.
	if rf.Representation != RepresentationDocument {
		t.Errorf("Failed representation = %q, want document", rf.Representation)
	}
	if len(reserver.commits) != 0 {
		t.Error("Nothing should be committed after a failed render")
	}
}

func TestGenerateReserveErrorPassesThrough(t *testing.T) {
	sentinel := errors.New("no such session")
	renderer := newScriptedRenderer()
	gen, reserver, _ := newTestGenerator(t, renderer, Config{})
	reserver.reserveErr = sentinel

	_, err := gen.Generate(context.Background(), "tok", RepresentationImage)
	if !errors.Is(err, sentinel) {
		t.Errorf("Expected coordinator error unchanged, got %v", err)
	}
	if renderer.callCount(RepresentationImage) != 0 {
		t.Error("Renderer must not run without a reservation")
	}
}

func TestGenerateBreakerShortCircuits(t *testing.T) {
	renderer := newScriptedRenderer()
	renderer.failImage = true
	gen, _, _ := newTestGenerator(t, renderer, Config{BreakerThreshold: 2, BreakerCooldown: time.Minute})

	// Two failures trip the image circuit; both requests still succeed via
	// the document fallback.
	for i := 0; i < 2; i++ {
		res, err := gen.Generate(context.Background(), "tok", RepresentationImage)
		if err != nil {
			t.Fatalf("Generate %d failed: %v", i, err)
		}
		if res.Representation != RepresentationDocument {
			t.Fatalf("Generate %d representation = %q", i, res.Representation)
		}
	}
	if got := renderer.callCount(RepresentationImage); got != 2 {
		t.Fatalf("Image renderer calls = %d, want 2", got)
	}

	// Circuit open: the renderer is not invoked again for image.
	res, err := gen.Generate(context.Background(), "tok", RepresentationImage)
	if err != nil {
		t.Fatalf("Generate with open circuit failed: %v", err)
	}
	if res.Representation != RepresentationDocument {
		t.Errorf("Representation = %q, want document", res.Representation)
	}
	if got := renderer.callCount(RepresentationImage); got != 2 {
		t.Errorf("Open circuit should reject without rendering, calls = %d", got)
	}
}

func TestCleanRenderer(t *testing.T) {
	renderer := NewPosterRenderer()
	store := newStubAssets()
	ctx := context.Background()

	order := &models.Order{
		ID:                   "order-9",
		PermanentPhotoRef:    "perm/order-9/photo.jpg",
		PermanentAudioRef:    "perm/order-9/audio.mp3",
		PermanentWaveformRef: "perm/order-9/waveform.json",
	}
	if err := store.Put(ctx, order.PermanentPhotoRef, minimalJPEG); err != nil {
		t.Fatalf("seed photo: %v", err)
	}
	if err := store.Put(ctx, order.PermanentWaveformRef, []byte(`{"version":1,"peaks":[0.3,0.9]}`)); err != nil {
		t.Fatalf("seed waveform: %v", err)
	}

	clean := NewCleanRenderer(store, renderer)
	custom := models.Customization{
		CustomText: "Forever",
		PDFSize:    models.SizeA4Portrait,
		TemplateID: models.TemplateA4Portrait,
	}
	if err := clean.RenderClean(ctx, order, custom); err != nil {
		t.Fatalf("RenderClean failed: %v", err)
	}

	data, err := store.Get(ctx, FinalKey("order-9"))
	if err != nil {
		t.Fatalf("Final document not stored: %v", err)
	}
	doc := string(data)
	if !strings.HasPrefix(doc, "%PDF") {
		t.Error("Final artifact is not a PDF")
	}
	if strings.Contains(doc, watermarkText) {
		t.Error("Final document must not be watermarked")
	}
}

func TestCleanRendererMissingAssets(t *testing.T) {
	clean := NewCleanRenderer(newStubAssets(), NewPosterRenderer())
	order := &models.Order{
		ID:                   "order-x",
		PermanentPhotoRef:    "perm/order-x/photo.jpg",
		PermanentWaveformRef: "perm/order-x/waveform.json",
	}

	if err := clean.RenderClean(context.Background(), order, models.Customization{}); err == nil {
		t.Error("Missing permanent assets should fail the clean render")
	}
}
