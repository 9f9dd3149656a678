// Waveframe - Audio Poster Customization and Preview Service
// Copyright 2026 Waveframe Studio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waveframe-studio/waveframe

package session

import (
	"context"
	"fmt"
	"path"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/waveframe-studio/waveframe/internal/assets"
	"github.com/waveframe-studio/waveframe/internal/logging"
	"github.com/waveframe-studio/waveframe/internal/models"
)

// Config holds coordinator policy.
type Config struct {
	// TTL is the session lifetime from creation.
	TTL time.Duration

	// MaxTextCodepoints bounds custom_text length in Unicode code points.
	MaxTextCodepoints int
}

// JobPublisher dispatches waveform derivation jobs to the processing worker.
type JobPublisher interface {
	PublishWaveformRequested(ctx context.Context, token, audioRef string) error
}

// StatusNotifier pushes readiness snapshots to connected clients after each
// accepted mutation. Polling remains the fallback transport.
type StatusNotifier interface {
	NotifyStatus(token string, status StatusSnapshot)
}

// CleanRenderer produces the final, non-watermarked document from an
// order's permanent assets.
type CleanRenderer interface {
	RenderClean(ctx context.Context, order *models.Order, custom models.Customization) error
}

// StatusSnapshot is a consistent view of a session's readiness, returned by
// Status and pushed through the notifier.
type StatusSnapshot struct {
	Readiness    models.Readiness `json:"readiness"`
	PreviewStale bool             `json:"preview_stale"`
	Finalized    bool             `json:"finalized"`
}

// Coordinator is the customization state machine. It owns all session
// mutation: uploads, edits, readiness flips, preview bookkeeping, and the
// one-time finalization handoff. Mutations for one token are serialized by
// a keyed mutex; reads observe Badger snapshots without it.
type Coordinator struct {
	store  *Store
	assets assets.Store
	locks  *KeyedMutex
	cfg    Config

	jobs   JobPublisher   // may be nil: uploads still succeed, worker must poll
	notify StatusNotifier // may be nil
	clean  CleanRenderer  // may be nil: finalize skips the clean render
}

// NewCoordinator creates a coordinator over the given stores.
func NewCoordinator(store *Store, assetStore assets.Store, cfg Config) *Coordinator {
	if cfg.MaxTextCodepoints <= 0 {
		cfg.MaxTextCodepoints = 200
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	return &Coordinator{
		store:  store,
		assets: assetStore,
		locks:  NewKeyedMutex(),
		cfg:    cfg,
	}
}

// SetJobPublisher wires the waveform job publisher.
func (c *Coordinator) SetJobPublisher(p JobPublisher) { c.jobs = p }

// SetNotifier wires the status push notifier.
func (c *Coordinator) SetNotifier(n StatusNotifier) { c.notify = n }

// SetCleanRenderer wires the finalization renderer.
func (c *Coordinator) SetCleanRenderer(r CleanRenderer) { c.clean = r }

// Get returns the session for token, or ErrNotFound.
func (c *Coordinator) Get(ctx context.Context, token string) (*models.Session, error) {
	return c.store.Get(ctx, token)
}

// Status returns the session's readiness snapshot. Pure read, no lock.
func (c *Coordinator) Status(ctx context.Context, token string) (StatusSnapshot, error) {
	sess, err := c.store.Get(ctx, token)
	if err != nil {
		return StatusSnapshot{}, err
	}
	return snapshotOf(sess), nil
}

func snapshotOf(sess *models.Session) StatusSnapshot {
	return StatusSnapshot{
		Readiness:    sess.Readiness,
		PreviewStale: sess.PreviewStale,
		Finalized:    sess.Finalized,
	}
}

// UploadPhoto stores photo bytes and attaches them to the session. An empty
// token creates a new session; this is how sessions come into existence.
// Replacing a photo clears the previous reference (stored bytes are
// immutable per key) and invalidates the preview.
func (c *Coordinator) UploadPhoto(ctx context.Context, token string, data []byte, contentType string) (*models.Session, error) {
	key := func(tok string) string {
		return fmt.Sprintf("tmp/%s/photo-%s%s", tok, uuid.New().String(), extFor(contentType))
	}

	return c.attachUpload(ctx, token, key, func(sess *models.Session, ref string) {
		sess.PhotoRef = ref
		sess.Readiness.PhotoReady = true
	}, data)
}

// UploadAudio stores audio bytes, attaches them, and requests waveform
// derivation from the processing worker. New audio invalidates any
// previously derived waveform.
func (c *Coordinator) UploadAudio(ctx context.Context, token string, data []byte, contentType string) (*models.Session, error) {
	key := func(tok string) string {
		return fmt.Sprintf("tmp/%s/audio-%s%s", tok, uuid.New().String(), extFor(contentType))
	}

	sess, err := c.attachUpload(ctx, token, key, func(sess *models.Session, ref string) {
		sess.AudioRef = ref
		sess.Readiness.AudioReady = true
		// The old waveform no longer matches the audio.
		sess.WaveformRef = ""
		sess.Readiness.WaveformReady = false
	}, data)
	if err != nil {
		return nil, err
	}

	if c.jobs != nil {
		if err := c.jobs.PublishWaveformRequested(ctx, sess.Token, sess.AudioRef); err != nil {
			return nil, fmt.Errorf("request waveform derivation: %w", err)
		}
	}

	return sess, nil
}

// attachUpload is the shared upload path: write bytes under a fresh key,
// then mutate and persist the session under its lock.
func (c *Coordinator) attachUpload(ctx context.Context, token string, keyFn func(string) string, apply func(*models.Session, string), data []byte) (*models.Session, error) {
	created := false
	if token == "" {
		token = uuid.New().String()
		created = true
	}

	ref := keyFn(token)
	if err := c.assets.Put(ctx, ref, data); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	unlock := c.locks.Lock(token)
	defer unlock()

	var sess *models.Session
	if created {
		now := time.Now()
		sess = &models.Session{
			Token:         token,
			Customization: models.DefaultCustomization(),
			PreviewStale:  true,
			CreatedAt:     now,
			UpdatedAt:     now,
			ExpiresAt:     now.Add(c.cfg.TTL),
		}
	} else {
		var err error
		sess, err = c.store.Get(ctx, token)
		if err != nil {
			return nil, err
		}
		if sess.Finalized {
			return nil, ErrAlreadyFinalized
		}
	}

	apply(sess, ref)
	sess.Version++
	sess.PreviewStale = true
	sess.UpdatedAt = time.Now()

	if err := c.store.Put(ctx, sess); err != nil {
		return nil, err
	}

	c.notifyStatus(sess)
	return sess, nil
}

// ApplyEdit merges a partial customization update into the session.
//
// Validation order: session exists and is unexpired; waveform readiness
// gate for any field other than photo_shape; field validation. Accepted
// fields bump the session version and mark the preview stale. Edits for
// one token are applied strictly in receipt order under the keyed mutex.
func (c *Coordinator) ApplyEdit(ctx context.Context, token string, edit *EditRequest) (*models.Session, error) {
	if edit == nil || edit.Empty() {
		return nil, &InvalidError{Field: "request", Reason: "no customization fields present"}
	}

	unlock := c.locks.Lock(token)
	defer unlock()

	sess, err := c.store.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if sess.Finalized {
		return nil, ErrAlreadyFinalized
	}

	if edit.RequiresWaveform() && !sess.Readiness.WaveformReady {
		return nil, ErrNotReady
	}

	if err := c.validateEdit(edit); err != nil {
		return nil, err
	}

	c.mergeEdit(sess, edit)
	sess.Version++
	sess.PreviewStale = true
	sess.UpdatedAt = time.Now()

	if err := c.store.Put(ctx, sess); err != nil {
		return nil, err
	}

	c.notifyStatus(sess)
	return sess, nil
}

// CheckEdit validates an edit against the session's current state without
// applying it. The HTTP layer runs this before buffering an edit so the
// client gets gate and validation errors synchronously even though the
// actual mutation is coalesced. The buffered flush re-checks under the
// session lock; a state change between check and flush surfaces there.
func (c *Coordinator) CheckEdit(ctx context.Context, token string, edit *EditRequest) error {
	if edit == nil || edit.Empty() {
		return &InvalidError{Field: "request", Reason: "no customization fields present"}
	}

	sess, err := c.store.Get(ctx, token)
	if err != nil {
		return err
	}
	if sess.Finalized {
		return ErrAlreadyFinalized
	}
	if edit.RequiresWaveform() && !sess.Readiness.WaveformReady {
		return ErrNotReady
	}
	return c.validateEdit(edit)
}

// validateEdit checks field constraints. Readiness gating happens before
// this so a too-long text on an unready session still reports NotReady,
// matching the client's "still processing" messaging.
func (c *Coordinator) validateEdit(edit *EditRequest) error {
	if edit.CustomText != nil && utf8.RuneCountInString(*edit.CustomText) > c.cfg.MaxTextCodepoints {
		return &InvalidError{
			Field:  "custom_text",
			Reason: fmt.Sprintf("must be at most %d characters", c.cfg.MaxTextCodepoints),
		}
	}
	if edit.PhotoShape != nil && !models.PhotoShape(*edit.PhotoShape).Valid() {
		return &InvalidError{Field: "photo_shape", Reason: "unknown shape"}
	}
	if edit.PDFSize != nil && !models.PDFSize(*edit.PDFSize).Valid() {
		return &InvalidError{Field: "pdf_size", Reason: "unknown paper size"}
	}
	return nil
}

// mergeEdit applies accepted fields. A pdf_size change recomputes the
// template server-side; clients never supply template_id.
func (c *Coordinator) mergeEdit(sess *models.Session, edit *EditRequest) {
	if edit.CustomText != nil {
		sess.Customization.CustomText = *edit.CustomText
	}
	if edit.FontID != nil {
		sess.Customization.FontID = *edit.FontID
	}
	if edit.BackgroundID != nil {
		sess.Customization.BackgroundID = *edit.BackgroundID
	}
	if edit.PhotoShape != nil {
		sess.Customization.PhotoShape = models.PhotoShape(*edit.PhotoShape)
	}
	if edit.PDFSize != nil {
		size := models.PDFSize(*edit.PDFSize)
		sess.Customization.PDFSize = size
		sess.Customization.TemplateID = models.TemplateForSize(size)
	}
}

// MarkWaveformReady records the worker-derived waveform artifact and flips
// the readiness flag. Idempotent: re-delivery of the same event is a no-op.
// Events for finalized sessions are ignored; the order already owns its
// waveform copy.
func (c *Coordinator) MarkWaveformReady(ctx context.Context, token, waveformRef string) error {
	unlock := c.locks.Lock(token)
	defer unlock()

	sess, err := c.store.Get(ctx, token)
	if err != nil {
		return err
	}
	if sess.Finalized {
		logging.Ctx(ctx).Warn().Str("session", token).Msg("Waveform event for finalized session ignored")
		return nil
	}
	if sess.Readiness.WaveformReady && sess.WaveformRef == waveformRef {
		return nil
	}

	sess.WaveformRef = waveformRef
	sess.Readiness.WaveformReady = true
	sess.Version++
	sess.PreviewStale = true
	sess.UpdatedAt = time.Now()

	if err := c.store.Put(ctx, sess); err != nil {
		return err
	}

	c.notifyStatus(sess)
	return nil
}

// ReservePreview validates preview preconditions and reserves a generation
// number for a render. The returned session copy is the immutable snapshot
// the render must use; the generation orders concurrent renders.
func (c *Coordinator) ReservePreview(ctx context.Context, token string) (snapshot *models.Session, generation uint64, err error) {
	unlock := c.locks.Lock(token)
	defer unlock()

	sess, err := c.store.Get(ctx, token)
	if err != nil {
		return nil, 0, err
	}

	// Audio readiness alone is insufficient: the derived waveform is what
	// gets rendered. Report the most actionable missing asset.
	switch {
	case !sess.Readiness.PhotoReady:
		return nil, 0, &MissingAssetError{Kind: AssetPhoto}
	case !sess.Readiness.AudioReady:
		return nil, 0, &MissingAssetError{Kind: AssetAudio}
	case !sess.Readiness.WaveformReady:
		return nil, 0, &MissingAssetError{Kind: AssetWaveform}
	}

	sess.PreviewSeq++
	if err := c.store.Put(ctx, sess); err != nil {
		return nil, 0, err
	}

	copied := *sess
	return &copied, sess.PreviewSeq, nil
}

// CommitPreview records a successfully rendered preview artifact. Older
// generations that lose a race against a newer commit are dropped; the
// preview stays stale if the session changed while the render ran.
func (c *Coordinator) CommitPreview(ctx context.Context, token, ref string, generation, renderedVersion uint64) error {
	unlock := c.locks.Lock(token)
	defer unlock()

	sess, err := c.store.Get(ctx, token)
	if err != nil {
		return err
	}
	if generation <= sess.PreviewGeneration {
		logging.Ctx(ctx).Debug().
			Str("session", token).
			Uint64("generation", generation).
			Uint64("committed", sess.PreviewGeneration).
			Msg("Preview commit superseded by newer generation")
		return nil
	}

	sess.PreviewRef = ref
	sess.PreviewGeneration = generation
	sess.Readiness.PreviewReady = true
	sess.PreviewStale = sess.Version != renderedVersion
	sess.UpdatedAt = time.Now()

	if err := c.store.Put(ctx, sess); err != nil {
		return err
	}

	c.notifyStatus(sess)
	return nil
}

// Finalize converts the session into an order exactly once: it copies the
// temporary refs to permanent keys, persists the order, closes the session
// to edits, and requests the clean render. The session lock is held for the
// whole copy so no concurrent edit can swap an asset mid-copy.
func (c *Coordinator) Finalize(ctx context.Context, token, orderID string) (*models.Order, error) {
	if orderID == "" {
		return nil, &InvalidError{Field: "order_id", Reason: "required"}
	}

	unlock := c.locks.Lock(token)
	defer unlock()

	sess, err := c.store.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if sess.Finalized {
		return nil, ErrAlreadyFinalized
	}

	switch {
	case !sess.Readiness.PhotoReady:
		return nil, &MissingAssetError{Kind: AssetPhoto}
	case !sess.Readiness.AudioReady:
		return nil, &MissingAssetError{Kind: AssetAudio}
	case !sess.Readiness.WaveformReady:
		return nil, &MissingAssetError{Kind: AssetWaveform}
	}

	order := &models.Order{
		ID:                   orderID,
		SessionToken:         token,
		PermanentPhotoRef:    permKey(orderID, "photo", sess.PhotoRef),
		PermanentAudioRef:    permKey(orderID, "audio", sess.AudioRef),
		PermanentWaveformRef: permKey(orderID, "waveform", sess.WaveformRef),
		FinalizedAt:          time.Now(),
	}

	for _, cp := range []struct{ src, dst string }{
		{sess.PhotoRef, order.PermanentPhotoRef},
		{sess.AudioRef, order.PermanentAudioRef},
		{sess.WaveformRef, order.PermanentWaveformRef},
	} {
		if err := assets.Copy(ctx, c.assets, cp.src, cp.dst); err != nil {
			return nil, fmt.Errorf("copy %s to permanent storage: %w", cp.src, err)
		}
	}

	if err := c.store.PutOrder(ctx, order); err != nil {
		return nil, err
	}

	sess.Finalized = true
	sess.OrderID = orderID
	sess.UpdatedAt = time.Now()
	if err := c.store.Put(ctx, sess); err != nil {
		return nil, err
	}

	c.notifyStatus(sess)

	// The order is durable at this point; a failed clean render is retried
	// operationally, not by undoing finalization.
	if c.clean != nil {
		if err := c.clean.RenderClean(ctx, order, sess.Customization); err != nil {
			logging.Ctx(ctx).Error().Err(err).
				Str("order", orderID).
				Msg("Clean render failed after finalization")
		}
	}

	return order, nil
}

func (c *Coordinator) notifyStatus(sess *models.Session) {
	if c.notify != nil {
		c.notify.NotifyStatus(sess.Token, snapshotOf(sess))
	}
}

// permKey builds a permanent asset key, preserving the source extension.
func permKey(orderID, kind, srcRef string) string {
	return fmt.Sprintf("perm/%s/%s%s", orderID, kind, path.Ext(srcRef))
}

// extFor maps an upload content type to a file extension.
func extFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return ".m4a"
	case "audio/ogg":
		return ".ogg"
	default:
		return ".bin"
	}
}
