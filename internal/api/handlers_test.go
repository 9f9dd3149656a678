// Waveframe - Audio Poster Customization and Preview Service
// Copyright 2026 Waveframe Studio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waveframe-studio/waveframe

package api

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/waveframe-studio/waveframe/internal/assets"
	"github.com/waveframe-studio/waveframe/internal/config"
	"github.com/waveframe-studio/waveframe/internal/debounce"
	"github.com/waveframe-studio/waveframe/internal/preview"
	"github.com/waveframe-studio/waveframe/internal/session"
)

// minimalJPEG is a structurally valid JPEG prefix: SOI then an SOF0 marker
// declaring a 32x16 image.
var minimalJPEG = []byte{
	0xFF, 0xD8,
	0xFF, 0xC0, 0x00, 0x11,
	0x08,
	0x00, 0x10,
	0x00, 0x20,
	0x03, 0x01, 0x22, 0x00, 0x02, 0x11, 0x01, 0x03, 0x11, 0x01,
	0xFF, 0xD9,
}

const testWaveform = `{"version":1,"peaks":[0.2,0.9,0.5]}`

type testEnv struct {
	srv    http.Handler
	coord  *session.Coordinator
	edits  *debounce.Debouncer
	assets *assets.FSStore
	signer *assets.Signer
	cfg    *config.Config
}

func newTestEnv(t *testing.T, checks ...ReadyCheck) *testEnv {
	t.Helper()

	opts := badger.DefaultOptions(t.TempDir())
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("Failed to open BadgerDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	signer := assets.NewSigner("test-secret-0123456789abcdef0123456789", "/api/v1/assets")
	store, err := assets.NewFSStore(t.TempDir(), signer)
	if err != nil {
		t.Fatalf("Failed to create asset store: %v", err)
	}

	coord := session.NewCoordinator(session.NewStore(db), store, session.Config{
		TTL:               time.Hour,
		MaxTextCodepoints: 200,
	})

	edits := debounce.New(func(ctx context.Context, token string, edit *session.EditRequest) error {
		_, err := coord.ApplyEdit(ctx, token, edit)
		return err
	}, debounce.Config{Window: 50 * time.Millisecond})
	t.Cleanup(edits.Close)

	gen := preview.NewGenerator(coord, store, preview.NewPosterRenderer(), preview.Config{})

	cfg := &config.Config{
		Server: config.ServerConfig{
			Host:              "127.0.0.1",
			Port:              0,
			Timeout:           10 * time.Second,
			RateLimitDisabled: true,
		},
		Assets: config.AssetsConfig{
			SignedURLTTL:   time.Minute,
			MaxUploadBytes: 1 << 20,
		},
		Preview: config.PreviewConfig{
			RenderTimeout: 5 * time.Second,
		},
	}

	handler := NewHandler(coord, edits, gen, store, signer, nil, cfg, checks...)

	return &testEnv{
		srv:    NewRouter(handler, cfg.Server).Setup(),
		coord:  coord,
		edits:  edits,
		assets: store,
		signer: signer,
		cfg:    cfg,
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

func (e *testEnv) do(t *testing.T, method, path string, body []byte, header map[string]string) (*httptest.ResponseRecorder, *envelope) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)

	var env envelope
	if ct := rec.Header().Get("Content-Type"); strings.HasPrefix(ct, "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("Failed to decode envelope: %v\nbody: %s", err, rec.Body.String())
		}
	}
	return rec, &env
}

func (e *testEnv) uploadPhoto(t *testing.T, token string) sessionPayload {
	t.Helper()
	header := map[string]string{"Content-Type": "image/jpeg"}
	if token != "" {
		header["X-Session-Token"] = token
	}
	rec, env := e.do(t, http.MethodPost, "/api/v1/session/upload/photo", minimalJPEG, header)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Photo upload status = %d, body %s", rec.Code, rec.Body.String())
	}
	var sess sessionPayload
	if err := json.Unmarshal(env.Data, &sess); err != nil {
		t.Fatalf("Failed to decode session payload: %v", err)
	}
	return sess
}

func (e *testEnv) uploadAudio(t *testing.T, token string) sessionPayload {
	t.Helper()
	header := map[string]string{"Content-Type": "audio/mpeg"}
	if token != "" {
		header["X-Session-Token"] = token
	}
	rec, env := e.do(t, http.MethodPost, "/api/v1/session/upload/audio", []byte("audio-bytes"), header)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Audio upload status = %d, body %s", rec.Code, rec.Body.String())
	}
	var sess sessionPayload
	if err := json.Unmarshal(env.Data, &sess); err != nil {
		t.Fatalf("Failed to decode session payload: %v", err)
	}
	return sess
}

// readySession uploads both assets and completes waveform processing.
func (e *testEnv) readySession(t *testing.T) string {
	t.Helper()

	sess := e.uploadPhoto(t, "")
	e.uploadAudio(t, sess.Token)

	ref := "tmp/" + sess.Token + "/waveform.json"
	if err := e.assets.Put(context.Background(), ref, []byte(testWaveform)); err != nil {
		t.Fatalf("Failed to store waveform: %v", err)
	}
	if err := e.coord.MarkWaveformReady(context.Background(), sess.Token, ref); err != nil {
		t.Fatalf("MarkWaveformReady failed: %v", err)
	}
	return sess.Token
}

func TestUploadPhotoCreatesSession(t *testing.T) {
	env := newTestEnv(t)

	sess := env.uploadPhoto(t, "")
	if sess.Token == "" {
		t.Fatal("Expected a session token")
	}
	if !sess.Readiness.PhotoReady {
		t.Error("Expected photo_ready after upload")
	}
	if !strings.HasPrefix(sess.PhotoRef, "tmp/"+sess.Token+"/photo-") {
		t.Errorf("Unexpected photo ref %q", sess.PhotoRef)
	}
}

func TestUploadAttachesToExistingSession(t *testing.T) {
	env := newTestEnv(t)

	first := env.uploadPhoto(t, "")
	second := env.uploadAudio(t, first.Token)

	if second.Token != first.Token {
		t.Errorf("Audio upload created new session %q, want %q", second.Token, first.Token)
	}
	if !second.Readiness.PhotoReady || !second.Readiness.AudioReady {
		t.Errorf("Expected both uploads ready, got %+v", second.Readiness)
	}
}

func TestUploadMultipart(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "photo.jpg")
	if err != nil {
		t.Fatalf("CreateFormFile failed: %v", err)
	}
	part.Write(minimalJPEG)
	mw.Close()

	rec, env2 := env.do(t, http.MethodPost, "/api/v1/session/upload/photo", buf.Bytes(),
		map[string]string{"Content-Type": mw.FormDataContentType()})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Multipart upload status = %d, body %s", rec.Code, rec.Body.String())
	}

	var sess sessionPayload
	if err := json.Unmarshal(env2.Data, &sess); err != nil {
		t.Fatalf("Failed to decode session payload: %v", err)
	}
	if !sess.Readiness.PhotoReady {
		t.Error("Expected photo_ready after multipart upload")
	}
}

func TestUploadEmptyBodyRejected(t *testing.T) {
	env := newTestEnv(t)

	rec, e := env.do(t, http.MethodPost, "/api/v1/session/upload/photo", nil,
		map[string]string{"Content-Type": "image/jpeg"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Empty upload status = %d, want 400", rec.Code)
	}
	if e.Error == nil || e.Error.Code != ErrCodeBadRequest {
		t.Errorf("Unexpected error payload: %+v", e.Error)
	}
}

func TestUploadTooLarge(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Assets.MaxUploadBytes = 16

	rec, e := env.do(t, http.MethodPost, "/api/v1/session/upload/photo",
		bytes.Repeat([]byte{0xAB}, 64), map[string]string{"Content-Type": "image/jpeg"})
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("Oversized upload status = %d, want 413", rec.Code)
	}
	if e.Error == nil || e.Error.Code != ErrCodePayloadTooLarge {
		t.Errorf("Unexpected error payload: %+v", e.Error)
	}
}

func TestStatusUnknownSession(t *testing.T) {
	env := newTestEnv(t)

	rec, e := env.do(t, http.MethodGet, "/api/v1/session/nope/status", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Status = %d, want 404", rec.Code)
	}
	if e.Error == nil || e.Error.Code != ErrCodeNotFound {
		t.Errorf("Unexpected error payload: %+v", e.Error)
	}
}

func TestStatusReportsReadiness(t *testing.T) {
	env := newTestEnv(t)
	token := env.readySession(t)

	rec, e := env.do(t, http.MethodGet, "/api/v1/session/"+token+"/status", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, body %s", rec.Code, rec.Body.String())
	}

	var snap session.StatusSnapshot
	if err := json.Unmarshal(e.Data, &snap); err != nil {
		t.Fatalf("Failed to decode snapshot: %v", err)
	}
	if !snap.Readiness.WaveformReady {
		t.Errorf("Expected waveform_ready, got %+v", snap.Readiness)
	}
}

func TestCustomizeRejectsUnknownFields(t *testing.T) {
	env := newTestEnv(t)
	token := env.readySession(t)

	rec, _ := env.do(t, http.MethodPatch, "/api/v1/session/"+token+"/customize",
		[]byte(`{"custom_text":"hi","template_id":"sneaky"}`),
		map[string]string{"Content-Type": "application/json"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Unknown field status = %d, want 400", rec.Code)
	}
}

func TestCustomizeGatedBeforeWaveform(t *testing.T) {
	env := newTestEnv(t)

	sess := env.uploadPhoto(t, "")
	env.uploadAudio(t, sess.Token)

	rec, e := env.do(t, http.MethodPatch, "/api/v1/session/"+sess.Token+"/customize",
		[]byte(`{"custom_text":"our song"}`),
		map[string]string{"Content-Type": "application/json"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("Gated edit status = %d, want 409", rec.Code)
	}
	if e.Error == nil || e.Error.Code != ErrCodeNotReady {
		t.Errorf("Unexpected error payload: %+v", e.Error)
	}
}

func TestCustomizeShapeOnlyBypassesGate(t *testing.T) {
	env := newTestEnv(t)

	sess := env.uploadPhoto(t, "")
	env.uploadAudio(t, sess.Token)

	rec, _ := env.do(t, http.MethodPatch, "/api/v1/session/"+sess.Token+"/customize",
		[]byte(`{"photo_shape":"circle"}`),
		map[string]string{"Content-Type": "application/json"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Shape edit status = %d, want 202", rec.Code)
	}

	// Close waits for the immediate shape dispatch to land.
	env.edits.Close()

	got, err := env.coord.Get(context.Background(), sess.Token)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got.Customization.PhotoShape) != "circle" {
		t.Errorf("PhotoShape = %q, want circle", got.Customization.PhotoShape)
	}
}

func TestCustomizeBuffersAndApplies(t *testing.T) {
	env := newTestEnv(t)
	token := env.readySession(t)

	rec, e := env.do(t, http.MethodPatch, "/api/v1/session/"+token+"/customize",
		[]byte(`{"custom_text":"first dance"}`),
		map[string]string{"Content-Type": "application/json"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Customize status = %d, body %s", rec.Code, rec.Body.String())
	}

	var body map[string]bool
	if err := json.Unmarshal(e.Data, &body); err != nil || !body["buffered"] {
		t.Fatalf("Expected buffered ack, got %s", e.Data)
	}

	env.edits.Flush(token)

	got, err := env.coord.Get(context.Background(), token)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Customization.CustomText != "first dance" {
		t.Errorf("CustomText = %q after flush", got.Customization.CustomText)
	}
	if !got.PreviewStale {
		t.Error("Expected preview_stale after edit")
	}
}

func TestCustomizeValidationFailure(t *testing.T) {
	env := newTestEnv(t)
	token := env.readySession(t)

	rec, e := env.do(t, http.MethodPatch, "/api/v1/session/"+token+"/customize",
		[]byte(`{"pdf_size":"letter-landscape-ish"}`),
		map[string]string{"Content-Type": "application/json"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Invalid size status = %d, want 400", rec.Code)
	}
	if e.Error == nil || e.Error.Code != ErrCodeValidationFailed {
		t.Errorf("Unexpected error payload: %+v", e.Error)
	}
}

func TestPreviewFlow(t *testing.T) {
	env := newTestEnv(t)
	token := env.readySession(t)

	rec, e := env.do(t, http.MethodGet, "/api/v1/session/"+token+"/preview?representation=image", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Preview status = %d, body %s", rec.Code, rec.Body.String())
	}

	var p previewPayload
	if err := json.Unmarshal(e.Data, &p); err != nil {
		t.Fatalf("Failed to decode preview payload: %v", err)
	}
	if p.Representation != "image" {
		t.Errorf("Representation = %q", p.Representation)
	}
	if p.Generation == 0 {
		t.Error("Expected a non-zero generation")
	}
	if !strings.Contains(p.URL, "token=") {
		t.Errorf("Preview URL %q is not signed", p.URL)
	}

	// The signed URL dereferences through the asset endpoint.
	assetRec, _ := env.do(t, http.MethodGet, p.URL, nil, nil)
	if assetRec.Code != http.StatusOK {
		t.Fatalf("Signed URL fetch status = %d", assetRec.Code)
	}
	if ct := assetRec.Header().Get("Content-Type"); ct != "image/svg+xml" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !bytes.Contains(assetRec.Body.Bytes(), []byte("PREVIEW")) {
		t.Error("Expected watermark in preview artifact")
	}
}

func TestPreviewMissingPhoto(t *testing.T) {
	env := newTestEnv(t)
	sess := env.uploadAudio(t, "")

	rec, e := env.do(t, http.MethodGet, "/api/v1/session/"+sess.Token+"/preview", nil, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("Preview status = %d, want 409", rec.Code)
	}
	if e.Error == nil || e.Error.Code != ErrCodeMissingAsset {
		t.Fatalf("Unexpected error payload: %+v", e.Error)
	}

	var details map[string]string
	raw, _ := json.Marshal(e.Error.Details)
	json.Unmarshal(raw, &details)
	if details["kind"] != "photo" {
		t.Errorf("Missing asset kind = %q, want photo", details["kind"])
	}
}

func TestPreviewBadRepresentation(t *testing.T) {
	env := newTestEnv(t)
	token := env.readySession(t)

	rec, _ := env.do(t, http.MethodGet, "/api/v1/session/"+token+"/preview?representation=hologram", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Bad representation status = %d, want 400", rec.Code)
	}
}

func TestFinalizeFlow(t *testing.T) {
	env := newTestEnv(t)
	token := env.readySession(t)

	rec, e := env.do(t, http.MethodPost, "/api/v1/session/"+token+"/finalize",
		[]byte(`{"order_id":"order-77"}`),
		map[string]string{"Content-Type": "application/json"})
	if rec.Code != http.StatusOK {
		t.Fatalf("Finalize status = %d, body %s", rec.Code, rec.Body.String())
	}

	var order orderPayload
	if err := json.Unmarshal(e.Data, &order); err != nil {
		t.Fatalf("Failed to decode order payload: %v", err)
	}
	if order.OrderID != "order-77" {
		t.Errorf("OrderID = %q", order.OrderID)
	}
	if !strings.HasPrefix(order.PermanentPhotoRef, "perm/order-77/") {
		t.Errorf("Photo ref %q is not permanent", order.PermanentPhotoRef)
	}

	// Repeat finalization conflicts.
	rec2, e2 := env.do(t, http.MethodPost, "/api/v1/session/"+token+"/finalize",
		[]byte(`{"order_id":"order-78"}`),
		map[string]string{"Content-Type": "application/json"})
	if rec2.Code != http.StatusConflict {
		t.Fatalf("Repeat finalize status = %d, want 409", rec2.Code)
	}
	if e2.Error == nil || e2.Error.Code != ErrCodeAlreadyFinalized {
		t.Errorf("Unexpected error payload: %+v", e2.Error)
	}
}

func TestFinalizeRequiresOrderID(t *testing.T) {
	env := newTestEnv(t)
	token := env.readySession(t)

	rec, e := env.do(t, http.MethodPost, "/api/v1/session/"+token+"/finalize",
		[]byte(`{}`), map[string]string{"Content-Type": "application/json"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Finalize without order_id status = %d, want 400", rec.Code)
	}
	if e.Error == nil || e.Error.Code != ErrCodeValidationFailed {
		t.Errorf("Unexpected error payload: %+v", e.Error)
	}
}

func TestFinalizeFlushesBufferedEdits(t *testing.T) {
	env := newTestEnv(t)
	token := env.readySession(t)

	rec, _ := env.do(t, http.MethodPatch, "/api/v1/session/"+token+"/customize",
		[]byte(`{"custom_text":"last minute"}`),
		map[string]string{"Content-Type": "application/json"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Customize status = %d", rec.Code)
	}

	rec2, _ := env.do(t, http.MethodPost, "/api/v1/session/"+token+"/finalize",
		[]byte(`{"order_id":"order-9"}`),
		map[string]string{"Content-Type": "application/json"})
	if rec2.Code != http.StatusOK {
		t.Fatalf("Finalize status = %d, body %s", rec2.Code, rec2.Body.String())
	}

	got, err := env.coord.Get(context.Background(), token)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Customization.CustomText != "last minute" {
		t.Errorf("Buffered edit lost across finalize: %q", got.Customization.CustomText)
	}
}

func TestAssetRequiresToken(t *testing.T) {
	env := newTestEnv(t)

	rec, e := env.do(t, http.MethodGet, "/api/v1/assets/tmp/x/photo.jpg", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("Asset without token status = %d, want 401", rec.Code)
	}
	if e.Error == nil || e.Error.Code != ErrCodeUnauthorized {
		t.Errorf("Unexpected error payload: %+v", e.Error)
	}
}

func TestAssetRejectsTamperedKey(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.assets.Put(ctx, "tmp/a/secret.jpg", minimalJPEG); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := env.assets.Put(ctx, "tmp/a/public.jpg", minimalJPEG); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	url, err := env.signer.SignedURL("tmp/a/public.jpg", time.Minute)
	if err != nil {
		t.Fatalf("SignedURL failed: %v", err)
	}
	token := url[strings.Index(url, "token=")+len("token="):]

	rec, _ := env.do(t, http.MethodGet, "/api/v1/assets/tmp/a/secret.jpg?token="+token, nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("Tampered key status = %d, want 401", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodGet, "/api/v1/health/live", nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("Liveness status = %d", rec.Code)
	}

	rec2, _ := env.do(t, http.MethodGet, "/api/v1/health/ready", nil, nil)
	if rec2.Code != http.StatusOK {
		t.Errorf("Readiness status = %d", rec2.Code)
	}
}

func TestHealthReadyFailsOnBrokenDependency(t *testing.T) {
	env := newTestEnv(t, ReadyCheck{
		Name:  "bus",
		Check: func(context.Context) error { return context.DeadlineExceeded },
	})

	rec, e := env.do(t, http.MethodGet, "/api/v1/health/ready", nil, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("Readiness status = %d, want 503", rec.Code)
	}
	if e.Error == nil || e.Error.Code != ErrCodeServiceUnavailable {
		t.Errorf("Unexpected error payload: %+v", e.Error)
	}
}
