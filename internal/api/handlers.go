// Waveframe - Audio Poster Customization and Preview Service
// Copyright 2026 Waveframe Studio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waveframe-studio/waveframe

package api

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/waveframe-studio/waveframe/internal/assets"
	"github.com/waveframe-studio/waveframe/internal/config"
	"github.com/waveframe-studio/waveframe/internal/debounce"
	"github.com/waveframe-studio/waveframe/internal/logging"
	"github.com/waveframe-studio/waveframe/internal/metrics"
	"github.com/waveframe-studio/waveframe/internal/models"
	"github.com/waveframe-studio/waveframe/internal/preview"
	"github.com/waveframe-studio/waveframe/internal/session"
	"github.com/waveframe-studio/waveframe/internal/websocket"
)

// ReadyCheck is a named dependency probe for the readiness endpoint.
type ReadyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handler holds the dependencies for all HTTP handlers.
type Handler struct {
	sessions *session.Coordinator
	edits    *debounce.Debouncer
	previews *preview.Generator
	store    assets.Store
	signer   *assets.Signer
	hub      *websocket.Hub
	cfg      *config.Config

	startTime time.Time
	checks    []ReadyCheck
}

// NewHandler creates the handler set. hub may be nil when websocket push
// is not wired (tests); the ws endpoint then reports unavailable.
func NewHandler(
	sessions *session.Coordinator,
	edits *debounce.Debouncer,
	previews *preview.Generator,
	store assets.Store,
	signer *assets.Signer,
	hub *websocket.Hub,
	cfg *config.Config,
	checks ...ReadyCheck,
) *Handler {
	return &Handler{
		sessions:  sessions,
		edits:     edits,
		previews:  previews,
		store:     store,
		signer:    signer,
		hub:       hub,
		cfg:       cfg,
		startTime: time.Now(),
		checks:    checks,
	}
}

// sessionPayload is the client view of a session.
type sessionPayload struct {
	Token         string               `json:"token"`
	PhotoRef      string               `json:"photo_ref,omitempty"`
	AudioRef      string               `json:"audio_ref,omitempty"`
	WaveformRef   string               `json:"waveform_ref,omitempty"`
	Readiness     models.Readiness     `json:"readiness"`
	Customization models.Customization `json:"customization"`
	Version       uint64               `json:"version"`
	PreviewStale  bool                 `json:"preview_stale"`
	Finalized     bool                 `json:"finalized"`
}

func toSessionPayload(sess *models.Session) sessionPayload {
	return sessionPayload{
		Token:         sess.Token,
		PhotoRef:      sess.PhotoRef,
		AudioRef:      sess.AudioRef,
		WaveformRef:   sess.WaveformRef,
		Readiness:     sess.Readiness,
		Customization: sess.Customization,
		Version:       sess.Version,
		PreviewStale:  sess.PreviewStale,
		Finalized:     sess.Finalized,
	}
}

// UploadPhoto handles POST /api/v1/session/upload/photo.
// An X-Session-Token header attaches the upload to an existing session;
// without one a new session is created.
func (h *Handler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	h.handleUpload(w, r, "photo", h.sessions.UploadPhoto)
}

// UploadAudio handles POST /api/v1/session/upload/audio. A successful
// upload publishes a waveform job; waveform-gated edits stay blocked until
// the worker reports back.
func (h *Handler) UploadAudio(w http.ResponseWriter, r *http.Request) {
	h.handleUpload(w, r, "audio", h.sessions.UploadAudio)
}

type uploadFn func(ctx context.Context, token string, data []byte, contentType string) (*models.Session, error)

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request, kind string, upload uploadFn) {
	rw := NewResponseWriter(w, r)

	data, contentType, ok := h.readUpload(rw, r)
	if !ok {
		return
	}

	token := r.Header.Get("X-Session-Token")
	creating := token == ""

	sess, err := upload(r.Context(), token, data, contentType)
	if err != nil {
		writeSessionError(rw, err)
		return
	}

	if creating {
		metrics.SessionsCreated.Inc()
	}
	metrics.RecordUpload(kind, len(data))

	rw.Created(toSessionPayload(sess))
}

// readUpload extracts the upload payload from either a multipart form
// (field "file") or the raw request body, bounded by max_upload_bytes.
func (h *Handler) readUpload(rw *ResponseWriter, r *http.Request) ([]byte, string, bool) {
	r.Body = http.MaxBytesReader(rw.w, r.Body, h.cfg.Assets.MaxUploadBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var (
		data        []byte
		contentType string
		err         error
	)

	if strings.HasPrefix(mediaType, "multipart/") {
		file, header, ferr := r.FormFile("file")
		if ferr != nil {
			if isBodyTooLarge(ferr) {
				rw.PayloadTooLarge("Upload exceeds the size limit")
			} else {
				rw.BadRequest("Multipart upload requires a \"file\" field")
			}
			return nil, "", false
		}
		defer file.Close()

		data, err = io.ReadAll(file)
		contentType = header.Header.Get("Content-Type")
	} else {
		data, err = io.ReadAll(r.Body)
		contentType = mediaType
	}

	if err != nil {
		if isBodyTooLarge(err) {
			rw.PayloadTooLarge("Upload exceeds the size limit")
		} else {
			rw.BadRequest("Failed to read upload body")
		}
		return nil, "", false
	}
	if len(data) == 0 {
		rw.BadRequest("Upload body is empty")
		return nil, "", false
	}

	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, true
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

// Status handles GET /api/v1/session/{token}/status. Readiness flags plus
// preview staleness; the polling fallback for clients without websockets.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	token := chi.URLParam(r, "token")

	snapshot, err := h.sessions.Status(r.Context(), token)
	if err != nil {
		writeSessionError(rw, err)
		return
	}

	rw.Success(snapshot)
}

// Customize handles PATCH /api/v1/session/{token}/customize. The edit is
// validated synchronously, then buffered: bursts within the quiescence
// window reach the coordinator as a single coalesced update, so a 202 here
// means accepted, not yet applied. Shape-only edits dispatch immediately.
func (h *Handler) Customize(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	token := chi.URLParam(r, "token")

	edit, ok := decodeEditRequest(rw, r)
	if !ok {
		return
	}

	if err := h.sessions.CheckEdit(r.Context(), token, edit); err != nil {
		writeSessionError(rw, err)
		return
	}

	h.edits.Submit(token, edit)

	rw.Accepted(map[string]bool{"buffered": true})
}

// previewPayload is the response for a generated preview.
type previewPayload struct {
	Ref            string `json:"ref"`
	URL            string `json:"url"`
	Representation string `json:"representation"`
	Generation     uint64 `json:"generation"`
}

// Preview handles GET /api/v1/session/{token}/preview. Renders a
// watermarked artifact from temporary assets in the requested
// representation, falling back to the alternate on render failure.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	token := chi.URLParam(r, "token")

	rep, err := preview.ParseRepresentation(r.URL.Query().Get("representation"))
	if err != nil {
		rw.BadRequest("Unknown representation; use \"image\" or \"document\"")
		return
	}

	ctx := r.Context()
	if h.cfg.Preview.RenderTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.Preview.RenderTimeout)
		defer cancel()
	}

	result, err := h.previews.Generate(ctx, token, rep)
	if err != nil {
		writeSessionError(rw, err)
		return
	}

	url, err := h.store.SignedURL(result.Ref, h.cfg.Assets.SignedURLTTL)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to sign preview URL")
		rw.InternalError("Failed to issue preview URL")
		return
	}

	rw.Success(previewPayload{
		Ref:            result.Ref,
		URL:            url,
		Representation: string(result.Representation),
		Generation:     result.Generation,
	})
}

// orderPayload is the client view of a finalized order.
type orderPayload struct {
	OrderID              string    `json:"order_id"`
	SessionToken         string    `json:"session_token"`
	PermanentPhotoRef    string    `json:"permanent_photo_ref"`
	PermanentAudioRef    string    `json:"permanent_audio_ref"`
	PermanentWaveformRef string    `json:"permanent_waveform_ref"`
	FinalizedAt          time.Time `json:"finalized_at"`
}

// Finalize handles POST /api/v1/session/{token}/finalize. Copies temporary
// assets to permanent order-owned keys, closes the session to edits, and
// kicks off the clean render. Exactly-once: repeats get 409.
func (h *Handler) Finalize(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	token := chi.URLParam(r, "token")

	req, ok := decodeFinalizeRequest(rw, r)
	if !ok {
		return
	}

	// Pending buffered edits must land before the permanent copies are cut.
	h.edits.Flush(token)

	order, err := h.sessions.Finalize(r.Context(), token, req.OrderID)
	if err != nil {
		metrics.RecordFinalization("failure")
		writeSessionError(rw, err)
		return
	}
	metrics.RecordFinalization("success")

	rw.Success(orderPayload{
		OrderID:              order.ID,
		SessionToken:         order.SessionToken,
		PermanentPhotoRef:    order.PermanentPhotoRef,
		PermanentAudioRef:    order.PermanentAudioRef,
		PermanentWaveformRef: order.PermanentWaveformRef,
		FinalizedAt:          order.FinalizedAt,
	})
}

// WebSocket handles GET /api/v1/session/{token}/ws. Upgrades the
// connection and pushes a status snapshot immediately, then on every
// session mutation.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	snapshot, err := h.sessions.Status(r.Context(), token)
	if err != nil {
		writeSessionError(NewResponseWriter(w, r), err)
		return
	}

	if h.hub == nil {
		NewResponseWriter(w, r).ServiceUnavailable("Status push is not available")
		return
	}

	if err := h.hub.Handle(w, r, token, snapshot); err != nil {
		// Handle already wrote the handshake error to the connection.
		logging.Ctx(r.Context()).Warn().Err(err).Msg("WebSocket upgrade failed")
	}
}
