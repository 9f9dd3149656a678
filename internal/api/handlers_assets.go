// Waveframe - Audio Poster Customization and Preview Service
// Copyright 2026 Waveframe Studio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waveframe-studio/waveframe

package api

import (
	"errors"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/waveframe-studio/waveframe/internal/assets"
	"github.com/waveframe-studio/waveframe/internal/logging"
)

// assetContentTypes maps stored asset extensions to response types.
// Unknown extensions are served as opaque bytes.
var assetContentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
	".pdf":  "application/pdf",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".m4a":  "audio/mp4",
	".json": "application/json",
}

// Asset handles GET /api/v1/assets/{key...}?token=<jwt>. The token's
// subject must match the requested key exactly; a URL issued for one
// asset cannot be replayed against another. URLs are verified exactly as
// issued, with no other query parameters consulted.
func (h *Handler) Asset(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	key, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil || key == "" {
		rw.BadRequest("Invalid asset key")
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		rw.Unauthorized("Asset access requires a signed token")
		return
	}

	if err := h.signer.Verify(token, key); err != nil {
		if errors.Is(err, assets.ErrTokenExpired) {
			rw.Unauthorized("Asset URL has expired")
		} else {
			rw.Unauthorized("Asset URL token is invalid")
		}
		return
	}

	data, err := h.store.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, assets.ErrNotFound) {
			rw.NotFound("Asset not found")
			return
		}
		logging.Ctx(r.Context()).Error().Err(err).Str("key", key).Msg("Asset read failed")
		rw.InternalError("Failed to read asset")
		return
	}

	contentType := assetContentTypes[strings.ToLower(path.Ext(key))]
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if _, err := w.Write(data); err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Msg("Asset write aborted by client")
	}
}
