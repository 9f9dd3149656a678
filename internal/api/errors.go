// Waveframe - Audio Poster Customization and Preview Service
// Copyright 2026 Waveframe Studio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waveframe-studio/waveframe

package api

import (
	"errors"
	"net/http"

	"github.com/waveframe-studio/waveframe/internal/logging"
	"github.com/waveframe-studio/waveframe/internal/metrics"
	"github.com/waveframe-studio/waveframe/internal/preview"
	"github.com/waveframe-studio/waveframe/internal/session"
)

// writeSessionError maps the session error taxonomy onto HTTP responses.
// Every handler that touches the coordinator funnels errors through here so
// the mapping stays in one place.
func writeSessionError(rw *ResponseWriter, err error) {
	var invalid *session.InvalidError
	switch {
	case errors.Is(err, session.ErrNotFound):
		rw.NotFound("Session not found or expired")

	case errors.Is(err, session.ErrAlreadyFinalized):
		rw.Conflict(ErrCodeAlreadyFinalized, "Session is finalized and no longer editable")

	case errors.Is(err, session.ErrNotReady):
		metrics.RecordEditRejected("not_ready")
		rw.Conflict(ErrCodeNotReady, "Audio is still being processed; try again shortly")

	case errors.As(err, &invalid):
		metrics.RecordEditRejected("invalid")
		rw.ErrorWithDetails(http.StatusBadRequest, ErrCodeValidationFailed, "Invalid customization value",
			map[string]string{"field": invalid.Field, "reason": invalid.Reason})

	default:
		if kind, ok := session.MissingAsset(err); ok {
			rw.ErrorWithDetails(http.StatusConflict, ErrCodeMissingAsset, err.Error(),
				map[string]string{"kind": string(kind)})
			return
		}
		var rf *preview.RenderFailureError
		if errors.As(err, &rf) {
			logging.Error().Err(err).Str("representation", string(rf.Representation)).
				Msg("Preview render failed after fallback")
			rw.Error(http.StatusBadGateway, ErrCodeRenderFailed, "Preview rendering is temporarily unavailable")
			return
		}
		logging.Error().Err(err).Msg("Unhandled session error")
		rw.InternalError("An internal error occurred")
	}
}
