// Waveframe - Audio Poster Customization and Preview Service
// Copyright 2026 Waveframe Studio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waveframe-studio/waveframe

package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/waveframe-studio/waveframe/internal/session"
	"github.com/waveframe-studio/waveframe/internal/validation"
)

// maxJSONBody bounds JSON request bodies. Customization payloads are a
// handful of short fields; anything near this limit is malformed or abuse.
const maxJSONBody = 64 << 10

// FinalizeRequest is the body of POST /session/{token}/finalize.
type FinalizeRequest struct {
	OrderID string `json:"order_id" validate:"required,min=1,max=64"`
}

// decodeEditRequest decodes a customization PATCH body. Unknown fields are
// rejected so a client typo cannot silently drop an edit, and template_id
// is rejected with the rest because it is server-derived.
func decodeEditRequest(rw *ResponseWriter, r *http.Request) (*session.EditRequest, bool) {
	var edit session.EditRequest
	if !decodeJSON(rw, r, &edit) {
		return nil, false
	}
	return &edit, true
}

// decodeFinalizeRequest decodes and validates a finalize POST body.
func decodeFinalizeRequest(rw *ResponseWriter, r *http.Request) (*FinalizeRequest, bool) {
	var req FinalizeRequest
	if !decodeJSON(rw, r, &req) {
		return nil, false
	}

	if verr := validation.ValidateStruct(&req); verr != nil {
		rw.ValidationError("Request validation failed", verr.Fields())
		return nil, false
	}
	return &req, true
}

func decodeJSON(rw *ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(rw.w, r.Body, maxJSONBody)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if isBodyTooLarge(err) {
			rw.PayloadTooLarge("Request body too large")
		} else {
			rw.BadRequest("Invalid JSON body: " + err.Error())
		}
		return false
	}
	return true
}
