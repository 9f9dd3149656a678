// Waveframe - Audio Poster Customization and Preview Service
// Copyright 2026 Waveframe Studio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waveframe-studio/waveframe

package session

import (
	"errors"
	"fmt"
)

// Sentinel errors for coordinator operations. None of these are retried by
// the coordinator itself; they are deterministic given current state and the
// client owns retry policy.
var (
	// ErrNotFound indicates an unknown or expired session token.
	ErrNotFound = errors.New("session not found or expired")

	// ErrNotReady indicates an edit was rejected because audio processing
	// is incomplete. Distinct from validation errors so clients can show a
	// "still processing" message instead of a generic failure.
	ErrNotReady = errors.New("audio processing incomplete")

	// ErrAlreadyFinalized indicates an edit or finalize attempt on a
	// session that has been converted to an order. Finalization closes the
	// session to further mutation.
	ErrAlreadyFinalized = errors.New("session already finalized")
)

// InvalidError indicates a customization field failed validation.
type InvalidError struct {
	Field  string
	Reason string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AssetKind names a required asset for MissingAssetError.
type AssetKind string

// Asset kinds. Each maps to a distinct remediation message: photo means
// "upload the photo again", audio means "audio upload incomplete", waveform
// means "audio still processing".
const (
	AssetPhoto    AssetKind = "photo"
	AssetAudio    AssetKind = "audio"
	AssetWaveform AssetKind = "waveform"
)

// MissingAssetError indicates an operation needs an asset the session does
// not have yet.
type MissingAssetError struct {
	Kind AssetKind
}

func (e *MissingAssetError) Error() string {
	switch e.Kind {
	case AssetPhoto:
		return "photo missing: upload a photo"
	case AssetAudio:
		return "audio missing: audio upload incomplete"
	case AssetWaveform:
		return "waveform missing: audio still processing"
	default:
		return fmt.Sprintf("asset missing: %s", e.Kind)
	}
}

// IsInvalid reports whether err is a field validation rejection.
func IsInvalid(err error) bool {
	var ie *InvalidError
	return errors.As(err, &ie)
}

// MissingAsset extracts the missing asset kind from err, if any.
func MissingAsset(err error) (AssetKind, bool) {
	var me *MissingAssetError
	if errors.As(err, &me) {
		return me.Kind, true
	}
	return "", false
}
