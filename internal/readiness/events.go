// Waveframe - Audio Poster Customization and Preview Service
// Copyright 2026 Waveframe Studio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waveframe-studio/waveframe

// Package readiness carries waveform derivation events between this service
// and the audio processing worker. Jobs go out on the requested subject,
// completions come back on the completed subject; transport is NATS
// JetStream or an in-process channel depending on deployment.
package readiness

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"
)

// WaveformRequested asks the processing worker to derive peaks for an
// uploaded audio asset.
type WaveformRequested struct {
	SessionToken string    `json:"session_token"`
	AudioRef     string    `json:"audio_ref"`
	RequestedAt  time.Time `json:"requested_at"`
}

// WaveformCompleted reports a derived waveform artifact back from the
// worker. Delivery is at-least-once; the coordinator dedupes.
type WaveformCompleted struct {
	SessionToken string    `json:"session_token"`
	WaveformRef  string    `json:"waveform_ref"`
	CompletedAt  time.Time `json:"completed_at"`
}

// Validate rejects events a consumer cannot act on.
func (e *WaveformCompleted) Validate() error {
	if e.SessionToken == "" {
		return fmt.Errorf("missing session_token")
	}
	if e.WaveformRef == "" {
		return fmt.Errorf("missing waveform_ref")
	}
	return nil
}

func marshalEvent(v any) ([]byte, error) {
	return json.Marshal(v)
}

func unmarshalEvent(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
