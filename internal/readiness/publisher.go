// Waveframe - Audio Poster Customization and Preview Service
// Copyright 2026 Waveframe Studio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waveframe-studio/waveframe

package readiness

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/waveframe-studio/waveframe/internal/logging"
	"github.com/waveframe-studio/waveframe/internal/metrics"
)

// JobPublisher dispatches waveform derivation jobs for uploaded audio.
// It satisfies the coordinator's publisher interface.
type JobPublisher struct {
	publisher message.Publisher
	subject   string
}

// NewJobPublisher creates a publisher for the requested subject.
func NewJobPublisher(pub message.Publisher, subject string) *JobPublisher {
	return &JobPublisher{publisher: pub, subject: subject}
}

// PublishWaveformRequested emits a derivation job for the session's audio.
func (p *JobPublisher) PublishWaveformRequested(ctx context.Context, token, audioRef string) error {
	payload, err := marshalEvent(&WaveformRequested{
		SessionToken: token,
		AudioRef:     audioRef,
		RequestedAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal waveform job: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := p.publisher.Publish(p.subject, msg); err != nil {
		return fmt.Errorf("publish waveform job: %w", err)
	}

	metrics.WaveformJobsPublished.Inc()
	metrics.BusMessagesPublished.WithLabelValues(p.subject).Inc()
	logging.Ctx(ctx).Debug().
		Str("session", token).
		Str("audio_ref", audioRef).
		Msg("Waveform derivation job published")
	return nil
}
