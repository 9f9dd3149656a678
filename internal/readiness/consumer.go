// Waveframe - Audio Poster Customization and Preview Service
// Copyright 2026 Waveframe Studio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waveframe-studio/waveframe

package readiness

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/waveframe-studio/waveframe/internal/logging"
	"github.com/waveframe-studio/waveframe/internal/metrics"
	"github.com/waveframe-studio/waveframe/internal/session"
)

// WaveformMarker is the coordinator surface the consumer needs.
type WaveformMarker interface {
	MarkWaveformReady(ctx context.Context, token, waveformRef string) error
}

// Consumer applies waveform.completed events to sessions. Delivery is
// at-least-once; MarkWaveformReady is idempotent, so redelivery is safe.
//
// Ack policy: malformed payloads and unknown sessions are acked (redelivery
// cannot fix them); store failures are nacked for retry.
type Consumer struct {
	subscriber message.Subscriber
	marker     WaveformMarker
	subject    string
}

// NewConsumer creates a consumer for the completed subject.
func NewConsumer(sub message.Subscriber, marker WaveformMarker, subject string) *Consumer {
	return &Consumer{subscriber: sub, marker: marker, subject: subject}
}

// Run processes events until the context is canceled or the subscription
// channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	messages, err := c.subscriber.Subscribe(ctx, c.subject)
	if err != nil {
		return err
	}

	logging.Info().Str("subject", c.subject).Msg("Waveform event consumer started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			c.handle(ctx, msg)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg *message.Message) {
	var event WaveformCompleted
	if err := unmarshalEvent(msg.Payload, &event); err != nil {
		logging.Warn().Err(err).Str("message_id", msg.UUID).Msg("Dropping malformed waveform event")
		metrics.BusMessagesConsumed.WithLabelValues(c.subject, "parse_failed").Inc()
		msg.Ack()
		return
	}
	if err := event.Validate(); err != nil {
		logging.Warn().Err(err).Str("message_id", msg.UUID).Msg("Dropping incomplete waveform event")
		metrics.BusMessagesConsumed.WithLabelValues(c.subject, "parse_failed").Inc()
		msg.Ack()
		return
	}

	err := c.marker.MarkWaveformReady(ctx, event.SessionToken, event.WaveformRef)
	switch {
	case err == nil:
		metrics.BusMessagesConsumed.WithLabelValues(c.subject, "processed").Inc()
		metrics.WaveformEvents.WithLabelValues("applied").Inc()
		msg.Ack()
	case errors.Is(err, session.ErrNotFound):
		// The session expired or never existed; redelivery cannot help.
		logging.Warn().Str("session", event.SessionToken).Msg("Waveform event for unknown session")
		metrics.WaveformEvents.WithLabelValues("unknown_session").Inc()
		msg.Ack()
	default:
		logging.Error().Err(err).Str("session", event.SessionToken).Msg("Waveform event processing failed")
		metrics.BusMessagesConsumed.WithLabelValues(c.subject, "error").Inc()
		metrics.WaveformEvents.WithLabelValues("error").Inc()
		msg.Nack()
	}
}
