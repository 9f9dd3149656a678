// Waveframe - Audio Poster Customization and Preview Service
// Copyright 2026 Waveframe Studio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waveframe-studio/waveframe

package readiness

import (
	"context"
	"fmt"
	"time"

	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/nats-io/nats-server/v2/server"
	natsgo "github.com/nats-io/nats.go"

	"github.com/waveframe-studio/waveframe/internal/config"
	"github.com/waveframe-studio/waveframe/internal/logging"
)

// Bus bundles the publisher and subscriber sides of the event transport
// with whatever infrastructure backs them.
type Bus struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber

	embedded *server.Server
	monitor  *natsgo.Conn
}

// NewBus builds the transport the configuration asks for: NATS JetStream
// (optionally with an embedded server) when enabled, otherwise an
// in-process channel suitable for single-binary deployments where the
// waveform worker runs in the same process.
func NewBus(cfg config.NATSConfig) (*Bus, error) {
	if !cfg.Enabled {
		return newInProcBus(), nil
	}
	return newNATSBus(cfg)
}

// newInProcBus creates a gochannel transport. Messages are delivered only
// within this process and are lost on restart.
func newInProcBus() *Bus {
	ch := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 64,
	}, newWatermillLogger())
	return &Bus{Publisher: ch, Subscriber: ch}
}

func newNATSBus(cfg config.NATSConfig) (*Bus, error) {
	bus := &Bus{}
	url := cfg.URL
	wmLogger := newWatermillLogger()

	if cfg.EmbeddedServer {
		ns, err := startEmbeddedServer(cfg)
		if err != nil {
			return nil, err
		}
		bus.embedded = ns
		url = ns.ClientURL()
	}

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: true,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, wmLogger)
	if err != nil {
		bus.shutdownEmbedded()
		return nil, fmt.Errorf("create NATS publisher: %w", err)
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              url,
		QueueGroupPrefix: cfg.QueueGroup,
		NatsOptions:      natsOpts,
		AckWaitTimeout:   30 * time.Second,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: true,
			DurablePrefix: cfg.QueueGroup,
			SubscribeOptions: []natsgo.SubOpt{
				natsgo.MaxDeliver(5),
				natsgo.AckWait(30 * time.Second),
				natsgo.DeliverNew(),
			},
		},
	}, wmLogger)
	if err != nil {
		_ = pub.Close()
		bus.shutdownEmbedded()
		return nil, fmt.Errorf("create NATS subscriber: %w", err)
	}

	// A dedicated connection backs Healthy so readiness probes do not
	// depend on the publisher's internal state.
	monitor, err := natsgo.Connect(url, natsOpts...)
	if err != nil {
		_ = sub.Close()
		_ = pub.Close()
		bus.shutdownEmbedded()
		return nil, fmt.Errorf("create NATS monitor connection: %w", err)
	}

	bus.Publisher = pub
	bus.Subscriber = sub
	bus.monitor = monitor
	return bus, nil
}

// Healthy reports whether the event transport can currently deliver
// messages. In-process transports are always healthy.
func (b *Bus) Healthy(ctx context.Context) error {
	if b.monitor == nil {
		return nil
	}
	if status := b.monitor.Status(); status != natsgo.CONNECTED {
		return fmt.Errorf("NATS connection %s", status)
	}
	return ctx.Err()
}

// startEmbeddedServer runs an in-process NATS JetStream server for
// single-binary deployments.
func startEmbeddedServer(cfg config.NATSConfig) (*server.Server, error) {
	opts := &server.Options{
		ServerName: "waveframe-events",
		Host:       "127.0.0.1",
		Port:       -1, // random free port
		JetStream:  true,
		StoreDir:   cfg.StoreDir,
		NoLog:      true,
		MaxPayload: 1024 * 1024,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create embedded NATS server: %w", err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(30 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded NATS server not ready within timeout")
	}

	logging.Info().Str("url", ns.ClientURL()).Msg("Embedded NATS server started")
	return ns, nil
}

// Close shuts the transport down: subscriber first so in-flight handlers
// drain, then publisher, then the embedded server if one is running.
func (b *Bus) Close(ctx context.Context) error {
	var firstErr error
	if b.monitor != nil {
		b.monitor.Close()
		b.monitor = nil
	}
	if b.Subscriber != nil {
		if err := b.Subscriber.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if b.Publisher != nil {
		if p, ok := b.Publisher.(interface{ Close() error }); ok && any(b.Publisher) != any(b.Subscriber) {
			if err := p.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	b.shutdownEmbedded()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return firstErr
	}
}

func (b *Bus) shutdownEmbedded() {
	if b.embedded != nil {
		b.embedded.Shutdown()
		b.embedded.WaitForShutdown()
		b.embedded = nil
	}
}
