// Waveframe - Audio Poster Customization and Preview Service
// Copyright 2026 Waveframe Studio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waveframe-studio/waveframe

// Package main is the entry point for the Waveframe server.
//
// Waveframe turns a photo and an audio clip into a printable poster: the
// audio's waveform is rendered alongside the photo and the customer's
// text, previewed with a watermark, and delivered as a clean document
// after payment.
//
// The server initializes components in the following order:
//
//  1. Configuration: Koanf v2 layering defaults, config file, WAVEFRAME_ env vars
//  2. Session store: BadgerDB with TTL-expiring session records
//  3. Asset store: filesystem-backed object storage with signed URLs
//  4. Event bus: NATS JetStream (optionally embedded) or in-process transport
//  5. Coordinator, preview generator, debounce buffer, websocket hub
//  6. Supervisor tree: janitor, hub, readiness consumer, HTTP server
//
// Graceful shutdown on SIGINT/SIGTERM: the supervisor drains every service,
// pending buffered edits are flushed, and the stores are closed.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/waveframe-studio/waveframe/internal/api"
	"github.com/waveframe-studio/waveframe/internal/assets"
	"github.com/waveframe-studio/waveframe/internal/config"
	"github.com/waveframe-studio/waveframe/internal/debounce"
	"github.com/waveframe-studio/waveframe/internal/logging"
	"github.com/waveframe-studio/waveframe/internal/preview"
	"github.com/waveframe-studio/waveframe/internal/readiness"
	"github.com/waveframe-studio/waveframe/internal/session"
	"github.com/waveframe-studio/waveframe/internal/supervisor"
	"github.com/waveframe-studio/waveframe/internal/supervisor/services"
	ws "github.com/waveframe-studio/waveframe/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Str("store_path", cfg.Session.StorePath).
		Str("assets_root", cfg.Assets.Root).
		Bool("nats_enabled", cfg.NATS.Enabled).
		Msg("Starting Waveframe")

	// Session store
	db, err := session.Open(cfg.Session.StorePath)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open session store")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing session store")
		}
	}()
	store := session.NewStore(db)

	// Asset storage with signed URL access
	signer := assets.NewSigner(cfg.Assets.SigningSecret, "/api/v1/assets")
	assetStore, err := assets.NewFSStore(cfg.Assets.Root, signer)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize asset store")
	}

	coordinator := session.NewCoordinator(store, assetStore, session.Config{
		TTL:               cfg.Session.TTL,
		MaxTextCodepoints: cfg.Session.MaxTextCodepoints,
	})

	// Event bus carrying waveform jobs to the worker and completions back
	bus, err := readiness.NewBus(cfg.NATS)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to connect event bus")
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := bus.Close(closeCtx); err != nil {
			logging.Error().Err(err).Msg("Error closing event bus")
		}
	}()

	coordinator.SetJobPublisher(readiness.NewJobPublisher(bus.Publisher, cfg.NATS.RequestedSubject))
	consumer := readiness.NewConsumer(bus.Subscriber, coordinator, cfg.NATS.CompletedSubject)

	// Realtime status push
	hub := ws.NewHub()
	coordinator.SetNotifier(hub)

	// Rendering: watermarked previews pre-payment, clean documents after
	renderer := preview.NewPosterRenderer()
	generator := preview.NewGenerator(coordinator, assetStore, renderer, preview.Config{
		BreakerThreshold: cfg.Preview.BreakerThreshold,
		BreakerCooldown:  cfg.Preview.BreakerCooldown,
	})
	coordinator.SetCleanRenderer(preview.NewCleanRenderer(assetStore, renderer))

	// Edit coalescing: bursts reach the coordinator as one update
	editBuffer := debounce.New(func(ctx context.Context, token string, edit *session.EditRequest) error {
		_, err := coordinator.ApplyEdit(ctx, token, edit)
		return err
	}, debounce.Config{})
	defer editBuffer.Close()

	checks := []api.ReadyCheck{
		{
			Name: "session-store",
			Check: func(ctx context.Context) error {
				return db.View(func(txn *badger.Txn) error { return nil })
			},
		},
	}
	if cfg.NATS.Enabled {
		checks = append(checks, api.ReadyCheck{Name: "event-bus", Check: bus.Healthy})
	}

	handler := api.NewHandler(
		coordinator, editBuffer, generator, assetStore, signer, hub, cfg, checks...,
	)
	server := api.NewServer(api.NewRouter(handler, cfg.Server), cfg.Server)

	// Supervisor tree
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	if cfg.Assets.JanitorInterval > 0 {
		janitor := session.NewJanitor(store, assetStore, cfg.Assets.JanitorInterval)
		tree.AddDataService(services.NewRunnerService("asset-janitor", janitor))
	}
	tree.AddMessagingService(services.NewRunnerService("websocket-hub", services.RunnerFunc(hub.RunWithContext)))
	tree.AddMessagingService(services.NewRunnerService("readiness-consumer", consumer))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Waveframe stopped gracefully")
}
