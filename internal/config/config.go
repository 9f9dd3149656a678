// Waveframe - Audio Poster Customization and Preview Service
// Copyright 2026 Waveframe Studio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waveframe-studio/waveframe

// Package config provides layered configuration for Waveframe using Koanf v2.
//
// Configuration is loaded from three sources, highest priority last:
//
//  1. Built-in defaults
//  2. Optional YAML config file (config.yaml, or CONFIG_PATH)
//  3. Environment variables with the WAVEFRAME_ prefix
//
// Environment variables map to nested keys by section, for example
// WAVEFRAME_SERVER_PORT -> server.port and
// WAVEFRAME_SESSION_TTL -> session.ttl.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the Waveframe server.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Session SessionConfig `koanf:"session"`
	Assets  AssetsConfig  `koanf:"assets"`
	Preview PreviewConfig `koanf:"preview"`
	NATS    NATSConfig    `koanf:"nats"`
	Logging LoggingConfig `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`

	// CORSOrigins lists allowed CORS origins. Empty means same-origin only.
	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimitReqs / RateLimitWindow bound request rates per client IP.
	// Status polling uses a separate, more permissive tier.
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SessionConfig holds customization-session settings.
type SessionConfig struct {
	// StorePath is the BadgerDB directory holding session records.
	StorePath string `koanf:"store_path"`

	// TTL is how long an unconverted session lives after creation.
	TTL time.Duration `koanf:"ttl"`

	// MaxTextCodepoints bounds the poster text length, counted in
	// Unicode code points rather than bytes.
	MaxTextCodepoints int `koanf:"max_text_codepoints"`
}

// AssetsConfig holds asset storage settings.
type AssetsConfig struct {
	// Root is the directory for stored asset bytes (temporary and permanent).
	Root string `koanf:"root"`

	// SigningSecret signs time-limited asset URLs (HS256). Required; 32+ bytes.
	SigningSecret string `koanf:"signing_secret"`

	// SignedURLTTL is the lifetime of an issued asset URL.
	SignedURLTTL time.Duration `koanf:"signed_url_ttl"`

	// MaxUploadBytes bounds a single photo or audio upload.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`

	// JanitorInterval is how often orphaned temporary assets are swept.
	// Zero disables the sweep.
	JanitorInterval time.Duration `koanf:"janitor_interval"`
}

// PreviewConfig holds preview-generation settings.
type PreviewConfig struct {
	// RenderTimeout bounds a single render invocation.
	RenderTimeout time.Duration `koanf:"render_timeout"`

	// BreakerThreshold is the number of consecutive render failures before
	// the circuit opens for a representation.
	BreakerThreshold uint32 `koanf:"breaker_threshold"`

	// BreakerCooldown is how long an open circuit waits before probing.
	BreakerCooldown time.Duration `koanf:"breaker_cooldown"`
}

// NATSConfig holds settings for the readiness event bus.
// When disabled, an in-process transport carries events instead, which
// is suitable only when the waveform worker runs in the same process.
type NATSConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`

	// EmbeddedServer starts an in-process NATS JetStream server, for
	// single-binary deployments.
	EmbeddedServer bool   `koanf:"embedded_server"`
	StoreDir       string `koanf:"store_dir"`

	// CompletedSubject carries waveform.completed events from the worker.
	// RequestedSubject carries waveform.requested jobs to the worker.
	CompletedSubject string `koanf:"completed_subject"`
	RequestedSubject string `koanf:"requested_subject"`

	QueueGroup string `koanf:"queue_group"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all defaults applied.
// These are overridden by the config file and then environment variables.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8480,
			Timeout:           30 * time.Second,
			CORSOrigins:       []string{},
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
		},
		Session: SessionConfig{
			StorePath:         "/data/sessions",
			TTL:               24 * time.Hour,
			MaxTextCodepoints: 200,
		},
		Assets: AssetsConfig{
			Root:            "/data/assets",
			SigningSecret:   "",
			SignedURLTTL:    15 * time.Minute,
			MaxUploadBytes:  32 << 20, // 32MB covers phone photos and short audio clips
			JanitorInterval: time.Hour,
		},
		Preview: PreviewConfig{
			RenderTimeout:    60 * time.Second,
			BreakerThreshold: 5,
			BreakerCooldown:  30 * time.Second,
		},
		NATS: NATSConfig{
			Enabled:          false,
			URL:              "nats://127.0.0.1:4222",
			EmbeddedServer:   false,
			StoreDir:         "/data/nats/jetstream",
			CompletedSubject: "waveform.completed",
			RequestedSubject: "waveform.requested",
			QueueGroup:       "waveframe",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be positive, got %s", c.Session.TTL)
	}
	if c.Session.MaxTextCodepoints <= 0 {
		return fmt.Errorf("session.max_text_codepoints must be positive, got %d", c.Session.MaxTextCodepoints)
	}
	if c.Session.StorePath == "" {
		return fmt.Errorf("session.store_path is required")
	}
	if c.Assets.Root == "" {
		return fmt.Errorf("assets.root is required")
	}
	if len(c.Assets.SigningSecret) < 32 {
		return fmt.Errorf("assets.signing_secret must be at least 32 characters")
	}
	if c.Assets.SignedURLTTL <= 0 {
		return fmt.Errorf("assets.signed_url_ttl must be positive, got %s", c.Assets.SignedURLTTL)
	}
	if c.Assets.MaxUploadBytes <= 0 {
		return fmt.Errorf("assets.max_upload_bytes must be positive, got %d", c.Assets.MaxUploadBytes)
	}
	if c.Preview.BreakerThreshold == 0 {
		return fmt.Errorf("preview.breaker_threshold must be positive")
	}
	if c.NATS.Enabled && !c.NATS.EmbeddedServer && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when nats is enabled without an embedded server")
	}
	return nil
}
