// Waveframe - Audio Poster Customization and Preview Service
// Copyright 2026 Waveframe Studio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waveframe-studio/waveframe

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestDefaultConfigValidates(t *testing.T) {
	cfg := defaultConfig()
	cfg.Assets.SigningSecret = testSecret

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config should validate: %v", err)
	}
	if cfg.Server.Port != 8480 {
		t.Errorf("Expected default port 8480, got %d", cfg.Server.Port)
	}
	if cfg.Session.TTL != 24*time.Hour {
		t.Errorf("Expected default session TTL 24h, got %s", cfg.Session.TTL)
	}
	if cfg.Session.MaxTextCodepoints != 200 {
		t.Errorf("Expected default text limit 200, got %d", cfg.Session.MaxTextCodepoints)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"zero ttl", func(c *Config) { c.Session.TTL = 0 }, "session.ttl"},
		{"short secret", func(c *Config) { c.Assets.SigningSecret = "short" }, "signing_secret"},
		{"no store path", func(c *Config) { c.Session.StorePath = "" }, "store_path"},
		{"no assets root", func(c *Config) { c.Assets.Root = "" }, "assets.root"},
		{"zero upload limit", func(c *Config) { c.Assets.MaxUploadBytes = 0 }, "max_upload_bytes"},
		{"nats without url", func(c *Config) {
			c.NATS.Enabled = true
			c.NATS.EmbeddedServer = false
			c.NATS.URL = ""
		}, "nats.url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Assets.SigningSecret = testSecret
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"WAVEFRAME_SERVER_PORT", "server.port"},
		{"WAVEFRAME_SESSION_TTL", "session.ttl"},
		{"WAVEFRAME_ASSETS_SIGNING_SECRET", "assets.signing_secret"},
		{"WAVEFRAME_NATS_EMBEDDED_SERVER", "nats.embedded_server"},
		{"WAVEFRAME_LOGGING_LEVEL", "logging.level"},
	}

	for _, tt := range tests {
		if got := envTransformFunc(tt.in); got != tt.want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoadLayering(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: 9000
session:
  ttl: 2h
assets:
  signing_secret: "` + testSecret + `"
`
	if err := os.WriteFile(configPath, []byte(yaml), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	t.Setenv(ConfigPathEnvVar, configPath)
	t.Setenv("WAVEFRAME_SERVER_PORT", "9100") // env overrides file

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("Expected env to override file: port = %d, want 9100", cfg.Server.Port)
	}
	if cfg.Session.TTL != 2*time.Hour {
		t.Errorf("Expected file to override default: ttl = %s, want 2h", cfg.Session.TTL)
	}
	if cfg.Session.MaxTextCodepoints != 200 {
		t.Errorf("Expected default retained: max_text_codepoints = %d", cfg.Session.MaxTextCodepoints)
	}
}

func TestLoadCORSOriginsFromEnv(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	yaml := `
assets:
  signing_secret: "` + testSecret + `"
`
	if err := os.WriteFile(configPath, []byte(yaml), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	t.Setenv(ConfigPathEnvVar, configPath)
	t.Setenv("WAVEFRAME_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(cfg.Server.CORSOrigins) != 2 {
		t.Fatalf("Expected 2 CORS origins, got %v", cfg.Server.CORSOrigins)
	}
	if cfg.Server.CORSOrigins[0] != "https://a.example" || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Errorf("Unexpected CORS origins: %v", cfg.Server.CORSOrigins)
	}
}
