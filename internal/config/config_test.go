// Chasing Your Tail NG - Wireless Surveillance Detection Engine
// Copyright 2026 the Chasing Your Tail NG authors
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigValidAfterGlob(t *testing.T) {
	cfg := defaultConfig()
	cfg.Paths.KismetGlob = "/tmp/*.kismet"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config with kismet_glob should validate: %v", err)
	}
}

func TestValidateRejectsMissingKismetGlob(t *testing.T) {
	cfg := defaultConfig()
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for empty kismet_glob")
	}
	if !strings.Contains(err.Error(), "kismet_glob") {
		t.Errorf("error should name the missing field: %v", err)
	}
}

func TestValidateTiming(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero stationary interval", func(c *Config) { c.Timing.StationaryInterval = 0 }, "stationary_interval"},
		{"negative roaming window", func(c *Config) { c.Timing.RoamingWindow = -time.Hour }, "roaming_window"},
		{"zero linger threshold", func(c *Config) { c.Timing.LingerThreshold = 0 }, "linger_threshold"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Paths.KismetGlob = "/tmp/*.kismet"
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error should mention %s: %v", tt.field, err)
			}
		})
	}
}

func TestValidateGPS(t *testing.T) {
	cfg := defaultConfig()
	cfg.Paths.KismetGlob = "/tmp/*.kismet"
	cfg.GPS.AcceptRadiusKm = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero accept radius")
	}
}

func TestValidateServerPort(t *testing.T) {
	cfg := defaultConfig()
	cfg.Paths.KismetGlob = "/tmp/*.kismet"
	cfg.Server.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for port 0")
	}
	cfg.Server.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for port 70000")
	}
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
paths:
  kismet_glob: "/var/log/kismet/*.kismet"
timing:
  roaming_interval: 7s
gps:
  top_n: 5
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Paths.KismetGlob != "/var/log/kismet/*.kismet" {
		t.Errorf("kismet_glob = %q", cfg.Paths.KismetGlob)
	}
	if cfg.Timing.RoamingInterval != 7*time.Second {
		t.Errorf("roaming_interval = %v, want 7s", cfg.Timing.RoamingInterval)
	}
	if cfg.GPS.TopN != 5 {
		t.Errorf("gps.top_n = %d, want 5", cfg.GPS.TopN)
	}
	// Untouched values keep their defaults.
	if cfg.Timing.StationaryInterval != 60*time.Second {
		t.Errorf("stationary_interval lost its default: %v", cfg.Timing.StationaryInterval)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
paths:
  kismet_glob: "/var/log/kismet/*.kismet"
server:
  port: 9000
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("CYT_HTTP_PORT", "9100")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("env should override file: port = %d, want 9100", cfg.Server.Port)
	}
}

func TestEnvSliceParsing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "paths:\n  kismet_glob: \"/tmp/*.kismet\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("CYT_CORS_ORIGINS", "http://localhost:3000, http://localhost:8080")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(cfg.Server.CORSOrigins) != 2 {
		t.Fatalf("cors_origins = %v, want 2 entries", cfg.Server.CORSOrigins)
	}
	if cfg.Server.CORSOrigins[1] != "http://localhost:8080" {
		t.Errorf("second origin = %q, whitespace not trimmed", cfg.Server.CORSOrigins[1])
	}
}

func TestUnmappedEnvVarIgnored(t *testing.T) {
	if got := envTransformFunc("SOME_RANDOM_VAR"); got != "" {
		t.Errorf("unmapped env var should map to empty, got %q", got)
	}
	if got := envTransformFunc("CYT_KISMET_GLOB"); got != "paths.kismet_glob" {
		t.Errorf("CYT_KISMET_GLOB mapped to %q", got)
	}
}
