// Chasing Your Tail NG - Wireless Surveillance Detection Engine
// Copyright 2026 the Chasing Your Tail NG authors
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where the config file is searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/cyt/config.yaml",
	"/etc/cyt/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CYT_CONFIG"

// Load builds the configuration from layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
//
// The returned Config has already passed Validate; a validation failure is
// returned as an error and must be treated as fatal by the caller.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file path, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths lists config paths parsed as comma-separated slices
// when they arrive as env var strings.
var sliceConfigPaths = []string{
	"server.cors_origins",
	"alerts.webhook.send_on",
}

// processSliceFields converts comma-separated env values to slices for
// known slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped variables are skipped so random environment noise cannot leak
// into the configuration.
func envTransformFunc(key string) string {
	envMappings := map[string]string{
		"cyt_kismet_glob":  "paths.kismet_glob",
		"cyt_data_dir":     "paths.data_dir",
		"cyt_profiles":     "paths.profiles",
		"cyt_alerts_log":   "paths.alerts_log",
		"cyt_stalker_data": "paths.stalker_data",

		"cyt_signal_approaching_dbm": "thresholds.signal_approaching_dbm",
		"cyt_unknown_streak_warning": "thresholds.unknown_streak_warning",

		"cyt_stationary_interval": "timing.stationary_interval",
		"cyt_roaming_interval":    "timing.roaming_interval",
		"cyt_watchlist_interval":  "timing.watchlist_interval",
		"cyt_screensaver_poll":    "timing.screensaver_poll",
		"cyt_roaming_window":      "timing.roaming_window",
		"cyt_watchlist_window":    "timing.watchlist_window",
		"cyt_linger_threshold":    "timing.linger_threshold",
		"cyt_idle_threshold":      "timing.idle_threshold",
		"cyt_mode_switch_timeout": "timing.mode_switch_timeout",

		"cyt_log_alerts":           "alerts.log_alerts",
		"cyt_console_alerts":       "alerts.console_alerts",
		"cyt_doorbell_alerts":      "alerts.doorbell_alerts",
		"cyt_known_arrival_notify": "alerts.known_arrival_notify",
		"cyt_webhook_enabled":      "alerts.webhook.enabled",
		"cyt_webhook_url":          "alerts.webhook.url",
		"cyt_webhook_send_on":      "alerts.webhook.send_on",

		"cyt_gps_accept_radius_km":  "gps.accept_radius_km",
		"cyt_gps_min_separation_km": "gps.min_separation_km",
		"cyt_gps_top_n":             "gps.top_n",

		"cyt_http_host":         "server.host",
		"cyt_http_port":         "server.port",
		"cyt_rate_limit_reqs":   "server.rate_limit_reqs",
		"cyt_rate_limit_window": "server.rate_limit_window",
		"cyt_cors_origins":      "server.cors_origins",

		"cyt_log_level":  "logging.level",
		"cyt_log_format": "logging.format",
		"cyt_log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
