// Chasing Your Tail NG - Wireless Surveillance Detection Engine
// Copyright 2026 the Chasing Your Tail NG authors
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

// Package config loads and validates engine configuration from layered
// sources: built-in defaults, an optional YAML file, and environment
// variables. Validation failures are fatal at startup; nothing else in the
// engine treats configuration as optional.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the detection engine.
type Config struct {
	Paths      PathsConfig      `koanf:"paths"`
	Thresholds ThresholdsConfig `koanf:"thresholds"`
	Timing     TimingConfig     `koanf:"timing"`
	Alerts     AlertsConfig     `koanf:"alerts"`
	GPS        GPSConfig        `koanf:"gps"`
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// PathsConfig locates the capture backend and the engine's own state files.
type PathsConfig struct {
	// KismetGlob matches the Kismet capture databases, e.g. "~/kismet/*.kismet".
	KismetGlob string `koanf:"kismet_glob"`

	// DataDir holds the engine's durable state (profiles, stalker data).
	DataDir string `koanf:"data_dir"`

	// Profiles is the full-registry profile JSON file.
	Profiles string `koanf:"profiles"`

	// AlertsLog is the append-only durable alert sink.
	AlertsLog string `koanf:"alerts_log"`

	// StalkerData is the GPS correlator's JSON state file.
	StalkerData string `koanf:"stalker_data"`
}

// ThresholdsConfig tunes the detection heuristics. These are heuristics,
// not validated detection models; the defaults match the shipped behavior.
type ThresholdsConfig struct {
	// SignalApproachingDBm: approach warnings require the latest reading
	// to be stronger than this.
	SignalApproachingDBm int `koanf:"signal_approaching_dbm"`

	// UnknownStreakWarning: repeat unknown arrivals escalate from INFO to
	// WARNING at this streak length.
	UnknownStreakWarning int `koanf:"unknown_streak_warning"`
}

// TimingConfig holds scan intervals, lookback windows, and the linger and
// idle thresholds.
type TimingConfig struct {
	StationaryInterval time.Duration `koanf:"stationary_interval"`
	RoamingInterval    time.Duration `koanf:"roaming_interval"`
	WatchlistInterval  time.Duration `koanf:"watchlist_interval"`
	ScreensaverPoll    time.Duration `koanf:"screensaver_poll"`
	RoamingWindow      time.Duration `koanf:"roaming_window"`
	WatchlistWindow    time.Duration `koanf:"watchlist_window"`
	LingerThreshold    time.Duration `koanf:"linger_threshold"`
	IdleThreshold      time.Duration `koanf:"idle_threshold"`
	ModeSwitchTimeout  time.Duration `koanf:"mode_switch_timeout"`
}

// AlertsConfig controls alert sinks and sub-behaviors.
type AlertsConfig struct {
	// LogAlerts enables the durable append-only text sink.
	LogAlerts bool `koanf:"log_alerts"`

	// ConsoleAlerts mirrors alerts to the engine log.
	ConsoleAlerts bool `koanf:"console_alerts"`

	// DoorbellAlerts layers arrival/departure detection onto STATIONARY.
	DoorbellAlerts bool `koanf:"doorbell_alerts"`

	// KnownArrivalNotify forwards labeled-device arrivals to the dispatcher.
	KnownArrivalNotify bool `koanf:"known_arrival_notify"`

	Webhook WebhookConfig `koanf:"webhook"`
}

// WebhookConfig configures the generic webhook notification channel.
type WebhookConfig struct {
	Enabled bool              `koanf:"enabled"`
	URL     string            `koanf:"url"`
	Headers map[string]string `koanf:"headers"`

	// SendOn lists the severities this channel delivers (e.g. CRITICAL).
	SendOn []string `koanf:"send_on"`
}

// GPSConfig tunes the multi-location stalker correlator.
type GPSConfig struct {
	// AcceptRadiusKm: observations farther than this from every checkpoint
	// are discarded.
	AcceptRadiusKm float64 `koanf:"accept_radius_km"`

	// MinSeparationKm: sightings closer than this to an existing sighting
	// are revisits, not new locations.
	MinSeparationKm float64 `koanf:"min_separation_km"`

	// TopN limits the ranked stalker report.
	TopN int `koanf:"top_n"`
}

// ServerConfig configures the local control surface.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// LoggingConfig configures the engine log.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			KismetGlob:  "",
			DataDir:     "data",
			Profiles:    "data/profiles.json",
			AlertsLog:   "data/alerts.log",
			StalkerData: "data/stalker.json",
		},
		Thresholds: ThresholdsConfig{
			SignalApproachingDBm: -65,
			UnknownStreakWarning: 3,
		},
		Timing: TimingConfig{
			StationaryInterval: 60 * time.Second,
			RoamingInterval:    15 * time.Second,
			WatchlistInterval:  30 * time.Second,
			ScreensaverPoll:    5 * time.Second,
			RoamingWindow:      24 * time.Hour,
			WatchlistWindow:    48 * time.Hour,
			LingerThreshold:    5 * time.Minute,
			IdleThreshold:      5 * time.Minute,
			ModeSwitchTimeout:  5 * time.Second,
		},
		Alerts: AlertsConfig{
			LogAlerts:          true,
			ConsoleAlerts:      true,
			DoorbellAlerts:     false,
			KnownArrivalNotify: true,
			Webhook: WebhookConfig{
				Enabled: false,
				SendOn:  []string{"CRITICAL"},
			},
		},
		GPS: GPSConfig{
			AcceptRadiusKm:  1.0,
			MinSeparationKm: 0.5,
			TopN:            20,
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8888,
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the configuration for startup-fatal problems. A Config
// that fails validation must not be used; the process exits instead.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validatePaths,
		c.validateTiming,
		c.validateThresholds,
		c.validateGPS,
		c.validateServer,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.KismetGlob == "" {
		return fmt.Errorf("paths.kismet_glob is required (location of the Kismet capture databases)")
	}
	if c.Paths.DataDir == "" {
		return fmt.Errorf("paths.data_dir is required")
	}
	if c.Paths.Profiles == "" {
		return fmt.Errorf("paths.profiles is required")
	}
	if c.Paths.AlertsLog == "" {
		return fmt.Errorf("paths.alerts_log is required")
	}
	if c.Paths.StalkerData == "" {
		return fmt.Errorf("paths.stalker_data is required")
	}
	return nil
}

func (c *Config) validateTiming() error {
	intervals := map[string]time.Duration{
		"timing.stationary_interval": c.Timing.StationaryInterval,
		"timing.roaming_interval":    c.Timing.RoamingInterval,
		"timing.watchlist_interval":  c.Timing.WatchlistInterval,
		"timing.screensaver_poll":    c.Timing.ScreensaverPoll,
		"timing.roaming_window":      c.Timing.RoamingWindow,
		"timing.watchlist_window":    c.Timing.WatchlistWindow,
		"timing.linger_threshold":    c.Timing.LingerThreshold,
		"timing.idle_threshold":      c.Timing.IdleThreshold,
		"timing.mode_switch_timeout": c.Timing.ModeSwitchTimeout,
	}
	for name, d := range intervals {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	return nil
}

func (c *Config) validateThresholds() error {
	if c.Thresholds.UnknownStreakWarning < 1 {
		return fmt.Errorf("thresholds.unknown_streak_warning must be at least 1")
	}
	return nil
}

func (c *Config) validateGPS() error {
	if c.GPS.AcceptRadiusKm <= 0 {
		return fmt.Errorf("gps.accept_radius_km must be positive")
	}
	if c.GPS.MinSeparationKm <= 0 {
		return fmt.Errorf("gps.min_separation_km must be positive")
	}
	if c.GPS.TopN <= 0 {
		return fmt.Errorf("gps.top_n must be positive")
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	return nil
}
