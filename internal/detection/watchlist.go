// Chasing Your Tail NG - Wireless Surveillance Detection Engine
// Copyright 2026 the Chasing Your Tail NG authors
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

package detection

import (
	"fmt"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/alert"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/profile"
)

// WatchlistDetector fires a critical alert for every sighting of a
// watchlisted device. Unlike cross-context, watchlist hits never
// deduplicate: the user explicitly asked to hear about each one.
type WatchlistDetector struct {
	mu      sync.RWMutex
	enabled bool
}

// NewWatchlistDetector creates the detector, enabled.
func NewWatchlistDetector() *WatchlistDetector {
	return &WatchlistDetector{enabled: true}
}

// Name returns the detector identifier.
func (d *WatchlistDetector) Name() string { return "watchlist" }

// Enabled reports whether the detector is active.
func (d *WatchlistDetector) Enabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enabled
}

// SetEnabled toggles the detector.
func (d *WatchlistDetector) SetEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = enabled
}

// Configure applies JSON configuration.
func (d *WatchlistDetector) Configure(config json.RawMessage) error {
	var cfg struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.Unmarshal(config, &cfg); err != nil {
		return fmt.Errorf("watchlist config: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if cfg.Enabled != nil {
		d.enabled = *cfg.Enabled
	}
	return nil
}

// Check evaluates one sighted profile.
func (d *WatchlistDetector) Check(p profile.DeviceProfile) (Result, bool) {
	if !d.Enabled() || !p.Watchlisted {
		return Result{}, false
	}
	msg := fmt.Sprintf("watchlist hit: %s (%s) signal %d dBm, trend %s",
		p.DisplayName(), p.Manufacturer, p.LastSignal, p.SignalTrend)
	return Result{Severity: alert.SeverityCritical, Message: msg}, true
}
