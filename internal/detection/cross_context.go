// Chasing Your Tail NG - Wireless Surveillance Detection Engine
// Copyright 2026 the Chasing Your Tail NG authors
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

package detection

import (
	"fmt"
	"strings"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/alert"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/profile"
)

// CrossContextClaimer hands out the one-time alert claim for a device
// that turned cross-context. The profile store implements it.
type CrossContextClaimer interface {
	ClaimCrossContextAlert(mac string) bool
}

// CrossContextDetector fires a single critical alert the first time a
// device is confirmed in more than one operating context. A phone seen
// both while parked at home and while moving around town is the core
// tail signature; one alert per device, ever, keeps it meaningful.
type CrossContextDetector struct {
	mu      sync.RWMutex
	enabled bool
	claims  CrossContextClaimer
}

// NewCrossContextDetector creates the detector, enabled.
func NewCrossContextDetector(claims CrossContextClaimer) *CrossContextDetector {
	return &CrossContextDetector{enabled: true, claims: claims}
}

// Name returns the detector identifier.
func (d *CrossContextDetector) Name() string { return "cross_context" }

// Enabled reports whether the detector is active.
func (d *CrossContextDetector) Enabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enabled
}

// SetEnabled toggles the detector.
func (d *CrossContextDetector) SetEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = enabled
}

// Configure applies JSON configuration.
func (d *CrossContextDetector) Configure(config json.RawMessage) error {
	var cfg struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.Unmarshal(config, &cfg); err != nil {
		return fmt.Errorf("cross_context config: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if cfg.Enabled != nil {
		d.enabled = *cfg.Enabled
	}
	return nil
}

// Check evaluates one profile snapshot. It fires at most once per device
// across the process lifetime and across restarts, via the persisted
// claim.
func (d *CrossContextDetector) Check(p profile.DeviceProfile) (Result, bool) {
	if !d.Enabled() || !p.CrossContext {
		return Result{}, false
	}
	if !d.claims.ClaimCrossContextAlert(p.MAC) {
		return Result{}, false
	}
	return Result{
		Severity: alert.SeverityCritical,
		Message: fmt.Sprintf("cross-context device: %s (%s) seen in contexts [%s] with %d encounters",
			p.DisplayName(), p.Manufacturer, strings.Join(p.ContextTags, ", "), p.TotalEncounters),
	}, true
}
