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
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/scoring"
)

// DefaultApproachSignalDBm is the minimum latest signal for an approach
// warning. Weaker than this and the device is approaching from far away;
// not yet interesting.
const DefaultApproachSignalDBm = -65

// ApproachDetector warns when an unknown device's signal trend turns
// approaching while already strong. It fires once per approaching
// episode: the state arms again only after the trend leaves approaching.
type ApproachDetector struct {
	mu           sync.Mutex
	enabled      bool
	minSignalDBm int
	firing       map[string]bool
}

// NewApproachDetector creates the detector, enabled, with the given
// signal floor (DefaultApproachSignalDBm if zero).
func NewApproachDetector(minSignalDBm int) *ApproachDetector {
	if minSignalDBm == 0 {
		minSignalDBm = DefaultApproachSignalDBm
	}
	return &ApproachDetector{
		enabled:      true,
		minSignalDBm: minSignalDBm,
		firing:       make(map[string]bool),
	}
}

// Name returns the detector identifier.
func (d *ApproachDetector) Name() string { return "approach" }

// Enabled reports whether the detector is active.
func (d *ApproachDetector) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}

// SetEnabled toggles the detector. Disabling clears episode state.
func (d *ApproachDetector) SetEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = enabled
	if !enabled {
		d.firing = make(map[string]bool)
	}
}

// Configure applies JSON configuration.
func (d *ApproachDetector) Configure(config json.RawMessage) error {
	var cfg struct {
		Enabled      *bool `json:"enabled"`
		MinSignalDBm *int  `json:"min_signal_dbm"`
	}
	if err := json.Unmarshal(config, &cfg); err != nil {
		return fmt.Errorf("approach config: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if cfg.Enabled != nil {
		d.enabled = *cfg.Enabled
	}
	if cfg.MinSignalDBm != nil {
		d.minSignalDBm = *cfg.MinSignalDBm
	}
	return nil
}

// Check evaluates one sighted profile.
func (d *ApproachDetector) Check(p profile.DeviceProfile) (Result, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.enabled {
		return Result{}, false
	}

	approaching := p.SignalTrend == scoring.TrendApproaching && p.LastSignal > d.minSignalDBm
	if !approaching {
		// Episode over; arm for the next one.
		delete(d.firing, p.MAC)
		return Result{}, false
	}
	if d.firing[p.MAC] {
		return Result{}, false
	}
	d.firing[p.MAC] = true
	return Result{
		Severity: alert.SeverityWarning,
		Message: fmt.Sprintf("device approaching: %s (%s) signal %d dBm and strengthening",
			p.DisplayName(), p.Manufacturer, p.LastSignal),
	}, true
}
