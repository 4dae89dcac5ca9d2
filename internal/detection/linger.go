// Chasing Your Tail NG - Wireless Surveillance Detection Engine
// Copyright 2026 the Chasing Your Tail NG authors
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

package detection

import (
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/alert"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/profile"
)

// DefaultLingerThreshold is how long an unknown device must stay
// continuously present before the linger warning fires.
const DefaultLingerThreshold = 5 * time.Minute

type lingerStreak struct {
	since   time.Time
	alerted bool
}

// LingerTracker warns when an unidentified device stays continuously
// present past a threshold. A streak resets when the device disappears
// for a cycle or when the user labels it; each streak alerts at most
// once.
type LingerTracker struct {
	mu        sync.Mutex
	enabled   bool
	threshold time.Duration
	streaks   map[string]*lingerStreak

	now func() time.Time
}

// NewLingerTracker creates the tracker, enabled, with the given
// threshold (DefaultLingerThreshold if zero).
func NewLingerTracker(threshold time.Duration) *LingerTracker {
	if threshold <= 0 {
		threshold = DefaultLingerThreshold
	}
	return &LingerTracker{
		enabled:   true,
		threshold: threshold,
		streaks:   make(map[string]*lingerStreak),
		now:       time.Now,
	}
}

// Name returns the detector identifier.
func (d *LingerTracker) Name() string { return "linger" }

// Enabled reports whether the detector is active.
func (d *LingerTracker) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}

// SetEnabled toggles the detector. Disabling clears all streaks.
func (d *LingerTracker) SetEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = enabled
	if !enabled {
		d.streaks = make(map[string]*lingerStreak)
	}
}

// Configure applies JSON configuration.
func (d *LingerTracker) Configure(config json.RawMessage) error {
	var cfg struct {
		Enabled          *bool `json:"enabled"`
		ThresholdSeconds *int  `json:"threshold_seconds"`
	}
	if err := json.Unmarshal(config, &cfg); err != nil {
		return fmt.Errorf("linger config: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if cfg.Enabled != nil {
		d.enabled = *cfg.Enabled
	}
	if cfg.ThresholdSeconds != nil {
		if *cfg.ThresholdSeconds <= 0 {
			return fmt.Errorf("linger config: threshold_seconds must be positive")
		}
		d.threshold = time.Duration(*cfg.ThresholdSeconds) * time.Second
	}
	return nil
}

// ObserveCycle folds one scan cycle's present devices into the streaks
// and returns any new linger warnings. Devices absent this cycle lose
// their streak; known devices never accumulate one.
func (d *LingerTracker) ObserveCycle(present []profile.DeviceProfile) []Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.enabled {
		return nil
	}
	now := d.now()

	var results []Result
	seen := make(map[string]struct{}, len(present))
	for i := range present {
		p := &present[i]
		seen[p.MAC] = struct{}{}

		if p.Known() {
			delete(d.streaks, p.MAC)
			continue
		}
		st, ok := d.streaks[p.MAC]
		if !ok {
			d.streaks[p.MAC] = &lingerStreak{since: now}
			continue
		}
		if !st.alerted && now.Sub(st.since) >= d.threshold {
			st.alerted = true
			results = append(results, Result{
				Severity: alert.SeverityWarning,
				Message: fmt.Sprintf("unknown device lingering: %s (%s) present for %s, signal %d dBm",
					p.MAC, p.Manufacturer, now.Sub(st.since).Round(time.Second), p.LastSignal),
			})
		}
	}

	for mac := range d.streaks {
		if _, ok := seen[mac]; !ok {
			delete(d.streaks, mac)
		}
	}
	return results
}
