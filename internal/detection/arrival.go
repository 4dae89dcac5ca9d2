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

// DefaultUnknownStreakWarning is the arrival count at which a repeat
// unknown visitor escalates from INFO to WARNING.
const DefaultUnknownStreakWarning = 3

// ArrivalTracker implements doorbell-style presence diffing: it compares
// the devices present this cycle against the previous cycle and reports
// arrivals and departures. Repeat arrivals by the same unknown device
// escalate. The first cycle only records the baseline.
type ArrivalTracker struct {
	mu            sync.Mutex
	enabled       bool
	streakWarning int
	knownArrivals bool

	primed        bool
	prev          map[string]string
	arrivalCounts map[string]int
}

// NewArrivalTracker creates the tracker, enabled. knownArrivals controls
// whether labeled devices also produce arrival alerts.
func NewArrivalTracker(streakWarning int, knownArrivals bool) *ArrivalTracker {
	if streakWarning < 1 {
		streakWarning = DefaultUnknownStreakWarning
	}
	return &ArrivalTracker{
		enabled:       true,
		streakWarning: streakWarning,
		knownArrivals: knownArrivals,
		prev:          make(map[string]string),
		arrivalCounts: make(map[string]int),
	}
}

// Name returns the detector identifier.
func (d *ArrivalTracker) Name() string { return "arrival" }

// Enabled reports whether the detector is active.
func (d *ArrivalTracker) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}

// SetEnabled toggles the detector. Disabling drops the baseline, so
// re-enabling primes again instead of reporting a flood of arrivals.
func (d *ArrivalTracker) SetEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = enabled
	if !enabled {
		d.primed = false
		d.prev = make(map[string]string)
	}
}

// Configure applies JSON configuration.
func (d *ArrivalTracker) Configure(config json.RawMessage) error {
	var cfg struct {
		Enabled       *bool `json:"enabled"`
		StreakWarning *int  `json:"streak_warning"`
		KnownArrivals *bool `json:"known_arrivals"`
	}
	if err := json.Unmarshal(config, &cfg); err != nil {
		return fmt.Errorf("arrival config: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if cfg.Enabled != nil {
		d.enabled = *cfg.Enabled
	}
	if cfg.StreakWarning != nil {
		if *cfg.StreakWarning < 1 {
			return fmt.Errorf("arrival config: streak_warning must be at least 1")
		}
		d.streakWarning = *cfg.StreakWarning
	}
	if cfg.KnownArrivals != nil {
		d.knownArrivals = *cfg.KnownArrivals
	}
	return nil
}

// ObserveCycle diffs this cycle's present devices against the previous
// cycle and returns arrival and departure alerts.
func (d *ArrivalTracker) ObserveCycle(present []profile.DeviceProfile) []Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.enabled {
		return nil
	}

	current := make(map[string]string, len(present))
	known := make(map[string]bool, len(present))
	for i := range present {
		p := &present[i]
		current[p.MAC] = p.DisplayName()
		known[p.MAC] = p.Known()
	}

	if !d.primed {
		d.primed = true
		d.prev = current
		return nil
	}

	var results []Result
	for i := range present {
		p := &present[i]
		if _, was := d.prev[p.MAC]; was {
			continue
		}
		d.arrivalCounts[p.MAC]++
		switch {
		case !known[p.MAC] && d.arrivalCounts[p.MAC] >= d.streakWarning:
			results = append(results, Result{
				Severity: alert.SeverityWarning,
				Message: fmt.Sprintf("repeat unknown arrival: %s (%s), %d visits",
					p.MAC, p.Manufacturer, d.arrivalCounts[p.MAC]),
			})
		case !known[p.MAC]:
			results = append(results, Result{
				Severity: alert.SeverityInfo,
				Message:  fmt.Sprintf("unknown device arrived: %s (%s)", p.MAC, p.Manufacturer),
			})
		case d.knownArrivals:
			results = append(results, Result{
				Severity: alert.SeverityInfo,
				Message:  fmt.Sprintf("arrived: %s", p.DisplayName()),
			})
		}
	}
	for mac, name := range d.prev {
		if _, still := current[mac]; !still {
			results = append(results, Result{
				Severity: alert.SeverityInfo,
				Message:  fmt.Sprintf("departed: %s", name),
			})
		}
	}

	d.prev = current
	return results
}
