// Chasing Your Tail NG - Wireless Surveillance Detection Engine
// Copyright 2026 the Chasing Your Tail NG authors
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

// Package scoring holds the pure scoring math shared by the profile
// registry and the GPS correlator: recency weighting, encounter scores,
// signal trend classification, and the multi-location stalker score.
//
// Everything here is deterministic and side-effect free; state lives in
// the callers.
package scoring

import (
	"math"
	"time"
)

// Trend classifies the recent direction of a device's signal strength.
type Trend string

const (
	// TrendUnknown means there are too few readings to classify.
	TrendUnknown Trend = "unknown"

	// TrendStable means the signal moved at most TrendDeltaDBm either way.
	TrendStable Trend = "stable"

	// TrendApproaching means the signal strengthened by more than
	// TrendDeltaDBm across the window. Stronger signal, closer device.
	TrendApproaching Trend = "approaching"

	// TrendReceding means the signal weakened by more than TrendDeltaDBm
	// across the window.
	TrendReceding Trend = "receding"
)

const (
	// TrendWindow is how many trailing readings the trend looks at.
	TrendWindow = 5

	// TrendDeltaDBm is the dead band for TrendStable.
	TrendDeltaDBm = 5

	// staleRecencyWeight is used when the last-seen time is unknown.
	staleRecencyWeight = 0.1
)

// RecencyWeight returns 1/(1+days) where days is the age of lastSeen
// relative to now. A device seen right now weighs 1.0; a week ago, 0.125.
// A zero lastSeen (never observed, or imported without a timestamp) gets
// the flat stale weight 0.1.
func RecencyWeight(lastSeen, now time.Time) float64 {
	if lastSeen.IsZero() {
		return staleRecencyWeight
	}
	days := now.Sub(lastSeen).Hours() / 24
	if days < 0 {
		days = 0
	}
	return 1 / (1 + days)
}

// EncounterScore weights the raw encounter count by recency, so a device
// seen often but long ago ranks below one seen often and recently.
func EncounterScore(totalEncounters int, recency float64) float64 {
	return float64(totalEncounters) * recency
}

// SignalTrend classifies the direction of movement from a signal history
// in dBm, oldest first. Only the trailing TrendWindow readings count; the
// comparison is last-vs-first within that window.
func SignalTrend(history []int) Trend {
	if len(history) < 2 {
		return TrendUnknown
	}
	window := history
	if len(window) > TrendWindow {
		window = window[len(window)-TrendWindow:]
	}
	delta := window[len(window)-1] - window[0]
	switch {
	case delta > TrendDeltaDBm:
		return TrendApproaching
	case delta < -TrendDeltaDBm:
		return TrendReceding
	default:
		return TrendStable
	}
}

// StalkerScore ranks a device by how suspicious its multi-location
// appearance pattern is:
//
//	locations² × ln(totalHits+1) × recency
//
// The quadratic term makes appearing at many distinct places dominate;
// the log term damps raw hit counts so a chatty beacon at one spot does
// not outrank a quiet follower at three. Fewer than two distinct
// locations is not following, and scores zero regardless of hits.
func StalkerScore(locations, totalHits int, recency float64) float64 {
	if locations < 2 {
		return 0
	}
	return float64(locations*locations) * math.Log(float64(totalHits)+1) * recency
}
