// Chasing Your Tail NG - Wireless Surveillance Detection Engine
// Copyright 2026 the Chasing Your Tail NG authors
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

// Package detection implements the per-cycle correlators that turn
// profile state into alerts: cross-context correlation, watchlist hits,
// linger tracking, approach warnings, and doorbell arrival/departure
// diffing.
//
// Detectors are stateful but single-purpose. Each can be enabled,
// disabled, and reconfigured at runtime; the scan loops call them with
// the cycle's profile snapshots and publish whatever Results come back.
package detection

import (
	json "github.com/goccy/go-json"

	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/alert"
)

// Result is one alert-worthy finding from a detector.
type Result struct {
	Severity alert.Severity
	Message  string
}

// Detector is the common management surface. The evaluation entrypoints
// differ per detector and are called concretely by the scan loops.
type Detector interface {
	// Name returns a stable identifier for configuration and logs.
	Name() string

	// Enabled reports whether the detector is active.
	Enabled() bool

	// SetEnabled toggles the detector at runtime.
	SetEnabled(bool)

	// Configure applies detector-specific JSON configuration.
	Configure(config json.RawMessage) error
}

var (
	_ Detector = (*CrossContextDetector)(nil)
	_ Detector = (*WatchlistDetector)(nil)
	_ Detector = (*LingerTracker)(nil)
	_ Detector = (*ApproachDetector)(nil)
	_ Detector = (*ArrivalTracker)(nil)
)
