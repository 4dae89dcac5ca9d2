// Chasing Your Tail NG - Wireless Surveillance Detection Engine
// Copyright 2026 the Chasing Your Tail NG authors
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

package controller

import (
	"fmt"
	"strings"
)

// Mode is an operating context. Exactly one mode's scan loop runs at a
// time; switching modes is a full stop of the old loop before the new
// one starts.
type Mode string

const (
	// ModeStationary is the parked posture: the user is at a fixed
	// location and the engine watches who shows up around them.
	ModeStationary Mode = "STATIONARY"

	// ModeRoaming is the moving posture: faster scans, GPS correlation,
	// approach warnings.
	ModeRoaming Mode = "ROAMING"

	// ModeWatchlist focuses on explicitly flagged devices.
	ModeWatchlist Mode = "WATCHLIST"

	// ModeScreensaver scans only while the workstation is idle.
	ModeScreensaver Mode = "SCREENSAVER"
)

// ParseMode validates and canonicalizes a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToUpper(strings.TrimSpace(s))) {
	case ModeStationary:
		return ModeStationary, nil
	case ModeRoaming:
		return ModeRoaming, nil
	case ModeWatchlist:
		return ModeWatchlist, nil
	case ModeScreensaver:
		return ModeScreensaver, nil
	}
	return "", fmt.Errorf("unknown mode %q (want STATIONARY, ROAMING, WATCHLIST, or SCREENSAVER)", s)
}
