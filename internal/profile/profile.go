// Chasing Your Tail NG - Wireless Surveillance Detection Engine
// Copyright 2026 the Chasing Your Tail NG authors
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

// Package profile maintains the long-lived device registry: one profile
// per MAC, accumulated across every scan cycle and persisted as a single
// JSON document. The registry is the engine's memory; detectors read it,
// scan loops feed it, and the API exposes it.
package profile

import (
	"time"

	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/scoring"
)

// Group is the user-assigned classification of a device.
type Group string

const (
	GroupUnknown   Group = "unknown"
	GroupSuspect   Group = "suspect"
	GroupWatchlist Group = "watchlist"
	GroupHome      Group = "home"
	GroupOther     Group = "other"
)

// Valid reports whether g is a defined group.
func (g Group) Valid() bool {
	switch g {
	case GroupUnknown, GroupSuspect, GroupWatchlist, GroupHome, GroupOther:
		return true
	}
	return false
}

// maxSignalHistory caps the per-device signal history; the oldest reading
// is evicted first.
const maxSignalHistory = 20

// DeviceProfile is the accumulated record for one MAC.
type DeviceProfile struct {
	MAC          string `json:"mac"`
	Label        string `json:"label,omitempty"`
	Group        Group  `json:"group"`
	Manufacturer string `json:"manufacturer"`
	Notes        string `json:"notes,omitempty"`

	SSIDs       []string `json:"ssids,omitempty"`
	ContextTags []string `json:"context_tags,omitempty"`

	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`

	TotalEncounters      int `json:"total_encounters"`
	StationaryEncounters int `json:"stationary_encounters"`
	RoamingEncounters    int `json:"roaming_encounters"`

	EncounterScore float64 `json:"encounter_score"`

	SignalHistory []int         `json:"signal_history,omitempty"`
	LastSignal    int           `json:"last_signal"`
	SignalTrend   scoring.Trend `json:"signal_trend"`

	Watchlisted bool `json:"watchlisted"`

	// CrossContext is sticky: once a device has been seen in more than
	// one operating context it stays flagged, even if later sightings
	// all land in one context.
	CrossContext bool `json:"cross_context"`

	// CrossContextAlerted records that the one-time cross-context
	// critical alert has fired, so it survives restarts.
	CrossContextAlerted bool `json:"cross_context_alerted,omitempty"`
}

// Known reports whether the user has identified this device as benign.
// Suspect and watchlisted devices are never "known": a label on them is
// a note, not a clearance, and they keep getting the unknown-device
// treatment (linger streaks, GPS correlation).
func (p *DeviceProfile) Known() bool {
	switch p.Group {
	case GroupSuspect, GroupWatchlist:
		return false
	}
	return p.Label != "" || p.Group == GroupHome || p.Group == GroupOther
}

// DisplayName is the label if set, otherwise the MAC.
func (p *DeviceProfile) DisplayName() string {
	if p.Label != "" {
		return p.Label
	}
	return p.MAC
}

// recordSignal appends a reading, evicting the oldest past the cap, and
// recomputes the trend.
func (p *DeviceProfile) recordSignal(dbm int) {
	p.SignalHistory = append(p.SignalHistory, dbm)
	if len(p.SignalHistory) > maxSignalHistory {
		p.SignalHistory = p.SignalHistory[len(p.SignalHistory)-maxSignalHistory:]
	}
	p.LastSignal = dbm
	p.SignalTrend = scoring.SignalTrend(p.SignalHistory)
}

// mergeStrings appends items not already present, preserving order.
func mergeStrings(existing []string, items ...string) []string {
	for _, item := range items {
		if item == "" {
			continue
		}
		found := false
		for _, e := range existing {
			if e == item {
				found = true
				break
			}
		}
		if !found {
			existing = append(existing, item)
		}
	}
	return existing
}

// clone returns a deep copy safe to hand outside the store's lock.
func (p *DeviceProfile) clone() DeviceProfile {
	cp := *p
	cp.SSIDs = append([]string(nil), p.SSIDs...)
	cp.ContextTags = append([]string(nil), p.ContextTags...)
	cp.SignalHistory = append([]int(nil), p.SignalHistory...)
	return cp
}
