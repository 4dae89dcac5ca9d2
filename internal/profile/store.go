// Chasing Your Tail NG - Wireless Surveillance Detection Engine
// Copyright 2026 the Chasing Your Tail NG authors
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

package profile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/kismet"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/logging"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/scoring"
)

// Operating context tags recorded on profiles.
const (
	ContextStationary = "stationary"
	ContextRoaming    = "roaming"
	ContextWatchlist  = "watchlist"
)

// ErrNotFound is returned when a MAC has no profile.
var ErrNotFound = errors.New("profile not found")

// Store is the in-memory profile registry with JSON persistence. All
// methods are safe for concurrent use; reads get defensive copies.
type Store struct {
	mu       sync.RWMutex
	path     string
	profiles map[string]*DeviceProfile

	// order holds MACs in first-insertion order. Ranking ties break on
	// it, so equal-score devices keep a stable position across calls.
	order []string

	now func() time.Time
}

// NewStore creates a registry persisted at path. Call Load before first
// use to pick up prior state.
func NewStore(path string) *Store {
	return &Store{
		path:     path,
		profiles: make(map[string]*DeviceProfile),
		now:      time.Now,
	}
}

// Load reads the registry file. A missing file is a fresh start, not an
// error.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read profiles: %w", err)
	}

	var persisted map[string]*DeviceProfile
	if err := json.Unmarshal(data, &persisted); err != nil {
		return fmt.Errorf("parse profiles %s: %w", s.path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles = persisted
	if s.profiles == nil {
		s.profiles = make(map[string]*DeviceProfile)
	}

	// Rebuild insertion order deterministically: oldest first, MAC as
	// tie-break.
	s.order = s.order[:0]
	for mac := range s.profiles {
		s.order = append(s.order, mac)
	}
	sort.Slice(s.order, func(i, j int) bool {
		a, b := s.profiles[s.order[i]], s.profiles[s.order[j]]
		if !a.FirstSeen.Equal(b.FirstSeen) {
			return a.FirstSeen.Before(b.FirstSeen)
		}
		return s.order[i] < s.order[j]
	})

	logging.Info().Int("profiles", len(s.profiles)).Str("path", s.path).Msg("profile registry loaded")
	return nil
}

// Save writes the full registry atomically: temp file in the same
// directory, then rename.
func (s *Store) Save() error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s.profiles, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal profiles: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".profiles-*.json")
	if err != nil {
		return fmt.Errorf("create temp profiles: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp profiles: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp profiles: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace profiles: %w", err)
	}
	return nil
}

// ApplyObservation folds a sighting into the registry under the given
// operating context, creating the profile on first sight. Returns a copy
// of the updated profile and whether it was newly created.
func (s *Store) ApplyObservation(obs kismet.Observation, contextTag string) (DeviceProfile, bool) {
	mac := strings.ToUpper(obs.MAC)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[mac]
	created := false
	if !ok {
		p = &DeviceProfile{
			MAC:       mac,
			Group:     GroupUnknown,
			FirstSeen: obs.FirstSeen,
		}
		if p.FirstSeen.IsZero() {
			p.FirstSeen = now
		}
		s.profiles[mac] = p
		s.order = append(s.order, mac)
		created = true
	}

	if obs.LastSeen.After(p.LastSeen) {
		p.LastSeen = obs.LastSeen
	}
	if obs.Manufacturer != "" && obs.Manufacturer != "Unknown" {
		p.Manufacturer = obs.Manufacturer
	} else if p.Manufacturer == "" {
		p.Manufacturer = "Unknown"
	}
	p.SSIDs = mergeStrings(p.SSIDs, obs.SSIDs...)

	p.TotalEncounters++
	switch contextTag {
	case ContextStationary:
		p.StationaryEncounters++
	case ContextRoaming:
		p.RoamingEncounters++
	}
	p.ContextTags = mergeStrings(p.ContextTags, contextTag)
	// Cross-context means the device followed the user between home and
	// the road. Watchlist sightings do not count: the user flagged the
	// device, the device did not move between contexts.
	if hasTag(p.ContextTags, ContextStationary) && hasTag(p.ContextTags, ContextRoaming) {
		p.CrossContext = true
	}

	if obs.Signal != 0 {
		p.recordSignal(obs.Signal)
	}
	p.EncounterScore = scoring.EncounterScore(p.TotalEncounters, scoring.RecencyWeight(p.LastSeen, now))

	return p.clone(), created
}

// Get returns a copy of the profile for mac.
func (s *Store) Get(mac string) (DeviceProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[strings.ToUpper(mac)]
	if !ok {
		return DeviceProfile{}, false
	}
	return p.clone(), true
}

// Label assigns a name, group, and notes to a device. The profile is
// created if the device has not been sighted yet, so users can pre-label
// known MACs.
func (s *Store) Label(mac, label string, group Group, notes string) (DeviceProfile, error) {
	if group == "" {
		group = GroupUnknown
	}
	if !group.Valid() {
		return DeviceProfile{}, fmt.Errorf("invalid group %q", group)
	}
	mac = strings.ToUpper(mac)

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[mac]
	if !ok {
		p = &DeviceProfile{MAC: mac, Group: GroupUnknown, FirstSeen: s.now()}
		s.profiles[mac] = p
		s.order = append(s.order, mac)
	}
	p.Label = label
	p.Group = group
	if notes != "" {
		p.Notes = notes
	}
	return p.clone(), nil
}

// SetWatchlisted flags or unflags a device for watchlist-mode tracking.
// Flagging moves the device into the watchlist group; unflagging returns
// it to unknown (user-assigned groups are left alone).
func (s *Store) SetWatchlisted(mac string, on bool) (DeviceProfile, error) {
	mac = strings.ToUpper(mac)
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[mac]
	if !ok {
		if !on {
			return DeviceProfile{}, ErrNotFound
		}
		p = &DeviceProfile{MAC: mac, Group: GroupUnknown, FirstSeen: s.now()}
		s.profiles[mac] = p
		s.order = append(s.order, mac)
	}
	p.Watchlisted = on
	if on {
		p.Group = GroupWatchlist
	} else if p.Group == GroupWatchlist {
		p.Group = GroupUnknown
	}
	return p.clone(), nil
}

// Watchlist returns all watchlisted profiles in insertion order.
func (s *Store) Watchlist() []DeviceProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []DeviceProfile
	for _, mac := range s.order {
		if p := s.profiles[mac]; p.Watchlisted {
			out = append(out, p.clone())
		}
	}
	return out
}

// WatchlistMACs returns the watchlisted MACs as a set.
func (s *Store) WatchlistMACs() map[string]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]struct{})
	for mac, p := range s.profiles {
		if p.Watchlisted {
			out[mac] = struct{}{}
		}
	}
	return out
}

// TopVisitors ranks profiles by recency-weighted encounter score,
// highest first, and returns up to n. Ties keep insertion order.
func (s *Store) TopVisitors(n int) []DeviceProfile {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	ranked := make([]DeviceProfile, 0, len(s.order))
	for _, mac := range s.order {
		p := s.profiles[mac].clone()
		p.EncounterScore = scoring.EncounterScore(p.TotalEncounters, scoring.RecencyWeight(p.LastSeen, now))
		ranked = append(ranked, p)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].EncounterScore > ranked[j].EncounterScore
	})
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// PersonsOfInterest returns cross-context and watchlisted profiles,
// ranked like TopVisitors.
func (s *Store) PersonsOfInterest() []DeviceProfile {
	all := s.TopVisitors(0)
	var out []DeviceProfile
	for _, p := range all {
		if p.CrossContext || p.Watchlisted {
			out = append(out, p)
		}
	}
	return out
}

// All returns every profile in insertion order.
func (s *Store) All() []DeviceProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]DeviceProfile, 0, len(s.order))
	for _, mac := range s.order {
		out = append(out, s.profiles[mac].clone())
	}
	return out
}

// ClaimCrossContextAlert returns true exactly once per device: the first
// call after the device turns cross-context. The claim is persisted with
// the profile, so the alert does not refire after a restart.
func (s *Store) ClaimCrossContextAlert(mac string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[strings.ToUpper(mac)]
	if !ok || !p.CrossContext || p.CrossContextAlerted {
		return false
	}
	p.CrossContextAlerted = true
	return true
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Count returns the number of profiles.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles)
}
