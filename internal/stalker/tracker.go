// Chasing Your Tail NG - Wireless Surveillance Detection Engine
// Copyright 2026 the Chasing Your Tail NG authors
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

// Package stalker correlates device sightings across physical locations.
// The user drops GPS checkpoints as they move through their day; devices
// that keep showing up near multiple distinct checkpoints accumulate a
// stalker score and surface in the ranked report.
package stalker

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/kismet"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/logging"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/scoring"
)

// Defaults for the distance thresholds, in kilometers.
const (
	DefaultAcceptRadiusKm  = 1.0
	DefaultMinSeparationKm = 0.5
	DefaultTopN            = 20
)

// Checkpoint is a user-dropped reference location.
type Checkpoint struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	CreatedAt time.Time `json:"created_at"`
}

// Sighting is a distinct location at which a device has been observed.
// Observations landing within the separation threshold of an existing
// sighting count as revisits, not new locations.
type Sighting struct {
	CheckpointID string    `json:"checkpoint_id"`
	Lat          float64   `json:"lat"`
	Lon          float64   `json:"lon"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	Hits         int       `json:"hits"`
}

// Track is the accumulated multi-location record for one device.
type Track struct {
	MAC       string     `json:"mac"`
	Sightings []Sighting `json:"sightings"`
	TotalHits int        `json:"total_hits"`
	LastSeen  time.Time  `json:"last_seen"`
	Score     float64    `json:"score"`
}

// Locations returns the count of distinct sighting locations.
func (t *Track) Locations() int { return len(t.Sightings) }

// SkipFunc filters devices out of GPS correlation entirely. The engine
// uses it to exclude devices already explained by the stationary context
// (the home devices travel with the user's data, not with the user).
type SkipFunc func(mac string) bool

// persisted is the on-disk shape of the tracker state.
type persisted struct {
	Checkpoints []Checkpoint      `json:"checkpoints"`
	Tracks      map[string]*Track `json:"tracks"`
	Order       []string          `json:"order"`
}

// Tracker is the GPS correlator. All methods are safe for concurrent use.
type Tracker struct {
	mu          sync.RWMutex
	path        string
	checkpoints []Checkpoint
	tracks      map[string]*Track

	// order holds MACs in first-track order for stable ranking ties.
	order []string

	acceptRadiusKm  float64
	minSeparationKm float64
	topN            int

	skip SkipFunc
	now  func() time.Time
}

// Options configures a Tracker. Zero values take the package defaults.
type Options struct {
	Path            string
	AcceptRadiusKm  float64
	MinSeparationKm float64
	TopN            int
	Skip            SkipFunc
}

// NewTracker creates a GPS correlator persisted at opts.Path.
func NewTracker(opts Options) *Tracker {
	if opts.AcceptRadiusKm <= 0 {
		opts.AcceptRadiusKm = DefaultAcceptRadiusKm
	}
	if opts.MinSeparationKm <= 0 {
		opts.MinSeparationKm = DefaultMinSeparationKm
	}
	if opts.TopN <= 0 {
		opts.TopN = DefaultTopN
	}
	return &Tracker{
		path:            opts.Path,
		tracks:          make(map[string]*Track),
		acceptRadiusKm:  opts.AcceptRadiusKm,
		minSeparationKm: opts.MinSeparationKm,
		topN:            opts.TopN,
		skip:            opts.Skip,
		now:             time.Now,
	}
}

// AddCheckpoint registers a new reference location and returns it.
func (t *Tracker) AddCheckpoint(name string, lat, lon float64) (Checkpoint, error) {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return Checkpoint{}, fmt.Errorf("invalid coordinates %.4f,%.4f", lat, lon)
	}
	cp := Checkpoint{
		ID:        uuid.NewString(),
		Name:      name,
		Lat:       lat,
		Lon:       lon,
		CreatedAt: t.now().UTC(),
	}
	t.mu.Lock()
	t.checkpoints = append(t.checkpoints, cp)
	t.mu.Unlock()
	logging.Info().Str("name", name).Float64("lat", lat).Float64("lon", lon).Msg("checkpoint added")
	return cp, nil
}

// Checkpoints returns all registered checkpoints.
func (t *Tracker) Checkpoints() []Checkpoint {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Checkpoint, len(t.checkpoints))
	copy(out, t.checkpoints)
	return out
}

// RecordObservation folds one GPS-bearing observation into the tracks.
// Observations without a fix, outside the accept radius of every
// checkpoint, or filtered by the skip function are dropped. Returns true
// when the observation was recorded.
func (t *Tracker) RecordObservation(obs kismet.Observation) bool {
	if !obs.HasGPS {
		return false
	}
	mac := strings.ToUpper(obs.MAC)
	if t.skip != nil && t.skip(mac) {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	cpID, dist := t.nearestCheckpoint(obs.Lat, obs.Lon)
	if cpID == "" || dist > t.acceptRadiusKm {
		return false
	}

	tr, ok := t.tracks[mac]
	if !ok {
		tr = &Track{MAC: mac}
		t.tracks[mac] = tr
		t.order = append(t.order, mac)
	}

	seen := obs.LastSeen
	if seen.IsZero() {
		seen = t.now().UTC()
	}

	// Coalesce with an existing sighting when the device reappears at
	// (effectively) the same spot.
	merged := false
	for i := range tr.Sightings {
		s := &tr.Sightings[i]
		if HaversineKm(s.Lat, s.Lon, obs.Lat, obs.Lon) < t.minSeparationKm {
			s.Hits++
			if seen.After(s.LastSeen) {
				s.LastSeen = seen
			}
			merged = true
			break
		}
	}
	if !merged {
		tr.Sightings = append(tr.Sightings, Sighting{
			CheckpointID: cpID,
			Lat:          obs.Lat,
			Lon:          obs.Lon,
			FirstSeen:    seen,
			LastSeen:     seen,
			Hits:         1,
		})
	}

	tr.TotalHits++
	if seen.After(tr.LastSeen) {
		tr.LastSeen = seen
	}
	tr.Score = scoring.StalkerScore(len(tr.Sightings), tr.TotalHits,
		scoring.RecencyWeight(tr.LastSeen, t.now()))
	return true
}

// Scan runs the correlation pipeline on demand: it queries the backend
// over the lookback window, folds every GPS-bearing row into the tracks,
// and persists the result. Returns how many observations were recorded.
func (t *Tracker) Scan(ctx context.Context, src kismet.Source, since time.Time) (int, error) {
	rows, err := src.DevicesSince(ctx, since)
	if err != nil {
		return 0, err
	}
	recorded := 0
	for i := range rows {
		if ctx.Err() != nil {
			return recorded, ctx.Err()
		}
		if t.RecordObservation(kismet.Normalize(rows[i])) {
			recorded++
		}
	}
	if err := t.Save(); err != nil {
		return recorded, fmt.Errorf("persist after scan: %w", err)
	}
	logging.Info().Int("rows", len(rows)).Int("recorded", recorded).Msg("stalker scan complete")
	return recorded, nil
}

// nearestCheckpoint must be called with the lock held.
func (t *Tracker) nearestCheckpoint(lat, lon float64) (string, float64) {
	bestID := ""
	bestDist := math.MaxFloat64
	for i := range t.checkpoints {
		cp := &t.checkpoints[i]
		if d := HaversineKm(cp.Lat, cp.Lon, lat, lon); d < bestDist {
			bestID = cp.ID
			bestDist = d
		}
	}
	return bestID, bestDist
}

// Report returns up to n tracks with a positive score, highest first.
// Ties keep first-track order. n <= 0 uses the configured top-N.
func (t *Tracker) Report(n int) []Track {
	if n <= 0 {
		n = t.topN
	}
	now := t.now()

	t.mu.RLock()
	defer t.mu.RUnlock()

	ranked := make([]Track, 0, len(t.order))
	for _, mac := range t.order {
		tr := t.tracks[mac]
		cp := *tr
		cp.Sightings = append([]Sighting(nil), tr.Sightings...)
		cp.Score = scoring.StalkerScore(len(cp.Sightings), cp.TotalHits,
			scoring.RecencyWeight(cp.LastSeen, now))
		if cp.Score > 0 {
			ranked = append(ranked, cp)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// Get returns the track for one device.
func (t *Tracker) Get(mac string) (Track, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tr, ok := t.tracks[strings.ToUpper(mac)]
	if !ok {
		return Track{}, false
	}
	cp := *tr
	cp.Sightings = append([]Sighting(nil), tr.Sightings...)
	return cp, true
}

// Load reads persisted state. A missing file is a fresh start.
func (t *Tracker) Load() error {
	data, err := os.ReadFile(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read stalker data: %w", err)
	}
	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("parse stalker data %s: %w", t.path, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.checkpoints = p.Checkpoints
	t.tracks = p.Tracks
	if t.tracks == nil {
		t.tracks = make(map[string]*Track)
	}
	t.order = p.Order
	// Repair order if the file predates it or was edited by hand.
	if len(t.order) != len(t.tracks) {
		t.order = t.order[:0]
		for mac := range t.tracks {
			t.order = append(t.order, mac)
		}
		sort.Strings(t.order)
	}
	logging.Info().
		Int("checkpoints", len(t.checkpoints)).
		Int("tracks", len(t.tracks)).
		Msg("stalker data loaded")
	return nil
}

// Save writes the full state atomically.
func (t *Tracker) Save() error {
	t.mu.RLock()
	data, err := json.MarshalIndent(persisted{
		Checkpoints: t.checkpoints,
		Tracks:      t.tracks,
		Order:       t.order,
	}, "", "  ")
	t.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal stalker data: %w", err)
	}

	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create stalker dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".stalker-*.json")
	if err != nil {
		return fmt.Errorf("create temp stalker file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp stalker file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp stalker file: %w", err)
	}
	if err := os.Rename(tmpName, t.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace stalker file: %w", err)
	}
	return nil
}
