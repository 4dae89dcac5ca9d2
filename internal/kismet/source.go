// Chasing Your Tail NG - Wireless Surveillance Detection Engine
// Copyright 2026 the Chasing Your Tail NG authors
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

// Package kismet reads device sightings out of Kismet capture databases.
//
// Kismet writes one SQLite file per capture session. The engine never
// writes to these files: the source opens every in-window capture
// read-only and pulls rows from the devices table, and the normalizer
// turns raw rows (including the JSON device blob) into Observations.
package kismet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // register the "sqlite" driver

	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/logging"
)

// ErrBackendUnavailable means no usable capture database exists right now:
// the glob matched nothing, or no in-window match could be opened. The
// scan loop treats this as a degraded cycle, not a fatal error.
var ErrBackendUnavailable = errors.New("kismet backend unavailable")

// Row is one raw record from the Kismet devices table. Device holds the
// JSON blob Kismet serializes per device; the normalizer digs SSIDs and
// the manufacturer out of it.
type Row struct {
	MAC             string
	Type            string
	Device          []byte
	FirstTime       int64
	LastTime        int64
	AvgLat          float64
	AvgLon          float64
	StrongestSignal int
}

// Source yields device rows seen since a cutoff.
type Source interface {
	// DevicesSince returns rows whose last_time is at or after since.
	DevicesSince(ctx context.Context, since time.Time) ([]Row, error)
}

// SQLiteSource reads the Kismet capture databases matched by a glob.
// Each query opens every capture modified within the lookback window,
// fresh and read-only, so capture rotation (Kismet starting a new file)
// never hides devices that only appear in an earlier in-window file.
type SQLiteSource struct {
	glob string
}

// NewSQLiteSource creates a source over the given glob pattern. A leading
// "~/" is expanded against the current user's home directory.
func NewSQLiteSource(glob string) *SQLiteSource {
	return &SQLiteSource{glob: expandHome(glob)}
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// CaptureStatus describes the capture files currently visible to the
// source. Zero Count means the backend is unavailable.
type CaptureStatus struct {
	Count       int       `json:"count"`
	Newest      string    `json:"newest,omitempty"`
	NewestMtime time.Time `json:"newest_mtime,omitempty"`
}

// Captures reports how many capture files match the glob and which one
// is newest. Used by the status surface; never an error, just emptiness.
func (s *SQLiteSource) Captures() CaptureStatus {
	matches, err := filepath.Glob(s.glob)
	if err != nil {
		return CaptureStatus{}
	}
	var st CaptureStatus
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		st.Count++
		if info.ModTime().After(st.NewestMtime) {
			st.Newest = m
			st.NewestMtime = info.ModTime()
		}
	}
	return st
}

// capturesSince returns the capture files modified at or after since,
// oldest first. A file untouched since the cutoff cannot hold rows inside
// the window. No glob matches at all means the backend is unavailable;
// matches that are all stale just mean no recent data.
func (s *SQLiteSource) capturesSince(since time.Time) ([]string, error) {
	matches, err := filepath.Glob(s.glob)
	if err != nil {
		return nil, fmt.Errorf("bad kismet glob %q: %w", s.glob, err)
	}
	type candidate struct {
		path  string
		mtime time.Time
	}
	total := 0
	var window []candidate
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		total++
		if info.ModTime().Before(since) {
			continue
		}
		window = append(window, candidate{path: m, mtime: info.ModTime()})
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: no capture matches %q", ErrBackendUnavailable, s.glob)
	}
	sort.Slice(window, func(i, j int) bool {
		return window[i].mtime.Before(window[j].mtime)
	})
	paths := make([]string, len(window))
	for i, c := range window {
		paths[i] = c.path
	}
	return paths, nil
}

// DevicesSince returns every device row seen at or after since, unioned
// across all capture files in the window. A MAC present in several files
// keeps its most recent row.
func (s *SQLiteSource) DevicesSince(ctx context.Context, since time.Time) ([]Row, error) {
	paths, err := s.capturesSince(since)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, nil
	}

	index := make(map[string]int)
	var out []Row
	opened := 0
	for _, path := range paths {
		rows, err := s.queryCapture(ctx, path, since)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logging.Warn().Err(err).Str("path", path).Msg("skipping unreadable capture")
			continue
		}
		opened++
		for _, r := range rows {
			if i, ok := index[r.MAC]; ok {
				// Files are processed oldest first; a later file's row
				// wins on an equal last_time.
				if r.LastTime >= out[i].LastTime {
					out[i] = r
				}
				continue
			}
			index[r.MAC] = len(out)
			out = append(out, r)
		}
	}
	if opened == 0 {
		return nil, fmt.Errorf("%w: no readable capture in window for %q", ErrBackendUnavailable, s.glob)
	}

	logging.Debug().
		Int("captures", opened).
		Int("rows", len(out)).
		Time("since", since).
		Msg("capture query complete")
	return out, nil
}

// queryCapture pulls the in-window device rows out of one capture file.
func (s *SQLiteSource) queryCapture(ctx context.Context, path string, since time.Time) ([]Row, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			logging.Warn().Err(cerr).Str("path", path).Msg("failed to close capture database")
		}
	}()

	const query = `SELECT devmac, type, device, first_time, last_time,
		avg_lat, avg_lon, strongest_signal
		FROM devices WHERE last_time >= ?`

	rows, err := db.QueryContext(ctx, query, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", path, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var device sql.Null[[]byte]
		var lat, lon sql.NullFloat64
		var signal sql.NullInt64
		if err := rows.Scan(&r.MAC, &r.Type, &device, &r.FirstTime, &r.LastTime,
			&lat, &lon, &signal); err != nil {
			logging.Warn().Err(err).Str("path", path).Msg("skipping unscannable device row")
			continue
		}
		if device.Valid {
			r.Device = device.V
		}
		r.AvgLat = lat.Float64
		r.AvgLon = lon.Float64
		r.StrongestSignal = int(signal.Int64)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", path, err)
	}
	return out, nil
}
