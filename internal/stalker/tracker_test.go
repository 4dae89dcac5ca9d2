// Chasing Your Tail NG - Wireless Surveillance Detection Engine
// Copyright 2026 the Chasing Your Tail NG authors
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

package stalker

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/kismet"
)

type fixedSource struct {
	rows []kismet.Row
	err  error
}

func (f *fixedSource) DevicesSince(context.Context, time.Time) ([]kismet.Row, error) {
	return f.rows, f.err
}

func TestHaversineKm(t *testing.T) {
	// One degree of latitude is roughly 111 km.
	d := HaversineKm(40.0, -74.0, 41.0, -74.0)
	if math.Abs(d-111.2) > 1.0 {
		t.Errorf("one degree latitude = %.2f km, want ~111.2", d)
	}
	if d := HaversineKm(40.0, -74.0, 40.0, -74.0); d != 0 {
		t.Errorf("identical points = %v, want 0", d)
	}
	// 0.001 degrees of latitude is roughly 111 m.
	d = HaversineKm(40.0, -74.0, 40.001, -74.0)
	if math.Abs(d-0.111) > 0.01 {
		t.Errorf("0.001 degree latitude = %.4f km, want ~0.111", d)
	}
}

func testTracker(t *testing.T, skip SkipFunc) *Tracker {
	t.Helper()
	tr := NewTracker(Options{
		Path: filepath.Join(t.TempDir(), "stalker.json"),
		Skip: skip,
	})
	tr.now = func() time.Time {
		return time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	}
	return tr
}

func gpsObs(mac string, lat, lon float64, seen time.Time) kismet.Observation {
	return kismet.Observation{MAC: mac, Lat: lat, Lon: lon, HasGPS: true, LastSeen: seen}
}

func TestScanFeedsCorrelator(t *testing.T) {
	tr := testTracker(t, nil)
	now := tr.now()
	tr.AddCheckpoint("home", 40.0, -74.0)

	// One row in radius, one without a GPS fix, one far from every
	// checkpoint.
	src := &fixedSource{rows: []kismet.Row{
		{MAC: "aa:00:00:00:00:01", LastTime: now.Unix(), AvgLat: 40.001, AvgLon: -74.0},
		{MAC: "bb:00:00:00:00:02", LastTime: now.Unix()},
		{MAC: "cc:00:00:00:00:03", LastTime: now.Unix(), AvgLat: 41.0, AvgLon: -74.0},
	}}

	recorded, err := tr.Scan(context.Background(), src, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	if recorded != 1 {
		t.Errorf("recorded %d observations, want 1", recorded)
	}
	if _, ok := tr.Get("aa:00:00:00:00:01"); !ok {
		t.Error("in-radius device missing after scan")
	}
	if _, ok := tr.Get("cc:00:00:00:00:03"); ok {
		t.Error("out-of-radius device should not be tracked")
	}

	// Scan persists; a fresh tracker sees the result.
	tr2 := NewTracker(Options{Path: tr.path})
	if err := tr2.Load(); err != nil {
		t.Fatal(err)
	}
	if _, ok := tr2.Get("aa:00:00:00:00:01"); !ok {
		t.Error("scan result not persisted")
	}
}

func TestScanPropagatesBackendError(t *testing.T) {
	tr := testTracker(t, nil)
	src := &fixedSource{err: kismet.ErrBackendUnavailable}
	if _, err := tr.Scan(context.Background(), src, tr.now()); err == nil {
		t.Error("backend error should propagate")
	}
}

func TestRecordRequiresNearbyCheckpoint(t *testing.T) {
	tr := testTracker(t, nil)
	now := tr.now()

	// No checkpoints at all: everything is discarded.
	if tr.RecordObservation(gpsObs("aa:00:00:00:00:01", 40.0, -74.0, now)) {
		t.Error("no checkpoints: observation should be discarded")
	}

	tr.AddCheckpoint("home", 40.0, -74.0)

	// Within the 1 km accept radius.
	if !tr.RecordObservation(gpsObs("aa:00:00:00:00:01", 40.001, -74.0, now)) {
		t.Error("observation 111 m from checkpoint should record")
	}
	// Roughly 5.5 km away: outside the radius.
	if tr.RecordObservation(gpsObs("aa:00:00:00:00:02", 40.05, -74.0, now)) {
		t.Error("observation 5.5 km from checkpoint should be discarded")
	}
}

func TestNearbyRevisitsCoalesce(t *testing.T) {
	tr := testTracker(t, nil)
	now := tr.now()
	tr.AddCheckpoint("home", 40.0, -74.0)

	// Two observations ~111 m apart: same location, hits accumulate.
	tr.RecordObservation(gpsObs("aa:00:00:00:00:01", 40.0, -74.0, now))
	tr.RecordObservation(gpsObs("aa:00:00:00:00:01", 40.001, -74.0, now.Add(time.Minute)))

	track, ok := tr.Get("aa:00:00:00:00:01")
	if !ok {
		t.Fatal("track missing")
	}
	if track.Locations() != 1 {
		t.Errorf("locations = %d, want 1 (coalesced)", track.Locations())
	}
	if track.TotalHits != 2 {
		t.Errorf("total hits = %d, want 2", track.TotalHits)
	}
	if track.Score != 0 {
		t.Errorf("single location must score 0, got %v", track.Score)
	}
}

func TestDistinctLocationsScore(t *testing.T) {
	tr := testTracker(t, nil)
	now := tr.now()
	tr.AddCheckpoint("home", 40.0, -74.0)
	tr.AddCheckpoint("office", 41.0, -74.0) // ~111 km away

	tr.RecordObservation(gpsObs("aa:00:00:00:00:01", 40.0, -74.0, now))
	tr.RecordObservation(gpsObs("aa:00:00:00:00:01", 41.0, -74.0, now))

	track, _ := tr.Get("aa:00:00:00:00:01")
	if track.Locations() != 2 {
		t.Fatalf("locations = %d, want 2", track.Locations())
	}
	// 2² × ln(3) × 1.0
	want := 4 * math.Log(3)
	if math.Abs(track.Score-want) > 1e-9 {
		t.Errorf("score = %v, want %v", track.Score, want)
	}
}

func TestReportRankingAndLimit(t *testing.T) {
	tr := testTracker(t, nil)
	now := tr.now()
	tr.AddCheckpoint("a", 40.0, -74.0)
	tr.AddCheckpoint("b", 41.0, -74.0)
	tr.AddCheckpoint("c", 42.0, -74.0)

	// follower: three locations. tagalong: two. homebody: one (score 0).
	for _, lat := range []float64{40.0, 41.0, 42.0} {
		tr.RecordObservation(gpsObs("aa:00:00:00:00:01", lat, -74.0, now))
	}
	for _, lat := range []float64{40.0, 41.0} {
		tr.RecordObservation(gpsObs("aa:00:00:00:00:02", lat, -74.0, now))
	}
	tr.RecordObservation(gpsObs("aa:00:00:00:00:03", 40.0, -74.0, now))

	report := tr.Report(10)
	if len(report) != 2 {
		t.Fatalf("report has %d tracks, want 2 (zero scores excluded)", len(report))
	}
	if report[0].MAC != "AA:00:00:00:00:01" {
		t.Errorf("rank 1 = %s, want the three-location device", report[0].MAC)
	}

	if got := tr.Report(1); len(got) != 1 {
		t.Errorf("Report(1) returned %d", len(got))
	}
}

func TestSkipFuncExcludesDevices(t *testing.T) {
	tr := testTracker(t, func(mac string) bool {
		return mac == "AA:00:00:00:00:01"
	})
	tr.AddCheckpoint("home", 40.0, -74.0)

	if tr.RecordObservation(gpsObs("aa:00:00:00:00:01", 40.0, -74.0, tr.now())) {
		t.Error("skip func should exclude the device")
	}
	if !tr.RecordObservation(gpsObs("aa:00:00:00:00:02", 40.0, -74.0, tr.now())) {
		t.Error("non-skipped device should record")
	}
}

func TestObservationWithoutGPSIgnored(t *testing.T) {
	tr := testTracker(t, nil)
	tr.AddCheckpoint("home", 40.0, -74.0)
	obs := kismet.Observation{MAC: "aa:00:00:00:00:01", HasGPS: false}
	if tr.RecordObservation(obs) {
		t.Error("observation without a fix must be ignored")
	}
}

func TestAddCheckpointValidation(t *testing.T) {
	tr := testTracker(t, nil)
	if _, err := tr.AddCheckpoint("bad", 91.0, 0); err == nil {
		t.Error("latitude 91 should be rejected")
	}
	if _, err := tr.AddCheckpoint("bad", 0, -181.0); err == nil {
		t.Error("longitude -181 should be rejected")
	}
}

func TestTrackerSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stalker.json")
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)

	t1 := NewTracker(Options{Path: path})
	t1.now = func() time.Time { return now }
	t1.AddCheckpoint("home", 40.0, -74.0)
	t1.AddCheckpoint("office", 41.0, -74.0)
	t1.RecordObservation(gpsObs("aa:00:00:00:00:01", 40.0, -74.0, now))
	t1.RecordObservation(gpsObs("aa:00:00:00:00:01", 41.0, -74.0, now))
	if err := t1.Save(); err != nil {
		t.Fatal(err)
	}

	t2 := NewTracker(Options{Path: path})
	t2.now = func() time.Time { return now }
	if err := t2.Load(); err != nil {
		t.Fatal(err)
	}
	if len(t2.Checkpoints()) != 2 {
		t.Errorf("checkpoints lost: %d", len(t2.Checkpoints()))
	}
	track, ok := t2.Get("aa:00:00:00:00:01")
	if !ok {
		t.Fatal("track lost across save/load")
	}
	if track.Locations() != 2 || track.TotalHits != 2 {
		t.Errorf("track state lost: %+v", track)
	}
	if len(t2.Report(10)) != 1 {
		t.Error("report should still rank the restored track")
	}
}

func TestLoadMissingFileIsFreshStart(t *testing.T) {
	tr := NewTracker(Options{Path: filepath.Join(t.TempDir(), "absent.json")})
	if err := tr.Load(); err != nil {
		t.Errorf("missing file should not error: %v", err)
	}
}
