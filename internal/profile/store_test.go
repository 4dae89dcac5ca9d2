// Chasing Your Tail NG - Wireless Surveillance Detection Engine
// Copyright 2026 the Chasing Your Tail NG authors
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

package profile

import (
	"bytes"
	"encoding/csv"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/kismet"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/scoring"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(filepath.Join(t.TempDir(), "profiles.json"))
	s.now = func() time.Time {
		return time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	}
	return s
}

func obsAt(mac string, seen time.Time, signal int) kismet.Observation {
	return kismet.Observation{
		MAC:       mac,
		FirstSeen: seen,
		LastSeen:  seen,
		Signal:    signal,
	}
}

func TestApplyObservationCounts(t *testing.T) {
	s := testStore(t)
	now := s.now()

	var last DeviceProfile
	for i := 0; i < 5; i++ {
		last, _ = s.ApplyObservation(obsAt("aa:bb:cc:dd:ee:01", now, -70), ContextStationary)
	}
	if last.TotalEncounters != 5 {
		t.Errorf("TotalEncounters = %d, want 5", last.TotalEncounters)
	}
	if last.StationaryEncounters != 5 {
		t.Errorf("StationaryEncounters = %d, want 5", last.StationaryEncounters)
	}
	if last.RoamingEncounters != 0 {
		t.Errorf("RoamingEncounters = %d, want 0", last.RoamingEncounters)
	}
}

func TestApplyObservationCreatesOnce(t *testing.T) {
	s := testStore(t)
	now := s.now()

	_, created := s.ApplyObservation(obsAt("aa:bb:cc:dd:ee:01", now, -70), ContextStationary)
	if !created {
		t.Error("first observation should create the profile")
	}
	_, created = s.ApplyObservation(obsAt("AA:BB:CC:DD:EE:01", now, -70), ContextStationary)
	if created {
		t.Error("MAC case variation must hit the same profile")
	}
	if s.Count() != 1 {
		t.Errorf("Count = %d, want 1", s.Count())
	}
}

func TestSignalHistoryEviction(t *testing.T) {
	s := testStore(t)
	now := s.now()

	var p DeviceProfile
	for i := 0; i < 21; i++ {
		p, _ = s.ApplyObservation(obsAt("aa:bb:cc:dd:ee:01", now, -90+i), ContextStationary)
	}
	if len(p.SignalHistory) != 20 {
		t.Fatalf("history holds %d, want 20", len(p.SignalHistory))
	}
	if p.SignalHistory[0] != -89 {
		t.Errorf("oldest reading = %d, want -89 (first of 21 evicted)", p.SignalHistory[0])
	}
	if p.SignalTrend != scoring.TrendApproaching {
		t.Errorf("trend = %s, want approaching", p.SignalTrend)
	}
}

func TestCrossContextSticky(t *testing.T) {
	s := testStore(t)
	now := s.now()

	p, _ := s.ApplyObservation(obsAt("aa:bb:cc:dd:ee:01", now, -70), ContextStationary)
	if p.CrossContext {
		t.Error("single context should not flag cross-context")
	}
	p, _ = s.ApplyObservation(obsAt("aa:bb:cc:dd:ee:01", now, -70), ContextRoaming)
	if !p.CrossContext {
		t.Error("second context should flag cross-context")
	}
	// Flag survives further single-context sightings.
	p, _ = s.ApplyObservation(obsAt("aa:bb:cc:dd:ee:01", now, -70), ContextStationary)
	if !p.CrossContext {
		t.Error("cross-context flag must be sticky")
	}
}

func TestCrossContextRequiresStationaryAndRoaming(t *testing.T) {
	s := testStore(t)
	now := s.now()

	// A device flagged for watchlist tracking is seen at home and in
	// watchlist cycles. It never moved between contexts; no flag.
	s.ApplyObservation(obsAt("aa:bb:cc:dd:ee:01", now, -70), ContextStationary)
	p, _ := s.ApplyObservation(obsAt("aa:bb:cc:dd:ee:01", now, -70), ContextWatchlist)
	if p.CrossContext {
		t.Errorf("cross-context flagged from tags %v, want stationary+roaming only", p.ContextTags)
	}
	if s.ClaimCrossContextAlert("aa:bb:cc:dd:ee:01") {
		t.Error("claim must fail without a roaming sighting")
	}

	p, _ = s.ApplyObservation(obsAt("aa:bb:cc:dd:ee:01", now, -70), ContextRoaming)
	if !p.CrossContext {
		t.Error("stationary + roaming should flag cross-context")
	}
}

func TestClaimCrossContextAlertOnce(t *testing.T) {
	s := testStore(t)
	now := s.now()

	s.ApplyObservation(obsAt("aa:bb:cc:dd:ee:01", now, -70), ContextStationary)
	if s.ClaimCrossContextAlert("aa:bb:cc:dd:ee:01") {
		t.Error("claim before cross-context should fail")
	}
	s.ApplyObservation(obsAt("aa:bb:cc:dd:ee:01", now, -70), ContextRoaming)
	if !s.ClaimCrossContextAlert("aa:bb:cc:dd:ee:01") {
		t.Error("first claim after cross-context should succeed")
	}
	if s.ClaimCrossContextAlert("aa:bb:cc:dd:ee:01") {
		t.Error("second claim must fail")
	}
}

func TestSSIDMerge(t *testing.T) {
	s := testStore(t)
	now := s.now()

	obs := obsAt("aa:bb:cc:dd:ee:01", now, -70)
	obs.SSIDs = []string{"HomeNet", "CoffeeShop"}
	s.ApplyObservation(obs, ContextStationary)

	obs.SSIDs = []string{"CoffeeShop", "Airport"}
	p, _ := s.ApplyObservation(obs, ContextStationary)

	want := "HomeNet,CoffeeShop,Airport"
	if got := strings.Join(p.SSIDs, ","); got != want {
		t.Errorf("SSIDs = %s, want %s", got, want)
	}
}

func TestTopVisitorsRankingAndTieBreak(t *testing.T) {
	s := testStore(t)
	now := s.now()

	// busy: 10 encounters. quiet: 2. tied1/tied2: 5 each, inserted in
	// this order.
	for i := 0; i < 5; i++ {
		s.ApplyObservation(obsAt("aa:00:00:00:00:01", now, -70), ContextStationary) // tied1
	}
	for i := 0; i < 5; i++ {
		s.ApplyObservation(obsAt("aa:00:00:00:00:02", now, -70), ContextStationary) // tied2
	}
	for i := 0; i < 10; i++ {
		s.ApplyObservation(obsAt("aa:00:00:00:00:03", now, -70), ContextStationary) // busy
	}
	for i := 0; i < 2; i++ {
		s.ApplyObservation(obsAt("aa:00:00:00:00:04", now, -70), ContextStationary) // quiet
	}

	top := s.TopVisitors(3)
	if len(top) != 3 {
		t.Fatalf("got %d, want 3", len(top))
	}
	if top[0].MAC != "AA:00:00:00:00:03" {
		t.Errorf("rank 1 = %s, want the busy device", top[0].MAC)
	}
	// The tied pair keeps insertion order.
	if top[1].MAC != "AA:00:00:00:00:01" || top[2].MAC != "AA:00:00:00:00:02" {
		t.Errorf("tie-break unstable: %s, %s", top[1].MAC, top[2].MAC)
	}
}

func TestTopVisitorsRecencyWeighting(t *testing.T) {
	s := testStore(t)
	now := s.now()
	weekAgo := now.Add(-7 * 24 * time.Hour)

	// Ten encounters a week ago scores 10*0.125 = 1.25; two encounters
	// now scores 2.0.
	for i := 0; i < 10; i++ {
		s.ApplyObservation(obsAt("aa:00:00:00:00:01", weekAgo, -70), ContextStationary)
	}
	for i := 0; i < 2; i++ {
		s.ApplyObservation(obsAt("aa:00:00:00:00:02", now, -70), ContextStationary)
	}

	top := s.TopVisitors(2)
	if top[0].MAC != "AA:00:00:00:00:02" {
		t.Errorf("recent device should outrank the stale frequent one, got %s", top[0].MAC)
	}
}

func TestLabelAndWatchlist(t *testing.T) {
	s := testStore(t)

	p, err := s.Label("aa:bb:cc:dd:ee:01", "neighbor's phone", GroupOther, "seen daily")
	if err != nil {
		t.Fatal(err)
	}
	if !p.Known() {
		t.Error("labeled profile should be Known")
	}
	if p.DisplayName() != "neighbor's phone" {
		t.Errorf("DisplayName = %q", p.DisplayName())
	}

	if _, err := s.Label("aa:bb:cc:dd:ee:02", "x", Group("bogus"), ""); err == nil {
		t.Error("invalid group should be rejected")
	}

	if _, err := s.SetWatchlisted("aa:bb:cc:dd:ee:01", true); err != nil {
		t.Fatal(err)
	}
	wl := s.Watchlist()
	if len(wl) != 1 || wl[0].MAC != "AA:BB:CC:DD:EE:01" {
		t.Errorf("Watchlist = %+v", wl)
	}
	if _, ok := s.WatchlistMACs()["AA:BB:CC:DD:EE:01"]; !ok {
		t.Error("WatchlistMACs missing entry")
	}

	if _, err := s.SetWatchlisted("aa:bb:cc:dd:ee:01", false); err != nil {
		t.Fatal(err)
	}
	if len(s.Watchlist()) != 0 {
		t.Error("unwatchlisting should empty the list")
	}
	if _, err := s.SetWatchlisted("no:tt:he:re:00:00", false); err != ErrNotFound {
		t.Errorf("unwatchlisting unknown MAC: err = %v, want ErrNotFound", err)
	}
}

func TestWatchlistGroupTransition(t *testing.T) {
	s := testStore(t)

	p, err := s.SetWatchlisted("aa:bb:cc:dd:ee:01", true)
	if err != nil {
		t.Fatal(err)
	}
	if p.Group != GroupWatchlist {
		t.Errorf("group after flagging = %s, want watchlist", p.Group)
	}
	if p.Known() {
		t.Error("watchlisted device must not count as known")
	}

	p, err = s.SetWatchlisted("aa:bb:cc:dd:ee:01", false)
	if err != nil {
		t.Fatal(err)
	}
	if p.Group != GroupUnknown {
		t.Errorf("group after unflagging = %s, want unknown", p.Group)
	}

	// A group assigned after the flag survives the unflag.
	s.SetWatchlisted("aa:bb:cc:dd:ee:02", true)
	s.Label("aa:bb:cc:dd:ee:02", "my tablet", GroupHome, "")
	p, _ = s.SetWatchlisted("aa:bb:cc:dd:ee:02", false)
	if p.Group != GroupHome {
		t.Errorf("user-assigned group lost on unflag: %s", p.Group)
	}
}

func TestPersonsOfInterest(t *testing.T) {
	s := testStore(t)
	now := s.now()

	s.ApplyObservation(obsAt("aa:00:00:00:00:01", now, -70), ContextStationary)
	s.ApplyObservation(obsAt("aa:00:00:00:00:01", now, -70), ContextRoaming) // cross-context
	s.ApplyObservation(obsAt("aa:00:00:00:00:02", now, -70), ContextStationary)
	s.SetWatchlisted("aa:00:00:00:00:03", true)

	poi := s.PersonsOfInterest()
	if len(poi) != 2 {
		t.Fatalf("got %d persons of interest, want 2", len(poi))
	}
	macs := map[string]bool{}
	for _, p := range poi {
		macs[p.MAC] = true
	}
	if !macs["AA:00:00:00:00:01"] || !macs["AA:00:00:00:00:03"] {
		t.Errorf("unexpected POI set: %v", macs)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.json")
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)

	s1 := NewStore(path)
	s1.now = func() time.Time { return now }
	obs := obsAt("aa:bb:cc:dd:ee:01", now, -70)
	obs.SSIDs = []string{"HomeNet"}
	s1.ApplyObservation(obs, ContextStationary)
	s1.Label("aa:bb:cc:dd:ee:01", "test device", GroupHome, "")
	if err := s1.Save(); err != nil {
		t.Fatal(err)
	}

	s2 := NewStore(path)
	s2.now = func() time.Time { return now }
	if err := s2.Load(); err != nil {
		t.Fatal(err)
	}
	p, ok := s2.Get("aa:bb:cc:dd:ee:01")
	if !ok {
		t.Fatal("profile lost across save/load")
	}
	if p.Label != "test device" || p.Group != GroupHome {
		t.Errorf("labeling lost: %+v", p)
	}
	if len(p.SSIDs) != 1 || p.SSIDs[0] != "HomeNet" {
		t.Errorf("SSIDs lost: %v", p.SSIDs)
	}
	if p.TotalEncounters != 1 {
		t.Errorf("encounters lost: %d", p.TotalEncounters)
	}
}

func TestLoadMissingFile(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "absent.json"))
	if err := s.Load(); err != nil {
		t.Errorf("missing file should not be an error: %v", err)
	}
}

func TestExportCSV(t *testing.T) {
	s := testStore(t)
	now := s.now()
	s.ApplyObservation(obsAt("aa:bb:cc:dd:ee:01", now, -70), ContextStationary)

	var buf bytes.Buffer
	if err := s.ExportCSV(&buf); err != nil {
		t.Fatal(err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d csv records, want header + 1 row", len(records))
	}
	if records[1][0] != "AA:BB:CC:DD:EE:01" {
		t.Errorf("mac column = %q", records[1][0])
	}
	if records[1][6] != "1" {
		t.Errorf("total_encounters column = %q, want 1", records[1][6])
	}
}

func TestExportJSON(t *testing.T) {
	s := testStore(t)
	s.ApplyObservation(obsAt("aa:bb:cc:dd:ee:01", s.now(), -70), ContextStationary)

	var buf bytes.Buffer
	if err := s.ExportJSON(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"AA:BB:CC:DD:EE:01"`) {
		t.Errorf("export missing device: %s", buf.String())
	}
}
