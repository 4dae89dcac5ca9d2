// Chasing Your Tail NG - Wireless Surveillance Detection Engine
// Copyright 2026 the Chasing Your Tail NG authors
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/alert"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/controller"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/kismet"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/profile"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/stalker"
)

type fakeModes struct {
	mode controller.Mode
	err  error
}

func (f *fakeModes) Mode() controller.Mode { return f.mode }

func (f *fakeModes) SetMode(m controller.Mode) error {
	if f.err != nil {
		return f.err
	}
	f.mode = m
	return nil
}

type fakeCaptureSource struct {
	rows []kismet.Row
	err  error
}

func (f *fakeCaptureSource) DevicesSince(context.Context, time.Time) ([]kismet.Row, error) {
	return f.rows, f.err
}

type fixture struct {
	srv     *httptest.Server
	store   *profile.Store
	bus     *alert.Bus
	tracker *stalker.Tracker
	modes   *fakeModes
	source  *fakeCaptureSource
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	bus, err := alert.NewBus(alert.Options{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { bus.Close() })

	store := profile.NewStore(filepath.Join(dir, "profiles.json"))
	tracker := stalker.NewTracker(stalker.Options{Path: filepath.Join(dir, "stalker.json")})
	modes := &fakeModes{mode: controller.ModeStationary}
	source := &fakeCaptureSource{}

	s := NewServer(Options{
		Host:     "127.0.0.1",
		Port:     0,
		Profiles: store,
		Bus:      bus,
		Tracker:  tracker,
		Modes:    modes,
		Source:   source,
	})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	return &fixture{srv: srv, store: store, bus: bus, tracker: tracker, modes: modes, source: source}
}

func (f *fixture) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return resp, string(body)
}

func (f *fixture) post(t *testing.T, path string, payload any) (*http.Response, string) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(f.srv.URL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return resp, string(body)
}

func TestHealthAndStatus(t *testing.T) {
	f := newFixture(t)

	resp, body := f.get(t, "/healthz")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "ok") {
		t.Errorf("healthz: %d %s", resp.StatusCode, body)
	}

	resp, body = f.get(t, "/api/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	if !strings.Contains(body, `"mode":"STATIONARY"`) {
		t.Errorf("status missing mode: %s", body)
	}
}

func TestLabelAndFetchDevice(t *testing.T) {
	f := newFixture(t)

	resp, body := f.post(t, "/api/label", map[string]string{
		"mac":   "aa:bb:cc:dd:ee:01",
		"label": "courier van",
		"group": "other",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("label: %d %s", resp.StatusCode, body)
	}

	resp, body = f.get(t, "/api/devices/AA:BB:CC:DD:EE:01")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("device: %d", resp.StatusCode)
	}
	if !strings.Contains(body, "courier van") {
		t.Errorf("device missing label: %s", body)
	}

	resp, _ = f.get(t, "/api/devices/00:00:00:00:00:99")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown device: %d, want 404", resp.StatusCode)
	}
}

func TestLabelValidation(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.post(t, "/api/label", map[string]string{"mac": "not-a-mac", "label": "x"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad mac: %d, want 400", resp.StatusCode)
	}
	resp, _ = f.post(t, "/api/label", map[string]string{"mac": "aa:bb:cc:dd:ee:01"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing label: %d, want 400", resp.StatusCode)
	}
	resp, _ = f.post(t, "/api/label", map[string]string{
		"mac": "aa:bb:cc:dd:ee:01", "label": "x", "group": "martian",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bogus group: %d, want 400", resp.StatusCode)
	}
}

func TestWatchlistLifecycle(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.post(t, "/api/watchlist/add", map[string]string{"mac": "aa:bb:cc:dd:ee:01"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add: %d", resp.StatusCode)
	}
	_, body := f.get(t, "/api/watchlist")
	if !strings.Contains(body, "AA:BB:CC:DD:EE:01") {
		t.Errorf("watchlist missing device: %s", body)
	}
	resp, _ = f.post(t, "/api/watchlist/remove", map[string]string{"mac": "aa:bb:cc:dd:ee:01"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("remove: %d", resp.StatusCode)
	}
	resp, _ = f.post(t, "/api/watchlist/remove", map[string]string{"mac": "aa:bb:cc:dd:ee:99"})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("remove unknown: %d, want 404", resp.StatusCode)
	}
}

func TestModeEndpoint(t *testing.T) {
	f := newFixture(t)

	resp, body := f.post(t, "/api/mode", map[string]string{"mode": "roaming"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set mode: %d %s", resp.StatusCode, body)
	}
	if f.modes.mode != controller.ModeRoaming {
		t.Errorf("controller mode = %s", f.modes.mode)
	}

	resp, _ = f.post(t, "/api/mode", map[string]string{"mode": "DOORBELL"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("retired mode name: %d, want 400", resp.StatusCode)
	}

	_, body = f.get(t, "/api/mode")
	if !strings.Contains(body, "ROAMING") {
		t.Errorf("get mode: %s", body)
	}
}

func TestAlertsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.bus.Publish(alert.SeverityCritical, "watchlist hit: AA:BB:CC:DD:EE:FF")

	_, body := f.get(t, "/api/alerts?n=5")
	if !strings.Contains(body, "watchlist hit") {
		t.Errorf("alerts: %s", body)
	}
}

func TestTopVisitorsLimit(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	for i := 0; i < 3; i++ {
		mac := "aa:00:00:00:00:0" + string(rune('1'+i))
		f.store.ApplyObservation(kismet.Observation{MAC: mac, LastSeen: now}, profile.ContextStationary)
	}

	_, body := f.get(t, "/api/top_visitors?n=2")
	var got []profile.DeviceProfile
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatalf("parse: %v (%s)", err, body)
	}
	if len(got) != 2 {
		t.Errorf("top_visitors returned %d, want 2", len(got))
	}
}

func TestCheckpointAndStalkers(t *testing.T) {
	f := newFixture(t)

	resp, body := f.post(t, "/api/checkpoint", map[string]any{
		"name": "home", "lat": 40.0, "lon": -74.0,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("checkpoint: %d %s", resp.StatusCode, body)
	}

	resp, _ = f.post(t, "/api/checkpoint", map[string]any{
		"name": "bad", "lat": 95.0, "lon": 0.0,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid lat: %d, want 400", resp.StatusCode)
	}

	_, body = f.get(t, "/api/checkpoints")
	if !strings.Contains(body, "home") {
		t.Errorf("checkpoints: %s", body)
	}

	resp, _ = f.get(t, "/api/stalkers")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("stalkers: %d", resp.StatusCode)
	}
}

func TestStalkerScanEndpoint(t *testing.T) {
	f := newFixture(t)

	resp, body := f.post(t, "/api/checkpoint", map[string]any{
		"name": "home", "lat": 40.0, "lon": -74.0,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("checkpoint: %d %s", resp.StatusCode, body)
	}

	f.source.rows = []kismet.Row{
		{MAC: "aa:bb:cc:dd:ee:01", LastTime: time.Now().Unix(), AvgLat: 40.001, AvgLon: -74.0},
	}
	resp, body = f.post(t, "/api/stalkers/scan", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("scan: %d %s", resp.StatusCode, body)
	}
	if !strings.Contains(body, `"recorded":1`) {
		t.Errorf("scan response missing recorded count: %s", body)
	}
	if _, ok := f.tracker.Get("aa:bb:cc:dd:ee:01"); !ok {
		t.Error("scan did not feed the correlator")
	}

	f.source.err = kismet.ErrBackendUnavailable
	resp, _ = f.post(t, "/api/stalkers/scan", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("scan with backend down: %d, want 503", resp.StatusCode)
	}
}

func TestExportEndpoints(t *testing.T) {
	f := newFixture(t)
	f.store.ApplyObservation(kismet.Observation{MAC: "aa:bb:cc:dd:ee:01", LastSeen: time.Now()}, profile.ContextStationary)

	resp, body := f.get(t, "/api/export/csv")
	if ct := resp.Header.Get("Content-Type"); ct != "text/csv" {
		t.Errorf("csv content type = %q", ct)
	}
	if !strings.HasPrefix(body, "mac,label,group") {
		t.Errorf("csv header missing: %s", body[:min(len(body), 60)])
	}

	resp, body = f.get(t, "/api/export/json")
	if !strings.Contains(body, "AA:BB:CC:DD:EE:01") {
		t.Errorf("json export missing device: %s", body)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("json export: %d", resp.StatusCode)
	}
}

func TestMetricsExposed(t *testing.T) {
	f := newFixture(t)
	resp, body := f.get(t, "/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics: %d", resp.StatusCode)
	}
	if !strings.Contains(body, "cyt_") {
		t.Errorf("metrics missing engine namespace")
	}
}

func TestStreamWithoutHub(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.get(t, "/api/stream")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("stream without hub: %d, want 503", resp.StatusCode)
	}
}
