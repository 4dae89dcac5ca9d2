// Chasing Your Tail NG - Wireless Surveillance Detection Engine
// Copyright 2026 the Chasing Your Tail NG authors
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

// Package controller runs the engine's scan loops. One operating mode is
// active at a time; a mode switch fully stops the old loop before the
// new one starts, so cycles from different modes never interleave.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/alert"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/detection"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/kismet"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/logging"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/metrics"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/profile"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/stalker"
)

// ErrNotRunning is returned by SetMode before Serve has started.
var ErrNotRunning = errors.New("controller not running")

// Broadcaster pushes controller events (mode changes) to live clients.
// The websocket hub implements it.
type Broadcaster interface {
	Broadcast(payload []byte)
}

// Options wires the controller's dependencies and tuning.
type Options struct {
	Source   kismet.Source
	Profiles *profile.Store
	Bus      *alert.Bus

	// Tracker is optional; without it roaming mode skips GPS correlation.
	Tracker *stalker.Tracker

	// Events is optional; mode changes are broadcast through it.
	Events Broadcaster

	StationaryInterval time.Duration
	RoamingInterval    time.Duration
	WatchlistInterval  time.Duration
	ScreensaverPoll    time.Duration
	RoamingWindow      time.Duration
	WatchlistWindow    time.Duration
	LingerThreshold    time.Duration
	IdleThreshold      time.Duration
	ModeSwitchTimeout  time.Duration

	SignalApproachingDBm int
	UnknownStreakWarning int
	DoorbellAlerts       bool
	KnownArrivalNotify   bool

	// Idle is polled by screensaver mode. Defaults to SystemIdle.
	Idle IdleFunc

	InitialMode Mode
}

// Controller owns the active scan loop and the detectors it feeds.
type Controller struct {
	opts Options

	crossContext *detection.CrossContextDetector
	watchlist    *detection.WatchlistDetector
	linger       *detection.LingerTracker
	approach     *detection.ApproachDetector
	arrival      *detection.ArrivalTracker

	// switchMu serializes mode transitions.
	switchMu sync.Mutex

	mu         sync.RWMutex
	parent     context.Context
	mode       Mode
	cancelLoop context.CancelFunc
	loopDone   chan struct{}

	// backendDown tracks the unavailable-backend streak so the warning
	// fires on the transition, not every cycle. Cycles are serialized,
	// so no lock is needed.
	backendDown bool
}

// New creates a controller. Zero durations take sensible defaults.
func New(opts Options) *Controller {
	if opts.StationaryInterval <= 0 {
		opts.StationaryInterval = 60 * time.Second
	}
	if opts.RoamingInterval <= 0 {
		opts.RoamingInterval = 15 * time.Second
	}
	if opts.WatchlistInterval <= 0 {
		opts.WatchlistInterval = 30 * time.Second
	}
	if opts.ScreensaverPoll <= 0 {
		opts.ScreensaverPoll = 5 * time.Second
	}
	if opts.RoamingWindow <= 0 {
		opts.RoamingWindow = 24 * time.Hour
	}
	if opts.WatchlistWindow <= 0 {
		opts.WatchlistWindow = 48 * time.Hour
	}
	if opts.ModeSwitchTimeout <= 0 {
		opts.ModeSwitchTimeout = 5 * time.Second
	}
	if opts.Idle == nil {
		opts.Idle = SystemIdle
	}
	if opts.InitialMode == "" {
		opts.InitialMode = ModeStationary
	}
	return &Controller{
		opts:         opts,
		crossContext: detection.NewCrossContextDetector(opts.Profiles),
		watchlist:    detection.NewWatchlistDetector(),
		linger:       detection.NewLingerTracker(opts.LingerThreshold),
		approach:     detection.NewApproachDetector(opts.SignalApproachingDBm),
		arrival:      detection.NewArrivalTracker(opts.UnknownStreakWarning, opts.KnownArrivalNotify),
	}
}

// String names the controller for supervision.
func (c *Controller) String() string { return "mode-controller" }

// Mode returns the active operating mode.
func (c *Controller) Mode() Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

// Serve starts the initial mode's loop and blocks until the context
// ends, then stops whatever loop is active.
func (c *Controller) Serve(ctx context.Context) error {
	c.mu.Lock()
	c.parent = ctx
	c.mu.Unlock()

	if err := c.SetMode(c.opts.InitialMode); err != nil {
		return fmt.Errorf("start initial mode: %w", err)
	}

	<-ctx.Done()

	c.switchMu.Lock()
	c.stopActiveLoop()
	c.mu.Lock()
	c.parent = nil
	c.mu.Unlock()
	c.switchMu.Unlock()

	return ctx.Err()
}

// SetMode switches the operating mode: the active loop is cancelled and
// must finish its cycle (bounded by ModeSwitchTimeout) before the new
// loop starts.
func (c *Controller) SetMode(mode Mode) error {
	c.switchMu.Lock()
	defer c.switchMu.Unlock()

	c.mu.RLock()
	parent := c.parent
	current := c.mode
	running := c.cancelLoop != nil
	c.mu.RUnlock()

	if parent == nil {
		return ErrNotRunning
	}
	if running && current == mode {
		return nil
	}

	if !c.stopActiveLoop() {
		return fmt.Errorf("%s loop did not stop within %s", current, c.opts.ModeSwitchTimeout)
	}

	loopCtx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	c.mu.Lock()
	c.mode = mode
	c.cancelLoop = cancel
	c.loopDone = done
	c.mu.Unlock()

	go func() {
		defer close(done)
		c.runLoop(loopCtx, mode)
	}()

	logging.Info().Str("mode", string(mode)).Msg("operating mode active")
	if c.opts.Events != nil {
		if payload, err := json.Marshal(map[string]string{
			"event": "mode_changed",
			"mode":  string(mode),
		}); err == nil {
			c.opts.Events.Broadcast(payload)
		}
	}
	return nil
}

// stopActiveLoop cancels the running loop and waits for it, bounded by
// the switch timeout. Must be called with switchMu held. Returns false
// when the loop failed to stop in time.
func (c *Controller) stopActiveLoop() bool {
	c.mu.Lock()
	cancel := c.cancelLoop
	done := c.loopDone
	c.cancelLoop = nil
	c.loopDone = nil
	c.mu.Unlock()

	if cancel == nil {
		return true
	}
	cancel()
	select {
	case <-done:
		return true
	case <-time.After(c.opts.ModeSwitchTimeout):
		logging.Error().Dur("timeout", c.opts.ModeSwitchTimeout).Msg("scan loop did not stop in time")
		return false
	}
}

func (c *Controller) runLoop(ctx context.Context, mode Mode) {
	if mode == ModeScreensaver {
		c.screensaverLoop(ctx)
		return
	}

	interval := c.intervalFor(mode)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.runCycle(ctx, mode)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runCycle(ctx, mode)
		}
	}
}

// screensaverLoop polls the idle function and behaves as stationary mode
// once the workstation has been idle past the threshold. Activity pauses
// scanning again.
func (c *Controller) screensaverLoop(ctx context.Context) {
	ticker := time.NewTicker(c.opts.ScreensaverPoll)
	defer ticker.Stop()

	var lastScan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		idle, err := c.opts.Idle()
		if err != nil {
			logging.Debug().Err(err).Msg("idle query failed")
			continue
		}
		if idle < c.opts.IdleThreshold {
			continue
		}
		if time.Since(lastScan) < c.opts.StationaryInterval {
			continue
		}
		lastScan = time.Now()
		c.runCycle(ctx, ModeScreensaver)
	}
}

func (c *Controller) intervalFor(mode Mode) time.Duration {
	switch mode {
	case ModeRoaming:
		return c.opts.RoamingInterval
	case ModeWatchlist:
		return c.opts.WatchlistInterval
	default:
		return c.opts.StationaryInterval
	}
}

// lookback is the capture query window per mode. Presence-style modes
// look just past the scan interval; correlation modes use their full
// configured window.
func (c *Controller) lookback(mode Mode) time.Duration {
	switch mode {
	case ModeRoaming:
		return c.opts.RoamingWindow
	case ModeWatchlist:
		return c.opts.WatchlistWindow
	default:
		return 3 * c.opts.StationaryInterval
	}
}

func contextTagFor(mode Mode) string {
	switch mode {
	case ModeRoaming:
		return profile.ContextRoaming
	case ModeWatchlist:
		return profile.ContextWatchlist
	default:
		return profile.ContextStationary
	}
}

// runCycle executes one scan: query, normalize, fold into profiles, run
// detectors, persist. Cancellation is checked between stages and rows.
func (c *Controller) runCycle(ctx context.Context, mode Mode) {
	start := time.Now()
	since := start.Add(-c.lookback(mode))

	rows, err := c.opts.Source.DevicesSince(ctx, since)
	switch {
	case err == nil:
		if c.backendDown {
			c.backendDown = false
			c.opts.Bus.Publish(alert.SeverityInfo, "capture backend recovered")
		}
	case errors.Is(err, kismet.ErrBackendUnavailable):
		metrics.BackendUnavailable.Inc()
		if !c.backendDown {
			c.backendDown = true
			c.opts.Bus.Publish(alert.SeverityWarning, "capture backend unavailable: %v", err)
		}
		rows = nil
	case ctx.Err() != nil:
		return
	default:
		logging.Error().Err(err).Str("mode", string(mode)).Msg("capture query failed")
		return
	}

	tag := contextTagFor(mode)

	// Watchlist cycles touch only flagged devices. Everything else in the
	// capture stays out of the registry: no encounter counts, no context
	// tags, no cross-context evidence.
	var watchOnly map[string]struct{}
	if mode == ModeWatchlist {
		watchOnly = c.opts.Profiles.WatchlistMACs()
	}

	present := make([]profile.DeviceProfile, 0, len(rows))
	for i := range rows {
		if ctx.Err() != nil {
			return
		}
		obs := kismet.Normalize(rows[i])
		if watchOnly != nil {
			if _, flagged := watchOnly[obs.MAC]; !flagged {
				continue
			}
		}
		p, created := c.opts.Profiles.ApplyObservation(obs, tag)
		metrics.Observations.Inc()
		if created {
			logging.Debug().
				Str("mac", p.MAC).
				Str("manufacturer", p.Manufacturer).
				Msg("new device profile")
		}
		present = append(present, p)

		if res, ok := c.crossContext.Check(p); ok {
			c.publish(res)
		}
		if res, ok := c.watchlist.Check(p); ok {
			c.publish(res)
		}
		if mode == ModeRoaming {
			if res, ok := c.approach.Check(p); ok {
				c.publish(res)
			}
			if c.opts.Tracker != nil {
				c.opts.Tracker.RecordObservation(obs)
			}
		}
	}

	if mode == ModeStationary || mode == ModeScreensaver {
		for _, res := range c.linger.ObserveCycle(present) {
			c.publish(res)
		}
		if c.opts.DoorbellAlerts {
			for _, res := range c.arrival.ObserveCycle(present) {
				c.publish(res)
			}
		}
	}

	// Persistence failures degrade, they do not stop scanning.
	if err := c.opts.Profiles.Save(); err != nil {
		metrics.SaveFailures.Inc()
		c.opts.Bus.Publish(alert.SeverityWarning, "failed to save profiles: %v", err)
	}
	if mode == ModeRoaming && c.opts.Tracker != nil {
		if err := c.opts.Tracker.Save(); err != nil {
			metrics.SaveFailures.Inc()
			c.opts.Bus.Publish(alert.SeverityWarning, "failed to save stalker data: %v", err)
		}
		metrics.StalkerTracks.Set(float64(len(c.opts.Tracker.Report(0))))
	}

	metrics.ScanCycles.WithLabelValues(string(mode)).Inc()
	metrics.ScanDuration.WithLabelValues(string(mode)).Observe(time.Since(start).Seconds())
	metrics.ProfilesTracked.Set(float64(c.opts.Profiles.Count()))

	logging.Debug().
		Str("mode", string(mode)).
		Int("devices", len(present)).
		Dur("took", time.Since(start)).
		Msg("scan cycle complete")
}

func (c *Controller) publish(res detection.Result) {
	c.opts.Bus.Publish(res.Severity, "%s", res.Message)
}
