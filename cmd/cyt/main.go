// Chasing Your Tail NG - Wireless Surveillance Detection Engine
// Copyright 2026 the Chasing Your Tail NG authors
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

// Command cyt runs the detection engine: it watches Kismet captures for
// devices that follow the user across time, place, and operating
// context, and serves a local control API with a live alert stream.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/alert"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/api"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/config"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/controller"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/kismet"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/logging"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/notify"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/profile"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/stalker"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/supervisor"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("configuration error")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().Str("version", api.Version).Msg("chasing your tail ng starting")

	// Durable state.
	profiles := profile.NewStore(cfg.Paths.Profiles)
	if err := profiles.Load(); err != nil {
		logging.Fatal().Err(err).Msg("failed to load profile registry")
	}

	// Devices already explained by the stationary context are excluded
	// from GPS correlation: they travel with the user's data, not with
	// the user.
	tracker := stalker.NewTracker(stalker.Options{
		Path:            cfg.Paths.StalkerData,
		AcceptRadiusKm:  cfg.GPS.AcceptRadiusKm,
		MinSeparationKm: cfg.GPS.MinSeparationKm,
		TopN:            cfg.GPS.TopN,
		Skip: func(mac string) bool {
			p, ok := profiles.Get(mac)
			return ok && p.Known()
		},
	})
	if err := tracker.Load(); err != nil {
		logging.Fatal().Err(err).Msg("failed to load stalker data")
	}

	// Alert plumbing.
	bus, err := alert.NewBus(alert.Options{
		DurablePath: alertLogPath(cfg),
		Console:     cfg.Alerts.ConsoleAlerts,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open alert log")
	}
	defer bus.Close()

	dispatcher := notify.NewDispatcher()
	if cfg.Alerts.Webhook.Enabled {
		wh, err := notify.NewWebhookNotifier(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Headers)
		if err != nil {
			logging.Fatal().Err(err).Msg("webhook configuration error")
		}
		dispatcher.AddChannel(wh, cfg.Alerts.Webhook.SendOn)
	}
	if dispatcher.ChannelCount() > 0 {
		bus.AttachSink(dispatcher)
	}

	hub := websocket.NewHub(bus)

	// Detection.
	source := kismet.NewSQLiteSource(cfg.Paths.KismetGlob)
	ctl := controller.New(controller.Options{
		Source:   source,
		Profiles: profiles,
		Bus:      bus,
		Tracker:  tracker,
		Events:   hub,

		StationaryInterval: cfg.Timing.StationaryInterval,
		RoamingInterval:    cfg.Timing.RoamingInterval,
		WatchlistInterval:  cfg.Timing.WatchlistInterval,
		ScreensaverPoll:    cfg.Timing.ScreensaverPoll,
		RoamingWindow:      cfg.Timing.RoamingWindow,
		WatchlistWindow:    cfg.Timing.WatchlistWindow,
		LingerThreshold:    cfg.Timing.LingerThreshold,
		IdleThreshold:      cfg.Timing.IdleThreshold,
		ModeSwitchTimeout:  cfg.Timing.ModeSwitchTimeout,

		SignalApproachingDBm: cfg.Thresholds.SignalApproachingDBm,
		UnknownStreakWarning: cfg.Thresholds.UnknownStreakWarning,
		DoorbellAlerts:       cfg.Alerts.DoorbellAlerts,
		KnownArrivalNotify:   cfg.Alerts.KnownArrivalNotify,
	})

	server := api.NewServer(api.Options{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		RateLimitReqs:   cfg.Server.RateLimitReqs,
		RateLimitWindow: cfg.Server.RateLimitWindow,
		CORSOrigins:     cfg.Server.CORSOrigins,
		Profiles:        profiles,
		Bus:             bus,
		Tracker:         tracker,
		Modes:           ctl,
		Hub:             hub,
		Captures:        source,
		Source:          source,
		ScanWindow:      cfg.Timing.RoamingWindow,
	})

	tree := supervisor.New()
	if dispatcher.ChannelCount() > 0 {
		tree.AddDetection(ctl, hub, dispatcher)
	} else {
		tree.AddDetection(ctl, hub)
	}
	tree.AddServing(server)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("supervisor exited")
		os.Exit(1)
	}

	// Final state flush; the scan loop already saves per cycle.
	if err := profiles.Save(); err != nil {
		logging.Error().Err(err).Msg("final profile save failed")
	}
	if err := tracker.Save(); err != nil {
		logging.Error().Err(err).Msg("final stalker save failed")
	}
	logging.Info().Msg("shutdown complete")
}

// alertLogPath returns the durable alert sink path, or "" when disabled.
func alertLogPath(cfg *config.Config) string {
	if !cfg.Alerts.LogAlerts {
		return ""
	}
	return cfg.Paths.AlertsLog
}
