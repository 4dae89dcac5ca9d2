// Chasing Your Tail NG - Wireless Surveillance Detection Engine
// Copyright 2026 the Chasing Your Tail NG authors
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

// Package metrics exposes Prometheus instrumentation for the engine.
// Everything registers on the default registry; the API serves it at
// /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cyt"

var (
	// ScanCycles counts completed scan cycles per operating mode.
	ScanCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scan_cycles_total",
		Help:      "Completed scan cycles by operating mode.",
	}, []string{"mode"})

	// ScanDuration observes scan cycle wall time per mode.
	ScanDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scan_duration_seconds",
		Help:      "Scan cycle duration by operating mode.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"mode"})

	// Observations counts device sightings folded into the registry.
	Observations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "observations_total",
		Help:      "Device observations processed.",
	})

	// BackendUnavailable counts degraded cycles with no usable capture.
	BackendUnavailable = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backend_unavailable_total",
		Help:      "Scan cycles degraded by an unavailable capture backend.",
	})

	// AlertsPublished counts alerts by severity.
	AlertsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alerts_published_total",
		Help:      "Alerts published by severity.",
	}, []string{"severity"})

	// ProfilesTracked gauges the registry size.
	ProfilesTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "profiles_tracked",
		Help:      "Device profiles in the registry.",
	})

	// StalkerTracks gauges devices under GPS correlation.
	StalkerTracks = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stalker_tracks",
		Help:      "Devices with GPS correlation tracks.",
	})

	// WebsocketClients gauges connected alert-stream clients.
	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "websocket_clients",
		Help:      "Connected websocket alert-stream clients.",
	})

	// SaveFailures counts failed state persistence attempts.
	SaveFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "save_failures_total",
		Help:      "Failed attempts to persist engine state.",
	})
)
