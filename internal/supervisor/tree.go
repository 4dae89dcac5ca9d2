// Chasing Your Tail NG - Wireless Surveillance Detection Engine
// Copyright 2026 the Chasing Your Tail NG authors
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

// Package supervisor assembles the engine's suture tree. Two layers hang
// off the root: the detection layer (scan controller, alert fanout) and
// the serving layer (HTTP API). A panicking or failing service restarts
// without taking the rest of the engine down.
package supervisor

import (
	"context"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/logging"
)

// Tree is the supervised service hierarchy.
type Tree struct {
	root *suture.Supervisor
}

// spec returns the common supervisor spec with restart backoff and the
// slog event hook feeding the engine log.
func spec() suture.Spec {
	hook := (&sutureslog.Handler{Logger: logging.NewSlogLogger()}).MustHook()
	return suture.Spec{
		EventHook:        hook,
		FailureDecay:     30,
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
	}
}

// New builds the tree. Services are attached with Add* before Serve.
func New() *Tree {
	return &Tree{root: suture.New("cyt", spec())}
}

// AddDetection attaches the detection-layer services: the mode
// controller plus its alert fanout (websocket hub, notification
// dispatcher).
func (t *Tree) AddDetection(services ...suture.Service) {
	layer := suture.New("detection", spec())
	for _, svc := range services {
		if svc != nil {
			layer.Add(svc)
		}
	}
	t.root.Add(layer)
}

// AddServing attaches the serving-layer services (the HTTP API).
func (t *Tree) AddServing(services ...suture.Service) {
	layer := suture.New("serving", spec())
	for _, svc := range services {
		if svc != nil {
			layer.Add(svc)
		}
	}
	t.root.Add(layer)
}

// Serve runs the tree until the context ends.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}
