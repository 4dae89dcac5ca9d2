// Chasing Your Tail NG - Wireless Surveillance Detection Engine
// Copyright 2026 the Chasing Your Tail NG authors
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

// Package api is the local HTTP control surface: device registry queries,
// labeling, watchlist management, mode control, the stalker report, and
// the websocket alert stream. It binds to loopback by default; this is a
// personal tool, not a multi-tenant service.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/alert"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/controller"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/kismet"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/logging"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/profile"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/stalker"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/websocket"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// ModeManager is the controller surface the API needs.
type ModeManager interface {
	Mode() controller.Mode
	SetMode(controller.Mode) error
}

// CaptureReporter exposes capture-file visibility for the status
// endpoint. The kismet source implements it.
type CaptureReporter interface {
	Captures() kismet.CaptureStatus
}

// Options wires the server's dependencies.
type Options struct {
	Host            string
	Port            int
	RateLimitReqs   int
	RateLimitWindow time.Duration
	CORSOrigins     []string

	Profiles *profile.Store
	Bus      *alert.Bus
	Tracker  *stalker.Tracker
	Modes    ModeManager
	Hub      *websocket.Hub

	// Captures is optional; without it the status endpoint omits the
	// capture-file section.
	Captures CaptureReporter

	// Source feeds the on-demand stalker scan. Optional; without it the
	// scan endpoint answers 503.
	Source kismet.Source

	// ScanWindow is the on-demand scan's lookback. Defaults to 24h.
	ScanWindow time.Duration
}

// Server is the HTTP control surface.
type Server struct {
	opts     Options
	router   chi.Router
	validate *validator.Validate
	started  time.Time
}

// NewServer builds the router and handlers.
func NewServer(opts Options) *Server {
	if opts.RateLimitReqs <= 0 {
		opts.RateLimitReqs = 100
	}
	if opts.RateLimitWindow <= 0 {
		opts.RateLimitWindow = time.Minute
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}

	s := &Server{
		opts:     opts,
		validate: validator.New(),
		started:  time.Now(),
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(httprate.LimitByIP(s.opts.RateLimitReqs, s.opts.RateLimitWindow))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)

		r.Get("/devices", s.handleDevices)
		r.Get("/devices/{mac}", s.handleDevice)
		r.Get("/top_visitors", s.handleTopVisitors)
		r.Get("/persons", s.handlePersonsOfInterest)
		r.Post("/label", s.handleLabel)

		r.Get("/watchlist", s.handleWatchlist)
		r.Post("/watchlist/add", s.handleWatchlistAdd)
		r.Post("/watchlist/remove", s.handleWatchlistRemove)

		r.Get("/alerts", s.handleAlerts)

		r.Get("/mode", s.handleGetMode)
		r.Post("/mode", s.handleSetMode)

		r.Get("/stalkers", s.handleStalkers)
		r.Post("/stalkers/scan", s.handleStalkerScan)
		r.Get("/checkpoints", s.handleCheckpoints)
		r.Post("/checkpoint", s.handleAddCheckpoint)

		r.Get("/export/csv", s.handleExportCSV)
		r.Get("/export/json", s.handleExportJSON)

		r.Get("/stream", s.handleStream)
	})

	return r
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// String names the server for supervision.
func (s *Server) String() string { return "http-api" }

// Serve runs the HTTP server until the context ends, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", addr).Msg("http api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http serve: %w", err)
	}
}

// requestLogger logs each request at debug with timing.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logging.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Msg("http request")
	})
}
