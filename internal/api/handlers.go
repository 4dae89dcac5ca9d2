// Chasing Your Tail NG - Wireless Surveillance Detection Engine
// Copyright 2026 the Chasing Your Tail NG authors
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/controller"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/kismet"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/logging"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/profile"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/websocket"
)

// respondJSON writes a JSON response body.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("failed to encode response")
	}
}

// respondError writes a JSON error body.
func respondError(w http.ResponseWriter, status int, format string, args ...any) {
	respondJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}

// decodeBody parses and validates a JSON request body.
func (s *Server) decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	if err := s.validate.Struct(dst); err != nil {
		return fmt.Errorf("validation: %w", err)
	}
	return nil
}

// queryInt reads an integer query parameter with a default.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status := map[string]any{
		"version":  Version,
		"mode":     string(s.opts.Modes.Mode()),
		"profiles": s.opts.Profiles.Count(),
		"alerts":   len(s.opts.Bus.Recent(0)),
		"uptime_s": int(time.Since(s.started).Seconds()),
	}
	if s.opts.Hub != nil {
		status["stream_clients"] = s.opts.Hub.ClientCount()
	}
	if s.opts.Tracker != nil {
		status["checkpoints"] = len(s.opts.Tracker.Checkpoints())
	}
	if s.opts.Captures != nil {
		status["captures"] = s.opts.Captures.Captures()
	}
	respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleDevices(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.opts.Profiles.All())
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	mac := chi.URLParam(r, "mac")
	p, ok := s.opts.Profiles.Get(mac)
	if !ok {
		respondError(w, http.StatusNotFound, "no profile for %s", mac)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleTopVisitors(w http.ResponseWriter, r *http.Request) {
	n := queryInt(r, "n", 20)
	respondJSON(w, http.StatusOK, s.opts.Profiles.TopVisitors(n))
}

func (s *Server) handlePersonsOfInterest(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.opts.Profiles.PersonsOfInterest())
}

type labelRequest struct {
	MAC   string `json:"mac" validate:"required,mac"`
	Label string `json:"label" validate:"required,max=128"`
	Group string `json:"group" validate:"omitempty,max=32"`
	Notes string `json:"notes" validate:"omitempty,max=1024"`
}

func (s *Server) handleLabel(w http.ResponseWriter, r *http.Request) {
	var req labelRequest
	if err := s.decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "%v", err)
		return
	}
	p, err := s.opts.Profiles.Label(req.MAC, req.Label, profile.Group(req.Group), req.Notes)
	if err != nil {
		respondError(w, http.StatusBadRequest, "%v", err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleWatchlist(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.opts.Profiles.Watchlist())
}

type watchlistRequest struct {
	MAC string `json:"mac" validate:"required,mac"`
}

func (s *Server) handleWatchlistAdd(w http.ResponseWriter, r *http.Request) {
	var req watchlistRequest
	if err := s.decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "%v", err)
		return
	}
	p, err := s.opts.Profiles.SetWatchlisted(req.MAC, true)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleWatchlistRemove(w http.ResponseWriter, r *http.Request) {
	var req watchlistRequest
	if err := s.decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "%v", err)
		return
	}
	p, err := s.opts.Profiles.SetWatchlisted(req.MAC, false)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			respondError(w, http.StatusNotFound, "no profile for %s", req.MAC)
			return
		}
		respondError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	n := queryInt(r, "n", 0)
	respondJSON(w, http.StatusOK, s.opts.Bus.Recent(n))
}

func (s *Server) handleGetMode(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"mode": string(s.opts.Modes.Mode())})
}

type modeRequest struct {
	Mode string `json:"mode" validate:"required"`
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := s.decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "%v", err)
		return
	}
	mode, err := controller.ParseMode(req.Mode)
	if err != nil {
		respondError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if err := s.opts.Modes.SetMode(mode); err != nil {
		respondError(w, http.StatusConflict, "%v", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"mode": string(mode)})
}

func (s *Server) handleStalkers(w http.ResponseWriter, r *http.Request) {
	if s.opts.Tracker == nil {
		respondError(w, http.StatusServiceUnavailable, "gps correlation not enabled")
		return
	}
	n := queryInt(r, "n", 0)
	respondJSON(w, http.StatusOK, s.opts.Tracker.Report(n))
}

// handleStalkerScan runs the GPS correlation pipeline over the backend on
// demand and returns the refreshed ranked report.
func (s *Server) handleStalkerScan(w http.ResponseWriter, r *http.Request) {
	if s.opts.Tracker == nil || s.opts.Source == nil {
		respondError(w, http.StatusServiceUnavailable, "gps correlation not enabled")
		return
	}
	window := s.opts.ScanWindow
	if window <= 0 {
		window = 24 * time.Hour
	}
	recorded, err := s.opts.Tracker.Scan(r.Context(), s.opts.Source, time.Now().Add(-window))
	if err != nil {
		if errors.Is(err, kismet.ErrBackendUnavailable) {
			respondError(w, http.StatusServiceUnavailable, "%v", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"recorded": recorded,
		"tracks":   s.opts.Tracker.Report(0),
	})
}

func (s *Server) handleCheckpoints(w http.ResponseWriter, _ *http.Request) {
	if s.opts.Tracker == nil {
		respondError(w, http.StatusServiceUnavailable, "gps correlation not enabled")
		return
	}
	respondJSON(w, http.StatusOK, s.opts.Tracker.Checkpoints())
}

type checkpointRequest struct {
	Name string  `json:"name" validate:"required,max=64"`
	Lat  float64 `json:"lat" validate:"min=-90,max=90"`
	Lon  float64 `json:"lon" validate:"min=-180,max=180"`
}

func (s *Server) handleAddCheckpoint(w http.ResponseWriter, r *http.Request) {
	if s.opts.Tracker == nil {
		respondError(w, http.StatusServiceUnavailable, "gps correlation not enabled")
		return
	}
	var req checkpointRequest
	if err := s.decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "%v", err)
		return
	}
	cp, err := s.opts.Tracker.AddCheckpoint(req.Name, req.Lat, req.Lon)
	if err != nil {
		respondError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if err := s.opts.Tracker.Save(); err != nil {
		logging.Error().Err(err).Msg("failed to persist checkpoint")
	}
	respondJSON(w, http.StatusCreated, cp)
}

func (s *Server) handleExportCSV(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="devices.csv"`)
	if err := s.opts.Profiles.ExportCSV(w); err != nil {
		logging.Error().Err(err).Msg("csv export failed")
	}
}

func (s *Server) handleExportJSON(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="devices.json"`)
	if err := s.opts.Profiles.ExportJSON(w); err != nil {
		logging.Error().Err(err).Msg("json export failed")
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.opts.Hub == nil {
		respondError(w, http.StatusServiceUnavailable, "alert stream not enabled")
		return
	}
	websocket.ServeWS(s.opts.Hub, w, r)
}
