// Chasing Your Tail NG - Wireless Surveillance Detection Engine
// Copyright 2026 the Chasing Your Tail NG authors
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

package profile

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// csvHeader is the column layout of the CSV export.
var csvHeader = []string{
	"mac", "label", "group", "manufacturer",
	"first_seen", "last_seen",
	"total_encounters", "stationary_encounters", "roaming_encounters",
	"encounter_score", "signal_trend",
	"ssids", "context_tags", "watchlisted", "cross_context",
}

// ExportCSV writes every profile as CSV, one row per device, in
// insertion order.
func (s *Store) ExportCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, p := range s.All() {
		row := []string{
			p.MAC,
			p.Label,
			string(p.Group),
			p.Manufacturer,
			formatTime(p.FirstSeen),
			formatTime(p.LastSeen),
			strconv.Itoa(p.TotalEncounters),
			strconv.Itoa(p.StationaryEncounters),
			strconv.Itoa(p.RoamingEncounters),
			strconv.FormatFloat(p.EncounterScore, 'f', 4, 64),
			string(p.SignalTrend),
			strings.Join(p.SSIDs, ";"),
			strings.Join(p.ContextTags, ";"),
			strconv.FormatBool(p.Watchlisted),
			strconv.FormatBool(p.CrossContext),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row for %s: %w", p.MAC, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportJSON writes every profile as an indented JSON array, in
// insertion order.
func (s *Store) ExportJSON(w io.Writer) error {
	data, err := json.MarshalIndent(s.All(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal export: %w", err)
	}
	_, err = w.Write(data)
	return err
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
