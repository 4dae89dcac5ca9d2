// Chasing Your Tail NG - Wireless Surveillance Detection Engine
// Copyright 2026 the Chasing Your Tail NG authors
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

package kismet

import (
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// Observation is a normalized device sighting, decoupled from the Kismet
// row layout. Everything downstream (profiles, detectors, the GPS
// correlator) consumes Observations.
type Observation struct {
	MAC          string    `json:"mac"`
	Type         string    `json:"type"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	Lat          float64   `json:"lat"`
	Lon          float64   `json:"lon"`
	HasGPS       bool      `json:"has_gps"`
	Signal       int       `json:"signal"`
	SSIDs        []string  `json:"ssids,omitempty"`
	Manufacturer string    `json:"manufacturer"`
}

// Blob field names used by Kismet's device JSON.
const (
	blobManufKey      = "kismet.device.base.manuf"
	blobDot11Key      = "dot11.device"
	blobProbedMapKey  = "dot11.device.probed_ssid_map"
	blobAdvertMapKey  = "dot11.device.advertised_ssid_map"
	blobProbedSSIDKey = "dot11.probedssid.ssid"
	blobAdvertSSIDKey = "dot11.advertisedssid.ssid"
)

// Normalize converts a raw devices-table row into an Observation. A
// malformed or missing device blob degrades gracefully: the row still
// yields an Observation, just without SSIDs or a blob manufacturer.
func Normalize(row Row) Observation {
	obs := Observation{
		MAC:       strings.ToUpper(row.MAC),
		Type:      row.Type,
		FirstSeen: time.Unix(row.FirstTime, 0).UTC(),
		LastSeen:  time.Unix(row.LastTime, 0).UTC(),
		Lat:       row.AvgLat,
		Lon:       row.AvgLon,
		HasGPS:    row.AvgLat != 0 || row.AvgLon != 0,
		Signal:    row.StrongestSignal,
	}

	var blob map[string]json.RawMessage
	if len(row.Device) > 0 {
		if err := json.Unmarshal(row.Device, &blob); err != nil {
			blob = nil
		}
	}

	obs.SSIDs = extractSSIDs(blob)
	obs.Manufacturer = resolveManufacturer(blob, obs.MAC)
	return obs
}

// extractSSIDs collects probed then advertised SSIDs from the dot11
// sub-blob, deduplicated in first-seen order.
func extractSSIDs(blob map[string]json.RawMessage) []string {
	if blob == nil {
		return nil
	}
	raw, ok := blob[blobDot11Key]
	if !ok {
		return nil
	}
	var dot11 map[string]json.RawMessage
	if err := json.Unmarshal(raw, &dot11); err != nil {
		return nil
	}

	var ssids []string
	seen := make(map[string]struct{})
	add := func(ssid string) {
		if ssid == "" {
			return
		}
		if _, dup := seen[ssid]; dup {
			return
		}
		seen[ssid] = struct{}{}
		ssids = append(ssids, ssid)
	}

	for _, entry := range ssidMapEntries(dot11[blobProbedMapKey]) {
		add(stringField(entry, blobProbedSSIDKey))
	}
	for _, entry := range ssidMapEntries(dot11[blobAdvertMapKey]) {
		add(stringField(entry, blobAdvertSSIDKey))
	}
	return ssids
}

// ssidMapEntries decodes a Kismet ssid_map, which serializes either as a
// list of entries or as an object keyed by SSID hash. Object keys are
// sorted so the extraction order is deterministic.
func ssidMapEntries(raw json.RawMessage) []map[string]json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var asList []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &asList); err == nil {
		return asList
	}
	var asMap map[string]map[string]json.RawMessage
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return nil
	}
	keys := make([]string, 0, len(asMap))
	for k := range asMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	entries := make([]map[string]json.RawMessage, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, asMap[k])
	}
	return entries
}

func stringField(entry map[string]json.RawMessage, key string) string {
	raw, ok := entry[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// resolveManufacturer prefers the manufacturer Kismet already resolved in
// the device blob, falls back to the local OUI table, and finally to
// "Unknown".
func resolveManufacturer(blob map[string]json.RawMessage, mac string) string {
	if blob != nil {
		if manuf := stringField(blob, blobManufKey); manuf != "" && manuf != "Unknown" {
			return manuf
		}
	}
	if manuf := LookupOUI(mac); manuf != "" {
		return manuf
	}
	return "Unknown"
}
