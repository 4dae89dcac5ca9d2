// Chasing Your Tail NG - Wireless Surveillance Detection Engine
// Copyright 2026 the Chasing Your Tail NG authors
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

// Package alert carries detection alerts from the scan loops to their
// consumers: the in-memory log behind the API, the durable text sink,
// the console, websocket subscribers, and outbound notification channels.
package alert

import (
	"time"

	"github.com/google/uuid"
)

// Severity grades an alert.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// rank orders severities for filtering. Unknown severities rank lowest.
func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether s is at least as severe as min.
func (s Severity) AtLeast(min Severity) bool {
	return s.rank() >= min.rank()
}

// Valid reports whether s is one of the three defined severities.
func (s Severity) Valid() bool {
	return s.rank() > 0
}

// Alert is one detection event.
type Alert struct {
	ID        string    `json:"id"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// New creates an Alert stamped with a fresh ID and the current time.
func New(severity Severity, message string) Alert {
	return Alert{
		ID:        uuid.NewString(),
		Severity:  severity,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}
