// Chasing Your Tail NG - Wireless Surveillance Detection Engine
// Copyright 2026 the Chasing Your Tail NG authors
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

package alert

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/logging"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/metrics"
)

const (
	// maxLogEntries caps the in-memory alert log. Oldest entries are
	// evicted first.
	maxLogEntries = 200

	// subscriberBuffer is the per-subscriber mailbox size. A subscriber
	// that falls this far behind starts losing alerts, not blocking
	// the scan loop.
	subscriberBuffer = 32

	// durableTimeFormat is the timestamp layout in the on-disk alert log.
	durableTimeFormat = "2006-01-02 15:04:05"
)

// Sink receives every published alert. Implementations must not block;
// slow delivery belongs behind the implementation's own queue.
type Sink interface {
	Deliver(Alert)
}

// Bus fans alerts out to the in-memory log, the durable file sink, the
// console log, subscribers, and any attached sinks. All methods are safe
// for concurrent use.
type Bus struct {
	mu          sync.RWMutex
	log         []Alert
	subscribers map[string]chan Alert
	sinks       []Sink

	durable *os.File
	console bool
}

// Options configures a Bus.
type Options struct {
	// DurablePath, when set, appends alerts to this file as plain text.
	DurablePath string

	// Console mirrors alerts into the engine log.
	Console bool
}

// NewBus creates an alert bus. The durable file (if configured) is opened
// append-only, creating parent directories as needed.
func NewBus(opts Options) (*Bus, error) {
	b := &Bus{
		subscribers: make(map[string]chan Alert),
		console:     opts.Console,
	}
	if opts.DurablePath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.DurablePath), 0o755); err != nil {
			return nil, fmt.Errorf("create alert log dir: %w", err)
		}
		f, err := os.OpenFile(opts.DurablePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open alert log: %w", err)
		}
		b.durable = f
	}
	return b, nil
}

// Publish creates and distributes an alert. It never blocks: full
// subscriber mailboxes drop the alert for that subscriber.
func (b *Bus) Publish(severity Severity, format string, args ...any) Alert {
	a := New(severity, fmt.Sprintf(format, args...))
	b.distribute(a)
	return a
}

func (b *Bus) distribute(a Alert) {
	metrics.AlertsPublished.WithLabelValues(string(a.Severity)).Inc()

	b.mu.Lock()
	b.log = append(b.log, a)
	if len(b.log) > maxLogEntries {
		b.log = b.log[len(b.log)-maxLogEntries:]
	}
	durable := b.durable
	sinks := make([]Sink, len(b.sinks))
	copy(sinks, b.sinks)
	for id, ch := range b.subscribers {
		select {
		case ch <- a:
		default:
			// Mailbox full: the subscriber stopped draining. Drop the
			// subscriber, not the alert stream; a live consumer (the
			// websocket hub under supervision) resubscribes.
			delete(b.subscribers, id)
			close(ch)
			logging.Warn().
				Str("subscriber", id).
				Msg("subscriber mailbox overflow, dropping subscriber")
		}
	}
	b.mu.Unlock()

	if durable != nil {
		line := fmt.Sprintf("[%s] [%s] %s\n",
			a.Timestamp.Format(durableTimeFormat), a.Severity, a.Message)
		if _, err := durable.WriteString(line); err != nil {
			logging.Error().Err(err).Msg("failed to append to alert log")
		}
	}

	if b.console {
		event := logging.Info()
		switch a.Severity {
		case SeverityWarning:
			event = logging.Warn()
		case SeverityCritical:
			event = logging.Error()
		}
		event.Str("severity", string(a.Severity)).Msg(a.Message)
	}

	for _, s := range sinks {
		s.Deliver(a)
	}
}

// Subscribe registers a new subscriber and returns its id and mailbox.
// The mailbox is bounded; a subscriber that stops draining loses alerts.
func (b *Bus) Subscribe() (string, <-chan Alert) {
	id := uuid.NewString()
	ch := make(chan Alert, subscriberBuffer)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its mailbox.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(ch)
	}
	b.mu.Unlock()
}

// AttachSink adds a delivery sink (notification dispatcher, test capture).
func (b *Bus) AttachSink(s Sink) {
	b.mu.Lock()
	b.sinks = append(b.sinks, s)
	b.mu.Unlock()
}

// Recent returns up to n alerts, newest last. n <= 0 returns the whole log.
func (b *Bus) Recent(n int) []Alert {
	b.mu.RLock()
	defer b.mu.RUnlock()
	start := 0
	if n > 0 && len(b.log) > n {
		start = len(b.log) - n
	}
	out := make([]Alert, len(b.log)-start)
	copy(out, b.log[start:])
	return out
}

// Close releases the durable sink and closes all subscriber mailboxes.
func (b *Bus) Close() error {
	b.mu.Lock()
	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
	durable := b.durable
	b.durable = nil
	b.mu.Unlock()

	if durable != nil {
		return durable.Close()
	}
	return nil
}
