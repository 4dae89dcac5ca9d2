// Chasing Your Tail NG - Wireless Surveillance Detection Engine
// Copyright 2026 the Chasing Your Tail NG authors
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

// Package notify delivers alerts to outbound channels. The dispatcher
// sits on the alert bus as a sink, filters per channel by severity, and
// delivers from a worker goroutine so webhook latency never touches the
// scan loops.
package notify

import (
	"context"
	"sync"

	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/alert"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/logging"
)

// Notifier delivers one alert to an external destination.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, a alert.Alert) error
}

// queueSize bounds the dispatcher's backlog. When delivery falls this
// far behind, new alerts are dropped for notification purposes; the bus
// log still has them.
const queueSize = 64

type channel struct {
	notifier Notifier

	// sendOn is the set of severities this channel delivers. Empty
	// means every severity.
	sendOn map[alert.Severity]struct{}
}

func (c *channel) wants(s alert.Severity) bool {
	if len(c.sendOn) == 0 {
		return true
	}
	_, ok := c.sendOn[s]
	return ok
}

// Dispatcher fans alerts out to notification channels. It implements
// alert.Sink; attach it to the bus and run it under the supervisor.
type Dispatcher struct {
	mu       sync.RWMutex
	channels []channel
	queue    chan alert.Alert
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{queue: make(chan alert.Alert, queueSize)}
}

// AddChannel registers a notifier with its severity filter. An empty
// sendOn list delivers everything.
func (d *Dispatcher) AddChannel(n Notifier, sendOn []string) {
	ch := channel{notifier: n}
	if len(sendOn) > 0 {
		ch.sendOn = make(map[alert.Severity]struct{}, len(sendOn))
		for _, s := range sendOn {
			ch.sendOn[alert.Severity(s)] = struct{}{}
		}
	}
	d.mu.Lock()
	d.channels = append(d.channels, ch)
	d.mu.Unlock()
}

// ChannelCount returns the number of registered channels.
func (d *Dispatcher) ChannelCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.channels)
}

// Deliver implements alert.Sink. It never blocks; a full queue drops the
// alert for notification purposes.
func (d *Dispatcher) Deliver(a alert.Alert) {
	select {
	case d.queue <- a:
	default:
		logging.Warn().Str("alert_id", a.ID).Msg("notification queue full, dropping alert")
	}
}

// String names the dispatcher for supervision.
func (d *Dispatcher) String() string { return "notify-dispatcher" }

// Serve drains the queue until the context ends, delivering each alert
// to every channel whose filter matches. Delivery failures are logged
// and do not stop the worker.
func (d *Dispatcher) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case a := <-d.queue:
			d.mu.RLock()
			channels := make([]channel, len(d.channels))
			copy(channels, d.channels)
			d.mu.RUnlock()

			for _, ch := range channels {
				if !ch.wants(a.Severity) {
					continue
				}
				if err := ch.notifier.Notify(ctx, a); err != nil {
					logging.Error().
						Err(err).
						Str("channel", ch.notifier.Name()).
						Str("alert_id", a.ID).
						Msg("notification delivery failed")
				}
			}
		}
	}
}
