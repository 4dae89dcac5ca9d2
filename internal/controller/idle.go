// Chasing Your Tail NG - Wireless Surveillance Detection Engine
// Copyright 2026 the Chasing Your Tail NG authors
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

package controller

import (
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"time"
)

// IdleFunc reports how long the workstation has been idle. Screensaver
// mode polls it; injecting a fake makes the mode testable without a
// desktop session.
type IdleFunc func() (time.Duration, error)

var hidIdlePattern = regexp.MustCompile(`"HIDIdleTime"\s*=\s*(\d+)`)

// SystemIdle queries the host for input idle time. On macOS it reads
// HIDIdleTime (nanoseconds) from the IOKit registry; other platforms
// report an error and screensaver mode stays dormant.
func SystemIdle() (time.Duration, error) {
	out, err := exec.Command("ioreg", "-c", "IOHIDSystem").Output()
	if err != nil {
		return 0, fmt.Errorf("query idle time: %w", err)
	}
	m := hidIdlePattern.FindSubmatch(out)
	if m == nil {
		return 0, fmt.Errorf("HIDIdleTime not found in ioreg output")
	}
	ns, err := strconv.ParseInt(string(m[1]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse HIDIdleTime: %w", err)
	}
	return time.Duration(ns), nil
}
