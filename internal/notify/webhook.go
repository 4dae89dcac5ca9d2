// Chasing Your Tail NG - Wireless Surveillance Detection Engine
// Copyright 2026 the Chasing Your Tail NG authors
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/alert"
)

// webhookTimeout bounds one delivery attempt.
const webhookTimeout = 10 * time.Second

// WebhookNotifier POSTs alerts as JSON to a configured URL.
type WebhookNotifier struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// NewWebhookNotifier creates a webhook channel. Extra headers (auth
// tokens, routing keys) are sent with every request.
func NewWebhookNotifier(url string, headers map[string]string) (*WebhookNotifier, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook url is required")
	}
	return &WebhookNotifier{
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: webhookTimeout},
	}, nil
}

// Name returns the channel identifier.
func (w *WebhookNotifier) Name() string { return "webhook" }

// webhookPayload is the wire shape of a delivered alert.
type webhookPayload struct {
	ID        string    `json:"id"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

// Notify delivers one alert. Any non-2xx response is an error.
func (w *WebhookNotifier) Notify(ctx context.Context, a alert.Alert) error {
	body, err := json.Marshal(webhookPayload{
		ID:        a.ID,
		Severity:  string(a.Severity),
		Message:   a.Message,
		Timestamp: a.Timestamp,
		Source:    "chasing-your-tail-ng",
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
