package health

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// WebhookNotifier delivers health events to an HTTP endpoint. Delivery is
// best-effort: failures are logged, never surfaced to the caller, because a
// broken webhook must not block pause/resume bookkeeping.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a notifier for the given webhook URL. An empty
// URL yields a notifier that drops every event.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Notify posts the event as JSON.
func (n *WebhookNotifier) Notify(ctx context.Context, event Event) {
	if n.url == "" {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		zap.L().Error("health: marshal webhook event", zap.Error(err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		zap.L().Error("health: create webhook request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		zap.L().Error("health: webhook delivery failed",
			zap.String("type", event.Type),
			zap.Error(err),
		)
		return
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		zap.L().Error("health: webhook returned error status",
			zap.String("type", event.Type),
			zap.Int("status", resp.StatusCode),
		)
		return
	}

	zap.L().Info("health: event delivered",
		zap.String("type", event.Type),
		zap.String("provider", event.Provider),
	)
}
