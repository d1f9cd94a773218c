// Package webhook implements the webhook channel dispatcher: a plain JSON
// HTTP POST to the notification's address (spec.md §4.3).
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"notifier/internal/dispatch"
	"notifier/internal/dispatch/payload"
	"notifier/internal/notification"
)

func init() {
	dispatch.Register("webhook", func() dispatch.Dispatcher { return &Dispatcher{} })
}

// Dispatcher posts the alarm payload to notification.Address.
type Dispatcher struct {
	client *http.Client
}

// Kind returns the stable dispatcher identifier.
func (d *Dispatcher) Kind() string { return "webhook" }

// Configure merges section over the {timeout: 5} default.
func (d *Dispatcher) Configure(section map[string]any) error {
	timeout := 5
	if v, ok := section["timeout"].(int); ok && v > 0 {
		timeout = v
	}
	d.client = &http.Client{Timeout: time.Duration(timeout) * time.Second}
	return nil
}

// SendNotification POSTs the webhook body; success iff status in [200,300).
func (d *Dispatcher) SendNotification(ctx context.Context, n *notification.Notification) (bool, error) {
	body := payload.BuildWebhookPayload(n)
	data, err := json.Marshal(body)
	if err != nil {
		return false, fmt.Errorf("marshaling webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.Address, bytes.NewReader(data))
	if err != nil {
		return false, fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		slog.Error("Webhook request failed", "address", n.Address, "alarm_id", n.AlarmID, "error", err)
		return false, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Error("Webhook returned error status", "address", n.Address, "status", resp.StatusCode)
		return false, nil
	}

	return true, nil
}
