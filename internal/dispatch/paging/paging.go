// Package paging implements the paging channel dispatcher: same shape as
// webhook, with the provider's event-trigger payload (spec.md §4.3).
package paging

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
	dispatch.Register("paging", func() dispatch.Dispatcher { return &Dispatcher{} })
}

const defaultEventsURL = "https://events.pagerduty.com/v2/enqueue"

// Dispatcher posts a PagerDuty-Events-API-v2-shaped trigger event.
type Dispatcher struct {
	client   *http.Client
	eventsURL string
}

// Kind returns the stable dispatcher identifier.
func (d *Dispatcher) Kind() string { return "paging" }

// Configure merges section over the {timeout: 5} default.
func (d *Dispatcher) Configure(section map[string]any) error {
	timeout := 5
	if v, ok := section["timeout"].(int); ok && v > 0 {
		timeout = v
	}
	d.client = &http.Client{Timeout: time.Duration(timeout) * time.Second}
	d.eventsURL = defaultEventsURL
	if v, ok := section["events_url"].(string); ok && v != "" {
		d.eventsURL = v
	}
	return nil
}

// SendNotification sends a trigger event; the notification's Address is the
// provider routing key.
func (d *Dispatcher) SendNotification(ctx context.Context, n *notification.Notification) (bool, error) {
	body := payload.BuildPagingPayload(n, n.Address, time.Now().UTC().Format(time.RFC3339))
	data, err := json.Marshal(body)
	if err != nil {
		return false, fmt.Errorf("marshaling paging payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.eventsURL, bytes.NewReader(data))
	if err != nil {
		return false, fmt.Errorf("building paging request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		slog.Error("Paging request failed", "alarm_id", n.AlarmID, "error", err)
		return false, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Error("Paging provider returned error status", "status", resp.StatusCode)
		return false, nil
	}

	return true, nil
}
