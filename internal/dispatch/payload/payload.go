// Package payload builds the outbound request bodies for the HTTP-shaped
// channel dispatchers (webhook, chat, paging).
package payload

import (
	"strings"

	"notifier/internal/notification"
)

// WebhookPayload is the wire body for the webhook dispatcher (spec.md §6).
type WebhookPayload struct {
	AlarmID           string         `json:"alarm_id"`
	AlarmDefinitionID string         `json:"alarm_definition_id,omitempty"`
	AlarmName         string         `json:"alarm_name"`
	AlarmDescription  string         `json:"alarm_description"`
	AlarmTimestamp    float64        `json:"alarm_timestamp"`
	State             string         `json:"state"`
	OldState          string         `json:"old_state"`
	Message           string         `json:"message"`
	TenantID          string         `json:"tenant_id"`
	Metrics           []MetricEntry  `json:"metrics"`
}

// MetricEntry mirrors a notification's Metric for wire purposes.
type MetricEntry struct {
	Name       string            `json:"name"`
	Dimensions map[string]string `json:"dimensions"`
}

// BuildWebhookPayload builds the webhook body spec.md §6 defines. It leaves
// AlarmDefinitionID empty: a Notification does not carry that field.
func BuildWebhookPayload(n *notification.Notification) WebhookPayload {
	metrics := make([]MetricEntry, 0, len(n.Metrics))
	for _, m := range n.Metrics {
		metrics = append(metrics, MetricEntry{Name: m.Name, Dimensions: m.Dimensions})
	}
	return WebhookPayload{
		AlarmID:          n.AlarmID,
		AlarmName:        n.AlarmName,
		AlarmDescription: n.AlarmDescription,
		AlarmTimestamp:   n.AlarmTimestamp,
		State:            n.State,
		OldState:         n.OldState,
		Message:          n.Message,
		TenantID:         n.TenantID,
		Metrics:          metrics,
	}
}

// PagingDetails is the custom_details object of a paging event.
type PagingDetails struct {
	AlarmID           string `json:"alarm_id"`
	AlarmDefinitionID string `json:"alarm_definition_id,omitempty"`
	TenantID          string `json:"tenant_id"`
	Link              string `json:"link,omitempty"`
}

// PagingPayload is the event-trigger body the paging dispatcher sends
// (PagerDuty Events API v2 shape, SPEC_FULL.md §6).
type PagingPayload struct {
	RoutingKey  string      `json:"routing_key"`
	EventAction string      `json:"event_action"`
	Payload     PagingEvent `json:"payload"`
}

// PagingEvent is the nested event summary/severity/source/details object.
type PagingEvent struct {
	Summary        string        `json:"summary"`
	Source         string        `json:"source"`
	Severity       string        `json:"severity"`
	Timestamp      string        `json:"timestamp"`
	CustomDetails  PagingDetails `json:"custom_details"`
}

// BuildPagingPayload builds a PagerDuty-shaped trigger event.
func BuildPagingPayload(n *notification.Notification, routingKey string, timestamp string) PagingPayload {
	return PagingPayload{
		RoutingKey:  routingKey,
		EventAction: "trigger",
		Payload: PagingEvent{
			Summary:   n.AlarmName + ": " + n.Message,
			Source:    n.AlarmID,
			Severity:  strings.ToLower(n.Severity),
			Timestamp: timestamp,
			CustomDetails: PagingDetails{
				AlarmID:  n.AlarmID,
				TenantID: n.TenantID,
				Link:     n.Link,
			},
		},
	}
}

// ChatPlainPayload is the default {channel?, text} incoming-webhook body.
type ChatPlainPayload struct {
	Channel string `json:"channel,omitempty"`
	Text    string `json:"text"`
}

// MarkdownLinksToPlain turns "[text](url)" into "text (url)" for bodies
// that do not support markdown links (plain email bodies).
func MarkdownLinksToPlain(s string) string {
	return rewriteMarkdownLinks(s, func(text, url string) string {
		return text + " (" + url + ")"
	})
}

// MarkdownLinksToChat turns "[text](url)" into Slack's "<url|text>" syntax.
func MarkdownLinksToChat(s string) string {
	return rewriteMarkdownLinks(s, func(text, url string) string {
		return "<" + url + "|" + text + ">"
	})
}

// rewriteMarkdownLinks scans s for "[text](url)" spans and rewrites each
// with render. Malformed spans (unterminated brackets) are left verbatim.
func rewriteMarkdownLinks(s string, render func(text, url string) string) string {
	var out strings.Builder
	i := 0
	for i < len(s) {
		if s[i] != '[' {
			out.WriteByte(s[i])
			i++
			continue
		}
		closeBracket := strings.IndexByte(s[i:], ']')
		if closeBracket == -1 {
			out.WriteString(s[i:])
			break
		}
		closeBracket += i
		if closeBracket+1 >= len(s) || s[closeBracket+1] != '(' {
			out.WriteByte(s[i])
			i++
			continue
		}
		closeParen := strings.IndexByte(s[closeBracket+2:], ')')
		if closeParen == -1 {
			out.WriteByte(s[i])
			i++
			continue
		}
		closeParen += closeBracket + 2

		text := s[i+1 : closeBracket]
		url := s[closeBracket+2 : closeParen]
		out.WriteString(render(text, url))
		i = closeParen + 1
	}
	return out.String()
}
