package payload

import (
	"testing"

	"notifier/internal/notification"
)

func TestBuildWebhookPayload(t *testing.T) {
	n := &notification.Notification{
		AlarmID:          "a",
		AlarmName:        "cpu",
		AlarmDescription: "desc",
		State:            "ALARM",
		OldState:         "OK",
		Message:          "reason",
		TenantID:         "t",
		Metrics:          []notification.Metric{{Name: "cpu.idle", Dimensions: map[string]string{"hostname": "h1"}}},
	}
	got := BuildWebhookPayload(n)
	if got.AlarmID != "a" || got.State != "ALARM" || len(got.Metrics) != 1 {
		t.Errorf("BuildWebhookPayload() = %+v, unexpected", got)
	}
}

func TestBuildPagingPayload(t *testing.T) {
	n := &notification.Notification{AlarmID: "a", AlarmName: "cpu", Message: "reason", Severity: "HIGH"}
	got := BuildPagingPayload(n, "rk", "2024-01-01T00:00:00Z")
	if got.RoutingKey != "rk" || got.EventAction != "trigger" || got.Payload.Severity != "high" {
		t.Errorf("BuildPagingPayload() = %+v, unexpected", got)
	}
}

func TestMarkdownLinksToPlain(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple link", "see [docs](http://x) for more", "see docs (http://x) for more"},
		{"no link", "plain text", "plain text"},
		{"unterminated bracket", "see [docs for more", "see [docs for more"},
		{"multiple links", "[a](u1) and [b](u2)", "a (u1) and b (u2)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MarkdownLinksToPlain(tt.input); got != tt.want {
				t.Errorf("MarkdownLinksToPlain(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestMarkdownLinksToChat(t *testing.T) {
	got := MarkdownLinksToChat("see [docs](http://x)")
	want := "see <http://x|docs>"
	if got != want {
		t.Errorf("MarkdownLinksToChat() = %q, want %q", got, want)
	}
}
