package email

import (
	"strings"
	"testing"

	"notifier/internal/notification"
)

func TestParseRecipients(t *testing.T) {
	tests := []struct {
		name    string
		address string
		want    int
	}{
		{"single", "a@example.com", 1},
		{"multiple", "a@example.com, b@example.com", 2},
		{"empty", "", 0},
		{"trailing comma", "a@example.com,", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseRecipients(tt.address); len(got) != tt.want {
				t.Errorf("parseRecipients(%q) = %v, want %d entries", tt.address, got, tt.want)
			}
		})
	}
}

func TestDefaultSubject(t *testing.T) {
	tests := []struct {
		state string
		want  string
	}{
		{"ALARM", "ALARM  on cpu"},
		{"OK", "Cleared: cpu"},
		{"UNDETERMINED", "UNDETERMINED: cpu"},
	}
	for _, tt := range tests {
		n := &notification.Notification{AlarmName: "cpu", State: tt.state}
		if got := defaultSubject(n); got != tt.want {
			t.Errorf("defaultSubject() for state %q = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestBuiltinBody_SelectsByDimensions(t *testing.T) {
	n := &notification.Notification{
		AlarmName:  "cpu",
		State:      "ALARM",
		Message:    "high usage",
		Dimensions: map[string]string{"hostname": "h1"},
	}
	body := builtinBody(n, "desc")
	if !strings.Contains(body, "Host: h1") {
		t.Errorf("builtinBody() = %q, want single-host line", body)
	}
}

func TestConfigure_UnknownProvider(t *testing.T) {
	d := &Dispatcher{}
	err := d.Configure(map[string]any{"provider": "carrier-pigeon"})
	if err == nil {
		t.Fatal("Configure() expected error for unknown provider")
	}
}

func TestConfigure_ResendWithoutAPIKey(t *testing.T) {
	d := &Dispatcher{}
	err := d.Configure(map[string]any{"provider": "resend"})
	if err == nil {
		t.Fatal("Configure() expected error when resend provider has no api_key")
	}
}
