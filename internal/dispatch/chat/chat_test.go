package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"notifier/internal/notification"
)

func TestSendNotification_PlainBody(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := &Dispatcher{}
	if err := d.Configure(nil); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}

	n := &notification.Notification{Address: srv.URL + "?channel=ops", AlarmDescription: "see [docs](http://x)"}
	ok, err := d.SendNotification(context.Background(), n)
	if err != nil {
		t.Fatalf("SendNotification() error = %v", err)
	}
	if !ok {
		t.Error("SendNotification() = false, want true")
	}
	if received["channel"] != "ops" {
		t.Errorf("received channel = %v, want ops", received["channel"])
	}
	if received["text"] != "see <http://x|docs>" {
		t.Errorf("received text = %v, want chat-syntax link", received["text"])
	}
}

func TestSendNotification_JSONBodyOKFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok": false}`))
	}))
	defer srv.Close()

	d := &Dispatcher{}
	d.Configure(nil)

	ok, err := d.SendNotification(context.Background(), &notification.Notification{Address: srv.URL})
	if err != nil {
		t.Fatalf("SendNotification() error = %v", err)
	}
	if ok {
		t.Error("SendNotification() = true when response declares ok=false, want false")
	}
}

func TestConfigure_Insecure(t *testing.T) {
	d := &Dispatcher{}
	if err := d.Configure(map[string]any{"insecure": true, "timeout": 10}); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	if d.client.Timeout.Seconds() != 10 {
		t.Errorf("client timeout = %v, want 10s", d.client.Timeout)
	}
	tr, ok := d.client.Transport.(*http.Transport)
	if !ok || tr.TLSClientConfig == nil || !tr.TLSClientConfig.InsecureSkipVerify {
		t.Error("TLS InsecureSkipVerify = false with insecure=true, want true")
	}
}

func TestChannelFromAddress(t *testing.T) {
	tests := []struct {
		address string
		want    string
	}{
		{"http://x/hook?channel=alerts", "alerts"},
		{"http://x/hook", ""},
		{"not a url :://", ""},
	}
	for _, tt := range tests {
		if got := channelFromAddress(tt.address); got != tt.want {
			t.Errorf("channelFromAddress(%q) = %q, want %q", tt.address, got, tt.want)
		}
	}
}
