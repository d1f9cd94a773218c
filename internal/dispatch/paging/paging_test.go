package paging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"notifier/internal/notification"
)

func TestSendNotification_Success(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	d := &Dispatcher{}
	d.Configure(map[string]any{"events_url": srv.URL})

	n := &notification.Notification{Address: "routing-key", AlarmID: "a", AlarmName: "cpu", Message: "reason"}
	ok, err := d.SendNotification(context.Background(), n)
	if err != nil {
		t.Fatalf("SendNotification() error = %v", err)
	}
	if !ok {
		t.Error("SendNotification() = false, want true")
	}
	if received["routing_key"] != "routing-key" || received["event_action"] != "trigger" {
		t.Errorf("received body = %v, unexpected", received)
	}
}

func TestSendNotification_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	d := &Dispatcher{}
	d.Configure(map[string]any{"events_url": srv.URL})

	ok, err := d.SendNotification(context.Background(), &notification.Notification{Address: "rk"})
	if err != nil {
		t.Fatalf("SendNotification() error = %v, want nil", err)
	}
	if ok {
		t.Error("SendNotification() = true for 400 response, want false")
	}
}
