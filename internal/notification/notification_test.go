package notification

import "testing"

func sample() *Notification {
	return &Notification{
		ID:               "n1",
		Kind:             "webhook",
		Name:             "wh",
		Address:          "http://x",
		Period:           60,
		AlarmID:          "a",
		AlarmName:        "cpu",
		AlarmDescription: "desc",
		State:            "ALARM",
		OldState:         "OK",
		Dimensions:       map[string]string{"hostname": "h1"},
		Metrics: []Metric{
			{Name: "cpu.idle", Dimensions: map[string]string{"hostname": "h1"}},
		},
	}
}

func TestIsPeriodicEligible(t *testing.T) {
	tests := []struct {
		name   string
		period int
		kind   string
		want   bool
	}{
		{"webhook with period", 60, "webhook", true},
		{"webhook without period", 0, "webhook", false},
		{"email with period", 60, "email", false},
		{"email without period", 0, "email", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &Notification{Period: tt.period, Kind: tt.kind}
			if got := n.IsPeriodicEligible(); got != tt.want {
				t.Errorf("IsPeriodicEligible() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEqual_IgnoresMutableFields(t *testing.T) {
	a := sample()
	b := sample()

	ts := 123.0
	b.NotificationTimestamp = &ts
	b.RetryCount = 3

	if !a.Equal(b) {
		t.Error("Equal() = false for notifications differing only in RetryCount/NotificationTimestamp, want true")
	}
}

func TestEqual_DetectsFieldDifference(t *testing.T) {
	a := sample()
	b := sample()
	b.State = "OK"

	if a.Equal(b) {
		t.Error("Equal() = true for notifications with different State, want false")
	}
}

func TestEqual_NilHandling(t *testing.T) {
	var a, b *Notification
	if !a.Equal(b) {
		t.Error("Equal() = false for two nil notifications, want true")
	}
	c := sample()
	if a.Equal(c) || c.Equal(a) {
		t.Error("Equal() between nil and non-nil should be false")
	}
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	orig := sample()
	data, err := orig.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	decoded, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}

	if !orig.Equal(decoded) {
		t.Error("round-tripped notification not Equal() to original")
	}
}

func TestJoinDimensionValues(t *testing.T) {
	got := JoinDimensionValues([]string{"b", "a", "c"})
	want := "a, b, c"
	if got != want {
		t.Errorf("JoinDimensionValues() = %q, want %q", got, want)
	}
}
