// Package notification defines the in-flight delivery unit that flows
// between engines on the message log.
package notification

import (
	"encoding/json"
	"sort"
	"strings"
)

// Notification is the immutable-by-convention value object describing one
// pending (or already-attempted) delivery. Engines mutate RetryCount and
// NotificationTimestamp, and the retry and periodic engines refresh Kind,
// Name and Address from the configuration store; the remaining fields are set
// once by the alarm transformer at construction (RawAlarm is not filled in).
type Notification struct {
	ID             string `json:"id"`
	Kind           string `json:"type"`
	Name           string `json:"name"`
	Address        string `json:"address"`
	RetryCount     int    `json:"retry_count"`
	Period         int    `json:"period"`
	PeriodicTopic  string `json:"periodic_topic,omitempty"`

	RawAlarm json.RawMessage `json:"raw_alarm,omitempty"`

	AlarmID          string `json:"alarm_id"`
	AlarmName        string `json:"alarm_name"`
	AlarmDescription string `json:"alarm_description"`
	AlarmTimestamp   float64 `json:"alarm_timestamp"`
	Message          string `json:"message"`
	State            string `json:"state"`
	OldState         string `json:"old_state"`
	Severity         string `json:"severity"`
	Link             string `json:"link"`
	LifecycleState   string `json:"lifecycle_state"`
	TenantID         string `json:"tenant_id"`

	// NotificationTimestamp is nil until the notification has been offered to
	// a dispatcher at least once.
	NotificationTimestamp *float64 `json:"notification_timestamp"`

	Dimensions   map[string]string `json:"dimensions,omitempty"`
	MetricValues map[string]any    `json:"metric_values,omitempty"`
	Metrics      []Metric          `json:"metrics,omitempty"`
}

// Metric is one alarm metric: a name plus its dimension set.
type Metric struct {
	Name       string            `json:"name"`
	Dimensions map[string]string `json:"dimensions"`
}

// IsPeriodicEligible reports whether this notification qualifies for
// periodic re-firing: period > 0 and kind webhook (spec §3).
func (n *Notification) IsPeriodicEligible() bool {
	return n.Period > 0 && n.Kind == "webhook"
}

// Equal performs an explicit deep-equals over the enumerated fields, ignoring
// the two fields engines are allowed to mutate across the notification's
// lifetime (RetryCount, NotificationTimestamp). RawAlarm and MetricValues
// are not compared either. This replaces the source
// system's reflection-based attribute comparison with an enumerated one.
func (n *Notification) Equal(o *Notification) bool {
	if n == nil || o == nil {
		return n == o
	}
	if n.ID != o.ID ||
		n.Kind != o.Kind ||
		n.Name != o.Name ||
		n.Address != o.Address ||
		n.Period != o.Period ||
		n.PeriodicTopic != o.PeriodicTopic ||
		n.AlarmID != o.AlarmID ||
		n.AlarmName != o.AlarmName ||
		n.AlarmDescription != o.AlarmDescription ||
		n.AlarmTimestamp != o.AlarmTimestamp ||
		n.Message != o.Message ||
		n.State != o.State ||
		n.OldState != o.OldState ||
		n.Severity != o.Severity ||
		n.Link != o.Link ||
		n.LifecycleState != o.LifecycleState ||
		n.TenantID != o.TenantID {
		return false
	}
	if !stringMapEqual(n.Dimensions, o.Dimensions) {
		return false
	}
	if len(n.Metrics) != len(o.Metrics) {
		return false
	}
	for i := range n.Metrics {
		if n.Metrics[i].Name != o.Metrics[i].Name || !stringMapEqual(n.Metrics[i].Dimensions, o.Metrics[i].Dimensions) {
			return false
		}
	}
	return true
}

func stringMapEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

// Marshal serializes the notification for publication to a log topic.
func (n *Notification) Marshal() ([]byte, error) {
	return json.Marshal(n)
}

// Unmarshal decodes a notification previously published to a log topic.
func Unmarshal(data []byte) (*Notification, error) {
	n := &Notification{}
	if err := json.Unmarshal(data, n); err != nil {
		return nil, err
	}
	return n, nil
}

// JoinDimensionValues sorts the values of one dimension key and joins them
// with ", ", giving the stable merged value the alarm transformer stores in
// Dimensions.
func JoinDimensionValues(values []string) string {
	sorted := append([]string(nil), values...)
	sort.Strings(sorted)
	return strings.Join(sorted, ", ")
}
