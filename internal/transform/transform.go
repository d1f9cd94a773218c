// Package transform implements the alarm transformer: it turns one raw
// alarm-transition record into zero or more Notification entities.
package transform

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/valyala/fasttemplate"

	"notifier/internal/alarm"
	"notifier/internal/metrics"
	"notifier/internal/notification"
	"notifier/internal/store"
)

// Transformer validates raw alarms, queries the configuration store for
// subscribed actions, and builds Notification entities.
type Transformer struct {
	ttl   *int
	store *store.Store
	dsn   string
	stats *metrics.Collector
	now   func() time.Time
}

// New creates a Transformer. ttl is the alarm staleness bound in seconds, or
// nil to disable staleness checking.
func New(ttl *int, st *store.Store, dsn string, stats *metrics.Collector) *Transformer {
	return &Transformer{ttl: ttl, store: st, dsn: dsn, stats: stats, now: time.Now}
}

// Result is the outcome of transforming one record.
type Result struct {
	Notifications []*notification.Notification
	Dropped       bool // true if the record produced no notifications (malformed, filtered out, or no matching actions)
}

// ToNotification implements spec.md §4.1's to_notification contract. The
// caller commits the record's offset whenever no error is returned; a
// returned error (a configuration-store failure) leaves it uncommitted.
func (tr *Transformer) ToNotification(ctx context.Context, value []byte) (*Result, error) {
	raw, err := alarm.Parse(value)
	if err != nil {
		tr.stats.Increment("alarms_failed_parse_count", nil)
		slog.Error("Invalid alarm format, skipping", "error", err)
		return &Result{Dropped: true}, nil
	}

	if !tr.isValid(raw) {
		tr.stats.Increment("alarms_no_notification_count", nil)
		return &Result{Dropped: true}, nil
	}

	actions, err := tr.store.FetchNotificationRetrying(ctx, tr.dsn, raw.AlarmDefinitionID, raw.NewState)
	if err != nil {
		return nil, fmt.Errorf("fetching notification actions: %w", err)
	}

	if len(actions) == 0 {
		tr.stats.Increment("alarms_no_notification_count", nil)
		slog.Debug("No notifications found for alarm", "alarm_id", raw.AlarmID)
		return &Result{Dropped: true}, nil
	}

	notifications := make([]*notification.Notification, 0, len(actions))
	for _, action := range actions {
		notifications = append(notifications, tr.build(raw, action))
	}
	tr.stats.Add("created_count", uint64(len(notifications)), nil)

	return &Result{Notifications: notifications}, nil
}

func (tr *Transformer) isValid(raw *alarm.Raw) bool {
	if !raw.ActionsEnabled {
		slog.Debug("Actions are disabled for this alarm")
		return false
	}

	if tr.ttl != nil {
		age := tr.now().Sub(time.UnixMilli(raw.Timestamp)).Seconds()
		if age > float64(*tr.ttl) {
			slog.Warn("Received alarm older than the ttl, skipping",
				"alarm_id", raw.AlarmID, "alarm_time", time.UnixMilli(raw.Timestamp).UTC())
			return false
		}
	}

	return true
}

func (tr *Transformer) build(raw *alarm.Raw, action store.Action) *notification.Notification {
	alarmTimestamp := float64(raw.Timestamp) / 1000.0
	alarmAge := tr.now().Sub(time.UnixMilli(raw.Timestamp)).Seconds()

	dims := mergeDimensions(raw.Metrics)
	metricValues := collectMetricValues(raw.SubAlarms)

	n := &notification.Notification{
		ID:               action.ID,
		Kind:             action.Kind,
		Name:             action.Name,
		Address:          action.Address,
		Period:           action.Period,
		PeriodicTopic:    periodName(action.Period),
		AlarmID:          raw.AlarmID,
		AlarmName:        raw.AlarmName,
		AlarmDescription: renderDescription(raw.AlarmDescription, dims, metricValues, alarmAge, alarmTimestamp, raw.NewState, raw.OldState),
		AlarmTimestamp:   alarmTimestamp,
		Message:          raw.StateChangeReason,
		State:            raw.NewState,
		OldState:         raw.OldState,
		Severity:         raw.Severity,
		Link:             raw.Link,
		LifecycleState:   raw.LifecycleState,
		TenantID:         raw.TenantID,
		Dimensions:       dims,
		MetricValues:     metricValues,
	}
	for _, m := range raw.Metrics {
		n.Metrics = append(n.Metrics, notification.Metric{Name: m.Name, Dimensions: m.Dimensions})
	}
	return n
}

// periodName formats the action's period as the periodic topic's logical
// name ("60", "300", ...), or "" for a non-periodic action.
func periodName(period int) string {
	if period <= 0 {
		return ""
	}
	return fmt.Sprintf("%d", period)
}

// mergeDimensions collects alarm dimensions across metrics, joining multiple
// distinct values for the same key with ", " in stable order (spec.md §3).
func mergeDimensions(metrics []alarm.Metric) map[string]string {
	collected := make(map[string][]string)
	order := make([]string, 0)
	for _, m := range metrics {
		for k, v := range m.Dimensions {
			if _, ok := collected[k]; !ok {
				order = append(order, k)
			}
			collected[k] = appendUnique(collected[k], v)
		}
	}
	result := make(map[string]string, len(collected))
	for _, k := range order {
		result[k] = notification.JoinDimensionValues(collected[k])
	}
	return result
}

func appendUnique(values []string, v string) []string {
	for _, existing := range values {
		if existing == v {
			return values
		}
	}
	return append(values, v)
}

// collectMetricValues gathers each sub-alarm's current values keyed by
// metric definition name; a metric with exactly one value is flattened to
// a scalar, matching the source's "scalar | sequence | null" contract.
func collectMetricValues(subAlarms []alarm.SubAlarm) map[string]any {
	if len(subAlarms) == 0 {
		return nil
	}
	values := make(map[string]any, len(subAlarms))
	for _, sa := range subAlarms {
		switch len(sa.CurrentValues) {
		case 0:
			values[sa.MetricDefinition.Name] = nil
		case 1:
			values[sa.MetricDefinition.Name] = sa.CurrentValues[0]
		default:
			values[sa.MetricDefinition.Name] = sa.CurrentValues
		}
	}
	return values
}

// renderDescription renders alarmDescription as a {{var}} template. Template
// syntax errors are swallowed and the raw description is kept; any other
// rendering error is logged and the raw description is kept (spec.md §4.1,
// §8 invariant 6: rendering is total).
func renderDescription(description string, dims map[string]string, metricValues map[string]any, age, ts float64, state, oldState string) string {
	if description == "" {
		return description
	}

	t, err := fasttemplate.NewTemplate(description, "{{", "}}")
	if err != nil {
		// Template syntax error: keep the raw description verbatim.
		return description
	}

	vars := make(map[string]any, len(dims)+4)
	for k, v := range dims {
		vars[k] = v
	}
	vars["_age"] = age
	vars["_timestamp"] = time.UnixMilli(int64(ts * 1000)).UTC().Format(time.RFC3339)
	vars["_state"] = state
	vars["_old_state"] = oldState

	rendered, err := t.ExecuteFuncStringWithErr(func(w io.Writer, tag string) (int, error) {
		val, ok := vars[tag]
		if !ok {
			return w.Write([]byte("{{" + tag + "}}"))
		}
		return w.Write([]byte(fmt.Sprint(val)))
	})
	if err != nil {
		slog.Error("Failed rendering alarm description", "description", description, "error", err)
		return description
	}
	return rendered
}
