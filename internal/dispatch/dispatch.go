// Package dispatch loads, configures, and multiplexes across per-channel
// dispatchers, classifying each send outcome (spec.md §4.2).
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"notifier/internal/metrics"
	"notifier/internal/notification"
)

// Dispatcher is the capability set every channel dispatcher implements
// (spec.md §4.3): configure once at startup, send one notification, report
// a stable kind string.
type Dispatcher interface {
	Configure(section map[string]any) error
	SendNotification(ctx context.Context, n *notification.Notification) (bool, error)
	Kind() string
}

// Factory builds an unconfigured dispatcher instance for a kind. Replacing
// the source's string-locator plugin loading (spec.md §9 DESIGN NOTES:
// "dynamic dispatcher loading"), a static map of factories is composed at
// build time and activated by name from configuration.
type Factory func() Dispatcher

// builtins is the compiled-in set of dispatcher factories. Adding a channel
// means recompiling with a new entry here, not loading arbitrary code at
// runtime.
var builtins = map[string]Factory{}

// Register adds a dispatcher factory to the compiled-in set. Called from
// each dispatcher sub-package's init().
func Register(kind string, factory Factory) {
	builtins[kind] = factory
}

// MethodStore is the subset of the configuration-store adapter the registry
// needs to keep known dispatcher kinds registered.
type MethodStore interface {
	FetchNotificationMethodTypes(ctx context.Context) (map[string]bool, error)
	InsertNotificationMethodTypes(ctx context.Context, kinds []string) error
}

// Registry owns the active, configured set of dispatchers for one engine
// process (spec.md §9 DESIGN NOTES: "global mutable registry" replaced by an
// explicitly owned value passed into each engine).
type Registry struct {
	active map[string]Dispatcher
	stats  *metrics.Collector
}

// NewRegistry configures one dispatcher per (kind, section) pair named in
// plugins. A dispatcher whose Configure fails is logged and left out of the
// active set; the registry itself never fails as long as the kind is known
// to builtins — an unknown kind is also just skipped, logged as a warning.
func NewRegistry(plugins []string, sections map[string]map[string]any, stats *metrics.Collector) *Registry {
	r := &Registry{active: make(map[string]Dispatcher), stats: stats}

	for _, kind := range plugins {
		factory, ok := builtins[kind]
		if !ok {
			slog.Warn("Unknown dispatcher kind in notification_types.plugins, skipping", "kind", kind)
			continue
		}
		d := factory()
		if err := d.Configure(sections[kind]); err != nil {
			slog.Error("Dispatcher configuration failed, removing from active set", "kind", kind, "error", err)
			continue
		}
		r.active[kind] = d
	}

	return r
}

// SyncMethodTypes registers any active dispatcher kind not yet known to the
// store (spec.md §4.2(d)).
func (r *Registry) SyncMethodTypes(ctx context.Context, store MethodStore) error {
	known, err := store.FetchNotificationMethodTypes(ctx)
	if err != nil {
		return fmt.Errorf("fetching known notification method types: %w", err)
	}

	var missing []string
	for kind := range r.active {
		if !known[kind] {
			missing = append(missing, kind)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return store.InsertNotificationMethodTypes(ctx, missing)
}

// Outcome buckets the result of dispatching a batch.
type Outcome struct {
	Sent    []*notification.Notification
	Failed  []*notification.Notification
	Invalid []*notification.Notification
}

// Send classifies and dispatches every notification in ns (spec.md §4.2):
// a notification whose kind isn't active is invalid; a dispatcher returning
// false or raising is failed; otherwise sent. A panic from a dispatcher is
// not expected in idiomatic Go and is not recovered here — dispatcher
// implementations report failure via their error return instead.
func (r *Registry) Send(ctx context.Context, ns []*notification.Notification) Outcome {
	var out Outcome
	now := time.Now().UTC()

	for _, n := range ns {
		d, ok := r.active[n.Kind]
		if !ok {
			out.Invalid = append(out.Invalid, n)
			r.stats.Increment("notification_send_errors", map[string]string{"kind": "INVALID"})
			continue
		}

		ts := float64(now.Unix())
		n.NotificationTimestamp = &ts

		ok2, err := d.SendNotification(ctx, n)
		if err != nil {
			slog.Error("Dispatcher raised sending notification", "kind", n.Kind, "id", n.ID, "error", err)
			out.Failed = append(out.Failed, n)
			r.stats.Increment("notification_send_errors", map[string]string{"kind": n.Kind})
			continue
		}
		if !ok2 {
			out.Failed = append(out.Failed, n)
			r.stats.Increment("notification_send_errors", map[string]string{"kind": n.Kind})
			continue
		}

		out.Sent = append(out.Sent, n)
		r.stats.Increment("notifications_sent", map[string]string{"kind": n.Kind})
	}

	return out
}

// SendOne dispatches a single already-active-checked notification; used by
// the retry and periodic engines which resolve a single record at a time.
func (r *Registry) SendOne(ctx context.Context, n *notification.Notification) (bool, error) {
	d, ok := r.active[n.Kind]
	if !ok {
		return false, fmt.Errorf("notification kind %q is not active", n.Kind)
	}
	ts := float64(time.Now().UTC().Unix())
	n.NotificationTimestamp = &ts

	sent, err := d.SendNotification(ctx, n)
	if err != nil {
		slog.Error("Dispatcher raised sending notification", "kind", n.Kind, "id", n.ID, "error", err)
		r.stats.Increment("notification_send_errors", map[string]string{"kind": n.Kind})
		return false, nil
	}
	if sent {
		r.stats.Increment("notifications_sent", map[string]string{"kind": n.Kind})
	} else {
		r.stats.Increment("notification_send_errors", map[string]string{"kind": n.Kind})
	}
	return sent, nil
}

// ActiveKinds returns the set of currently configured dispatcher kinds.
func (r *Registry) ActiveKinds() []string {
	kinds := make([]string, 0, len(r.active))
	for k := range r.active {
		kinds = append(kinds, k)
	}
	return kinds
}

// IsActive reports whether kind has a configured, active dispatcher.
func (r *Registry) IsActive(kind string) bool {
	_, ok := r.active[kind]
	return ok
}
