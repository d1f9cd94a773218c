// Package store adapts the pipeline's two read paths plus channel-type
// registration onto a SQL configuration store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
	"github.com/lib/pq"
)

// ErrDatabase is the single typed error every Store method may return;
// callers decide recovery (spec.md §4.8).
type ErrDatabase struct {
	Op  string
	Err error
}

func (e *ErrDatabase) Error() string {
	return fmt.Sprintf("database error during %s: %v", e.Op, e.Err)
}

func (e *ErrDatabase) Unwrap() error { return e.Err }

// Action is one configured notification method subscribed to an alarm
// definition and target state (spec.md §3 NotificationAction).
type Action struct {
	ID      string
	Kind    string
	Name    string
	Address string
	Period  int
}

// Store wraps a SQL connection used by the alarm transformer and the
// dispatch registry.
type Store struct {
	conn *sql.DB
}

// New opens and pings a connection to dsn.
func New(dsn string) (*Store, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open config store connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping config store: %w", err)
	}

	slog.Info("Connected to configuration store")
	return &Store{conn: conn}, nil
}

// NewFromConn wraps an already-open connection. Used by tests to inject a
// sqlmock-backed *sql.DB without dialing a real database.
func NewFromConn(conn *sql.DB) *Store {
	return &Store{conn: conn}
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// reconnect replaces the underlying connection. Used after a transient
// failure as the one automatic retry spec.md §4.8 requires.
func (s *Store) reconnect(dsn string) error {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return err
	}
	if s.conn != nil {
		s.conn.Close()
	}
	s.conn = conn
	return nil
}

// FetchNotificationRetrying calls FetchNotification, and on a transient
// failure reconnects with dsn and retries exactly once (spec.md §4.1/§4.8).
func (s *Store) FetchNotificationRetrying(ctx context.Context, dsn, alarmDefinitionID, newState string) ([]Action, error) {
	actions, err := s.FetchNotification(ctx, alarmDefinitionID, newState)
	if err == nil {
		return actions, nil
	}
	slog.Warn("Database error fetching notification actions, attempting reconnect", "error", err)
	if rerr := s.reconnect(dsn); rerr != nil {
		return nil, &ErrDatabase{Op: "fetch_notification", Err: rerr}
	}
	return s.FetchNotification(ctx, alarmDefinitionID, newState)
}

// FetchNotification returns the configured actions for (alarmDefinitionID,
// newState), in the order the store returns them.
func (s *Store) FetchNotification(ctx context.Context, alarmDefinitionID, newState string) ([]Action, error) {
	const query = `
		SELECT nm.id, nm.type, nm.name, nm.address, COALESCE(na.period, 0)
		FROM notification_method nm
		JOIN notification_action na ON na.notification_method_id = nm.id
		WHERE na.alarm_definition_id = $1 AND na.alarm_state = $2
		ORDER BY nm.id
	`
	rows, err := s.conn.QueryContext(ctx, query, alarmDefinitionID, newState)
	if err != nil {
		return nil, &ErrDatabase{Op: "fetch_notification", Err: err}
	}
	defer rows.Close()

	var actions []Action
	for rows.Next() {
		var a Action
		if err := rows.Scan(&a.ID, &a.Kind, &a.Name, &a.Address, &a.Period); err != nil {
			return nil, &ErrDatabase{Op: "fetch_notification", Err: err}
		}
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, &ErrDatabase{Op: "fetch_notification", Err: err}
	}
	return actions, nil
}

// GetAlarmCurrentState returns the alarm's current state, or ("", false) if
// the alarm no longer exists.
func (s *Store) GetAlarmCurrentState(ctx context.Context, alarmID string) (string, bool, error) {
	const query = `SELECT state FROM alarm WHERE id = $1`
	var state string
	err := s.conn.QueryRowContext(ctx, query, alarmID).Scan(&state)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, &ErrDatabase{Op: "get_alarm_current_state", Err: err}
	}
	return state, true, nil
}

// GetNotificationMethod resolves the current notification method by id,
// reporting (_, false, nil) if it has since been deleted. The retry and
// periodic engines use this to re-validate a notification before redelivery
// (spec.md §4.6/§4.7).
func (s *Store) GetNotificationMethod(ctx context.Context, id string) (Action, bool, error) {
	const query = `SELECT id, type, name, address FROM notification_method WHERE id = $1`
	var a Action
	err := s.conn.QueryRowContext(ctx, query, id).Scan(&a.ID, &a.Kind, &a.Name, &a.Address)
	if err == sql.ErrNoRows {
		return Action{}, false, nil
	}
	if err != nil {
		return Action{}, false, &ErrDatabase{Op: "get_notification_method", Err: err}
	}
	return a, true, nil
}

// FetchNotificationMethodTypes returns the set of channel kinds already
// registered in the store.
func (s *Store) FetchNotificationMethodTypes(ctx context.Context) (map[string]bool, error) {
	const query = `SELECT name FROM notification_method_type`
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, &ErrDatabase{Op: "fetch_notification_method_types", Err: err}
	}
	defer rows.Close()

	kinds := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, &ErrDatabase{Op: "fetch_notification_method_types", Err: err}
		}
		kinds[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, &ErrDatabase{Op: "fetch_notification_method_types", Err: err}
	}
	return kinds, nil
}

// InsertNotificationMethodTypes idempotently registers kinds not already
// present in the store.
func (s *Store) InsertNotificationMethodTypes(ctx context.Context, kinds []string) error {
	for _, kind := range kinds {
		_, err := s.conn.ExecContext(ctx,
			`INSERT INTO notification_method_type (name) VALUES ($1) ON CONFLICT DO NOTHING`, kind)
		if err != nil {
			if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
				continue
			}
			return &ErrDatabase{Op: "insert_notification_method_types", Err: err}
		}
	}
	return nil
}
