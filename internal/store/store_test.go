package store

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
)

func TestFetchNotification(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	s := &Store{conn: db}
	ctx := context.Background()

	rows := sqlmock.NewRows([]string{"id", "type", "name", "address", "period"}).
		AddRow("n1", "webhook", "wh", "http://x", 0).
		AddRow("n2", "email", "ops", "ops@example.com", 0)
	mock.ExpectQuery("SELECT nm.id, nm.type, nm.name, nm.address").
		WithArgs("d", "ALARM").
		WillReturnRows(rows)

	actions, err := s.FetchNotification(ctx, "d", "ALARM")
	if err != nil {
		t.Fatalf("FetchNotification() error = %v", err)
	}
	if len(actions) != 2 {
		t.Fatalf("FetchNotification() returned %d actions, want 2", len(actions))
	}
	if actions[0].ID != "n1" || actions[0].Kind != "webhook" {
		t.Errorf("actions[0] = %+v, unexpected", actions[0])
	}
}

func TestFetchNotification_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	s := &Store{conn: db}
	mock.ExpectQuery("SELECT nm.id, nm.type, nm.name, nm.address").
		WithArgs("d", "ALARM").
		WillReturnError(&pq.Error{Code: "53300"})

	_, err = s.FetchNotification(context.Background(), "d", "ALARM")
	if err == nil {
		t.Fatal("FetchNotification() expected error, got nil")
	}
	if _, ok := err.(*ErrDatabase); !ok {
		t.Errorf("error type = %T, want *ErrDatabase", err)
	}
}

func TestGetAlarmCurrentState(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	s := &Store{conn: db}

	mock.ExpectQuery("SELECT state FROM alarm").
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows([]string{"state"}).AddRow("ALARM"))

	state, ok, err := s.GetAlarmCurrentState(context.Background(), "a1")
	if err != nil {
		t.Fatalf("GetAlarmCurrentState() error = %v", err)
	}
	if !ok || state != "ALARM" {
		t.Errorf("GetAlarmCurrentState() = (%q, %v), want (ALARM, true)", state, ok)
	}
}

func TestGetAlarmCurrentState_Deleted(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	s := &Store{conn: db}

	mock.ExpectQuery("SELECT state FROM alarm").
		WithArgs("gone").
		WillReturnRows(sqlmock.NewRows([]string{"state"}))

	_, ok, err := s.GetAlarmCurrentState(context.Background(), "gone")
	if err != nil {
		t.Fatalf("GetAlarmCurrentState() error = %v", err)
	}
	if ok {
		t.Error("GetAlarmCurrentState() ok = true for deleted alarm, want false")
	}
}

func TestInsertNotificationMethodTypes_Idempotent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	s := &Store{conn: db}

	mock.ExpectExec("INSERT INTO notification_method_type").
		WithArgs("webhook").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO notification_method_type").
		WithArgs("email").
		WillReturnError(&pq.Error{Code: "23505"})

	if err := s.InsertNotificationMethodTypes(context.Background(), []string{"webhook", "email"}); err != nil {
		t.Errorf("InsertNotificationMethodTypes() error = %v, want nil (duplicates ignored)", err)
	}
}

func TestGetNotificationMethod(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	s := &Store{conn: db}

	mock.ExpectQuery("SELECT id, type, name, address FROM notification_method").
		WithArgs("n1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "type", "name", "address"}).
			AddRow("n1", "webhook", "wh", "http://x"))

	action, ok, err := s.GetNotificationMethod(context.Background(), "n1")
	if err != nil {
		t.Fatalf("GetNotificationMethod() error = %v", err)
	}
	if !ok || action.Address != "http://x" {
		t.Errorf("GetNotificationMethod() = (%+v, %v), want address http://x", action, ok)
	}
}

func TestGetNotificationMethod_Deleted(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	s := &Store{conn: db}

	mock.ExpectQuery("SELECT id, type, name, address FROM notification_method").
		WithArgs("gone").
		WillReturnRows(sqlmock.NewRows([]string{"id", "type", "name", "address"}))

	_, ok, err := s.GetNotificationMethod(context.Background(), "gone")
	if err != nil {
		t.Fatalf("GetNotificationMethod() error = %v", err)
	}
	if ok {
		t.Error("GetNotificationMethod() ok = true for deleted method, want false")
	}
}

func TestFetchNotificationMethodTypes(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	s := &Store{conn: db}

	mock.ExpectQuery("SELECT name FROM notification_method_type").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("webhook").AddRow("email"))

	kinds, err := s.FetchNotificationMethodTypes(context.Background())
	if err != nil {
		t.Fatalf("FetchNotificationMethodTypes() error = %v", err)
	}
	if !kinds["webhook"] || !kinds["email"] {
		t.Errorf("FetchNotificationMethodTypes() = %v, missing expected kinds", kinds)
	}
}
