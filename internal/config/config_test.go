package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func validConfigYAML() string {
	return `
kafka:
  url: "localhost:9092"
  group: "alarm-notification"
  alarm_topic: "alarm-transitions"
  notification_topic: "notification-output"
  notification_retry_topic: "retry-topic"
  periodic:
    "60": "periodic-60"
mysql:
  host: "localhost"
  user: "notification"
  passwd: "secret"
  db: "notification"
retry:
  interval: 60
  max_attempts: 3
notification_types:
  plugins: ["email", "webhook"]
`
}

func TestLoad_Valid(t *testing.T) {
	path := writeTempConfig(t, validConfigYAML())

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	if cfg.Kafka.URL != "localhost:9092" {
		t.Errorf("Kafka.URL = %q, want %q", cfg.Kafka.URL, "localhost:9092")
	}
	if cfg.Email.Timeout != 5 {
		t.Errorf("Email.Timeout default = %d, want 5", cfg.Email.Timeout)
	}
	if cfg.Email.Provider != "smtp" {
		t.Errorf("Email.Provider default = %q, want smtp", cfg.Email.Provider)
	}
	topic, ok := cfg.PeriodicTopic("60")
	if !ok || topic != "periodic-60" {
		t.Errorf("PeriodicTopic(60) = (%q, %v), want (periodic-60, true)", topic, ok)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("Load() with missing file: expected error, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTempConfig(t, "kafka: [this is not a mapping")
	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() with invalid YAML: expected error, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing kafka url",
			mutate:  func(c *Config) { c.Kafka.URL = "" },
			wantErr: true,
		},
		{
			name:    "missing kafka group",
			mutate:  func(c *Config) { c.Kafka.Group = "" },
			wantErr: true,
		},
		{
			name:    "missing alarm topic",
			mutate:  func(c *Config) { c.Kafka.AlarmTopic = "" },
			wantErr: true,
		},
		{
			name:    "missing mysql host",
			mutate:  func(c *Config) { c.MySQL.Host = "" },
			wantErr: true,
		},
		{
			name:    "missing mysql db",
			mutate:  func(c *Config) { c.MySQL.DB = "" },
			wantErr: true,
		},
		{
			name:    "negative retry interval",
			mutate:  func(c *Config) { c.Retry.Interval = -1 },
			wantErr: true,
		},
		{
			name:    "negative max attempts",
			mutate:  func(c *Config) { c.Retry.MaxAttempts = -1 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTempConfig(t, validConfigYAML())
			cfg, err := Load(path)
			if err != nil {
				t.Fatalf("Load() returned unexpected error: %v", err)
			}
			tt.mutate(cfg)

			err = cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("Validate() expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestDSN(t *testing.T) {
	cfg := &Config{MySQL: MySQL{Host: "db", User: "u", Passwd: "p", DB: "notification", SSL: false}}
	dsn := cfg.DSN()
	want := "postgres://u:p@db/notification?sslmode=disable"
	if dsn != want {
		t.Errorf("DSN() = %q, want %q", dsn, want)
	}
}
