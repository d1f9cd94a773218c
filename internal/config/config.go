// Package config loads and validates the engines' YAML configuration file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Kafka holds message-log topic wiring.
type Kafka struct {
	URL                     string            `yaml:"url"`
	Group                   string            `yaml:"group"`
	AlarmTopic              string            `yaml:"alarm_topic"`
	NotificationTopic       string            `yaml:"notification_topic"`
	NotificationRetryTopic  string            `yaml:"notification_retry_topic"`
	Periodic                map[string]string `yaml:"periodic"`
}

// Zookeeper is carried for configuration-schema parity with the original
// system. A modern consumer-group client manages offsets itself, so nothing
// in this repo reads these paths — see DESIGN.md.
type Zookeeper struct {
	URL                    string            `yaml:"url"`
	NotificationPath       string            `yaml:"notification_path"`
	NotificationRetryPath  string            `yaml:"notification_retry_path"`
	PeriodicPath           map[string]string `yaml:"periodic_path"`
}

// MySQL holds the configuration-store connection parameters.
type MySQL struct {
	Host   string `yaml:"host"`
	User   string `yaml:"user"`
	Passwd string `yaml:"passwd"`
	DB     string `yaml:"db"`
	SSL    bool   `yaml:"ssl"`
}

// AlarmProcessors holds the alarm transformer's tunables.
type AlarmProcessors struct {
	TTL *int `yaml:"ttl"` // seconds; nil disables
}

// Retry holds the retry engine's bound.
type Retry struct {
	Interval    int `yaml:"interval"`     // seconds
	MaxAttempts int `yaml:"max_attempts"`
}

// NotificationTypes lists which statically-registered dispatcher kinds are
// active for this deployment. See DESIGN NOTES (dynamic dispatcher loading):
// this replaces the original's class-locator plugin list with activation-by-
// name against a compiled-in registry.
type NotificationTypes struct {
	Plugins []string `yaml:"plugins"`
}

// Template configures a dispatcher's optional message template.
type Template struct {
	Text         string `yaml:"text"`
	TemplateFile string `yaml:"template_file"`
	MimeType     string `yaml:"mime_type"`
	Subject      string `yaml:"subject"`
}

// EmailConfig configures the email dispatcher. It has no region or api_key
// key and DispatcherSections passes neither, so the ses provider always uses
// region us-east-1 and the resend provider fails to configure.
type EmailConfig struct {
	Provider string    `yaml:"provider"` // smtp | ses | resend; default smtp
	Server   string    `yaml:"server"`
	Port     int       `yaml:"port"`
	User     string    `yaml:"user"`
	Password string    `yaml:"password"`
	FromAddr string    `yaml:"from_addr"`
	Timeout  int       `yaml:"timeout"`
	Template *Template `yaml:"template"`
}

// WebhookConfig configures the webhook dispatcher.
type WebhookConfig struct {
	Timeout int `yaml:"timeout"`
}

// ChatConfig configures the chat-room dispatcher.
type ChatConfig struct {
	Timeout  int       `yaml:"timeout"`
	Insecure bool      `yaml:"insecure"`
	CACerts  string    `yaml:"ca_certs"`
	Proxy    string    `yaml:"proxy"`
	Template *Template `yaml:"template"`
}

// PagingConfig configures the paging dispatcher.
type PagingConfig struct {
	Timeout int `yaml:"timeout"`
}

// Redis holds the metrics sink connection.
type Redis struct {
	Addr string `yaml:"addr"`
}

// Processors groups the alarm-side tunables under the same key the original
// configuration schema uses.
type Processors struct {
	Alarm AlarmProcessors `yaml:"alarm"`
}

// Config is the full typed configuration record (spec.md §3).
type Config struct {
	Kafka              Kafka              `yaml:"kafka"`
	Zookeeper          Zookeeper          `yaml:"zookeeper"`
	MySQL              MySQL              `yaml:"mysql"`
	Processors         Processors         `yaml:"processors"`
	Retry              Retry              `yaml:"retry"`
	NotificationTypes  NotificationTypes  `yaml:"notification_types"`
	Email              EmailConfig        `yaml:"email"`
	Webhook            WebhookConfig      `yaml:"webhook"`
	Chat               ChatConfig         `yaml:"chat"`
	Paging             PagingConfig       `yaml:"paging"`
	Redis              Redis              `yaml:"redis"`
}

// Load reads and decodes the YAML configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Email.Timeout == 0 {
		cfg.Email.Timeout = 5
	}
	if cfg.Email.Provider == "" {
		cfg.Email.Provider = "smtp"
	}
	if cfg.Webhook.Timeout == 0 {
		cfg.Webhook.Timeout = 5
	}
	if cfg.Chat.Timeout == 0 {
		cfg.Chat.Timeout = 5
	}
	if cfg.Paging.Timeout == 0 {
		cfg.Paging.Timeout = 5
	}
}

// Validate checks required fields are set and retry bounds are non-negative.
// The periodic topic map is not checked.
func (c *Config) Validate() error {
	if c.Kafka.URL == "" {
		return fmt.Errorf("kafka.url cannot be empty")
	}
	if c.Kafka.Group == "" {
		return fmt.Errorf("kafka.group cannot be empty")
	}
	if c.Kafka.AlarmTopic == "" {
		return fmt.Errorf("kafka.alarm_topic cannot be empty")
	}
	if c.Kafka.NotificationTopic == "" {
		return fmt.Errorf("kafka.notification_topic cannot be empty")
	}
	if c.Kafka.NotificationRetryTopic == "" {
		return fmt.Errorf("kafka.notification_retry_topic cannot be empty")
	}
	if c.MySQL.Host == "" {
		return fmt.Errorf("mysql.host cannot be empty")
	}
	if c.MySQL.DB == "" {
		return fmt.Errorf("mysql.db cannot be empty")
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry.max_attempts cannot be negative")
	}
	if c.Retry.Interval < 0 {
		return fmt.Errorf("retry.interval cannot be negative")
	}
	return nil
}

// PeriodicTopic returns the configured topic name for a period name, and
// whether it is configured at all.
func (c *Config) PeriodicTopic(period string) (string, bool) {
	topic, ok := c.Kafka.Periodic[period]
	return topic, ok
}

// DispatcherSections builds the per-kind configuration map the dispatch
// registry passes to each dispatcher's Configure (spec.md §4.2/§4.3).
func (c *Config) DispatcherSections() map[string]map[string]any {
	sections := map[string]map[string]any{
		"webhook": {"timeout": c.Webhook.Timeout},
		"paging":  {"timeout": c.Paging.Timeout},
		"chat": {
			"timeout":  c.Chat.Timeout,
			"insecure": c.Chat.Insecure,
			"ca_certs": c.Chat.CACerts,
			"proxy":    c.Chat.Proxy,
			"template": templateSection(c.Chat.Template),
		},
		"email": {
			"provider":  c.Email.Provider,
			"server":    c.Email.Server,
			"port":      c.Email.Port,
			"user":      c.Email.User,
			"password":  c.Email.Password,
			"from_addr": c.Email.FromAddr,
			"timeout":   c.Email.Timeout,
			"template":  templateSection(c.Email.Template),
		},
	}
	return sections
}

func templateSection(t *Template) map[string]any {
	if t == nil {
		return nil
	}
	return map[string]any{
		"text":          t.Text,
		"template_file": t.TemplateFile,
		"mime_type":     t.MimeType,
		"subject":       t.Subject,
	}
}

// DSN builds the PostgreSQL-compatible data source name for the config store.
// The teacher's config store is MySQL-shaped (spec.md §3); this repo's store
// adapter is implemented against PostgreSQL/lib-pq, matching the rest of the
// retrieved pack's SQL stack — see DESIGN.md.
func (c *Config) DSN() string {
	sslmode := "disable"
	if c.MySQL.SSL {
		sslmode = "require"
	}
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=%s",
		c.MySQL.User, c.MySQL.Passwd, c.MySQL.Host, c.MySQL.DB, sslmode)
}
