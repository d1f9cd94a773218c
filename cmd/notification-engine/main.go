// Command notification-engine consumes the alarm-transitions topic, runs the
// alarm transformer, seeds periodic topics, and dispatches each notification
// through the registry (spec.md §4.5).
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"notifier/internal/config"
	"notifier/internal/dispatch"
	"notifier/internal/engine"
	"notifier/internal/envutil"
	"notifier/internal/metrics"
	"notifier/internal/notification"
	"notifier/internal/store"
	"notifier/internal/transform"
	"notifier/internal/transport"

	_ "notifier/internal/dispatch/chat"
	_ "notifier/internal/dispatch/email"
	_ "notifier/internal/dispatch/paging"
	_ "notifier/internal/dispatch/webhook"
)

func main() {
	configPath := flag.String("config", envutil.GetEnvOrDefault("CONFIG_PATH", "config.yaml"), "path to the engine configuration file")
	flag.Parse()

	logLevel := slog.LevelInfo
	if envutil.GetEnvOrDefault("LOG_LEVEL", "") == "debug" {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Received shutdown signal, shutting down gracefully...")
		cancel()
	}()

	st, err := store.New(cfg.DSN())
	if err != nil {
		slog.Error("Failed to connect to configuration store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	redisClient, err := envutil.ConnectRedis(ctx, cfg.Redis.Addr)
	if err != nil {
		slog.Warn("Failed to connect to Redis, metrics will not be reported", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
	}
	stats := metrics.NewCollector("notification-engine", redisClient)
	stats.Start(ctx)
	defer stats.Stop()

	registry := dispatch.NewRegistry(cfg.NotificationTypes.Plugins, cfg.DispatcherSections(), stats)
	if err := registry.SyncMethodTypes(ctx, st); err != nil {
		slog.Error("Failed to sync notification method types", "error", err)
		os.Exit(1)
	}

	consumer, err := transport.NewConsumer(cfg.Kafka.URL, cfg.Kafka.AlarmTopic, cfg.Kafka.Group)
	if err != nil {
		slog.Error("Failed to create Kafka consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	producer, err := transport.NewProducer(cfg.Kafka.URL)
	if err != nil {
		slog.Error("Failed to create Kafka producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	tr := transform.New(cfg.Processors.Alarm.TTL, st, cfg.DSN(), stats)
	e := engine.New("notification", consumer, producer, stats)

	handler := newHandler(e, tr, registry, cfg, stats)
	if err := e.Run(ctx, handler.handle); err != nil {
		slog.Error("Notification engine stopped", "error", err)
		os.Exit(1)
	}

	slog.Info("Notification engine stopped")
}

type handler struct {
	engine   *engine.Engine
	tr       *transform.Transformer
	registry *dispatch.Registry
	cfg      *config.Config
	stats    *metrics.Collector
}

func newHandler(e *engine.Engine, tr *transform.Transformer, registry *dispatch.Registry, cfg *config.Config, stats *metrics.Collector) *handler {
	return &handler{engine: e, tr: tr, registry: registry, cfg: cfg, stats: stats}
}

// handle implements spec.md §4.5's per-record steady state: transform, seed
// periodic topics, dispatch, publish outcomes, commit.
func (h *handler) handle(ctx context.Context, rec transport.Record) error {
	result, err := h.tr.ToNotification(ctx, rec.Value)
	if err != nil {
		return err
	}
	if result.Dropped || len(result.Notifications) == 0 {
		return h.engine.Commit(ctx, rec)
	}

	if err := h.seedPeriodic(ctx, result.Notifications); err != nil {
		return err
	}

	outcome := h.registry.Send(ctx, result.Notifications)

	if len(outcome.Sent) > 0 {
		if err := h.publishAll(ctx, h.cfg.Kafka.NotificationTopic, outcome.Sent); err != nil {
			return err
		}
	}
	if len(outcome.Failed) > 0 {
		if err := h.publishAll(ctx, h.cfg.Kafka.NotificationRetryTopic, outcome.Failed); err != nil {
			return err
		}
	}

	h.stats.Increment("alarms_processed", nil)
	return h.engine.Commit(ctx, rec)
}

func (h *handler) seedPeriodic(ctx context.Context, ns []*notification.Notification) error {
	byTopic := make(map[string][]*notification.Notification)
	for _, n := range ns {
		if !n.IsPeriodicEligible() {
			continue
		}
		topic, ok := h.cfg.PeriodicTopic(n.PeriodicTopic)
		if !ok {
			continue
		}
		byTopic[topic] = append(byTopic[topic], n)
	}
	for topic, group := range byTopic {
		if err := h.publishAll(ctx, topic, group); err != nil {
			return err
		}
	}
	return nil
}

func (h *handler) publishAll(ctx context.Context, topic string, ns []*notification.Notification) error {
	values := make([][]byte, 0, len(ns))
	for _, n := range ns {
		data, err := n.Marshal()
		if err != nil {
			return err
		}
		values = append(values, data)
	}
	return h.engine.Publish(ctx, topic, values)
}
