// Command retry-engine consumes the notification-retry topic and redelivers
// notifications that failed on their first attempt, bounded by
// retry.max_attempts (spec.md §4.6).
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"notifier/internal/config"
	"notifier/internal/dispatch"
	"notifier/internal/engine"
	"notifier/internal/envutil"
	"notifier/internal/metrics"
	"notifier/internal/notification"
	"notifier/internal/store"
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
	stats := metrics.NewCollector("retry-engine", redisClient)
	stats.Start(ctx)
	defer stats.Stop()

	registry := dispatch.NewRegistry(cfg.NotificationTypes.Plugins, cfg.DispatcherSections(), stats)

	consumer, err := transport.NewConsumer(cfg.Kafka.URL, cfg.Kafka.NotificationRetryTopic, cfg.Kafka.Group)
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

	e := engine.New("retry", consumer, producer, stats)
	h := &handler{engine: e, store: st, registry: registry, cfg: cfg, stats: stats, now: time.Now}

	if err := e.Run(ctx, h.handle); err != nil {
		slog.Error("Retry engine stopped", "error", err)
		os.Exit(1)
	}

	slog.Info("Retry engine stopped")
}

type handler struct {
	engine   *engine.Engine
	store    *store.Store
	registry *dispatch.Registry
	cfg      *config.Config
	stats    *metrics.Collector
	now      func() time.Time
}

// handle implements spec.md §4.6's per-record retry contract.
func (h *handler) handle(ctx context.Context, rec transport.Record) error {
	n, err := notification.Unmarshal(rec.Value)
	if err != nil {
		slog.Error("Invalid notification on retry topic, dropping", "error", err)
		return h.engine.Commit(ctx, rec)
	}

	action, ok, err := h.store.GetNotificationMethod(ctx, n.ID)
	if err != nil {
		return err
	}
	if !ok {
		slog.Info("Notification method deleted, dropping retry", "id", n.ID)
		return h.engine.Commit(ctx, rec)
	}
	n.Kind, n.Name, n.Address = action.Kind, action.Name, action.Address

	if err := h.waitForSchedule(ctx, n); err != nil {
		return err
	}

	sent, err := h.registry.SendOne(ctx, n)
	if err != nil {
		return err
	}

	if sent {
		if err := h.publish(ctx, h.cfg.Kafka.NotificationTopic, n); err != nil {
			return err
		}
		return h.engine.Commit(ctx, rec)
	}

	n.RetryCount++
	ts := float64(h.now().UTC().Unix())
	n.NotificationTimestamp = &ts

	if n.RetryCount < h.cfg.Retry.MaxAttempts {
		if err := h.publish(ctx, h.cfg.Kafka.NotificationRetryTopic, n); err != nil {
			return err
		}
	} else {
		slog.Warn("Giving up on retry", "id", n.ID, "alarm_id", n.AlarmID, "retry_count", n.RetryCount)
		h.stats.Increment("retries_abandoned", map[string]string{"kind": n.Kind})
	}

	return h.engine.Commit(ctx, rec)
}

// waitForSchedule sleeps until retry.interval has elapsed since the
// notification was last attempted, or until ctx is cancelled.
func (h *handler) waitForSchedule(ctx context.Context, n *notification.Notification) error {
	if n.NotificationTimestamp == nil {
		return nil
	}
	elapsed := h.now().UTC().Sub(time.Unix(int64(*n.NotificationTimestamp), 0))
	wait := time.Duration(h.cfg.Retry.Interval)*time.Second - elapsed
	if wait <= 0 {
		return nil
	}
	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *handler) publish(ctx context.Context, topic string, n *notification.Notification) error {
	data, err := n.Marshal()
	if err != nil {
		return err
	}
	return h.engine.Publish(ctx, topic, [][]byte{data})
}
