// Command periodic-engine re-fires a webhook notification on a fixed period
// until the underlying alarm clears, is deleted, or changes state. One
// process runs per configured period (spec.md §4.7).
package main

import (
	"context"
	"flag"
	"fmt"
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
	period := flag.String("period", envutil.GetEnvOrDefault("PERIOD", ""), "configured period name this instance serves (kafka.periodic key)")
	flag.Parse()

	logLevel := slog.LevelInfo
	if envutil.GetEnvOrDefault("LOG_LEVEL", "") == "debug" {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	if *period == "" {
		slog.Error("Missing required --period flag")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	topic, ok := cfg.PeriodicTopic(*period)
	if !ok {
		slog.Error("Period not configured under kafka.periodic", "period", *period)
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
	engineName := fmt.Sprintf("periodic-engine-%s", *period)
	stats := metrics.NewCollector(engineName, redisClient)
	stats.Start(ctx)
	defer stats.Stop()

	registry := dispatch.NewRegistry(cfg.NotificationTypes.Plugins, cfg.DispatcherSections(), stats)

	consumer, err := transport.NewConsumer(cfg.Kafka.URL, topic, cfg.Kafka.Group)
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

	e := engine.New(engineName, consumer, producer, stats)
	h := &handler{engine: e, store: st, registry: registry, topic: topic, now: time.Now}

	if err := e.Run(ctx, h.handle); err != nil {
		slog.Error("Periodic engine stopped", "error", err)
		os.Exit(1)
	}

	slog.Info("Periodic engine stopped")
}

type handler struct {
	engine   *engine.Engine
	store    *store.Store
	registry *dispatch.Registry
	topic    string
	now      func() time.Time
}

// handle implements spec.md §4.7's per-record periodic cycle.
func (h *handler) handle(ctx context.Context, rec transport.Record) error {
	n, err := notification.Unmarshal(rec.Value)
	if err != nil {
		slog.Error("Invalid notification on periodic topic, dropping", "error", err)
		return h.engine.Commit(ctx, rec)
	}

	action, ok, err := h.store.GetNotificationMethod(ctx, n.ID)
	if err != nil {
		return err
	}
	if !ok {
		slog.Info("Notification method deleted, ending periodic cycle", "id", n.ID)
		return h.engine.Commit(ctx, rec)
	}
	n.Kind, n.Name, n.Address = action.Kind, action.Name, action.Address

	if n.NotificationTimestamp == nil {
		slog.Warn("Periodic notification missing notification_timestamp, dropping", "id", n.ID)
		return h.engine.Commit(ctx, rec)
	}

	state, exists, err := h.store.GetAlarmCurrentState(ctx, n.AlarmID)
	if err != nil {
		return err
	}
	if !exists || state != n.State || state == "OK" {
		slog.Info("Ending periodic cycle", "alarm_id", n.AlarmID, "exists", exists, "current_state", state)
		return h.engine.Commit(ctx, rec)
	}

	elapsed := h.now().UTC().Sub(time.Unix(int64(*n.NotificationTimestamp), 0))
	wait := time.Duration(n.Period)*time.Second - elapsed

	if wait < 0 {
		ts := float64(h.now().UTC().Unix())
		n.NotificationTimestamp = &ts
		if _, err := h.registry.SendOne(ctx, n); err != nil {
			return err
		}
	} else {
		select {
		case <-time.After(1 * time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	data, err := n.Marshal()
	if err != nil {
		return err
	}
	if err := h.engine.Publish(ctx, h.topic, [][]byte{data}); err != nil {
		return err
	}

	return h.engine.Commit(ctx, rec)
}
