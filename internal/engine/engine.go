// Package engine implements the generic consume/commit/publish skeleton
// shared by the three engine binaries (spec.md §4.4).
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"notifier/internal/metrics"
	"notifier/internal/transport"
)

// Handler processes one record to completion, including calling Commit
// exactly once on every code path (success or drop). Returning an error
// means the record could not be safely committed; the engine aborts.
type Handler func(ctx context.Context, rec transport.Record) error

// Consumer is the subset of transport.Consumer the skeleton drives.
type Consumer interface {
	ReadMessage(ctx context.Context) (transport.Record, error)
	CommitMessage(ctx context.Context, rec transport.Record) error
	Close() error
}

// Producer is the subset of transport.Producer the skeleton drives.
type Producer interface {
	Publish(ctx context.Context, topic string, values [][]byte) error
	Close() error
}

// Engine owns one consumer/producer pair and drives a single
// consume-handle-commit loop, delegating to a Handler supplied by the
// concrete engine (notification/retry/periodic).
type Engine struct {
	Name     string
	consumer Consumer
	producer Producer
	stats    *metrics.Collector
}

// New creates an Engine bound to consumer/producer.
func New(name string, consumer Consumer, producer Producer, stats *metrics.Collector) *Engine {
	return &Engine{Name: name, consumer: consumer, producer: producer, stats: stats}
}

// Publish publishes the already-serialized values as one batch to topic. On log
// failure it increments a producer-error counter dimensioned by topic and
// re-raises (spec.md §4.4).
func (e *Engine) Publish(ctx context.Context, topic string, values [][]byte) error {
	if err := e.producer.Publish(ctx, topic, values); err != nil {
		e.stats.Increment("producer_errors", map[string]string{"topic": topic})
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// Commit commits the offset for rec. Handlers must call this exactly once
// per record, on every path.
func (e *Engine) Commit(ctx context.Context, rec transport.Record) error {
	return e.consumer.CommitMessage(ctx, rec)
}

// Run iterates the consumer, calling handle for each record. A consumer
// error increments a counter and aborts the loop; a handler error aborts it
// without a counter — the process supervisor is expected to restart the engine (spec.md §4.4,
// §7: "Log error is fatal to the engine").
func (e *Engine) Run(ctx context.Context, handle Handler) error {
	slog.Info("Engine started", "name", e.Name)
	for {
		select {
		case <-ctx.Done():
			slog.Info("Engine shutting down", "name", e.Name)
			return nil
		default:
		}

		rec, err := e.consumer.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				slog.Info("Engine shutting down", "name", e.Name)
				return nil
			}
			e.stats.Increment("consumer_errors", nil)
			return fmt.Errorf("consumer error in %s engine: %w", e.Name, err)
		}

		if err := handle(ctx, rec); err != nil {
			slog.Error("Handler failed, aborting engine", "name", e.Name, "error", err)
			return fmt.Errorf("handler error in %s engine: %w", e.Name, err)
		}
	}
}

// Close releases the underlying consumer and producer.
func (e *Engine) Close() {
	if e.consumer != nil {
		e.consumer.Close()
	}
	if e.producer != nil {
		e.producer.Close()
	}
}
