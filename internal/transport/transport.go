// Package transport wraps the message-log client library (kafka-go) behind
// the narrow surface the Engine Skeleton needs: read one record, commit one
// record, publish a batch to a topic. spec.md §1 treats the log client as an
// external collaborator; this is the adapter to the one this repo links.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	kafka "github.com/segmentio/kafka-go"
)

const (
	// maxPollWait bounds how long a single ReadMessage call blocks.
	maxPollWait = 10 * time.Second
	// commitInterval batches offset commits on the underlying reader.
	commitInterval = 1 * time.Second
	// writeTimeout bounds a single Publish call.
	writeTimeout = 10 * time.Second
)

// Record is one log entry handed to an engine's handler.
type Record struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte

	raw kafka.Message
}

// ParseBrokers splits a comma-separated broker list and trims whitespace.
func ParseBrokers(brokers string) []string {
	if brokers == "" {
		return nil
	}
	list := strings.Split(brokers, ",")
	for i := range list {
		list[i] = strings.TrimSpace(list[i])
	}
	return list
}

// Consumer wraps a kafka.Reader for one topic/group.
type Consumer struct {
	reader *kafka.Reader
	topic  string
}

// NewConsumer creates a consumer configured for at-least-once delivery:
// offsets are committed explicitly by the engine, never auto-committed ahead
// of processing.
func NewConsumer(brokers, topic, groupID string) (*Consumer, error) {
	if brokers == "" {
		return nil, fmt.Errorf("brokers cannot be empty")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}
	if groupID == "" {
		return nil, fmt.Errorf("groupID cannot be empty")
	}

	brokerList := ParseBrokers(brokers)
	slog.Info("Initializing Kafka consumer", "brokers", brokerList, "topic", topic, "group_id", groupID)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokerList,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        maxPollWait,
		CommitInterval: commitInterval,
		StartOffset:    kafka.FirstOffset,
	})

	return &Consumer{reader: reader, topic: topic}, nil
}

// ReadMessage blocks for the next record on the topic.
func (c *Consumer) ReadMessage(ctx context.Context) (Record, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("failed to read message from Kafka: %w", err)
	}
	return Record{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       msg.Key,
		Value:     msg.Value,
		raw:       msg,
	}, nil
}

// CommitMessage commits the offset for rec. It must be called exactly once
// per record by the engine handler, on every code path (success or drop).
func (c *Consumer) CommitMessage(ctx context.Context, rec Record) error {
	return c.reader.CommitMessages(ctx, rec.raw)
}

// Close releases the underlying reader.
func (c *Consumer) Close() error {
	slog.Info("Closing Kafka consumer", "topic", c.topic)
	return c.reader.Close()
}

// Producer wraps a kafka.Writer for synchronous, at-least-once publishes.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer creates a producer. Unlike Consumer, a Producer is not bound to
// one topic — engines publish to several topics (notification-output,
// retry-topic, periodic[p]) from a single writer.
func NewProducer(brokers string) (*Producer, error) {
	if brokers == "" {
		return nil, fmt.Errorf("brokers cannot be empty")
	}
	brokerList := ParseBrokers(brokers)
	slog.Info("Initializing Kafka producer", "brokers", brokerList)

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokerList...),
		Balancer:     &kafka.Hash{},
		WriteTimeout: writeTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	return &Producer{writer: writer}, nil
}

// Publish writes one or more values to topic.
func (p *Producer) Publish(ctx context.Context, topic string, values [][]byte) error {
	if len(values) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, len(values))
	for i, v := range values {
		msgs[i] = kafka.Message{Topic: topic, Value: v}
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to write messages to topic %s: %w", topic, err)
	}
	return nil
}

// Close releases the underlying writer.
func (p *Producer) Close() error {
	slog.Info("Closing Kafka producer")
	return p.writer.Close()
}
