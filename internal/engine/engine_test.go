package engine

import (
	"context"
	"errors"
	"testing"

	"notifier/internal/metrics"
	"notifier/internal/transport"
)

type fakeConsumer struct {
	records   []transport.Record
	pos       int
	committed []int64
	readErr   error
}

func (f *fakeConsumer) ReadMessage(ctx context.Context) (transport.Record, error) {
	if f.readErr != nil && f.pos >= len(f.records) {
		return transport.Record{}, f.readErr
	}
	if f.pos >= len(f.records) {
		return transport.Record{}, errors.New("no more records")
	}
	rec := f.records[f.pos]
	f.pos++
	return rec, nil
}

func (f *fakeConsumer) CommitMessage(ctx context.Context, rec transport.Record) error {
	f.committed = append(f.committed, rec.Offset)
	return nil
}

func (f *fakeConsumer) Close() error { return nil }

type fakeProducer struct {
	published map[string][][]byte
	failTopic string
}

func (f *fakeProducer) Publish(ctx context.Context, topic string, values [][]byte) error {
	if topic == f.failTopic {
		return errors.New("simulated publish failure")
	}
	if f.published == nil {
		f.published = make(map[string][][]byte)
	}
	f.published[topic] = append(f.published[topic], values...)
	return nil
}

func (f *fakeProducer) Close() error { return nil }

func TestRun_HandlesEachRecordAndStopsOnReadError(t *testing.T) {
	consumer := &fakeConsumer{records: []transport.Record{
		{Offset: 1, Value: []byte("a")},
		{Offset: 2, Value: []byte("b")},
	}}
	producer := &fakeProducer{}
	e := New("test", consumer, producer, metrics.NewCollector("test", nil))

	var handled []int64
	err := e.Run(context.Background(), func(ctx context.Context, rec transport.Record) error {
		handled = append(handled, rec.Offset)
		return e.Commit(ctx, rec)
	})

	if err == nil {
		t.Fatal("Run() expected error once records are exhausted")
	}
	if len(handled) != 2 || handled[0] != 1 || handled[1] != 2 {
		t.Errorf("handled offsets = %v, want [1 2]", handled)
	}
	if len(consumer.committed) != 2 {
		t.Errorf("committed = %v, want 2 commits", consumer.committed)
	}
}

func TestRun_HandlerErrorAbortsLoop(t *testing.T) {
	consumer := &fakeConsumer{records: []transport.Record{
		{Offset: 1, Value: []byte("a")},
		{Offset: 2, Value: []byte("b")},
	}}
	e := New("test", consumer, &fakeProducer{}, metrics.NewCollector("test", nil))

	var handled int
	err := e.Run(context.Background(), func(ctx context.Context, rec transport.Record) error {
		handled++
		return errors.New("handler blew up")
	})

	if err == nil {
		t.Fatal("Run() expected error when handler fails")
	}
	if handled != 1 {
		t.Errorf("handled = %d, want 1 (loop must abort after first failure)", handled)
	}
}

func TestPublish_Success(t *testing.T) {
	producer := &fakeProducer{}
	e := New("test", &fakeConsumer{}, producer, metrics.NewCollector("test", nil))

	if err := e.Publish(context.Background(), "out", [][]byte{[]byte("v1")}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(producer.published["out"]) != 1 {
		t.Errorf("published[out] = %v, want 1 entry", producer.published["out"])
	}
}

func TestPublish_Failure(t *testing.T) {
	producer := &fakeProducer{failTopic: "out"}
	e := New("test", &fakeConsumer{}, producer, metrics.NewCollector("test", nil))

	if err := e.Publish(context.Background(), "out", [][]byte{[]byte("v1")}); err == nil {
		t.Fatal("Publish() expected error when producer fails")
	}
}

func TestCommit(t *testing.T) {
	consumer := &fakeConsumer{}
	e := New("test", consumer, &fakeProducer{}, metrics.NewCollector("test", nil))

	if err := e.Commit(context.Background(), transport.Record{Offset: 5}); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if len(consumer.committed) != 1 || consumer.committed[0] != 5 {
		t.Errorf("committed = %v, want [5]", consumer.committed)
	}
}
