package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"commission-observer/src/logger"
	"commission-observer/src/models"

	"github.com/segmentio/kafka-go"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func newTestPublisher(w messageWriter) *KafkaPublisher {
	log := logger.NewLogger(nil, "Publisher")
	log.SetOutput(io.Discard)
	p := newKafkaPublisher(w, "commission-reports", log)
	p.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return p
}

// -----------------------------------------------------------------------------

func TestPublishKeysBySnapshot(t *testing.T) {
	w := &recordingWriter{}
	p := newTestPublisher(w)

	report := &models.MCommissionReport{TotalCommission: 17, TotalTrades: 3, ActiveSites: 2}
	if err := p.Publish(context.Background(), "snap-1", report); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}

	msg := w.msgs[0]
	if string(msg.Key) != "snap-1" {
		t.Fatalf("key = %q", msg.Key)
	}
	if len(msg.Headers) == 0 || msg.Headers[0].Key != "event_type" || string(msg.Headers[0].Value) != EventType {
		t.Fatalf("unexpected headers %+v", msg.Headers)
	}

	var ev MReportEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		t.Fatalf("decode value: %v", err)
	}
	if ev.SnapshotID != "snap-1" || ev.Report.TotalCommission != 17 || !ev.PublishedAt.Equal(msg.Time) {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestPublishRejectsIncompleteInput(t *testing.T) {
	w := &recordingWriter{}
	p := newTestPublisher(w)

	if err := p.Publish(context.Background(), "", &models.MCommissionReport{}); err == nil {
		t.Fatal("expected error without snapshot id")
	}
	if err := p.Publish(context.Background(), "snap", nil); err == nil {
		t.Fatal("expected error without report")
	}
	if len(w.msgs) != 0 {
		t.Fatalf("nothing should be written, got %d", len(w.msgs))
	}
}

func TestPublishWrapsWriterError(t *testing.T) {
	boom := errors.New("broker down")
	p := newTestPublisher(&recordingWriter{err: boom})

	err := p.Publish(context.Background(), "snap-1", &models.MCommissionReport{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped writer error, got %v", err)
	}
}

func TestNewKafkaPublisherValidates(t *testing.T) {
	log := logger.NewLogger(nil, "Publisher")
	if _, err := NewKafkaPublisher(models.MPublisherConfig{Topic: "t"}, log); err == nil {
		t.Fatal("expected error without brokers")
	}
	if _, err := NewKafkaPublisher(models.MPublisherConfig{Brokers: []string{"localhost:9092"}}, log); err == nil {
		t.Fatal("expected error without topic")
	}

	p, err := NewKafkaPublisher(models.MPublisherConfig{Brokers: []string{"localhost:9092"}, Topic: "t"}, log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
