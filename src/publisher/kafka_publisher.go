// Package publisher emits every stored report snapshot to Kafka so other
// systems can consume commission totals without polling the observer.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"commission-observer/src/logger"
	"commission-observer/src/models"

	"github.com/segmentio/kafka-go"
)

// EventType is carried in the message headers.
const EventType = "commission.report.generated"

// messageWriter is the part of kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// -----------------------------------------------------------------------------

// MReportEvent is the message value.
type MReportEvent struct {
	SnapshotID  string                    `json:"snapshot_id"`
	Report      *models.MCommissionReport `json:"report"`
	PublishedAt time.Time                 `json:"published_at"`
}

// -----------------------------------------------------------------------------
// KafkaPublisher
// -----------------------------------------------------------------------------

type KafkaPublisher struct {
	Logger *logger.Logger
	writer messageWriter
	topic  string
	now    func() time.Time
}

// NewKafkaPublisher writes to cfg.Topic, hashing on the snapshot id so all
// messages for one snapshot land on the same partition.
func NewKafkaPublisher(cfg models.MPublisherConfig, log *logger.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka publisher requires at least one broker")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka publisher requires a topic")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		RequiredAcks: kafka.RequireAll,
		Balancer:     &kafka.Hash{},
	}
	return newKafkaPublisher(w, cfg.Topic, log), nil
}

func newKafkaPublisher(w messageWriter, topic string, log *logger.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		Logger: log,
		writer: w,
		topic:  topic,
		now:    time.Now,
	}
}

// -----------------------------------------------------------------------------

func (p *KafkaPublisher) Publish(ctx context.Context, snapshotID string, report *models.MCommissionReport) error {
	msg, err := p.buildMessage(snapshotID, report)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish snapshot %s: %w", snapshotID, err)
	}
	p.Logger.Debug("Published snapshot %s to %s", snapshotID, p.topic)
	return nil
}

// -----------------------------------------------------------------------------

func (p *KafkaPublisher) buildMessage(snapshotID string, report *models.MCommissionReport) (kafka.Message, error) {
	if snapshotID == "" {
		return kafka.Message{}, errors.New("snapshot id is required")
	}
	if report == nil {
		return kafka.Message{}, errors.New("report is required")
	}

	now := p.now().UTC()
	value, err := json.Marshal(MReportEvent{
		SnapshotID:  snapshotID,
		Report:      report,
		PublishedAt: now,
	})
	if err != nil {
		return kafka.Message{}, err
	}

	return kafka.Message{
		Key:   []byte(snapshotID),
		Value: value,
		Time:  now,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventType)},
			{Key: "content_type", Value: []byte("application/json")},
		},
	}, nil
}

// -----------------------------------------------------------------------------

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
