package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/V4T54L/logflow/internal/domain"
)

// Header keys set on every produced message.
const (
	HeaderPartition = "logflow-partition"
	HeaderEventID   = "logflow-event-id"
)

// MessageWriter is the producing half of a kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// SinkRepository publishes routed events to Kafka. The topic is the stream
// name and the message key is the source ID, so one connection's events land
// on one Kafka partition in order.
type SinkRepository struct {
	writer MessageWriter
	logger *slog.Logger
}

// NewWriter creates a synchronous kafka.Writer for brokers. The topic is set
// per message.
func NewWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}
}

// NewSinkRepository creates a new Kafka sink around writer.
func NewSinkRepository(writer MessageWriter, logger *slog.Logger) *SinkRepository {
	return &SinkRepository{writer: writer, logger: logger.With("component", "kafka_sink")}
}

// Write publishes one record.
func (r *SinkRepository) Write(ctx context.Context, record domain.SinkRecord) error {
	return r.WriteBatch(ctx, []domain.SinkRecord{record})
}

// WriteBatch publishes records in one produce call.
func (r *SinkRepository) WriteBatch(ctx context.Context, records []domain.SinkRecord) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(records))
	for _, record := range records {
		msg, err := buildMessage(record)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if err := r.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d records to kafka: %w", len(msgs), err)
	}
	return nil
}

// Close flushes and closes the writer.
func (r *SinkRepository) Close() error {
	return r.writer.Close()
}

func buildMessage(record domain.SinkRecord) (kafka.Message, error) {
	value, err := json.Marshal(record)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal record %s: %w", record.EventID, err)
	}
	return kafka.Message{
		Topic: record.Stream,
		Key:   []byte(record.SourceID),
		Value: value,
		Time:  record.EventTime,
		Headers: []kafka.Header{
			{Key: HeaderPartition, Value: []byte(record.Partition)},
			{Key: HeaderEventID, Value: []byte(record.EventID)},
		},
	}, nil
}
