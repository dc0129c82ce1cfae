package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/V4T54L/logflow/internal/domain"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func record(id, stream, source string) domain.SinkRecord {
	ts := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	return domain.SinkRecord{
		EventID:   id,
		Stream:    stream,
		Partition: stream + "-2024.01.15",
		SourceID:  source,
		EventTime: ts,
		Fields:    map[string]string{"message": "hi"},
	}
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestSinkRepository_Write(t *testing.T) {
	w := &fakeWriter{}
	sink := NewSinkRepository(w, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	require.NoError(t, sink.Write(ctx, record("e1", "containers", "10.0.0.1:1#1")))
	require.NoError(t, sink.WriteBatch(ctx, []domain.SinkRecord{
		record("e2", "techsavvyrc", "10.0.0.2:1#2"),
		record("e3", "unknown", "10.0.0.2:1#2"),
	}))
	require.NoError(t, sink.WriteBatch(ctx, nil))

	require.Len(t, w.msgs, 3)
	msg := w.msgs[0]
	assert.Equal(t, "containers", msg.Topic)
	assert.Equal(t, "10.0.0.1:1#1", string(msg.Key))
	assert.Equal(t, "containers-2024.01.15", header(msg, HeaderPartition))
	assert.Equal(t, "e1", header(msg, HeaderEventID))
	assert.True(t, msg.Time.Equal(time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)))

	var got domain.SinkRecord
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, "hi", got.Fields["message"])

	assert.Equal(t, "unknown", w.msgs[2].Topic)

	require.NoError(t, sink.Close())
	assert.True(t, w.closed)
}

func TestSinkRepository_WriteError(t *testing.T) {
	boom := errors.New("leader not available")
	sink := NewSinkRepository(&fakeWriter{err: boom}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	err := sink.Write(context.Background(), record("e1", "containers", "a"))
	assert.ErrorIs(t, err, boom)
}

func TestNewWriter(t *testing.T) {
	w := NewWriter([]string{"k1:9092", "k2:9092"})
	assert.Empty(t, w.Topic, "topic is chosen per message")
	assert.NotNil(t, w.Addr)
	assert.Equal(t, kafka.RequireAll, w.RequiredAcks)
}
