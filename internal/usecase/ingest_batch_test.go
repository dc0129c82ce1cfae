package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/V4T54L/logflow/internal/domain"
)

type recordingSubmitter struct {
	mu     sync.Mutex
	events []*domain.LogEvent
	failAt int
	err    error
}

func (s *recordingSubmitter) Submit(_ context.Context, event *domain.LogEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil && len(s.events) == s.failAt {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func TestIngestBatchUseCase_IngestBatch(t *testing.T) {
	received := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	t.Run("Successful Ingestion", func(t *testing.T) {
		sub := &recordingSubmitter{}
		uc := NewIngestBatchUseCase(sub, testMetrics(), testLogger())
		uc.now = fixedClock(received)

		records := []RawRecord{
			{Message: "first", Tags: []string{"app_log"}, Fields: map[string]string{"host.name": "node-1"}},
			{Message: "second"},
		}
		if err := uc.IngestBatch(context.Background(), "10.0.0.1:5000#1", records); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if len(sub.events) != 2 {
			t.Fatalf("expected 2 events submitted, got %d", len(sub.events))
		}
		first := sub.events[0]
		if first.ID == "" || first.ID == sub.events[1].ID {
			t.Error("expected unique event IDs")
		}
		if first.SourceID != "10.0.0.1:5000#1" || first.RawMessage != "first" {
			t.Errorf("unexpected event %+v", first)
		}
		if !first.ReceivedAt.Equal(received) {
			t.Error("expected ReceivedAt to be set")
		}
		if !first.HasTag("app_log") || first.Fields["host.name"] != "node-1" {
			t.Error("expected agent tags and fields to be carried over")
		}
		if sub.events[1].RawMessage != "second" {
			t.Error("batch order not preserved")
		}
	})

	t.Run("Pipeline Closed", func(t *testing.T) {
		sub := &recordingSubmitter{failAt: 1, err: ErrPipelineClosed}
		uc := NewIngestBatchUseCase(sub, testMetrics(), testLogger())

		err := uc.IngestBatch(context.Background(), "src", []RawRecord{{Message: "a"}, {Message: "b"}})
		if !errors.Is(err, ErrPipelineClosed) {
			t.Fatalf("expected ErrPipelineClosed, got %v", err)
		}
	})
}
