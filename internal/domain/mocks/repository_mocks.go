package mocks

import (
	"context"
	"sync"

	"github.com/V4T54L/logflow/internal/domain"
)

// MockStorageSink is a mock implementation of domain.StorageSink for testing.
// FailTimes makes the first N writes fail with WriteErr; with FailTimes zero,
// a non-nil WriteErr fails every write. A non-nil Block channel holds every
// write until it is closed or the context ends.
type MockStorageSink struct {
	mu        sync.Mutex
	Written   []domain.SinkRecord
	Attempts  int
	WriteErr  error
	FailTimes int
	Block     chan struct{}
}

func (m *MockStorageSink) Write(ctx context.Context, record domain.SinkRecord) error {
	if m.Block != nil {
		select {
		case <-m.Block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Attempts++
	if m.WriteErr != nil && (m.FailTimes == 0 || m.Attempts <= m.FailTimes) {
		return m.WriteErr
	}
	m.Written = append(m.Written, record)
	return nil
}

// Records returns a copy of the successfully written records.
func (m *MockStorageSink) Records() []domain.SinkRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.SinkRecord(nil), m.Written...)
}

// AttemptCount returns the number of writes that reached the sink.
func (m *MockStorageSink) AttemptCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Attempts
}

// MockDebugSink is a mock implementation of domain.DebugSink for testing.
type MockDebugSink struct {
	mu     sync.Mutex
	Events []domain.LogEvent
}

func (m *MockDebugSink) Emit(event domain.LogEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, event)
}

// Emitted returns a copy of the emitted events.
func (m *MockDebugSink) Emitted() []domain.LogEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.LogEvent(nil), m.Events...)
}

// WithTag returns the emitted events carrying tag.
func (m *MockDebugSink) WithTag(tag string) []domain.LogEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.LogEvent
	for _, e := range m.Events {
		if e.HasTag(tag) {
			out = append(out, e)
		}
	}
	return out
}

// MockSegmentRepository is an in-memory domain.SegmentRepository.
type MockSegmentRepository struct {
	mu        sync.Mutex
	Events    []domain.LogEvent
	WriteErr  error
	Truncated bool
}

func (m *MockSegmentRepository) Write(ctx context.Context, event domain.LogEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.Events = append(m.Events, event)
	return nil
}

func (m *MockSegmentRepository) Replay(ctx context.Context, handler func(event domain.LogEvent) error) error {
	m.mu.Lock()
	events := append([]domain.LogEvent(nil), m.Events...)
	m.mu.Unlock()
	for _, e := range events {
		if err := handler(e); err != nil {
			return err
		}
	}
	return nil
}

func (m *MockSegmentRepository) Truncate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = nil
	m.Truncated = true
	return nil
}
