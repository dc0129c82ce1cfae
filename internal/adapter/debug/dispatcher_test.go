package debug

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/V4T54L/logflow/internal/adapter/metrics"
	"github.com/V4T54L/logflow/internal/domain"
	"github.com/V4T54L/logflow/internal/domain/mocks"
)

type blockingTarget struct {
	release chan struct{}
	mu      sync.Mutex
	got     []domain.LogEvent
}

func (b *blockingTarget) Write(_ context.Context, e domain.LogEvent) error {
	<-b.release
	b.mu.Lock()
	defer b.mu.Unlock()
	b.got = append(b.got, e)
	return nil
}

type failingTarget struct{}

func (failingTarget) Write(context.Context, domain.LogEvent) error { return errors.New("disk full") }

func event(id string) domain.LogEvent {
	return *domain.NewLogEvent(id, "src", "raw", time.Now())
}

func TestDispatcher_FansOutToAllTargets(t *testing.T) {
	m := metrics.NewPipelineMetrics(prometheus.NewRegistry())
	first := &mocks.MockSegmentRepository{}
	second := &mocks.MockSegmentRepository{}
	d := NewDispatcher(16, m, slog.New(slog.NewTextHandler(io.Discard, nil)), first, failingTarget{}, second)
	d.Start()

	for _, id := range []string{"a", "b", "c"} {
		d.Emit(event(id))
	}
	require.NoError(t, d.Close(context.Background()))

	require.Len(t, first.Events, 3)
	require.Len(t, second.Events, 3, "a failing target must not stop the others")
	assert.Equal(t, "c", second.Events[2].ID)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.DebugEmitted))
}

func TestDispatcher_NeverBlocks(t *testing.T) {
	m := metrics.NewPipelineMetrics(prometheus.NewRegistry())
	target := &blockingTarget{release: make(chan struct{})}
	d := NewDispatcher(2, m, slog.New(slog.NewTextHandler(io.Discard, nil)), target)
	d.Start()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			d.Emit(event("x"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a stuck target")
	}

	dropped := testutil.ToFloat64(m.DebugDropped)
	assert.GreaterOrEqual(t, dropped, 97.0)

	close(target.release)
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, 100.0, dropped+float64(len(target.got)))
}

func TestDispatcher_EmitAfterClose(t *testing.T) {
	m := metrics.NewPipelineMetrics(prometheus.NewRegistry())
	d := NewDispatcher(4, m, slog.New(slog.NewTextHandler(io.Discard, nil)))
	d.Start()
	require.NoError(t, d.Close(context.Background()))

	d.Emit(event("late"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DebugDropped))
	require.NoError(t, d.Close(context.Background()))
}

func TestConsole_Write(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(slog.New(slog.NewJSONHandler(&buf, nil)))

	e := event("evt-1")
	e.Stream = "containers"
	e.AddTag(domain.TagSinkFailed)
	e.SetField("service", "auth")
	require.NoError(t, c.Write(context.Background(), e))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "evt-1", rec["event_id"])
	assert.Equal(t, "containers", rec["stream"])
	assert.Equal(t, map[string]any{"service": "auth"}, rec["fields"])
}
