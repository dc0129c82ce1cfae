package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/V4T54L/logflow/internal/domain"
)

func tailEvent(id, stream string, tags ...string) domain.LogEvent {
	e := domain.NewLogEvent(id, "src", "raw", time.Now())
	e.Stream = stream
	for _, t := range tags {
		e.AddTag(t)
	}
	return *e
}

// readEvents returns the first n "log" events from an SSE body.
func readEvents(t *testing.T, body io.Reader, n int) []domain.LogEvent {
	t.Helper()
	var out []domain.LogEvent
	scanner := bufio.NewScanner(body)
	kind := ""
	for len(out) < n && scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			kind = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: ") && kind == "log":
			var e domain.LogEvent
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &e))
			out = append(out, e)
		}
	}
	return out
}

func TestTailBroker_FiltersByStreamAndTag(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	broker := NewTailBroker(ctx, slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(broker)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/admin/tail?stream=containers&tag=error")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return broker.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	ctxW := context.Background()
	require.NoError(t, broker.Write(ctxW, tailEvent("1", "techsavvyrc", "error")))
	require.NoError(t, broker.Write(ctxW, tailEvent("2", "containers")))
	require.NoError(t, broker.Write(ctxW, tailEvent("3", "containers", "error")))
	require.NoError(t, broker.Write(ctxW, tailEvent("4", "containers", "parsed", "error")))

	got := readEvents(t, resp.Body, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "3", got[0].ID)
	assert.Equal(t, "4", got[1].ID)
}

func TestTailBroker_WriteWithoutClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	broker := NewTailBroker(ctx, slog.New(slog.NewTextHandler(io.Discard, nil)))

	for i := 0; i < 1000; i++ {
		require.NoError(t, broker.Write(ctx, tailEvent("x", "unknown")))
	}
	assert.Zero(t, broker.ClientCount())
}
