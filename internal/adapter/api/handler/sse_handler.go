package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/V4T54L/logflow/internal/domain"
)

const tailClientBuffer = 256

// RateMessage is broadcast to every tail client once per second.
type RateMessage struct {
	Rate float64 `json:"rate"`
}

type tailClient struct {
	ch     chan sseMessage
	stream string
	tag    string
}

type sseMessage struct {
	event string
	data  []byte
}

func (c *tailClient) wants(e domain.LogEvent) bool {
	if c.stream != "" && c.stream != e.Stream {
		return false
	}
	if c.tag != "" && !e.HasTag(c.tag) {
		return false
	}
	return true
}

// TailBroker streams debug events to admin clients over SSE. It is a debug
// dispatcher target; slow clients miss events rather than stall the dispatcher.
type TailBroker struct {
	logger  *slog.Logger
	clients map[*tailClient]struct{}
	mu      sync.RWMutex
	count   atomic.Int64
}

// NewTailBroker creates a TailBroker and starts its rate ticker, which stops
// when ctx ends.
func NewTailBroker(ctx context.Context, logger *slog.Logger) *TailBroker {
	b := &TailBroker{
		logger:  logger.With("component", "tail_broker"),
		clients: make(map[*tailClient]struct{}),
	}
	go b.run(ctx)
	return b
}

// ServeHTTP handles GET /admin/tail?stream=&tag=.
func (b *TailBroker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := &tailClient{
		ch:     make(chan sseMessage, tailClientBuffer),
		stream: r.URL.Query().Get("stream"),
		tag:    r.URL.Query().Get("tag"),
	}
	b.addClient(client)
	defer b.removeClient(client)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-client.ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.event, msg.data)
			flusher.Flush()
		}
	}
}

// Write broadcasts one event to the clients whose filters match it.
func (b *TailBroker) Write(_ context.Context, event domain.LogEvent) error {
	b.count.Add(1)

	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.clients) == 0 {
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal tail event: %w", err)
	}
	msg := sseMessage{event: "log", data: data}
	for client := range b.clients {
		if !client.wants(event) {
			continue
		}
		select {
		case client.ch <- msg:
		default:
		}
	}
	return nil
}

// ClientCount returns the number of connected tail clients.
func (b *TailBroker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *TailBroker) addClient(client *tailClient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[client] = struct{}{}
	b.logger.Info("tail client connected", "stream", client.stream, "tag", client.tag)
}

func (b *TailBroker) removeClient(client *tailClient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[client]; ok {
		delete(b.clients, client)
		close(client.ch)
		b.logger.Info("tail client disconnected")
	}
}

func (b *TailBroker) broadcast(msg sseMessage) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for client := range b.clients {
		select {
		case client.ch <- msg:
		default:
		}
	}
}

func (b *TailBroker) run(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	lastTimestamp := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			count := b.count.Swap(0)
			rate := 0.0
			if d := now.Sub(lastTimestamp).Seconds(); d > 0 {
				rate = float64(count) / d
			}
			lastTimestamp = now

			data, err := json.Marshal(RateMessage{Rate: rate})
			if err != nil {
				b.logger.Error("failed to marshal rate message", "error", err)
				continue
			}
			b.broadcast(sseMessage{event: "rate", data: data})
		}
	}
}
