package lumberjack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/V4T54L/logflow/internal/adapter/metrics"
	"github.com/V4T54L/logflow/internal/usecase"
)

const ackWriteTimeout = 10 * time.Second

// ErrServerClosed is returned by Serve after Shutdown.
var ErrServerClosed = errors.New("lumberjack: server closed")

// BatchIngestor hands a decoded batch to the pipeline. It must return only
// once every record is queued.
type BatchIngestor interface {
	IngestBatch(ctx context.Context, sourceID string, records []usecase.RawRecord) error
}

// Config configures the listener.
type Config struct {
	Addr          string
	MaxFrameSize  int64
	MaxWindowSize int
	IdleTimeout   time.Duration
}

// Server accepts agent connections. Each connection is served by one
// goroutine that owns its decoder and partial window.
type Server struct {
	cfg      Config
	ingestor BatchIngestor
	metrics  *metrics.PipelineMetrics
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool

	connSeq atomic.Uint64
	wg      sync.WaitGroup
}

// NewServer creates a new Server.
func NewServer(cfg Config, ingestor BatchIngestor, m *metrics.PipelineMetrics, logger *slog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:      cfg,
		ingestor: ingestor,
		metrics:  m,
		logger:   logger.With("component", "lumberjack"),
		ctx:      ctx,
		cancel:   cancel,
		conns:    make(map[net.Conn]struct{}),
	}
}

// Listen binds the configured address.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = ln.Close()
		return ErrServerClosed
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ListenAndServe binds and serves until Shutdown.
func (s *Server) ListenAndServe() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Serve accepts connections until Shutdown, then returns ErrServerClosed.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("lumberjack: Serve called before Listen")
	}

	s.logger.Info("lumberjack listener started", "addr", ln.Addr().String())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				time.Sleep(10 * time.Millisecond)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}

		if !s.track(conn) {
			_ = conn.Close()
			return ErrServerClosed
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

// Shutdown stops accepting, aborts pending hand-offs and closes every
// connection. Unacknowledged windows are left for the agents to resend.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.cancel()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("lumberjack listener stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer s.untrack(conn)
	defer conn.Close()

	s.metrics.ConnectionsActive.Inc()
	defer s.metrics.ConnectionsActive.Dec()

	sourceID := fmt.Sprintf("%s#%d", conn.RemoteAddr(), s.connSeq.Add(1))
	logger := s.logger.With("source_id", sourceID)
	logger.Debug("agent connected")

	dec := NewDecoder(&countingReader{r: conn, n: s.metrics.BytesTotal}, s.cfg.MaxFrameSize, s.cfg.MaxWindowSize)
	for {
		if s.cfg.IdleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		}
		win, err := dec.ReadWindow()
		if err != nil {
			s.logReadError(logger, err)
			return
		}

		records, err := DecodeWindow(win)
		if err != nil {
			logger.Warn("closing connection on malformed event", "error", err)
			return
		}

		// Block until every event is queued; only then is the window acked.
		if err := s.ingestor.IngestBatch(s.ctx, sourceID, records); err != nil {
			logger.Warn("closing connection without ack", "events", len(records), "error", err)
			return
		}

		_ = conn.SetWriteDeadline(time.Now().Add(ackWriteTimeout))
		if err := WriteAck(conn, win.LastSeq()); err != nil {
			logger.Warn("failed to write ack", "error", err)
			return
		}
		s.metrics.BatchesAcked.Inc()
	}
}

func (s *Server) logReadError(logger *slog.Logger, err error) {
	var ne net.Error
	switch {
	case errors.Is(err, io.EOF):
		logger.Debug("agent disconnected")
	case errors.Is(err, ErrMalformedFrame):
		logger.Warn("closing connection on malformed frame", "error", err)
	case errors.As(err, &ne) && ne.Timeout():
		logger.Info("closing idle connection")
	case s.ctx.Err() != nil, errors.Is(err, net.ErrClosed):
		logger.Debug("connection closed by shutdown")
	default:
		logger.Warn("connection read failed", "error", err)
	}
}

// countingReader feeds received byte counts into a counter.
type countingReader struct {
	r io.Reader
	n interface{ Add(float64) }
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.n.Add(float64(n))
	}
	return n, err
}
