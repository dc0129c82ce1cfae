package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/V4T54L/logflow/internal/domain"
)

// ErrSinkClosed is returned by writes after Close.
var ErrSinkClosed = errors.New("sqlite sink is closed")

const insertQuery = `
	INSERT INTO log_events (event_id, stream, partition, source_id, event_time, received_at, fields, tags)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(event_id) DO NOTHING
`

// SinkRepository stores routed events in a local SQLite file. It suits
// single-node deployments and development.
type SinkRepository struct {
	db     *sql.DB
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewSinkRepository opens (or creates) the database at path and ensures the
// schema exists.
func NewSinkRepository(path string, logger *slog.Logger) (*SinkRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		`CREATE TABLE IF NOT EXISTS log_events (
			event_id    TEXT PRIMARY KEY,
			stream      TEXT NOT NULL,
			partition   TEXT NOT NULL,
			source_id   TEXT NOT NULL,
			event_time  TEXT NOT NULL,
			received_at TEXT NOT NULL,
			fields      TEXT NOT NULL,
			tags        TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_log_events_partition
			ON log_events(partition, event_time)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("prepare schema: %w", err)
		}
	}

	return &SinkRepository{db: db, logger: logger.With("component", "sqlite_sink")}, nil
}

// Write stores one record. A record whose event ID already exists is ignored.
func (r *SinkRepository) Write(ctx context.Context, record domain.SinkRecord) error {
	return r.WriteBatch(ctx, []domain.SinkRecord{record})
}

// WriteBatch stores records in one transaction.
func (r *SinkRepository) WriteBatch(ctx context.Context, records []domain.SinkRecord) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrSinkClosed
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() // no-op after Commit

	stmt, err := tx.PrepareContext(ctx, insertQuery)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, record := range records {
		fields, err := json.Marshal(record.Fields)
		if err != nil {
			return fmt.Errorf("encode fields of event %s: %w", record.EventID, err)
		}
		tags, err := json.Marshal(record.Tags)
		if err != nil {
			return fmt.Errorf("encode tags of event %s: %w", record.EventID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			record.EventID,
			record.Stream,
			record.Partition,
			record.SourceID,
			record.EventTime.UTC().Format(time.RFC3339Nano),
			record.ReceivedAt.UTC().Format(time.RFC3339Nano),
			string(fields),
			string(tags),
		); err != nil {
			return fmt.Errorf("insert event %s: %w", record.EventID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// CountByPartition returns how many events a partition holds.
func (r *SinkRepository) CountByPartition(ctx context.Context, partition string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return 0, ErrSinkClosed
	}

	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM log_events WHERE partition = ?`, partition).Scan(&n); err != nil {
		return 0, fmt.Errorf("count partition %s: %w", partition, err)
	}
	return n, nil
}

// Get loads one stored record by event ID.
func (r *SinkRepository) Get(ctx context.Context, eventID string) (*domain.SinkRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, ErrSinkClosed
	}

	var (
		rec                   domain.SinkRecord
		eventTime, receivedAt string
		fields, tags          string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT event_id, stream, partition, source_id, event_time, received_at, fields, tags
		FROM log_events WHERE event_id = ?
	`, eventID).Scan(&rec.EventID, &rec.Stream, &rec.Partition, &rec.SourceID, &eventTime, &receivedAt, &fields, &tags)
	if err != nil {
		return nil, fmt.Errorf("load event %s: %w", eventID, err)
	}

	if rec.EventTime, err = time.Parse(time.RFC3339Nano, eventTime); err != nil {
		return nil, fmt.Errorf("decode event_time of %s: %w", eventID, err)
	}
	if rec.ReceivedAt, err = time.Parse(time.RFC3339Nano, receivedAt); err != nil {
		return nil, fmt.Errorf("decode received_at of %s: %w", eventID, err)
	}
	if err := json.Unmarshal([]byte(fields), &rec.Fields); err != nil {
		return nil, fmt.Errorf("decode fields of %s: %w", eventID, err)
	}
	if err := json.Unmarshal([]byte(tags), &rec.Tags); err != nil {
		return nil, fmt.Errorf("decode tags of %s: %w", eventID, err)
	}
	return &rec, nil
}

// Close closes the database.
func (r *SinkRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.db.Close()
}
