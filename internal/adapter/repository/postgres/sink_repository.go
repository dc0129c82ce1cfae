package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lib/pq"

	"github.com/V4T54L/logflow/internal/domain"
)

const (
	eventsTableName = "log_events"
	tempTableName   = "log_events_import"
)

const schema = `
CREATE TABLE IF NOT EXISTS log_events (
	event_id    TEXT PRIMARY KEY,
	stream      TEXT NOT NULL,
	partition   TEXT NOT NULL,
	source_id   TEXT NOT NULL,
	event_time  TIMESTAMPTZ NOT NULL,
	received_at TIMESTAMPTZ NOT NULL,
	fields      JSONB NOT NULL,
	tags        TEXT[] NOT NULL
);
CREATE INDEX IF NOT EXISTS log_events_partition_time_idx ON log_events (partition, event_time);
`

const insertQuery = `
INSERT INTO log_events (event_id, stream, partition, source_id, event_time, received_at, fields, tags)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (event_id) DO NOTHING`

// SinkRepository stores routed events in PostgreSQL. Each record is one row
// keyed by event ID, so a redelivered record is ignored rather than duplicated.
type SinkRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSinkRepository creates a new PostgreSQL sink.
func NewSinkRepository(db *sql.DB, logger *slog.Logger) *SinkRepository {
	return &SinkRepository{db: db, logger: logger.With("component", "postgres_sink")}
}

// EnsureSchema creates the events table if it does not exist.
func (r *SinkRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create %s schema: %w", eventsTableName, err)
	}
	return nil
}

// Write stores one record.
func (r *SinkRepository) Write(ctx context.Context, record domain.SinkRecord) error {
	fields, err := encodeFields(record)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, insertQuery,
		record.EventID,
		record.Stream,
		record.Partition,
		record.SourceID,
		record.EventTime,
		record.ReceivedAt,
		fields,
		pq.Array(nonNilTags(record.Tags)),
	)
	if err != nil {
		return fmt.Errorf("insert event %s: %w", record.EventID, err)
	}
	return nil
}

// WriteBatch stores records with the COPY protocol. Rows are staged in a
// temporary table and merged so existing event IDs are skipped.
func (r *SinkRepository) WriteBatch(ctx context.Context, records []domain.SinkRecord) error {
	if len(records) == 0 {
		return nil
	}

	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer txn.Rollback() // no-op after Commit

	if _, err := txn.ExecContext(ctx, `CREATE TEMP TABLE `+tempTableName+` (LIKE `+eventsTableName+` INCLUDING DEFAULTS) ON COMMIT DROP`); err != nil {
		return fmt.Errorf("create staging table: %w", err)
	}

	stmt, err := txn.PrepareContext(ctx, pq.CopyIn(tempTableName,
		"event_id", "stream", "partition", "source_id", "event_time", "received_at", "fields", "tags"))
	if err != nil {
		return fmt.Errorf("prepare copy: %w", err)
	}

	for _, record := range records {
		fields, err := encodeFields(record)
		if err != nil {
			_ = stmt.Close()
			return err
		}
		// COPY takes the text form of array columns.
		tags, err := pq.Array(nonNilTags(record.Tags)).Value()
		if err != nil {
			_ = stmt.Close()
			return fmt.Errorf("encode tags of event %s: %w", record.EventID, err)
		}
		if _, err := stmt.ExecContext(ctx, record.EventID, record.Stream, record.Partition, record.SourceID,
			record.EventTime, record.ReceivedAt, fields, tags); err != nil {
			_ = stmt.Close()
			return fmt.Errorf("copy event %s: %w", record.EventID, err)
		}
	}

	// Flush the COPY buffer.
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return fmt.Errorf("flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("close copy: %w", err)
	}

	merge := `INSERT INTO ` + eventsTableName + `
		SELECT * FROM ` + tempTableName + `
		ON CONFLICT (event_id) DO NOTHING`
	if _, err := txn.ExecContext(ctx, merge); err != nil {
		return fmt.Errorf("merge staged events: %w", err)
	}

	if err := txn.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	r.logger.Debug("wrote batch", "count", len(records))
	return nil
}

// encodeFields renders the field map as JSON for the JSONB column. Postgres
// text and JSONB reject NUL, so it is removed from keys and values.
func encodeFields(record domain.SinkRecord) (string, error) {
	fields := make(map[string]string, len(record.Fields))
	for k, v := range record.Fields {
		fields[stripNUL(k)] = stripNUL(v)
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode fields of event %s: %w", record.EventID, err)
	}
	return string(b), nil
}

func stripNUL(s string) string {
	if strings.IndexByte(s, 0) < 0 {
		return s
	}
	return strings.ReplaceAll(s, "\x00", "")
}

func nonNilTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		out = append(out, stripNUL(tag))
	}
	return out
}
