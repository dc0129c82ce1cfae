package domain

import (
	"time"
)

// FieldMessage holds the raw text, or the remainder after a successful parse.
const FieldMessage = "message"

// Tags attached by pipeline stages.
const (
	TagParsed          = "parsed"
	TagParseFailed     = "parse_failed"
	TagTimestampFailed = "timestamp_failed"
	TagPIIRedacted     = "pii_redacted"
	TagSinkFailed      = "sink_failed"
	TagShutdownDropped = "shutdown_dropped"
)

// LogEvent is the unit of work flowing through the pipeline.
// RawMessage, SourceID and ReceivedAt are set once at ingestion and never changed.
type LogEvent struct {
	ID         string            `json:"event_id"`
	SourceID   string            `json:"source_id"`
	ReceivedAt time.Time         `json:"received_at"`
	RawMessage string            `json:"raw_message"`
	Fields     map[string]string `json:"fields"`
	Tags       []string          `json:"tags"`
	Timestamp  *time.Time        `json:"timestamp,omitempty"`
	Stream     string            `json:"stream,omitempty"`
	Partition  string            `json:"partition,omitempty"`
}

// NewLogEvent creates an event for one agent-delivered record.
func NewLogEvent(id, sourceID, raw string, receivedAt time.Time) *LogEvent {
	return &LogEvent{
		ID:         id,
		SourceID:   sourceID,
		ReceivedAt: receivedAt,
		RawMessage: raw,
		Fields:     make(map[string]string),
	}
}

// AddTag adds tag to the event's tag set. Tags are never removed.
func (e *LogEvent) AddTag(tag string) {
	if tag == "" || e.HasTag(tag) {
		return
	}
	e.Tags = append(e.Tags, tag)
}

// HasTag reports whether tag is in the event's tag set.
func (e *LogEvent) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Field returns the value of a field and whether it is present.
func (e *LogEvent) Field(name string) (string, bool) {
	v, ok := e.Fields[name]
	return v, ok
}

// SetField writes a field, allocating the map if needed.
func (e *LogEvent) SetField(name, value string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[name] = value
}

// EventTime is the canonical timestamp, or the arrival time when the
// timestamp could not be normalized.
func (e *LogEvent) EventTime() time.Time {
	if e.Timestamp != nil {
		return *e.Timestamp
	}
	return e.ReceivedAt
}

// Clone returns a deep copy, safe to hand to another goroutine.
func (e *LogEvent) Clone() LogEvent {
	c := *e
	c.Fields = make(map[string]string, len(e.Fields))
	for k, v := range e.Fields {
		c.Fields[k] = v
	}
	c.Tags = append([]string(nil), e.Tags...)
	if e.Timestamp != nil {
		ts := *e.Timestamp
		c.Timestamp = &ts
	}
	return c
}

// SinkRecord is what the storage sink receives for a routed event.
type SinkRecord struct {
	EventID    string            `json:"event_id"`
	Stream     string            `json:"stream"`
	Partition  string            `json:"partition"`
	SourceID   string            `json:"source_id"`
	EventTime  time.Time         `json:"@timestamp"`
	ReceivedAt time.Time         `json:"received_at"`
	Fields     map[string]string `json:"fields"`
	Tags       []string          `json:"tags"`
}

// Record builds the storage record for a routed event.
func (e *LogEvent) Record() SinkRecord {
	c := e.Clone()
	return SinkRecord{
		EventID:    c.ID,
		Stream:     c.Stream,
		Partition:  c.Partition,
		SourceID:   c.SourceID,
		EventTime:  c.EventTime().UTC(),
		ReceivedAt: c.ReceivedAt.UTC(),
		Fields:     c.Fields,
		Tags:       c.Tags,
	}
}
