package usecase

import (
	"reflect"
	"testing"
	"time"

	"github.com/V4T54L/logflow/internal/domain"
)

func TestParseEventUseCase_Parse(t *testing.T) {
	uc := NewParseEventUseCase(testPatterns(t), testMetrics(), testLogger())

	t.Run("Matching Line", func(t *testing.T) {
		event := domain.NewLogEvent("1", "src", "2024-01-15 10:00:00,000 [ERROR] service=auth trace_id=abc span_id=def disk full", time.Now())
		uc.Parse(event)

		want := map[string]string{
			"log_timestamp": "2024-01-15 10:00:00,000",
			"log_level":     "ERROR",
			"service":       "auth",
			"trace_id":      "abc",
			"span_id":       "def",
			"message":       "disk full",
		}
		if !reflect.DeepEqual(event.Fields, want) {
			t.Errorf("fields mismatch:\n got  %v\n want %v", event.Fields, want)
		}
		if event.HasTag(domain.TagParseFailed) {
			t.Error("unexpected parse_failed tag")
		}
		if !event.HasTag(domain.TagParsed) {
			t.Error("expected parsed tag")
		}
	})

	t.Run("Unparseable Line", func(t *testing.T) {
		event := domain.NewLogEvent("2", "src", "garbage unparseable line", time.Now())
		uc.Parse(event)

		if got := event.Fields[domain.FieldMessage]; got != "garbage unparseable line" {
			t.Errorf("message got %q, want raw line", got)
		}
		if !event.HasTag(domain.TagParseFailed) {
			t.Error("expected parse_failed tag")
		}
		if event.RawMessage != "garbage unparseable line" {
			t.Error("raw message must not change")
		}
	})

	t.Run("Agent Fields Kept", func(t *testing.T) {
		event := domain.NewLogEvent("3", "src", "garbage", time.Now())
		event.SetField("host.name", "node-1")
		event.AddTag("app_log")
		uc.Parse(event)

		if event.Fields["host.name"] != "node-1" {
			t.Error("expected agent field to survive parsing")
		}
		if len(event.Tags) != 2 {
			t.Errorf("expected agent tag plus parse_failed, got %v", event.Tags)
		}
	})
}

func FuzzParseEvent(f *testing.F) {
	f.Add("2024-01-15 10:00:00,000 [ERROR] service=auth trace_id=abc span_id=def disk full")
	f.Add("garbage unparseable line")
	f.Add("\x00\xff[ERROR] =")

	f.Fuzz(func(t *testing.T, raw string) {
		uc := NewParseEventUseCase(testPatterns(t), testMetrics(), testLogger())
		event := domain.NewLogEvent("f", "src", raw, time.Now())
		uc.Parse(event)

		if _, ok := event.Fields[domain.FieldMessage]; !ok {
			t.Fatal("message field missing after parse")
		}
		if len(event.Tags) == 0 {
			t.Fatal("parse must leave at least one tag")
		}
		if event.RawMessage != raw {
			t.Fatal("raw message mutated")
		}
		if event.HasTag(domain.TagParseFailed) && event.Fields[domain.FieldMessage] != raw {
			t.Fatal("failed parse must keep raw message")
		}
	})
}
