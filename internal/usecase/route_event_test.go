package usecase

import (
	"sync"
	"testing"
	"time"

	"github.com/V4T54L/logflow/internal/domain"
	"github.com/V4T54L/logflow/internal/domain/mocks"
)

func TestPartitionName(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	tests := []struct {
		stream string
		at     time.Time
		want   string
	}{
		{"containers", time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC), "containers-2024.01.15"},
		{"techsavvyrc", time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC), "techsavvyrc-2024.12.31"},
		// 2024-01-16 02:00 IST is still the 15th in UTC.
		{"unknown", time.Date(2024, 1, 16, 2, 0, 0, 0, ist), "unknown-2024.01.15"},
	}
	for _, tt := range tests {
		if got := PartitionName(tt.stream, tt.at); got != tt.want {
			t.Errorf("PartitionName(%q, %s) = %q, want %q", tt.stream, tt.at, got, tt.want)
		}
	}
}

func TestRouteEventUseCase_Route(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	eventTime := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		tags          []string
		timestamp     *time.Time
		wantStream    string
		wantPartition string
	}{
		{"Container Log", []string{"container_log"}, &eventTime, "containers", "containers-2024.01.15"},
		{"App Log", []string{"app_log"}, &eventTime, "techsavvyrc", "techsavvyrc-2024.01.15"},
		{"Both Tags First Rule Wins", []string{"app_log", "container_log"}, &eventTime, "containers", "containers-2024.01.15"},
		{"No Matching Tag", []string{domain.TagParsed}, &eventTime, "unknown", "unknown-2024.01.15"},
		{"Null Timestamp Uses Processing Date", []string{"app_log"}, nil, "techsavvyrc", "techsavvyrc-2024.03.01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			debug := &mocks.MockDebugSink{}
			uc := NewRouteEventUseCase(testRoutingTable(), debug, testMetrics(), testLogger())
			uc.now = fixedClock(now)

			event := domain.NewLogEvent("1", "src", "raw", now)
			for _, tag := range tt.tags {
				event.AddTag(tag)
			}
			event.Timestamp = tt.timestamp

			uc.Route(event)

			if event.Stream != tt.wantStream {
				t.Errorf("stream got %q, want %q", event.Stream, tt.wantStream)
			}
			if event.Partition != tt.wantPartition {
				t.Errorf("partition got %q, want %q", event.Partition, tt.wantPartition)
			}
			emitted := debug.Emitted()
			if len(emitted) != 1 || emitted[0].Stream != tt.wantStream {
				t.Errorf("expected one routed copy on the debug sink, got %+v", emitted)
			}
		})
	}
}

func TestRouteEventUseCase_ClassificationBeforeRouting(t *testing.T) {
	table := testRoutingTable()
	table.Routes = append([]domain.RoutingRule{{
		Expr:      "tag:error",
		Predicate: mustPredicate(t, "tag:error"),
		Stream:    "errors",
	}}, table.Routes...)

	debug := &mocks.MockDebugSink{}
	uc := NewRouteEventUseCase(table, debug, testMetrics(), testLogger())

	event := domain.NewLogEvent("1", "src", "raw", time.Now())
	event.SetField("log_level", "ERROR")
	event.AddTag("app_log")
	uc.Route(event)

	if !event.HasTag("error") {
		t.Error("expected classification tag")
	}
	if event.Stream != "errors" {
		t.Errorf("stream got %q, want errors", event.Stream)
	}
}

func TestRouteEventUseCase_DeterministicUnderConcurrency(t *testing.T) {
	debug := &mocks.MockDebugSink{}
	uc := NewRouteEventUseCase(testRoutingTable(), debug, testMetrics(), testLogger())

	tagSets := [][]string{{"container_log"}, {"app_log"}, {"app_log", "container_log"}, {"other"}}
	want := []string{"containers", "techsavvyrc", "containers", "unknown"}

	var wg sync.WaitGroup
	errs := make(chan string, 400)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				idx := (i + offset) % len(tagSets)
				event := domain.NewLogEvent("x", "src", "raw", time.Now())
				for _, tag := range tagSets[idx] {
					event.AddTag(tag)
				}
				uc.Route(event)
				if event.Stream != want[idx] {
					errs <- event.Stream
				}
			}
		}(g)
	}
	wg.Wait()
	close(errs)

	for got := range errs {
		t.Errorf("nondeterministic routing result %q", got)
	}
}
