package usecase

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/V4T54L/logflow/internal/adapter/metrics"
	"github.com/V4T54L/logflow/internal/domain"
	"github.com/V4T54L/logflow/internal/pkg/pattern"
	"github.com/V4T54L/logflow/internal/pkg/predicate"
)

const appPattern = `%{TIMESTAMP_ISO8601:log_timestamp} \[%{LOGLEVEL:log_level}\] %{KV}%{GREEDYDATA:message}`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMetrics() *metrics.PipelineMetrics {
	return metrics.NewPipelineMetrics(prometheus.NewRegistry())
}

func testPatterns(t *testing.T) *pattern.Set {
	t.Helper()
	set, err := pattern.Compile([]pattern.Definition{{Name: "app", Pattern: appPattern}})
	if err != nil {
		t.Fatalf("compile patterns: %v", err)
	}
	return set
}

func testRoutingTable() *domain.RoutingTable {
	return &domain.RoutingTable{
		Classifiers: []domain.ClassificationRule{
			{Expr: "field:log_level == ERROR", Predicate: predicate.MustParse("field:log_level == ERROR"), Tag: "error"},
		},
		Routes: []domain.RoutingRule{
			{Expr: "tag:container_log", Predicate: predicate.MustParse("tag:container_log"), Stream: "containers"},
			{Expr: "tag:app_log", Predicate: predicate.MustParse("tag:app_log"), Stream: "techsavvyrc"},
		},
		DefaultStream: "unknown",
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func mustPredicate(t *testing.T, expr string) predicate.Predicate {
	t.Helper()
	p, err := predicate.Parse(expr)
	if err != nil {
		t.Fatalf("parse predicate %q: %v", expr, err)
	}
	return p
}
