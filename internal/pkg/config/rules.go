package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/V4T54L/logflow/internal/domain"
	"github.com/V4T54L/logflow/internal/pkg/pattern"
	"github.com/V4T54L/logflow/internal/pkg/predicate"
)

// Timestamp defaults match Python's logging asctime ("2024-01-15 10:00:00,000").
const (
	DefaultTimestampField  = "log_timestamp"
	DefaultTimestampLayout = "2006-01-02 15:04:05,000"
	DefaultTimezone        = "UTC"
)

// ClassifyRule is the file form of a classification rule.
type ClassifyRule struct {
	When string `yaml:"when" json:"when"`
	Tag  string `yaml:"tag" json:"tag"`
}

// RouteRule is the file form of a routing rule.
type RouteRule struct {
	When   string `yaml:"when" json:"when"`
	Stream string `yaml:"stream" json:"stream"`
}

// TimestampRule configures timestamp normalization.
type TimestampRule struct {
	Field  string `yaml:"field" json:"field"`
	Layout string `yaml:"layout" json:"layout"`
}

// RulesFile is the on-disk rule configuration.
type RulesFile struct {
	Timezone      string               `yaml:"timezone" json:"timezone"`
	Timestamp     TimestampRule        `yaml:"timestamp" json:"timestamp"`
	StaticFields  map[string]string    `yaml:"static_fields" json:"static_fields"`
	Patterns      []pattern.Definition `yaml:"patterns" json:"patterns"`
	Classify      []ClassifyRule       `yaml:"classify" json:"classify"`
	Routes        []RouteRule          `yaml:"routes" json:"routes"`
	DefaultStream string               `yaml:"default_stream" json:"default_stream"`
}

// Rules is the compiled, immutable rule set shared by all stage workers.
type Rules struct {
	Patterns        *pattern.Set
	Routing         *domain.RoutingTable
	Location        *time.Location
	TimestampField  string
	TimestampLayout string
	StaticFields    map[string]string
}

// DefaultRulesFile returns the rules used when no RULES_FILE is configured.
func DefaultRulesFile() RulesFile {
	return RulesFile{
		Timezone:  DefaultTimezone,
		Timestamp: TimestampRule{Field: DefaultTimestampField, Layout: DefaultTimestampLayout},
		Patterns: []pattern.Definition{
			{
				Name:    "app_trace",
				Kind:    pattern.KindGrok,
				Pattern: `%{TIMESTAMP_ISO8601:log_timestamp} \[%{LOGLEVEL:log_level}\] %{KV}%{GREEDYDATA:message}`,
			},
			{Name: "json", Kind: pattern.KindJSON},
		},
		Classify: []ClassifyRule{
			{When: "field:log_level == 'ERROR' or field:log_level == 'CRITICAL'", Tag: "error"},
		},
		Routes: []RouteRule{
			{When: "tag:container_log", Stream: "containers"},
			{When: "tag:app_log", Stream: "techsavvyrc"},
		},
		DefaultStream: "unknown",
	}
}

// LoadRulesFile reads a rules file, detecting the format by extension.
// Supported extensions: .yaml, .yml, .json
func LoadRulesFile(path string) (RulesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RulesFile{}, fmt.Errorf("read rules file: %w", err)
	}

	var rf RulesFile
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(strings.NewReader(string(data)))
		dec.KnownFields(true)
		if err := dec.Decode(&rf); err != nil {
			return RulesFile{}, fmt.Errorf("parse yaml rules: %w", err)
		}
	case ".json":
		dec := json.NewDecoder(strings.NewReader(string(data)))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&rf); err != nil {
			return RulesFile{}, fmt.Errorf("parse json rules: %w", err)
		}
	default:
		return RulesFile{}, fmt.Errorf("unsupported rules file extension: %s", ext)
	}
	return rf, nil
}

// LoadRules loads the rules file named by cfg (or the defaults), applies env
// overrides and compiles the result. Any error is a startup error.
func LoadRules(cfg *Config) (*Rules, error) {
	rf := DefaultRulesFile()
	if cfg.RulesFile != "" {
		var err error
		rf, err = LoadRulesFile(cfg.RulesFile)
		if err != nil {
			return nil, err
		}
	}

	if cfg.SourceTimezone != "" {
		rf.Timezone = cfg.SourceTimezone
	}
	if cfg.TimestampLayout != "" {
		rf.Timestamp.Layout = cfg.TimestampLayout
	}
	if cfg.TimestampField != "" {
		rf.Timestamp.Field = cfg.TimestampField
	}
	if len(cfg.StaticFields) > 0 {
		merged := make(map[string]string, len(rf.StaticFields)+len(cfg.StaticFields))
		for k, v := range rf.StaticFields {
			merged[k] = v
		}
		for k, v := range cfg.StaticFields {
			merged[k] = v
		}
		rf.StaticFields = merged
	}

	return rf.Compile()
}

// Compile validates the file and builds the immutable rule set.
func (rf RulesFile) Compile() (*Rules, error) {
	var errs []error

	if len(rf.Patterns) == 0 {
		errs = append(errs, errors.New("at least one pattern is required"))
	}
	patterns, err := pattern.Compile(rf.Patterns)
	if err != nil {
		errs = append(errs, err)
	}

	tz := rf.Timezone
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		errs = append(errs, fmt.Errorf("timezone %q: %w", tz, err))
	}

	field := rf.Timestamp.Field
	if field == "" {
		field = DefaultTimestampField
	}
	layout := rf.Timestamp.Layout
	if layout == "" {
		layout = DefaultTimestampLayout
	}
	if err := checkLayout(layout); err != nil {
		errs = append(errs, err)
	}

	table := &domain.RoutingTable{DefaultStream: strings.TrimSpace(rf.DefaultStream)}
	if table.DefaultStream == "" {
		errs = append(errs, errors.New("default_stream is required"))
	}
	for i, c := range rf.Classify {
		if c.Tag == "" {
			errs = append(errs, fmt.Errorf("classify rule #%d: tag is required", i+1))
			continue
		}
		p, err := predicate.Parse(c.When)
		if err != nil {
			errs = append(errs, fmt.Errorf("classify rule #%d: %w", i+1, err))
			continue
		}
		table.Classifiers = append(table.Classifiers, domain.ClassificationRule{Expr: c.When, Predicate: p, Tag: c.Tag})
	}
	for i, r := range rf.Routes {
		if r.Stream == "" {
			errs = append(errs, fmt.Errorf("route #%d: stream is required", i+1))
			continue
		}
		p, err := predicate.Parse(r.When)
		if err != nil {
			errs = append(errs, fmt.Errorf("route #%d: %w", i+1, err))
			continue
		}
		table.Routes = append(table.Routes, domain.RoutingRule{Expr: r.When, Predicate: p, Stream: r.Stream})
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid rules: %w", err)
	}

	static := make(map[string]string, len(rf.StaticFields))
	for k, v := range rf.StaticFields {
		static[k] = v
	}

	return &Rules{
		Patterns:        patterns,
		Routing:         table,
		Location:        loc,
		TimestampField:  field,
		TimestampLayout: layout,
		StaticFields:    static,
	}, nil
}

// checkLayout rejects layouts that cannot reproduce their own output.
func checkLayout(layout string) error {
	ref := time.Date(2024, time.January, 15, 10, 4, 5, 123000000, time.UTC)
	s := ref.Format(layout)
	if _, err := time.Parse(layout, s); err != nil {
		return fmt.Errorf("timestamp layout %q: %w", layout, err)
	}
	return nil
}
