package pattern

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const appPattern = `%{TIMESTAMP_ISO8601:log_timestamp} \[%{LOGLEVEL:log_level}\] %{KV}%{GREEDYDATA:message}`

func TestGrok_AppLogLine(t *testing.T) {
	m, err := NewGrok("app", appPattern)
	require.NoError(t, err)

	res := m.Match("2024-01-15 10:00:00,000 [ERROR] service=auth trace_id=abc span_id=def disk full")
	require.True(t, res.Matched)
	assert.Equal(t, map[string]string{
		"log_timestamp": "2024-01-15 10:00:00,000",
		"log_level":     "ERROR",
		"service":       "auth",
		"trace_id":      "abc",
		"span_id":       "def",
		"message":       "disk full",
	}, res.Fields)
}

func TestGrok_KVOrderIndependent(t *testing.T) {
	m, err := NewGrok("app", appPattern)
	require.NoError(t, err)

	a := m.Match("2024-01-15 10:00:00,000 [INFO] trace_id=1 span_id=2 service=web hello")
	b := m.Match("2024-01-15 10:00:00,000 [INFO] service=web span_id=2 trace_id=1 hello")
	require.True(t, a.Matched)
	require.True(t, b.Matched)
	assert.Equal(t, a.Fields, b.Fields)
	assert.Equal(t, "hello", a.Fields["message"])
}

func TestGrok_NoKVTokens(t *testing.T) {
	m, err := NewGrok("app", appPattern)
	require.NoError(t, err)

	res := m.Match("2024-01-15T10:00:00Z [warning] Visited home page")
	require.True(t, res.Matched)
	assert.Equal(t, "warning", res.Fields["log_level"])
	assert.Equal(t, "Visited home page", res.Fields["message"])
	assert.Len(t, res.Fields, 3)
}

func TestGrok_ExtraWhitespace(t *testing.T) {
	m, err := NewGrok("app", appPattern)
	require.NoError(t, err)

	res := m.Match("2024-01-15 10:00:00,000 [ERROR]  service=auth  trace_id=abc   disk full")
	require.True(t, res.Matched)
	assert.Equal(t, "auth", res.Fields["service"])
	assert.Equal(t, "abc", res.Fields["trace_id"])
	assert.Equal(t, "disk full", res.Fields["message"])

	res = m.Match("2024-01-15 10:00:00,000 [INFO]   hello")
	require.True(t, res.Matched)
	assert.Equal(t, "hello", res.Fields["message"])
}

func TestGrok_RemainderBecomesMessage(t *testing.T) {
	m, err := NewGrok("prefix", `%{TIMESTAMP_ISO8601:ts} %{WORD:host}`)
	require.NoError(t, err)

	res := m.Match("2024-01-15 10:00:00 web-1 sshd: session opened")
	require.True(t, res.Matched)
	assert.Equal(t, "2024-01-15 10:00:00", res.Fields["ts"])
	assert.Equal(t, "web", res.Fields["host"])
	assert.Equal(t, "-1 sshd: session opened", res.Fields["message"])
	assert.Equal(t, "-1 sshd: session opened", res.Remainder)
}

func TestGrok_AnchoredAtStart(t *testing.T) {
	m, err := NewGrok("app", appPattern)
	require.NoError(t, err)

	res := m.Match("prefix 2024-01-15 10:00:00,000 [ERROR] disk full")
	assert.False(t, res.Matched)
	assert.Equal(t, NoMatch, res)
}

func TestGrok_UnknownPattern(t *testing.T) {
	_, err := NewGrok("bad", `%{NOPE:x}`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownPattern))
}

func TestRegexMatcher(t *testing.T) {
	m, err := NewRegex("syslog", `<(?P<priority>\d+)>\s+(?P<host>\S+)\s+(?P<program>[^:]+):\s+`)
	require.NoError(t, err)

	res := m.Match("<86> web-1 sudo: session opened for user root")
	require.True(t, res.Matched)
	assert.Equal(t, "86", res.Fields["priority"])
	assert.Equal(t, "web-1", res.Fields["host"])
	assert.Equal(t, "sudo", res.Fields["program"])
	assert.Equal(t, "session opened for user root", res.Fields["message"])

	_, err = NewRegex("broken", `(`)
	assert.Error(t, err)
}

func TestJSONMatcher(t *testing.T) {
	m := NewJSON("json")

	res := m.Match(`{"message":"hello","level":"info","http":{"status":200},"ok":true,"ids":[1,2]}`)
	require.True(t, res.Matched)
	assert.Equal(t, "hello", res.Fields["message"])
	assert.Equal(t, "info", res.Fields["level"])
	assert.Equal(t, "200", res.Fields["http.status"])
	assert.Equal(t, "true", res.Fields["ok"])
	assert.Equal(t, "[1,2]", res.Fields["ids"])

	assert.False(t, m.Match("not json").Matched)
	assert.False(t, m.Match(`{"broken":`).Matched)
	assert.False(t, m.Match(`{"a":1} trailing`).Matched)
}

func TestSet_FirstMatchWins(t *testing.T) {
	set, err := Compile([]Definition{
		{Name: "json", Kind: KindJSON},
		{Name: "app", Pattern: appPattern},
		{Name: "any_level", Pattern: `\[%{LOGLEVEL:log_level}\] %{GREEDYDATA:message}`},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"json", "app", "any_level"}, set.Names())

	name, res := set.Match("2024-01-15 10:00:00,000 [ERROR] disk full")
	assert.Equal(t, "app", name)
	assert.True(t, res.Matched)

	name, res = set.Match("[DEBUG] cache warm")
	assert.Equal(t, "any_level", name)
	assert.Equal(t, "cache warm", res.Fields["message"])

	name, res = set.Match("garbage unparseable line")
	assert.Empty(t, name)
	assert.False(t, res.Matched)
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name string
		defs []Definition
	}{
		{"missing name", []Definition{{Pattern: appPattern}}},
		{"duplicate name", []Definition{{Name: "a", Pattern: appPattern}, {Name: "a", Pattern: appPattern}}},
		{"unknown kind", []Definition{{Name: "a", Kind: "xml", Pattern: "x"}}},
		{"empty grok", []Definition{{Name: "a"}}},
		{"bad regex", []Definition{{Name: "a", Kind: KindRegex, Pattern: "(?P<x>"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.defs)
			assert.Error(t, err)
		})
	}
}

func FuzzSetMatch(f *testing.F) {
	set, err := Compile([]Definition{
		{Name: "json", Kind: KindJSON},
		{Name: "app", Pattern: appPattern},
	})
	if err != nil {
		f.Fatal(err)
	}
	f.Add("2024-01-15 10:00:00,000 [ERROR] service=auth trace_id=abc span_id=def disk full")
	f.Add("garbage unparseable line")
	f.Add(`{"message":"x"}`)
	f.Add("\xff\xfe\x00")
	f.Add("")

	f.Fuzz(func(t *testing.T, line string) {
		name, res := set.Match(line)
		if res.Matched {
			if name == "" {
				t.Fatal("matched without a matcher name")
			}
			if _, ok := res.Fields["message"]; !ok {
				t.Fatal("matched result has no message field")
			}
		}
	})
}
