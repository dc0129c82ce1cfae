package pattern

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/V4T54L/logflow/internal/pkg/flatten"
)

type jsonMatcher struct {
	name string
}

// NewJSON returns a matcher that accepts lines holding a single JSON object.
// Nested objects are flattened to dotted field names.
func NewJSON(name string) Matcher {
	return &jsonMatcher{name: name}
}

func (m *jsonMatcher) Name() string { return m.name }

func (m *jsonMatcher) Match(text string) Result {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		return NoMatch
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(trimmed)))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return NoMatch
	}
	if dec.More() {
		return NoMatch
	}

	fields := make(map[string]string, len(obj)+1)
	flatten.Map("", obj, fields)
	if _, ok := fields["message"]; !ok {
		fields["message"] = ""
	}
	return Result{Matched: true, Fields: fields}
}
