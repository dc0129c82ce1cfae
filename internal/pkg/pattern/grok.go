package pattern

import (
	"fmt"
	"regexp"
	"strings"
)

// Built-in grok patterns. KV is handled specially: it captures a run of
// key=value tokens in any order, including surrounding whitespace.
var builtins = map[string]string{
	"TIMESTAMP_ISO8601": `\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}(?::\d{2}(?:[.,]\d+)?)?(?:Z|[+-]\d{2}:?\d{2})?`,
	"LOGLEVEL":          `(?i:emergency|emerg|alert|critical|crit|severe|fatal|error|err|warning|warn|notice|information|info|debug|trace)`,
	"WORD":              `\w+`,
	"NOTSPACE":          `\S+`,
	"SPACE":             `\s*`,
	"INT":               `[+-]?\d+`,
	"NUMBER":            `[+-]?(?:\d+(?:\.\d*)?|\.\d+)`,
	"IP":                `(?:\d{1,3}\.){3}\d{1,3}`,
	"QUOTEDSTRING":      `"(?:[^"\\]|\\.)*"`,
	"DATA":              `.*?`,
	"GREEDYDATA":        `.*`,
	"KV":                `\s*(?:[A-Za-z_][A-Za-z0-9_.\-]*=\S*(?:\s+|$))*`,
}

var grokRef = regexp.MustCompile(`%\{(\w+)(?::([\w.@\-]+))?\}`)

type capture struct {
	field string
	kv    bool
}

// regexMatcher is the compiled form of both grok and raw regex matchers.
type regexMatcher struct {
	name     string
	re       *regexp.Regexp
	captures map[int]capture
}

// NewGrok compiles a grok-style pattern. Literal text is a regular
// expression; %{NAME} and %{NAME:field} reference built-in patterns.
// The pattern is anchored at the start of the line.
func NewGrok(name, pattern string) (Matcher, error) {
	if pattern == "" {
		return nil, fmt.Errorf("empty pattern")
	}

	var (
		sb       strings.Builder
		last     int
		group    int
		captures = make(map[string]capture)
	)
	for _, loc := range grokRef.FindAllStringSubmatchIndex(pattern, -1) {
		sb.WriteString(pattern[last:loc[0]])
		last = loc[1]

		ref := pattern[loc[2]:loc[3]]
		body, ok := builtins[ref]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPattern, ref)
		}
		field := ""
		if loc[4] >= 0 {
			field = pattern[loc[4]:loc[5]]
		}

		switch {
		case ref == "KV":
			group++
			gname := fmt.Sprintf("g%d", group)
			captures[gname] = capture{kv: true}
			fmt.Fprintf(&sb, "(?P<%s>%s)", gname, body)
		case field != "":
			group++
			gname := fmt.Sprintf("g%d", group)
			captures[gname] = capture{field: field}
			fmt.Fprintf(&sb, "(?P<%s>%s)", gname, body)
		default:
			fmt.Fprintf(&sb, "(?:%s)", body)
		}
	}
	sb.WriteString(pattern[last:])

	re, err := regexp.Compile(`^(?:` + sb.String() + `)`)
	if err != nil {
		return nil, fmt.Errorf("compile grok pattern: %w", err)
	}
	return newRegexMatcher(name, re, captures), nil
}

// NewRegex compiles a raw regular expression with named groups. Each named
// group becomes a field. The expression is anchored at the start of the line.
func NewRegex(name, expr string) (Matcher, error) {
	if expr == "" {
		return nil, fmt.Errorf("empty pattern")
	}
	re, err := regexp.Compile(`^(?:` + expr + `)`)
	if err != nil {
		return nil, fmt.Errorf("compile regex: %w", err)
	}
	captures := make(map[string]capture)
	for _, n := range re.SubexpNames() {
		if n != "" {
			captures[n] = capture{field: n}
		}
	}
	return newRegexMatcher(name, re, captures), nil
}

func newRegexMatcher(name string, re *regexp.Regexp, byName map[string]capture) *regexMatcher {
	m := &regexMatcher{name: name, re: re, captures: make(map[int]capture, len(byName))}
	for i, n := range re.SubexpNames() {
		if c, ok := byName[n]; ok && n != "" {
			m.captures[i] = c
		}
	}
	return m
}

func (m *regexMatcher) Name() string { return m.name }

func (m *regexMatcher) Match(text string) Result {
	loc := m.re.FindStringSubmatchIndex(text)
	if loc == nil {
		return NoMatch
	}

	fields := make(map[string]string, len(m.captures)+1)
	for i := 1; i < len(loc)/2; i++ {
		c, ok := m.captures[i]
		if !ok || loc[2*i] < 0 {
			continue
		}
		value := text[loc[2*i]:loc[2*i+1]]
		if c.kv {
			parseKV(value, fields)
			continue
		}
		if c.field == "message" {
			value = strings.TrimLeft(value, " \t")
		}
		fields[c.field] = value
	}

	remainder := strings.TrimLeft(text[loc[1]:], " \t")
	if _, ok := fields["message"]; !ok {
		fields["message"] = remainder
	}
	return Result{Matched: true, Fields: fields, Remainder: remainder}
}

// parseKV splits "a=1 b=2" into fields. Later duplicates overwrite earlier ones.
func parseKV(s string, out map[string]string) {
	for _, tok := range strings.Fields(s) {
		k, v, ok := strings.Cut(tok, "=")
		if !ok || k == "" {
			continue
		}
		out[k] = v
	}
}
