// Package flatten turns decoded JSON objects into flat string maps with
// dotted keys.
package flatten

import (
	"encoding/json"
	"strconv"
)

// Map flattens a decoded JSON object. Nested objects become dotted keys,
// arrays are re-encoded as JSON text, null values are skipped.
func Map(prefix string, in map[string]any, out map[string]string) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		Value(key, v, out)
	}
}

// Value flattens a single decoded JSON value under key.
func Value(key string, v any, out map[string]string) {
	switch val := v.(type) {
	case nil:
	case string:
		out[key] = val
	case bool:
		out[key] = strconv.FormatBool(val)
	case json.Number:
		out[key] = val.String()
	case float64:
		out[key] = strconv.FormatFloat(val, 'f', -1, 64)
	case map[string]any:
		Map(key, val, out)
	default:
		if b, err := json.Marshal(val); err == nil {
			out[key] = string(b)
		}
	}
}
