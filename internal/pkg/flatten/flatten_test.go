package flatten

import (
	"bytes"
	"encoding/json"
	"reflect"
	"testing"
)

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		t.Fatalf("decode %q: %v", s, err)
	}
	return m
}

func TestMap(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		in     string
		want   map[string]string
	}{
		{
			name: "scalars",
			in:   `{"host":"web-1","pid":42,"ratio":0.5,"ok":true,"gone":null}`,
			want: map[string]string{"host": "web-1", "pid": "42", "ratio": "0.5", "ok": "true"},
		},
		{
			name: "nested objects use dotted keys",
			in:   `{"agent":{"hostname":"web-1","version":"8.11.0"},"log":{"file":{"path":"/var/log/app.log"}}}`,
			want: map[string]string{
				"agent.hostname": "web-1",
				"agent.version":  "8.11.0",
				"log.file.path":  "/var/log/app.log",
			},
		},
		{
			name: "arrays are kept as json",
			in:   `{"ids":[1,2,3],"labels":["a","b"]}`,
			want: map[string]string{"ids": "[1,2,3]", "labels": `["a","b"]`},
		},
		{
			name:   "prefix",
			prefix: "json",
			in:     `{"user":{"id":"u1"}}`,
			want:   map[string]string{"json.user.id": "u1"},
		},
		{
			name: "large integers keep precision",
			in:   `{"offset":9007199254740993}`,
			want: map[string]string{"offset": "9007199254740993"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := make(map[string]string)
			Map(tt.prefix, decode(t, tt.in), got)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Map() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValue_Float64(t *testing.T) {
	out := make(map[string]string)
	Value("n", float64(1.25), out)
	Value("big", float64(1e21), out)
	if out["n"] != "1.25" {
		t.Errorf("n = %q", out["n"])
	}
	if out["big"] != "1000000000000000000000" {
		t.Errorf("big = %q", out["big"])
	}
}
