package lumberjack

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/V4T54L/logflow/internal/domain"
	"github.com/V4T54L/logflow/internal/pkg/flatten"
	"github.com/V4T54L/logflow/internal/usecase"
)

const fieldTags = "tags"

// DecodeRecord maps a Beats JSON event to a raw record. The "message" field
// becomes the raw text, "tags" become initial tags and every other field is
// kept under its flattened name. Events without a message keep the whole
// JSON document as raw text.
func DecodeRecord(payload []byte) (usecase.RawRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return usecase.RawRecord{}, fmt.Errorf("%w: invalid event json: %v", ErrMalformedFrame, err)
	}

	rec := usecase.RawRecord{Fields: make(map[string]string)}
	if msg, ok := doc[domain.FieldMessage].(string); ok {
		rec.Message = msg
	} else {
		rec.Message = string(payload)
	}
	delete(doc, domain.FieldMessage)

	if tags, ok := doc[fieldTags].([]any); ok {
		for _, t := range tags {
			if s, ok := t.(string); ok && s != "" {
				rec.Tags = append(rec.Tags, s)
			}
		}
		delete(doc, fieldTags)
	}

	flatten.Map("", doc, rec.Fields)
	return rec, nil
}

// DecodeWindow decodes every event of a window in order.
func DecodeWindow(w *Window) ([]usecase.RawRecord, error) {
	records := make([]usecase.RawRecord, 0, len(w.Events))
	for _, ev := range w.Events {
		rec, err := DecodeRecord(ev.Payload)
		if err != nil {
			return nil, fmt.Errorf("event seq %d: %w", ev.Seq, err)
		}
		records = append(records, rec)
	}
	return records, nil
}
