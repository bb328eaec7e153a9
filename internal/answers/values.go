package answers

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

func decodeAny(raw json.RawMessage) (any, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	return v, true
}

// intValue accepts integral JSON numbers and numeric strings.
func intValue(raw json.RawMessage) (int, bool) {
	f, ok := floatValue(raw)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

// floatValue accepts JSON numbers and numeric strings.
func floatValue(raw json.RawMessage) (float64, bool) {
	v, ok := decodeAny(raw)
	if !ok {
		return 0, false
	}
	var s string
	switch t := v.(type) {
	case json.Number:
		s = t.String()
	case string:
		s = strings.TrimSpace(t)
	default:
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// textValue renders any JSON value as answer text. Null is the empty string.
func textValue(raw json.RawMessage) string {
	v, ok := decodeAny(raw)
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return string(raw)
		}
		return buf.String()
	}
}
