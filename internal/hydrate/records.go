package hydrate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Records extracts the list of objects from a collection response. Both
// {"data": [...]} envelopes and bare arrays are accepted. Numbers decode as
// json.Number so large ids survive untouched.
func Records(body []byte) ([]map[string]any, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("hydrate: empty response body")
	}
	var raw any
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("hydrate: decode response: %w", err)
	}
	if envelope, ok := raw.(map[string]any); ok {
		data, found := envelope["data"]
		if !found {
			return nil, fmt.Errorf("hydrate: response object has no data field")
		}
		raw = data
	}
	if raw == nil {
		return []map[string]any{}, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("hydrate: expected array, got %T", raw)
	}
	out := make([]map[string]any, 0, len(items))
	for i, item := range items {
		record, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("hydrate: item %d: expected object, got %T", i, item)
		}
		out = append(out, record)
	}
	return out, nil
}

// Scalar renders an identifier-like value as a string. Objects, arrays,
// booleans, nil and fractional numbers are rejected.
func Scalar(v any) (string, bool) {
	switch value := v.(type) {
	case string:
		return value, true
	case json.Number:
		if i, err := value.Int64(); err == nil {
			return strconv.FormatInt(i, 10), true
		}
		return "", false
	case float64:
		if value != math.Trunc(value) || math.IsInf(value, 0) {
			return "", false
		}
		return strconv.FormatFloat(value, 'f', 0, 64), true
	case int:
		return strconv.Itoa(value), true
	case int32:
		return strconv.FormatInt(int64(value), 10), true
	case int64:
		return strconv.FormatInt(value, 10), true
	case uint64:
		return strconv.FormatUint(value, 10), true
	default:
		return "", false
	}
}

// Plain converts json.Number values, at any depth, into int64 when integral
// and float64 otherwise so rule engines can compare them with literals.
func Plain(v any) any {
	switch value := v.(type) {
	case json.Number:
		if i, err := value.Int64(); err == nil {
			return i
		}
		if f, err := value.Float64(); err == nil {
			return f
		}
		return value.String()
	case map[string]any:
		out := make(map[string]any, len(value))
		for k, item := range value {
			out[k] = Plain(item)
		}
		return out
	case []any:
		out := make([]any, len(value))
		for i, item := range value {
			out[i] = Plain(item)
		}
		return out
	default:
		return v
	}
}
