package providers

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

func asMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func asSlice(v any) []any {
	if s, ok := v.([]any); ok {
		return s
	}
	return nil
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// coerceCount converts a decoded JSON value to a token count. Numbers and
// numeric strings are accepted, booleans count as 0 or 1, everything else
// (including NaN results) is 0. Fractions are truncated; negative counts
// become 0 and counts above MaxInt32 are capped there.
func coerceCount(v any) int {
	var f float64
	switch x := v.(type) {
	case nil:
		return 0
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	case float64:
		f = x
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case bool:
		if x {
			return 1
		}
		return 0
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}

	switch {
	case math.IsNaN(f) || math.IsInf(f, 0) || f <= 0:
		return 0
	case f >= math.MaxInt32:
		return math.MaxInt32
	}
	return int(f)
}

// decodeArguments turns a tool-call argument value into a map. JSON strings
// are decoded; undecodable input yields an empty map.
func decodeArguments(v any) map[string]any {
	switch x := v.(type) {
	case map[string]any:
		return normalizeNumbers(x).(map[string]any)
	case string:
		var out map[string]any
		if err := json.Unmarshal([]byte(x), &out); err != nil || out == nil {
			return map[string]any{}
		}
		return out
	default:
		return map[string]any{}
	}
}

// normalizeNumbers replaces json.Number values with float64 so decoded
// arguments look the same regardless of how they were parsed.
func normalizeNumbers(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = normalizeNumbers(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = normalizeNumbers(val)
		}
		return out
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	default:
		return v
	}
}
