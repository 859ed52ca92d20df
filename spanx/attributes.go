package spanx

import (
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute converts a field value to an OpenTelemetry attribute.
// Durations become milliseconds; unknown types are formatted with fmt.Sprint.
func Attribute(key string, v any) attribute.KeyValue {
	switch x := v.(type) {
	case string:
		return attribute.String(key, x)
	case bool:
		return attribute.Bool(key, x)
	case int:
		return attribute.Int(key, x)
	case int8:
		return attribute.Int64(key, int64(x))
	case int16:
		return attribute.Int64(key, int64(x))
	case int32:
		return attribute.Int64(key, int64(x))
	case int64:
		return attribute.Int64(key, x)
	case uint:
		return attribute.Int64(key, int64(x))
	case uint8:
		return attribute.Int64(key, int64(x))
	case uint16:
		return attribute.Int64(key, int64(x))
	case uint32:
		return attribute.Int64(key, int64(x))
	case uint64:
		return attribute.Int64(key, int64(x))
	case float32:
		return attribute.Float64(key, float64(x))
	case float64:
		return attribute.Float64(key, x)
	case time.Duration:
		return attribute.Int64(key, x.Milliseconds())
	case []string:
		return attribute.StringSlice(key, x)
	case fmt.Stringer:
		return attribute.String(key, x.String())
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}

// Attributes converts fields to attributes sorted by key.
func Attributes(fields map[string]any) []attribute.KeyValue {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]attribute.KeyValue, 0, len(keys))
	for _, k := range keys {
		out = append(out, Attribute(k, fields[k]))
	}
	return out
}
