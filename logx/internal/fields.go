// Package internal provides internal implementation details for logx.
package internal

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Redacted replaces the value of any sensitive field.
const Redacted = "***REDACTED***"

// Redactor converts key-value pairs to zap fields, masking sensitive keys.
type Redactor struct {
	keys map[string]struct{}
}

// NewRedactor creates a Redactor for the given field names. Matching is case-insensitive.
func NewRedactor(fields []string) Redactor {
	keys := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		keys[strings.ToLower(f)] = struct{}{}
	}
	return Redactor{keys: keys}
}

// Fields flattens kv and converts it to zap fields.
// Items may be alternating keys and values or two-element []any pairs.
// A trailing key without a value is dropped.
func (r Redactor) Fields(kv []any) []zap.Field {
	if len(kv) == 0 {
		return nil
	}
	flat := Flatten(kv)
	fields := make([]zap.Field, 0, len(flat)/2)
	for i := 0; i < len(flat)-1; i += 2 {
		key := fmt.Sprintf("%v", flat[i])
		if _, ok := r.keys[strings.ToLower(key)]; ok {
			fields = append(fields, zap.String(key, Redacted))
			continue
		}
		fields = append(fields, field(key, flat[i+1]))
	}
	return fields
}

// Flatten expands nested two-element []any pairs into a flat key, value sequence.
func Flatten(kv []any) []any {
	flat := make([]any, 0, len(kv))
	for _, item := range kv {
		if pair, ok := item.([]any); ok && len(pair) == 2 {
			flat = append(flat, pair[0], pair[1])
			continue
		}
		flat = append(flat, item)
	}
	return flat
}

func field(key string, value any) zap.Field {
	switch v := value.(type) {
	case string:
		return zap.String(key, v)
	case int:
		return zap.Int(key, v)
	case int64:
		return zap.Int64(key, v)
	case float64:
		return zap.Float64(key, v)
	case bool:
		return zap.Bool(key, v)
	case time.Duration:
		return zap.Duration(key, v)
	case error:
		return zap.NamedError(key, v)
	default:
		return zap.Any(key, v)
	}
}
