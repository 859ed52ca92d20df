// Package utils provides minimal helpers shared by the o11y packages.
//
// Overview:
//   - Responsibility: Convert field values and parse name lists
//   - Key Types: none; plain functions
//   - Concurrency Model: All functions are safe for concurrent use
//   - Performance Notes: No reflection; a type switch covers the common numeric kinds
//
// Usage:
//
//	f, ok := utils.ToFloat64(fields["cp.main.activeCount"])
//	names := utils.SplitList("main, replica")
package utils

import (
	"strings"
	"time"
)

// ToFloat64 converts numeric values to float64.
// Durations convert to milliseconds and booleans to 0 or 1.
// The second result is false for any other type.
func ToFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case time.Duration:
		return float64(n) / float64(time.Millisecond), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// SplitList splits a comma separated list, trimming blanks and dropping empty entries.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Unique removes duplicate strings from a slice, keeping first occurrences.
func Unique(slice []string) []string {
	seen := make(map[string]struct{}, len(slice))
	result := make([]string, 0, len(slice))
	for _, item := range slice {
		if _, ok := seen[item]; !ok {
			seen[item] = struct{}{}
			result = append(result, item)
		}
	}
	return result
}
