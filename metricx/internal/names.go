// Package internal provides internal implementation for metricx.
package internal

import "strings"

// PromName derives a Prometheus metric name from a dotted metric name.
// Characters outside [A-Za-z0-9_:] become "_" and a leading digit gets a "_" prefix.
func PromName(name string) string {
	if name == "" {
		return "_"
	}
	var b strings.Builder
	b.Grow(len(name) + 1)
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r == ':':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
