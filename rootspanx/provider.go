package rootspanx

import (
	"fmt"

	"go.eggybyte.com/o11y/core/log"
)

// Provider produces the fields attached to a root span.
// Fields never returns nil and never panics.
type Provider interface {
	Fields() map[string]any
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func() map[string]any

// Fields calls f.
func (f ProviderFunc) Fields() map[string]any {
	if m := f(); m != nil {
		return m
	}
	return map[string]any{}
}

// Collect merges the fields of providers in order; later providers win on key clashes.
// Nil providers are skipped and each provider call is guarded.
func Collect(logger log.Logger, providers ...Provider) map[string]any {
	if logger == nil {
		logger = log.Nop()
	}
	out := make(map[string]any)
	for _, p := range providers {
		if p == nil {
			continue
		}
		for k, v := range guardedFields(logger, p) {
			out[k] = v
		}
	}
	return out
}

func guardedFields(logger log.Logger, p Provider) (fields map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(fmt.Errorf("%v", r), "root span field provider panicked", log.Str("provider", fmt.Sprintf("%T", p)))
			fields = nil
		}
	}()
	return p.Fields()
}

// read evaluates one datum, reporting false when it panics.
func read(logger log.Logger, key string, fn func() any) (v any, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("failed to read root span field", log.Str("field", key), log.Any("panic", r))
			v, ok = nil, false
		}
	}()
	return fn(), true
}

// fetch calls fn, logging and reporting false when it panics.
func fetch[T any](logger log.Logger, msg, key string, fn func() T) (v T, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(fmt.Errorf("%v", r), msg, log.Str("name", key))
			ok = false
		}
	}()
	return fn(), true
}
