package internal

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"go.eggybyte.com/o11y/core/utils"
)

// FieldMeterName is the instrumentation scope of field source gauges.
const FieldMeterName = "go.eggybyte.com/o11y/obsx/fields"

// FieldAttribute labels each observation with its field key.
const FieldAttribute = "field"

// RegisterFieldSource exports source as one observable gauge named name.
// Every numeric entry is observed with a field attribute; other values are skipped.
//
// Parameters:
//   - mp: meter provider owning the gauge
//   - name: instrument name (e.g., "o11y_root_span_fields")
//   - source: snapshot function, called on every collection
//
// Returns:
//   - metric.Registration: unregisters the callback
//   - error: instrument or callback registration error
func RegisterFieldSource(mp metric.MeterProvider, name string, source func() map[string]any) (metric.Registration, error) {
	if source == nil {
		return nil, fmt.Errorf("field source %q is nil", name)
	}
	meter := mp.Meter(FieldMeterName)

	gauge, err := meter.Float64ObservableGauge(
		name,
		metric.WithDescription("Root span field values by field key"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gauge %q: %w", name, err)
	}

	reg, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("field source %q panicked: %v", name, r)
			}
		}()

		fields := source()
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v, ok := utils.ToFloat64(fields[k])
			if !ok {
				continue
			}
			o.ObserveFloat64(gauge, v, metric.WithAttributes(attribute.String(FieldAttribute, k)))
		}
		return nil
	}, gauge)
	if err != nil {
		return nil, fmt.Errorf("failed to register callback for %q: %w", name, err)
	}
	return reg, nil
}
