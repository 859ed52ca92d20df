// Package servicex wires logx, configx, obsx, metricx, rootspanx, spanx and
// interceptx into a Kit.
//
// # Order
//
// Configuration is loaded first (defaults, YAML file, O11Y_* environment) and
// selects the logger format and level. The Prometheus registry is shared by
// the OTel exporter and the metric registry, so one /metrics handler serves
// both. Data sources are bound into the resource directory before the
// connection pool field provider resolves them.
//
// # Wire
//
// ProviderSet exposes the same constructors to google/wire. Injectors take a
// context.Context, a ConfigFile and DataSources:
//
//	func initializeKit(ctx context.Context, file servicex.ConfigFile, ds servicex.DataSources) (*servicex.Kit, error) {
//		wire.Build(servicex.ProviderSet)
//		return nil, nil
//	}
package servicex
