// Package metricx provides the metric registry facade and the metrics manager.
//
// Overview:
//   - Responsibility: Name-indexed registration of gauges, meters and timers, exported through Prometheus
//   - Key Types: Registry, Engine, Meter, Timer, Gauge, HealthRegistry, Manager
//   - Concurrency Model: All types are safe for concurrent use; request state is scoped by context
//   - Error Semantics: Registration never fails; engine problems are logged
//   - Performance Notes: Meter and timer lookups take a lock-free path once created
//
// Usage:
//
//	reg := metricx.NewRegistry(promRegistry, logger)
//	reg.Register("cp.main.active", metricx.GaugeFunc(func() any { return db.Stats().InUse }))
//
//	mgr := metricx.NewManager(reg, store, logger)
//	ctx = metricx.WithScope(ctx)
//	out, err := metricx.Wrap(ctx, mgr, loadOrder, func() string { return "orders.load" })
package metricx
