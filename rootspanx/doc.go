// Package rootspanx provides the fields attached to root spans.
//
// Overview:
//   - Responsibility: Snapshot connection pool and runtime statistics as span fields
//   - Key Types: Provider, DBConnectionFields, RuntimeFields, SQLPool, Directory, GoRuntime
//   - Concurrency Model: Providers are safe for concurrent use once constructed
//   - Error Semantics: Fields never fails; a datum that cannot be read is logged and omitted
//   - Performance Notes: Memory statistics are read once per snapshot
//
// Usage:
//
//	dir := rootspanx.NewDirectory()
//	_ = dir.Bind(rootspanx.DataSourcePrefix+"main", rootspanx.NewSQLPool(db))
//	pools := rootspanx.NewDBConnectionFields(store, dir, logger)
//	fields := rootspanx.Collect(logger, pools, rootspanx.NewRuntimeFields(nil, logger))
package rootspanx
