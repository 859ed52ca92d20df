package rootspanx

import (
	"sort"
	"time"

	"go.eggybyte.com/o11y/core/log"
	"go.eggybyte.com/o11y/core/utils"
	"go.eggybyte.com/o11y/metricx"
)

// DataSourcePrefix is prepended to a pool name to form its lookup key.
const DataSourcePrefix = "jdbc/"

// PoolMetrics exposes connection pool statistics.
type PoolMetrics interface {
	AcquireCount() int64
	CreationCount() int64
	LeakDetectionCount() int64
	DestroyCount() int64
	FlushCount() int64
	InvalidCount() int64
	ReapCount() int64
	ActiveCount() int64
	AvailableCount() int64
	MaxUsedCount() int64
	AwaitingCount() int64
	BlockingTimeAverage() time.Duration
	BlockingTimeMax() time.Duration
	BlockingTimeTotal() time.Duration
	CreationTimeAverage() time.Duration
	CreationTimeMax() time.Duration
	CreationTimeTotal() time.Duration
}

// PoolMetricsSource is implemented by resources that can report pool statistics.
type PoolMetricsSource interface {
	PoolMetrics() PoolMetrics
}

// PoolConfig names the pools to report, comma separated.
type PoolConfig interface {
	CPNames() string
}

// DBConnectionFields reports connection pool statistics keyed by pool name.
// The pool handles are resolved once at construction and read on every Fields call.
type DBConnectionFields struct {
	logger log.Logger
	pools  map[string]PoolMetrics
	keys   []string
}

// NewDBConnectionFields resolves every configured pool through lookup.
// Pools that cannot be resolved, or that do not report statistics, are
// logged and skipped; construction never fails.
func NewDBConnectionFields(cfg PoolConfig, lookup Lookup, logger log.Logger) *DBConnectionFields {
	if logger == nil {
		logger = log.Nop()
	}
	f := &DBConnectionFields{logger: logger, pools: make(map[string]PoolMetrics)}

	var names []string
	if cfg != nil {
		names = utils.Unique(utils.SplitList(cfg.CPNames()))
	}
	if len(names) == 0 {
		logger.Info("no connection pool names defined")
		return f
	}
	if lookup == nil {
		logger.Warn("no resource lookup configured, connection pools ignored", log.Int("pools", len(names)))
		return f
	}

	for _, name := range names {
		key := DataSourcePrefix + name
		resource, err := lookup.Lookup(key)
		if err != nil {
			logger.Error(err, "failed to look up connection pool", log.Str("name", key))
			continue
		}
		source, ok := resource.(PoolMetricsSource)
		if !ok {
			logger.Warn("ignoring resource without pool metrics", log.Str("name", key))
			continue
		}
		pm, ok := fetch(logger, "failed to read pool metrics", key, source.PoolMetrics)
		if !ok {
			continue
		}
		if pm == nil {
			logger.Warn("ignoring pool with nil metrics", log.Str("name", key))
			continue
		}
		f.pools["cp."+name] = pm
		f.keys = append(f.keys, "cp."+name)
	}
	sort.Strings(f.keys)
	logger.Debug("connection pool fields ready", log.Int("pools", len(f.keys)))
	return f
}

// Pools returns the pool prefixes being reported, such as "cp.main".
func (f *DBConnectionFields) Pools() []string {
	out := make([]string, len(f.keys))
	copy(out, f.keys)
	return out
}

// Fields returns the 17 statistics of every resolved pool as <prefix>.<statistic>.
// Durations are reported in milliseconds.
func (f *DBConnectionFields) Fields() map[string]any {
	out := make(map[string]any, len(f.keys)*17)
	for _, prefix := range f.keys {
		m := f.pools[prefix]
		for _, d := range poolData(m) {
			key := metricx.Name(prefix, d.name)
			if v, ok := read(f.logger, key, d.read); ok {
				out[key] = v
			}
		}
	}
	return out
}

type poolDatum struct {
	name string
	read func() any
}

func ms(fn func() time.Duration) func() any {
	return func() any { return fn().Milliseconds() }
}

func count(fn func() int64) func() any {
	return func() any { return fn() }
}

func poolData(m PoolMetrics) []poolDatum {
	return []poolDatum{
		{"acquireCount", count(m.AcquireCount)},
		{"creationCount", count(m.CreationCount)},
		{"leakDetectionCount", count(m.LeakDetectionCount)},
		{"destroyCount", count(m.DestroyCount)},
		{"flushCount", count(m.FlushCount)},
		{"invalidCount", count(m.InvalidCount)},
		{"reapCount", count(m.ReapCount)},
		{"activeCount", count(m.ActiveCount)},
		{"availableCount", count(m.AvailableCount)},
		{"maxUsedCount", count(m.MaxUsedCount)},
		{"awaitingCount", count(m.AwaitingCount)},
		{"blockingTimeAverage", ms(m.BlockingTimeAverage)},
		{"blockingTimeMax", ms(m.BlockingTimeMax)},
		{"blockingTimeTotal", ms(m.BlockingTimeTotal)},
		{"creationTimeAverage", ms(m.CreationTimeAverage)},
		{"creationTimeMax", ms(m.CreationTimeMax)},
		{"creationTimeTotal", ms(m.CreationTimeTotal)},
	}
}
