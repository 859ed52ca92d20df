package rootspanx

import (
	"database/sql"
	"sync/atomic"
	"time"

	"gorm.io/gorm"

	"go.eggybyte.com/o11y/core/errors"
)

// SQLPool reports the statistics of a database/sql connection pool.
// database/sql does not track leak detection, invalidation, awaiting callers
// or connection creation times; those statistics report zero.
type SQLPool struct {
	db      *sql.DB
	maxUsed atomic.Int64
}

var (
	_ PoolMetrics       = (*SQLPool)(nil)
	_ PoolMetricsSource = (*SQLPool)(nil)
)

// NewSQLPool wraps db.
func NewSQLPool(db *sql.DB) *SQLPool {
	return &SQLPool{db: db}
}

// GORMPool wraps the connection pool underneath a GORM handle.
func GORMPool(db *gorm.DB) (*SQLPool, error) {
	if db == nil {
		return nil, errors.New(errors.CodeInvalidArgument, "gorm handle is nil")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(errors.CodeFailedPrecondition, "rootspanx.GORMPool", err)
	}
	return NewSQLPool(sqlDB), nil
}

// DB returns the wrapped pool.
func (p *SQLPool) DB() *sql.DB { return p.db }

// PoolMetrics returns p.
func (p *SQLPool) PoolMetrics() PoolMetrics { return p }

// stats reads the pool statistics and advances the in-use high-water mark.
func (p *SQLPool) stats() sql.DBStats {
	s := p.db.Stats()
	inUse := int64(s.InUse)
	for {
		cur := p.maxUsed.Load()
		if inUse <= cur || p.maxUsed.CompareAndSwap(cur, inUse) {
			break
		}
	}
	return s
}

func closed(s sql.DBStats) int64 {
	return s.MaxIdleClosed + s.MaxIdleTimeClosed + s.MaxLifetimeClosed
}

// AcquireCount returns the number of connection acquisitions that had to wait.
func (p *SQLPool) AcquireCount() int64 { return p.stats().WaitCount }

// CreationCount returns open connections plus those already closed by the pool.
func (p *SQLPool) CreationCount() int64 {
	s := p.stats()
	return int64(s.OpenConnections) + closed(s)
}

// LeakDetectionCount is not tracked by database/sql.
func (p *SQLPool) LeakDetectionCount() int64 { return 0 }

// DestroyCount returns connections closed by the pool.
func (p *SQLPool) DestroyCount() int64 { return closed(p.stats()) }

// FlushCount returns connections closed because the idle pool was full.
func (p *SQLPool) FlushCount() int64 { return p.stats().MaxIdleClosed }

// InvalidCount is not tracked by database/sql.
func (p *SQLPool) InvalidCount() int64 { return 0 }

// ReapCount returns connections closed for idle time or lifetime.
func (p *SQLPool) ReapCount() int64 {
	s := p.stats()
	return s.MaxIdleTimeClosed + s.MaxLifetimeClosed
}

// ActiveCount returns connections in use.
func (p *SQLPool) ActiveCount() int64 { return int64(p.stats().InUse) }

// AvailableCount returns idle connections.
func (p *SQLPool) AvailableCount() int64 { return int64(p.stats().Idle) }

// MaxUsedCount returns the highest in-use count observed.
func (p *SQLPool) MaxUsedCount() int64 {
	p.stats()
	return p.maxUsed.Load()
}

// AwaitingCount is not tracked by database/sql.
func (p *SQLPool) AwaitingCount() int64 { return 0 }

// BlockingTimeAverage returns the mean wait for a connection.
func (p *SQLPool) BlockingTimeAverage() time.Duration {
	s := p.stats()
	if s.WaitCount == 0 {
		return 0
	}
	return s.WaitDuration / time.Duration(s.WaitCount)
}

// BlockingTimeMax is not tracked by database/sql.
func (p *SQLPool) BlockingTimeMax() time.Duration { return 0 }

// BlockingTimeTotal returns the total time spent waiting for connections.
func (p *SQLPool) BlockingTimeTotal() time.Duration { return p.stats().WaitDuration }

// CreationTimeAverage is not tracked by database/sql.
func (p *SQLPool) CreationTimeAverage() time.Duration { return 0 }

// CreationTimeMax is not tracked by database/sql.
func (p *SQLPool) CreationTimeMax() time.Duration { return 0 }

// CreationTimeTotal is not tracked by database/sql.
func (p *SQLPool) CreationTimeTotal() time.Duration { return 0 }
