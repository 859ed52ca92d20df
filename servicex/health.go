package servicex

import (
	"context"
	"database/sql"
	"time"

	"github.com/sony/gobreaker"

	"go.eggybyte.com/o11y/core/log"
	"go.eggybyte.com/o11y/metricx"
)

// Data source probes trip after this many consecutive failed pings and stay
// open for breakerTimeout before pinging again.
const (
	breakerFailures = 3
	breakerTimeout  = 30 * time.Second
)

// pingCheck probes db through a circuit breaker so an unreachable database is
// not pinged on every health request.
func pingCheck(name string, db *sql.DB, logger log.Logger) metricx.HealthCheck {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("health probe breaker changed state",
				log.Str("check", name),
				log.Str("from", from.String()),
				log.Str("to", to.String()),
			)
		},
	})
	return metricx.HealthCheckFunc(func(ctx context.Context) (metricx.HealthResult, error) {
		if _, err := cb.Execute(func() (interface{}, error) {
			return nil, db.PingContext(ctx)
		}); err != nil {
			return metricx.UnhealthyResult(err), nil
		}
		return metricx.HealthyResult("ping ok"), nil
	})
}
