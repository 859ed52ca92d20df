package main

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"go.eggybyte.com/o11y/core/log"
	"go.eggybyte.com/o11y/rootspanx"
	"go.eggybyte.com/o11y/servicex"
)

// slowQuery is the threshold above which queries are logged.
const slowQuery = 100 * time.Millisecond

type databaseOptions struct {
	Name   string
	Driver string
	DSN    string
}

func dialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "mysql":
		return mysql.Open(dsn), nil
	case "postgres":
		return postgres.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}
}

// openDataSources opens the demo database, if one is configured, and returns
// it as a data source whose pool statistics are reported on root spans.
func openDataSources(opts databaseOptions, logger log.Logger) (servicex.DataSources, func(), error) {
	sources := servicex.DataSources{}
	if opts.DSN == "" {
		return sources, func() {}, nil
	}

	d, err := dialector(opts.Driver, opts.DSN)
	if err != nil {
		return nil, nil, err
	}
	db, err := gorm.Open(d, &gorm.Config{Logger: &gormLogAdapter{logger: logger}})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	pool, err := rootspanx.GORMPool(db)
	if err != nil {
		return nil, nil, err
	}
	pool.DB().SetMaxOpenConns(20)
	pool.DB().SetConnMaxLifetime(time.Hour)

	sources[opts.Name] = pool.DB()
	logger.Info("database opened", log.Str("name", opts.Name), log.Str("driver", opts.Driver))
	return sources, func() { _ = pool.DB().Close() }, nil
}

// gormLogAdapter routes GORM logs to a log.Logger.
type gormLogAdapter struct {
	logger log.Logger
}

func (l *gormLogAdapter) LogMode(gormlogger.LogLevel) gormlogger.Interface { return l }

func (l *gormLogAdapter) Info(_ context.Context, msg string, data ...any) {
	l.logger.Info(fmt.Sprintf(msg, data...))
}

func (l *gormLogAdapter) Warn(_ context.Context, msg string, data ...any) {
	l.logger.Warn(fmt.Sprintf(msg, data...))
}

func (l *gormLogAdapter) Error(_ context.Context, msg string, data ...any) {
	l.logger.Error(nil, fmt.Sprintf(msg, data...))
}

func (l *gormLogAdapter) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	switch {
	case err != nil && err != gorm.ErrRecordNotFound:
		sql, _ := fc()
		l.logger.Error(err, "database query failed", log.Str("sql", sql), log.Dur("duration", elapsed))
	case elapsed > slowQuery:
		sql, rows := fc()
		l.logger.Warn("slow database query", log.Str("sql", sql), log.Int64("rows", rows), log.Dur("duration", elapsed))
	}
}
