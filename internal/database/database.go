package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/schema"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/ordertrack/internal/config"
)

const pingTimeout = 5 * time.Second

type driver struct {
	dialect func() schema.Dialect
	open    func(dsn string) (*sql.DB, error)
}

var drivers = map[string]driver{
	"postgres": {
		dialect: func() schema.Dialect { return pgdialect.New() },
		open: func(dsn string) (*sql.DB, error) {
			return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn))), nil
		},
	},
	"mysql": {
		dialect: func() schema.Dialect { return mysqldialect.New() },
		open:    func(dsn string) (*sql.DB, error) { return sql.Open("mysql", dsn) },
	},
	"sqlite": {
		dialect: func() schema.Dialect { return sqlitedialect.New() },
		open:    func(dsn string) (*sql.DB, error) { return sql.Open("sqlite3", dsn) },
	},
}

// Connections holds the order store pools. Reader is the same pool as Writer unless a separate
// replica DSN is configured.
type Connections struct {
	Writer *bun.DB
	Reader *bun.DB
}

// Module registers the database connections with Fx.
var Module = fx.Provide(New)

// New opens the pools, logs slow or failed queries, and pings both pools when the app starts.
func New(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*Connections, error) {
	conns, err := Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	conns.each(func(_ string, db *bun.DB) {
		db.AddQueryHook(&queryLogger{logger: logger.Named("sql"), slow: cfg.Database.SlowQueryThreshold})
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := conns.Ping(ctx); err != nil {
				return err
			}
			logger.Info("order store connected",
				zap.String("driver", cfg.Database.Driver),
				zap.Bool("replica", conns.Reader != conns.Writer),
			)
			return nil
		},
		OnStop: func(context.Context) error { return conns.Close() },
	})
	return conns, nil
}

// Open builds the writer and reader pools without binding them to a lifecycle.
func Open(cfg config.Database) (*Connections, error) {
	d, ok := drivers[cfg.Driver]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	writer, err := openPool(d, cfg, cfg.WriterDSN)
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}
	conns := &Connections{Writer: writer, Reader: writer}

	if cfg.ReaderDSN != "" && cfg.ReaderDSN != cfg.WriterDSN {
		if conns.Reader, err = openPool(d, cfg, cfg.ReaderDSN); err != nil {
			_ = writer.Close()
			return nil, fmt.Errorf("open reader: %w", err)
		}
	}
	return conns, nil
}

// Ping checks that every distinct pool answers within a few seconds.
func (c *Connections) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	var errs []error
	c.each(func(role string, db *bun.DB) {
		if err := db.PingContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("ping %s: %w", role, err))
		}
	})
	return errors.Join(errs...)
}

// Close releases both pools.
func (c *Connections) Close() error {
	var errs []error
	c.each(func(role string, db *bun.DB) {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", role, err))
		}
	})
	return errors.Join(errs...)
}

func (c *Connections) each(fn func(role string, db *bun.DB)) {
	fn("writer", c.Writer)
	if c.Reader != c.Writer {
		fn("reader", c.Reader)
	}
}

func openPool(d driver, cfg config.Database, dsn string) (*bun.DB, error) {
	if dsn == "" {
		return nil, errors.New("empty DSN")
	}
	sqldb, err := d.open(dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxConnLifetime > 0 {
		sqldb.SetConnMaxLifetime(cfg.MaxConnLifetime)
	}
	return bun.NewDB(sqldb, d.dialect()), nil
}

// queryLogger reports failed queries and queries slower than slow. A zero threshold only reports
// failures.
type queryLogger struct {
	logger *zap.Logger
	slow   time.Duration
}

func (q *queryLogger) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (q *queryLogger) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	elapsed := time.Since(event.StartTime)
	switch {
	case event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows):
		q.logger.Warn("query failed", zap.String("operation", event.Operation()), zap.Duration("elapsed", elapsed), zap.Error(event.Err))
	case q.slow > 0 && elapsed >= q.slow:
		q.logger.Warn("slow query", zap.String("operation", event.Operation()), zap.Duration("elapsed", elapsed), zap.String("query", event.Query))
	}
}
