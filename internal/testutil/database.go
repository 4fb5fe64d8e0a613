// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/ordertrack/internal/config"
	"github.com/Additional-Code/ordertrack/internal/database"
	"github.com/Additional-Code/ordertrack/internal/migration"
)

// Config returns a configuration pointing at a fresh SQLite file with caching and messaging disabled.
func Config(t *testing.T) config.Config {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", filepath.Join(t.TempDir(), "ordertrack.db"))
	return config.Config{
		HTTP:  config.HTTP{Host: "127.0.0.1", Port: 8080},
		GRPC:  config.GRPC{Host: "127.0.0.1", Port: 9090},
		Cache: config.Cache{Enabled: false, Driver: "noop"},
		Messaging: config.Messaging{
			Driver:  "noop",
			Enabled: false,
			Kafka:   config.Kafka{Topic: "orders.events"},
		},
		Database: config.Database{
			Driver:    "sqlite",
			WriterDSN: dsn,
			ReaderDSN: dsn,
		},
		Orders: config.Orders{PageSize: 2},
		Observability: config.Observability{
			ServiceName:     "ordertrack-test",
			Environment:     "test",
			LogLevel:        "debug",
			LogEncoding:     "console",
			TraceExporter:   "none",
			MetricsExporter: "none",
			PrometheusPath:  "/metrics",
		},
	}
}

// MigratedDB opens the configured database and applies all migrations.
func MigratedDB(t *testing.T, cfg config.Config) *database.Connections {
	t.Helper()

	conns, err := database.Open(cfg.Database)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conns.Close() })

	mig, err := migration.New(cfg, conns, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, mig.Up(context.Background()))

	return conns
}
