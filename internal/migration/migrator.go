package migration

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/ordertrack/internal/config"
	"github.com/Additional-Code/ordertrack/internal/database"
)

//go:embed sql
var migrations embed.FS

// Module provides the migrator to Fx.
var Module = fx.Provide(New)

// Migrator applies the embedded order schema scripts for the configured driver.
type Migrator struct {
	provider *goose.Provider
	logger   *zap.Logger
}

// New builds a goose provider over the writer pool and the scripts under sql/<dialect>.
func New(cfg config.Config, conns *database.Connections, logger *zap.Logger) (*Migrator, error) {
	dialect, err := gooseDialect(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}
	scripts, err := fs.Sub(migrations, "sql/"+string(dialect))
	if err != nil {
		return nil, err
	}
	provider, err := goose.NewProvider(dialect, conns.Writer.DB, scripts, goose.WithDisableGlobalRegistry(true))
	if err != nil {
		return nil, fmt.Errorf("load %s migrations: %w", dialect, err)
	}
	return &Migrator{provider: provider, logger: logger.Named("migration")}, nil
}

// Up applies every pending migration.
func (m *Migrator) Up(ctx context.Context) error {
	results, err := m.provider.Up(ctx)
	if err != nil {
		return err
	}
	m.report("up", results)
	return nil
}

// Down rolls back steps migrations, at least one, or all of them. Rolling back an empty schema is
// not an error.
func (m *Migrator) Down(ctx context.Context, steps int, all bool) error {
	if all {
		results, err := m.provider.DownTo(ctx, 0)
		if err != nil {
			return err
		}
		m.report("down", results)
		return nil
	}

	var results []*goose.MigrationResult
	for range max(steps, 1) {
		result, err := m.provider.Down(ctx)
		if errors.Is(err, goose.ErrNoNextVersion) {
			break
		}
		if err != nil {
			return err
		}
		results = append(results, result)
	}
	m.report("down", results)
	return nil
}

// Version reports the highest applied schema version, zero for an empty schema.
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	return m.provider.GetDBVersion(ctx)
}

func (m *Migrator) report(direction string, results []*goose.MigrationResult) {
	if len(results) == 0 {
		m.logger.Info("schema already current", zap.String("direction", direction))
		return
	}
	for _, r := range results {
		m.logger.Info("migration applied",
			zap.String("direction", direction),
			zap.Int64("version", r.Source.Version),
			zap.Duration("duration", r.Duration),
		)
	}
}

func gooseDialect(driver string) (goose.Dialect, error) {
	switch driver {
	case "postgres":
		return goose.DialectPostgres, nil
	case "mysql":
		return goose.DialectMySQL, nil
	case "sqlite":
		return goose.DialectSQLite3, nil
	}
	return "", fmt.Errorf("unsupported goose dialect for driver %s", driver)
}
