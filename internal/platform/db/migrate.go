package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/mysql/*.sql migrations/sqlite3/*.sql
var migrations embed.FS

func gooseDialect(d Dialect) (goose.Dialect, error) {
	switch d {
	case MySQL:
		return goose.DialectMySQL, nil
	case SQLite:
		return goose.DialectSQLite3, nil
	}
	return "", fmt.Errorf("no migrations for driver %q", d)
}

// Migrate applies every pending migration for the given dialect.
func Migrate(ctx context.Context, conn *sql.DB, d Dialect, logger *zap.Logger) error {
	dialect, err := gooseDialect(d)
	if err != nil {
		return err
	}
	sub, err := fs.Sub(migrations, "migrations/"+string(d))
	if err != nil {
		return err
	}

	provider, err := goose.NewProvider(dialect, conn, sub)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	if logger != nil {
		for _, r := range results {
			logger.Info("migration applied",
				zap.Int64("version", r.Source.Version),
				zap.Duration("took", r.Duration))
		}
	}
	return nil
}
