package db

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadConfig(t *testing.T) {
	p := writeConfig(t, `
mode: release
database:
  driver: mysql
  host: db
  user: u
  dbname: libcat
`)
	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 3306, cfg.DB.Port)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 15, cfg.Lending.LoanDays)
	assert.Equal(t, 20, cfg.Lending.ReturnWear)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	p := writeConfig(t, "mode: dev\ndatabase:\n  driver: mysql\n")
	t.Setenv("LIBCAT_DB_DRIVER", "sqlite3")
	t.Setenv("LIBCAT_DB_PATH", "/tmp/x.db")
	t.Setenv("LIBCAT_HTTP_ADDR", ":9090")

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	assert.Equal(t, SQLite, cfg.DB.Driver)
	assert.Equal(t, "/tmp/x.db", cfg.DB.Path)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad mode":   "mode: staging\n",
		"bad driver": "database:\n  driver: postgres\n",
		"bad yaml":   "mode: [dev\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func sqliteConfig(t *testing.T) *DatabaseConfig {
	t.Helper()
	return &DatabaseConfig{Driver: SQLite, Path: filepath.Join(t.TempDir(), "sub", "test.db")}
}

func TestRunInTx_RollbackAndConstraintErrors(t *testing.T) {
	ctx := context.Background()
	conn, err := Connect(*sqliteConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, Migrate(ctx, conn, SQLite, nil))

	insert := `INSERT INTO themes (name) VALUES (?)`
	boom := errors.New("boom")
	err = RunInTx(ctx, conn, nil, func(ctx context.Context, tx DBTX) error {
		if _, err := tx.ExecContext(ctx, insert, "SF"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM themes`).Scan(&n))
	assert.Zero(t, n)

	_, err = conn.Exec(insert, "SF")
	require.NoError(t, err)
	_, err = conn.Exec(insert, "SF")
	assert.True(t, IsDuplicate(err))
	assert.False(t, IsForeignKey(err))

	_, err = conn.Exec(`INSERT INTO book_authors (book_id, author_id) VALUES (99, 99)`)
	assert.True(t, IsForeignKey(err))
	assert.False(t, IsDuplicate(nil))
}

func TestDialect_ForUpdate(t *testing.T) {
	assert.Equal(t, " FOR UPDATE", MySQL.ForUpdate())
	assert.Empty(t, SQLite.ForUpdate())
}
