// Package dbtest opens throwaway SQLite databases with every migration applied.
package dbtest

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"LIBCAT-backend/internal/platform/db"
)

func Open(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "libcat_test.db")
	conn, err := db.Connect(db.DatabaseConfig{Driver: db.SQLite, Path: path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, db.Migrate(context.Background(), conn, db.SQLite, nil))
	return conn
}

// InsertUser creates a minimal user row and returns its id.
func InsertUser(t *testing.T, conn *sql.DB, name string) int64 {
	t.Helper()
	res, err := conn.Exec(`
	INSERT INTO users (fname, lname, age, state, username, email, password_hash, address, phone, role, is_subscribed, created_at)
	VALUES (?, 'Test', 30, 'pro', ?, ?, 'x', 'nowhere', '0000', 'user', 0, ?)`,
		name, name, fmt.Sprintf("%s@example.com", name), time.Now().UTC())
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

// InsertBook creates a book without copies and returns its id.
func InsertBook(t *testing.T, conn *sql.DB, title string) int64 {
	t.Helper()
	res, err := conn.Exec(`INSERT INTO books (catalog_code, title, created_at) VALUES (?, ?, ?)`,
		"T-"+title, title, time.Now().UTC())
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func InsertPublisher(t *testing.T, conn *sql.DB, name string) int64 {
	t.Helper()
	res, err := conn.Exec(`INSERT INTO publishers (name) VALUES (?)`, name)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}
