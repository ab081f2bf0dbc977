package lending

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"LIBCAT-backend/internal/platform/db"
)

// CopyStore は book_copies への読み書き。q には *sql.DB も *sql.Tx も渡せる
type CopyStore struct {
	dialect db.Dialect
}

func NewCopyStore(d db.Dialect) *CopyStore { return &CopyStore{dialect: d} }

const copyColumns = `id, book_id, location, publisher_id, is_available, state, borrower_id, borrowed_at, due_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCopy(row rowScanner) (*Copy, error) {
	var c Copy
	if err := row.Scan(
		&c.CopyID, &c.BookID, &c.Location, &c.PublisherID, &c.Available, &c.Condition,
		&c.HolderID, &c.BorrowedAt, &c.DueAt, &c.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *CopyStore) get(ctx context.Context, q db.DBTX, id int64, lock bool) (*Copy, error) {
	query := `SELECT ` + copyColumns + ` FROM book_copies WHERE id = ?`
	if lock {
		query += s.dialect.ForUpdate()
	}
	c, err := scanCopy(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound(fmt.Sprintf("copy %d not found", id))
		}
		return nil, fmt.Errorf("get copy %d: %w", id, err)
	}
	return c, nil
}

func (s *CopyStore) Get(ctx context.Context, q db.DBTX, id int64) (*Copy, error) {
	return s.get(ctx, q, id, false)
}

// GetForUpdate は行ロック付きで読む（Tx 内専用）
func (s *CopyStore) GetForUpdate(ctx context.Context, q db.DBTX, id int64) (*Copy, error) {
	return s.get(ctx, q, id, true)
}

// Create inserts an available copy in pristine condition.
func (s *CopyStore) Create(ctx context.Context, q db.DBTX, bookID int64, location string, publisherID sql.NullInt64, now time.Time) (*Copy, error) {
	const query = `
	INSERT INTO book_copies
	(book_id, location, publisher_id, is_available, state, created_at)
	VALUES
	(?, ?, ?, 1, ?, ?)`
	res, err := q.ExecContext(ctx, query, bookID, location, publisherID, MaxCondition, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("insert copy: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert copy: %w", err)
	}
	return s.Get(ctx, q, id)
}

// Update applies the non-nil fields of u and returns the stored row.
func (s *CopyStore) Update(ctx context.Context, q db.DBTX, id int64, u CopyUpdate) (*Copy, error) {
	if u.empty() {
		return s.Get(ctx, q, id)
	}
	sets := make([]string, 0, 7)
	args := make([]any, 0, 8)
	if u.Location != nil {
		sets = append(sets, "location = ?")
		args = append(args, *u.Location)
	}
	if u.PublisherID != nil {
		sets = append(sets, "publisher_id = ?")
		args = append(args, *u.PublisherID)
	}
	if u.Available != nil {
		sets = append(sets, "is_available = ?")
		args = append(args, *u.Available)
	}
	if u.HolderID != nil {
		sets = append(sets, "borrower_id = ?")
		args = append(args, *u.HolderID)
	}
	if u.BorrowedAt != nil {
		sets = append(sets, "borrowed_at = ?")
		args = append(args, utcNullTime(*u.BorrowedAt))
	}
	if u.DueAt != nil {
		sets = append(sets, "due_at = ?")
		args = append(args, utcNullTime(*u.DueAt))
	}
	if u.Condition != nil {
		if *u.Condition < 0 || *u.Condition > MaxCondition {
			return nil, ErrInvalid(fmt.Sprintf("condition must be between 0 and %d", MaxCondition))
		}
		sets = append(sets, "state = ?")
		args = append(args, *u.Condition)
	}
	args = append(args, id)

	query := `UPDATE book_copies SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("update copy %d: %w", id, err)
	}
	// MySQL は値が変わらないと RowsAffected=0 を返すので、存在確認は再読込で行う
	return s.Get(ctx, q, id)
}

// Delete removes the copy. Waitlist rows go with it via ON DELETE CASCADE.
func (s *CopyStore) Delete(ctx context.Context, q db.DBTX, id int64) (bool, error) {
	res, err := q.ExecContext(ctx, `DELETE FROM book_copies WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete copy %d: %w", id, err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return aff > 0, nil
}

func (s *CopyStore) ListByBook(ctx context.Context, q db.DBTX, bookID int64) ([]Copy, error) {
	return s.list(ctx, q, `SELECT `+copyColumns+` FROM book_copies WHERE book_id = ? ORDER BY id`, bookID)
}

// ListByHolder returns the copies currently borrowed by the user.
func (s *CopyStore) ListByHolder(ctx context.Context, q db.DBTX, userID int64) ([]Copy, error) {
	return s.list(ctx, q, `SELECT `+copyColumns+` FROM book_copies WHERE borrower_id = ? ORDER BY due_at, id`, userID)
}

func (s *CopyStore) list(ctx context.Context, q db.DBTX, query string, args ...any) ([]Copy, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list copies: %w", err)
	}
	defer rows.Close()

	out := []Copy{}
	for rows.Next() {
		c, err := scanCopy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan copy: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func utcNullTime(t sql.NullTime) sql.NullTime {
	if t.Valid {
		t.Time = t.Time.UTC()
	}
	return t
}
