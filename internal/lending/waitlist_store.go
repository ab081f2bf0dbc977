package lending

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"LIBCAT-backend/internal/platform/db"
)

// WaitlistStore は copy_requests を扱う。position は copy ごとに 1..n の連番を保つ
type WaitlistStore struct {
	dialect db.Dialect
}

func NewWaitlistStore(d db.Dialect) *WaitlistStore { return &WaitlistStore{dialect: d} }

const requestSelect = `
	SELECT r.request_id, r.request_ulid, r.copy_id, c.book_id, r.user_id, r.position, r.status, r.requested_at
	FROM copy_requests r
	JOIN book_copies c ON c.id = r.copy_id`

func scanEntry(row rowScanner) (*WaitlistEntry, error) {
	var e WaitlistEntry
	if err := row.Scan(
		&e.RequestID, &e.RequestULID, &e.CopyID, &e.BookID, &e.UserID, &e.Position, &e.Status, &e.RequestedAt,
	); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *WaitlistStore) getBy(ctx context.Context, q db.DBTX, where string, arg any) (*WaitlistEntry, error) {
	e, err := scanEntry(q.QueryRowContext(ctx, requestSelect+` WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound("request not found")
		}
		return nil, fmt.Errorf("get request: %w", err)
	}
	return e, nil
}

func (s *WaitlistStore) Get(ctx context.Context, q db.DBTX, requestID int64) (*WaitlistEntry, error) {
	return s.getBy(ctx, q, `r.request_id = ?`, requestID)
}

func (s *WaitlistStore) GetByULID(ctx context.Context, q db.DBTX, requestULID string) (*WaitlistEntry, error) {
	return s.getBy(ctx, q, `r.request_ulid = ?`, requestULID)
}

func (s *WaitlistStore) CountWaiting(ctx context.Context, q db.DBTX, copyID int64) (int, error) {
	const query = `SELECT COUNT(*) FROM copy_requests WHERE copy_id = ? AND status = ?`
	var n int
	if err := q.QueryRowContext(ctx, query, copyID, StatusWaiting).Scan(&n); err != nil {
		return 0, fmt.Errorf("count requests: %w", err)
	}
	return n, nil
}

func (s *WaitlistStore) Exists(ctx context.Context, q db.DBTX, copyID, userID int64) (bool, error) {
	const query = `SELECT COUNT(*) FROM copy_requests WHERE copy_id = ? AND user_id = ?`
	var n int
	if err := q.QueryRowContext(ctx, query, copyID, userID).Scan(&n); err != nil {
		return false, fmt.Errorf("check request: %w", err)
	}
	return n > 0, nil
}

// Enqueue appends the user at the tail (position = count + 1).
// The caller must hold the copy's lock.
func (s *WaitlistStore) Enqueue(ctx context.Context, q db.DBTX, copyID, userID int64, requestULID string, now time.Time) (*WaitlistEntry, error) {
	n, err := s.CountWaiting(ctx, q, copyID)
	if err != nil {
		return nil, err
	}
	const query = `
	INSERT INTO copy_requests
	(request_ulid, copy_id, user_id, position, status, requested_at)
	VALUES
	(?, ?, ?, ?, ?, ?)`
	res, err := q.ExecContext(ctx, query, requestULID, copyID, userID, n+1, StatusWaiting, now.UTC())
	if err != nil {
		if db.IsDuplicate(err) {
			return nil, ErrConflict("user already has a request for this copy")
		}
		return nil, fmt.Errorf("insert request: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert request: %w", err)
	}
	return s.Get(ctx, q, id)
}

// Head returns the entry at position 1, or nil when nobody is waiting.
func (s *WaitlistStore) Head(ctx context.Context, q db.DBTX, copyID int64) (*WaitlistEntry, error) {
	query := requestSelect + ` WHERE r.copy_id = ? AND r.status = ? ORDER BY r.position ASC, r.request_id ASC LIMIT 1` + s.dialect.ForUpdate()
	e, err := scanEntry(q.QueryRowContext(ctx, query, copyID, StatusWaiting))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get queue head: %w", err)
	}
	return e, nil
}

// DequeueHead removes and returns the head entry and closes the gap behind it.
// Returns nil when the queue is empty.
func (s *WaitlistStore) DequeueHead(ctx context.Context, q db.DBTX, copyID int64) (*WaitlistEntry, error) {
	head, err := s.Head(ctx, q, copyID)
	if err != nil || head == nil {
		return nil, err
	}
	if _, err := s.Remove(ctx, q, head.RequestID); err != nil {
		return nil, err
	}
	if _, err := s.ShiftDown(ctx, q, copyID, head.Position); err != nil {
		return nil, err
	}
	return head, nil
}

func (s *WaitlistStore) Remove(ctx context.Context, q db.DBTX, requestID int64) (bool, error) {
	res, err := q.ExecContext(ctx, `DELETE FROM copy_requests WHERE request_id = ?`, requestID)
	if err != nil {
		return false, fmt.Errorf("delete request %d: %w", requestID, err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return aff > 0, nil
}

// ShiftDown decrements the position of every waiting entry behind `after`.
func (s *WaitlistStore) ShiftDown(ctx context.Context, q db.DBTX, copyID int64, after int) (int, error) {
	const query = `
	UPDATE copy_requests
	SET position = position - 1
	WHERE copy_id = ? AND status = ? AND position > ?`
	res, err := q.ExecContext(ctx, query, copyID, StatusWaiting, after)
	if err != nil {
		return 0, fmt.Errorf("shift requests: %w", err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(aff), nil
}

func (s *WaitlistStore) RemoveAllForCopy(ctx context.Context, q db.DBTX, copyID int64) (int, error) {
	res, err := q.ExecContext(ctx, `DELETE FROM copy_requests WHERE copy_id = ?`, copyID)
	if err != nil {
		return 0, fmt.Errorf("delete requests of copy %d: %w", copyID, err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(aff), nil
}

// ListByCopy returns the queue in position order.
func (s *WaitlistStore) ListByCopy(ctx context.Context, q db.DBTX, copyID int64) ([]WaitlistEntry, error) {
	return s.list(ctx, q, requestSelect+` WHERE r.copy_id = ? ORDER BY r.position ASC, r.request_id ASC`, copyID)
}

// ListByUser returns the user's entries, waiting ones first, then by position.
func (s *WaitlistStore) ListByUser(ctx context.Context, q db.DBTX, userID int64) ([]WaitlistEntry, error) {
	return s.list(ctx, q, requestSelect+`
	WHERE r.user_id = ?
	ORDER BY CASE WHEN r.status = 'waiting' THEN 0 ELSE 1 END, r.position ASC, r.requested_at ASC`, userID)
}

func (s *WaitlistStore) list(ctx context.Context, q db.DBTX, query string, args ...any) ([]WaitlistEntry, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	out := []WaitlistEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
