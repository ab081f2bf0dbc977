package disposals

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"LIBCAT-backend/internal/platform/db"
)

type Store struct{}

func NewStore() *Store { return &Store{} }

const disposalColumns = `disposal_id, disposal_ulid, copy_id, book_id, reason, last_condition, displaced_user_id, dropped_requests, disposed_at`

func scanDisposal(row interface{ Scan(...any) error }) (*Disposal, error) {
	var m Disposal
	if err := row.Scan(
		&m.DisposalID, &m.DisposalULID, &m.CopyID, &m.BookID, &m.Reason,
		&m.LastCondition, &m.DisplacedUserID, &m.DroppedRequests, &m.DisposedAt,
	); err != nil {
		return nil, err
	}
	return &m, nil
}

// Insert は呼び出し側の Tx 上で書き込む
func (s *Store) Insert(ctx context.Context, q db.DBTX, m *Disposal) error {
	const query = `
	INSERT INTO copy_disposals
	(disposal_ulid, copy_id, book_id, reason, last_condition, displaced_user_id, dropped_requests, disposed_at)
	VALUES
	(?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := q.ExecContext(ctx, query,
		m.DisposalULID, m.CopyID, m.BookID, m.Reason, m.LastCondition,
		m.DisplacedUserID, m.DroppedRequests, m.DisposedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert disposal: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert disposal: %w", err)
	}
	m.DisposalID = id
	return nil
}

func (s *Store) get(ctx context.Context, q db.DBTX, where string, arg any) (*Disposal, error) {
	m, err := scanDisposal(q.QueryRowContext(ctx, `SELECT `+disposalColumns+` FROM copy_disposals WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound("disposal not found")
		}
		return nil, err
	}
	return m, nil
}

func (s *Store) GetByID(ctx context.Context, q db.DBTX, id int64) (*Disposal, error) {
	return s.get(ctx, q, `disposal_id = ?`, id)
}

func (s *Store) GetByULID(ctx context.Context, q db.DBTX, ul string) (*Disposal, error) {
	return s.get(ctx, q, `disposal_ulid = ?`, ul)
}

func (s *Store) List(ctx context.Context, q db.DBTX, f DisposalFilter, p Page) ([]Disposal, int64, error) {
	where := strings.Builder{}
	where.WriteString(` WHERE 1=1`)
	args := []any{}
	if f.BookID != nil {
		where.WriteString(` AND book_id = ?`)
		args = append(args, *f.BookID)
	}
	if f.CopyID != nil {
		where.WriteString(` AND copy_id = ?`)
		args = append(args, *f.CopyID)
	}
	if f.Reason != nil {
		where.WriteString(` AND reason = ?`)
		args = append(args, *f.Reason)
	}
	if f.From != nil {
		where.WriteString(` AND disposed_at >= ?`)
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		where.WriteString(` AND disposed_at < ?`)
		args = append(args, f.To.UTC())
	}

	var total int64
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM copy_disposals`+where.String(), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order := "DESC"
	if strings.ToLower(p.Order) == "asc" {
		order = "ASC"
	}
	query := `SELECT ` + disposalColumns + ` FROM copy_disposals` + where.String() +
		fmt.Sprintf(` ORDER BY disposed_at %s, disposal_id %s LIMIT ? OFFSET ?`, order, order)
	rows, err := q.QueryContext(ctx, query, append(args, p.Limit, p.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []Disposal{}
	for rows.Next() {
		m, err := scanDisposal(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
