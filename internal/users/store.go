package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"LIBCAT-backend/internal/platform/db"
)

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

const userColumns = `user_id, fname, lname, age, state, username, email, password_hash, address, phone, role, is_subscribed, created_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	if err := row.Scan(
		&u.UserID, &u.FirstName, &u.LastName, &u.Age, &u.State, &u.Username, &u.Email,
		&u.PasswordHash, &u.Address, &u.Phone, &u.Role, &u.IsSubscribed, &u.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByID は見つからなければ nil, nil を返す
func (s *Store) GetByID(ctx context.Context, id int64) (*User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = ? LIMIT 1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return u, nil
}

func (s *Store) Exists(ctx context.Context, id int64) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE user_id = ?`, id).Scan(&n); err != nil {
		return false, fmt.Errorf("check user %d: %w", id, err)
	}
	return n > 0, nil
}

func (s *Store) Create(ctx context.Context, u *User) error {
	const q = `
	INSERT INTO users
	(fname, lname, age, state, username, email, password_hash, address, phone, role, is_subscribed, created_at)
	VALUES
	(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, q,
		u.FirstName, u.LastName, u.Age, u.State, u.Username, u.Email, u.PasswordHash,
		u.Address, u.Phone, u.Role, u.IsSubscribed, u.CreatedAt.UTC(),
	)
	if err != nil {
		if db.IsDuplicate(err) {
			return ErrConflict("email already registered")
		}
		return fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	u.UserID = id
	return nil
}

func (s *Store) List(ctx context.Context, p Page) ([]User, int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	order := "ASC"
	if strings.ToLower(p.Order) == "desc" {
		order = "DESC"
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY user_id `+order+` LIMIT ? OFFSET ?`, p.Limit, p.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	out := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *Store) Delete(ctx context.Context, id int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE user_id = ?`, id)
	if err != nil {
		if db.IsForeignKey(err) {
			// 削除判定の後に貸出が発生した
			return 0, ErrConflict("user still has borrowed copies or requests")
		}
		return 0, fmt.Errorf("delete user %d: %w", id, err)
	}
	return res.RowsAffected()
}
