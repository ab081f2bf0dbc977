package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"LIBCAT-backend/internal/lending"
)

// ---- Error model ----
type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeInternal        Code = "INTERNAL"
)

type APIError struct {
	Code    Code
	Message string
}

func (e *APIError) Error() string       { return fmt.Sprintf("%s: %s", e.Code, e.Message) }
func ErrInvalid(msg string) *APIError  { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func ErrNotFound(msg string) *APIError { return &APIError{Code: CodeNotFound, Message: msg} }
func ErrConflict(msg string) *APIError { return &APIError{Code: CodeConflict, Message: msg} }
func ErrInternal(msg string) *APIError { return &APIError{Code: CodeInternal, Message: msg} }

func ToHTTPStatus(err error) int {
	var api *APIError
	if errors.As(err, &api) {
		switch api.Code {
		case CodeInvalidArgument:
			return http.StatusBadRequest
		case CodeNotFound:
			return http.StatusNotFound
		case CodeConflict:
			return http.StatusConflict
		}
	}
	return http.StatusInternalServerError
}

// Releaser detaches a user from lending state before the account is removed.
type Releaser interface {
	ReleaseUser(ctx context.Context, userID int64) (int, error)
}

type Clock interface{ Now() time.Time }
type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// ---- Service ----

type Service struct {
	store    *Store
	releaser Releaser
	clock    Clock
	logger   *zap.Logger
}

func NewService(conn *sql.DB, releaser Releaser, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: NewStore(conn), releaser: releaser, clock: realClock{}, logger: logger}
}

func (s *Service) Register(ctx context.Context, in RegisterRequest) (UserResponse, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Username = strings.TrimSpace(in.Username)
	if err := in.Validate(); err != nil {
		return UserResponse{}, ErrInvalid(err.Error())
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return UserResponse{}, s.internal("hash password", err)
	}
	role := RoleUser
	if in.Role != nil {
		role = *in.Role
	}
	u := &User{
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Age:          in.Age,
		State:        in.State,
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hash),
		Address:      in.Address,
		Phone:        in.Phone,
		Role:         role,
		IsSubscribed: in.IsSubscribed,
		CreatedAt:    s.clock.Now(),
	}
	if err := s.store.Create(ctx, u); err != nil {
		return UserResponse{}, s.internal("create user", err)
	}
	s.logger.Info("user registered", zap.Int64("user_id", u.UserID), zap.String("role", string(u.Role)))
	return toResponse(u), nil
}

func (s *Service) GetUser(ctx context.Context, id int64) (UserResponse, error) {
	u, err := s.store.GetByID(ctx, id)
	if err != nil {
		return UserResponse{}, s.internal("get user", err)
	}
	if u == nil {
		return UserResponse{}, ErrNotFound("user not found")
	}
	return toResponse(u), nil
}

func (s *Service) ListUsers(ctx context.Context, p Page) (ListResult, error) {
	if p.Limit <= 0 || p.Limit > 200 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	rows, total, err := s.store.List(ctx, p)
	if err != nil {
		return ListResult{}, s.internal("list users", err)
	}
	items := make([]UserResponse, 0, len(rows))
	for i := range rows {
		items = append(items, toResponse(&rows[i]))
	}
	next := p.Offset + p.Limit
	if next >= int(total) {
		next = 0
	}
	return ListResult{Items: items, Total: total, NextOffset: next}, nil
}

// DeleteUser refuses while the user holds a copy; their queued requests are
// cancelled first so the waitlists stay contiguous.
func (s *Service) DeleteUser(ctx context.Context, id int64) (DeleteResponse, error) {
	ok, err := s.store.Exists(ctx, id)
	if err != nil {
		return DeleteResponse{}, s.internal("check user", err)
	}
	if !ok {
		return DeleteResponse{}, ErrNotFound("user not found")
	}

	cancelled, err := s.releaser.ReleaseUser(ctx, id)
	if err != nil {
		switch lending.CodeOf(err) {
		case lending.CodeConflict:
			return DeleteResponse{}, ErrConflict("user still holds borrowed copies")
		case lending.CodeNotFound:
			return DeleteResponse{}, ErrNotFound("user not found")
		}
		return DeleteResponse{}, s.internal("release user", err)
	}

	n, err := s.store.Delete(ctx, id)
	if err != nil {
		return DeleteResponse{}, s.internal("delete user", err)
	}
	if n == 0 {
		return DeleteResponse{}, ErrNotFound("user not found")
	}
	s.logger.Info("user deleted", zap.Int64("user_id", id), zap.Int("cancelled_requests", cancelled))
	return DeleteResponse{UserID: id, Deleted: true, CancelledRequests: cancelled}, nil
}

func (s *Service) internal(op string, err error) error {
	var api *APIError
	if errors.As(err, &api) {
		return api
	}
	s.logger.Error(op+" failed", zap.Error(err))
	return ErrInternal("database error")
}

// Directory satisfies lending.UserDirectory without the write side of the service.
type Directory struct{ store *Store }

func NewDirectory(conn *sql.DB) *Directory { return &Directory{store: NewStore(conn)} }

func (d *Directory) UserExists(ctx context.Context, id int64) (bool, error) {
	return d.store.Exists(ctx, id)
}
