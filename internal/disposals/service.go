package disposals

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ulid "github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"LIBCAT-backend/internal/platform/db"
)

// ---- Error model ----
type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeInternal        Code = "INTERNAL"
)

type APIError struct {
	Code    Code
	Message string
}

func (e *APIError) Error() string       { return fmt.Sprintf("%s: %s", e.Code, e.Message) }
func ErrInvalid(msg string) *APIError  { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func ErrNotFound(msg string) *APIError { return &APIError{Code: CodeNotFound, Message: msg} }
func ErrInternal(msg string) *APIError { return &APIError{Code: CodeInternal, Message: msg} }

// ---- Clock & ID ----
type Clock interface{ Now() time.Time }
type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type IDGen interface{ NewULID(t time.Time) string }
type ulidGen struct{}

func (ulidGen) NewULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// ---- Service ----

type Service struct {
	db     *sql.DB
	store  *Store
	clock  Clock
	id     IDGen
	logger *zap.Logger
}

func NewService(conn *sql.DB, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:     conn,
		store:  NewStore(),
		clock:  realClock{},
		id:     ulidGen{},
		logger: logger,
	}
}

// RecordTx writes a disposal row inside the caller's transaction, so the log entry
// commits or rolls back together with the copy removal.
func (s *Service) RecordTx(ctx context.Context, tx db.DBTX, r Record) (*Disposal, error) {
	if r.Reason != ReasonRetired && r.Reason != ReasonDeleted {
		return nil, ErrInvalid("unknown disposal reason")
	}
	now := s.clock.Now()
	m := &Disposal{
		DisposalULID:    s.id.NewULID(now),
		CopyID:          r.CopyID,
		BookID:          r.BookID,
		Reason:          r.Reason,
		LastCondition:   r.LastCondition,
		DisplacedUserID: r.DisplacedUserID,
		DroppedRequests: r.DroppedRequests,
		DisposedAt:      now,
	}
	if err := s.store.Insert(ctx, tx, m); err != nil {
		return nil, err
	}
	s.logger.Info("copy disposed",
		zap.String("disposal_ulid", m.DisposalULID),
		zap.Int64("copy_id", m.CopyID),
		zap.String("reason", string(m.Reason)))
	return m, nil
}

// GetDisposalByKey は数値なら disposal_id、それ以外は ULID として引く
func (s *Service) GetDisposalByKey(ctx context.Context, key string) (DisposalResponse, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return DisposalResponse{}, ErrInvalid("disposal key is required")
	}
	var (
		m   *Disposal
		err error
	)
	if id, perr := strconv.ParseInt(key, 10, 64); perr == nil {
		m, err = s.store.GetByID(ctx, s.db, id)
	} else {
		m, err = s.store.GetByULID(ctx, s.db, key)
	}
	if err != nil {
		return DisposalResponse{}, s.wrap(err)
	}
	return toResponse(m), nil
}

func (s *Service) ListDisposals(ctx context.Context, f DisposalFilter, p Page) (ListResult, error) {
	if p.Limit <= 0 || p.Limit > 200 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	rows, total, err := s.store.List(ctx, s.db, f, p)
	if err != nil {
		return ListResult{}, s.wrap(err)
	}
	items := make([]DisposalResponse, 0, len(rows))
	for i := range rows {
		items = append(items, toResponse(&rows[i]))
	}
	next := p.Offset + p.Limit
	if next >= int(total) {
		next = 0
	}
	return ListResult{Items: items, Total: total, NextOffset: next}, nil
}

func (s *Service) wrap(err error) error {
	var api *APIError
	if errors.As(err, &api) {
		return api
	}
	s.logger.Error("disposal query failed", zap.Error(err))
	return ErrInternal("database error")
}

func ToHTTPStatus(err error) int {
	var api *APIError
	if errors.As(err, &api) {
		switch api.Code {
		case CodeInvalidArgument:
			return 400
		case CodeNotFound:
			return 404
		default:
			return 500
		}
	}
	return 500
}
