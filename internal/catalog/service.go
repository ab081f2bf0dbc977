package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	ulid "github.com/oklog/ulid/v2"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"LIBCAT-backend/internal/lending"
	"LIBCAT-backend/internal/platform/db"
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

// CopyManager is the part of the lending manager the catalog drives.
type CopyManager interface {
	CreateCopyTx(ctx context.Context, tx db.DBTX, bookID int64, location string, publisherID sql.NullInt64) (*lending.Copy, error)
	DeleteCopiesOfBook(ctx context.Context, bookID int64) (int, error)
}

const (
	DefaultLocation = "main-hall"
	catalogCodePad  = 6
)

type Clock interface{ Now() time.Time }
type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type Service struct {
	db     *sql.DB
	store  *Store
	copies CopyManager
	clock  Clock
	logger *zap.Logger
}

func NewService(conn *sql.DB, d db.Dialect, copies CopyManager, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: conn, store: NewStore(conn, d), copies: copies, clock: realClock{}, logger: logger}
}

// CreateBook は書誌・マスタ・初期複本を1つの Tx で登録する
func (s *Service) CreateBook(ctx context.Context, in CreateBookRequest) (BookResponse, error) {
	// 空要素と重複は検証前に落とす
	in.Title = normalizeName(in.Title)
	in.CatalogCode = strings.TrimSpace(in.CatalogCode)
	in.Authors = normalizeAll(in.Authors, normalizeName)
	in.Keywords = normalizeAll(in.Keywords, normalizeKeyword)
	in.Locations = normalizeAll(in.Locations, normalizeName)
	if len(in.Locations) > 0 && in.Copies == 0 {
		in.Copies = len(in.Locations)
	}
	if err := in.Validate(); err != nil {
		return BookResponse{}, ErrInvalid(err.Error())
	}
	authors, keywords, locations := in.Authors, in.Keywords, in.Locations
	if len(locations) == 0 {
		locations = []string{DefaultLocation}
	}

	var bookID int64
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		nb := newBook{
			CatalogCode: in.CatalogCode,
			Title:       in.Title,
			Poster:      toNullString(in.Poster),
			CreatedAt:   s.clock.Now(),
		}
		if nb.CatalogCode == "" {
			nb.CatalogCode = "tmp-" + ulid.Make().String()
		}
		if in.Theme != nil {
			id, err := s.store.EnsureMaster(ctx, tx, Themes, normalizeName(*in.Theme))
			if err != nil {
				return err
			}
			nb.ThemeID = sql.NullInt64{Int64: id, Valid: true}
		}
		if in.Publisher != nil {
			id, err := s.store.EnsureMaster(ctx, tx, Publishers, normalizeName(*in.Publisher))
			if err != nil {
				return err
			}
			nb.PublisherID = sql.NullInt64{Int64: id, Valid: true}
		}

		id, err := s.store.InsertBook(ctx, tx, nb)
		if err != nil {
			return err
		}
		bookID = id
		if in.CatalogCode == "" {
			if err := s.store.SetCatalogCode(ctx, tx, id, fmt.Sprintf("BK%0*d", catalogCodePad, id)); err != nil {
				return err
			}
		}

		if err := s.linkMasters(ctx, tx, id, Authors, "book_authors", "author_id", authors); err != nil {
			return err
		}
		if err := s.linkMasters(ctx, tx, id, Keywords, "book_keywords", "keyword_id", keywords); err != nil {
			return err
		}

		for i := 0; i < in.Copies; i++ {
			loc := locations[i%len(locations)]
			if _, err := s.copies.CreateCopyTx(ctx, tx, id, loc, nb.PublisherID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return BookResponse{}, s.internal("create book", err)
	}
	s.logger.Info("book created", zap.Int64("book_id", bookID), zap.Int("copies", in.Copies))
	return s.GetBook(ctx, bookID)
}

func (s *Service) linkMasters(ctx context.Context, tx db.DBTX, bookID int64, kind MasterKind, link, fk string, names []string) error {
	ids := make([]int64, 0, len(names))
	for _, n := range names {
		id, err := s.store.EnsureMaster(ctx, tx, kind, n)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}
	return s.store.Link(ctx, tx, link, fk, bookID, lo.Uniq(ids))
}

func (s *Service) GetBook(ctx context.Context, id int64) (BookResponse, error) {
	b, err := s.store.GetBook(ctx, id)
	if err != nil {
		return BookResponse{}, s.internal("get book", err)
	}
	return toBookResponse(b), nil
}

func (s *Service) ListBooks(ctx context.Context, q BookSearchQuery, p Page) (ListResult, error) {
	if p.Limit <= 0 || p.Limit > 200 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	rows, total, err := s.store.ListBooks(ctx, q, p)
	if err != nil {
		return ListResult{}, s.internal("list books", err)
	}
	items := lo.Map(rows, func(b Book, _ int) BookResponse { return toBookResponse(&b) })
	next := p.Offset + p.Limit
	if next >= int(total) {
		next = 0
	}
	return ListResult{Items: items, Total: total, NextOffset: next}, nil
}

// DeleteBook removes every copy through the lending manager first, so holders and
// waitlists are handled there, then the book row itself. A copy added in between
// keeps the book row alive and the call fails with CONFLICT.
func (s *Service) DeleteBook(ctx context.Context, id int64) (DeleteBookResponse, error) {
	ok, err := s.store.BookExists(ctx, id)
	if err != nil {
		return DeleteBookResponse{}, s.internal("check book", err)
	}
	if !ok {
		return DeleteBookResponse{}, ErrNotFound("book not found")
	}
	displaced, err := s.copies.DeleteCopiesOfBook(ctx, id)
	if err != nil {
		return DeleteBookResponse{}, s.internal("delete copies", err)
	}
	n, err := s.store.DeleteBook(ctx, id)
	if err != nil {
		return DeleteBookResponse{}, s.internal("delete book", err)
	}
	if n == 0 {
		return DeleteBookResponse{}, ErrNotFound("book not found")
	}
	s.logger.Info("book deleted", zap.Int64("book_id", id), zap.Int("displaced", displaced))
	return DeleteBookResponse{BookID: id, Deleted: true, DisplacedBorrowers: displaced}, nil
}

func (s *Service) ListMasters(ctx context.Context, kind MasterKind) ([]MasterResponse, error) {
	ms, err := s.store.ListMasters(ctx, kind)
	if err != nil {
		return nil, s.internal("list masters", err)
	}
	return toMasterResponses(ms), nil
}

func (s *Service) internal(op string, err error) error {
	var api *APIError
	if errors.As(err, &api) {
		return api
	}
	switch lending.CodeOf(err) {
	case lending.CodeNotFound:
		return ErrNotFound(err.Error())
	case lending.CodeInvalidArgument:
		return ErrInvalid(err.Error())
	}
	s.logger.Error(op+" failed", zap.Error(err))
	return ErrInternal("database error")
}

func toNullString(s *string) (ns sql.NullString) {
	if s != nil && strings.TrimSpace(*s) != "" {
		ns.Valid, ns.String = true, strings.TrimSpace(*s)
	}
	return
}

// Directory satisfies lending.BookDirectory.
type Directory struct{ store *Store }

func NewDirectory(conn *sql.DB, d db.Dialect) *Directory { return &Directory{store: NewStore(conn, d)} }

func (d *Directory) BookExists(ctx context.Context, id int64) (bool, error) {
	return d.store.BookExists(ctx, id)
}
