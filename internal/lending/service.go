package lending

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	ulid "github.com/oklog/ulid/v2"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"LIBCAT-backend/internal/disposals"
	"LIBCAT-backend/internal/platform/db"
	"LIBCAT-backend/internal/platform/keylock"
	"LIBCAT-backend/internal/platform/metrics"
)

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

var tracer = otel.Tracer("LIBCAT-backend/internal/lending")

// Manager owns every state transition of copies and their waitlists.
// Each mutating call holds the copy's lock and runs in one transaction.
type Manager struct {
	db         *sql.DB
	copies     *CopyStore
	waitlist   *WaitlistStore
	disposals  DisposalRecorder
	books      BookDirectory
	users      UserDirectory
	locks      *keylock.KeyedMutex[int64]
	clock      Clock
	id         IDGen
	logger     *zap.Logger
	loanPeriod time.Duration
	returnWear int
}

type Option func(*Manager)

func WithClock(c Clock) Option        { return func(m *Manager) { m.clock = c } }
func WithIDGen(g IDGen) Option        { return func(m *Manager) { m.id = g } }
func WithLogger(l *zap.Logger) Option { return func(m *Manager) { m.logger = l } }

func WithLoanPeriod(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.loanPeriod = d
		}
	}
}

func WithReturnWear(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.returnWear = n
		}
	}
}

func NewManager(conn *sql.DB, dialect db.Dialect, books BookDirectory, users UserDirectory, rec DisposalRecorder, opts ...Option) *Manager {
	m := &Manager{
		db:         conn,
		copies:     NewCopyStore(dialect),
		waitlist:   NewWaitlistStore(dialect),
		disposals:  rec,
		books:      books,
		users:      users,
		locks:      keylock.New[int64](),
		clock:      realClock{},
		id:         ulidGen{},
		logger:     zap.NewNop(),
		loanPeriod: DefaultLoanPeriod,
		returnWear: DefaultReturnWear,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// ---- plumbing ----

func (m *Manager) observe(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "lending."+op, trace.WithAttributes(attrs...))
	return ctx, func(errp *error) {
		outcome := "ok"
		if err := *errp; err != nil {
			outcome = string(CodeOf(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		metrics.ObserveLending(op, outcome, start)
	}
}

// inCopyTx serialises fn with every other mutation of the same copy.
func (m *Manager) inCopyTx(ctx context.Context, copyID int64, fn func(ctx context.Context, tx db.DBTX) error) error {
	unlock := m.locks.Lock(copyID)
	defer unlock()
	return m.wrap(db.RunInTx(ctx, m.db, nil, fn))
}

// wrap passes domain errors through and turns anything else into STORAGE.
func (m *Manager) wrap(err error) error {
	if err == nil {
		return nil
	}
	var api *APIError
	if errors.As(err, &api) {
		return api
	}
	m.logger.Error("lending storage failure", zap.Error(err))
	return ErrStorage(err)
}

func (m *Manager) requireUser(ctx context.Context, userID int64) error {
	ok, err := m.users.UserExists(ctx, userID)
	if err != nil {
		return m.wrap(err)
	}
	if !ok {
		return ErrNotFound(fmt.Sprintf("user %d not found", userID))
	}
	return nil
}

func (m *Manager) requireBook(ctx context.Context, bookID int64) error {
	ok, err := m.books.BookExists(ctx, bookID)
	if err != nil {
		return m.wrap(err)
	}
	if !ok {
		return ErrNotFound(fmt.Sprintf("book %d not found", bookID))
	}
	return nil
}

func validID(v any) error {
	return validation.Validate(v, validation.Required, validation.Min(int64(1)))
}

// ---- lending operations ----

// Borrow lends an available copy to the user.
func (m *Manager) Borrow(ctx context.Context, copyID int64, in BorrowInput) (res *Copy, err error) {
	ctx, done := m.observe(ctx, "borrow", attribute.Int64("copy_id", copyID), attribute.Int64("user_id", in.UserID))
	defer done(&err)

	if err := (validation.Errors{"copy_id": validID(copyID), "user_id": validID(in.UserID)}).Filter(); err != nil {
		return nil, ErrInvalid(err.Error())
	}
	now := m.clock.Now()
	due := now.Add(m.loanPeriod)
	if in.DueAt != nil {
		if !in.DueAt.After(now) {
			return nil, ErrInvalid("due date must be in the future")
		}
		due = in.DueAt.UTC()
	}
	if err := m.requireUser(ctx, in.UserID); err != nil {
		return nil, err
	}

	err = m.inCopyTx(ctx, copyID, func(ctx context.Context, tx db.DBTX) error {
		c, err := m.copies.GetForUpdate(ctx, tx, copyID)
		if err != nil {
			return err
		}
		if c.State() != StateAvailable {
			return ErrInvalidState(fmt.Sprintf("copy %d is already borrowed", copyID))
		}
		res, err = m.copies.Update(ctx, tx, copyID, CopyUpdate{
			Available:  lo.ToPtr(false),
			HolderID:   &sql.NullInt64{Int64: in.UserID, Valid: true},
			BorrowedAt: &sql.NullTime{Time: now, Valid: true},
			DueAt:      &sql.NullTime{Time: due, Valid: true},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("copy borrowed",
		zap.Int64("copy_id", copyID), zap.Int64("user_id", in.UserID), zap.Time("due_at", due))
	return res, nil
}

// Return takes a borrowed copy back, wears it, and either hands it to the head of
// the waitlist, makes it available, or retires it when its condition hits zero.
func (m *Manager) Return(ctx context.Context, copyID int64) (res *ReturnResult, err error) {
	ctx, done := m.observe(ctx, "return", attribute.Int64("copy_id", copyID))
	defer done(&err)

	if err := validID(copyID); err != nil {
		return nil, ErrInvalid("copy_id: " + err.Error())
	}
	now := m.clock.Now()

	err = m.inCopyTx(ctx, copyID, func(ctx context.Context, tx db.DBTX) error {
		c, err := m.copies.GetForUpdate(ctx, tx, copyID)
		if err != nil {
			return err
		}
		if c.State() != StateBorrowed {
			return ErrInvalidState(fmt.Sprintf("copy %d is not borrowed", copyID))
		}
		cond := max(0, c.Condition-m.returnWear)
		r := &ReturnResult{NewCondition: cond}

		if cond == 0 {
			dropped, err := m.waitlist.RemoveAllForCopy(ctx, tx, copyID)
			if err != nil {
				return err
			}
			if _, err := m.copies.Delete(ctx, tx, copyID); err != nil {
				return err
			}
			if _, err := m.disposals.RecordTx(ctx, tx, disposals.Record{
				CopyID:          copyID,
				BookID:          c.BookID,
				Reason:          disposals.ReasonRetired,
				LastCondition:   cond,
				DroppedRequests: dropped,
			}); err != nil {
				return err
			}
			r.Removed = true
			r.DroppedRequests = dropped
			res = r
			return nil
		}

		head, err := m.waitlist.DequeueHead(ctx, tx, copyID)
		if err != nil {
			return err
		}
		u := CopyUpdate{Condition: &cond}
		if head != nil {
			u.HolderID = &sql.NullInt64{Int64: head.UserID, Valid: true}
			u.BorrowedAt = &sql.NullTime{Time: now, Valid: true}
			u.DueAt = &sql.NullTime{Time: now.Add(m.loanPeriod), Valid: true}
			r.AutoBorrowed = true
			r.NextUserID = head.UserID
			r.PromotedRequestID = head.RequestID
		} else {
			u.Available = lo.ToPtr(true)
			u.HolderID = &sql.NullInt64{}
			u.BorrowedAt = &sql.NullTime{}
			u.DueAt = &sql.NullTime{}
		}
		if r.Copy, err = m.copies.Update(ctx, tx, copyID, u); err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch {
	case res.Removed:
		metrics.CopiesRetired.Inc()
		m.logger.Info("copy retired on return",
			zap.Int64("copy_id", copyID), zap.Int("dropped_requests", res.DroppedRequests))
	case res.AutoBorrowed:
		metrics.WaitlistPromotions.Inc()
		m.logger.Info("copy handed to next in line",
			zap.Int64("copy_id", copyID), zap.Int64("user_id", res.NextUserID), zap.Int("condition", res.NewCondition))
	default:
		m.logger.Info("copy returned", zap.Int64("copy_id", copyID), zap.Int("condition", res.NewCondition))
	}
	return res, nil
}

// Request puts the user on the waitlist of a borrowed copy.
func (m *Manager) Request(ctx context.Context, copyID int64, in RequestInput) (res *WaitlistEntry, err error) {
	ctx, done := m.observe(ctx, "request", attribute.Int64("copy_id", copyID), attribute.Int64("user_id", in.UserID))
	defer done(&err)

	if err := (validation.Errors{"copy_id": validID(copyID), "user_id": validID(in.UserID)}).Filter(); err != nil {
		return nil, ErrInvalid(err.Error())
	}
	if err := m.requireUser(ctx, in.UserID); err != nil {
		return nil, err
	}
	now := m.clock.Now()
	requestULID := m.id.NewULID(now)

	err = m.inCopyTx(ctx, copyID, func(ctx context.Context, tx db.DBTX) error {
		c, err := m.copies.GetForUpdate(ctx, tx, copyID)
		if err != nil {
			return err
		}
		if c.State() == StateAvailable {
			return ErrAlreadyAvailable(fmt.Sprintf("copy %d is available; borrow it instead", copyID))
		}
		if c.HolderID.Valid && c.HolderID.Int64 == in.UserID {
			return ErrConflict("user already holds this copy")
		}
		exists, err := m.waitlist.Exists(ctx, tx, copyID, in.UserID)
		if err != nil {
			return err
		}
		if exists {
			return ErrConflict("user already has a request for this copy")
		}
		res, err = m.waitlist.Enqueue(ctx, tx, copyID, in.UserID, requestULID, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("request queued",
		zap.Int64("copy_id", copyID), zap.Int64("user_id", in.UserID), zap.Int("position", res.Position))
	return res, nil
}

// CancelRequest removes a waitlist entry (by id or ULID) and closes the gap.
func (m *Manager) CancelRequest(ctx context.Context, key string) (res *CancelResult, err error) {
	ctx, done := m.observe(ctx, "cancel_request", attribute.String("request", key))
	defer done(&err)

	// copy id はロック取得のために先に引く。Tx 内で再度読み直す
	entry, err := m.lookupRequest(ctx, m.db, key)
	if err != nil {
		return nil, m.wrap(err)
	}

	err = m.inCopyTx(ctx, entry.CopyID, func(ctx context.Context, tx db.DBTX) error {
		cur, err := m.waitlist.Get(ctx, tx, entry.RequestID)
		if err != nil {
			return err
		}
		removed, err := m.waitlist.Remove(ctx, tx, cur.RequestID)
		if err != nil {
			return err
		}
		if !removed {
			return ErrNotFound("request not found")
		}
		shifted, err := m.waitlist.ShiftDown(ctx, tx, cur.CopyID, cur.Position)
		if err != nil {
			return err
		}
		res = &CancelResult{Entry: cur, Shifted: shifted}
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("request cancelled",
		zap.Int64("request_id", res.Entry.RequestID), zap.Int64("copy_id", res.Entry.CopyID), zap.Int("shifted", res.Shifted))
	return res, nil
}

// DeleteCopy removes a copy whatever its state. A current holder is displaced
// and every waiting request on the copy is dropped.
func (m *Manager) DeleteCopy(ctx context.Context, copyID int64) (res *DeleteCopyResult, err error) {
	ctx, done := m.observe(ctx, "delete_copy", attribute.Int64("copy_id", copyID))
	defer done(&err)

	if err := validID(copyID); err != nil {
		return nil, ErrInvalid("copy_id: " + err.Error())
	}
	err = m.inCopyTx(ctx, copyID, func(ctx context.Context, tx db.DBTX) error {
		var err error
		res, err = m.deleteCopyTx(ctx, tx, copyID)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("copy deleted",
		zap.Int64("copy_id", copyID),
		zap.Int("displaced", res.DisplacedBorrowers),
		zap.Int("dropped_requests", res.DroppedRequests))
	return res, nil
}

func (m *Manager) deleteCopyTx(ctx context.Context, tx db.DBTX, copyID int64) (*DeleteCopyResult, error) {
	c, err := m.copies.GetForUpdate(ctx, tx, copyID)
	if err != nil {
		return nil, err
	}
	dropped, err := m.waitlist.RemoveAllForCopy(ctx, tx, copyID)
	if err != nil {
		return nil, err
	}
	if _, err := m.copies.Delete(ctx, tx, copyID); err != nil {
		return nil, err
	}
	res := &DeleteCopyResult{CopyID: copyID, BookID: c.BookID, DroppedRequests: dropped}
	if c.State() == StateBorrowed {
		res.DisplacedBorrowers = 1
	}
	if _, err := m.disposals.RecordTx(ctx, tx, disposals.Record{
		CopyID:          copyID,
		BookID:          c.BookID,
		Reason:          disposals.ReasonDeleted,
		LastCondition:   c.Condition,
		DisplacedUserID: c.HolderID,
		DroppedRequests: dropped,
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// DeleteCopiesOfBook deletes every copy of the book one at a time and reports how
// many of them were out on loan.
func (m *Manager) DeleteCopiesOfBook(ctx context.Context, bookID int64) (displaced int, err error) {
	ctx, done := m.observe(ctx, "delete_book_copies", attribute.Int64("book_id", bookID))
	defer done(&err)

	copies, err := m.copies.ListByBook(ctx, m.db, bookID)
	if err != nil {
		return 0, m.wrap(err)
	}
	for _, c := range copies {
		var r *DeleteCopyResult
		err := m.inCopyTx(ctx, c.CopyID, func(ctx context.Context, tx db.DBTX) error {
			var err error
			r, err = m.deleteCopyTx(ctx, tx, c.CopyID)
			return err
		})
		if CodeOf(err) == CodeNotFound {
			// 並行して削除済み
			continue
		}
		if err != nil {
			return displaced, err
		}
		displaced += r.DisplacedBorrowers
	}
	return displaced, nil
}

// AddCopy registers a new, available copy of an existing book.
func (m *Manager) AddCopy(ctx context.Context, bookID int64, in AddCopyInput) (res *Copy, err error) {
	ctx, done := m.observe(ctx, "add_copy", attribute.Int64("book_id", bookID))
	defer done(&err)

	in.Location = strings.TrimSpace(in.Location)
	if err := (validation.Errors{
		"book_id":      validID(bookID),
		"location":     validation.Validate(in.Location, validation.Required, validation.Length(1, 255)),
		"publisher_id": validation.Validate(in.PublisherID, validation.NilOrNotEmpty, validation.Min(int64(1))),
	}).Filter(); err != nil {
		return nil, ErrInvalid(err.Error())
	}
	if err := m.requireBook(ctx, bookID); err != nil {
		return nil, err
	}
	err = m.wrap(db.RunInTx(ctx, m.db, nil, func(ctx context.Context, tx db.DBTX) error {
		var err error
		res, err = m.CreateCopyTx(ctx, tx, bookID, in.Location, toNullInt64(in.PublisherID))
		return err
	}))
	if err != nil {
		return nil, err
	}
	m.logger.Info("copy added", zap.Int64("copy_id", res.CopyID), zap.Int64("book_id", bookID))
	return res, nil
}

// CreateCopyTx inserts a copy on the caller's transaction. Used when the book row
// itself is created in the same transaction.
func (m *Manager) CreateCopyTx(ctx context.Context, tx db.DBTX, bookID int64, location string, publisherID sql.NullInt64) (*Copy, error) {
	c, err := m.copies.Create(ctx, tx, bookID, location, publisherID, m.clock.Now())
	if err != nil {
		if db.IsForeignKey(err) {
			return nil, ErrNotFound("book or publisher not found")
		}
		return nil, err
	}
	return c, nil
}

// UpdateCopyDetails edits the shelf location or publisher of a copy.
func (m *Manager) UpdateCopyDetails(ctx context.Context, copyID int64, in UpdateCopyInput) (res *Copy, err error) {
	ctx, done := m.observe(ctx, "update_copy", attribute.Int64("copy_id", copyID))
	defer done(&err)

	if in.Location == nil && in.PublisherID == nil {
		return nil, ErrInvalid("nothing to update")
	}
	if in.Location != nil {
		in.Location = lo.ToPtr(strings.TrimSpace(*in.Location))
	}
	if err := (validation.Errors{
		"copy_id":      validID(copyID),
		"location":     validation.Validate(in.Location, validation.NilOrNotEmpty, validation.Length(1, 255)),
		"publisher_id": validation.Validate(in.PublisherID, validation.NilOrNotEmpty, validation.Min(int64(1))),
	}).Filter(); err != nil {
		return nil, ErrInvalid(err.Error())
	}

	u := CopyUpdate{Location: in.Location}
	if in.PublisherID != nil {
		u.PublisherID = &sql.NullInt64{Int64: *in.PublisherID, Valid: true}
	}
	err = m.inCopyTx(ctx, copyID, func(ctx context.Context, tx db.DBTX) error {
		if _, err := m.copies.GetForUpdate(ctx, tx, copyID); err != nil {
			return err
		}
		var err error
		res, err = m.copies.Update(ctx, tx, copyID, u)
		if db.IsForeignKey(err) {
			return ErrNotFound("publisher not found")
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ReleaseUser prepares a user for deletion: it refuses while the user holds a copy
// and otherwise cancels all of the user's waiting requests.
func (m *Manager) ReleaseUser(ctx context.Context, userID int64) (cancelled int, err error) {
	ctx, done := m.observe(ctx, "release_user", attribute.Int64("user_id", userID))
	defer done(&err)

	held, err := m.copies.ListByHolder(ctx, m.db, userID)
	if err != nil {
		return 0, m.wrap(err)
	}
	if len(held) > 0 {
		return 0, ErrConflict(fmt.Sprintf("user %d still holds %d copies", userID, len(held)))
	}
	entries, err := m.waitlist.ListByUser(ctx, m.db, userID)
	if err != nil {
		return 0, m.wrap(err)
	}
	for _, e := range entries {
		if e.Status != StatusWaiting {
			continue
		}
		_, err := m.CancelRequest(ctx, strconv.FormatInt(e.RequestID, 10))
		if CodeOf(err) == CodeNotFound {
			continue
		}
		if err != nil {
			return cancelled, err
		}
		cancelled++
	}
	return cancelled, nil
}

// ---- reads ----

func (m *Manager) GetCopy(ctx context.Context, copyID int64) (*Copy, error) {
	c, err := m.copies.Get(ctx, m.db, copyID)
	return c, m.wrap(err)
}

func (m *Manager) ListCopies(ctx context.Context, bookID int64) ([]Copy, error) {
	if err := m.requireBook(ctx, bookID); err != nil {
		return nil, err
	}
	out, err := m.copies.ListByBook(ctx, m.db, bookID)
	return out, m.wrap(err)
}

func (m *Manager) GetRequest(ctx context.Context, key string) (*WaitlistEntry, error) {
	e, err := m.lookupRequest(ctx, m.db, key)
	return e, m.wrap(err)
}

func (m *Manager) ListRequestsByCopy(ctx context.Context, copyID int64) ([]WaitlistEntry, error) {
	if _, err := m.copies.Get(ctx, m.db, copyID); err != nil {
		return nil, m.wrap(err)
	}
	out, err := m.waitlist.ListByCopy(ctx, m.db, copyID)
	return out, m.wrap(err)
}

func (m *Manager) ListRequestsByUser(ctx context.Context, userID int64) ([]WaitlistEntry, error) {
	if err := m.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	out, err := m.waitlist.ListByUser(ctx, m.db, userID)
	return out, m.wrap(err)
}

func (m *Manager) ListBorrowedByUser(ctx context.Context, userID int64) ([]Copy, error) {
	if err := m.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	out, err := m.copies.ListByHolder(ctx, m.db, userID)
	return out, m.wrap(err)
}

// lookupRequest は数値なら request_id、それ以外は ULID として引く
func (m *Manager) lookupRequest(ctx context.Context, q db.DBTX, key string) (*WaitlistEntry, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrInvalid("request key is required")
	}
	if id, err := strconv.ParseInt(key, 10, 64); err == nil {
		return m.waitlist.Get(ctx, q, id)
	}
	if _, err := ulid.ParseStrict(key); err != nil {
		return nil, ErrInvalid("request key must be an id or a ULID")
	}
	return m.waitlist.GetByULID(ctx, q, key)
}

func toNullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}
