package lending

import (
	"database/sql"
	"time"
)

const (
	MaxCondition      = 100
	DefaultReturnWear = 20
	DefaultLoanPeriod = 15 * 24 * time.Hour
)

type CopyState string

const (
	StateAvailable CopyState = "available"
	StateBorrowed  CopyState = "borrowed"
	// 行は削除済み。レスポンス上でのみ使う
	StateRetired CopyState = "retired"
)

// Copy は book_copies テーブルの1行を表す
type Copy struct {
	CopyID      int64
	BookID      int64
	Location    string
	PublisherID sql.NullInt64
	Available   bool
	Condition   int
	HolderID    sql.NullInt64
	BorrowedAt  sql.NullTime
	DueAt       sql.NullTime
	CreatedAt   time.Time
}

func (c *Copy) State() CopyState {
	if c.Available {
		return StateAvailable
	}
	return StateBorrowed
}

// CopyUpdate is a partial update. A nil field is left untouched; a Null* value with
// Valid=false clears the column.
type CopyUpdate struct {
	Location    *string
	PublisherID *sql.NullInt64
	Available   *bool
	HolderID    *sql.NullInt64
	BorrowedAt  *sql.NullTime
	DueAt       *sql.NullTime
	Condition   *int
}

func (u CopyUpdate) empty() bool {
	return u.Location == nil && u.PublisherID == nil && u.Available == nil &&
		u.HolderID == nil && u.BorrowedAt == nil && u.DueAt == nil && u.Condition == nil
}

type RequestStatus string

const StatusWaiting RequestStatus = "waiting"

// WaitlistEntry は copy_requests テーブルの1行を表す
type WaitlistEntry struct {
	RequestID   int64
	RequestULID string
	CopyID      int64
	BookID      int64 // book_copies との JOIN で埋まる
	UserID      int64
	Position    int
	Status      RequestStatus
	RequestedAt time.Time
}

type BorrowInput struct {
	UserID int64
	// nil なら貸出期間のデフォルト
	DueAt *time.Time
}

type RequestInput struct {
	UserID int64
}

type AddCopyInput struct {
	Location    string
	PublisherID *int64
}

type UpdateCopyInput struct {
	Location    *string
	PublisherID *int64
}

type ReturnResult struct {
	Copy              *Copy // Removed のときは nil
	Removed           bool
	AutoBorrowed      bool
	NewCondition      int
	NextUserID        int64
	PromotedRequestID int64
	DroppedRequests   int
}

type CancelResult struct {
	Entry   *WaitlistEntry
	Shifted int
}

type DeleteCopyResult struct {
	CopyID             int64
	BookID             int64
	DisplacedBorrowers int
	DroppedRequests    int
}
