package disposals

import (
	"database/sql"
	"time"
)

type Reason string

const (
	// 返却時に状態値が 0 になった
	ReasonRetired Reason = "retired"
	// 管理者による削除
	ReasonDeleted Reason = "deleted"
)

// Disposal は copy_disposals の1行。コピー行は消えているので FK は持たない
type Disposal struct {
	DisposalID      int64
	DisposalULID    string
	CopyID          int64
	BookID          int64
	Reason          Reason
	LastCondition   int
	DisplacedUserID sql.NullInt64
	DroppedRequests int
	DisposedAt      time.Time
}

// Record is what the lending side reports when a copy leaves the catalog.
type Record struct {
	CopyID          int64
	BookID          int64
	Reason          Reason
	LastCondition   int
	DisplacedUserID sql.NullInt64
	DroppedRequests int
}

type DisposalFilter struct {
	BookID *int64
	CopyID *int64
	Reason *Reason
	From   *time.Time
	To     *time.Time
}

type Page struct {
	Limit  int
	Offset int
	Order  string
}
