package lending

import (
	"database/sql"
	"time"
)

// ---- Requests ----

type BorrowRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
	// RFC3339 または YYYY-MM-DD。省略時は貸出期間のデフォルト
	DueAt *string `json:"due_at,omitempty"`
}

type CreateRequestRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
}

type AddCopyRequest struct {
	Location    string `json:"location" binding:"required"`
	PublisherID *int64 `json:"publisher_id,omitempty"`
}

type UpdateCopyRequest struct {
	Location    *string `json:"location,omitempty"`
	PublisherID *int64  `json:"publisher_id,omitempty"`
}

// ---- Responses ----

type CopyResponse struct {
	CopyID      int64      `json:"copy_id"`
	BookID      int64      `json:"book_id"`
	Location    string     `json:"location"`
	PublisherID *int64     `json:"publisher_id,omitempty"`
	State       CopyState  `json:"state"`
	IsAvailable bool       `json:"is_available"`
	Condition   int        `json:"condition"`
	HolderID    *int64     `json:"holder_id,omitempty"`
	BorrowedAt  *time.Time `json:"borrowed_at,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type ReturnResponse struct {
	CopyID            int64         `json:"copy_id"`
	Copy              *CopyResponse `json:"copy,omitempty"`
	State             CopyState     `json:"state"`
	Removed           bool          `json:"removed"`
	AutoBorrowed      bool          `json:"auto_borrowed"`
	NewCondition      int           `json:"new_condition"`
	NextUser          *int64        `json:"next_user,omitempty"`
	PromotedRequestID *int64        `json:"promoted_request_id,omitempty"`
	DroppedRequests   int           `json:"dropped_requests"`
}

type RequestResponse struct {
	RequestID     int64         `json:"request_id"`
	RequestULID   string        `json:"request_ulid"`
	CopyID        int64         `json:"copy_id"`
	BookID        int64         `json:"book_id"`
	UserID        int64         `json:"user_id"`
	Position      int           `json:"position"`
	Status        RequestStatus `json:"status"`
	RequestedDate time.Time     `json:"requested_date"`
}

type CancelResponse struct {
	Cancelled RequestResponse `json:"cancelled"`
	Shifted   int             `json:"shifted"`
}

type DeleteCopyResponse struct {
	CopyID             int64 `json:"copy_id"`
	BookID             int64 `json:"book_id"`
	Deleted            bool  `json:"deleted"`
	DisplacedBorrowers int   `json:"displaced_borrowers"`
	DroppedRequests    int   `json:"dropped_requests"`
}

type CopyList struct {
	Items []CopyResponse `json:"items"`
	Total int            `json:"total"`
}

type RequestList struct {
	Items []RequestResponse `json:"items"`
	Total int               `json:"total"`
}

// ---- conversions ----

func toCopyResponse(c *Copy) CopyResponse {
	return CopyResponse{
		CopyID:      c.CopyID,
		BookID:      c.BookID,
		Location:    c.Location,
		PublisherID: nullInt64ToPtr(c.PublisherID),
		State:       c.State(),
		IsAvailable: c.Available,
		Condition:   c.Condition,
		HolderID:    nullInt64ToPtr(c.HolderID),
		BorrowedAt:  nullTimeToPtr(c.BorrowedAt),
		DueAt:       nullTimeToPtr(c.DueAt),
		CreatedAt:   c.CreatedAt,
	}
}

func toReturnResponse(copyID int64, r *ReturnResult) ReturnResponse {
	out := ReturnResponse{
		CopyID:          copyID,
		State:           StateRetired,
		Removed:         r.Removed,
		AutoBorrowed:    r.AutoBorrowed,
		NewCondition:    r.NewCondition,
		DroppedRequests: r.DroppedRequests,
	}
	if r.Copy != nil {
		cr := toCopyResponse(r.Copy)
		out.Copy = &cr
		out.State = cr.State
	}
	if r.AutoBorrowed {
		out.NextUser = &r.NextUserID
		out.PromotedRequestID = &r.PromotedRequestID
	}
	return out
}

func toRequestResponse(e *WaitlistEntry) RequestResponse {
	return RequestResponse{
		RequestID:     e.RequestID,
		RequestULID:   e.RequestULID,
		CopyID:        e.CopyID,
		BookID:        e.BookID,
		UserID:        e.UserID,
		Position:      e.Position,
		Status:        e.Status,
		RequestedDate: e.RequestedAt,
	}
}

func toCopyList(cs []Copy) CopyList {
	items := make([]CopyResponse, 0, len(cs))
	for i := range cs {
		items = append(items, toCopyResponse(&cs[i]))
	}
	return CopyList{Items: items, Total: len(items)}
}

func toRequestList(es []WaitlistEntry) RequestList {
	items := make([]RequestResponse, 0, len(es))
	for i := range es {
		items = append(items, toRequestResponse(&es[i]))
	}
	return RequestList{Items: items, Total: len(items)}
}

func nullInt64ToPtr(n sql.NullInt64) *int64 {
	if n.Valid {
		v := n.Int64
		return &v
	}
	return nil
}

func nullTimeToPtr(n sql.NullTime) *time.Time {
	if n.Valid {
		v := n.Time
		return &v
	}
	return nil
}

// parseDueAt accepts RFC3339 or a bare date; a bare date means end of that day in UTC.
func parseDueAt(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, err
	}
	return d.Add(24*time.Hour - time.Second), nil
}
