package disposals

import "time"

type DisposalResponse struct {
	DisposalID      int64     `json:"disposal_id"`
	DisposalULID    string    `json:"disposal_ulid"`
	CopyID          int64     `json:"copy_id"`
	BookID          int64     `json:"book_id"`
	Reason          Reason    `json:"reason"`
	LastCondition   int       `json:"last_condition"`
	DisplacedUserID *int64    `json:"displaced_user_id,omitempty"`
	DroppedRequests int       `json:"dropped_requests"`
	DisposedAt      time.Time `json:"disposed_at"`
}

type ListResult struct {
	Items      []DisposalResponse `json:"items"`
	Total      int64              `json:"total"`
	NextOffset int                `json:"next_offset"`
}

func toResponse(m *Disposal) DisposalResponse {
	r := DisposalResponse{
		DisposalID:      m.DisposalID,
		DisposalULID:    m.DisposalULID,
		CopyID:          m.CopyID,
		BookID:          m.BookID,
		Reason:          m.Reason,
		LastCondition:   m.LastCondition,
		DroppedRequests: m.DroppedRequests,
		DisposedAt:      m.DisposedAt,
	}
	if m.DisplacedUserID.Valid {
		v := m.DisplacedUserID.Int64
		r.DisplacedUserID = &v
	}
	return r
}
