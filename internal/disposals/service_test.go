package disposals

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LIBCAT-backend/internal/platform/db"
	"LIBCAT-backend/internal/platform/dbtest"
)

type stepClock struct{ t time.Time }

func (c *stepClock) Now() time.Time {
	c.t = c.t.Add(time.Minute)
	return c.t
}

func newTestService(t *testing.T) (*Service, *sql.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	s := NewService(conn, nil)
	s.clock = &stepClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	return s, conn
}

func record(t *testing.T, s *Service, conn *sql.DB, r Record) *Disposal {
	t.Helper()
	var out *Disposal
	require.NoError(t, db.RunInTx(context.Background(), conn, nil, func(ctx context.Context, tx db.DBTX) error {
		var err error
		out, err = s.RecordTx(ctx, tx, r)
		return err
	}))
	return out
}

func TestRecordTx(t *testing.T) {
	ctx := context.Background()
	s, conn := newTestService(t)

	d := record(t, s, conn, Record{
		CopyID: 7, BookID: 1, Reason: ReasonDeleted, LastCondition: 60,
		DisplacedUserID: sql.NullInt64{Int64: 3, Valid: true}, DroppedRequests: 2,
	})
	assert.NotZero(t, d.DisposalID)
	assert.Len(t, d.DisposalULID, 26)

	byID, err := s.GetDisposalByKey(ctx, "1")
	require.NoError(t, err)
	byULID, err := s.GetDisposalByKey(ctx, d.DisposalULID)
	require.NoError(t, err)
	assert.Equal(t, byID, byULID)
	assert.Equal(t, int64(3), *byID.DisplacedUserID)
	assert.Equal(t, 2, byID.DroppedRequests)

	_, err = s.GetDisposalByKey(ctx, "999")
	assert.Equal(t, 404, ToHTTPStatus(err))
	_, err = s.GetDisposalByKey(ctx, " ")
	assert.Equal(t, 400, ToHTTPStatus(err))
}

func TestRecordTx_RollsBackWithCaller(t *testing.T) {
	s, conn := newTestService(t)
	err := db.RunInTx(context.Background(), conn, nil, func(ctx context.Context, tx db.DBTX) error {
		if _, err := s.RecordTx(ctx, tx, Record{CopyID: 1, BookID: 1, Reason: ReasonRetired}); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	res, err := s.ListDisposals(context.Background(), DisposalFilter{}, Page{})
	require.NoError(t, err)
	assert.Zero(t, res.Total)
}

func TestRecordTx_UnknownReason(t *testing.T) {
	s, conn := newTestService(t)
	err := db.RunInTx(context.Background(), conn, nil, func(ctx context.Context, tx db.DBTX) error {
		_, err := s.RecordTx(ctx, tx, Record{CopyID: 1, BookID: 1, Reason: "lost"})
		return err
	})
	assert.Equal(t, 400, ToHTTPStatus(err))
}

func TestListDisposals(t *testing.T) {
	ctx := context.Background()
	s, conn := newTestService(t)
	record(t, s, conn, Record{CopyID: 1, BookID: 1, Reason: ReasonRetired})
	record(t, s, conn, Record{CopyID: 2, BookID: 1, Reason: ReasonDeleted, LastCondition: 80})
	record(t, s, conn, Record{CopyID: 3, BookID: 2, Reason: ReasonDeleted, LastCondition: 100})

	copies := func(r ListResult) []int64 {
		out := make([]int64, 0, len(r.Items))
		for _, it := range r.Items {
			out = append(out, it.CopyID)
		}
		return out
	}

	res, err := s.ListDisposals(ctx, DisposalFilter{}, Page{})
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 2, 1}, copies(res))

	book := int64(1)
	res, err = s.ListDisposals(ctx, DisposalFilter{BookID: &book}, Page{Order: "asc"})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, copies(res))

	reason := ReasonDeleted
	res, err = s.ListDisposals(ctx, DisposalFilter{Reason: &reason}, Page{Limit: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Total)
	assert.Equal(t, []int64{3}, copies(res))
	assert.Equal(t, 1, res.NextOffset)

	from := time.Date(2026, 3, 1, 9, 2, 0, 0, time.UTC)
	res, err = s.ListDisposals(ctx, DisposalFilter{From: &from}, Page{Order: "asc"})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, copies(res))
}
