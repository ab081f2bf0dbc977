package lending

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LIBCAT-backend/internal/platform/db"
	"LIBCAT-backend/internal/platform/dbtest"
)

func TestCopyStore_CRUD(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.Open(t)
	book := dbtest.InsertBook(t, conn, "solaris")
	user := dbtest.InsertUser(t, conn, "kelvin")
	s := NewCopyStore(db.SQLite)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	c, err := s.Create(ctx, conn, book, "shelf-3", sql.NullInt64{}, now)
	require.NoError(t, err)
	assert.True(t, c.Available)
	assert.Equal(t, MaxCondition, c.Condition)
	assert.False(t, c.PublisherID.Valid)

	due := now.Add(time.Hour)
	got, err := s.Update(ctx, conn, c.CopyID, CopyUpdate{
		Available: lo.ToPtr(false),
		HolderID:  &sql.NullInt64{Int64: user, Valid: true},
		DueAt:     &sql.NullTime{Time: due, Valid: true},
	})
	require.NoError(t, err)
	assert.False(t, got.Available)
	assert.Equal(t, user, got.HolderID.Int64)
	assert.True(t, got.DueAt.Time.Equal(due))
	assert.Equal(t, "shelf-3", got.Location, "untouched fields keep their value")

	held, err := s.ListByHolder(ctx, conn, user)
	require.NoError(t, err)
	assert.Len(t, held, 1)

	got, err = s.Update(ctx, conn, c.CopyID, CopyUpdate{HolderID: &sql.NullInt64{}, DueAt: &sql.NullTime{}})
	require.NoError(t, err)
	assert.False(t, got.HolderID.Valid)
	assert.False(t, got.DueAt.Valid)

	_, err = s.Update(ctx, conn, c.CopyID, CopyUpdate{Condition: lo.ToPtr(101)})
	assert.Equal(t, CodeInvalidArgument, CodeOf(err))

	ok, err := s.Delete(ctx, conn, c.CopyID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Delete(ctx, conn, c.CopyID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Get(ctx, conn, c.CopyID)
	assert.Equal(t, CodeNotFound, CodeOf(err))
	_, err = s.Update(ctx, conn, c.CopyID, CopyUpdate{Location: lo.ToPtr("x")})
	assert.Equal(t, CodeNotFound, CodeOf(err))
}

func TestWaitlistStore_Queue(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.Open(t)
	book := dbtest.InsertBook(t, conn, "roadside")
	users := []int64{
		dbtest.InsertUser(t, conn, "red"),
		dbtest.InsertUser(t, conn, "kirill"),
		dbtest.InsertUser(t, conn, "guta"),
	}
	copies := NewCopyStore(db.SQLite)
	s := NewWaitlistStore(db.SQLite)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	c, err := copies.Create(ctx, conn, book, "A", sql.NullInt64{}, now)
	require.NoError(t, err)

	head, err := s.DequeueHead(ctx, conn, c.CopyID)
	require.NoError(t, err)
	assert.Nil(t, head, "empty queue has no head")

	ids := []string{"01J0000000000000000000000A", "01J0000000000000000000000B", "01J0000000000000000000000C"}
	for i, u := range users {
		e, err := s.Enqueue(ctx, conn, c.CopyID, u, ids[i], now)
		require.NoError(t, err)
		assert.Equal(t, i+1, e.Position)
		assert.Equal(t, book, e.BookID)
	}
	_, err = s.Enqueue(ctx, conn, c.CopyID, users[0], "01J0000000000000000000000D", now)
	assert.Equal(t, CodeConflict, CodeOf(err))

	n, err := s.CountWaiting(ctx, conn, c.CopyID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	head, err = s.DequeueHead(ctx, conn, c.CopyID)
	require.NoError(t, err)
	require.NotNil(t, head)
	assert.Equal(t, users[0], head.UserID)

	rest, err := s.ListByCopy(ctx, conn, c.CopyID)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, []int{1, 2}, lo.Map(rest, func(e WaitlistEntry, _ int) int { return e.Position }))
	assert.Equal(t, []int64{users[1], users[2]}, lo.Map(rest, func(e WaitlistEntry, _ int) int64 { return e.UserID }))

	byULID, err := s.GetByULID(ctx, conn, ids[2])
	require.NoError(t, err)
	assert.Equal(t, 2, byULID.Position)

	dropped, err := s.RemoveAllForCopy(ctx, conn, c.CopyID)
	require.NoError(t, err)
	assert.Equal(t, 2, dropped)
}

func TestWaitlistStore_CascadeOnCopyDelete(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.Open(t)
	book := dbtest.InsertBook(t, conn, "picnic")
	user := dbtest.InsertUser(t, conn, "noonan")
	copies := NewCopyStore(db.SQLite)
	s := NewWaitlistStore(db.SQLite)
	now := time.Now().UTC()

	c, err := copies.Create(ctx, conn, book, "A", sql.NullInt64{}, now)
	require.NoError(t, err)
	_, err = s.Enqueue(ctx, conn, c.CopyID, user, "01J0000000000000000000000E", now)
	require.NoError(t, err)

	_, err = copies.Delete(ctx, conn, c.CopyID)
	require.NoError(t, err)
	left, err := s.ListByUser(ctx, conn, user)
	require.NoError(t, err)
	assert.Empty(t, left)
}
