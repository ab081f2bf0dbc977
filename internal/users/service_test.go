package users

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"LIBCAT-backend/internal/lending"
	"LIBCAT-backend/internal/platform/dbtest"
)

type fakeReleaser struct {
	calls []int64
	err   error
	n     int
	// 解放直後、行削除の前に走る
	after func(userID int64)
}

func (f *fakeReleaser) ReleaseUser(_ context.Context, userID int64) (int, error) {
	f.calls = append(f.calls, userID)
	if f.after != nil {
		f.after(userID)
	}
	return f.n, f.err
}

func validRegister() RegisterRequest {
	return RegisterRequest{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Age:       36,
		State:     StatePro,
		Username:  "ada",
		Email:     " Ada@Example.com ",
		Password:  "engine42",
		Address:   "London",
		Phone:     "0123",
	}
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.Open(t)
	svc := NewService(conn, &fakeReleaser{}, nil)

	res, err := svc.Register(ctx, validRegister())
	require.NoError(t, err)
	assert.NotZero(t, res.UserID)
	assert.Equal(t, "ada@example.com", res.Email)
	assert.Equal(t, RoleUser, res.Role)

	stored, err := svc.store.GetByID(ctx, res.UserID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("engine42")))

	_, err = svc.Register(ctx, validRegister())
	assert.Equal(t, http.StatusConflict, ToHTTPStatus(err))

	ok, err := NewDirectory(conn).UserExists(ctx, res.UserID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRegister_Validation(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(conn, &fakeReleaser{}, nil)
	bad := RoleUser + "x"

	tests := []struct {
		name   string
		mutate func(r *RegisterRequest)
	}{
		{"bad state", func(r *RegisterRequest) { r.State = "retired" }},
		{"bad email", func(r *RegisterRequest) { r.Email = "nope" }},
		{"short password", func(r *RegisterRequest) { r.Password = "abc" }},
		{"negative age", func(r *RegisterRequest) { r.Age = -1 }},
		{"unknown role", func(r *RegisterRequest) { r.Role = &bad }},
		{"missing name", func(r *RegisterRequest) { r.FirstName = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validRegister()
			tt.mutate(&in)
			_, err := svc.Register(context.Background(), in)
			assert.Equal(t, http.StatusBadRequest, ToHTTPStatus(err))
		})
	}
}

func TestDeleteUser(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.Open(t)
	rel := &fakeReleaser{n: 2}
	svc := NewService(conn, rel, nil)

	u, err := svc.Register(ctx, validRegister())
	require.NoError(t, err)

	res, err := svc.DeleteUser(ctx, u.UserID)
	require.NoError(t, err)
	assert.True(t, res.Deleted)
	assert.Equal(t, 2, res.CancelledRequests)
	assert.Equal(t, []int64{u.UserID}, rel.calls)

	_, err = svc.GetUser(ctx, u.UserID)
	assert.Equal(t, http.StatusNotFound, ToHTTPStatus(err))
	_, err = svc.DeleteUser(ctx, u.UserID)
	assert.Equal(t, http.StatusNotFound, ToHTTPStatus(err))
}

func TestDeleteUser_StillBorrowing(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.Open(t)
	svc := NewService(conn, &fakeReleaser{err: lending.ErrConflict("user 1 still holds 1 copies")}, nil)

	u, err := svc.Register(ctx, validRegister())
	require.NoError(t, err)

	_, err = svc.DeleteUser(ctx, u.UserID)
	assert.Equal(t, http.StatusConflict, ToHTTPStatus(err))

	_, err = svc.GetUser(ctx, u.UserID)
	assert.NoError(t, err)
}

func TestDeleteUser_BorrowAfterRelease(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.Open(t)
	bookID := dbtest.InsertBook(t, conn, "late")
	rel := &fakeReleaser{after: func(userID int64) {
		_, err := conn.Exec(`INSERT INTO book_copies (book_id, location, is_available, borrower_id, created_at)
		VALUES (?, 'A-1', 0, ?, ?)`, bookID, userID, time.Now().UTC())
		require.NoError(t, err)
	}}
	svc := NewService(conn, rel, nil)

	u, err := svc.Register(ctx, validRegister())
	require.NoError(t, err)

	_, err = svc.DeleteUser(ctx, u.UserID)
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, ToHTTPStatus(err))

	_, err = svc.GetUser(ctx, u.UserID)
	assert.NoError(t, err)
}

func TestListUsers(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.Open(t)
	svc := NewService(conn, &fakeReleaser{}, nil)
	for _, name := range []string{"a", "b", "c"} {
		in := validRegister()
		in.Username = name
		in.Email = name + "@example.com"
		_, err := svc.Register(ctx, in)
		require.NoError(t, err)
	}

	res, err := svc.ListUsers(ctx, Page{Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, res.Total)
	assert.Len(t, res.Items, 2)
	assert.Equal(t, 2, res.NextOffset)

	res, err = svc.ListUsers(ctx, Page{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, res.Items, 1)
	assert.Zero(t, res.NextOffset)
}
