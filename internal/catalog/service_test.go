package catalog

import (
	"context"
	"database/sql"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LIBCAT-backend/internal/disposals"
	"LIBCAT-backend/internal/lending"
	"LIBCAT-backend/internal/platform/db"
	"LIBCAT-backend/internal/platform/dbtest"
	"LIBCAT-backend/internal/users"
)

type fixture struct {
	conn *sql.DB
	svc  *Service
	m    *lending.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	m := lending.NewManager(conn, db.SQLite,
		NewDirectory(conn, db.SQLite),
		users.NewDirectory(conn),
		disposals.NewService(conn, nil))
	return &fixture{conn: conn, svc: NewService(conn, db.SQLite, m, nil), m: m}
}

func dune() CreateBookRequest {
	return CreateBookRequest{
		Title:     "  Dune ",
		Theme:     lo.ToPtr("SF"),
		Publisher: lo.ToPtr("Chilton"),
		Authors:   []string{"Frank Herbert", "Ｆｒａｎｋ　Ｈｅｒｂｅｒｔ", ""},
		Keywords:  []string{"Desert", "desert", "Spice"},
		Copies:    3,
		Locations: []string{"A-1", "B-2"},
	}
}

func TestCreateBook(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	b, err := f.svc.CreateBook(ctx, dune())
	require.NoError(t, err)
	assert.Equal(t, "BK000001", b.CatalogCode)
	assert.Equal(t, "Dune", b.Title)
	assert.Equal(t, "SF", *b.Theme)
	assert.Equal(t, "Chilton", *b.Publisher)
	assert.Equal(t, []string{"Frank Herbert"}, b.Authors)
	assert.Equal(t, []string{"desert", "spice"}, b.Keywords)
	assert.Equal(t, 3, b.TotalCopies)
	assert.Equal(t, 3, b.AvailableCopies)

	copies, err := f.m.ListCopies(ctx, b.BookID)
	require.NoError(t, err)
	locs := lo.Map(copies, func(c lending.Copy, _ int) string { return c.Location })
	assert.Equal(t, []string{"A-1", "B-2", "A-1"}, locs)
	for _, c := range copies {
		assert.Equal(t, *b.PublisherID, c.PublisherID.Int64)
		assert.Equal(t, lending.MaxCondition, c.Condition)
	}

	// マスタは共有される
	other := dune()
	other.Title = "Dune Messiah"
	other.Copies = 0
	other.Locations = nil
	_, err = f.svc.CreateBook(ctx, other)
	require.NoError(t, err)
	authors, err := f.svc.ListMasters(ctx, Authors)
	require.NoError(t, err)
	assert.Len(t, authors, 1)
}

func TestCreateBook_DefaultLocation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	b, err := f.svc.CreateBook(ctx, CreateBookRequest{Title: "Emma", CatalogCode: "EM-1", Copies: 2})
	require.NoError(t, err)
	assert.Equal(t, "EM-1", b.CatalogCode)
	assert.Nil(t, b.Theme)
	assert.Empty(t, b.Authors)

	copies, err := f.m.ListCopies(ctx, b.BookID)
	require.NoError(t, err)
	require.Len(t, copies, 2)
	assert.Equal(t, DefaultLocation, copies[0].Location)
	assert.False(t, copies[0].PublisherID.Valid)
}

func TestCreateBook_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.CreateBook(ctx, CreateBookRequest{Title: "Emma", CatalogCode: "EM-1"})
	require.NoError(t, err)

	tests := []struct {
		name string
		in   CreateBookRequest
		want int
	}{
		{"blank title", CreateBookRequest{Title: "   "}, 400},
		{"negative copies", CreateBookRequest{Title: "X", Copies: -1}, 400},
		{"too many copies", CreateBookRequest{Title: "X", Copies: 101}, 400},
		{"empty theme", CreateBookRequest{Title: "X", Theme: lo.ToPtr("")}, 400},
		{"duplicate code", CreateBookRequest{Title: "Emma 2", CatalogCode: "EM-1"}, 409},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateBook(ctx, tt.in)
			require.Error(t, err)
			assert.Equal(t, tt.want, ToHTTPStatus(err))
		})
	}

	// 失敗した登録は何も残さない
	res, err := f.svc.ListBooks(ctx, BookSearchQuery{}, Page{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Total)
}

func TestListBooks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d, err := f.svc.CreateBook(ctx, dune())
	require.NoError(t, err)
	emma, err := f.svc.CreateBook(ctx, CreateBookRequest{Title: "Emma", Authors: []string{"Jane Austen"}, Copies: 1})
	require.NoError(t, err)
	_, err = f.svc.CreateBook(ctx, CreateBookRequest{Title: "Persuasion", Authors: []string{"Jane Austen"}})
	require.NoError(t, err)

	titles := func(r ListResult) []string {
		return lo.Map(r.Items, func(b BookResponse, _ int) string { return b.Title })
	}

	res, err := f.svc.ListBooks(ctx, BookSearchQuery{Q: "austen"}, Page{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Emma", "Persuasion"}, titles(res))

	res, err = f.svc.ListBooks(ctx, BookSearchQuery{Q: "SPICE"}, Page{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Dune"}, titles(res))

	res, err = f.svc.ListBooks(ctx, BookSearchQuery{ThemeID: d.ThemeID}, Page{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Dune"}, titles(res))

	// 唯一の複本を貸し出すと在庫ありから外れる
	copies, err := f.m.ListCopies(ctx, emma.BookID)
	require.NoError(t, err)
	uid := dbtest.InsertUser(t, f.conn, "reader")
	_, err = f.m.Borrow(ctx, copies[0].CopyID, lending.BorrowInput{UserID: uid})
	require.NoError(t, err)

	res, err = f.svc.ListBooks(ctx, BookSearchQuery{AvailableOnly: true}, Page{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Dune"}, titles(res))

	res, err = f.svc.ListBooks(ctx, BookSearchQuery{}, Page{Limit: 2, Order: "desc"})
	require.NoError(t, err)
	assert.EqualValues(t, 3, res.Total)
	assert.Equal(t, []string{"Persuasion", "Emma"}, titles(res))
	assert.Equal(t, 2, res.NextOffset)
}

func TestDeleteBook(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b, err := f.svc.CreateBook(ctx, dune())
	require.NoError(t, err)

	copies, err := f.m.ListCopies(ctx, b.BookID)
	require.NoError(t, err)
	holder := dbtest.InsertUser(t, f.conn, "holder")
	waiter := dbtest.InsertUser(t, f.conn, "waiter")
	_, err = f.m.Borrow(ctx, copies[0].CopyID, lending.BorrowInput{UserID: holder})
	require.NoError(t, err)
	_, err = f.m.Request(ctx, copies[0].CopyID, lending.RequestInput{UserID: waiter})
	require.NoError(t, err)

	res, err := f.svc.DeleteBook(ctx, b.BookID)
	require.NoError(t, err)
	assert.True(t, res.Deleted)
	assert.Equal(t, 1, res.DisplacedBorrowers)

	_, err = f.svc.GetBook(ctx, b.BookID)
	assert.Equal(t, 404, ToHTTPStatus(err))
	_, err = f.svc.DeleteBook(ctx, b.BookID)
	assert.Equal(t, 404, ToHTTPStatus(err))

	var n int
	require.NoError(t, f.conn.QueryRow(`SELECT COUNT(*) FROM copy_disposals WHERE book_id = ? AND reason = 'deleted'`, b.BookID).Scan(&n))
	assert.Equal(t, 3, n)
	reqs, err := f.m.ListRequestsByUser(ctx, waiter)
	require.NoError(t, err)
	assert.Empty(t, reqs)
}

func TestCreateBook_DropsBlankEntries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	b, err := f.svc.CreateBook(ctx, CreateBookRequest{
		Title:     "Emma",
		Authors:   []string{" ", "Jane  Austen", "Jane Austen"},
		Keywords:  []string{"", "Classic"},
		Locations: []string{"", " ", "Shelf 1"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Jane Austen"}, b.Authors)
	assert.Equal(t, []string{"classic"}, b.Keywords)
	assert.Equal(t, 1, b.TotalCopies)

	copies, err := f.m.ListCopies(ctx, b.BookID)
	require.NoError(t, err)
	require.Len(t, copies, 1)
	assert.Equal(t, "Shelf 1", copies[0].Location)
}

// addsCopyOnDelete adds a copy right after the lending manager cleared the book,
// as a concurrent AddCopy would.
type addsCopyOnDelete struct {
	*lending.Manager
	added *lending.Copy
}

func (a *addsCopyOnDelete) DeleteCopiesOfBook(ctx context.Context, bookID int64) (int, error) {
	n, err := a.Manager.DeleteCopiesOfBook(ctx, bookID)
	if err != nil {
		return n, err
	}
	a.added, err = a.Manager.AddCopy(ctx, bookID, lending.AddCopyInput{Location: "late"})
	return n, err
}

func TestDeleteBook_CopyAddedDuringDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	racing := &addsCopyOnDelete{Manager: f.m}
	svc := NewService(f.conn, db.SQLite, racing, nil)

	b, err := svc.CreateBook(ctx, CreateBookRequest{Title: "Emma", Copies: 2})
	require.NoError(t, err)

	_, err = svc.DeleteBook(ctx, b.BookID)
	require.Error(t, err)
	assert.Equal(t, 409, ToHTTPStatus(err))

	// 後から来た複本は黙って消えない
	require.NotNil(t, racing.added)
	got, err := f.m.GetCopy(ctx, racing.added.CopyID)
	require.NoError(t, err)
	assert.Equal(t, b.BookID, got.BookID)
	_, err = svc.GetBook(ctx, b.BookID)
	assert.NoError(t, err)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "Frank Herbert", normalizeName(" Ｆｒａｎｋ \t Herbert "))
	assert.Equal(t, normalizeKeyword("STRASSE"), normalizeKeyword("Straße"))
	assert.Equal(t, []string{"a", "b"}, normalizeAll([]string{"a", " ", "A", "b"}, normalizeKeyword))
}
