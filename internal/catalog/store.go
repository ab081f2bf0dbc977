package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"   // dialect
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3" // dialect
	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"

	"LIBCAT-backend/internal/platform/db"
)

// Store: 読み取りは sqlx、クエリ組み立ては goqu。書き込みは呼び出し側の Tx で行う
type Store struct {
	x  *sqlx.DB
	gq goqu.DialectWrapper
}

func NewStore(conn *sql.DB, d db.Dialect) *Store {
	return &Store{
		x:  sqlx.NewDb(conn, string(d)),
		gq: goqu.Dialect(string(d)),
	}
}

func (s *Store) bookSelect() *goqu.SelectDataset {
	return s.gq.From(goqu.T("books").As("b")).
		LeftJoin(goqu.T("themes").As("t"), goqu.On(goqu.I("t.id").Eq(goqu.I("b.theme_id")))).
		LeftJoin(goqu.T("publishers").As("p"), goqu.On(goqu.I("p.id").Eq(goqu.I("b.publisher_id")))).
		Prepared(true)
}

var bookColumns = []any{
	goqu.I("b.id"),
	goqu.I("b.catalog_code"),
	goqu.I("b.title"),
	goqu.I("b.theme_id"),
	goqu.I("t.name").As("theme_name"),
	goqu.I("b.publisher_id"),
	goqu.I("p.name").As("publisher_name"),
	goqu.I("b.poster"),
	goqu.I("b.created_at"),
	goqu.L("(SELECT COUNT(*) FROM book_copies c WHERE c.book_id = b.id)").As("total_copies"),
	goqu.L("(SELECT COUNT(*) FROM book_copies c WHERE c.book_id = b.id AND c.is_available = 1)").As("available_copies"),
}

func applySearch(ds *goqu.SelectDataset, q BookSearchQuery) *goqu.SelectDataset {
	if v := strings.TrimSpace(q.Q); v != "" {
		pat := "%" + v + "%"
		ds = ds.Where(goqu.Or(
			goqu.I("b.title").ILike(pat),
			goqu.I("t.name").ILike(pat),
			goqu.L("EXISTS (SELECT 1 FROM book_authors ba JOIN authors a ON a.id = ba.author_id WHERE ba.book_id = b.id AND a.name LIKE ?)", pat),
			goqu.L("EXISTS (SELECT 1 FROM book_keywords bk JOIN keywords k ON k.id = bk.keyword_id WHERE bk.book_id = b.id AND k.word LIKE ?)", normalizeKeyword(pat)),
		))
	}
	if q.ThemeID != nil {
		ds = ds.Where(goqu.I("b.theme_id").Eq(*q.ThemeID))
	}
	if q.PublisherID != nil {
		ds = ds.Where(goqu.I("b.publisher_id").Eq(*q.PublisherID))
	}
	if q.AuthorID != nil {
		ds = ds.Where(goqu.L("EXISTS (SELECT 1 FROM book_authors ba WHERE ba.book_id = b.id AND ba.author_id = ?)", *q.AuthorID))
	}
	if q.AvailableOnly {
		ds = ds.Where(goqu.L("EXISTS (SELECT 1 FROM book_copies c WHERE c.book_id = b.id AND c.is_available = 1)"))
	}
	return ds
}

func (s *Store) ListBooks(ctx context.Context, q BookSearchQuery, p Page) ([]Book, int64, error) {
	filtered := applySearch(s.bookSelect(), q)

	countSQL, countArgs, err := filtered.Select(goqu.COUNT(goqu.Star())).ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build count query: %w", err)
	}
	var total int64
	if err := s.x.GetContext(ctx, &total, countSQL, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count books: %w", err)
	}

	order := goqu.I("b.id").Asc()
	if strings.ToLower(p.Order) == "desc" {
		order = goqu.I("b.id").Desc()
	}
	listSQL, args, err := filtered.Select(bookColumns...).
		Order(order).
		Limit(uint(p.Limit)).
		Offset(uint(p.Offset)).
		ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build list query: %w", err)
	}
	books := []Book{}
	if err := s.x.SelectContext(ctx, &books, listSQL, args...); err != nil {
		return nil, 0, fmt.Errorf("list books: %w", err)
	}
	if err := s.attachNames(ctx, books); err != nil {
		return nil, 0, err
	}
	return books, total, nil
}

func (s *Store) GetBook(ctx context.Context, id int64) (*Book, error) {
	query, args, err := s.bookSelect().Select(bookColumns...).Where(goqu.I("b.id").Eq(id)).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get query: %w", err)
	}
	var b Book
	if err := s.x.GetContext(ctx, &b, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound("book not found")
		}
		return nil, fmt.Errorf("get book %d: %w", id, err)
	}
	one := []Book{b}
	if err := s.attachNames(ctx, one); err != nil {
		return nil, err
	}
	return &one[0], nil
}

func (s *Store) BookExists(ctx context.Context, id int64) (bool, error) {
	var n int
	if err := s.x.GetContext(ctx, &n, `SELECT COUNT(*) FROM books WHERE id = ?`, id); err != nil {
		return false, fmt.Errorf("check book %d: %w", id, err)
	}
	return n > 0, nil
}

type bookName struct {
	BookID int64  `db:"book_id"`
	Name   string `db:"name"`
}

// attachNames は著者とキーワードをまとめて引いて埋める
func (s *Store) attachNames(ctx context.Context, books []Book) error {
	if len(books) == 0 {
		return nil
	}
	ids := lo.Map(books, func(b Book, _ int) int64 { return b.ID })
	authors, err := s.namesByBook(ctx, "book_authors", "author_id", Authors, ids)
	if err != nil {
		return err
	}
	keywords, err := s.namesByBook(ctx, "book_keywords", "keyword_id", Keywords, ids)
	if err != nil {
		return err
	}
	for i := range books {
		books[i].Authors = append([]string{}, authors[books[i].ID]...)
		books[i].Keywords = append([]string{}, keywords[books[i].ID]...)
	}
	return nil
}

func (s *Store) namesByBook(ctx context.Context, link, fk string, kind MasterKind, ids []int64) (map[int64][]string, error) {
	query, args, err := sqlx.In(fmt.Sprintf(
		`SELECT l.book_id, m.%[1]s AS name FROM %[2]s l JOIN %[3]s m ON m.id = l.%[4]s WHERE l.book_id IN (?) ORDER BY m.%[1]s`,
		kind.column(), link, kind.table(), fk), ids)
	if err != nil {
		return nil, err
	}
	var rows []bookName
	if err := s.x.SelectContext(ctx, &rows, s.x.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("load %s: %w", kind, err)
	}
	grouped := lo.GroupBy(rows, func(r bookName) int64 { return r.BookID })
	return lo.MapValues(grouped, func(rs []bookName, _ int64) []string {
		return lo.Map(rs, func(r bookName, _ int) string { return r.Name })
	}), nil
}

func (s *Store) ListMasters(ctx context.Context, kind MasterKind) ([]Master, error) {
	query, args, err := s.gq.From(kind.table()).
		Select(goqu.C("id"), goqu.C(kind.column()).As("name")).
		Order(goqu.C(kind.column()).Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, err
	}
	out := []Master{}
	if err := s.x.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	return out, nil
}

// ---- writes (Tx) ----

// EnsureMaster は名前で引き、無ければ作って id を返す
func (s *Store) EnsureMaster(ctx context.Context, tx db.DBTX, kind MasterKind, name string) (int64, error) {
	ins, args, err := s.gq.Insert(kind.table()).
		Prepared(true).
		Rows(goqu.Record{kind.column(): name}).
		OnConflict(goqu.DoNothing()).
		ToSQL()
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, ins, args...); err != nil {
		return 0, fmt.Errorf("insert %s: %w", kind, err)
	}
	sel, args, err := s.gq.From(kind.table()).
		Select("id").
		Where(goqu.C(kind.column()).Eq(name)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return 0, err
	}
	var id int64
	if err := tx.QueryRowContext(ctx, sel, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("resolve %s %q: %w", kind, name, err)
	}
	return id, nil
}

type newBook struct {
	CatalogCode string
	Title       string
	ThemeID     sql.NullInt64
	PublisherID sql.NullInt64
	Poster      sql.NullString
	CreatedAt   time.Time
}

func (s *Store) InsertBook(ctx context.Context, tx db.DBTX, b newBook) (int64, error) {
	query, args, err := s.gq.Insert("books").
		Prepared(true).
		Rows(goqu.Record{
			"catalog_code": b.CatalogCode,
			"title":        b.Title,
			"theme_id":     b.ThemeID,
			"publisher_id": b.PublisherID,
			"poster":       b.Poster,
			"created_at":   b.CreatedAt.UTC(),
		}).
		ToSQL()
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		if db.IsDuplicate(err) {
			return 0, ErrConflict("catalog code already exists")
		}
		return 0, fmt.Errorf("insert book: %w", err)
	}
	return res.LastInsertId()
}

// SetCatalogCode は仮コードを採番後のコードへ置き換える
func (s *Store) SetCatalogCode(ctx context.Context, tx db.DBTX, id int64, code string) error {
	query, args, err := s.gq.Update("books").
		Prepared(true).
		Set(goqu.Record{"catalog_code": code}).
		Where(goqu.C("id").Eq(id)).
		ToSQL()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		if db.IsDuplicate(err) {
			return ErrConflict("catalog code already exists")
		}
		return fmt.Errorf("set catalog code: %w", err)
	}
	return nil
}

func (s *Store) Link(ctx context.Context, tx db.DBTX, link, fk string, bookID int64, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	rows := lo.Map(ids, func(id int64, _ int) any {
		return goqu.Record{"book_id": bookID, fk: id}
	})
	query, args, err := s.gq.Insert(link).Prepared(true).Rows(rows...).ToSQL()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("link %s: %w", link, err)
	}
	return nil
}

func (s *Store) DeleteBook(ctx context.Context, id int64) (int64, error) {
	res, err := s.x.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id)
	if err != nil {
		if db.IsForeignKey(err) {
			// 複本の削除後に別の複本が追加された
			return 0, ErrConflict("book still has copies")
		}
		return 0, fmt.Errorf("delete book %d: %w", id, err)
	}
	return res.RowsAffected()
}
