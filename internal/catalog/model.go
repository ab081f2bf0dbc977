package catalog

import (
	"database/sql"
	"time"
)

// Book は一覧・詳細共通の行。複本数はサブクエリで集計する
type Book struct {
	ID              int64          `db:"id"`
	CatalogCode     string         `db:"catalog_code"`
	Title           string         `db:"title"`
	ThemeID         sql.NullInt64  `db:"theme_id"`
	ThemeName       sql.NullString `db:"theme_name"`
	PublisherID     sql.NullInt64  `db:"publisher_id"`
	PublisherName   sql.NullString `db:"publisher_name"`
	Poster          sql.NullString `db:"poster"`
	CreatedAt       time.Time      `db:"created_at"`
	TotalCopies     int            `db:"total_copies"`
	AvailableCopies int            `db:"available_copies"`

	Authors  []string `db:"-"`
	Keywords []string `db:"-"`
}

type Master struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

// MasterKind はマスタテーブルの種別
type MasterKind string

const (
	Themes     MasterKind = "themes"
	Publishers MasterKind = "publishers"
	Authors    MasterKind = "authors"
	Keywords   MasterKind = "keywords"
)

func (k MasterKind) table() string { return string(k) }

func (k MasterKind) column() string {
	if k == Keywords {
		return "word"
	}
	return "name"
}

type BookSearchQuery struct {
	Q             string
	ThemeID       *int64
	PublisherID   *int64
	AuthorID      *int64
	AvailableOnly bool
}

type Page struct {
	Limit  int
	Offset int
	Order  string
}
