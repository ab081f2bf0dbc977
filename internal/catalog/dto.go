package catalog

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/samber/lo"
)

type CreateBookRequest struct {
	// 空なら BK000123 形式で採番
	CatalogCode string   `json:"catalog_code"`
	Title       string   `json:"title" binding:"required"`
	Theme       *string  `json:"theme,omitempty"`
	Publisher   *string  `json:"publisher,omitempty"`
	Poster      *string  `json:"poster,omitempty"`
	Authors     []string `json:"authors"`
	Keywords    []string `json:"keywords"`
	// 初期複本数
	Copies int `json:"copies"`
	// 複本の配置。copies より少なければ循環して割り当てる
	Locations []string `json:"locations,omitempty"`
}

func (r CreateBookRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CatalogCode, validation.Length(0, 32)),
		validation.Field(&r.Title, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.Theme, validation.NilOrNotEmpty, validation.Length(1, 100)),
		validation.Field(&r.Publisher, validation.NilOrNotEmpty, validation.Length(1, 100)),
		validation.Field(&r.Poster, validation.Length(0, 512)),
		validation.Field(&r.Authors, validation.Each(validation.Required, validation.Length(1, 100))),
		validation.Field(&r.Keywords, validation.Each(validation.Required, validation.Length(1, 50))),
		validation.Field(&r.Copies, validation.Min(0), validation.Max(100)),
		validation.Field(&r.Locations, validation.Each(validation.Required, validation.Length(1, 255))),
	)
}

type BookResponse struct {
	BookID          int64     `json:"book_id"`
	CatalogCode     string    `json:"catalog_code"`
	Title           string    `json:"title"`
	ThemeID         *int64    `json:"theme_id,omitempty"`
	Theme           *string   `json:"theme,omitempty"`
	PublisherID     *int64    `json:"publisher_id,omitempty"`
	Publisher       *string   `json:"publisher,omitempty"`
	Poster          *string   `json:"poster,omitempty"`
	Authors         []string  `json:"authors"`
	Keywords        []string  `json:"keywords"`
	TotalCopies     int       `json:"total_copies"`
	AvailableCopies int       `json:"available_copies"`
	CreatedAt       time.Time `json:"created_at"`
}

type ListResult struct {
	Items      []BookResponse `json:"items"`
	Total      int64          `json:"total"`
	NextOffset int            `json:"next_offset"`
}

type DeleteBookResponse struct {
	BookID             int64 `json:"book_id"`
	Deleted            bool  `json:"deleted"`
	DisplacedBorrowers int   `json:"displaced_borrowers"`
}

type MasterResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func toBookResponse(b *Book) BookResponse {
	r := BookResponse{
		BookID:          b.ID,
		CatalogCode:     b.CatalogCode,
		Title:           b.Title,
		Authors:         b.Authors,
		Keywords:        b.Keywords,
		TotalCopies:     b.TotalCopies,
		AvailableCopies: b.AvailableCopies,
		CreatedAt:       b.CreatedAt,
	}
	if b.ThemeID.Valid {
		r.ThemeID = lo.ToPtr(b.ThemeID.Int64)
	}
	if b.ThemeName.Valid {
		r.Theme = lo.ToPtr(b.ThemeName.String)
	}
	if b.PublisherID.Valid {
		r.PublisherID = lo.ToPtr(b.PublisherID.Int64)
	}
	if b.PublisherName.Valid {
		r.Publisher = lo.ToPtr(b.PublisherName.String)
	}
	if b.Poster.Valid {
		r.Poster = lo.ToPtr(b.Poster.String)
	}
	return r
}

func toMasterResponses(ms []Master) []MasterResponse {
	return lo.Map(ms, func(m Master, _ int) MasterResponse { return MasterResponse{ID: m.ID, Name: m.Name} })
}
