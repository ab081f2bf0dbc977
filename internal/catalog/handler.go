package catalog

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	// books
	r.GET("/books", h.ListBooks)
	r.POST("/books", h.CreateBook)
	r.GET("/books/:id", h.GetBook)
	r.DELETE("/books/:id", h.DeleteBook)

	// masters
	r.GET("/themes", h.listMasters(Themes))
	r.GET("/publishers", h.listMasters(Publishers))
	r.GET("/authors", h.listMasters(Authors))
	r.GET("/keywords", h.listMasters(Keywords))
}

// CreateBook godoc
// @Summary  書籍登録（初期複本を同時作成）
// @Tags     books
// @Accept   json
// @Produce  json
// @Param    body body CreateBookRequest true "book"
// @Success  201 {object} BookResponse
// @Failure  400 {object} errorDTO
// @Failure  409 {object} errorDTO
// @Router   /books [post]
func (h *Handler) CreateBook(c *gin.Context) {
	var req CreateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json"))
		return
	}
	res, err := h.svc.CreateBook(c.Request.Context(), req)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.Header("Location", "/api/v1/books/"+strconv.FormatInt(res.BookID, 10))
	c.JSON(http.StatusCreated, res)
}

// ListBooks godoc
// @Summary  書籍検索（タイトル・テーマ・著者・キーワード）
// @Tags     books
// @Produce  json
// @Param    q            query string false "free text"
// @Param    theme_id     query int    false "theme"
// @Param    publisher_id query int    false "publisher"
// @Param    author_id    query int    false "author"
// @Param    available    query bool   false "only books with an available copy"
// @Param    limit        query int    false "limit"
// @Param    offset       query int    false "offset"
// @Param    order        query string false "asc | desc"
// @Success  200 {object} ListResult
// @Router   /books [get]
func (h *Handler) ListBooks(c *gin.Context) {
	q := BookSearchQuery{Q: c.Query("q")}
	q.ThemeID = queryID(c, "theme_id")
	q.PublisherID = queryID(c, "publisher_id")
	q.AuthorID = queryID(c, "author_id")
	if v := c.Query("available"); v == "true" || v == "1" {
		q.AvailableOnly = true
	}
	p := Page{
		Limit:  atoiDef(c.Query("limit"), 50),
		Offset: atoiDef(c.Query("offset"), 0),
		Order:  strings.ToLower(c.DefaultQuery("order", "asc")),
	}
	res, err := h.svc.ListBooks(c.Request.Context(), q, p)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetBook godoc
// @Summary  書籍取得
// @Tags     books
// @Produce  json
// @Param    id path int true "book id"
// @Success  200 {object} BookResponse
// @Failure  404 {object} errorDTO
// @Router   /books/{id} [get]
func (h *Handler) GetBook(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	res, err := h.svc.GetBook(c.Request.Context(), id)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// DeleteBook godoc
// @Summary  書籍削除（貸出中の複本も削除）
// @Tags     books
// @Produce  json
// @Param    id path int true "book id"
// @Success  200 {object} DeleteBookResponse
// @Failure  404 {object} errorDTO
// @Failure  409 {object} errorDTO
// @Router   /books/{id} [delete]
func (h *Handler) DeleteBook(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	res, err := h.svc.DeleteBook(c.Request.Context(), id)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) listMasters(kind MasterKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := h.svc.ListMasters(c.Request.Context(), kind)
		if err != nil {
			c.JSON(ToHTTPStatus(err), errorFromErr(err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": res, "total": len(res)})
	}
}

// ===== helpers =====

func atoiDef(s string, d int) int {
	if s == "" {
		return d
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
}

func queryID(c *gin.Context, key string) *int64 {
	v := c.Query(key)
	if v == "" {
		return nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil
	}
	return &id
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "id must be a positive integer"))
		return 0, false
	}
	return id, true
}

type errorDTO struct {
	Error struct {
		Code    Code   `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func errorBody(code Code, msg string) errorDTO {
	var e errorDTO
	e.Error.Code = code
	e.Error.Message = msg
	return e
}

func errorFromErr(err error) errorDTO {
	if api, ok := err.(*APIError); ok {
		return errorBody(api.Code, api.Message)
	}
	return errorBody(CodeInternal, err.Error())
}
