package disposals

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.GET("/disposals", h.ListDisposals)
	r.GET("/disposals/:id", h.GetDisposal)
}

// ListDisposals godoc
// @Summary  廃棄履歴一覧
// @Tags     disposals
// @Produce  json
// @Param    book_id query int    false "book id"
// @Param    copy_id query int    false "copy id"
// @Param    reason  query string false "retired | deleted"
// @Param    from    query string false "RFC3339"
// @Param    to      query string false "RFC3339"
// @Param    limit   query int    false "limit"
// @Param    offset  query int    false "offset"
// @Param    order   query string false "asc | desc"
// @Success  200 {object} ListResult
// @Router   /disposals [get]
func (h *Handler) ListDisposals(c *gin.Context) {
	f := DisposalFilter{}
	if v := c.Query("book_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.BookID = &id
		}
	}
	if v := c.Query("copy_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.CopyID = &id
		}
	}
	if v := c.Query("reason"); v != "" {
		r := Reason(v)
		f.Reason = &r
	}
	if v := c.Query("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.From = &t
		}
	}
	if v := c.Query("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.To = &t
		}
	}
	p := Page{
		Limit:  parseIntDefault(c.Query("limit"), 50),
		Offset: parseIntDefault(c.Query("offset"), 0),
		Order:  c.DefaultQuery("order", "desc"),
	}
	res, err := h.svc.ListDisposals(c.Request.Context(), f, p)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetDisposal godoc
// @Summary  廃棄履歴取得（ID or ULID）
// @Tags     disposals
// @Produce  json
// @Param    id path string true "disposal id or ULID"
// @Success  200 {object} DisposalResponse
// @Failure  404 {object} errorDTO
// @Router   /disposals/{id} [get]
func (h *Handler) GetDisposal(c *gin.Context) {
	res, err := h.svc.GetDisposalByKey(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// ---------- helpers ----------

func parseIntDefault(s string, d int) int {
	if s == "" {
		return d
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
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
	var msg string
	var code Code = CodeInternal
	if api, ok := err.(*APIError); ok {
		code, msg = api.Code, api.Message
	} else {
		msg = err.Error()
	}
	return errorBody(code, msg)
}
