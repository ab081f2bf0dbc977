package lending

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type Handler struct{ m *Manager }

func RegisterRoutes(r gin.IRoutes, m *Manager) {
	h := &Handler{m: m}

	// 複本
	r.GET("/books/:id/copies", h.ListCopies)
	r.POST("/books/:id/copies", h.AddCopy)
	r.GET("/copies/:id", h.GetCopy)
	r.PATCH("/copies/:id", h.UpdateCopy)
	r.DELETE("/copies/:id", h.DeleteCopy)

	// 貸出・返却
	r.POST("/copies/:id/borrow", h.Borrow)
	r.POST("/copies/:id/return", h.Return)

	// 予約待ち
	r.GET("/copies/:id/requests", h.ListRequestsByCopy)
	r.POST("/copies/:id/requests", h.CreateRequest)
	r.GET("/requests/:id", h.GetRequest)
	r.DELETE("/requests/:id", h.CancelRequest)
	r.POST("/requests/:id/cancel", h.CancelRequest) // 旧クライアント互換

	// ユーザー単位
	r.GET("/users/:id/borrowed", h.ListBorrowedByUser)
	r.GET("/users/:id/requests", h.ListRequestsByUser)
}

// ---------- handlers ----------

// ListCopies godoc
// @Summary  書籍の複本一覧
// @Tags     copies
// @Produce  json
// @Param    id path int true "book id"
// @Success  200 {object} CopyList
// @Failure  404 {object} errorDTO
// @Router   /books/{id}/copies [get]
func (h *Handler) ListCopies(c *gin.Context) {
	bookID, ok := pathID(c)
	if !ok {
		return
	}
	res, err := h.m.ListCopies(c.Request.Context(), bookID)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, toCopyList(res))
}

// AddCopy godoc
// @Summary  複本追加
// @Tags     copies
// @Accept   json
// @Produce  json
// @Param    id   path int            true "book id"
// @Param    body body AddCopyRequest true "copy"
// @Success  201 {object} CopyResponse
// @Failure  400 {object} errorDTO
// @Failure  404 {object} errorDTO
// @Router   /books/{id}/copies [post]
func (h *Handler) AddCopy(c *gin.Context) {
	bookID, ok := pathID(c)
	if !ok {
		return
	}
	var req AddCopyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json"))
		return
	}
	res, err := h.m.AddCopy(c.Request.Context(), bookID, AddCopyInput{Location: req.Location, PublisherID: req.PublisherID})
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.Header("Location", "/api/v1/copies/"+strconv.FormatInt(res.CopyID, 10))
	c.JSON(http.StatusCreated, toCopyResponse(res))
}

// GetCopy godoc
// @Summary  複本取得
// @Tags     copies
// @Produce  json
// @Param    id path int true "copy id"
// @Success  200 {object} CopyResponse
// @Failure  404 {object} errorDTO
// @Router   /copies/{id} [get]
func (h *Handler) GetCopy(c *gin.Context) {
	copyID, ok := pathID(c)
	if !ok {
		return
	}
	res, err := h.m.GetCopy(c.Request.Context(), copyID)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, toCopyResponse(res))
}

// UpdateCopy godoc
// @Summary  複本の配置・出版社を変更
// @Tags     copies
// @Accept   json
// @Produce  json
// @Param    id   path int               true "copy id"
// @Param    body body UpdateCopyRequest true "fields"
// @Success  200 {object} CopyResponse
// @Router   /copies/{id} [patch]
func (h *Handler) UpdateCopy(c *gin.Context) {
	copyID, ok := pathID(c)
	if !ok {
		return
	}
	var req UpdateCopyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json"))
		return
	}
	res, err := h.m.UpdateCopyDetails(c.Request.Context(), copyID, UpdateCopyInput{Location: req.Location, PublisherID: req.PublisherID})
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, toCopyResponse(res))
}

// DeleteCopy godoc
// @Summary  複本削除（貸出中でも削除）
// @Tags     copies
// @Produce  json
// @Param    id path int true "copy id"
// @Success  200 {object} DeleteCopyResponse
// @Failure  404 {object} errorDTO
// @Router   /copies/{id} [delete]
func (h *Handler) DeleteCopy(c *gin.Context) {
	copyID, ok := pathID(c)
	if !ok {
		return
	}
	res, err := h.m.DeleteCopy(c.Request.Context(), copyID)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, DeleteCopyResponse{
		CopyID:             res.CopyID,
		BookID:             res.BookID,
		Deleted:            true,
		DisplacedBorrowers: res.DisplacedBorrowers,
		DroppedRequests:    res.DroppedRequests,
	})
}

// Borrow godoc
// @Summary  貸出
// @Tags     lending
// @Accept   json
// @Produce  json
// @Param    id   path int           true "copy id"
// @Param    body body BorrowRequest true "borrower"
// @Success  200 {object} CopyResponse
// @Failure  400 {object} errorDTO
// @Failure  404 {object} errorDTO
// @Failure  409 {object} errorDTO
// @Router   /copies/{id}/borrow [post]
func (h *Handler) Borrow(c *gin.Context) {
	copyID, ok := pathID(c)
	if !ok {
		return
	}
	var req BorrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json"))
		return
	}
	in := BorrowInput{UserID: req.UserID}
	if req.DueAt != nil && *req.DueAt != "" {
		t, err := parseDueAt(*req.DueAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "due_at must be RFC3339 or YYYY-MM-DD"))
			return
		}
		in.DueAt = &t
	}
	res, err := h.m.Borrow(c.Request.Context(), copyID, in)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, toCopyResponse(res))
}

// Return godoc
// @Summary  返却（待ち行列の先頭へ自動貸出 / 状態値0で廃棄）
// @Tags     lending
// @Produce  json
// @Param    id path int true "copy id"
// @Success  200 {object} ReturnResponse
// @Failure  404 {object} errorDTO
// @Failure  409 {object} errorDTO
// @Router   /copies/{id}/return [post]
func (h *Handler) Return(c *gin.Context) {
	copyID, ok := pathID(c)
	if !ok {
		return
	}
	res, err := h.m.Return(c.Request.Context(), copyID)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, toReturnResponse(copyID, res))
}

// ListRequestsByCopy godoc
// @Summary  複本の予約待ち一覧（順位順）
// @Tags     requests
// @Produce  json
// @Param    id path int true "copy id"
// @Success  200 {object} RequestList
// @Router   /copies/{id}/requests [get]
func (h *Handler) ListRequestsByCopy(c *gin.Context) {
	copyID, ok := pathID(c)
	if !ok {
		return
	}
	res, err := h.m.ListRequestsByCopy(c.Request.Context(), copyID)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, toRequestList(res))
}

// CreateRequest godoc
// @Summary  予約（貸出中の複本のみ）
// @Tags     requests
// @Accept   json
// @Produce  json
// @Param    id   path int                  true "copy id"
// @Param    body body CreateRequestRequest true "user"
// @Success  201 {object} RequestResponse
// @Failure  409 {object} errorDTO
// @Router   /copies/{id}/requests [post]
func (h *Handler) CreateRequest(c *gin.Context) {
	copyID, ok := pathID(c)
	if !ok {
		return
	}
	var req CreateRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json"))
		return
	}
	res, err := h.m.Request(c.Request.Context(), copyID, RequestInput{UserID: req.UserID})
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.Header("Location", "/api/v1/requests/"+res.RequestULID)
	c.JSON(http.StatusCreated, toRequestResponse(res))
}

// GetRequest godoc
// @Summary  予約取得（ID or ULID）
// @Tags     requests
// @Produce  json
// @Param    id path string true "request id or ULID"
// @Success  200 {object} RequestResponse
// @Failure  404 {object} errorDTO
// @Router   /requests/{id} [get]
func (h *Handler) GetRequest(c *gin.Context) {
	res, err := h.m.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, toRequestResponse(res))
}

// CancelRequest godoc
// @Summary  予約取消
// @Tags     requests
// @Produce  json
// @Param    id path string true "request id or ULID"
// @Success  200 {object} CancelResponse
// @Failure  404 {object} errorDTO
// @Router   /requests/{id} [delete]
func (h *Handler) CancelRequest(c *gin.Context) {
	res, err := h.m.CancelRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, CancelResponse{Cancelled: toRequestResponse(res.Entry), Shifted: res.Shifted})
}

// ListBorrowedByUser godoc
// @Summary  ユーザーの貸出中一覧
// @Tags     users
// @Produce  json
// @Param    id path int true "user id"
// @Success  200 {object} CopyList
// @Router   /users/{id}/borrowed [get]
func (h *Handler) ListBorrowedByUser(c *gin.Context) {
	userID, ok := pathID(c)
	if !ok {
		return
	}
	res, err := h.m.ListBorrowedByUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, toCopyList(res))
}

// ListRequestsByUser godoc
// @Summary  ユーザーの予約一覧
// @Tags     users
// @Produce  json
// @Param    id path int true "user id"
// @Success  200 {object} RequestList
// @Router   /users/{id}/requests [get]
func (h *Handler) ListRequestsByUser(c *gin.Context) {
	userID, ok := pathID(c)
	if !ok {
		return
	}
	res, err := h.m.ListRequestsByUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, toRequestList(res))
}

// ---------- helpers ----------

// pathID parses :id as a positive integer and writes a 400 when it is not.
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
	var api *APIError
	if errors.As(err, &api) {
		return errorBody(api.Code, api.Message)
	}
	return errorBody(CodeStorage, "storage failure")
}
