package users

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.GET("/users", h.ListUsers)
	r.POST("/users", h.Register)
	r.GET("/users/:id", h.GetUser)
	r.DELETE("/users/:id", h.DeleteUser)
}

// Register godoc
// @Summary  利用者登録
// @Tags     users
// @Accept   json
// @Produce  json
// @Param    body body RegisterRequest true "user"
// @Success  201 {object} UserResponse
// @Failure  400 {object} errorDTO
// @Failure  409 {object} errorDTO
// @Router   /users [post]
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json"))
		return
	}
	res, err := h.svc.Register(c.Request.Context(), req)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.Header("Location", "/api/v1/users/"+strconv.FormatInt(res.UserID, 10))
	c.JSON(http.StatusCreated, res)
}

// ListUsers godoc
// @Summary  利用者一覧
// @Tags     users
// @Produce  json
// @Param    limit  query int    false "limit"
// @Param    offset query int    false "offset"
// @Param    order  query string false "asc | desc"
// @Success  200 {object} ListResult
// @Router   /users [get]
func (h *Handler) ListUsers(c *gin.Context) {
	p := Page{
		Limit:  parseIntDefault(c.Query("limit"), 50),
		Offset: parseIntDefault(c.Query("offset"), 0),
		Order:  c.DefaultQuery("order", "asc"),
	}
	res, err := h.svc.ListUsers(c.Request.Context(), p)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetUser godoc
// @Summary  利用者取得
// @Tags     users
// @Produce  json
// @Param    id path int true "user id"
// @Success  200 {object} UserResponse
// @Failure  404 {object} errorDTO
// @Router   /users/{id} [get]
func (h *Handler) GetUser(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "id must be a positive integer"))
		return
	}
	res, err := h.svc.GetUser(c.Request.Context(), id)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// DeleteUser godoc
// @Summary  利用者削除（貸出中なら 409）
// @Tags     users
// @Produce  json
// @Param    id path int true "user id"
// @Success  200 {object} DeleteResponse
// @Failure  404 {object} errorDTO
// @Failure  409 {object} errorDTO
// @Router   /users/{id} [delete]
func (h *Handler) DeleteUser(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "id must be a positive integer"))
		return
	}
	res, err := h.svc.DeleteUser(c.Request.Context(), id)
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
