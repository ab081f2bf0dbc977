package lending

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(f *fixture) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r.Group("/api/v1"), f.m)
	return r
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHandler_LendingFlow(t *testing.T) {
	f := newFixture(t, 2)
	r := newRouter(f)

	w := do(t, r, http.MethodPost, fmt.Sprintf("/api/v1/books/%d/copies", f.bookID), AddCopyRequest{Location: "A-1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	cp := decode[CopyResponse](t, w)
	assert.Equal(t, StateAvailable, cp.State)
	base := fmt.Sprintf("/api/v1/copies/%d", cp.CopyID)

	w = do(t, r, http.MethodPost, base+"/requests", CreateRequestRequest{UserID: f.users[1]})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, CodeAlreadyAvailable, decode[errorDTO](t, w).Error.Code)

	w = do(t, r, http.MethodPost, base+"/borrow", BorrowRequest{UserID: f.users[0]})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, StateBorrowed, decode[CopyResponse](t, w).State)

	w = do(t, r, http.MethodPost, base+"/borrow", BorrowRequest{UserID: f.users[1]})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, CodeInvalidState, decode[errorDTO](t, w).Error.Code)

	w = do(t, r, http.MethodPost, base+"/requests", CreateRequestRequest{UserID: f.users[1]})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rq := decode[RequestResponse](t, w)
	assert.Equal(t, 1, rq.Position)

	w = do(t, r, http.MethodGet, fmt.Sprintf("/api/v1/users/%d/requests", f.users[1]), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[RequestList](t, w).Total)

	w = do(t, r, http.MethodPost, base+"/return", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	ret := decode[ReturnResponse](t, w)
	assert.True(t, ret.AutoBorrowed)
	require.NotNil(t, ret.NextUser)
	assert.Equal(t, f.users[1], *ret.NextUser)
	assert.Equal(t, 80, ret.NewCondition)

	w = do(t, r, http.MethodGet, fmt.Sprintf("/api/v1/users/%d/borrowed", f.users[1]), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[CopyList](t, w).Total)

	w = do(t, r, http.MethodDelete, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	del := decode[DeleteCopyResponse](t, w)
	assert.True(t, del.Deleted)
	assert.Equal(t, 1, del.DisplacedBorrowers)

	w = do(t, r, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_CancelRequest(t *testing.T) {
	f := newFixture(t, 3)
	r := newRouter(f)
	c := f.borrowed(t, f.users[0])
	base := fmt.Sprintf("/api/v1/copies/%d", c.CopyID)

	var ids []string
	for _, u := range f.users[1:] {
		w := do(t, r, http.MethodPost, base+"/requests", CreateRequestRequest{UserID: u})
		require.Equal(t, http.StatusCreated, w.Code)
		ids = append(ids, decode[RequestResponse](t, w).RequestULID)
	}

	w := do(t, r, http.MethodPost, "/api/v1/requests/"+ids[0]+"/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, decode[CancelResponse](t, w).Shifted)

	w = do(t, r, http.MethodGet, "/api/v1/requests/"+ids[1], nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[RequestResponse](t, w).Position)

	w = do(t, r, http.MethodDelete, "/api/v1/requests/"+ids[0], nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_BadInput(t *testing.T) {
	f := newFixture(t, 1)
	r := newRouter(f)
	c := f.addCopy(t)
	base := fmt.Sprintf("/api/v1/copies/%d", c.CopyID)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"non numeric id", http.MethodGet, "/api/v1/copies/abc", nil, http.StatusBadRequest},
		{"missing body", http.MethodPost, base + "/borrow", nil, http.StatusBadRequest},
		{"bad due date", http.MethodPost, base + "/borrow", map[string]any{"user_id": f.users[0], "due_at": "next week"}, http.StatusBadRequest},
		{"unknown user", http.MethodPost, base + "/borrow", BorrowRequest{UserID: 999}, http.StatusNotFound},
		{"return available", http.MethodPost, base + "/return", nil, http.StatusConflict},
		{"empty patch", http.MethodPatch, base, UpdateCopyRequest{}, http.StatusBadRequest},
		{"unknown book", http.MethodGet, "/api/v1/books/999/copies", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}
