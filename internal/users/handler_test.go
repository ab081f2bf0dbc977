package users

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LIBCAT-backend/internal/platform/dbtest"
)

func TestHandler_Users(t *testing.T) {
	conn := dbtest.Open(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r.Group("/api/v1"), NewService(conn, &fakeReleaser{}, nil))

	do := func(method, path string, body any) *httptest.ResponseRecorder {
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

	w := do(http.MethodPost, "/api/v1/users", validRegister())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var u UserResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &u))
	assert.NotContains(t, w.Body.String(), "password")
	path := "/api/v1/users/" + strconv.FormatInt(u.UserID, 10)
	assert.Equal(t, path, w.Header().Get("Location"))

	w = do(http.MethodPost, "/api/v1/users", validRegister())
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"CONFLICT"`)

	w = do(http.MethodGet, path, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(http.MethodGet, "/api/v1/users/x", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = do(http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
