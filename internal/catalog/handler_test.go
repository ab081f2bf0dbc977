package catalog

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

func TestHandler_Books(t *testing.T) {
	f := newFixture(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r.Group("/api/v1"), f.svc)

	w := do(t, r, http.MethodPost, "/api/v1/books", dune())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created BookResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, fmt.Sprintf("/api/v1/books/%d", created.BookID), w.Header().Get("Location"))

	w = do(t, r, http.MethodGet, "/api/v1/books?q=dune&available=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list ListResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, 3, list.Items[0].AvailableCopies)

	w = do(t, r, http.MethodGet, "/api/v1/keywords", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"spice"`)

	w = do(t, r, http.MethodDelete, fmt.Sprintf("/api/v1/books/%d", created.BookID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"deleted":true`)

	w = do(t, r, http.MethodGet, fmt.Sprintf("/api/v1/books/%d", created.BookID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"NOT_FOUND"`)
}

func TestHandler_BookBadInput(t *testing.T) {
	f := newFixture(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r.Group("/api/v1"), f.svc)

	tests := []struct {
		name, method, path string
		body               any
		want               int
	}{
		{"non numeric id", http.MethodGet, "/api/v1/books/abc", nil, http.StatusBadRequest},
		{"missing title", http.MethodPost, "/api/v1/books", map[string]any{"copies": 1}, http.StatusBadRequest},
		{"bad copies", http.MethodPost, "/api/v1/books", map[string]any{"title": "x", "copies": 500}, http.StatusBadRequest},
		{"unknown book", http.MethodDelete, "/api/v1/books/42", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}
