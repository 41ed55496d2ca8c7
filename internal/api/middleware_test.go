package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holodash/comlink/internal/store"
)

func Test_authMiddleware(t *testing.T) {
	t.Run("missing cookie is unauthorized", func(t *testing.T) {
		ta := newTestApp(t, store.NewMemoryStore())

		w := httptest.NewRecorder()
		ta.mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/conversations", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("bad token is unauthorized", func(t *testing.T) {
		ta := newTestApp(t, store.NewMemoryStore())

		r := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
		r.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: "bogus"})
		w := httptest.NewRecorder()
		ta.mux.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid cookie passes through with no-store caching", func(t *testing.T) {
		ta := newTestApp(t, store.NewMemoryStore())

		w := httptest.NewRecorder()
		ta.mux.ServeHTTP(w, authedRequest(t, http.MethodGet, "/api/conversations", "", "alice"))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Cache-Control"), "no-store")
	})
}

func Test_errorHandler(t *testing.T) {
	ta := newTestApp(t, store.NewMemoryStore())

	handler := ta.app.errorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "close", w.Header().Get("Connection"))
}
