package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/htetarkarhlaing/wecare-chat-widget/internal/api"
)

func TestAPIKeyMiddleware(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetClient(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	t.Run("admits everything without configured keys", func(t *testing.T) {
		seen = "unset"
		handler := NewAPIKeyMiddleware(nil).Handler(next)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, seen)
	})

	handler := NewAPIKeyMiddleware([]string{"key-a", "", "key-b"}).Handler(next)

	t.Run("rejects missing key", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "Missing API key")
	})

	t.Run("rejects unknown key", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set(api.HeaderAPIKey, "key-c")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "Invalid API key")
	})

	t.Run("admits known keys with distinct client ids", func(t *testing.T) {
		ids := map[string]bool{}
		for _, key := range []string{"key-a", "key-b"} {
			req := httptest.NewRequest("GET", "/", nil)
			req.Header.Set(api.HeaderAPIKey, key)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Len(t, seen, 16)
			ids[seen] = true
		}
		assert.Len(t, ids, 2)
	})
}
