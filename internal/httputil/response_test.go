package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/htetarkarhlaing/wecare-chat-widget/internal/errors"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   apperrors.ErrorCode
	}{
		{"validation", apperrors.MissingRequired("email"), http.StatusBadRequest, apperrors.ErrCodeMissingRequired},
		{"token", apperrors.InvalidToken("Invalid session token"), http.StatusUnauthorized, apperrors.ErrCodeInvalidToken},
		{"not found", apperrors.NotFound("Session"), http.StatusNotFound, apperrors.ErrCodeNotFound},
		{"ended", apperrors.SendingDisabled(), http.StatusConflict, apperrors.ErrCodeSendingDisabled},
		{"throttled", apperrors.RateLimited(), http.StatusTooManyRequests, apperrors.ErrCodeRateLimited},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, apperrors.ErrCodeInternal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tc.err)

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tc.code, body.Code)
			assert.NotEmpty(t, body.Message)
			assert.Equal(t, body.Message, body.Error)
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Mya"}`))
	require.NoError(t, DecodeJSON(r, &dst))
	assert.Equal(t, "Mya", dst.Name)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Mya","extra":1}`))
	err := DecodeJSON(r, &dst)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	assert.Error(t, DecodeJSON(r, &dst))
}
