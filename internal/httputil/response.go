package httputil

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/htetarkarhlaing/wecare-chat-widget/internal/errors"
)

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// ErrorResponse is the error body of the chat backend. Widgets read message
// first and fall back to error.
type ErrorResponse struct {
	Message string              `json:"message"`
	Error   string              `json:"error"`
	Code    apperrors.ErrorCode `json:"code"`
	Details any                 `json:"details,omitempty"`
}

// WriteError writes an AppError as an HTTP response with the matching status.
func WriteError(w http.ResponseWriter, err error) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		appErr = apperrors.Internal("An unexpected error occurred")
	}
	WriteErrorWithStatus(w, StatusFromCode(appErr.Code), appErr)
}

func WriteErrorWithStatus(w http.ResponseWriter, status int, err *apperrors.AppError) {
	WriteJSON(w, status, ErrorResponse{
		Message: err.Message,
		Error:   err.Message,
		Code:    err.Code,
		Details: err.Details,
	})
}

// DecodeJSON reads a JSON body into dst, rejecting unknown fields.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperrors.ValidationError("Invalid request body")
	}
	return nil
}

func StatusFromCode(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeValidation,
		apperrors.ErrCodeInvalidInput,
		apperrors.ErrCodeMissingRequired,
		apperrors.ErrCodeSessionCreateFailed:
		return http.StatusBadRequest

	case apperrors.ErrCodeUnauthorized,
		apperrors.ErrCodeInvalidToken,
		apperrors.ErrCodeSessionExpired:
		return http.StatusUnauthorized

	case apperrors.ErrCodeNotFound,
		apperrors.ErrCodeNoActiveSession:
		return http.StatusNotFound

	case apperrors.ErrCodeConflict,
		apperrors.ErrCodeSendingDisabled,
		apperrors.ErrCodeRatingUnavailable:
		return http.StatusConflict

	case apperrors.ErrCodeRateLimited:
		return http.StatusTooManyRequests

	case apperrors.ErrCodeExternal,
		apperrors.ErrCodeSendFailed,
		apperrors.ErrCodeRatingSubmitFailed:
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}
