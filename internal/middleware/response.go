package middleware

import (
	"net/http"

	"github.com/htetarkarhlaing/wecare-chat-widget/internal/errors"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/httputil"
)

func writeError(w http.ResponseWriter, status int, code errors.ErrorCode, message string) {
	httputil.WriteErrorWithStatus(w, status, errors.New(code, message))
}
