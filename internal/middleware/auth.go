package middleware

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/htetarkarhlaing/wecare-chat-widget/internal/api"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/audit"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/errors"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/util"
)

type contextKey string

const ClientContextKey contextKey = "client"

// GetClient returns the identity of the widget deployment that made the
// request: a hash of its API key, or empty when keys are not enforced.
func GetClient(ctx context.Context) string {
	if client, ok := ctx.Value(ClientContextKey).(string); ok {
		return client
	}
	return ""
}

// APIKeyMiddleware admits requests whose x-api-key matches one of the
// configured keys. With no keys configured every request is admitted.
type APIKeyMiddleware struct {
	keyHashes []string
}

func NewAPIKeyMiddleware(keys []string) *APIKeyMiddleware {
	hashes := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			hashes = append(hashes, util.HashToken(k))
		}
	}
	return &APIKeyMiddleware{keyHashes: hashes}
}

func (m *APIKeyMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(m.keyHashes) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get(api.HeaderAPIKey)
		if key == "" {
			writeError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Missing API key")
			return
		}

		hash := util.HashToken(key)
		if !m.known(hash) {
			log.Warn().Str("key", util.MaskToken(key)).Msg("rejected unknown api key")
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventAuthFailure,
				Details: map[string]interface{}{"reason": "unknown_api_key"},
			})
			writeError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Invalid API key")
			return
		}

		ctx := context.WithValue(r.Context(), ClientContextKey, hash[:16])
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *APIKeyMiddleware) known(hash string) bool {
	found := false
	for _, h := range m.keyHashes {
		if util.ConstantTimeEqual(h, hash) {
			found = true
		}
	}
	return found
}
