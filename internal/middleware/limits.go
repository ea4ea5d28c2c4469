package middleware

import (
	"context"
	"math"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/htetarkarhlaing/wecare-chat-widget/internal/errors"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/httputil"
)

const (
	DefaultRateLimitPerMin = 120
	DefaultMaxBodySize     = 1 << 20 // 1MB

	rateLimitWindow   = time.Minute
	maxTrackedClients = 10000
)

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter counts requests per client over a sliding one minute window.
type Limiter interface {
	Allow(ctx context.Context, client string) Decision
}

// MemoryLimiter keeps the window in process. Use RedisLimiter when several
// mock servers share clients.
type MemoryLimiter struct {
	limit int
	now   func() time.Time

	mu   sync.Mutex
	hits map[string][]time.Time
}

func NewMemoryLimiter(limit int) *MemoryLimiter {
	if limit <= 0 {
		limit = DefaultRateLimitPerMin
	}
	return &MemoryLimiter{
		limit: limit,
		now:   time.Now,
		hits:  make(map[string][]time.Time),
	}
}

func (l *MemoryLimiter) Allow(ctx context.Context, client string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	since := now.Add(-rateLimitWindow)
	if len(l.hits) >= maxTrackedClients {
		l.pruneLocked(since)
	}

	hits := trimBefore(l.hits[client], since)
	d := Decision{Limit: l.limit, ResetAt: now.Add(rateLimitWindow)}
	if len(hits) > 0 {
		d.ResetAt = hits[0].Add(rateLimitWindow)
	}
	if len(hits) >= l.limit {
		l.hits[client] = hits
		return d
	}

	l.hits[client] = append(hits, now)
	d.Allowed = true
	d.Remaining = l.limit - len(hits) - 1
	return d
}

// pruneLocked forgets clients with no hit inside the window.
func (l *MemoryLimiter) pruneLocked(since time.Time) {
	for client, hits := range l.hits {
		if len(hits) == 0 || !hits[len(hits)-1].After(since) {
			delete(l.hits, client)
		}
	}
}

func (l *MemoryLimiter) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hits)
}

// trimBefore drops hits at or before since; hits are in arrival order.
func trimBefore(hits []time.Time, since time.Time) []time.Time {
	i := sort.Search(len(hits), func(i int) bool { return hits[i].After(since) })
	return append(hits[:0], hits[i:]...)
}

// RateLimit rejects a client's requests with 429 once its window is full.
// Clients are API keys, or the remote address when keys are not enforced.
func RateLimit(l Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := clientID(r)
			d := l.Allow(r.Context(), client)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				log.Warn().Str("client", client).Msg("rate limit exceeded")
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter(d.ResetAt)))
				httputil.WriteError(w, errors.RateLimited())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func retryAfter(resetAt time.Time) int {
	secs := int(math.Ceil(time.Until(resetAt).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

func clientID(r *http.Request) string {
	if client := GetClient(r.Context()); client != "" {
		return client
	}
	return "ip:" + r.RemoteAddr
}

// BodyLimit answers 413 for a declared oversize body and caps undeclared
// ones with chi's RequestSize.
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodySize
	}
	capped := chimw.RequestSize(maxBytes)
	return func(next http.Handler) http.Handler {
		limited := capped(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				writeError(w, http.StatusRequestEntityTooLarge, errors.ErrCodeValidation, "Request body too large")
				return
			}
			limited.ServeHTTP(w, r)
		})
	}
}
