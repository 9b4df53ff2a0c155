package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/noah-isme/cart-totals/internal/common"
)

// KeyFunc derives the bucket a request is counted against. An empty key
// skips limiting for that request.
type KeyFunc func(*http.Request) string

// ByClientIP buckets requests per client address under prefix.
func ByClientIP(prefix string) KeyFunc {
	return func(r *http.Request) string {
		ip := common.ClientIP(r)
		if ip == "" {
			return ""
		}
		return prefix + ip
	}
}

// Config describes the bucket and its allowance per window.
type Config struct {
	Key    KeyFunc
	Window time.Duration
	Max    int
}

// Handler rejects requests over the limit with 429. Store errors let the
// request through and are reported to OnError.
type Handler struct {
	Limiter Limiter
	Config  Config
	OnError func(error)
}

var errRateLimited = common.NewAppError(common.CodeRateLimited, "rate limit exceeded", http.StatusTooManyRequests, nil)

func (h Handler) Middleware(next http.Handler) http.Handler {
	if h.Limiter == nil || h.Config.Key == nil || h.Config.Max <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := h.Config.Key(r)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		allowed, remaining, resetAt, err := h.Limiter.Allow(r.Context(), key, h.Config.Window, h.Config.Max)
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		setQuotaHeaders(w.Header(), h.Config.Max, remaining, resetAt)
		if !allowed {
			wait := math.Ceil(time.Until(resetAt).Seconds())
			w.Header().Set("Retry-After", strconv.Itoa(max(int(wait), 0)))
			common.WriteError(w, errRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func setQuotaHeaders(h http.Header, limit, remaining int, resetAt time.Time) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(max(remaining, 0)))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
}
