package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/travelmate/chat/internal/metrics"
)

const rateLimitWindow = time.Minute

// rateLimiter считает скользящее окно запросов на ключ.
type rateLimiter struct {
	mu     sync.Mutex
	times  map[string][]time.Time
	max    int
	window time.Duration
}

func newRateLimiter(max int, window time.Duration) *rateLimiter {
	return &rateLimiter{times: make(map[string][]time.Time), max: max, window: window}
}

func (r *rateLimiter) allow(key string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := now.Add(-r.window)
	slice := r.times[key]
	i := 0
	for _, t := range slice {
		if t.After(cutoff) {
			slice[i] = t
			i++
		}
	}
	slice = slice[:i]
	if len(slice) >= r.max {
		r.times[key] = slice
		return false
	}
	r.times[key] = append(slice, now)
	return true
}

// RateLimit ограничивает запросы чата в минуту по IP и по пользователю из токена
// (ставится после BearerAuth). 429 при превышении.
func RateLimit(perIP, perUser int) func(http.Handler) http.Handler {
	byIP := newRateLimiter(perIP, rateLimitWindow)
	byUser := newRateLimiter(perUser, rateLimitWindow)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}
			if perIP > 0 && !byIP.allow(ip, now) {
				tooManyRequests(w)
				return
			}
			if userID := GetUserID(r.Context()); userID != "" && perUser > 0 {
				if !byUser.allow(userID, now) {
					tooManyRequests(w)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func tooManyRequests(w http.ResponseWriter) {
	metrics.IncHTTPRejected("rate_limit")
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Retry-After", "60")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"message":"too many requests"}`))
}
