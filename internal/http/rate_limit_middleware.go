package httpx

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// RateLimiter counts requests per key within a fixed window.
type RateLimiter interface {
	Allow(key string, limit int, window time.Duration) rateDecision
	Close()
}

type rateDecision struct {
	allowed   bool
	count     int
	windowEnd time.Time
}

// remaining is the number of requests left in the window.
func (d rateDecision) remaining(limit int) int {
	if left := limit - d.count; left > 0 {
		return left
	}
	return 0
}

// memoryRateLimiter keeps one counter per key in a go-cache entry that
// expires with its window.
type memoryRateLimiter struct {
	mu       sync.Mutex
	counters *gocache.Cache
}

// NewMemoryRateLimiter returns a process local limiter.
func NewMemoryRateLimiter() RateLimiter {
	return &memoryRateLimiter{counters: gocache.New(time.Minute, 5*time.Minute)}
}

func (rl *memoryRateLimiter) Allow(key string, limit int, window time.Duration) rateDecision {
	if limit <= 0 {
		return rateDecision{allowed: true}
	}
	if window <= 0 {
		window = time.Minute
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	value, end, found := rl.counters.GetWithExpiration(key)
	if !found {
		end = time.Now().Add(window)
		rl.counters.Set(key, 1, window)
		return rateDecision{allowed: true, count: 1, windowEnd: end}
	}
	count := value.(int)
	if count >= limit {
		return rateDecision{count: count, windowEnd: end}
	}
	count, err := rl.counters.IncrementInt(key, 1)
	if err != nil {
		// Expired between the read and the increment.
		rl.counters.Set(key, 1, window)
		return rateDecision{allowed: true, count: 1, windowEnd: time.Now().Add(window)}
	}
	return rateDecision{allowed: true, count: count, windowEnd: end}
}

func (rl *memoryRateLimiter) Close() {
	rl.counters.Flush()
}

func (r *Router) withRateLimit(route string, keyFn func(*http.Request) string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		limit := r.rate.Requests
		if limit <= 0 || r.limiter == nil {
			next(w, req)
			return
		}
		key := keyFn(req)
		if key == "" {
			key = rateLimitKeyIP(req)
		}
		decision := r.limiter.Allow(key, limit, r.rate.Window)

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
		headers.Set("X-RateLimit-Remaining", strconv.Itoa(decision.remaining(limit)))
		if !decision.windowEnd.IsZero() {
			headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
		}
		if !decision.allowed {
			if !decision.windowEnd.IsZero() {
				wait := int(time.Until(decision.windowEnd).Seconds()) + 1
				headers.Set("Retry-After", strconv.Itoa(wait))
			}
			r.recordRateLimitHit(route, rateMetricKey(key))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, req)
	}
}

// handlerAuthRate authenticates first so limits apply per operator.
func (r *Router) handlerAuthRate(route string, next http.HandlerFunc) http.HandlerFunc {
	return r.requireAuth(r.withRateLimit(route, rateLimitKeyOperator, next))
}

func rateLimitKeyOperator(req *http.Request) string {
	info, ok := authInfoFromContext(req.Context())
	if !ok || info.Operator == "" {
		return ""
	}
	return "operator:" + info.Operator
}

func rateLimitKeyIP(req *http.Request) string {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		host = req.RemoteAddr
	}
	if host == "" {
		host = "unknown"
	}
	return "ip:" + host
}

// rateMetricKey keeps only the key kind so operator names stay out of labels.
func rateMetricKey(key string) string {
	kind, _, found := strings.Cut(key, ":")
	if !found || kind == "" {
		return "unknown"
	}
	return kind
}
