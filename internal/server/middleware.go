package server

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"orderline/internal/logger"
	"orderline/internal/metrics"
)

// requestLogger tags each request with an id, logs it when done and records
// its latency.
func requestLogger(log *zap.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			id := strings.TrimSpace(r.Header.Get("X-Request-Id"))
			if id == "" || len(id) > 64 {
				id = ulid.Make().String()
			}
			w.Header().Set("X-Request-Id", id)
			ctx, reqLog := logger.WithRequestID(r.Context(), log, id)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)
			m.ObserveRequest(r.Method, status, elapsed)
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", elapsed),
			}
			switch {
			case status >= 500:
				reqLog.Error("request", fields...)
			case status >= 400:
				reqLog.Warn("request", fields...)
			default:
				reqLog.Info("request", fields...)
			}
		})
	}
}

type RateLimit struct {
	RPS   float64
	Burst int
}

// rateLimiter keeps one token bucket per actor, or per client address for
// unauthenticated calls. Idle buckets expire.
type rateLimiter struct {
	basePath string
	limit    RateLimit

	mu      sync.Mutex
	buckets *expirable.LRU[string, *rate.Limiter]
}

func newRateLimiter(basePath string, limit RateLimit) *rateLimiter {
	return &rateLimiter{
		basePath: basePath,
		limit:    limit,
		buckets:  expirable.NewLRU[string, *rate.Limiter](4096, nil, 10*time.Minute),
	}
}

func (l *rateLimiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets.Get(key); ok {
		return b
	}
	b := rate.NewLimiter(rate.Limit(l.limit.RPS), l.limit.Burst)
	l.buckets.Add(key, b)
	return b
}

func (l *rateLimiter) middleware(next http.Handler) http.Handler {
	if l.limit.RPS <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, l.basePath) {
			next.ServeHTTP(w, r)
			return
		}
		key := "ip:" + clientIP(r)
		if p, ok := principalFromContext(r.Context()); ok && p.ActorID != "" {
			key = "actor:" + p.ActorID
		}
		res := l.bucket(key).Reserve()
		if delay := res.Delay(); delay > 0 {
			res.Cancel()
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
			respondStatusError(w, newAPIError(http.StatusTooManyRequests, "rate_limited", "too many requests", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
