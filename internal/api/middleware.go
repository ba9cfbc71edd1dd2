package api

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if r.statusCode == 0 {
		r.statusCode = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.size += n
	return n, err
}

func loggingMiddleware(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &responseRecorder{ResponseWriter: w}

			defer func() {
				if p := recover(); p != nil {
					log.Error("request panic", "panic", fmt.Sprint(p), "stack", string(debug.Stack()))
					if rec.statusCode == 0 {
						writeError(rec, http.StatusInternalServerError, codeInternal, "internal error")
					}
				}
				lvl := slog.LevelInfo
				switch {
				case rec.statusCode >= 500:
					lvl = slog.LevelError
				case rec.statusCode >= 400:
					lvl = slog.LevelWarn
				}
				log.Log(r.Context(), lvl, "request completed",
					"method", r.Method,
					"path", r.URL.Path,
					"status", rec.statusCode,
					"bytes", rec.size,
					"duration", time.Since(start))
			}()

			next.ServeHTTP(rec, r)
		})
	}
}

func apiKeyMiddleware(keys []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(keys) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get("X-API-Key"))
			for _, k := range keys {
				if subtle.ConstantTimeCompare(got, []byte(k)) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "missing or unknown API key")
		})
	}
}

// maxLimiters bounds the pool; when reached the pool starts over.
const maxLimiters = 100_000

type limiterPool struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	rps   float64
	burst int
}

func newLimiterPool(rps float64, burst int) *limiterPool {
	if rps <= 0 {
		rps = 1
	}
	if burst <= 0 {
		burst = 5
	}
	return &limiterPool{m: make(map[string]*rate.Limiter), rps: rps, burst: burst}
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.m[key]; ok {
		return l
	}
	if len(p.m) >= maxLimiters {
		p.m = make(map[string]*rate.Limiter)
	}
	l := rate.NewLimiter(rate.Limit(p.rps), p.burst)
	p.m[key] = l
	return l
}

func (p *limiterPool) Allow(key string) bool {
	return p.get(key).Allow()
}

// rateLimitMiddleware limits requests per acting user, or per remote
// address when no user is named.
func rateLimitMiddleware(pool *limiterPool, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(userHeader)
			if _, err := strconv.ParseInt(key, 10, 64); err != nil {
				key = r.RemoteAddr
			}
			if !pool.Allow(key) {
				log.Warn("view rate limited", "key", key)
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, codeRateLimited, "too many attempts, slow down")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
