package middleware

import (
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nugl/monetization/internal/config"
	"github.com/nugl/monetization/internal/metrics"
)

// RateLimitMiddleware implements token bucket rate limiting. Telemetry
// endpoints (click and impression tracking) get the high-throughput
// bucket; everything else shares the management bucket.
type RateLimitMiddleware struct {
	cfg              config.RateLimitConfig
	logger           *zap.Logger
	metrics          *metrics.Metrics
	telemetryLimiter *rate.Limiter
	mgmtLimiter      *rate.Limiter

	// Per-IP limiters for more granular control
	mu         sync.RWMutex
	ipLimiters map[string]*rate.Limiter
}

// NewRateLimitMiddleware creates a new rate limiting middleware.
func NewRateLimitMiddleware(cfg config.RateLimitConfig, logger *zap.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		cfg:              cfg,
		logger:           logger,
		telemetryLimiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		mgmtLimiter:      rate.NewLimiter(rate.Limit(cfg.MgmtRPS), cfg.MgmtBurst),
		ipLimiters:       make(map[string]*rate.Limiter),
	}
}

// SetMetrics attaches metrics after construction.
func (rl *RateLimitMiddleware) SetMetrics(m *metrics.Metrics) {
	rl.metrics = m
}

// Handler wraps an http.Handler with rate limiting. Telemetry requests
// pass both the shared telemetry bucket and a per-IP bucket; management
// requests only pass the shared management bucket.
func (rl *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.cfg.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		if rl.isTelemetryEndpoint(r.URL.Path) {
			if !rl.telemetryLimiter.Allow() {
				rl.reject(w, r, "telemetry")
				return
			}
			if !rl.getIPLimiter(rl.getClientIP(r)).Allow() {
				rl.reject(w, r, "per_ip")
				return
			}
		} else if !rl.mgmtLimiter.Allow() {
			rl.reject(w, r, "management")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimitMiddleware) reject(w http.ResponseWriter, r *http.Request, name string) {
	rl.logger.Warn("rate limit exceeded",
		zap.String("limiter", name),
		zap.String("path", r.URL.Path),
		zap.String("remote_addr", r.RemoteAddr),
	)
	if rl.metrics != nil {
		rl.metrics.RateLimitHits.WithLabelValues(name).Inc()
	}
	rl.tooManyRequests(w)
}

// getIPLimiter returns or creates a rate limiter for the given IP.
func (rl *RateLimitMiddleware) getIPLimiter(ip string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.ipLimiters[ip]
	rl.mu.RUnlock()

	if exists {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists = rl.ipLimiters[ip]; exists {
		return limiter
	}

	// Per-IP buckets are a tenth of the shared telemetry bucket, never
	// smaller than 1 rps / burst 1
	rps := rl.cfg.RPS / 10
	if rps < 1 {
		rps = 1
	}
	burst := rl.cfg.Burst / 10
	if burst < 1 {
		burst = 1
	}
	limiter = rate.NewLimiter(rate.Limit(rps), burst)
	rl.ipLimiters[ip] = limiter

	return limiter
}

// getClientIP extracts the client IP from the request.
func (rl *RateLimitMiddleware) getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}

// isTelemetryEndpoint returns true for the high-volume tracking paths.
func (rl *RateLimitMiddleware) isTelemetryEndpoint(path string) bool {
	return strings.HasPrefix(path, "/affiliate/click") ||
		strings.HasPrefix(path, "/ads/")
}

// tooManyRequests sends a 429 response.
func (rl *RateLimitMiddleware) tooManyRequests(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", "1")
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write([]byte(`{"error":"rate limit exceeded"}`))
}

// CleanupIPLimiters removes old IP limiters to prevent memory leaks.
// Should be called periodically (e.g., every hour).
func (rl *RateLimitMiddleware) CleanupIPLimiters() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.ipLimiters = make(map[string]*rate.Limiter)
	rl.logger.Debug("cleaned up IP rate limiters")
}
