package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/greeneye/companion/internal/localapi/models"
)

// RateLimitConfig holds configuration for rate limiting.
type RateLimitConfig struct {
	RequestLimit int
	WindowLength time.Duration
}

// Default rate limit configurations. The API listens on loopback only,
// so these guard against runaway UI polling rather than abuse.
var (
	// ControlRateLimit applies to actuator toggle endpoints (30 req/min).
	ControlRateLimit = RateLimitConfig{
		RequestLimit: 30,
		WindowLength: time.Minute,
	}

	// StandardRateLimit applies to standard endpoints (300 req/min).
	StandardRateLimit = RateLimitConfig{
		RequestLimit: 300,
		WindowLength: time.Minute,
	}
)

// RateLimitByIP creates a rate limiter middleware keyed on client IP.
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(rateLimitExceededHandler),
	)
}

func rateLimitExceededHandler(w http.ResponseWriter, r *http.Request) {
	problem := models.NewTooManyRequests(GetRequestID(r.Context()), "rate limit exceeded, slow down")
	problem.Instance = r.URL.Path
	problem.Write(w)
}
