package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"noircafe-backend/utils"

	"github.com/gin-gonic/gin"
)

type rateLimitEntry struct {
	tokens    float64
	lastCheck time.Time
}

// RateLimiter is an in-memory token bucket keyed by client IP.
type RateLimiter struct {
	mu         sync.Mutex
	clients    map[string]*rateLimitEntry
	maxTokens  float64
	refillRate float64 // tokens per second
	window     time.Duration
	message    string
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewRateLimiter allows maxRequests per perDuration, refilled continuously.
func NewRateLimiter(maxRequests int, perDuration time.Duration) *RateLimiter {
	rl := &RateLimiter{
		clients:    make(map[string]*rateLimitEntry),
		maxTokens:  float64(maxRequests),
		refillRate: float64(maxRequests) / perDuration.Seconds(),
		window:     perDuration,
		message:    "Too many requests. Please try again later.",
		stop:       make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

// AuthRateLimiter guards sign-in and registration: 5 requests per 15 minutes.
func AuthRateLimiter() *RateLimiter {
	return NewRateLimiter(5, 15*time.Minute).WithMessage("Too many authentication attempts. Please try again later.")
}

// PointsRateLimiter guards ledger mutations: 30 requests per minute.
func PointsRateLimiter() *RateLimiter {
	return NewRateLimiter(30, time.Minute).WithMessage("Too many points requests. Please slow down.")
}

// GlobalRateLimiter applies to the whole API: 100 requests per 15 minutes.
func GlobalRateLimiter() *RateLimiter {
	return NewRateLimiter(100, 15*time.Minute)
}

func (rl *RateLimiter) WithMessage(message string) *RateLimiter {
	rl.message = message
	return rl
}

// Stop ends the background cleanup.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.evictIdle(time.Now())
		}
	}
}

// evictIdle drops clients idle for longer than the window; a full bucket
// carries no state worth keeping.
func (rl *RateLimiter) evictIdle(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, entry := range rl.clients {
		if now.Sub(entry.lastCheck) > rl.window {
			delete(rl.clients, ip)
		}
	}
}

func (rl *RateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	entry, exists := rl.clients[clientIP]

	if !exists {
		rl.clients[clientIP] = &rateLimitEntry{
			tokens:    rl.maxTokens - 1,
			lastCheck: now,
		}
		return true
	}

	elapsed := now.Sub(entry.lastCheck).Seconds()
	entry.tokens += elapsed * rl.refillRate
	if entry.tokens > rl.maxTokens {
		entry.tokens = rl.maxTokens
	}
	entry.lastCheck = now

	if entry.tokens >= 1 {
		entry.tokens--
		return true
	}

	return false
}

func (rl *RateLimiter) retryAfter() int {
	seconds := int(1/rl.refillRate) + 1
	return seconds
}

// Middleware returns a gin middleware that rate limits requests.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allow(c.ClientIP()) {
			c.Header("Retry-After", strconv.Itoa(rl.retryAfter()))
			utils.Abort(c, http.StatusTooManyRequests, rl.message)
			return
		}
		c.Next()
	}
}
