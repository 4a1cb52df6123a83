package gateway

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/example/bytespark/pkg/apperr"
	"github.com/example/bytespark/pkg/auth"
	"github.com/example/bytespark/pkg/config"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const requestIDHeader = "X-Request-ID"

func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		c.Next()

		logger.Info("HTTP request",
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// authenticate verifies the bearer token and puts the caller's principal on
// the request context.
func authenticate(tokens *auth.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			abortWith(c, apperr.Unauthenticated("Not authorized, no token"))
			return
		}

		principal, err := tokens.Verify(strings.TrimSpace(token))
		if err != nil {
			abortWith(c, apperr.Unauthenticated("Not authorized, token failed"))
			return
		}

		c.Request = c.Request.WithContext(auth.WithPrincipal(c.Request.Context(), principal))
		c.Next()
	}
}

// requireRoles must run after authenticate.
func requireRoles(roles ...auth.Role) gin.HandlerFunc {
	allowed := auth.Roles(roles...)
	return func(c *gin.Context) {
		p, ok := auth.PrincipalFrom(c.Request.Context())
		if !ok || !allowed.Contains(p.Role) {
			abortWith(c, apperr.Forbidden("Access denied"))
			return
		}
		c.Next()
	}
}

func requireAdmin() gin.HandlerFunc {
	return requireRoles(auth.RoleAdmin)
}

func requireUser() gin.HandlerFunc {
	return requireRoles(auth.RoleUser)
}

// userID returns the caller's user id or answers 401 when the principal has
// none.
func userID(c *gin.Context) (string, bool) {
	p, ok := auth.PrincipalFrom(c.Request.Context())
	if !ok || p.UserID == "" {
		abortWith(c, apperr.Unauthenticated("Not authorized, no user"))
		return "", false
	}
	return p.UserID, true
}

const (
	limiterIdleTTL       = 5 * time.Minute
	limiterSweepInterval = time.Minute
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiters keeps one token bucket per client IP. Buckets idle longer
// than limiterIdleTTL are dropped by a sweep that runs at most once per
// limiterSweepInterval.
type clientLimiters struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	clients   map[string]*clientLimiter
	lastSweep time.Time
}

func newClientLimiters(cfg config.RateLimitConfig) *clientLimiters {
	return &clientLimiters{
		limit:   rate.Limit(cfg.RPS),
		burst:   max(cfg.Burst, 1),
		clients: make(map[string]*clientLimiter),
	}
}

func (l *clientLimiters) allow(ip string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= limiterSweepInterval {
		for key, cl := range l.clients {
			if now.Sub(cl.lastSeen) > limiterIdleTTL {
				delete(l.clients, key)
			}
		}
		l.lastSweep = now
	}

	cl, ok := l.clients[ip]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = cl
	}
	cl.lastSeen = now
	return cl.limiter.AllowN(now, 1)
}

// rateLimit applies a token bucket per client IP.
func rateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	limiters := newClientLimiters(cfg)

	return func(c *gin.Context) {
		if cfg.RPS <= 0 {
			c.Next()
			return
		}

		if !limiters.allow(c.ClientIP(), time.Now()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"message": "Too many requests"})
			return
		}
		c.Next()
	}
}
