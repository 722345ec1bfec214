package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/kushal2060/SpeakFutbol/backend/internal/accounts"
	"github.com/kushal2060/SpeakFutbol/backend/internal/auth"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	userContextKey     = "speakfootball_user"
	tokenKeyContextKey = "speakfootball_token_key"

	limiterCacheSize = 4096
	limiterIdleTTL   = 10 * time.Minute
)

var errInvalidAuthorization = errors.New("authorization header missing or invalid")

var authorizationSchemes = []string{"Token ", "Bearer "}

// bearerKey extracts the key of an "Authorization: Token <key>" or "Bearer <key>" header.
func bearerKey(header string) (string, bool) {
	for _, scheme := range authorizationSchemes {
		if len(header) > len(scheme) && strings.EqualFold(header[:len(scheme)], scheme) {
			key := strings.TrimSpace(header[len(scheme):])
			return key, key != ""
		}
	}
	return "", false
}

// authorizeRequest resolves the caller from a bearer key, falling back to the session cookie.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header != "" {
		key, ok := bearerKey(header)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
			return
		}
		user, err := h.userByToken(c, key)
		if err != nil {
			h.logTokenFailure(err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(userContextKey, user)
		c.Set(tokenKeyContextKey, key)
		c.Next()
		return
	}

	if h.sessions == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	claims, err := h.sessions.ValidateRequest(c.Request)
	if errors.Is(err, auth.ErrMissingSessionToken) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	if err != nil {
		h.logTokenFailure(err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	userID, err := claims.NumericUserID()
	if err != nil {
		h.logTokenFailure(err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	user, err := h.accounts.UserByID(c.Request.Context(), userID)
	if err == nil && !user.IsActive {
		err = accounts.ErrInactiveUser
	}
	if err != nil {
		h.logTokenFailure(err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userContextKey, user)
	c.Next()
}

func (h *httpHandler) userByToken(c *gin.Context, key string) (accounts.User, error) {
	if user, ok := h.tokenCache.Get(key); ok {
		return user, nil
	}
	user, err := h.accounts.UserByToken(c.Request.Context(), key)
	if err != nil {
		return accounts.User{}, err
	}
	h.tokenCache.Add(key, user)
	return user, nil
}

func (h *httpHandler) logTokenFailure(err error) {
	if errors.Is(err, auth.ErrExpiredSessionToken) || errors.Is(err, accounts.ErrInactiveUser) {
		h.logger.Info("token validation failed", zap.Error(err))
		return
	}
	h.logger.Warn("token validation failed", zap.Error(err))
}

func (h *httpHandler) requireStaff(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok || !user.IsStaff {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.Next()
}

func currentUser(c *gin.Context) (accounts.User, bool) {
	value, ok := c.Get(userContextKey)
	if !ok {
		return accounts.User{}, false
	}
	user, ok := value.(accounts.User)
	return user, ok
}

// refreshCachedUser replaces the cached account of the caller's token after a profile change.
func (h *httpHandler) refreshCachedUser(c *gin.Context, user accounts.User) {
	if key := c.GetString(tokenKeyContextKey); key != "" {
		h.tokenCache.Add(key, user)
	}
}

// clientRateLimiter keeps one token bucket per client address.
type clientRateLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters *expirable.LRU[string, *rate.Limiter]
}

func newClientRateLimiter(perMinute int) *clientRateLimiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	return &clientRateLimiter{
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    perMinute,
		limiters: expirable.NewLRU[string, *rate.Limiter](limiterCacheSize, nil, limiterIdleTTL),
	}
}

func (l *clientRateLimiter) limiterFor(client string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, ok := l.limiters.Get(client); ok {
		return limiter
	}
	limiter := rate.NewLimiter(l.limit, l.burst)
	l.limiters.Add(client, limiter)
	return limiter
}

func (l *clientRateLimiter) retryAfterSeconds() int {
	return int(math.Ceil(1 / float64(l.limit)))
}

func (h *httpHandler) limitLogins(c *gin.Context) {
	client := c.ClientIP()
	if h.loginLimiter.limiterFor(client).Allow() {
		c.Next()
		return
	}
	h.metrics.recordLogin(loginOutcomeLimited)
	h.logger.Warn("rate limit exceeded",
		zap.String("client_ip", client),
		zap.String("limit_type", "login"),
	)
	c.Header("Retry-After", strconv.Itoa(h.loginLimiter.retryAfterSeconds()))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
}
