package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/kushal2060/SpeakFutbol/backend/internal/accounts"
	"github.com/kushal2060/SpeakFutbol/backend/internal/admin"
	"github.com/kushal2060/SpeakFutbol/backend/internal/auth"
	"github.com/kushal2060/SpeakFutbol/backend/internal/events"
	"github.com/kushal2060/SpeakFutbol/backend/internal/identity"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	defaultTokenCacheSize     = 1024
	defaultTokenCacheTTL      = time.Minute
	defaultLoginRatePerMinute = 30
	defaultHeartbeatInterval  = 25 * time.Second
)

var (
	errMissingIdentityService = errors.New("identity service dependency required")
	errMissingAccountStore    = errors.New("account store dependency required")
	errMissingEventService    = errors.New("event service dependency required")
	errMissingAdminRegistry   = errors.New("admin registry dependency required")
	errMissingSessions        = errors.New("session validator dependency required")
)

// TokenExchanger links a Google access token to a local account.
type TokenExchanger interface {
	ExchangeProviderToken(ctx context.Context, accessToken string) (identity.Result, error)
}

// AccountStore is the account surface used by request authentication and profile routes.
type AccountStore interface {
	UserByToken(ctx context.Context, key string) (accounts.User, error)
	UserByID(ctx context.Context, id uint) (accounts.User, error)
	UpdateProfile(ctx context.Context, userID uint, update accounts.ProfileUpdate) (accounts.User, error)
	RevokeToken(ctx context.Context, userID uint) (string, error)
}

// SessionValidator validates the session cookie set at login.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
	CookieName() string
}

type Dependencies struct {
	Identity           TokenExchanger
	Accounts           AccountStore
	Events             *events.Service
	Admin              *admin.Registry
	Sessions           SessionValidator
	Realtime           *RosterDispatcher
	Metrics            *prometheus.Registry
	AllowedOrigins     []string
	SecureCookies      bool
	LoginRatePerMinute int
	TokenCacheSize     int
	TokenCacheTTL      time.Duration
	HeartbeatInterval  time.Duration
	Logger             *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	switch {
	case deps.Identity == nil:
		return nil, errMissingIdentityService
	case deps.Accounts == nil:
		return nil, errMissingAccountStore
	case deps.Events == nil:
		return nil, errMissingEventService
	case deps.Admin == nil:
		return nil, errMissingAdminRegistry
	case deps.Sessions == nil:
		return nil, errMissingSessions
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRosterDispatcher()
	}
	metrics, err := newHTTPMetrics(deps.Metrics)
	if err != nil {
		return nil, err
	}
	cacheSize := deps.TokenCacheSize
	if cacheSize <= 0 {
		cacheSize = defaultTokenCacheSize
	}
	cacheTTL := deps.TokenCacheTTL
	if cacheTTL <= 0 {
		cacheTTL = defaultTokenCacheTTL
	}
	ratePerMinute := deps.LoginRatePerMinute
	if ratePerMinute <= 0 {
		ratePerMinute = defaultLoginRatePerMinute
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(metrics.middleware)
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		identity:      deps.Identity,
		accounts:      deps.Accounts,
		events:        deps.Events,
		admin:         deps.Admin,
		sessions:      deps.Sessions,
		realtime:      realtime,
		metrics:       metrics,
		tokenCache:    expirable.NewLRU[string, accounts.User](cacheSize, nil, cacheTTL),
		loginLimiter:  newClientRateLimiter(ratePerMinute),
		secureCookies: deps.SecureCookies,
		heartbeat:     heartbeat,
		logger:        logger,
	}

	router.GET("/healthz", handler.handleHealth)
	router.GET("/metrics", gin.WrapH(metrics.handler()))

	api := router.Group("/api")
	api.POST("/auth/google", handler.limitLogins, handler.handleGoogleLogin)

	protected := api.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/auth/me", handler.handleCurrentUser)
	protected.PATCH("/auth/me", handler.handleUpdateCurrentUser)
	protected.POST("/auth/logout", handler.handleLogout)

	protected.GET("/events", handler.handleListEvents)
	protected.POST("/events", handler.handleCreateEvent)
	protected.GET("/events/:id", handler.handleGetEvent)
	protected.PUT("/events/:id", handler.handleUpdateEvent)
	protected.DELETE("/events/:id", handler.handleDeleteEvent)
	protected.POST("/events/:id/participate", handler.handleParticipate)
	protected.DELETE("/events/:id/participate", handler.handleLeave)
	protected.DELETE("/events/:id/participants/:user_id", handler.handleRemoveParticipant)
	protected.GET("/events/:id/stream", handler.handleRosterStream)

	staff := protected.Group("/admin")
	staff.Use(handler.requireStaff)
	staff.GET("/dashboard", handler.handleAdminDashboard)
	staff.GET("/quick-stats", handler.handleAdminQuickStats)
	staff.GET("/filters", handler.handleAdminFilters)
	staff.GET("/users", handler.handleAdminUsers)
	staff.GET("/events", handler.handleAdminEvents)
	staff.POST("/users/actions", handler.handleAdminAction(admin.ModelUsers))
	staff.POST("/events/actions", handler.handleAdminAction(admin.ModelEvents))

	return router, nil
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-CSRFToken"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = allowedOrigins
	}
	return cors.New(config)
}

type httpHandler struct {
	identity      TokenExchanger
	accounts      AccountStore
	events        *events.Service
	admin         *admin.Registry
	sessions      SessionValidator
	realtime      *RosterDispatcher
	metrics       *httpMetrics
	tokenCache    *expirable.LRU[string, accounts.User]
	loginLimiter  *clientRateLimiter
	secureCookies bool
	heartbeat     time.Duration
	logger        *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
