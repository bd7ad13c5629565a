// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, route handlers and the WebSocket relay. It centralizes
// cross-cutting concerns such as tracing, correlation IDs, logging/redaction,
// panic recovery, metrics, CORS, compression, security headers, optional
// bearer identification and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Long-lived relay connections bypass per-request limits and compression
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-chat-relay/internal/auth"
	"github.com/tbourn/go-chat-relay/internal/config"
	"github.com/tbourn/go-chat-relay/internal/domain"
	"github.com/tbourn/go-chat-relay/internal/http/handlers"
	"github.com/tbourn/go-chat-relay/internal/http/middleware"
	"github.com/tbourn/go-chat-relay/internal/relay"
	"github.com/tbourn/go-chat-relay/internal/repo"
	"github.com/tbourn/go-chat-relay/internal/services"
)

// userRepoShim adapts the repository free functions to the services.UserRepo
// interface expected by the AccountService. This keeps services decoupled
// from the concrete repo package while reusing existing functions.
type userRepoShim struct{}

// CreateUser proxies repo.CreateUser.
func (userRepoShim) CreateUser(ctx context.Context, db *gorm.DB, in repo.NewUser) (*domain.User, error) {
	return repo.CreateUser(ctx, db, in)
}

// FindUserByName proxies repo.FindUserByName.
func (userRepoShim) FindUserByName(ctx context.Context, db *gorm.DB, name string) (*domain.User, error) {
	return repo.FindUserByName(ctx, db, name)
}

// FindUserByEmail proxies repo.FindUserByEmail.
func (userRepoShim) FindUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	return repo.FindUserByEmail(ctx, db, email)
}

// SearchUsersByEmail proxies repo.SearchUsersByEmail.
func (userRepoShim) SearchUsersByEmail(ctx context.Context, db *gorm.DB, query string, limit int) ([]domain.User, error) {
	return repo.SearchUsersByEmail(ctx, db, query, limit)
}

// tokenPaths return session tokens and must never be cached.
var tokenPaths = []string{"/emaillogin", "/googlelogin", "/auth/google"}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the relay's WebSocket endpoint at cfg.Relay.Path. It
// returns the relay handler so the caller can close live sessions on
// shutdown.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured access logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Bearer identification, then the request-scoped logger
//  8. Rate limiter (per user/IP; relay path, health and metrics exempt)
//  9. CORS, compression and security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config) *relay.Handler {
	r.HandleMethodNotAllowed = true

	// Dependency injection: services ← repo/db
	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.JWTTTL)
	accounts := services.NewAccountService(db, userRepoShim{}, tokens)
	accounts.DefaultAvatar = cfg.Auth.DefaultAvatarURL
	if cfg.Auth.GoogleEnabled() {
		accounts.Google = &auth.GoogleVerifier{ClientID: cfg.Auth.GoogleClientID}
		accounts.Exchanger = auth.NewGoogleExchanger(cfg.Auth.GoogleClientID, cfg.Auth.GoogleClientSecret)
	}
	history := &services.HistoryService{DB: db}

	// Relay: presence registry + delivery engine share the account and
	// history services with the REST API.
	registry := relay.NewRegistry()
	engine := relay.NewEngine(registry, accounts, history, cfg.Relay.PersistTimeout)
	relayHandler := relay.NewHandler(registry, engine, relay.OptionsFromConfig(cfg.Relay))

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"Sec-WebSocket-Key", // handshake nonce
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Optional bearer identification feeds the limiter key and the logger
	r.Use(middleware.Authenticate(func(raw string) (string, error) {
		claims, err := tokens.Parse(raw)
		if err != nil {
			return "", err
		}
		return claims.Subject, nil
	}))
	r.Use(middleware.Logger())

	// 8) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP()).
		Exempt(cfg.Relay.Path, "/health", "/metrics")
	r.Use(rl.Handler())

	// 9) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Compression for JSON responses; the relay hijacks its connection and
	// Prometheus negotiates its own encoding.
	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPaths([]string{cfg.Relay.Path, "/metrics"}),
	))

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		NoStorePaths: prefixed(cfg.APIBasePath, tokenPaths),
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "relay_connections": relayHandler.Len()})
	})

	// API docs
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// WebSocket relay
	r.GET(cfg.Relay.Path, gin.WrapH(relayHandler))

	h := handlers.New(accounts, history)

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath) // "/" by default
	{
		// Accounts
		api.POST("/emailsignup", h.EmailSignup)
		api.POST("/emaillogin", h.EmailLogin)
		api.POST("/googlelogin", h.GoogleLogin)
		api.POST("/auth/google", h.GoogleCode)
		api.GET("/search", h.SearchUsers)
		api.GET("/getImage", h.GetImage)

		// History
		api.POST("/messages", h.ListConversation)
	}

	return relayHandler
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

// prefixed joins each path onto the API base path.
func prefixed(base string, paths []string) []string {
	if base == "" || base == "/" {
		return paths
	}
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = base + p
	}
	return out
}
