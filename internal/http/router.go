// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, authentication, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	_ "github.com/tbourn/go-ttm-coach/docs"
	"github.com/tbourn/go-ttm-coach/internal/catalog"
	"github.com/tbourn/go-ttm-coach/internal/config"
	"github.com/tbourn/go-ttm-coach/internal/engine"
	"github.com/tbourn/go-ttm-coach/internal/http/handlers"
	"github.com/tbourn/go-ttm-coach/internal/http/middleware"
	"github.com/tbourn/go-ttm-coach/internal/knowledge"
	"github.com/tbourn/go-ttm-coach/internal/llm"
	"github.com/tbourn/go-ttm-coach/internal/repo"
	"github.com/tbourn/go-ttm-coach/internal/services"
)

// Deps are the long-lived components the routes are built from.
type Deps struct {
	DB        *gorm.DB
	Catalog   *catalog.Catalog
	Knowledge *knowledge.Index
	// LLM may be llm.Disabled; chat then answers from Knowledge.
	LLM llm.Client
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), CORS and security
// headers, health, metrics and docs endpoints, and then mounts the versioned
// public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. CORS and Security headers (preflights never reach auth)
//  8. gzip for JSON bodies
//
// The API group then adds Auth, the idempotency validator and the rate
// limiter, in that order: the limiter keys on the authenticated user and is
// bypassed for idempotent replays.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) error {
	r.HandleMethodNotAllowed = true

	policy, err := engine.ParseSEPolicy(cfg.SEPolicy)
	if err != nil {
		return fmt.Errorf("router: %w", err)
	}

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key", "X-Goog-Api-Key"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) CORS posture and security headers
	useCORS(r, cfg.CORS.AllowedOrigins)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// 8) Compress responses (scrapes are left alone)
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "catalog_version": deps.Catalog.Version})
	})

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(newServices(deps, cfg, policy))

	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(middleware.Auth(middleware.AuthOptions{
		Secret:   []byte(cfg.Auth.JWTSecret),
		Issuer:   cfg.Auth.Issuer,
		Required: cfg.Auth.Required,
		Leeway:   30 * time.Second,
	}))
	api.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		idempotencyLookup(deps.DB),
	))
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	api.Use(rl.Handler())
	{
		// Prescriptions
		api.POST("/prescriptions", h.SubmitPrescription)
		api.GET("/prescriptions", h.ListPrescriptions)
		api.GET("/prescriptions/:id", h.GetPrescription)
		api.GET("/prescriptions/:id/skeleton", h.GetPrescriptionSkeleton)
		api.POST("/skeleton", h.PlanSkeleton)
		api.POST("/style", h.RewriteStyle)

		// Work chat
		api.GET("/stages/:id", h.GetStage)
		api.POST("/sessions", h.CreateSession)
		api.GET("/sessions", h.ListSessions)
		api.PUT("/sessions/:id/title", h.UpdateSessionTitle)
		api.GET("/sessions/:id/messages", h.ListMessages)
		api.POST("/sessions/:id/messages", h.PostMessage)
		api.POST("/workchat", h.WorkChat)
		api.POST("/workchat/evaluate-example", h.EvaluateExample)

		// Feedback
		api.POST("/messages/:id/feedback", h.LeaveFeedback)
	}
	return nil
}

// newServices builds the application services from deps.
func newServices(deps Deps, cfg config.Config, policy engine.SelfEfficacyPolicy) (
	*services.PrescriptionService, *services.StyleService, *services.SessionService,
	*services.WorkChatService, *services.FeedbackService,
) {
	client := deps.LLM
	if client == nil {
		client = llm.Disabled{}
	}
	style := &services.StyleService{LLM: client}
	presc := services.NewPrescriptionService(deps.DB, deps.Catalog, policy, style, cfg.IdempotencyTTL)
	chat := &services.WorkChatService{
		DB:             deps.DB,
		Catalog:        deps.Catalog,
		Planner:        presc.Planner,
		LLM:            client,
		Knowledge:      deps.Knowledge,
		HistoryLimit:   cfg.ChatHistoryLimit,
		MaxPromptRunes: cfg.MaxPromptRunes,
		TitleLocale:    language.English,
		IdempotencyTTL: cfg.IdempotencyTTL,
	}
	return presc, style, services.NewSessionService(deps.DB), chat, &services.FeedbackService{DB: deps.DB}
}

// useCORS installs gin-contrib/cors. With no allowlist every origin is
// accepted without credentials; otherwise allowed origins are echoed back.
func useCORS(r *gin.Engine, origins []string) {
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderUserID, middleware.HeaderIdempotencyKey, "If-None-Match"}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", middleware.HeaderIdempotencyReplayed, "Retry-After"}
	methods := []string{"GET", "POST", "PUT", "OPTIONS"}

	if len(origins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     methods,
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
		return
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
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
		AllowOrigins:     origins,
		AllowMethods:     methods,
		AllowHeaders:     allowHeaders,
		ExposeHeaders:    exposeHeaders,
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
}

// idempotencyLookup reports whether a live key exists. A miss is not an
// error; storage failures are returned so the middleware can log them.
func idempotencyLookup(db *gorm.DB) middleware.IdempotencyLookup {
	return func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
		rec, err := repo.GetIdempotency(ctx, db, userID, scope, key, now)
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return rec != nil, nil
	}
}

// limitBody caps the request body size for all endpoints to maxBytes using
// http.MaxBytesReader. Requests exceeding the cap make downstream body reads
// fail.
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
