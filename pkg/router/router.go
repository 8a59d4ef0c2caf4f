package router

import (
	"net/http"

	"ai-character-chat/backend/internal/api"
	"ai-character-chat/backend/pkg/config"
	"ai-character-chat/backend/pkg/di"
	"ai-character-chat/backend/pkg/errors"
	"ai-character-chat/backend/pkg/logger"
	"ai-character-chat/backend/pkg/middleware"
	"ai-character-chat/backend/pkg/observability"

	"github.com/gin-gonic/gin"
)

// Router is the main router for the application
type Router struct {
	Engine    *gin.Engine
	Container *di.Container
	Logger    *logger.Logger
	Config    *config.Config
}

// New creates a new router with the given container
func New(container *di.Container) *Router {
	logger.SetGlobal(container.Logger)

	cfg := config.Get()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := newEngine(cfg, container.Logger)

	rateLimiter := middleware.NewRateLimiterFromConfig(container.Logger, cfg.Security.RateLimit, cfg.Security.RateLimitBurst)
	engine.Use(rateLimiter.Middleware())

	return &Router{
		Engine:    engine,
		Container: container,
		Logger:    container.Logger,
		Config:    cfg,
	}
}

// SetupRoutes registers all application routes
func (r *Router) SetupRoutes() {
	chatHandler := api.NewChatHandler(r.Container.ChatService, r.Logger)

	v1 := r.Engine.Group("/api/v1")
	{
		v1.GET("/chat", chatHandler.GetProfile)
		v1.POST("/chat", chatHandler.PostChat)
	}

	// Legacy unversioned routes the deployed frontend still calls.
	r.Engine.GET("/chat", chatHandler.GetProfile)
	r.Engine.POST("/chat", chatHandler.PostChat)

	r.Engine.GET("/metrics", gin.WrapH(observability.Handler()))

	r.setupHealthRoutes()
}

// Unavailable builds a router whose every request answers 503. It is served
// when a startup dependency (store or generation client) failed to
// initialize; only a restart can clear the condition.
func Unavailable(log *logger.Logger) *gin.Engine {
	cfg := config.Get()
	engine := newEngine(cfg, log)

	unavailable := func(c *gin.Context) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable."})
	}
	engine.NoRoute(unavailable)
	engine.NoMethod(unavailable)
	engine.GET("/chat", unavailable)
	engine.POST("/chat", unavailable)
	engine.GET("/api/v1/chat", unavailable)
	engine.POST("/api/v1/chat", unavailable)

	return engine
}

// newEngine builds a gin engine with the shared middleware chain.
func newEngine(cfg *config.Config, log *logger.Logger) *gin.Engine {
	engine := gin.New()
	engine.HandleMethodNotAllowed = true

	engine.Use(logger.Middleware(log))
	engine.Use(errors.ErrorHandler())
	engine.Use(errors.RecoveryWithLogger())
	engine.Use(corsMiddleware(cfg.Security.AllowedOrigin))

	engine.NoMethod(func(c *gin.Context) {
		c.String(http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	return engine
}

// corsMiddleware answers preflight for the fixed allow-listed origin. Only
// GET, POST and OPTIONS are offered, with Content-Type as the sole extra
// request header.
func corsMiddleware(allowedOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)

		if c.Request.Method == http.MethodOptions {
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			c.Writer.Header().Set("Access-Control-Max-Age", "3600")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
