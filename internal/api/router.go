package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/careassist/hospital-assistant/internal/api/middleware"
	"github.com/careassist/hospital-assistant/internal/circuitbreaker"
	"github.com/careassist/hospital-assistant/internal/config"
	"github.com/careassist/hospital-assistant/internal/session"
)

// StateReporter reports the health of the persistence backend
type StateReporter interface {
	State() circuitbreaker.State
}

// RouterDeps are the collaborators the HTTP surface needs
type RouterDeps struct {
	Server   config.ServerConfig
	Sessions *session.Manager
	Store    StateReporter
	Stream   gin.HandlerFunc
	Logger   *zap.Logger
}

// NewRouter builds the gin engine with middleware and every route
func NewRouter(deps RouterDeps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(middleware.CORS(deps.Server.AllowedOrigins))
	router.Use(middleware.SecurityHeaders())
	if deps.Server.RatePerSecond > 0 {
		router.Use(middleware.PerIP(deps.Server.RatePerSecond, deps.Server.RateBurst))
	}

	router.GET("/health", func(c *gin.Context) {
		status := gin.H{
			"status": "healthy",
			"time":   time.Now().Unix(),
		}
		if deps.Store != nil {
			state := deps.Store.State()
			status["store"] = state.String()
			if state == circuitbreaker.StateOpen {
				status["status"] = "degraded"
			}
		}
		c.JSON(http.StatusOK, status)
	})

	sessions := NewSessionHandler(deps.Sessions, logger)
	group := router.Group("/api/session")
	group.Use(middleware.UserContext())
	{
		group.GET("", sessions.Get)
		group.POST("/open", sessions.Open)
		group.POST("/close", sessions.Close)
		group.POST("/clear", sessions.Clear)
		group.POST("/messages", middleware.PerUser(60.0/60.0, 20), sessions.SendMessage) // 60/min per user
		group.PUT("/zoom", sessions.SetZoom)
		group.PATCH("/preferences", sessions.UpdatePreferences)
		if deps.Stream != nil {
			group.GET("/stream", deps.Stream)
		}
	}

	return router
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
