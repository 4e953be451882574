package api

import (
	"github.com/gin-gonic/gin"

	"github.com/seyyidi/ravenchat/internal/api/chat"
	"github.com/seyyidi/ravenchat/internal/api/ingest"
	"github.com/seyyidi/ravenchat/internal/api/middleware"
	"github.com/seyyidi/ravenchat/internal/service"
)

// RouterConfig holds configuration for the router
type RouterConfig struct {
	AllowOrigins []string
}

// SetupRouter sets up the Gin router
func SetupRouter(sessions *service.SessionService, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// CORS middleware
	r.Use(middleware.CORS(cfg.AllowOrigins))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Embedded chat page
	SetupStaticRoutes(r)

	// Session + chat API
	chatHandler := chat.NewHandler(sessions)
	sessionGroup := r.Group("/api/sessions")
	chatHandler.RegisterRoutes(sessionGroup)

	// Ingestion side channel
	ingestHandler := ingest.NewHandler(sessions)
	ingestHandler.RegisterRoutes(sessionGroup)

	return r
}
