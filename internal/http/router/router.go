package router

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"basegraph.app/concierge/internal/http/handler"
	"basegraph.app/concierge/internal/http/middleware"
	"basegraph.app/concierge/internal/service"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type RouterConfig struct {
	Auth   middleware.AuthConfig
	Health map[string]HealthCheck
}

func SetupRoutes(router *gin.Engine, turns handler.TurnHandler, services *service.Services, cfg RouterConfig) {
	router.GET("/health", health(cfg.Health))

	v1 := router.Group("/api/v1")
	if cfg.Auth.Secret != "" {
		v1.Use(middleware.RequireServiceToken(cfg.Auth))
	}
	{
		MessageRouter(v1.Group("/messages"), handler.NewMessageHandler(turns))

		conversationHandler := handler.NewConversationHandler(services.Conversations())
		ConversationRouter(v1.Group("/conversations"), conversationHandler)
		UserRouter(v1.Group("/users"), conversationHandler)
		v1.GET("/statistics", conversationHandler.Statistics)
	}
}

func health(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		status := http.StatusOK
		results := gin.H{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				slog.WarnContext(ctx, "health check failed", "dependency", name, "error", err)
				results[name] = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		c.JSON(status, gin.H{"status": overall, "checks": results})
	}
}
