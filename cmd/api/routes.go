package main

import (
	"context"
	"net/http"
	"time"

	"inspection-platform/internal/app"
	"inspection-platform/internal/httpapi"
	"inspection-platform/pkg/utils"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers delegate to internal modules.
func registerRoutes(r *gin.Engine, a *app.App) {
	r.GET("/healthz", func(c *gin.Context) {
		status := gin.H{"status": "ok", "store": a.Config.App.StoreDriver}
		if a.DB != nil {
			if err := utils.HealthCheck(c.Request.Context(), a.DB, 2*time.Second); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "db": err.Error()})
				return
			}
		}
		if a.Redis != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := a.Redis.Ping(ctx).Err(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, status)
	})

	httpapi.Handlers{
		Auth:     a.Auth,
		Cases:    a.Cases,
		Reports:  a.Reports,
		DevLogin: a.Config.Auth.DevLogin,
	}.Register(r)
}
