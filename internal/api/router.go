package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"timeline-service/pkg/otel"
	"timeline-service/pkg/rbac"
)

// ReadinessCheck reports whether a dependency can serve traffic
type ReadinessCheck func(ctx context.Context) error

type RouterConfig struct {
	JWTSecret   string
	Permissions *rbac.Checker
	Readiness   map[string]ReadinessCheck
	Logger      *zap.Logger
}

type Router struct {
	Engine *gin.Engine
}

func NewRouter(cfg RouterConfig, milestones *MilestoneHandler, admin *AdminHandler) *Router {
	r := gin.New()
	r.Use(gin.Recovery(), TraceMiddleware(), otel.GinMiddleware(), RequestLogger(cfg.Logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/readyz", readyHandler(cfg.Readiness))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := r.Group("/")
	auth.Use(AuthMiddleware(cfg.JWTSecret))
	{
		view := RequirePermission(cfg.Permissions, rbac.PermissionViewTimeline)
		edit := RequirePermission(cfg.Permissions, rbac.PermissionEditMilestone)

		auth.GET("/timelines/:timelineId", view, milestones.GetTimeline)
		auth.GET("/timelines/:timelineId/milestones", view, milestones.ListMilestones)
		auth.PATCH("/timelines/:timelineId/milestones/:milestoneId", edit, milestones.UpdateMilestone)

		if admin != nil {
			ops := auth.Group("/admin/outbox")
			ops.Use(RequirePermission(cfg.Permissions, rbac.PermissionAdminOutbox))
			ops.GET("/failed", admin.ListFailedEvents)
			ops.POST("/replay", admin.ReplayOutboxEvent)
			ops.POST("/replay-failed", admin.ReplayFailedEvents)
		}
	}

	return &Router{Engine: r}
}

func readyHandler(checks map[string]ReadinessCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		for name, check := range checks {
			if err := check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": name + "_not_ready", "error": err.Error()})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}
