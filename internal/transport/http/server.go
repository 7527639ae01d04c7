package http

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"scholarbridge/internal/app"
	"scholarbridge/internal/bootstrap"
	"scholarbridge/internal/transport/http/handler"
	"scholarbridge/internal/transport/http/middleware"
)

var errConnectionClosed = errors.New("connection closed")

func NewRouter(a *bootstrap.App) *gin.Engine {
	gin.SetMode(a.Config.App.GinMode)
	router := gin.New()
	router.Use(middleware.RequestID(), middleware.RequestLogger(a.Metrics), middleware.Recovery())

	healthHandler := handler.NewHealthHandler(a.Config.App.Name, a.Config.App.Env, a.StartedAt, healthChecks(a))
	router.GET("/healthz", healthHandler.Check)
	router.GET("/metrics", gin.WrapH(a.Metrics.Handler()))

	webhookHandler := handler.NewWebhookHandler(a.Intake)
	webhookAuth := middleware.WebhookSecret(a.Config.Auth.WebhookSecretHash)
	router.POST("/webhooks/baserow", webhookAuth, webhookHandler.Receive)
	router.POST("/handle-new-record", webhookAuth, webhookHandler.Receive)

	documentHandler := handler.NewDocumentHandler(a.Documents)
	linkAuth := middleware.ProfileLinkToken(a.Config.Auth.JWTSecret, a.Config.Documents.RequireToken)
	router.GET("/students/:id/profile.pdf", linkAuth, documentHandler.Profile)
	router.GET("/student-details/:id", linkAuth, documentHandler.Profile)

	reconcileHandler := handler.NewReconcileHandler(a.Reconcile)
	v1 := router.Group("/api/v1")
	reconGroup := v1.Group("/reconciliations")
	reconGroup.Use(middleware.AdminJWT(a.Config.Auth.JWTSecret))
	reconGroup.GET("", reconcileHandler.List)
	reconGroup.POST("/retry", reconcileHandler.RetryPending)
	reconGroup.POST("/:recordId/retry", reconcileHandler.Retry)

	return router
}

func healthChecks(a *bootstrap.App) map[string]handler.Pinger {
	checks := map[string]handler.Pinger{
		"mysql": handler.PingFunc(func(ctx context.Context) error {
			sqlDB, err := a.MySQL.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}),
		"redis": handler.PingFunc(func(ctx context.Context) error {
			return a.Redis.Ping(ctx).Err()
		}),
	}
	if a.Config.Intake.Mode == app.IntakeModeQueue {
		checks["rabbitmq"] = handler.PingFunc(func(context.Context) error {
			if a.MQConn == nil || a.MQConn.IsClosed() {
				return errConnectionClosed
			}
			return nil
		})
	}
	return checks
}
