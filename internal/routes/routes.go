package routes

import (
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"amoflow/internal/authz"
	"amoflow/internal/handlers"
	"amoflow/internal/middleware"
)

type Options struct {
	JWTSecret   []byte
	AuthEnabled bool
	Debug       bool
	Log         *log.Logger
}

func SetupRoutes(
	r *gin.Engine,
	authHandler *handlers.AuthHandler,
	automationHandler *handlers.AutomationHandler,
	opts Options,
) *gin.Engine {
	r.Use(handlers.Guard(opts.Log, opts.Debug, time.Now))
	r.Use(middleware.CORS())

	// ---- public
	r.GET("/healthz", handlers.Health)
	r.POST("/login", authHandler.Login)

	// ---- protected
	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware(opts.JWTSecret, opts.AuthEnabled))
	{
		api.GET("/config", automationHandler.Config)
		api.GET("/stages", automationHandler.ListStages)
		api.GET("", middleware.RequireRoles(authz.RoleOperator), automationHandler.Run)
		api.POST("", middleware.RequireRoles(authz.RoleOperator), automationHandler.Run)
	}

	return r
}
