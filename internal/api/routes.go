package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/crm-gin/internal/auth"
	"github.com/mautops/crm-gin/internal/config"
	"github.com/mautops/crm-gin/internal/service"
	"github.com/mautops/crm-gin/internal/storage"
	"gorm.io/gorm"
)

// RouterDeps 路由依赖
type RouterDeps struct {
	Config        *config.Config
	DB            *gorm.DB
	Storage       storage.Storage
	Authenticator auth.Authenticator
	Tasks         service.TaskService
	Settings      service.SettingsService
	Notifications service.NotificationService
	Workload      service.WorkloadService
	Statistics    service.StatisticsService
}

// SetupRoutes 使用默认配置创建路由
func SetupRoutes(deps RouterDeps) *gin.Engine {
	if deps.Config == nil {
		deps.Config = config.Default()
	}
	return SetupRoutesWithConfig(deps)
}

// SetupRoutesWithConfig 配置中间件并注册全部路由
func SetupRoutesWithConfig(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	router := gin.New()
	router.MaxMultipartMemory = MaxAttachmentSize

	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	if cfg.Tracing.Enabled {
		router.Use(TracingMiddleware(&cfg.Tracing))
	}
	router.Use(RequestLogMiddleware())
	router.Use(CORSMiddleware(&cfg.CORS))
	router.Use(SecurityHeadersMiddleware(config.IsProduction(cfg)))
	if cfg.RateLimit.Enabled {
		router.Use(RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	}
	router.Use(ErrorHandlerMiddleware())

	health := NewHealthController(deps.DB, deps.Storage)
	router.GET("/health", health.Check)
	router.GET("/metrics", MetricsHandler)

	authController := NewAuthController(deps.Authenticator, cfg.Auth.CookieName, config.IsProduction(cfg))
	taskController := NewTaskController(deps.Tasks)
	notificationController := NewNotificationController(deps.Notifications)
	workloadController := NewWorkloadController(deps.Workload, deps.Statistics)
	settingsController := NewSettingsController(deps.Settings)

	v1 := router.Group("/api/v1")
	v1.POST("/auth/login", authController.Login)

	secured := v1.Group("")
	secured.Use(auth.AuthMiddleware(deps.Authenticator, cfg.Auth.CookieName))
	{
		secured.POST("/auth/logout", authController.Logout)
		secured.GET("/me", authController.Me)

		tasks := secured.Group("/tasks")
		{
			tasks.GET("", taskController.List)
			tasks.POST("", taskController.Create)
			// board 必须在 /:id 之前注册
			tasks.GET("/board", taskController.Board)
			tasks.GET("/:id", taskController.Get)
			tasks.POST("/:id/move", taskController.Move)
			tasks.POST("/:id/reorder", taskController.Reorder)
			tasks.POST("/:id/comments", taskController.AddComment)
			tasks.POST("/:id/attachments", taskController.AddAttachment)
		}

		secured.GET("/workload", workloadController.Workload)
		secured.GET("/statistics", workloadController.Statistics)

		notifications := secured.Group("/notifications")
		{
			notifications.GET("", notificationController.List)
			notifications.GET("/unread-count", notificationController.UnreadCount)
			notifications.POST("/read", notificationController.MarkAllRead)
			notifications.POST("/:id/read", notificationController.MarkRead)
		}

		settings := secured.Group("/settings")
		{
			settings.GET("/stages", settingsController.ListStages)
			settings.POST("/stages", settingsController.CreateStage)
			settings.POST("/stages/:id/toggle", settingsController.ToggleStage)
			settings.DELETE("/stages/:id", settingsController.DeleteStage)

			settings.GET("/automations", settingsController.ListAutomations)
			settings.POST("/automations", settingsController.CreateAutomation)
			settings.POST("/automations/:id/toggle", settingsController.ToggleAutomation)

			settings.GET("/recurrences", settingsController.ListRecurrences)
			settings.POST("/recurrences", settingsController.CreateRecurrence)
			settings.POST("/recurrences/run", settingsController.RunRecurrences)
			settings.POST("/recurrences/:id/toggle", settingsController.ToggleRecurrence)

			settings.GET("/workspaces", settingsController.ListWorkspaces)
			settings.POST("/workspaces", settingsController.CreateWorkspace)
			settings.PUT("/workspaces/:id", settingsController.RenameWorkspace)
			settings.POST("/workspaces/:id/toggle", settingsController.ToggleWorkspace)

			settings.GET("/teams", settingsController.ListTeams)
			settings.POST("/teams", settingsController.CreateTeam)
			settings.POST("/teams/:id/toggle", settingsController.ToggleTeam)

			settings.GET("/memberships", settingsController.ListMemberships)
			settings.POST("/memberships", settingsController.AddMembership)
			settings.DELETE("/memberships/:team_id/:user_id", settingsController.RemoveMembership)
		}
	}

	// 未匹配的路由返回 JSON 404
	router.NoRoute(func(c *gin.Context) {
		Error(c, http.StatusNotFound, "route not found", "the requested route does not exist")
	})
	return router
}
