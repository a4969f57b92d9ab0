package api

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func SetupRouter(handler *Handler) *gin.Engine {
	router := gin.Default()

	// Health check
	router.GET("/health", handler.HealthCheck)

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := router.Group("/v1")
	{
		// Agent protocol
		agents := v1.Group("/agents")
		agents.POST("/register", handler.RegisterAgent)
		agents.POST("/:id/heartbeat", handler.Heartbeat)
		agents.POST("/:id/jobs/:job_id", handler.AckJob)
		agents.POST("/:id/jobs/:job_id/logs", handler.ReceiveLogs)

		// Push deliveries are authenticated by signature
		v1.POST("/webhooks/github", handler.GitHubWebhook)

		// Operator endpoints (admin auth required)
		admin := v1.Group("", handler.AdminAuthMiddleware())
		admin.POST("/jobs", handler.CreateJob)
		admin.GET("/jobs", handler.ListJobs)
		admin.GET("/jobs/:id", handler.GetJob)
		admin.GET("/jobs/:id/logs", handler.GetJobLogs)
		admin.POST("/jobs/:id/cancel", handler.CancelJob)

		admin.GET("/deployments", handler.ListDeployments)
		admin.POST("/deployments", handler.CreateDeployment)
		admin.GET("/deployments/:id", handler.GetDeployment)
		admin.PUT("/deployments/:id", handler.UpdateDeployment)
		admin.DELETE("/deployments/:id", handler.DeleteDeployment)
		admin.POST("/deployments/:id/clone", handler.CloneDeployment)

		admin.GET("/commands", handler.ListCommands)
		admin.POST("/commands", handler.CreateCommand)
		admin.GET("/commands/:id", handler.GetCommand)
		admin.PUT("/commands/:id", handler.UpdateCommand)
		admin.DELETE("/commands/:id", handler.DeleteCommand)
		admin.POST("/commands/:id/run", handler.RunCommand)

		admin.GET("/hosts", handler.ListHosts)

		admin.POST("/deploy/ssh", handler.DeployViaSSH)
		admin.POST("/ssh/execute", handler.ExecuteSSH)
		admin.POST("/ssh/metrics", handler.SSHMetrics)
		admin.POST("/ssh/containers", handler.SSHContainers)
	}

	return router
}
