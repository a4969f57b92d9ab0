package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/doniyusdinar/deploybot/controller/internal/api"
	"github.com/doniyusdinar/deploybot/controller/internal/config"
	"github.com/doniyusdinar/deploybot/controller/internal/database"
	"github.com/doniyusdinar/deploybot/controller/internal/events"
	"github.com/doniyusdinar/deploybot/controller/internal/launch"
	"github.com/doniyusdinar/deploybot/controller/internal/queue"
	"github.com/doniyusdinar/deploybot/controller/internal/registry"
	"github.com/doniyusdinar/deploybot/controller/internal/sshexec"
	"github.com/doniyusdinar/deploybot/controller/internal/webhook"
	"github.com/doniyusdinar/deploybot/pkg/auth"
	"github.com/doniyusdinar/deploybot/pkg/logger"
	natspkg "github.com/doniyusdinar/deploybot/pkg/nats"
	"github.com/doniyusdinar/deploybot/pkg/redis"
	"github.com/gin-gonic/gin"
)

// @title Deploybot Controller API
// @version 1.0
// @description Deployment orchestration controller: job queue, agent heartbeat protocol and agentless SSH execution

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8080
// @BasePath /
// @schemes http https

// @securityDefinitions.basic BasicAuth

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.SetLevel(cfg.LogLevel)
	logger.Log.Info("Starting Deploybot Controller")

	// Initialize database
	db, err := database.New(cfg.DBPath)
	if err != nil {
		logger.Log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	logger.Log.Info("Database initialized successfully")

	// Rebuild the working set from the store
	jobQueue := queue.New(db)
	if err := jobQueue.Initialize(context.Background()); err != nil {
		logger.Log.Fatalf("Failed to recover job queue: %v", err)
	}

	// Optional event backends
	notifier := events.NewNotifier()

	redisClient, err := redis.NewClient(redis.Config{
		Address:  cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Enabled:  cfg.RedisEnabled,
	})
	if err != nil {
		logger.Log.Warnf("Redis unavailable, job events will not be published there: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		notifier.Add(redisClient)
	}

	var natsClient *natspkg.Client
	if cfg.NATSEnabled {
		natsClient = natspkg.NewClient(natspkg.Config{
			URLs:           cfg.NATSURLs,
			MaxReconnect:   -1,
			ReconnectWait:  2 * time.Second,
			ConnectionName: "deploybot-controller",
			SubjectPrefix:  cfg.NATSSubjectPrefix,
			Enabled:        true,
		})
		if err := natsClient.Connect(); err != nil {
			logger.Log.Warnf("NATS unavailable, job events will not be published there: %v", err)
			natsClient = nil
		} else {
			defer natsClient.Close()
			notifier.Add(natsClient)
		}
	}

	if notifier.Len() > 0 {
		jobQueue.SetNotifier(notifier)
	}

	engine := sshexec.NewEngine(sshexec.Config{
		WorkDir:        cfg.SSHWorkDir,
		CommandTimeout: cfg.SSHCommandTimeout,
		Dial:           sshexec.DialSSH,
	})
	defer engine.Close()

	apps, err := webhook.LoadApps(cfg.AppsConfig)
	if err != nil {
		logger.Log.Fatalf("Failed to load apps config: %v", err)
	}
	logger.Log.Infof("Loaded %d webhook app(s) from %s", len(apps), cfg.AppsConfig)

	admin := auth.Credentials{Username: cfg.AdminUsername, Password: cfg.AdminPassword}
	if !admin.Enabled() {
		logger.Log.Warn("ADMIN_PASSWORD is not set, operator endpoints are unauthenticated")
	}

	handler := api.NewHandler(api.Options{
		DB:          db,
		Queue:       jobQueue,
		Registry:    registry.New(db, jobQueue, cfg.AgentStale),
		Engine:      engine,
		Planner:     launch.NewPlanner(launch.NewChatRefiner(cfg.LaunchAIURL, cfg.LaunchAIKey, cfg.LaunchAIModel)),
		Webhook:     webhook.NewHandler(cfg.WebhookSecret, apps),
		RedisClient: redisClient,
		NATSClient:  natsClient,
		Admin:       admin,
	})

	// Setup router
	gin.SetMode(gin.ReleaseMode)
	router := api.SetupRouter(handler)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.Log.Infof("Controller listening on port %s", cfg.Port)
		logger.Log.Infof("Swagger docs available at http://localhost:%s/swagger/index.html", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Log.Info("Server exited")
}
