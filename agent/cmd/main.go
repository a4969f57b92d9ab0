package main

import (
	"context"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/doniyusdinar/deploybot/agent/internal/config"
	"github.com/doniyusdinar/deploybot/agent/internal/controller"
	"github.com/doniyusdinar/deploybot/agent/internal/poller"
	"github.com/doniyusdinar/deploybot/agent/internal/worker"
	"github.com/doniyusdinar/deploybot/pkg/logger"
	"github.com/doniyusdinar/deploybot/pkg/models"
	"github.com/doniyusdinar/deploybot/pkg/nats"
	"github.com/doniyusdinar/deploybot/pkg/redis"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Log.Fatalf("Failed to load config: %v", err)
	}

	logger.SetLevel(cfg.LogLevel)
	logger.Log.Infof("Starting Deploybot Agent on %s", cfg.Hostname)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := poller.NewPoller(poller.Options{
		Hostname:     cfg.Hostname,
		Capabilities: detectCapabilities(cfg),
		Interval:     cfg.HeartbeatInterval,
		JobTimeout:   cfg.JobTimeout,
		StateFile:    cfg.StateFile,
		Controller:   controller.NewClient(cfg.ControllerURL),
		Runner: worker.NewManager(worker.Options{
			WorkDir:   cfg.WorkDir,
			AllowExec: cfg.AllowExec,
		}),
	})

	switch cfg.WakeStrategy {
	case config.WakeRedis:
		redisClient, err := redis.NewClient(redis.Config{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Enabled:  true,
		})
		if err != nil {
			logger.Log.Warnf("Redis unavailable, relying on heartbeats: %v", err)
			break
		}
		defer redisClient.Close()
		poller.RunWakeSource(ctx, poller.NewRedisWakeSource(redisClient, cfg.Hostname), p)
	case config.WakeNATS:
		natsClient := nats.NewClient(nats.Config{
			URLs:           cfg.NATSURLs,
			MaxReconnect:   -1,
			ReconnectWait:  2 * time.Second,
			ConnectionName: "deploybot-agent-" + cfg.Hostname,
			SubjectPrefix:  cfg.NATSSubjectPrefix,
			Enabled:        true,
		})
		if err := natsClient.Connect(); err != nil {
			logger.Log.Warnf("NATS unavailable, relying on heartbeats: %v", err)
			break
		}
		defer natsClient.Close()
		poller.RunWakeSource(ctx, poller.NewNATSWakeSource(natsClient, cfg.Hostname), p)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := p.Start(ctx); err != nil {
			logger.Log.Errorf("Heartbeat loop error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down agent...")
	cancel()
	<-done
	logger.Log.Info("Agent exited")
}

// detectCapabilities reports the tooling this host can run jobs with.
func detectCapabilities(cfg *config.Config) models.Capabilities {
	caps := models.Capabilities{
		"os":   runtime.GOOS,
		"arch": runtime.GOARCH,
		"exec": cfg.AllowExec,
	}
	for _, tool := range []string{"docker", "git", "bash"} {
		_, err := exec.LookPath(tool)
		caps[tool] = err == nil
	}
	return caps
}
