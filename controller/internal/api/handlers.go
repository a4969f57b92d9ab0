package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/doniyusdinar/deploybot/controller/internal/database"
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

// LaunchPlanner fills in a launch script for repository deploys
type LaunchPlanner interface {
	EnsureLaunchScript(ctx context.Context, metadata map[string]any, repoURL, ref string, allowInference bool)
}

// Options wires the controller's components into the HTTP layer
type Options struct {
	DB          *database.DB
	Queue       *queue.Queue
	Registry    *registry.Registry
	Engine      *sshexec.Engine
	Planner     LaunchPlanner
	Webhook     *webhook.Handler
	RedisClient *redis.Client
	NATSClient  *natspkg.Client
	Admin       auth.Credentials
}

// Handler serves the controller's HTTP API
type Handler struct {
	db          *database.DB
	queue       *queue.Queue
	registry    *registry.Registry
	engine      *sshexec.Engine
	planner     LaunchPlanner
	webhook     *webhook.Handler
	redisClient *redis.Client
	natsClient  *natspkg.Client
	admin       auth.Credentials
}

func NewHandler(opts Options) *Handler {
	return &Handler{
		db:          opts.DB,
		queue:       opts.Queue,
		registry:    opts.Registry,
		engine:      opts.Engine,
		planner:     opts.Planner,
		webhook:     opts.Webhook,
		redisClient: opts.RedisClient,
		natsClient:  opts.NATSClient,
		admin:       opts.Admin,
	}
}

// AdminAuthMiddleware guards operator endpoints with basic auth
func (h *Handler) AdminAuthMiddleware() gin.HandlerFunc {
	return auth.Middleware(h.admin)
}

// respondError maps a component error to its HTTP status.
func respondError(c *gin.Context, err error, action string) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
	case errors.Is(err, queue.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
	case errors.Is(err, registry.ErrAgentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Agent not found"})
	case errors.Is(err, ErrCommandNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Command not found"})
	case errors.Is(err, ErrDeploymentNotFound), errors.Is(err, database.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Deployment not found"})
	case errors.Is(err, registry.ErrHostnameEmpty):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, queue.ErrTerminalState), errors.Is(err, queue.ErrNotPending),
		errors.Is(err, queue.ErrInvalidTransition), errors.Is(err, ErrInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		logger.Log.Errorf("Failed to %s: %v", action, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to " + action})
	}
}

// HealthCheck godoc
// @Summary Health check
// @Description Report controller health and the state of optional event backends
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok", "pending_jobs": h.queue.PendingCount()}

	if err := h.db.Ping(c.Request.Context()); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
		body["database"] = err.Error()
	}
	if h.redisClient != nil {
		body["redis"] = h.redisClient.IsConnected()
	}
	if h.natsClient != nil {
		body["nats"] = "ok"
		if err := h.natsClient.HealthCheck(); err != nil {
			body["nats"] = err.Error()
		}
	}
	c.JSON(status, body)
}
