package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/doniyusdinar/deploybot/controller/internal/database"
	"github.com/doniyusdinar/deploybot/pkg/logger"
	"github.com/doniyusdinar/deploybot/pkg/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrAgentNotFound = errors.New("agent not found")
	ErrHostnameEmpty = errors.New("hostname is required")
)

// DefaultStaleAfter is how long an agent may stay silent before it is
// reported unhealthy.
const DefaultStaleAfter = 30 * time.Second

// Store persists agents and their job logs
type Store interface {
	SaveAgent(ctx context.Context, agent *models.Agent) error
	GetAgent(ctx context.Context, id string) (*models.Agent, error)
	GetAgentByHostname(ctx context.Context, hostname string) (*models.Agent, error)
	ListAgents(ctx context.Context) ([]*models.Agent, error)
	SaveLog(ctx context.Context, entry *models.LogEntry) error
}

// Jobs is the part of the job queue the heartbeat protocol drives
type Jobs interface {
	NextJobForHost(ctx context.Context, hostname, agentID string) (*models.Job, error)
	GetJob(ctx context.Context, id string) (*models.Job, error)
	UpdateStatus(ctx context.Context, id string, status models.JobStatus, errMsg *string) (*models.Job, error)
}

// Registry tracks agents and turns heartbeats into job offers
type Registry struct {
	store      Store
	jobs       Jobs
	staleAfter time.Duration
	now        func() time.Time

	registerMu sync.Mutex
}

// New creates a registry. A zero staleAfter uses DefaultStaleAfter.
func New(store Store, jobs Jobs, staleAfter time.Duration) *Registry {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Registry{
		store:      store,
		jobs:       jobs,
		staleAfter: staleAfter,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Register creates or refreshes the agent for hostname. The agent id is
// stable across re-registrations; the token is always new.
func (r *Registry) Register(ctx context.Context, req models.RegisterRequest) (*models.RegisterResponse, error) {
	hostname := strings.TrimSpace(req.Hostname)
	if hostname == "" {
		return nil, ErrHostnameEmpty
	}
	capabilities := req.Capabilities
	if capabilities == nil {
		capabilities = models.Capabilities{}
	}

	r.registerMu.Lock()
	defer r.registerMu.Unlock()

	now := r.now()
	agent, err := r.store.GetAgentByHostname(ctx, hostname)
	switch {
	case errors.Is(err, database.ErrNotFound):
		agent = &models.Agent{
			ID:           uuid.New().String(),
			Hostname:     hostname,
			RegisteredAt: now,
		}
	case err != nil:
		return nil, fmt.Errorf("failed to look up agent %s: %w", hostname, err)
	}

	agent.Capabilities = capabilities
	agent.Status = models.AgentOnline
	agent.LastHeartbeat = now
	if err := r.store.SaveAgent(ctx, agent); err != nil {
		return nil, fmt.Errorf("failed to save agent %s: %w", hostname, err)
	}

	logger.Log.WithFields(logrus.Fields{"agent_id": agent.ID, "host": hostname}).Info("Agent registered")
	return &models.RegisterResponse{
		AgentID:    agent.ID,
		AgentToken: strings.ReplaceAll(uuid.New().String(), "-", ""),
	}, nil
}

// Heartbeat refreshes the agent's liveness and offers it at most one job.
func (r *Registry) Heartbeat(ctx context.Context, agentID string, status models.AgentStatus) (*models.HeartbeatResponse, error) {
	agent, err := r.store.GetAgent(ctx, agentID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrAgentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load agent %s: %w", agentID, err)
	}

	if status == "" {
		status = models.AgentOnline
	}
	agent.Status = status
	agent.LastHeartbeat = r.now()
	if err := r.store.SaveAgent(ctx, agent); err != nil {
		return nil, fmt.Errorf("failed to save heartbeat for %s: %w", agentID, err)
	}

	job, err := r.jobs.NextJobForHost(ctx, agent.Hostname, agentID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return &models.HeartbeatResponse{Acknowledged: true}, nil
	}

	envelope, err := BuildEnvelope(job)
	if err != nil {
		// The job left the pending set and can never be delivered.
		msg := err.Error()
		if _, failErr := r.jobs.UpdateStatus(ctx, job.ID, models.JobFailed, &msg); failErr != nil {
			logger.WithJob(job.ID, agent.Hostname).Errorf("Job is running but undeliverable, failed to mark it failed: %v", failErr)
		}
		return nil, err
	}

	logger.Log.WithFields(logrus.Fields{
		"agent_id": agentID,
		"job_id":   job.ID,
		"host":     agent.Hostname,
	}).Infof("Offered %s job to agent", envelope.Type)
	return &models.HeartbeatResponse{Acknowledged: true, Job: envelope}, nil
}

// Acknowledge applies an agent's completion report. "succeeded" maps to
// success; anything else fails the job with detail as its error.
func (r *Registry) Acknowledge(ctx context.Context, agentID, jobID string, req models.AckRequest) (*models.Job, error) {
	if _, err := r.jobs.GetJob(ctx, jobID); err != nil {
		return nil, err
	}

	if strings.EqualFold(strings.TrimSpace(req.Status), "succeeded") {
		return r.jobs.UpdateStatus(ctx, jobID, models.JobSuccess, nil)
	}

	detail := detailString(req.Detail)
	logger.Log.WithFields(logrus.Fields{"agent_id": agentID, "job_id": jobID}).Warnf("Agent reported job failure: %s", detail)
	return r.jobs.UpdateStatus(ctx, jobID, models.JobFailed, &detail)
}

// IngestLogs stores one block of agent output for a job.
func (r *Registry) IngestLogs(ctx context.Context, agentID, jobID, text string) (*models.LogEntry, error) {
	entry := &models.LogEntry{
		Timestamp: r.now(),
		JobID:     jobID,
		AgentID:   agentID,
		Level:     "INFO",
		Message:   text,
	}
	if err := r.store.SaveLog(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to store logs for job %s: %w", jobID, err)
	}
	return entry, nil
}

// Hosts lists every known agent with its health against the stale window.
func (r *Registry) Hosts(ctx context.Context) ([]models.HostInfo, error) {
	agents, err := r.store.ListAgents(ctx)
	if err != nil {
		return nil, err
	}

	now := r.now()
	hosts := make([]models.HostInfo, 0, len(agents))
	for _, agent := range agents {
		hosts = append(hosts, models.HostInfo{
			Hostname:    agent.Hostname,
			AgentID:     agent.ID,
			AgentStatus: agent.Status,
			LastSeen:    agent.LastHeartbeat,
			Healthy:     agent.Healthy(now, r.staleAfter),
		})
	}
	return hosts, nil
}

func detailString(detail any) string {
	switch d := detail.(type) {
	case nil:
		return ""
	case string:
		return d
	}
	raw, err := json.Marshal(detail)
	if err != nil {
		return fmt.Sprint(detail)
	}
	return string(raw)
}
