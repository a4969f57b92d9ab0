package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/doniyusdinar/deploybot/agent/internal/backoff"
	"github.com/doniyusdinar/deploybot/agent/internal/controller"
	"github.com/doniyusdinar/deploybot/agent/internal/worker"
	"github.com/doniyusdinar/deploybot/pkg/logger"
	"github.com/doniyusdinar/deploybot/pkg/models"
)

// Controller is the agent-facing controller protocol.
type Controller interface {
	Register(ctx context.Context, hostname string, capabilities models.Capabilities) (*models.RegisterResponse, error)
	Heartbeat(ctx context.Context, agentID, token string) (*models.HeartbeatResponse, error)
	Ack(ctx context.Context, agentID, token, jobID string, ack models.AckRequest) error
	UploadLogs(ctx context.Context, agentID, token, jobID, text string) error
}

// JobRunner executes one offered job.
type JobRunner interface {
	Handle(ctx context.Context, job *models.AgentJob) (*worker.Result, error)
}

type Options struct {
	Hostname      string
	Capabilities  models.Capabilities
	Interval      time.Duration
	JobTimeout    time.Duration
	// RetryInterval is the first delay between attempts to report a job.
	RetryInterval time.Duration
	StateFile     string
	Controller    Controller
	Runner        JobRunner
}

// identity is the registration persisted across agent restarts.
type identity struct {
	AgentID    string `json:"agent_id"`
	AgentToken string `json:"agent_token"`
	Hostname   string `json:"hostname"`
}

// Poller heartbeats the controller and runs the jobs it is offered, one at a
// time.
type Poller struct {
	hostname     string
	capabilities models.Capabilities
	interval     time.Duration
	jobTimeout   time.Duration
	stateFile    string
	controller   Controller
	runner       JobRunner
	backoff      *backoff.Backoff
	retry        time.Duration
	wakeCh       chan struct{}

	id identity
}

func NewPoller(opts Options) *Poller {
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 10 * time.Minute
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = time.Second
	}
	return &Poller{
		hostname:     opts.Hostname,
		capabilities: opts.Capabilities,
		interval:     opts.Interval,
		jobTimeout:   opts.JobTimeout,
		stateFile:    opts.StateFile,
		controller:   opts.Controller,
		runner:       opts.Runner,
		backoff:      backoff.New(1*time.Second, 1*time.Minute, 2.0),
		retry:        opts.RetryInterval,
		wakeCh:       make(chan struct{}, 1),
	}
}

// Wake asks for a heartbeat ahead of the next tick.
func (p *Poller) Wake() {
	select {
	case p.wakeCh <- struct{}{}:
	default:
	}
}

// AgentID returns the current registration, empty before the first one.
func (p *Poller) AgentID() string {
	return p.id.AgentID
}

// Start runs the heartbeat loop until ctx is done.
func (p *Poller) Start(ctx context.Context) error {
	if err := p.loadState(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Log.Warnf("Failed to load agent state: %v", err)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// Check in immediately rather than waiting a full interval.
	p.Wake()

	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("Heartbeat loop stopped")
			return nil
		case <-ticker.C:
		case <-p.wakeCh:
		}

		if err := p.tick(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Log.Errorf("Heartbeat failed: %v", err)
			if err := p.backoff.Wait(ctx); err != nil {
				return nil
			}
			continue
		}
		p.backoff.Reset()
	}
}

// tick registers if needed, heartbeats, and runs an offered job.
func (p *Poller) tick(ctx context.Context) error {
	if p.id.AgentID == "" {
		if err := p.register(ctx); err != nil {
			return err
		}
	}

	resp, err := p.controller.Heartbeat(ctx, p.id.AgentID, p.id.AgentToken)
	if errors.Is(err, controller.ErrAgentUnknown) {
		logger.Log.Warnf("Controller does not know agent %s, registering again", p.id.AgentID)
		p.id = identity{}
		if err := p.register(ctx); err != nil {
			return err
		}
		p.Wake()
		return nil
	}
	if err != nil {
		return err
	}

	if resp.Job != nil {
		p.runJob(ctx, resp.Job)
		// More work may be queued for this host.
		p.Wake()
	}
	return nil
}

func (p *Poller) register(ctx context.Context) error {
	resp, err := p.controller.Register(ctx, p.hostname, p.capabilities)
	if err != nil {
		return err
	}
	p.id = identity{AgentID: resp.AgentID, AgentToken: resp.AgentToken, Hostname: p.hostname}
	logger.Log.Infof("Registered as agent %s for host %s", resp.AgentID, p.hostname)

	if err := p.saveState(); err != nil {
		logger.Log.Warnf("Failed to save agent state: %v", err)
	}
	return nil
}

// runJob executes job and reports its outcome. Transient reporting failures
// are retried until ctx is done, since the controller keeps the job running
// until an ack arrives.
func (p *Poller) runJob(ctx context.Context, job *models.AgentJob) {
	log := logger.WithJob(job.ID, p.hostname)
	log.Infof("Running %s job", job.Type)

	jobCtx, cancel := context.WithTimeout(ctx, p.jobTimeout)
	result, err := p.runner.Handle(jobCtx, job)
	cancel()

	if result != nil && result.Log != "" {
		uploadErr := p.report(ctx, func() error {
			return p.controller.UploadLogs(ctx, p.id.AgentID, p.id.AgentToken, job.ID, result.Log)
		})
		if uploadErr != nil {
			log.Warnf("Failed to upload logs: %v", uploadErr)
		}
	}

	ack := models.AckRequest{Status: "succeeded"}
	var detail map[string]any
	if result != nil && len(result.Detail) > 0 {
		detail = make(map[string]any, len(result.Detail)+1)
		for k, v := range result.Detail {
			detail[k] = v
		}
	}
	if err != nil {
		ack.Status = "failed"
		if detail == nil {
			detail = map[string]any{}
		}
		detail["error"] = err.Error()
	}
	if detail != nil {
		ack.Detail = detail
	}

	ackErr := p.report(ctx, func() error {
		return p.controller.Ack(ctx, p.id.AgentID, p.id.AgentToken, job.ID, ack)
	})
	if ackErr != nil {
		log.Errorf("Failed to report job outcome: %v", ackErr)
		return
	}
	log.Infof("Job finished: %s", ack.Status)
}

// report calls send until it succeeds, fails permanently or ctx is done.
func (p *Poller) report(ctx context.Context, send func() error) error {
	b := backoff.New(p.retry, time.Minute, 2.0)
	for {
		err := send()
		if !controller.Retryable(err) {
			return err
		}
		logger.Log.Warnf("Report to controller failed, retrying: %v", err)
		if waitErr := b.Wait(ctx); waitErr != nil {
			return err
		}
	}
}

// loadState restores a previous registration for this hostname.
func (p *Poller) loadState() error {
	if p.stateFile == "" {
		return os.ErrNotExist
	}
	data, err := os.ReadFile(p.stateFile)
	if err != nil {
		return err
	}

	var id identity
	if err := json.Unmarshal(data, &id); err != nil {
		return fmt.Errorf("corrupt state file: %w", err)
	}
	if id.Hostname != p.hostname {
		logger.Log.Infof("State file belongs to host %q, registering fresh", id.Hostname)
		return nil
	}

	p.id = id
	logger.Log.Infof("Loaded agent identity %s", id.AgentID)
	return nil
}

// saveState persists the registration
func (p *Poller) saveState() error {
	if p.stateFile == "" {
		return nil
	}
	data, err := json.Marshal(p.id)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(p.stateFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(p.stateFile, data, 0o600)
}
