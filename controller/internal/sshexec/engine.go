package sshexec

import (
	"context"
	"time"

	"github.com/doniyusdinar/deploybot/pkg/logger"
	"github.com/doniyusdinar/deploybot/pkg/models"
)

// Engine runs agentless operations against hosts through a Pool.
type Engine struct {
	pool *Pool
}

// Config holds engine settings
type Config struct {
	WorkDir        string
	CommandTimeout time.Duration
	Dial           Dialer
}

// NewEngine creates an engine with its own connection pool.
func NewEngine(cfg Config) *Engine {
	return &Engine{pool: NewPool(cfg.Dial, cfg.WorkDir, cfg.CommandTimeout)}
}

// Deploy runs the full repository deployment workflow on the target host.
func (e *Engine) Deploy(ctx context.Context, creds models.SSHCredentials, repoURL, ref, containerName string) models.DeploymentResult {
	conn, release, err := e.pool.Acquire(ctx, creds)
	if err != nil {
		return connectFailure(err)
	}
	defer release()

	logger.Log.WithField("host", conn.Hostname()).Infof("Deploying %s@%s as %s over SSH", repoURL, ref, containerName)
	return conn.ExecuteDeployment(ctx, models.NormalizeRepositoryURL(repoURL), ref, containerName)
}

// Execute runs one command on the target host.
func (e *Engine) Execute(ctx context.Context, creds models.SSHCredentials, command string, timeout time.Duration) models.DeploymentResult {
	conn, release, err := e.pool.Acquire(ctx, creds)
	if err != nil {
		return connectFailure(err)
	}
	defer release()

	return conn.ExecuteCommand(ctx, command, timeout)
}

// Metrics collects system metrics from the target host.
func (e *Engine) Metrics(ctx context.Context, creds models.SSHCredentials) (models.SystemMetrics, error) {
	conn, release, err := e.pool.Acquire(ctx, creds)
	if err != nil {
		return models.SystemMetrics{}, err
	}
	defer release()

	return conn.GetSystemMetrics(ctx), nil
}

// Containers lists running containers on the target host.
func (e *Engine) Containers(ctx context.Context, creds models.SSHCredentials) ([]models.Container, error) {
	conn, release, err := e.pool.Acquire(ctx, creds)
	if err != nil {
		return nil, err
	}
	defer release()

	return conn.GetDockerContainers(ctx), nil
}

// Close disconnects every pooled connection.
func (e *Engine) Close() {
	e.pool.CloseAll()
}

func connectFailure(err error) models.DeploymentResult {
	return models.DeploymentResult{Success: false, Error: err.Error(), ExitCode: -1}
}
