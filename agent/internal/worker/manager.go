package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doniyusdinar/deploybot/pkg/logger"
	"github.com/doniyusdinar/deploybot/pkg/models"
)

const maxOutputBytes = 64 * 1024

// ErrExecDisabled is returned for exec jobs when the agent forbids them.
var ErrExecDisabled = errors.New("exec jobs disabled by configuration")

// Options configures a Manager.
type Options struct {
	WorkDir      string
	AllowExec    bool
	CloneTimeout time.Duration
	Runner       CommandRunner
}

// Manager turns offered jobs into commands on this host.
type Manager struct {
	workDir      string
	allowExec    bool
	cloneTimeout time.Duration
	runner       CommandRunner
}

// Result is what the agent reports back for a handled job.
type Result struct {
	Log    string
	Detail map[string]any
}

func NewManager(opts Options) *Manager {
	if opts.Runner == nil {
		opts.Runner = ExecRunner{}
	}
	if opts.CloneTimeout <= 0 {
		opts.CloneTimeout = 2 * time.Minute
	}
	return &Manager{
		workDir:      opts.WorkDir,
		allowExec:    opts.AllowExec,
		cloneTimeout: opts.CloneTimeout,
		runner:       opts.Runner,
	}
}

// Handle runs job to completion. The returned Result is non-nil even when the
// job fails so that partial output still reaches the controller.
func (m *Manager) Handle(ctx context.Context, job *models.AgentJob) (*Result, error) {
	t := &transcript{runner: m.runner}

	var (
		detail map[string]any
		err    error
	)
	switch job.Type {
	case models.JobDeploy, "":
		var payload models.DeployPayload
		if err = json.Unmarshal(job.Payload, &payload); err != nil {
			err = fmt.Errorf("invalid deploy payload: %w", err)
			break
		}
		detail, err = m.deploy(ctx, t, payload)
	case models.JobExec:
		var payload models.ExecPayload
		if err = json.Unmarshal(job.Payload, &payload); err != nil {
			err = fmt.Errorf("invalid exec payload: %w", err)
			break
		}
		detail, err = m.exec(ctx, t, payload)
	default:
		err = fmt.Errorf("unsupported job type %q", job.Type)
	}

	if err != nil {
		logger.Log.WithField("job_id", job.ID).Errorf("Job failed: %v", err)
	}
	return &Result{Log: t.String(), Detail: detail}, err
}

func (m *Manager) exec(ctx context.Context, t *transcript, payload models.ExecPayload) (map[string]any, error) {
	if !m.allowExec {
		return nil, ErrExecDisabled
	}
	if len(payload.Command) == 0 {
		return nil, errors.New("exec job missing command")
	}

	if payload.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(payload.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	out, err := t.run(ctx, Command{
		Name: payload.Command[0],
		Args: payload.Command[1:],
		Dir:  payload.WorkingDir,
		Env:  payload.Environment,
	})
	detail := map[string]any{
		"exit_code": out.ExitCode,
		"stdout":    limitOutput(out.Stdout),
		"stderr":    limitOutput(out.Stderr),
	}
	return detail, err
}

// transcript runs commands and records them with their output.
type transcript struct {
	runner CommandRunner
	buf    strings.Builder
}

func (t *transcript) run(ctx context.Context, cmd Command) (Output, error) {
	fmt.Fprintf(&t.buf, "$ %s\n", cmd)
	out, err := t.runner.Run(ctx, cmd)
	if combined := out.Combined(); combined != "" {
		t.buf.WriteString(strings.TrimRight(combined, "\n"))
		t.buf.WriteByte('\n')
	}
	if err != nil {
		fmt.Fprintf(&t.buf, "error: %v\n", err)
	}
	return out, err
}

func (t *transcript) note(format string, args ...any) {
	fmt.Fprintf(&t.buf, format+"\n", args...)
}

func (t *transcript) String() string {
	return limitOutput(t.buf.String())
}

func limitOutput(s string) string {
	if len(s) <= maxOutputBytes {
		return s
	}
	return s[len(s)-maxOutputBytes:]
}
