package poller

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/doniyusdinar/deploybot/agent/internal/controller"
	"github.com/doniyusdinar/deploybot/agent/internal/worker"
	"github.com/doniyusdinar/deploybot/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	mu            sync.Mutex
	registrations int
	heartbeats    int
	unknownOnce   bool
	ackFailures   []error
	ackAttempts   int
	jobs          []*models.AgentJob
	logs          map[string]string
	acks          map[string]models.AckRequest
	ackCh         chan string
}

func newFakeController(jobs ...*models.AgentJob) *fakeController {
	return &fakeController{
		jobs:  jobs,
		logs:  map[string]string{},
		acks:  map[string]models.AckRequest{},
		ackCh: make(chan string, 10),
	}
}

func (f *fakeController) Register(ctx context.Context, hostname string, capabilities models.Capabilities) (*models.RegisterResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registrations++
	return &models.RegisterResponse{AgentID: "agent-" + string(rune('0'+f.registrations)), AgentToken: "tok"}, nil
}

func (f *fakeController) Heartbeat(ctx context.Context, agentID, token string) (*models.HeartbeatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats++
	if f.unknownOnce {
		f.unknownOnce = false
		return nil, controller.ErrAgentUnknown
	}
	resp := &models.HeartbeatResponse{Acknowledged: true}
	if len(f.jobs) > 0 {
		resp.Job, f.jobs = f.jobs[0], f.jobs[1:]
	}
	return resp, nil
}

func (f *fakeController) Ack(ctx context.Context, agentID, token, jobID string, ack models.AckRequest) error {
	f.mu.Lock()
	f.ackAttempts++
	if len(f.ackFailures) > 0 {
		err := f.ackFailures[0]
		f.ackFailures = f.ackFailures[1:]
		f.mu.Unlock()
		return err
	}
	f.acks[jobID] = ack
	f.mu.Unlock()
	f.ackCh <- jobID
	return nil
}

func (f *fakeController) UploadLogs(ctx context.Context, agentID, token, jobID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs[jobID] += text
	return nil
}

type fakeRunner struct {
	result *worker.Result
	err    error
}

func (f *fakeRunner) Handle(ctx context.Context, job *models.AgentJob) (*worker.Result, error) {
	return f.result, f.err
}

func newTestPoller(t *testing.T, ctrl Controller, runner JobRunner) *Poller {
	return NewPoller(Options{
		Hostname:      "web-1",
		Interval:      time.Hour,
		JobTimeout:    time.Minute,
		RetryInterval: time.Millisecond,
		StateFile:     filepath.Join(t.TempDir(), "state", "agent.json"),
		Controller:    ctrl,
		Runner:        runner,
	})
}

func TestStartRunsOfferedJobs(t *testing.T) {
	ctrl := newFakeController(
		&models.AgentJob{ID: "job-1", Type: models.JobDeploy, Payload: json.RawMessage(`{}`)},
		&models.AgentJob{ID: "job-2", Type: models.JobDeploy, Payload: json.RawMessage(`{}`)},
	)
	runner := &fakeRunner{result: &worker.Result{Log: "$ docker pull nginx\n", Detail: map[string]any{"container": "web"}}}
	p := newTestPoller(t, ctrl, runner)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Start(ctx) }()

	// Both jobs run without waiting for the hourly tick.
	for _, want := range []string{"job-1", "job-2"} {
		select {
		case got := <-ctrl.ackCh:
			assert.Equal(t, want, got)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for ack of %s", want)
		}
	}
	cancel()
	require.NoError(t, <-done)

	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	assert.Equal(t, 1, ctrl.registrations)
	assert.Equal(t, "succeeded", ctrl.acks["job-1"].Status)
	assert.Equal(t, map[string]any{"container": "web"}, ctrl.acks["job-1"].Detail)
	assert.Equal(t, "$ docker pull nginx\n", ctrl.logs["job-1"])
}

func TestRunJobFailureDetail(t *testing.T) {
	ctrl := newFakeController()
	runner := &fakeRunner{
		result: &worker.Result{Log: "boom\n", Detail: map[string]any{"exit_code": 2}},
		err:    errors.New("sh exited with code 2"),
	}
	p := newTestPoller(t, ctrl, runner)
	p.id = identity{AgentID: "agent-1", AgentToken: "tok", Hostname: "web-1"}

	p.runJob(context.Background(), &models.AgentJob{ID: "job-9", Type: models.JobExec})

	ack := ctrl.acks["job-9"]
	assert.Equal(t, "failed", ack.Status)
	assert.Equal(t, map[string]any{"exit_code": 2, "error": "sh exited with code 2"}, ack.Detail)
	assert.Equal(t, "boom\n", ctrl.logs["job-9"])
	// The runner's own detail map is left untouched.
	assert.NotContains(t, runner.result.Detail, "error")
}

func TestRunJobFailureWithoutResult(t *testing.T) {
	ctrl := newFakeController()
	p := newTestPoller(t, ctrl, &fakeRunner{err: errors.New("invalid payload")})
	p.id = identity{AgentID: "agent-1", Hostname: "web-1"}

	p.runJob(context.Background(), &models.AgentJob{ID: "job-10"})

	assert.Equal(t, map[string]any{"error": "invalid payload"}, ctrl.acks["job-10"].Detail)
	assert.Empty(t, ctrl.logs)
}

func TestRunJobRetriesFailedAck(t *testing.T) {
	ctrl := newFakeController()
	ctrl.ackFailures = []error{
		errors.New("request failed: connection reset by peer"),
		&controller.StatusError{StatusCode: 503, Body: "unavailable"},
	}
	p := newTestPoller(t, ctrl, &fakeRunner{result: &worker.Result{}})
	p.id = identity{AgentID: "agent-1", Hostname: "web-1"}

	p.runJob(context.Background(), &models.AgentJob{ID: "job-11"})

	assert.Equal(t, 3, ctrl.ackAttempts)
	assert.Equal(t, "succeeded", ctrl.acks["job-11"].Status)
}

func TestRunJobDoesNotRetryRejectedAck(t *testing.T) {
	ctrl := newFakeController()
	ctrl.ackFailures = []error{&controller.StatusError{StatusCode: 409, Body: "job is already terminal"}}
	p := newTestPoller(t, ctrl, &fakeRunner{result: &worker.Result{}})
	p.id = identity{AgentID: "agent-1", Hostname: "web-1"}

	p.runJob(context.Background(), &models.AgentJob{ID: "job-12"})

	assert.Equal(t, 1, ctrl.ackAttempts)
	assert.NotContains(t, ctrl.acks, "job-12")
}

func TestRunJobStopsRetryingOnShutdown(t *testing.T) {
	ctrl := newFakeController()
	for i := 0; i < 100; i++ {
		ctrl.ackFailures = append(ctrl.ackFailures, errors.New("request failed: connection refused"))
	}
	p := NewPoller(Options{
		Hostname:      "web-1",
		Interval:      time.Hour,
		RetryInterval: time.Hour,
		Controller:    ctrl,
		Runner:        &fakeRunner{result: &worker.Result{}},
	})
	p.id = identity{AgentID: "agent-1", Hostname: "web-1"}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.runJob(ctx, &models.AgentJob{ID: "job-13"})
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("runJob kept retrying after shutdown")
	}
	assert.NotContains(t, ctrl.acks, "job-13")
}

func TestTickReregistersUnknownAgent(t *testing.T) {
	ctrl := newFakeController()
	p := newTestPoller(t, ctrl, &fakeRunner{})
	p.id = identity{AgentID: "stale", AgentToken: "old", Hostname: "web-1"}
	ctrl.unknownOnce = true

	require.NoError(t, p.tick(context.Background()))
	assert.Equal(t, 1, ctrl.registrations)
	assert.Equal(t, "agent-1", p.AgentID())

	require.NoError(t, p.tick(context.Background()))
	assert.Equal(t, 1, ctrl.registrations)
	assert.Equal(t, 2, ctrl.heartbeats)
}

func TestStatePersistsAcrossRestarts(t *testing.T) {
	ctrl := newFakeController()
	p := newTestPoller(t, ctrl, &fakeRunner{})
	require.NoError(t, p.tick(context.Background()))

	restarted := NewPoller(Options{Hostname: "web-1", StateFile: p.stateFile, Controller: ctrl, Runner: &fakeRunner{}})
	require.NoError(t, restarted.loadState())
	assert.Equal(t, "agent-1", restarted.AgentID())

	otherHost := NewPoller(Options{Hostname: "web-2", StateFile: p.stateFile, Controller: ctrl, Runner: &fakeRunner{}})
	require.NoError(t, otherHost.loadState())
	assert.Empty(t, otherHost.AgentID())
}

func TestLoadStateCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	p := NewPoller(Options{Hostname: "web-1", StateFile: path})
	assert.Error(t, p.loadState())
}

func TestWakeIsNonBlocking(t *testing.T) {
	p := NewPoller(Options{Hostname: "web-1"})
	p.Wake()
	p.Wake()
	assert.Len(t, p.wakeCh, 1)
}

func TestWantsWake(t *testing.T) {
	assert.True(t, wantsWake(&models.Job{Host: "web-1", Status: models.JobPending}, "web-1"))
	assert.False(t, wantsWake(&models.Job{Host: "web-2", Status: models.JobPending}, "web-1"))
	assert.False(t, wantsWake(&models.Job{Host: "web-1", Status: models.JobRunning}, "web-1"))
	assert.False(t, wantsWake(nil, "web-1"))
}
