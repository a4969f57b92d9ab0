package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/doniyusdinar/deploybot/controller/internal/database"
	"github.com/doniyusdinar/deploybot/pkg/logger"
	"github.com/doniyusdinar/deploybot/pkg/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrTerminalState     = errors.New("job is already in a terminal state")
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrNotPending        = errors.New("job is not pending")
)

// Store is the durable side of the queue
type Store interface {
	SaveJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	ListJobs(ctx context.Context, status models.JobStatus) ([]*models.Job, error)
}

// Notifier receives every job after a persisted change
type Notifier interface {
	JobChanged(ctx context.Context, job *models.Job)
}

// Queue owns job creation, per-host assignment and status transitions.
//
// mu serializes everything that reads or writes the pending set. jobsMu
// guards the job map and is always taken after mu.
type Queue struct {
	store    Store
	notifier Notifier
	now      func() time.Time

	mu      sync.Mutex
	pending []string

	jobsMu sync.RWMutex
	jobs   map[string]*models.Job
}

// New creates an empty queue over store. Call Initialize before serving.
func New(store Store) *Queue {
	return &Queue{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		jobs:  make(map[string]*models.Job),
	}
}

// SetNotifier registers n to be told about every persisted change.
func (q *Queue) SetNotifier(n Notifier) {
	q.notifier = n
}

// Initialize loads pending jobs into the pending set in creation order and
// running jobs into the job map only. Running jobs are never re-queued.
func (q *Queue) Initialize(ctx context.Context) error {
	pending, err := q.store.ListJobs(ctx, models.JobPending)
	if err != nil {
		return fmt.Errorf("failed to load pending jobs: %w", err)
	}
	running, err := q.store.ListJobs(ctx, models.JobRunning)
	if err != nil {
		return fmt.Errorf("failed to load running jobs: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobsMu.Lock()
	defer q.jobsMu.Unlock()

	q.pending = q.pending[:0]
	for _, job := range pending {
		q.jobs[job.ID] = job
		q.pending = append(q.pending, job.ID)
	}
	for _, job := range running {
		q.jobs[job.ID] = job
	}

	logger.Log.Infof("Job queue initialized: %d pending, %d running", len(pending), len(running))
	return nil
}

// Enqueue creates a pending job for req. A deploy request whose (repo, ref,
// host) matches a job that is still pending or running returns that job
// instead. Exec jobs and deploys without a repository are never deduplicated.
func (q *Queue) Enqueue(ctx context.Context, req models.JobRequest) (*models.Job, error) {
	job, created, err := q.enqueue(ctx, req)
	if err != nil {
		return nil, err
	}
	if created {
		q.notify(ctx, job)
	}
	return job, nil
}

func (q *Queue) enqueue(ctx context.Context, req models.JobRequest) (*models.Job, bool, error) {
	jobType := req.JobType
	if jobType == "" {
		jobType = models.JobDeploy
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if jobType == models.JobDeploy && req.Repo != "" {
		if existing := q.findInFlight(req.Repo, req.Ref, req.Host); existing != nil {
			logger.Log.WithFields(logrus.Fields{
				"job_id": existing.ID,
				"host":   existing.Host,
			}).Infof("Deploy of %s@%s already in flight, returning existing job", req.Repo, req.Ref)
			return existing, false, nil
		}
	}

	metadata := req.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	job := &models.Job{
		ID:           uuid.New().String(),
		JobType:      jobType,
		Repo:         req.Repo,
		Ref:          req.Ref,
		Host:         req.Host,
		Status:       models.JobPending,
		Metadata:     metadata,
		DeploymentID: req.DeploymentID,
		CreatedAt:    q.now(),
	}
	if len(req.Deployment) > 0 {
		job.DeploymentSpec = append(json.RawMessage(nil), req.Deployment...)
	}

	if err := q.store.SaveJob(ctx, job); err != nil {
		return nil, false, fmt.Errorf("failed to persist job: %w", err)
	}

	q.jobsMu.Lock()
	q.jobs[job.ID] = job
	q.jobsMu.Unlock()
	q.pending = append(q.pending, job.ID)

	logger.WithJob(job.ID, job.Host).Infof("Enqueued %s job", job.JobType)
	return job.Clone(), true, nil
}

// findInFlight must be called with mu held.
func (q *Queue) findInFlight(repo, ref, host string) *models.Job {
	q.jobsMu.RLock()
	defer q.jobsMu.RUnlock()

	var found *models.Job
	for _, job := range q.jobs {
		if job.Status != models.JobPending && job.Status != models.JobRunning {
			continue
		}
		if !job.SameTarget(repo, ref, host) {
			continue
		}
		if found == nil || job.CreatedAt.Before(found.CreatedAt) {
			found = job
		}
	}
	if found == nil {
		return nil
	}
	return found.Clone()
}

// NextJobForHost removes the oldest pending job for hostname from the pending
// set and marks it running on agentID in one write. It returns nil when
// nothing is pending for the host; a miss has no side effects.
func (q *Queue) NextJobForHost(ctx context.Context, hostname, agentID string) (*models.Job, error) {
	job, err := q.nextJobForHost(ctx, hostname, agentID)
	if err != nil || job == nil {
		return nil, err
	}
	q.notify(ctx, job)
	return job, nil
}

func (q *Queue) nextJobForHost(ctx context.Context, hostname, agentID string) (*models.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, id := range q.pending {
		q.jobsMu.RLock()
		job, ok := q.jobs[id]
		q.jobsMu.RUnlock()
		if !ok || job.Host != hostname {
			continue
		}

		updated := job.Clone()
		updated.Status = models.JobRunning
		updated.StartedAt = models.TimePtr(q.now())
		if agentID != "" {
			updated.AssignedAgent = models.StringPtr(agentID)
		}
		if err := q.store.SaveJob(ctx, updated); err != nil {
			return nil, fmt.Errorf("failed to persist assignment of job %s: %w", id, err)
		}

		q.jobsMu.Lock()
		q.jobs[id] = updated
		q.jobsMu.Unlock()
		q.pending = append(q.pending[:i:i], q.pending[i+1:]...)

		logger.WithJob(id, hostname).WithField("agent_id", agentID).Info("Job assigned")
		return updated.Clone(), nil
	}
	return nil, nil
}

// Claim moves a pending job to running without an agent. It is used by the
// SSH path, which executes the job synchronously.
func (q *Queue) Claim(ctx context.Context, id string) (*models.Job, error) {
	job, err := q.claim(ctx, id)
	if err != nil {
		return nil, err
	}
	q.notify(ctx, job)
	return job, nil
}

func (q *Queue) claim(ctx context.Context, id string) (*models.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobPending {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotPending, id, job.Status)
	}

	updated := job.Clone()
	updated.Status = models.JobRunning
	updated.StartedAt = models.TimePtr(q.now())
	if err := q.store.SaveJob(ctx, updated); err != nil {
		return nil, fmt.Errorf("failed to persist claim of job %s: %w", id, err)
	}
	q.replace(updated)
	q.removePending(id)
	return updated.Clone(), nil
}

// UpdateStatus applies a status transition and persists it. Terminal states
// set completed_at and can never be left. errMsg is stored for anything but
// success.
func (q *Queue) UpdateStatus(ctx context.Context, id string, status models.JobStatus, errMsg *string) (*models.Job, error) {
	job, err := q.updateStatus(ctx, id, status, errMsg)
	if err != nil {
		return nil, err
	}
	q.notify(ctx, job)
	return job, nil
}

func (q *Queue) updateStatus(ctx context.Context, id string, status models.JobStatus, errMsg *string) (*models.Job, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, status)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrTerminalState, id, job.Status)
	}
	if status == models.JobPending && job.Status != models.JobPending {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, status)
	}

	now := q.now()
	updated := job.Clone()
	updated.Status = status
	if status == models.JobRunning && updated.StartedAt == nil {
		updated.StartedAt = models.TimePtr(now)
	}
	if status.Terminal() {
		updated.CompletedAt = models.TimePtr(now)
	}
	if status == models.JobSuccess {
		updated.Error = nil
	} else if errMsg != nil {
		updated.Error = models.StringPtr(*errMsg)
	}

	if err := q.store.SaveJob(ctx, updated); err != nil {
		return nil, fmt.Errorf("failed to persist status of job %s: %w", id, err)
	}
	q.replace(updated)
	if job.Status == models.JobPending && status != models.JobPending {
		q.removePending(id)
	}

	logger.WithJob(id, updated.Host).Infof("Job status %s -> %s", job.Status, status)
	return updated.Clone(), nil
}

// GetJob returns the job from memory, falling back to the store for jobs not
// resident in this process.
func (q *Queue) GetJob(ctx context.Context, id string) (*models.Job, error) {
	job, err := q.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	return job.Clone(), nil
}

// ListJobs returns the full job history, optionally filtered by status.
func (q *Queue) ListJobs(ctx context.Context, status models.JobStatus) ([]*models.Job, error) {
	return q.store.ListJobs(ctx, status)
}

// PendingCount reports the size of the pending set.
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) lookup(ctx context.Context, id string) (*models.Job, error) {
	q.jobsMu.RLock()
	job, ok := q.jobs[id]
	q.jobsMu.RUnlock()
	if ok {
		return job, nil
	}

	job, err := q.store.GetJob(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}

	q.jobsMu.Lock()
	defer q.jobsMu.Unlock()
	if resident, ok := q.jobs[id]; ok {
		return resident, nil
	}
	q.jobs[id] = job
	return job, nil
}

func (q *Queue) replace(job *models.Job) {
	q.jobsMu.Lock()
	q.jobs[job.ID] = job
	q.jobsMu.Unlock()
}

// removePending must be called with mu held.
func (q *Queue) removePending(id string) {
	for i, pid := range q.pending {
		if pid == id {
			q.pending = append(q.pending[:i:i], q.pending[i+1:]...)
			return
		}
	}
}

func (q *Queue) notify(ctx context.Context, job *models.Job) {
	if q.notifier == nil {
		return
	}
	q.notifier.JobChanged(ctx, job.Clone())
}
