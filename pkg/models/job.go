package models

import (
	"encoding/json"
	"time"
)

// JobStatus is a position in the job state machine
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobSuccess   JobStatus = "success"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether no transition may leave s.
func (s JobStatus) Terminal() bool {
	return s == JobSuccess || s == JobFailed || s == JobCancelled
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobPending, JobRunning, JobSuccess, JobFailed, JobCancelled:
		return true
	}
	return false
}

// JobType classifies the work a job carries
type JobType string

const (
	JobDeploy JobType = "deploy"
	JobExec   JobType = "exec"
)

// Job is one unit of deployment or execution work
type Job struct {
	ID             string          `json:"id"`
	JobType        JobType         `json:"job_type"`
	Repo           string          `json:"repo,omitempty"`
	Ref            string          `json:"ref,omitempty"`
	Host           string          `json:"host"`
	Status         JobStatus       `json:"status"`
	Metadata       map[string]any  `json:"metadata"`
	DeploymentID   string          `json:"deployment_id,omitempty"`
	DeploymentSpec json.RawMessage `json:"deployment_spec,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	StartedAt      *time.Time      `json:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at"`
	AssignedAgent  *string         `json:"assigned_agent"`
	Error          *string         `json:"error"`
}

// Clone returns a copy that shares no mutable maps with j.
func (j *Job) Clone() *Job {
	c := *j
	if j.Metadata != nil {
		c.Metadata = make(map[string]any, len(j.Metadata))
		for k, v := range j.Metadata {
			c.Metadata[k] = v
		}
	}
	if j.DeploymentSpec != nil {
		c.DeploymentSpec = append(json.RawMessage(nil), j.DeploymentSpec...)
	}
	return &c
}

// SameTarget reports whether j deploys repo@ref to host. Jobs without a
// repository, such as image deploys, never share a target.
func (j *Job) SameTarget(repo, ref, host string) bool {
	if repo == "" || j.Repo == "" {
		return false
	}
	return j.JobType == JobDeploy && j.Repo == repo && j.Ref == ref && j.Host == host
}

// JobRequest is a job submission from the CLI, a webhook or the API
type JobRequest struct {
	Host         string          `json:"host" binding:"required"`
	JobType      JobType         `json:"job_type"`
	Repo         string          `json:"repo,omitempty"`
	Ref          string          `json:"ref,omitempty"`
	DeploymentID string          `json:"deployment_id,omitempty"`
	Deployment   json.RawMessage `json:"deployment,omitempty"`
	Strategy     string          `json:"strategy,omitempty"`
	Metadata     map[string]any  `json:"metadata"`
}

// JobResponse wraps a single job
type JobResponse struct {
	Job *Job `json:"job"`
}

// LogEntry is one ingested block of agent output
type LogEntry struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	JobID     string    `json:"job_id"`
	AgentID   string    `json:"agent_id"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// StringPtr is a small helper for optional string fields.
func StringPtr(s string) *string {
	return &s
}

// TimePtr is a small helper for optional time fields.
func TimePtr(t time.Time) *time.Time {
	return &t
}
