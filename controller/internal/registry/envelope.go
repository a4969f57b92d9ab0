package registry

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/doniyusdinar/deploybot/pkg/models"
)

const defaultExecTimeoutSeconds = 300

// BuildEnvelope projects a job's metadata onto the payload shape the agent
// expects for its type.
func BuildEnvelope(job *models.Job) (*models.AgentJob, error) {
	jobType := job.JobType
	if jobType == "" {
		jobType = models.JobDeploy
	}

	var (
		payload any
		meta    = copyMetadata(job.Metadata)
	)
	switch jobType {
	case models.JobDeploy:
		payload = deployPayload(job, meta)
	case models.JobExec:
		payload = execPayload(meta)
	default:
		payload = meta
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload for job %s: %w", jobType, job.ID, err)
	}
	return &models.AgentJob{ID: job.ID, Type: jobType, Payload: raw}, nil
}

func deployPayload(job *models.Job, meta map[string]any) models.DeployPayload {
	p := models.DeployPayload{
		Name:         deriveName(job.Repo, meta),
		Ref:          firstString(job.Ref, stringField(meta, "ref"), "main"),
		Strategy:     stringField(meta, "strategy"),
		Image:        stringField(meta, "image"),
		DeploymentID: firstString(stringField(meta, "deployment_id"), job.DeploymentID),
	}

	repo := firstString(job.Repo, stringField(meta, "repository"), stringField(meta, "repository_url"))
	if strings.EqualFold(p.Strategy, "image") || p.Image != "" {
		if p.Strategy == "" {
			p.Strategy = "image"
		}
		p.RepositoryURL = stringField(meta, "repository_url")
	} else if repo != "" {
		p.RepositoryURL = models.NormalizeRepositoryURL(repo)
	}

	for _, key := range []string{"name", "ref", "strategy", "image", "deployment_id", "repository", "repository_url", "use_ai_launch"} {
		delete(meta, key)
	}
	p.Extra = meta
	return p
}

func execPayload(meta map[string]any) models.ExecPayload {
	p := models.ExecPayload{
		Command:        commandArgs(meta["command"]),
		Environment:    map[string]string{},
		TimeoutSeconds: defaultExecTimeoutSeconds,
		WorkingDir:     stringField(meta, "working_dir"),
	}
	if env, ok := meta["environment"].(map[string]any); ok {
		for k, v := range env {
			p.Environment[k] = fmt.Sprint(v)
		}
	}
	if env, ok := meta["environment"].(map[string]string); ok {
		for k, v := range env {
			p.Environment[k] = v
		}
	}
	switch v := meta["timeout_seconds"].(type) {
	case float64:
		p.TimeoutSeconds = int(v)
	case int:
		p.TimeoutSeconds = v
	}
	return p
}

// commandArgs accepts an argv list or a shell line, which is run through bash.
func commandArgs(v any) []string {
	switch cmd := v.(type) {
	case string:
		return []string{"bash", "-lc", cmd}
	case []string:
		return cmd
	case []any:
		args := make([]string, 0, len(cmd))
		for _, a := range cmd {
			args = append(args, fmt.Sprint(a))
		}
		return args
	}
	return []string{}
}

func deriveName(repo string, meta map[string]any) string {
	for _, key := range []string{"name", "app", "service"} {
		if s := strings.TrimSpace(stringField(meta, key)); s != "" {
			return s
		}
	}
	base := strings.Trim(repo, "/")
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	if base == "" {
		return "deploy"
	}
	return base
}

func stringField(meta map[string]any, key string) string {
	s, _ := meta[key].(string)
	return s
}

func firstString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func copyMetadata(meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
