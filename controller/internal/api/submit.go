package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/doniyusdinar/deploybot/controller/internal/database"
	"github.com/doniyusdinar/deploybot/pkg/deployspec"
	"github.com/doniyusdinar/deploybot/pkg/models"
)

var (
	ErrDeploymentNotFound = errors.New("deployment not found")
	ErrInFlight           = errors.New("a deployment of this ref to this host is already in flight")
)

// ValidationError rejects a malformed submission before any state changes
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func invalid(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// SubmitJob validates a job request, flattens any deployment spec into its
// metadata and enqueues it. CLI, API and webhook submissions all pass
// through here.
func (h *Handler) SubmitJob(ctx context.Context, req models.JobRequest) (*models.Job, error) {
	prepared, err := h.prepareJob(ctx, req)
	if err != nil {
		return nil, err
	}
	return h.queue.Enqueue(ctx, prepared)
}

func (h *Handler) prepareJob(ctx context.Context, req models.JobRequest) (models.JobRequest, error) {
	req.Host = strings.TrimSpace(req.Host)
	if req.Host == "" {
		return req, invalid("host is required")
	}
	if req.JobType == "" {
		req.JobType = models.JobDeploy
	}

	metadata := make(map[string]any, len(req.Metadata))
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	if req.JobType != models.JobDeploy {
		if req.JobType == models.JobExec && isBlank(metadata["command"]) {
			return req, invalid("exec jobs require command metadata")
		}
		req.Metadata = metadata
		return req, nil
	}

	spec, err := h.resolveSpec(ctx, &req, metadata)
	if err != nil {
		return req, err
	}

	if spec != nil {
		specRepo, specRef, specMetadata := spec.ToMetadata()
		metadata = mergeMetadata(specMetadata, metadata)
		if req.Repo == "" {
			req.Repo = specRepo
		}
		if req.Ref == "" {
			req.Ref = specRef
		}
	}

	if req.Strategy != "" {
		metadata["strategy"] = req.Strategy
	}

	if repoSpec, ok := spec.(models.RepoSpec); ok {
		target := req.Repo
		if target == "" {
			target = repoSpec.Repository
		}
		ref := req.Ref
		if ref == "" {
			ref = repoSpec.Ref
		}
		if target != "" && h.planner != nil {
			h.planner.EnsureLaunchScript(ctx, metadata, models.NormalizeRepositoryURL(target), ref, repoSpec.AllowsInference())
		}
		delete(metadata, "use_ai_launch")
	}

	if strategy, _ := metadata["strategy"].(string); strategy == "image" {
		if isBlank(metadata["image"]) {
			return req, invalid("image deployments require an image reference")
		}
	} else if req.Repo == "" {
		return req, invalid("repository reference required for deployment job")
	}

	req.Metadata = metadata
	return req, nil
}

// resolveSpec loads the saved or inline spec named by req, if any, and
// records its canonical form on req.
func (h *Handler) resolveSpec(ctx context.Context, req *models.JobRequest, metadata map[string]any) (models.DeploymentSpec, error) {
	switch {
	case req.DeploymentID != "":
		record, err := h.db.GetDeployment(ctx, req.DeploymentID)
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrDeploymentNotFound
		}
		if err != nil {
			return nil, err
		}
		spec, err := record.DeploymentSpec()
		if err != nil {
			return nil, invalid("%v", err)
		}
		if _, ok := metadata["deployment_name"]; !ok {
			metadata["deployment_name"] = record.Name
		}
		if _, ok := metadata["deployment_tags"]; !ok && len(record.Tags) > 0 {
			metadata["deployment_tags"] = record.Tags
		}
		raw, err := models.MarshalDeploymentSpec(spec)
		if err != nil {
			return nil, err
		}
		req.Deployment = raw
		return spec, nil

	case len(req.Deployment) > 0:
		spec, raw, err := deployspec.Parse(req.Deployment)
		if err != nil {
			return nil, invalid("%v", err)
		}
		req.Deployment = raw
		return spec, nil
	}
	return nil, nil
}

// mergeMetadata overlays non-nil override values onto base.
func mergeMetadata(base, overrides map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(overrides))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overrides {
		if v == nil {
			continue
		}
		merged[k] = v
	}
	return merged
}

func isBlank(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case []any:
		return len(val) == 0
	case []string:
		return len(val) == 0
	}
	return false
}
