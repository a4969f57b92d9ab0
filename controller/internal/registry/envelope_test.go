package registry

import (
	"encoding/json"
	"testing"

	"github.com/doniyusdinar/deploybot/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodePayload(t *testing.T, env *models.AgentJob) map[string]any {
	var out map[string]any
	require.NoError(t, json.Unmarshal(env.Payload, &out))
	return out
}

func TestExecEnvelopeWrapsShellLine(t *testing.T) {
	env, err := BuildEnvelope(&models.Job{
		ID:      "j1",
		JobType: models.JobExec,
		Metadata: map[string]any{
			"command":     "docker ps",
			"environment": map[string]any{"A": "1", "N": 2.0},
			"working_dir": "/srv",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, models.JobExec, env.Type)

	var p models.ExecPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, []string{"bash", "-lc", "docker ps"}, p.Command)
	assert.Equal(t, map[string]string{"A": "1", "N": "2"}, p.Environment)
	assert.Equal(t, 300, p.TimeoutSeconds)
	assert.Equal(t, "/srv", p.WorkingDir)
}

func TestExecEnvelopeKeepsArgv(t *testing.T) {
	env, err := BuildEnvelope(&models.Job{
		ID:       "j1",
		JobType:  models.JobExec,
		Metadata: map[string]any{"command": []any{"ls", "-la"}, "timeout_seconds": 30.0},
	})
	require.NoError(t, err)

	p := decodePayload(t, env)
	assert.Equal(t, []any{"ls", "-la"}, p["command"])
	assert.Equal(t, 30.0, p["timeout_seconds"])
	assert.NotContains(t, p, "working_dir")
}

func TestDeployEnvelopeForImage(t *testing.T) {
	_, _, md := models.ImageSpec{Image: "nginx", Tag: "1.25"}.ToMetadata()
	env, err := BuildEnvelope(&models.Job{
		ID:           "j1",
		JobType:      models.JobDeploy,
		DeploymentID: "dep-1",
		Metadata:     md,
	})
	require.NoError(t, err)

	p := decodePayload(t, env)
	assert.Equal(t, "image", p["strategy"])
	assert.Equal(t, "nginx:1.25", p["image"])
	assert.Equal(t, "main", p["ref"])
	assert.Equal(t, "dep-1", p["deployment_id"])
	assert.NotContains(t, p, "repository_url")
}

func TestDeployEnvelopeDropsInferenceFlag(t *testing.T) {
	env, err := BuildEnvelope(&models.Job{
		ID:      "j1",
		JobType: models.JobDeploy,
		Repo:    "https://git.example.com/team/svc",
		Ref:     "v2",
		Metadata: map[string]any{
			"name":          "svc-prod",
			"use_ai_launch": true,
			"launch_script": "#!/bin/bash\n",
			"ports":         []any{map[string]any{"target": 80.0}},
		},
	})
	require.NoError(t, err)

	p := decodePayload(t, env)
	assert.Equal(t, "https://git.example.com/team/svc.git", p["repository_url"])
	assert.Equal(t, "v2", p["ref"])
	assert.Equal(t, "svc-prod", p["name"])
	assert.Equal(t, "#!/bin/bash\n", p["launch_script"])
	assert.NotContains(t, p, "use_ai_launch")
	assert.Contains(t, p, "ports")
}

func TestOtherJobTypesPassMetadataThrough(t *testing.T) {
	env, err := BuildEnvelope(&models.Job{
		ID:       "j1",
		JobType:  models.JobType("restart"),
		Metadata: map[string]any{"service": "nginx"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.JobType("restart"), env.Type)
	assert.JSONEq(t, `{"service":"nginx"}`, string(env.Payload))
}
