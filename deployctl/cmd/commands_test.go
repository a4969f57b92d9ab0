package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/doniyusdinar/deploybot/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the root command against server and returns stdout.
func run(t *testing.T, server *httptest.Server, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	full := append([]string{"--controller", server.URL, "--password", "secret"}, args...)
	rootCmd.SetArgs(full)
	err := rootCmd.Execute()
	return out.String(), err
}

func resetSubmitFlags(t *testing.T) {
	t.Cleanup(func() {
		submitHost, submitRepo, submitRef, submitCommand, submitSpecFile = "", "", "", "", ""
		submitType = string(models.JobDeploy)
		submitEnv, submitMeta = nil, nil
		submitWait, jsonOutput = false, false
		for _, name := range []string{"host", "repo", "ref", "type", "command", "spec", "env", "meta", "wait"} {
			if f := submitCmd.Flags().Lookup(name); f != nil {
				f.Changed = false
			}
		}
	})
}

func writeFile(t *testing.T, name, body string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestSubmitDeployFromSpecFile(t *testing.T) {
	resetSubmitFlags(t)
	spec := writeFile(t, "nginx.yaml", "type: image\nimage: nginx\ntag: \"1.25\"\n")

	var got models.JobRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(models.JobResponse{Job: &models.Job{ID: "job-1", JobType: models.JobDeploy, Host: got.Host, Status: models.JobPending}})
	}))
	defer server.Close()

	out, err := run(t, server, "submit", "--host", "web-1", "--spec", spec)
	require.NoError(t, err)

	assert.Equal(t, "web-1", got.Host)
	assert.Equal(t, models.JobDeploy, got.JobType)
	assert.JSONEq(t, `{"type":"image","image":"nginx","tag":"1.25"}`, string(got.Deployment))
	assert.Contains(t, out, "job-1")
	assert.Contains(t, out, "pending")
}

func TestSubmitExecBuildsMetadata(t *testing.T) {
	resetSubmitFlags(t)

	var got models.JobRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(models.JobResponse{Job: &models.Job{ID: "job-2", Status: models.JobPending}})
	}))
	defer server.Close()

	_, err := run(t, server, "submit", "--host", "web-1", "--type", "exec", "--command", "docker ps", "-e", "A=1")
	require.NoError(t, err)

	assert.Equal(t, models.JobExec, got.JobType)
	assert.Equal(t, "docker ps", got.Metadata["command"])
	assert.Equal(t, map[string]any{"A": "1"}, got.Metadata["environment"])
}

func TestBuildJobRequestValidation(t *testing.T) {
	resetSubmitFlags(t)

	submitHost, submitType = "web-1", "deploy"
	_, err := buildJobRequest()
	assert.ErrorContains(t, err, "--repo, --spec or --deployment")

	submitType = "exec"
	_, err = buildJobRequest()
	assert.ErrorContains(t, err, "--command")

	submitType = "reboot"
	_, err = buildJobRequest()
	assert.ErrorContains(t, err, "unknown job type")
}

func TestParsePairs(t *testing.T) {
	pairs, err := parsePairs([]string{"A=1", "B=x=y", "C="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "1", "B": "x=y", "C": ""}, pairs)

	_, err = parsePairs([]string{"novalue"})
	assert.Error(t, err)
}

func TestJobsTable(t *testing.T) {
	t.Cleanup(func() { jobsStatus = "" })
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/jobs", r.URL.Path)
		assert.Equal(t, "failed", r.URL.Query().Get("status"))
		json.NewEncoder(w).Encode([]*models.Job{{ID: "job-9", JobType: models.JobDeploy, Host: "web-1", Status: models.JobFailed, Repo: "org/app"}})
	}))
	defer server.Close()

	out, err := run(t, server, "jobs", "--status", "failed")
	require.NoError(t, err)
	assert.Contains(t, out, "job-9")
	assert.Contains(t, out, "org/app@main")
}

func TestSpecValidate(t *testing.T) {
	good := writeFile(t, "app.yaml", "type: repo\nrepository: org/app\n")
	bad := writeFile(t, "bad.yaml", "type: image\n")

	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	out, err := run(t, server, "spec", "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, "repo https://github.com/org/app.git@main")

	out, err = run(t, server, "spec", "validate", good, bad)
	assert.ErrorContains(t, err, "1 of 2")
	assert.Contains(t, out, "✗ "+bad)
}

func TestAPIErrorSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"Unauthorized"}`))
	}))
	defer server.Close()

	_, err := run(t, server, "hosts")
	assert.ErrorContains(t, err, "Unauthorized")
}

func resetCommandFlags(t *testing.T) {
	t.Cleanup(func() {
		commandHost, commandWorkDir = "", ""
		commandEnv = nil
		commandTimeout = models.DefaultCommandTimeoutSeconds
		commandUserOnly, commandWait, jsonOutput = false, false, false
		for _, name := range []string{"host", "env", "workdir", "job-timeout", "wait"} {
			if f := commandsRunCmd.Flags().Lookup(name); f != nil {
				f.Changed = false
			}
		}
		if f := commandsCmd.PersistentFlags().Lookup("user-only"); f != nil {
			f.Changed = false
		}
	})
}

func TestCommandsRunSendsArguments(t *testing.T) {
	resetCommandFlags(t)

	var got models.CommandRunRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/commands/cmd-1/run", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(models.JobResponse{Job: &models.Job{ID: "job-7", JobType: models.JobExec, Host: "web-1", Status: models.JobPending}})
	}))
	defer server.Close()

	out, err := run(t, server, "commands", "run", "cmd-1", "--host", "web-1", "-e", "CONTAINER=api", "--job-timeout", "60", "--", "--since", "1h")
	require.NoError(t, err)

	assert.Equal(t, "web-1", got.Host)
	assert.Equal(t, []string{"--since", "1h"}, got.Arguments)
	assert.Equal(t, map[string]string{"CONTAINER": "api"}, got.Environment)
	assert.Equal(t, 60, got.TimeoutSeconds)
	assert.Contains(t, out, "job-7")
}

func TestCommandsListTable(t *testing.T) {
	resetCommandFlags(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "false", r.URL.Query().Get("include_system"))
		json.NewEncoder(w).Encode([]*models.CommandTemplate{{ID: "cmd-2", Name: "Load", Command: "uptime", Runtime: models.RuntimeShell, Tags: []string{"linux"}}})
	}))
	defer server.Close()

	out, err := run(t, server, "commands", "list", "--user-only")
	require.NoError(t, err)
	assert.Contains(t, out, "cmd-2")
	assert.Contains(t, out, "uptime")
	assert.Contains(t, out, "linux")
}
