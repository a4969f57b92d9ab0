package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/doniyusdinar/deploybot/pkg/auth"
	"github.com/doniyusdinar/deploybot/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitJobSendsCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/jobs", r.URL.Path)
		assert.Equal(t, auth.CreateBasicAuthHeader("admin", "secret"), r.Header.Get("Authorization"))

		var req models.JobRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "web-1", req.Host)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(models.JobResponse{Job: &models.Job{ID: "job-1", Host: req.Host, Status: models.JobPending}})
	}))
	defer server.Close()

	job, err := New(server.URL, "admin", "secret").SubmitJob(context.Background(), models.JobRequest{Host: "web-1", Repo: "org/app"})
	require.NoError(t, err)
	assert.Equal(t, "job-1", job.ID)
}

func TestNoPasswordSendsNoAuth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte(`{"hosts":[{"hostname":"web-1","healthy":true}]}`))
	}))
	defer server.Close()

	hosts, err := New(server.URL, "admin", "").Hosts(context.Background())
	require.NoError(t, err)
	require.Len(t, hosts, 1)
	assert.True(t, hosts[0].Healthy)
}

func TestListJobsWithStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "running", r.URL.Query().Get("status"))
		w.Write([]byte(`[{"id":"a","status":"running"},{"id":"b","status":"running"}]`))
	}))
	defer server.Close()

	jobs, err := New(server.URL, "", "").ListJobs(context.Background(), "running")
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}

func TestErrorBodyBecomesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"Job not found"}`))
	}))
	defer server.Close()

	_, err := New(server.URL, "", "").GetJob(context.Background(), "missing")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "Job not found", apiErr.Message)
}

func TestDeleteDeploymentNoContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/v1/deployments/dep-1", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	assert.NoError(t, New(server.URL, "", "").DeleteDeployment(context.Background(), "dep-1"))
}

func TestCloneDeploymentName(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "staging", body["name"])
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"dep-2","name":"staging","kind":"image","spec":{}}`))
	}))
	defer server.Close()

	rec, err := New(server.URL, "", "").CloneDeployment(context.Background(), "dep-1", "staging")
	require.NoError(t, err)
	assert.Equal(t, "dep-2", rec.ID)
}

func TestRunCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/commands/cmd-1/run", r.URL.Path)
		var body models.CommandRunRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "web-1", body.Host)
		assert.Equal(t, []string{"web"}, body.Arguments)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(models.JobResponse{Job: &models.Job{ID: "job-5", JobType: models.JobExec}})
	}))
	defer server.Close()

	job, err := New(server.URL, "", "").RunCommand(context.Background(), "cmd-1", models.CommandRunRequest{Host: "web-1", Arguments: []string{"web"}})
	require.NoError(t, err)
	assert.Equal(t, "job-5", job.ID)
}

func TestListCommandsUserOnly(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/commands", r.URL.Path)
		assert.Equal(t, "false", r.URL.Query().Get("include_system"))
		w.Write([]byte(`[{"id":"cmd-2","name":"Load","command":"uptime","runtime":"shell","tags":[]}]`))
	}))
	defer server.Close()

	templates, err := New(server.URL, "", "").ListCommands(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, models.RuntimeShell, templates[0].Runtime)
}
