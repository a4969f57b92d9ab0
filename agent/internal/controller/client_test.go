package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/doniyusdinar/deploybot/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/agents/register", r.URL.Path)

		var req models.RegisterRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "web-1", req.Hostname)
		assert.Equal(t, true, req.Capabilities["docker"])

		json.NewEncoder(w).Encode(models.RegisterResponse{AgentID: "agent-1", AgentToken: "tok"})
	}))
	defer server.Close()

	resp, err := NewClient(server.URL+"/").Register(context.Background(), "web-1", models.Capabilities{"docker": true})
	require.NoError(t, err)
	assert.Equal(t, "agent-1", resp.AgentID)
	assert.Equal(t, "tok", resp.AgentToken)
}

func TestHeartbeatReturnsJob(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/agents/agent-1/heartbeat", r.URL.Path)
		assert.Equal(t, "tok", r.Header.Get("X-Agent-Token"))
		w.Write([]byte(`{"acknowledged":true,"job":{"id":"job-1","type":"exec","payload":{"command":["id"]}}}`))
	}))
	defer server.Close()

	resp, err := NewClient(server.URL).Heartbeat(context.Background(), "agent-1", "tok")
	require.NoError(t, err)
	require.NotNil(t, resp.Job)
	assert.Equal(t, "job-1", resp.Job.ID)
	assert.Equal(t, models.JobExec, resp.Job.Type)
}

func TestHeartbeatUnknownAgent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"Agent not found"}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL).Heartbeat(context.Background(), "gone", "")
	assert.ErrorIs(t, err, ErrAgentUnknown)
}

func TestAck(t *testing.T) {
	var got models.AckRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/agents/agent-1/jobs/job-1", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	err := NewClient(server.URL).Ack(context.Background(), "agent-1", "tok", "job-1", models.AckRequest{
		Status: "failed",
		Detail: map[string]any{"error": "boom"},
	})
	require.NoError(t, err)
	assert.Equal(t, "failed", got.Status)
	assert.Equal(t, map[string]any{"error": "boom"}, got.Detail)
}

func TestAckConflict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"job is already terminal"}`))
	}))
	defer server.Close()

	err := NewClient(server.URL).Ack(context.Background(), "agent-1", "", "job-1", models.AckRequest{Status: "succeeded"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
	assert.NotErrorIs(t, err, ErrAgentUnknown)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusConflict, statusErr.StatusCode)
	assert.False(t, Retryable(err))
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transport", errors.New("request failed: connection refused"), true},
		{"server error", &StatusError{StatusCode: http.StatusBadGateway}, true},
		{"rate limited", fmt.Errorf("failed to ack job: %w", &StatusError{StatusCode: http.StatusTooManyRequests}), true},
		{"not found", &StatusError{StatusCode: http.StatusNotFound}, false},
		{"bad request", &StatusError{StatusCode: http.StatusBadRequest}, false},
		{"unknown agent", ErrAgentUnknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}

func TestUploadLogs(t *testing.T) {
	var body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/agents/agent-1/jobs/job-1/logs", r.URL.Path)
		assert.Contains(t, r.Header.Get("Content-Type"), "text/plain")
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		w.Write([]byte(`{"received":true}`))
	}))
	defer server.Close()

	err := NewClient(server.URL).UploadLogs(context.Background(), "agent-1", "tok", "job-1", "$ docker pull nginx\n")
	require.NoError(t, err)
	assert.Equal(t, "$ docker pull nginx\n", body)
}
