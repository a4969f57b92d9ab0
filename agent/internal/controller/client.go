package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doniyusdinar/deploybot/pkg/models"
)

// ErrAgentUnknown means the controller no longer knows this agent and it
// must register again.
var ErrAgentUnknown = errors.New("agent not registered with controller")

// StatusError is a non-2xx reply from the controller.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("controller returned status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether err may succeed on a later attempt. Client
// errors other than 408 and 429 are final.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, ErrAgentUnknown) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		code := statusErr.StatusCode
		return code >= 500 || code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
	}
	return true
}

// Client speaks the agent side of the controller protocol.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Register announces this host and returns the issued identity.
func (c *Client) Register(ctx context.Context, hostname string, capabilities models.Capabilities) (*models.RegisterResponse, error) {
	var out models.RegisterResponse
	req := models.RegisterRequest{Hostname: hostname, Capabilities: capabilities}
	if err := c.postJSON(ctx, "/v1/agents/register", "", req, &out); err != nil {
		return nil, fmt.Errorf("failed to register: %w", err)
	}
	if out.AgentID == "" {
		return nil, errors.New("controller returned an empty agent id")
	}
	return &out, nil
}

// Heartbeat checks in and returns any job offered in reply.
func (c *Client) Heartbeat(ctx context.Context, agentID, token string) (*models.HeartbeatResponse, error) {
	var out models.HeartbeatResponse
	path := "/v1/agents/" + url.PathEscape(agentID) + "/heartbeat"
	if err := c.postJSON(ctx, path, token, models.HeartbeatRequest{Status: models.AgentOnline}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ack reports the final outcome of a job.
func (c *Client) Ack(ctx context.Context, agentID, token, jobID string, ack models.AckRequest) error {
	path := "/v1/agents/" + url.PathEscape(agentID) + "/jobs/" + url.PathEscape(jobID)
	if err := c.postJSON(ctx, path, token, ack, nil); err != nil {
		return fmt.Errorf("failed to ack job %s: %w", jobID, err)
	}
	return nil
}

// UploadLogs sends one block of job output as plain text.
func (c *Client) UploadLogs(ctx context.Context, agentID, token, jobID, text string) error {
	path := "/v1/agents/" + url.PathEscape(agentID) + "/jobs/" + url.PathEscape(jobID) + "/logs"
	req, err := c.newRequest(ctx, path, token, strings.NewReader(text))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("failed to upload logs for job %s: %w", jobID, err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path, token string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := c.newRequest(ctx, path, token, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, path, token string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if token != "" {
		req.Header.Set("X-Agent-Token", token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && strings.HasSuffix(req.URL.Path, "/heartbeat") {
		return ErrAgentUnknown
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
