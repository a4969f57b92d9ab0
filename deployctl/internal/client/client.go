package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/doniyusdinar/deploybot/pkg/auth"
	"github.com/doniyusdinar/deploybot/pkg/models"
)

// APIError is a non-2xx reply from the controller.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("controller returned %d: %s", e.StatusCode, e.Message)
}

// Client calls the controller's operator API.
type Client struct {
	baseURL    string
	authHeader string
	client     *http.Client
}

func New(baseURL, username, password string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Minute},
	}
	if password != "" {
		c.authHeader = auth.CreateBasicAuthHeader(username, password)
	}
	return c
}

func (c *Client) SubmitJob(ctx context.Context, req models.JobRequest) (*models.Job, error) {
	var out models.JobResponse
	if err := c.do(ctx, http.MethodPost, "/v1/jobs", req, &out); err != nil {
		return nil, err
	}
	return out.Job, nil
}

func (c *Client) GetJob(ctx context.Context, id string) (*models.Job, error) {
	var out models.JobResponse
	if err := c.do(ctx, http.MethodGet, "/v1/jobs/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return out.Job, nil
}

func (c *Client) ListJobs(ctx context.Context, status string) ([]*models.Job, error) {
	path := "/v1/jobs"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var out []*models.Job
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CancelJob(ctx context.Context, id string) (*models.Job, error) {
	var out models.JobResponse
	if err := c.do(ctx, http.MethodPost, "/v1/jobs/"+url.PathEscape(id)+"/cancel", nil, &out); err != nil {
		return nil, err
	}
	return out.Job, nil
}

func (c *Client) JobLogs(ctx context.Context, id string, limit int) ([]models.LogEntry, error) {
	path := "/v1/jobs/" + url.PathEscape(id) + "/logs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []models.LogEntry
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Hosts(ctx context.Context) ([]models.HostInfo, error) {
	var out models.HostsResponse
	if err := c.do(ctx, http.MethodGet, "/v1/hosts", nil, &out); err != nil {
		return nil, err
	}
	return out.Hosts, nil
}

func (c *Client) ListDeployments(ctx context.Context) ([]*models.DeploymentRecord, error) {
	var out []*models.DeploymentRecord
	if err := c.do(ctx, http.MethodGet, "/v1/deployments", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateDeployment(ctx context.Context, req models.DeploymentCreate) (*models.DeploymentRecord, error) {
	var out models.DeploymentRecord
	if err := c.do(ctx, http.MethodPost, "/v1/deployments", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetDeployment(ctx context.Context, id string) (*models.DeploymentRecord, error) {
	var out models.DeploymentRecord
	if err := c.do(ctx, http.MethodGet, "/v1/deployments/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteDeployment(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/deployments/"+url.PathEscape(id), nil, nil)
}

func (c *Client) CloneDeployment(ctx context.Context, id, name string) (*models.DeploymentRecord, error) {
	var body any
	if name != "" {
		body = map[string]string{"name": name}
	}
	var out models.DeploymentRecord
	if err := c.do(ctx, http.MethodPost, "/v1/deployments/"+url.PathEscape(id)+"/clone", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListCommands returns saved command templates.
func (c *Client) ListCommands(ctx context.Context, includeSystem bool) ([]*models.CommandTemplate, error) {
	path := "/v1/commands"
	if !includeSystem {
		path += "?include_system=false"
	}
	var out []*models.CommandTemplate
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateCommand(ctx context.Context, req models.CommandCreate) (*models.CommandTemplate, error) {
	var out models.CommandTemplate
	if err := c.do(ctx, http.MethodPost, "/v1/commands", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetCommand(ctx context.Context, id string) (*models.CommandTemplate, error) {
	var out models.CommandTemplate
	if err := c.do(ctx, http.MethodGet, "/v1/commands/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteCommand(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/commands/"+url.PathEscape(id), nil, nil)
}

// RunCommand schedules a command template as an exec job.
func (c *Client) RunCommand(ctx context.Context, id string, req models.CommandRunRequest) (*models.Job, error) {
	var out models.JobResponse
	if err := c.do(ctx, http.MethodPost, "/v1/commands/"+url.PathEscape(id)+"/run", req, &out); err != nil {
		return nil, err
	}
	return out.Job, nil
}

func (c *Client) DeployViaSSH(ctx context.Context, req models.SSHDeployRequest) (*models.SSHDeployResponse, error) {
	var out models.SSHDeployResponse
	if err := c.do(ctx, http.MethodPost, "/v1/deploy/ssh", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authHeader != "" {
		req.Header.Set("Authorization", c.authHeader)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach controller: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			apiErr.Message = e.Error
		}
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
