package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/doniyusdinar/deploybot/pkg/logger"
	"github.com/doniyusdinar/deploybot/pkg/models"
	"github.com/gin-gonic/gin"
)

const sshBackend = "ssh"

// DeployViaSSH godoc
// @Summary Deploy over SSH
// @Description Run an agentless deployment: verify Docker, clone the repository, build and run it. The job is recorded like any other.
// @Tags ssh
// @Accept json
// @Produce json
// @Param request body models.SSHDeployRequest true "SSH deployment"
// @Success 200 {object} models.SSHDeployResponse
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /v1/deploy/ssh [post]
// @Security BasicAuth
func (h *Handler) DeployViaSSH(c *gin.Context) {
	ctx := c.Request.Context()

	var req models.SSHDeployRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	creds := req.Credentials.WithDefaults()
	if req.Ref == "" {
		req.Ref = "main"
	}

	job, err := h.SubmitJob(ctx, models.JobRequest{
		Host:    creds.Hostname,
		JobType: models.JobDeploy,
		Repo:    req.RepoURL,
		Ref:     req.Ref,
		Metadata: map[string]any{
			"name":    req.ContainerName,
			"backend": sshBackend,
		},
	})
	if err != nil {
		respondError(c, err, "create job")
		return
	}
	// An existing job for the same target belongs to another execution.
	if backend, _ := job.Metadata["backend"].(string); backend != sshBackend || job.Status != models.JobPending {
		respondError(c, fmt.Errorf("%w: job %s is %s", ErrInFlight, job.ID, job.Status), "deploy over SSH")
		return
	}
	if job, err = h.queue.Claim(ctx, job.ID); err != nil {
		respondError(c, err, "claim job")
		return
	}

	log := logger.WithJob(job.ID, creds.Hostname)
	log.Infof("Starting SSH deployment of %s@%s", req.RepoURL, req.Ref)
	result := h.engine.Deploy(ctx, creds, req.RepoURL, req.Ref, req.ContainerName)

	status := models.JobSuccess
	var errMsg *string
	if !result.Success {
		status = models.JobFailed
		errMsg = models.StringPtr(result.Error)
	}
	if _, err := h.queue.UpdateStatus(ctx, job.ID, status, errMsg); err != nil {
		respondError(c, err, "record deployment result")
		return
	}

	resp := models.SSHDeployResponse{
		Success: result.Success,
		Message: "Deployment completed",
		Output:  result.Output,
		Error:   result.Error,
		JobID:   job.ID,
	}
	if !result.Success {
		resp.Message = "Deployment failed"
		log.Warnf("SSH deployment failed: %s", result.Error)
	}
	c.JSON(http.StatusOK, resp)
}

// ExecuteSSH godoc
// @Summary Run a command over SSH
// @Tags ssh
// @Accept json
// @Produce json
// @Param request body models.SSHExecRequest true "Command"
// @Success 200 {object} models.DeploymentResult
// @Failure 400 {object} map[string]string
// @Router /v1/ssh/execute [post]
// @Security BasicAuth
func (h *Handler) ExecuteSSH(c *gin.Context) {
	var req models.SSHExecRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	timeout := time.Duration(req.TimeoutSeconds) * time.Second
	result := h.engine.Execute(c.Request.Context(), req.Credentials.WithDefaults(), req.Command, timeout)
	c.JSON(http.StatusOK, result)
}

// SSHMetrics godoc
// @Summary Collect host metrics over SSH
// @Description Best-effort CPU, memory and disk snapshot. Fields that cannot be parsed are omitted.
// @Tags ssh
// @Accept json
// @Produce json
// @Param request body models.SSHTargetRequest true "Target"
// @Success 200 {object} models.SystemMetrics
// @Failure 502 {object} map[string]string
// @Router /v1/ssh/metrics [post]
// @Security BasicAuth
func (h *Handler) SSHMetrics(c *gin.Context) {
	var req models.SSHTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	metrics, err := h.engine.Metrics(c.Request.Context(), req.Credentials.WithDefaults())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, metrics)
}

// SSHContainers godoc
// @Summary List containers over SSH
// @Tags ssh
// @Accept json
// @Produce json
// @Param request body models.SSHTargetRequest true "Target"
// @Success 200 {array} models.Container
// @Failure 502 {object} map[string]string
// @Router /v1/ssh/containers [post]
// @Security BasicAuth
func (h *Handler) SSHContainers(c *gin.Context) {
	var req models.SSHTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	containers, err := h.engine.Containers(c.Request.Context(), req.Credentials.WithDefaults())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, containers)
}
