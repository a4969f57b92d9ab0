package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/doniyusdinar/deploybot/pkg/models"
	"github.com/gin-gonic/gin"
)

// maxLogBody bounds a single log upload.
const maxLogBody = 8 << 20

// RegisterAgent godoc
// @Summary Register an agent
// @Description Create or refresh the agent for a hostname. A fresh token is issued every time.
// @Tags agents
// @Accept json
// @Produce json
// @Param request body models.RegisterRequest true "Agent registration request"
// @Success 200 {object} models.RegisterResponse
// @Failure 400 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /v1/agents/register [post]
func (h *Handler) RegisterAgent(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	resp, err := h.registry.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, "register agent")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Heartbeat godoc
// @Summary Agent heartbeat
// @Description Refresh agent liveness and receive at most one job
// @Tags agents
// @Accept json
// @Produce json
// @Param id path string true "Agent ID"
// @Param request body models.HeartbeatRequest false "Agent status"
// @Success 200 {object} models.HeartbeatResponse
// @Failure 404 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /v1/agents/{id}/heartbeat [post]
func (h *Handler) Heartbeat(c *gin.Context) {
	var req models.HeartbeatRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
	}

	resp, err := h.registry.Heartbeat(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		respondError(c, err, "process heartbeat")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// AckJob godoc
// @Summary Acknowledge a job
// @Description Report job completion. "succeeded" marks the job successful; any other status fails it.
// @Tags agents
// @Accept json
// @Produce json
// @Param id path string true "Agent ID"
// @Param job_id path string true "Job ID"
// @Param request body models.AckRequest true "Completion report"
// @Success 200 {object} map[string]bool
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /v1/agents/{id}/jobs/{job_id} [post]
func (h *Handler) AckJob(c *gin.Context) {
	var req models.AckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if _, err := h.registry.Acknowledge(c.Request.Context(), c.Param("id"), c.Param("job_id"), req); err != nil {
		respondError(c, err, "acknowledge job")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ReceiveLogs godoc
// @Summary Upload job logs
// @Description Store a raw text block of agent output as one log record
// @Tags agents
// @Accept plain
// @Produce json
// @Param id path string true "Agent ID"
// @Param job_id path string true "Job ID"
// @Success 200 {object} map[string]bool
// @Failure 400 {object} map[string]string
// @Router /v1/agents/{id}/jobs/{job_id}/logs [post]
func (h *Handler) ReceiveLogs(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxLogBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read log stream"})
		return
	}

	if _, err := h.registry.IngestLogs(c.Request.Context(), c.Param("id"), c.Param("job_id"), strings.ToValidUTF8(string(body), "\uFFFD")); err != nil {
		respondError(c, err, "store logs")
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// ListHosts godoc
// @Summary List hosts
// @Description List registered agents with their health against the staleness window
// @Tags hosts
// @Produce json
// @Success 200 {object} models.HostsResponse
// @Failure 500 {object} map[string]string
// @Router /v1/hosts [get]
// @Security BasicAuth
func (h *Handler) ListHosts(c *gin.Context) {
	hosts, err := h.registry.Hosts(c.Request.Context())
	if err != nil {
		respondError(c, err, "list hosts")
		return
	}
	c.JSON(http.StatusOK, models.HostsResponse{Hosts: hosts})
}
