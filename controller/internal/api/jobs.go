package api

import (
	"net/http"
	"strconv"

	"github.com/doniyusdinar/deploybot/pkg/logger"
	"github.com/doniyusdinar/deploybot/pkg/models"
	"github.com/gin-gonic/gin"
)

// CreateJob godoc
// @Summary Submit a job
// @Description Create a deploy or exec job. A deploy request matching an in-flight job for the same repo, ref and host returns that job.
// @Tags jobs
// @Accept json
// @Produce json
// @Param request body models.JobRequest true "Job submission"
// @Success 201 {object} models.JobResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /v1/jobs [post]
// @Security BasicAuth
func (h *Handler) CreateJob(c *gin.Context) {
	var req models.JobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	job, err := h.SubmitJob(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, "create job")
		return
	}

	c.JSON(http.StatusCreated, models.JobResponse{Job: job})
}

// ListJobs godoc
// @Summary List jobs
// @Description List the job history, optionally filtered by status
// @Tags jobs
// @Produce json
// @Param status query string false "Job status filter"
// @Success 200 {array} models.Job
// @Failure 400 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /v1/jobs [get]
// @Security BasicAuth
func (h *Handler) ListJobs(c *gin.Context) {
	status := models.JobStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown job status"})
		return
	}

	jobs, err := h.queue.ListJobs(c.Request.Context(), status)
	if err != nil {
		respondError(c, err, "list jobs")
		return
	}
	c.JSON(http.StatusOK, jobs)
}

// GetJob godoc
// @Summary Get a job
// @Tags jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} models.JobResponse
// @Failure 404 {object} map[string]string
// @Router /v1/jobs/{id} [get]
// @Security BasicAuth
func (h *Handler) GetJob(c *gin.Context) {
	job, err := h.queue.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "get job")
		return
	}
	c.JSON(http.StatusOK, models.JobResponse{Job: job})
}

// GetJobLogs godoc
// @Summary Get job logs
// @Description Return the log blocks agents uploaded for a job
// @Tags jobs
// @Produce json
// @Param id path string true "Job ID"
// @Param limit query int false "Maximum records" default(100)
// @Success 200 {array} models.LogEntry
// @Failure 404 {object} map[string]string
// @Router /v1/jobs/{id}/logs [get]
// @Security BasicAuth
func (h *Handler) GetJobLogs(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := h.queue.GetJob(ctx, id); err != nil {
		respondError(c, err, "get job")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	entries, err := h.db.ListLogs(ctx, id, limit)
	if err != nil {
		respondError(c, err, "list logs")
		return
	}
	c.JSON(http.StatusOK, entries)
}

// CancelJob godoc
// @Summary Cancel a job
// @Description Mark a job as no longer eligible. In-flight work is not interrupted.
// @Tags jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} models.JobResponse
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /v1/jobs/{id}/cancel [post]
// @Security BasicAuth
func (h *Handler) CancelJob(c *gin.Context) {
	job, err := h.queue.UpdateStatus(c.Request.Context(), c.Param("id"), models.JobCancelled, nil)
	if err != nil {
		respondError(c, err, "cancel job")
		return
	}

	logger.WithJob(job.ID, job.Host).Info("Job cancelled")
	c.JSON(http.StatusOK, models.JobResponse{Job: job})
}
