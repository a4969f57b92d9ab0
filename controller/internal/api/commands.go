package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/doniyusdinar/deploybot/controller/internal/database"
	"github.com/doniyusdinar/deploybot/pkg/logger"
	"github.com/doniyusdinar/deploybot/pkg/models"
	"github.com/gin-gonic/gin"
)

var ErrCommandNotFound = errors.New("command not found")

func commandLookup(err error) error {
	if errors.Is(err, database.ErrNotFound) {
		return ErrCommandNotFound
	}
	return err
}

// ListCommands godoc
// @Summary List command templates
// @Tags commands
// @Produce json
// @Param include_system query bool false "Include built-in templates" default(true)
// @Success 200 {array} models.CommandTemplate
// @Failure 500 {object} map[string]string
// @Router /v1/commands [get]
// @Security BasicAuth
func (h *Handler) ListCommands(c *gin.Context) {
	includeSystem, err := strconv.ParseBool(c.DefaultQuery("include_system", "true"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "include_system must be a boolean"})
		return
	}

	templates, err := h.db.ListCommands(c.Request.Context(), includeSystem)
	if err != nil {
		respondError(c, err, "list commands")
		return
	}
	c.JSON(http.StatusOK, templates)
}

// CreateCommand godoc
// @Summary Save a command template
// @Tags commands
// @Accept json
// @Produce json
// @Param request body models.CommandCreate true "Command template"
// @Success 201 {object} models.CommandTemplate
// @Failure 400 {object} map[string]string
// @Router /v1/commands [post]
// @Security BasicAuth
func (h *Handler) CreateCommand(c *gin.Context) {
	var req models.CommandCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Command) == "" {
		respondError(c, invalid("command must not be blank"), "create command")
		return
	}
	if req.Runtime != "" && !req.Runtime.Valid() {
		respondError(c, invalid("unknown runtime %q", req.Runtime), "create command")
		return
	}

	tmpl, err := h.db.CreateCommand(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, "create command")
		return
	}

	logger.Log.Infof("Command template %q saved as %s", tmpl.Name, tmpl.ID)
	c.JSON(http.StatusCreated, tmpl)
}

// GetCommand godoc
// @Summary Get a command template
// @Tags commands
// @Produce json
// @Param id path string true "Command ID"
// @Success 200 {object} models.CommandTemplate
// @Failure 404 {object} map[string]string
// @Router /v1/commands/{id} [get]
// @Security BasicAuth
func (h *Handler) GetCommand(c *gin.Context) {
	tmpl, err := h.db.GetCommand(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, commandLookup(err), "get command")
		return
	}
	c.JSON(http.StatusOK, tmpl)
}

// UpdateCommand godoc
// @Summary Update a command template
// @Tags commands
// @Accept json
// @Produce json
// @Param id path string true "Command ID"
// @Param request body models.CommandUpdate true "Fields to replace"
// @Success 200 {object} models.CommandTemplate
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /v1/commands/{id} [put]
// @Security BasicAuth
func (h *Handler) UpdateCommand(c *gin.Context) {
	var req models.CommandUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.Command != nil && strings.TrimSpace(*req.Command) == "" {
		respondError(c, invalid("command must not be blank"), "update command")
		return
	}
	if req.Runtime != nil && !req.Runtime.Valid() {
		respondError(c, invalid("unknown runtime %q", *req.Runtime), "update command")
		return
	}

	tmpl, err := h.db.UpdateCommand(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, commandLookup(err), "update command")
		return
	}
	c.JSON(http.StatusOK, tmpl)
}

// DeleteCommand godoc
// @Summary Delete a command template
// @Description Built-in templates are never deleted
// @Tags commands
// @Param id path string true "Command ID"
// @Success 204
// @Failure 500 {object} map[string]string
// @Router /v1/commands/{id} [delete]
// @Security BasicAuth
func (h *Handler) DeleteCommand(c *gin.Context) {
	if err := h.db.DeleteCommand(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err, "delete command")
		return
	}
	c.Status(http.StatusNoContent)
}

// RunCommand godoc
// @Summary Run a command template
// @Description Enqueue an exec job on a host that runs the template with the given arguments
// @Tags commands
// @Accept json
// @Produce json
// @Param id path string true "Command ID"
// @Param request body models.CommandRunRequest true "Run parameters"
// @Success 201 {object} models.JobResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /v1/commands/{id}/run [post]
// @Security BasicAuth
func (h *Handler) RunCommand(c *gin.Context) {
	ctx := c.Request.Context()

	var req models.CommandRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	tmpl, err := h.db.GetCommand(ctx, c.Param("id"))
	if err != nil {
		respondError(c, commandLookup(err), "run command")
		return
	}

	job, err := h.SubmitJob(ctx, models.JobRequest{
		Host:     req.Host,
		JobType:  models.JobExec,
		Metadata: tmpl.ExecMetadata(req),
	})
	if err != nil {
		respondError(c, err, "run command")
		return
	}

	logger.WithJob(job.ID, job.Host).Infof("Scheduled command template %q", tmpl.Name)
	c.JSON(http.StatusCreated, models.JobResponse{Job: job})
}
