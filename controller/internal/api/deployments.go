package api

import (
	"encoding/json"
	"net/http"

	"github.com/doniyusdinar/deploybot/pkg/deployspec"
	"github.com/doniyusdinar/deploybot/pkg/logger"
	"github.com/doniyusdinar/deploybot/pkg/models"
	"github.com/gin-gonic/gin"
)

// cloneRequest optionally names the copy
type cloneRequest struct {
	Name string `json:"name"`
}

// canonicalSpec validates raw as a spec of kind and returns its stored form.
func canonicalSpec(kind models.SpecKind, raw json.RawMessage) (json.RawMessage, error) {
	tagged, err := deployspec.WithKind(kind, raw)
	if err != nil {
		return nil, invalid("%v", err)
	}
	_, canonical, err := deployspec.Parse(tagged)
	if err != nil {
		return nil, invalid("%v", err)
	}
	return canonical, nil
}

// ListDeployments godoc
// @Summary List saved deployments
// @Tags deployments
// @Produce json
// @Success 200 {array} models.DeploymentRecord
// @Failure 500 {object} map[string]string
// @Router /v1/deployments [get]
// @Security BasicAuth
func (h *Handler) ListDeployments(c *gin.Context) {
	records, err := h.db.ListDeployments(c.Request.Context())
	if err != nil {
		respondError(c, err, "list deployments")
		return
	}
	c.JSON(http.StatusOK, records)
}

// CreateDeployment godoc
// @Summary Save a deployment
// @Description Save a named image or repo deployment spec for reuse by jobs
// @Tags deployments
// @Accept json
// @Produce json
// @Param request body models.DeploymentCreate true "Deployment"
// @Success 201 {object} models.DeploymentRecord
// @Failure 400 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /v1/deployments [post]
// @Security BasicAuth
func (h *Handler) CreateDeployment(c *gin.Context) {
	var req models.DeploymentCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	spec, err := canonicalSpec(req.Kind, req.Spec)
	if err != nil {
		respondError(c, err, "create deployment")
		return
	}

	record, err := h.db.CreateDeployment(c.Request.Context(), req.Name, req.Kind, spec, req.Description, req.Tags)
	if err != nil {
		respondError(c, err, "create deployment")
		return
	}

	logger.Log.Infof("Deployment %q saved as %s", record.Name, record.ID)
	c.JSON(http.StatusCreated, record)
}

// GetDeployment godoc
// @Summary Get a saved deployment
// @Tags deployments
// @Produce json
// @Param id path string true "Deployment ID"
// @Success 200 {object} models.DeploymentRecord
// @Failure 404 {object} map[string]string
// @Router /v1/deployments/{id} [get]
// @Security BasicAuth
func (h *Handler) GetDeployment(c *gin.Context) {
	record, err := h.db.GetDeployment(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "get deployment")
		return
	}
	c.JSON(http.StatusOK, record)
}

// UpdateDeployment godoc
// @Summary Update a saved deployment
// @Description Replace any of name, description, tags or spec. The spec keeps the deployment's kind.
// @Tags deployments
// @Accept json
// @Produce json
// @Param id path string true "Deployment ID"
// @Param request body models.DeploymentUpdate true "Fields to replace"
// @Success 200 {object} models.DeploymentRecord
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /v1/deployments/{id} [put]
// @Security BasicAuth
func (h *Handler) UpdateDeployment(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	var req models.DeploymentUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if len(req.Spec) > 0 {
		existing, err := h.db.GetDeployment(ctx, id)
		if err != nil {
			respondError(c, err, "update deployment")
			return
		}
		if req.Spec, err = canonicalSpec(existing.Kind, req.Spec); err != nil {
			respondError(c, err, "update deployment")
			return
		}
	}

	record, err := h.db.UpdateDeployment(ctx, id, req)
	if err != nil {
		respondError(c, err, "update deployment")
		return
	}
	c.JSON(http.StatusOK, record)
}

// DeleteDeployment godoc
// @Summary Delete a saved deployment
// @Tags deployments
// @Param id path string true "Deployment ID"
// @Success 204
// @Failure 500 {object} map[string]string
// @Router /v1/deployments/{id} [delete]
// @Security BasicAuth
func (h *Handler) DeleteDeployment(c *gin.Context) {
	if err := h.db.DeleteDeployment(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err, "delete deployment")
		return
	}
	c.Status(http.StatusNoContent)
}

// CloneDeployment godoc
// @Summary Clone a saved deployment
// @Description Copy a deployment under a new id. The copy is named "<name> Copy" unless a name is given.
// @Tags deployments
// @Accept json
// @Produce json
// @Param id path string true "Deployment ID"
// @Param request body cloneRequest false "New name"
// @Success 201 {object} models.DeploymentRecord
// @Failure 404 {object} map[string]string
// @Router /v1/deployments/{id}/clone [post]
// @Security BasicAuth
func (h *Handler) CloneDeployment(c *gin.Context) {
	var req cloneRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
	}

	record, err := h.db.CloneDeployment(c.Request.Context(), c.Param("id"), req.Name)
	if err != nil {
		respondError(c, err, "clone deployment")
		return
	}
	c.JSON(http.StatusCreated, record)
}
