package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/doniyusdinar/deploybot/controller/internal/webhook"
	"github.com/doniyusdinar/deploybot/pkg/logger"
	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 5 << 20

// GitHubWebhook godoc
// @Summary GitHub push webhook
// @Description Verify the delivery signature and create deploy jobs for the configured hosts of the pushed branch
// @Tags webhooks
// @Accept json
// @Produce json
// @Param X-Hub-Signature-256 header string true "HMAC-SHA256 signature"
// @Success 200 {object} webhook.PushResponse
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /v1/webhooks/github [post]
func (h *Handler) GitHubWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	if h.webhook == nil || !h.webhook.VerifySignature(body, c.GetHeader("X-Hub-Signature-256")) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		return
	}

	// Only pushes create jobs.
	if event := c.GetHeader("X-GitHub-Event"); event != "" && event != "push" {
		c.JSON(http.StatusOK, webhook.PushResponse{Received: true, JobsCreated: []string{}, Message: "Ignored " + event + " event"})
		return
	}

	var event webhook.PushEvent
	if err := json.Unmarshal(body, &event); err != nil || event.Repository.FullName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		return
	}

	created := []string{}
	for _, req := range h.webhook.JobRequests(event) {
		job, err := h.SubmitJob(c.Request.Context(), req)
		if err != nil {
			respondError(c, err, "create webhook job")
			return
		}
		created = append(created, job.ID)
	}

	logger.Log.Infof("Push to %s %s created %d job(s)", event.Repository.FullName, event.Ref, len(created))
	c.JSON(http.StatusOK, webhook.PushResponse{
		Received:    true,
		JobsCreated: created,
		Message:     fmt.Sprintf("Created %d deployment job(s)", len(created)),
	})
}
