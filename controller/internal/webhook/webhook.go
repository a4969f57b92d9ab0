package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/doniyusdinar/deploybot/pkg/logger"
	"github.com/doniyusdinar/deploybot/pkg/models"
)

const signaturePrefix = "sha256="

// PushEvent is the subset of a GitHub push payload used for deploys
type PushEvent struct {
	Ref        string `json:"ref" binding:"required"`
	After      string `json:"after"`
	Repository struct {
		FullName string `json:"full_name" binding:"required"`
	} `json:"repository"`
	HeadCommit *struct {
		Message string `json:"message"`
	} `json:"head_commit"`
}

// PushResponse reports the jobs a push created
type PushResponse struct {
	Received    bool     `json:"received"`
	JobsCreated []string `json:"jobs_created"`
	Message     string   `json:"message"`
}

// Handler verifies push deliveries and maps them to job requests
type Handler struct {
	secret []byte
	apps   []App
}

// NewHandler creates a handler for the given secret and app table.
func NewHandler(secret string, apps []App) *Handler {
	return &Handler{secret: []byte(secret), apps: apps}
}

// VerifySignature checks an X-Hub-Signature-256 header against body.
// Without a configured secret every delivery is rejected.
func (h *Handler) VerifySignature(body []byte, header string) bool {
	if len(h.secret) == 0 {
		logger.Log.Warn("Webhook secret is not configured, rejecting delivery")
		return false
	}
	if !strings.HasPrefix(header, signaturePrefix) {
		return false
	}
	expected, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}

// BranchFromRef strips the refs/heads/ prefix.
func BranchFromRef(ref string) string {
	return strings.TrimPrefix(ref, "refs/heads/")
}

// target is one (app, host) pair selected by a push
type target struct {
	app  string
	host string
}

func (h *Handler) targets(repo, branch string) []target {
	var out []target
	for _, app := range h.apps {
		if app.Repo != repo || !app.DeployOnPush {
			continue
		}
		if len(app.Branches) > 0 && !contains(app.Branches, branch) {
			continue
		}
		name := app.Name
		if name == "" {
			name = repo[strings.LastIndex(repo, "/")+1:]
		}
		for _, host := range app.Hosts {
			out = append(out, target{app: name, host: host})
		}
	}
	return out
}

// JobRequests maps a push to one deploy request per configured host. The
// ref is the pushed commit so every host deploys the same revision.
func (h *Handler) JobRequests(event PushEvent) []models.JobRequest {
	repo := event.Repository.FullName
	branch := BranchFromRef(event.Ref)
	ref := event.After
	if ref == "" {
		ref = branch
	}

	message := ""
	if event.HeadCommit != nil {
		message = event.HeadCommit.Message
	}

	var requests []models.JobRequest
	for _, t := range h.targets(repo, branch) {
		requests = append(requests, models.JobRequest{
			Host:    t.host,
			JobType: models.JobDeploy,
			Repo:    repo,
			Ref:     ref,
			Metadata: map[string]any{
				"app":            t.app,
				"branch":         branch,
				"commit_message": message,
				"trigger":        "github_webhook",
			},
		})
	}
	return requests
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
