package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const appsYAML = `
apps:
  - name: web
    repo: org/web
    branches: [main, release]
    hosts: [h1, h2]
    deploy_on_push: true
  - repo: org/api
    hosts: [h3]
    deploy_on_push: true
  - name: docs
    repo: org/web
    hosts: [h9]
    deploy_on_push: false
`

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func loadTestApps(t *testing.T) []App {
	path := filepath.Join(t.TempDir(), "apps.yaml")
	require.NoError(t, os.WriteFile(path, []byte(appsYAML), 0644))
	apps, err := LoadApps(path)
	require.NoError(t, err)
	return apps
}

func TestLoadApps(t *testing.T) {
	apps := loadTestApps(t)
	require.Len(t, apps, 3)
	assert.Equal(t, []string{"main", "release"}, apps[0].Branches)
	assert.True(t, apps[0].DeployOnPush)

	missing, err := LoadApps(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestLoadAppsRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apps.yaml")
	require.NoError(t, os.WriteFile(path, []byte("apps: [unterminated"), 0644))
	_, err := LoadApps(path)
	assert.Error(t, err)
}

func TestVerifySignature(t *testing.T) {
	h := NewHandler("s3cret", nil)
	body := []byte(`{"ref":"refs/heads/main"}`)

	assert.True(t, h.VerifySignature(body, sign("s3cret", body)))
	assert.False(t, h.VerifySignature(body, sign("other", body)))
	assert.False(t, h.VerifySignature(body, ""))
	assert.False(t, h.VerifySignature(body, "sha1=abc"))
	assert.False(t, h.VerifySignature(body, "sha256=zz"))
	assert.False(t, NewHandler("", nil).VerifySignature(body, sign("", body)))
}

func TestJobRequestsForPush(t *testing.T) {
	h := NewHandler("s", loadTestApps(t))

	var event PushEvent
	event.Ref = "refs/heads/main"
	event.After = "abc123"
	event.Repository.FullName = "org/web"

	reqs := h.JobRequests(event)
	require.Len(t, reqs, 2)
	assert.Equal(t, "h1", reqs[0].Host)
	assert.Equal(t, "h2", reqs[1].Host)
	for _, r := range reqs {
		assert.Equal(t, "org/web", r.Repo)
		assert.Equal(t, "abc123", r.Ref)
		assert.Equal(t, "web", r.Metadata["app"])
		assert.Equal(t, "main", r.Metadata["branch"])
		assert.Equal(t, "github_webhook", r.Metadata["trigger"])
	}
}

func TestJobRequestsFiltersBranchAndDefaultsName(t *testing.T) {
	h := NewHandler("s", loadTestApps(t))

	var event PushEvent
	event.Ref = "refs/heads/feature"
	event.Repository.FullName = "org/web"
	assert.Empty(t, h.JobRequests(event))

	event.Repository.FullName = "org/api"
	reqs := h.JobRequests(event)
	require.Len(t, reqs, 1)
	assert.Equal(t, "api", reqs[0].Metadata["app"])
	assert.Equal(t, "feature", reqs[0].Ref)
}
