package nats

import (
	"context"
	"testing"

	"github.com/doniyusdinar/deploybot/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestJobSubject(t *testing.T) {
	c := NewClient(Config{})
	assert.Equal(t, "deploybot.jobs.running", c.JobSubject(models.JobRunning))
	assert.Equal(t, "ops.jobs.failed", JobSubject("ops", models.JobFailed))
}

func TestDisabledClient(t *testing.T) {
	c := NewClient(Config{Enabled: false})
	assert.Error(t, c.Connect())
	assert.False(t, c.IsConnected())
	assert.Error(t, c.HealthCheck())
	assert.Error(t, c.PublishJobEvent(context.Background(), &models.Job{ID: "j"}))
	c.Close()
}
