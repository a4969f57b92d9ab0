package redis

import (
	"context"
	"testing"

	"github.com/doniyusdinar/deploybot/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledClientIsNil(t *testing.T) {
	c, err := NewClient(Config{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, c)

	// A nil client is a no-op everywhere.
	assert.False(t, c.IsConnected())
	assert.NoError(t, c.PublishJobEvent(context.Background(), &models.Job{ID: "j"}))
	snap, err := c.GetJobSnapshot(context.Background(), "j")
	assert.NoError(t, err)
	assert.Nil(t, snap)
	assert.NoError(t, c.Close())
}

func TestUnreachableServer(t *testing.T) {
	_, err := NewClient(Config{Enabled: true, Address: "127.0.0.1:1"})
	assert.Error(t, err)
}
