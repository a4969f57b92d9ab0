package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inTempDir(t *testing.T) {
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(old) })
}

func TestLoadConfigDefaults(t *testing.T) {
	inTempDir(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "./controller.db", cfg.DBPath)
	assert.Equal(t, 30*time.Second, cfg.AgentStale)
	assert.Equal(t, 300*time.Second, cfg.SSHCommandTimeout)
	assert.Equal(t, "/tmp/deploybot", cfg.SSHWorkDir)
	assert.False(t, cfg.RedisEnabled)
	assert.Equal(t, []string{"nats://localhost:4222"}, cfg.NATSURLs)
}

func TestLoadConfigFromEnv(t *testing.T) {
	inTempDir(t)
	t.Setenv("PORT", "9090")
	t.Setenv("AGENT_STALE_SECONDS", "45")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("NATS_URLS", "nats://a:4222, nats://b:4222")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 45*time.Second, cfg.AgentStale)
	assert.True(t, cfg.RedisEnabled)
	assert.Equal(t, []string{"nats://a:4222", "nats://b:4222"}, cfg.NATSURLs)
}

func TestLoadConfigRejectsBadTimeouts(t *testing.T) {
	inTempDir(t)
	t.Setenv("SSH_COMMAND_TIMEOUT_SECONDS", "0")

	_, err := LoadConfig()
	assert.Error(t, err)
}
