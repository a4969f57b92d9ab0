package database

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/doniyusdinar/deploybot/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) (*DB, func()) {
	dbPath := filepath.Join(t.TempDir(), "test_controller.db")
	db, err := New(dbPath)
	require.NoError(t, err)

	cleanup := func() {
		db.Close()
	}

	return db, cleanup
}

func TestSaveAndGetAgent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now().UTC()
	agent := &models.Agent{
		ID:            "agent-1",
		Hostname:      "h1",
		Capabilities:  models.Capabilities{"docker": true, "platform": "linux"},
		Status:        models.AgentOnline,
		RegisteredAt:  now,
		LastHeartbeat: now,
	}
	require.NoError(t, db.SaveAgent(ctx, agent))

	got, err := db.GetAgent(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, "h1", got.Hostname)
	assert.Equal(t, "linux", got.Capabilities["platform"])
	assert.True(t, got.LastHeartbeat.Equal(now))

	byHost, err := db.GetAgentByHostname(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "agent-1", byHost.ID)

	_, err = db.GetAgent(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAgentHostnameIsUnique(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, db.SaveAgent(ctx, &models.Agent{ID: "a", Hostname: "h1", Status: models.AgentOnline, RegisteredAt: now, LastHeartbeat: now}))
	err := db.SaveAgent(ctx, &models.Agent{ID: "b", Hostname: "h1", Status: models.AgentOnline, RegisteredAt: now, LastHeartbeat: now})
	assert.Error(t, err)

	agents, err := db.ListAgents(ctx)
	require.NoError(t, err)
	assert.Len(t, agents, 1)
}

func TestSaveJobRoundTrip(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	created := time.Now().UTC()
	job := &models.Job{
		ID:        "job-1",
		JobType:   models.JobDeploy,
		Repo:      "org/app",
		Ref:       "main",
		Host:      "h1",
		Status:    models.JobPending,
		Metadata:  map[string]any{"name": "app"},
		CreatedAt: created,
	}
	require.NoError(t, db.SaveJob(ctx, job))

	got, err := db.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, got.Status)
	assert.Equal(t, "app", got.Metadata["name"])
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.Error)
	assert.Nil(t, got.AssignedAgent)

	started := created.Add(time.Second)
	job.Status = models.JobFailed
	job.StartedAt = &started
	job.CompletedAt = models.TimePtr(started.Add(time.Second))
	job.AssignedAgent = models.StringPtr("agent-1")
	job.Error = models.StringPtr("boom")
	require.NoError(t, db.SaveJob(ctx, job))

	got, err = db.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, got.Status)
	require.NotNil(t, got.StartedAt)
	assert.True(t, got.StartedAt.Equal(started))
	assert.Equal(t, "agent-1", *got.AssignedAgent)
	assert.Equal(t, "boom", *got.Error)

	count, err := db.CountJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestListJobsByStatusInCreationOrder(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Now().UTC()
	ids := []string{"c", "a", "b"}
	for i, id := range ids {
		require.NoError(t, db.SaveJob(ctx, &models.Job{
			ID:        id,
			JobType:   models.JobExec,
			Host:      "h1",
			Status:    models.JobPending,
			CreatedAt: base.Add(time.Duration(i) * time.Millisecond),
		}))
	}
	require.NoError(t, db.SaveJob(ctx, &models.Job{ID: "r", JobType: models.JobExec, Host: "h1", Status: models.JobRunning, CreatedAt: base}))

	pending, err := db.ListJobs(ctx, models.JobPending)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	for i, job := range pending {
		assert.Equal(t, ids[i], job.ID)
	}

	all, err := db.ListJobs(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestDeploymentLifecycle(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	spec := json.RawMessage(`{"image":"nginx","tag":"1.25"}`)
	record, err := db.CreateDeployment(ctx, "web", models.SpecImage, spec, "front", []string{"prod", "prod", " "})
	require.NoError(t, err)
	assert.Equal(t, []string{"prod"}, record.Tags)

	got, err := db.GetDeployment(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, "web", got.Name)
	assert.JSONEq(t, string(spec), string(got.Spec))

	name := "web-2"
	updated, err := db.UpdateDeployment(ctx, record.ID, models.DeploymentUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "web-2", updated.Name)

	_, err = db.UpdateDeployment(ctx, "missing", models.DeploymentUpdate{Name: &name})
	assert.ErrorIs(t, err, ErrNotFound)

	clone, err := db.CloneDeployment(ctx, record.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "web-2 Copy", clone.Name)
	assert.NotEqual(t, record.ID, clone.ID)

	list, err := db.ListDeployments(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, db.DeleteDeployment(ctx, record.ID))
	_, err = db.GetDeployment(ctx, record.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLogs(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	for _, msg := range []string{"first", "second"} {
		require.NoError(t, db.SaveLog(ctx, &models.LogEntry{JobID: "job-1", AgentID: "agent-1", Message: msg}))
	}
	require.NoError(t, db.SaveLog(ctx, &models.LogEntry{JobID: "job-2", AgentID: "agent-1", Message: "other"}))

	entries, err := db.ListLogs(ctx, "job-1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "first", entries[0].Message)
	assert.Equal(t, "INFO", entries[0].Level)
}

func TestSystemCommandsAreSeededOnce(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "seed.db")
	db, err := New(dbPath)
	require.NoError(t, err)
	ctx := context.Background()

	seeded, err := db.ListCommands(ctx, true)
	require.NoError(t, err)
	require.Len(t, seeded, len(defaultCommands))
	for _, tmpl := range seeded {
		assert.True(t, tmpl.IsSystem)
		assert.Equal(t, models.RuntimeShell, tmpl.Runtime)
	}
	require.NoError(t, db.Close())

	reopened, err := New(dbPath)
	require.NoError(t, err)
	defer reopened.Close()
	again, err := reopened.ListCommands(ctx, true)
	require.NoError(t, err)
	assert.Len(t, again, len(defaultCommands))

	user, err := reopened.ListCommands(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, user)
}

func TestCommandLifecycle(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	tmpl, err := db.CreateCommand(ctx, models.CommandCreate{
		Name:    "Free memory",
		Command: "free -m",
		Tags:    []string{"linux", "linux", ""},
	})
	require.NoError(t, err)
	assert.Equal(t, models.RuntimeShell, tmpl.Runtime)
	assert.Equal(t, []string{"linux"}, tmpl.Tags)
	assert.False(t, tmpl.IsSystem)

	got, err := db.GetCommand(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, "free -m", got.Command)
	assert.Empty(t, got.Description)

	runtime := models.RuntimePython
	command := "import os; print(os.getloadavg())"
	updated, err := db.UpdateCommand(ctx, tmpl.ID, models.CommandUpdate{Command: &command, Runtime: &runtime})
	require.NoError(t, err)
	assert.Equal(t, command, updated.Command)
	assert.Equal(t, models.RuntimePython, updated.Runtime)
	assert.Equal(t, "Free memory", updated.Name)

	_, err = db.UpdateCommand(ctx, "missing", models.CommandUpdate{Command: &command})
	assert.ErrorIs(t, err, ErrNotFound)

	user, err := db.ListCommands(ctx, false)
	require.NoError(t, err)
	require.Len(t, user, 1)
	assert.Equal(t, tmpl.ID, user[0].ID)

	all, err := db.ListCommands(ctx, true)
	require.NoError(t, err)
	require.Len(t, all, len(defaultCommands)+1)
	assert.True(t, all[0].IsSystem)
	assert.False(t, all[len(all)-1].IsSystem)

	require.NoError(t, db.DeleteCommand(ctx, tmpl.ID))
	_, err = db.GetCommand(ctx, tmpl.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSystemCommandsCannotBeDeleted(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	all, err := db.ListCommands(ctx, true)
	require.NoError(t, err)
	require.NotEmpty(t, all)

	require.NoError(t, db.DeleteCommand(ctx, all[0].ID))
	_, err = db.GetCommand(ctx, all[0].ID)
	assert.NoError(t, err)
}
