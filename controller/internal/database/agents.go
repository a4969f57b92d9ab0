package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/doniyusdinar/deploybot/pkg/models"
)

const agentColumns = `id, hostname, capabilities, status, registered_at, last_heartbeat`

// SaveAgent inserts or updates an agent keyed by id
func (db *DB) SaveAgent(ctx context.Context, agent *models.Agent) error {
	caps := agent.Capabilities
	if caps == nil {
		caps = models.Capabilities{}
	}
	capsJSON, err := marshalJSON(caps)
	if err != nil {
		return fmt.Errorf("failed to marshal capabilities: %w", err)
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO agents (`+agentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			hostname = excluded.hostname,
			capabilities = excluded.capabilities,
			status = excluded.status,
			last_heartbeat = excluded.last_heartbeat
	`, agent.ID, agent.Hostname, capsJSON, string(agent.Status),
		formatTime(agent.RegisteredAt), formatTime(agent.LastHeartbeat))
	if err != nil {
		return fmt.Errorf("failed to save agent %s: %w", agent.ID, err)
	}
	return nil
}

// GetAgent retrieves an agent by id
func (db *DB) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = ?`, id)
	return scanAgent(row)
}

// GetAgentByHostname retrieves an agent by its unique hostname
func (db *DB) GetAgentByHostname(ctx context.Context, hostname string) (*models.Agent, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE hostname = ?`, hostname)
	return scanAgent(row)
}

// ListAgents retrieves all registered agents
func (db *DB) ListAgents(ctx context.Context) ([]*models.Agent, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY hostname ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []*models.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

func scanAgent(row scanner) (*models.Agent, error) {
	var (
		agent         models.Agent
		capsJSON      string
		status        string
		registeredAt  string
		lastHeartbeat string
	)
	err := row.Scan(&agent.ID, &agent.Hostname, &capsJSON, &status, &registeredAt, &lastHeartbeat)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	agent.Status = models.AgentStatus(status)
	if err := json.Unmarshal([]byte(capsJSON), &agent.Capabilities); err != nil {
		return nil, fmt.Errorf("failed to unmarshal capabilities: %w", err)
	}
	if agent.RegisteredAt, err = parseTime(registeredAt); err != nil {
		return nil, err
	}
	if agent.LastHeartbeat, err = parseTime(lastHeartbeat); err != nil {
		return nil, err
	}
	return &agent, nil
}
