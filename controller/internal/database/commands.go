package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doniyusdinar/deploybot/pkg/models"
	"github.com/google/uuid"
)

const commandColumns = `id, name, command, description, tags, is_system, runtime, created_at, updated_at`

// defaultCommands are seeded as system templates into an empty library
var defaultCommands = []models.CommandTemplate{
	{Name: "Tail System Logs", Command: "sudo journalctl -n 200 --no-pager", Description: "Show the latest systemd journal entries", Tags: []string{"logs", "linux"}},
	{Name: "Container Stats", Command: "docker stats --no-stream", Description: "Snapshot of running container resource usage", Tags: []string{"docker", "ops"}},
	{Name: "Disk Usage Audit", Command: "df -h && du -sh /var/log/*", Description: "Check high-level disk consumption", Tags: []string{"maintenance"}},
	{Name: "Restart Container", Command: "docker restart ${CONTAINER:-my-service}", Description: "Restart a container by name (set CONTAINER env)", Tags: []string{"docker", "maintenance"}},
	{Name: "Inspect Processes", Command: "ps aux --sort=-%mem | head -n 15", Description: "Top processes by memory usage", Tags: []string{"linux", "monitoring"}},
	{Name: "Clean Docker Images", Command: "docker system prune -f", Description: "Remove unused Docker images and containers", Tags: []string{"docker", "cleanup"}},
	{Name: "Network Diagnostics", Command: "ss -tuln", Description: "Show listening ports", Tags: []string{"network", "linux"}},
}

// seedCommands inserts the system templates once
func (db *DB) seedCommands(ctx context.Context) error {
	var count int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(1) FROM commands WHERE is_system = 1`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	for _, tmpl := range defaultCommands {
		if _, err := db.insertCommand(ctx, tmpl.Name, tmpl.Command, tmpl.Description, tmpl.Tags, models.RuntimeShell, true); err != nil {
			return err
		}
	}
	return nil
}

// CreateCommand saves a user command template
func (db *DB) CreateCommand(ctx context.Context, req models.CommandCreate) (*models.CommandTemplate, error) {
	runtime := req.Runtime
	if runtime == "" {
		runtime = models.RuntimeShell
	}
	return db.insertCommand(ctx, req.Name, req.Command, req.Description, req.Tags, runtime, false)
}

func (db *DB) insertCommand(ctx context.Context, name, command, description string, tags []string, runtime models.CommandRuntime, system bool) (*models.CommandTemplate, error) {
	now := time.Now().UTC()
	tmpl := &models.CommandTemplate{
		ID:          uuid.New().String(),
		Name:        name,
		Command:     command,
		Description: description,
		Tags:        normalizeTags(tags),
		IsSystem:    system,
		Runtime:     runtime,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	tagsJSON, err := marshalJSON(tmpl.Tags)
	if err != nil {
		return nil, err
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO commands (`+commandColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, tmpl.ID, tmpl.Name, tmpl.Command, nullString(description), tagsJSON, system,
		string(runtime), formatTime(now), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("failed to create command %q: %w", name, err)
	}
	return tmpl, nil
}

// GetCommand retrieves a command template by id
func (db *DB) GetCommand(ctx context.Context, id string) (*models.CommandTemplate, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+commandColumns+` FROM commands WHERE id = ?`, id)
	return scanCommand(row)
}

// ListCommands returns templates with system ones first, then most recently
// updated.
func (db *DB) ListCommands(ctx context.Context, includeSystem bool) ([]*models.CommandTemplate, error) {
	query := `SELECT ` + commandColumns + ` FROM commands`
	if !includeSystem {
		query += ` WHERE is_system = 0`
	}
	query += ` ORDER BY is_system DESC, updated_at DESC, name ASC`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	templates := []*models.CommandTemplate{}
	for rows.Next() {
		tmpl, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, tmpl)
	}
	return templates, rows.Err()
}

// UpdateCommand applies the non-nil fields of update
func (db *DB) UpdateCommand(ctx context.Context, id string, update models.CommandUpdate) (*models.CommandTemplate, error) {
	var (
		sets []string
		args []any
	)
	if update.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *update.Name)
	}
	if update.Command != nil {
		sets = append(sets, "command = ?")
		args = append(args, *update.Command)
	}
	if update.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *update.Description)
	}
	if update.Tags != nil {
		tagsJSON, err := marshalJSON(normalizeTags(update.Tags))
		if err != nil {
			return nil, err
		}
		sets = append(sets, "tags = ?")
		args = append(args, tagsJSON)
	}
	if update.Runtime != nil {
		sets = append(sets, "runtime = ?")
		args = append(args, string(*update.Runtime))
	}
	if len(sets) == 0 {
		return db.GetCommand(ctx, id)
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, formatTime(time.Now()), id)

	res, err := db.conn.ExecContext(ctx, `UPDATE commands SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update command %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return db.GetCommand(ctx, id)
}

// DeleteCommand removes a user template. System templates and missing ids
// are left alone without error.
func (db *DB) DeleteCommand(ctx context.Context, id string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM commands WHERE id = ? AND is_system = 0`, id)
	return err
}

func scanCommand(row scanner) (*models.CommandTemplate, error) {
	var (
		tmpl                 models.CommandTemplate
		runtime, tagsJSON    string
		createdAt, updatedAt string
		description          sql.NullString
	)
	err := row.Scan(&tmpl.ID, &tmpl.Name, &tmpl.Command, &description, &tagsJSON, &tmpl.IsSystem,
		&runtime, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	tmpl.Runtime = models.CommandRuntime(runtime)
	tmpl.Description = description.String
	if err := json.Unmarshal([]byte(tagsJSON), &tmpl.Tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
	}
	if tmpl.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if tmpl.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &tmpl, nil
}
