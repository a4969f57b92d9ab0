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

const deploymentColumns = `id, name, kind, spec, description, tags, created_at, updated_at`

// CreateDeployment saves a named deployment spec
func (db *DB) CreateDeployment(ctx context.Context, name string, kind models.SpecKind, spec json.RawMessage, description string, tags []string) (*models.DeploymentRecord, error) {
	now := time.Now().UTC()
	record := &models.DeploymentRecord{
		ID:          uuid.New().String(),
		Name:        name,
		Kind:        kind,
		Spec:        spec,
		Description: description,
		Tags:        normalizeTags(tags),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	tagsJSON, err := marshalJSON(record.Tags)
	if err != nil {
		return nil, err
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO deployments (`+deploymentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, record.ID, record.Name, string(record.Kind), string(record.Spec), nullString(description),
		tagsJSON, formatTime(now), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("failed to create deployment: %w", err)
	}
	return record, nil
}

// GetDeployment retrieves a saved deployment by id
func (db *DB) GetDeployment(ctx context.Context, id string) (*models.DeploymentRecord, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+deploymentColumns+` FROM deployments WHERE id = ?`, id)
	return scanDeployment(row)
}

// ListDeployments returns saved deployments, most recently updated first
func (db *DB) ListDeployments(ctx context.Context) ([]*models.DeploymentRecord, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+deploymentColumns+` FROM deployments ORDER BY updated_at DESC, name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []*models.DeploymentRecord{}
	for rows.Next() {
		record, err := scanDeployment(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// UpdateDeployment applies the non-nil fields of update
func (db *DB) UpdateDeployment(ctx context.Context, id string, update models.DeploymentUpdate) (*models.DeploymentRecord, error) {
	var (
		sets []string
		args []any
	)
	if update.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *update.Name)
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
	if len(update.Spec) > 0 {
		sets = append(sets, "spec = ?")
		args = append(args, string(update.Spec))
	}
	if len(sets) == 0 {
		return db.GetDeployment(ctx, id)
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, formatTime(time.Now()), id)

	res, err := db.conn.ExecContext(ctx, `UPDATE deployments SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update deployment %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return db.GetDeployment(ctx, id)
}

// DeleteDeployment removes a saved deployment; deleting a missing id is not an error
func (db *DB) DeleteDeployment(ctx context.Context, id string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM deployments WHERE id = ?`, id)
	return err
}

// CloneDeployment copies a saved deployment under a new id
func (db *DB) CloneDeployment(ctx context.Context, id, name string) (*models.DeploymentRecord, error) {
	existing, err := db.GetDeployment(ctx, id)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = existing.Name + " Copy"
	}
	return db.CreateDeployment(ctx, name, existing.Kind, existing.Spec, existing.Description, existing.Tags)
}

func scanDeployment(row scanner) (*models.DeploymentRecord, error) {
	var (
		record               models.DeploymentRecord
		kind, spec, tagsJSON string
		createdAt, updatedAt string
		description          sql.NullString
	)
	err := row.Scan(&record.ID, &record.Name, &kind, &spec, &description, &tagsJSON, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	record.Kind = models.SpecKind(kind)
	record.Spec = json.RawMessage(spec)
	record.Description = description.String
	if err := json.Unmarshal([]byte(tagsJSON), &record.Tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
	}
	if record.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if record.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &record, nil
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := []string{}
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}
