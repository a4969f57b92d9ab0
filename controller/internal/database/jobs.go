package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/doniyusdinar/deploybot/pkg/models"
)

const jobColumns = `id, job_type, repo, ref, host, status, metadata, deployment_id, deployment_spec,
	created_at, started_at, completed_at, assigned_agent, error`

// SaveJob inserts or updates a job keyed by id. The row keeps its rowid on
// update so creation order stays stable.
func (db *DB) SaveJob(ctx context.Context, job *models.Job) error {
	metadata := job.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataJSON, err := marshalJSON(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	var spec sql.NullString
	if len(job.DeploymentSpec) > 0 {
		spec = sql.NullString{String: string(job.DeploymentSpec), Valid: true}
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			job_type = excluded.job_type,
			repo = excluded.repo,
			ref = excluded.ref,
			host = excluded.host,
			status = excluded.status,
			metadata = excluded.metadata,
			deployment_id = excluded.deployment_id,
			deployment_spec = excluded.deployment_spec,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			assigned_agent = excluded.assigned_agent,
			error = excluded.error
	`,
		job.ID, string(job.JobType), nullString(job.Repo), nullString(job.Ref), job.Host,
		string(job.Status), metadataJSON, nullString(job.DeploymentID), spec,
		formatTime(job.CreatedAt), nullTime(job.StartedAt), nullTime(job.CompletedAt),
		nullStringPtr(job.AssignedAgent), nullStringPtr(job.Error),
	)
	if err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	return nil
}

// GetJob retrieves a job by id
func (db *DB) GetJob(ctx context.Context, id string) (*models.Job, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

// ListJobs returns jobs in creation order, optionally filtered by status.
// An empty status returns every job.
func (db *DB) ListJobs(ctx context.Context, status models.JobStatus) ([]*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at ASC, rowid ASC`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// CountJobs returns the number of persisted jobs
func (db *DB) CountJobs(ctx context.Context) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&n)
	return n, err
}

func scanJob(row scanner) (*models.Job, error) {
	var (
		job                                      models.Job
		jobType, status, metadataJSON, createdAt string
		repo, ref, deploymentID, spec            sql.NullString
		startedAt, completedAt                   sql.NullString
		assignedAgent, jobErr                    sql.NullString
	)
	err := row.Scan(&job.ID, &jobType, &repo, &ref, &job.Host, &status, &metadataJSON,
		&deploymentID, &spec, &createdAt, &startedAt, &completedAt, &assignedAgent, &jobErr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	job.JobType = models.JobType(jobType)
	job.Status = models.JobStatus(status)
	job.Repo = repo.String
	job.Ref = ref.String
	job.DeploymentID = deploymentID.String
	if spec.Valid {
		job.DeploymentSpec = json.RawMessage(spec.String)
	}
	if err := json.Unmarshal([]byte(metadataJSON), &job.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata for job %s: %w", job.ID, err)
	}
	if job.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if job.StartedAt, err = scanTimePtr(startedAt); err != nil {
		return nil, err
	}
	if job.CompletedAt, err = scanTimePtr(completedAt); err != nil {
		return nil, err
	}
	if assignedAgent.Valid {
		job.AssignedAgent = &assignedAgent.String
	}
	if jobErr.Valid {
		job.Error = &jobErr.String
	}
	return &job, nil
}
