package database

import (
	"context"
	"fmt"
	"time"

	"github.com/doniyusdinar/deploybot/pkg/models"
)

// SaveLog stores one ingested log record
func (db *DB) SaveLog(ctx context.Context, entry *models.LogEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.Level == "" {
		entry.Level = "INFO"
	}
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO logs (timestamp, job_id, agent_id, level, message)
		VALUES (?, ?, ?, ?, ?)
	`, formatTime(entry.Timestamp), entry.JobID, entry.AgentID, entry.Level, entry.Message)
	if err != nil {
		return fmt.Errorf("failed to save log: %w", err)
	}
	entry.ID, _ = res.LastInsertId()
	return nil
}

// ListLogs returns the log records of a job in arrival order
func (db *DB) ListLogs(ctx context.Context, jobID string, limit int) ([]*models.LogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, timestamp, job_id, agent_id, level, message
		FROM logs WHERE job_id = ? ORDER BY id ASC LIMIT ?
	`, jobID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []*models.LogEntry{}
	for rows.Next() {
		var (
			entry models.LogEntry
			ts    string
		)
		if err := rows.Scan(&entry.ID, &ts, &entry.JobID, &entry.AgentID, &entry.Level, &entry.Message); err != nil {
			return nil, err
		}
		if entry.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}
