package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"eventmitra/backend/internal/models"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusSent       = "sent"
	JobStatusFailed     = "failed"
)

func (r *Repository) CreateNotificationJob(ctx context.Context, job models.NotificationJob) (int64, error) {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return 0, err
	}
	status := job.Status
	if status == "" {
		status = JobStatusPending
	}
	row := r.pool.QueryRow(ctx, `
INSERT INTO notification_jobs (user_id, event_id, kind, run_at, payload, status)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id;`, job.UserID, job.EventID, job.Kind, job.RunAt, payload, status)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// FetchDueNotificationJobs claims up to limit due jobs by flipping them to
// processing. Concurrent workers skip rows another worker already holds.
func (r *Repository) FetchDueNotificationJobs(ctx context.Context, limit int) ([]models.NotificationJob, error) {
	query := `
WITH cte AS (
	SELECT id
	FROM notification_jobs
	WHERE status = 'pending' AND run_at <= now()
	ORDER BY run_at ASC
	LIMIT $1
	FOR UPDATE SKIP LOCKED
)
UPDATE notification_jobs n
SET status = 'processing', updated_at = now()
FROM cte
WHERE n.id = cte.id
RETURNING n.id, n.user_id, n.event_id, n.kind, n.run_at, n.payload, n.status, n.attempts, COALESCE(n.last_error, '');`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]models.NotificationJob, 0)
	for rows.Next() {
		var job models.NotificationJob
		var payloadBytes []byte
		if err := rows.Scan(&job.ID, &job.UserID, &job.EventID, &job.Kind, &job.RunAt, &payloadBytes, &job.Status, &job.Attempts, &job.LastError); err != nil {
			return nil, err
		}
		job.Payload = decodeJSONMap(payloadBytes)
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *Repository) UpdateNotificationJobStatus(ctx context.Context, jobID int64, status string, attempts int, lastError string, nextRun *time.Time) error {
	query := `UPDATE notification_jobs SET status = $1, attempts = $2, last_error = $3, run_at = COALESCE($4, run_at), updated_at = now() WHERE id = $5`
	_, err := r.pool.Exec(ctx, query, status, attempts, nullString(lastError), nextRun, jobID)
	return err
}

func (r *Repository) RequeueStaleProcessing(ctx context.Context, staleAfter time.Duration) error {
	query := `UPDATE notification_jobs SET status = 'pending', updated_at = now() WHERE status = 'processing' AND updated_at <= now() - $1::interval`
	interval := fmt.Sprintf("%d seconds", int(staleAfter.Seconds()))
	_, err := r.pool.Exec(ctx, query, interval)
	return err
}

// CancelEventJobs drops pending jobs for an event, e.g. reminders after a cancellation.
func (r *Repository) CancelEventJobs(ctx context.Context, eventID int64, kind string) (int64, error) {
	cmd, err := r.pool.Exec(ctx, `
UPDATE notification_jobs
SET status = 'failed', last_error = 'event cancelled', updated_at = now()
WHERE event_id = $1 AND kind = $2 AND status = 'pending';`, eventID, kind)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
