package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/prospexs-ab/prospexs-api/internal/db"
	"github.com/prospexs-ab/prospexs-api/internal/model"
)

const jobColumns = `id, job_name, job_step, status, campaign_id, progress_data, COALESCE(retries, 0), created_at, updated_at`

func scanJob(row pgx.Row) (*model.Job, error) {
	var j model.Job
	var progressData []byte
	if err := row.Scan(&j.ID, &j.JobName, &j.JobStep, &j.Status, &j.CampaignID, &progressData, &j.Retries, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.ProgressData = progressData
	return &j, nil
}

func (s *PostgresStore) EnqueueJob(ctx context.Context, jobName, campaignID string, progressData json.RawMessage) (*model.Job, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, job_name, job_step, status, campaign_id, progress_data, retries, created_at, updated_at)
		 VALUES ($1, $2, 0, $3, $4, $5, NULL, $6, $7)`,
		id, jobName, string(model.JobStatusQueued), campaignID, []byte(progressData), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: enqueue job")
	}

	return &model.Job{
		ID:           id,
		JobName:      jobName,
		JobStep:      0,
		Status:       model.JobStatusQueued,
		CampaignID:   campaignID,
		ProgressData: progressData,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`,
		jobID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get job %s", jobID)
	}
	return j, nil
}

// ClaimJob selects the oldest job matching (jobName, expect, step) and
// transitions it to processing via a conditional update. The update only
// succeeds if the row still has the expected prior status; losing the race
// yields Conflict, an empty queue yields NoWork. Step-0 claims are rejected
// with Overloaded while processingCap jobs are already in flight for the
// job name, shielding the LLM providers from bursts.
func (s *PostgresStore) ClaimJob(ctx context.Context, jobName string, expect model.JobStatus, step, processingCap int) (ClaimResult, error) {
	if step == 0 && processingCap > 0 {
		var inFlight int
		err := s.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM jobs WHERE job_name = $1 AND status = $2 AND job_step = 0`,
			jobName, string(model.JobStatusProcessing),
		).Scan(&inFlight)
		if err != nil {
			return ClaimResult{}, eris.Wrap(err, "postgres: count processing jobs")
		}
		if inFlight >= processingCap {
			return ClaimResult{Outcome: Overloaded}, nil
		}
	}

	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE job_name = $1 AND status = $2 AND job_step = $3
		 ORDER BY created_at ASC LIMIT 1`,
		jobName, string(expect), step,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ClaimResult{Outcome: NoWork}, nil
		}
		return ClaimResult{}, eris.Wrap(err, "postgres: select claimable job")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, updated_at = $2
		 WHERE id = $3 AND status = $4 AND job_step = $5`,
		string(model.JobStatusProcessing), time.Now().UTC(), j.ID, string(expect), step,
	)
	if err != nil {
		return ClaimResult{}, eris.Wrapf(err, "postgres: claim job %s", j.ID)
	}
	if tag.RowsAffected() == 0 {
		// Another worker transitioned the row between select and update.
		return ClaimResult{Outcome: Conflict}, nil
	}

	j.Status = model.JobStatusProcessing
	return ClaimResult{Outcome: Claimed, Job: j}, nil
}

// CompleteStage publishes a stage's result: the mutated progress_data is
// stored, job_step advances by one, status moves to waiting_for_next_step
// (or completed for the terminal stage), and retries is cleared. Conditional
// on the job still being processing at fromStep, so a job the sweeper already
// reclaimed cannot be double-completed.
func (s *PostgresStore) CompleteStage(ctx context.Context, jobID string, fromStep int, progressData json.RawMessage, terminal bool) error {
	next := model.JobStatusWaitingNext
	if terminal {
		next = model.JobStatusCompleted
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET job_step = $1, status = $2, progress_data = $3, retries = NULL, updated_at = $4
		 WHERE id = $5 AND status = $6 AND job_step = $7`,
		fromStep+1, string(next), []byte(progressData), time.Now().UTC(),
		jobID, string(model.JobStatusProcessing), fromStep,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete stage %d for job %s", fromStep, jobID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RequeueJob reverts a job to queued at step 0 so it retries from scratch.
// Used by the terminal stage's failure path.
func (s *PostgresStore) RequeueJob(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, job_step = 0, updated_at = $2 WHERE id = $3`,
		string(model.JobStatusQueued), time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: requeue job %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// StaleProcessingJobs returns full rows for jobs stuck in processing longer
// than olderThan, oldest first. The sweeper partitions and rewrites them.
func (s *PostgresStore) StaleProcessingJobs(ctx context.Context, olderThan time.Duration) ([]model.Job, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE status = $1 AND updated_at < $2
		 ORDER BY updated_at ASC`,
		string(model.JobStatusProcessing), cutoff,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: select stale jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan stale job")
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: stale jobs iterate")
}

// BulkUpdateJobStatus flushes one batch of sweeper outcomes in a single
// upsert: the full rows are written back with only status, retries, and
// updated_at taking effect on conflict.
func (s *PostgresStore) BulkUpdateJobStatus(ctx context.Context, jobs []model.Job) (int64, error) {
	if len(jobs) == 0 {
		return 0, nil
	}

	rows := make([][]any, len(jobs))
	for i, j := range jobs {
		var progressData any
		if j.ProgressData != nil {
			progressData = []byte(j.ProgressData)
		}
		rows[i] = []any{
			j.ID, j.JobName, j.JobStep, string(j.Status), j.CampaignID,
			progressData, j.Retries, j.CreatedAt, j.UpdatedAt,
		}
	}

	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table: "jobs",
		Columns: []string{
			"id", "job_name", "job_step", "status", "campaign_id",
			"progress_data", "retries", "created_at", "updated_at",
		},
		ConflictKeys: []string{"id"},
		UpdateCols:   []string{"status", "retries", "updated_at"},
	}, rows)
}

// JobStats reports queue depth per status and the age of the oldest queued
// job for one job name.
func (s *PostgresStore) JobStats(ctx context.Context, jobName string) (*model.JobStats, error) {
	stats := &model.JobStats{JobName: jobName, CollectedAt: time.Now().UTC()}
	var oldestSecs float64
	err := s.pool.QueryRow(ctx,
		`SELECT
			COUNT(*) FILTER (WHERE status = 'queued'),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COUNT(*) FILTER (WHERE status = 'waiting_for_next_step'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COALESCE(EXTRACT(EPOCH FROM now() - MIN(created_at) FILTER (WHERE status = 'queued')), 0)
		 FROM jobs WHERE job_name = $1`,
		jobName,
	).Scan(&stats.Queued, &stats.Processing, &stats.Waiting, &stats.Completed, &stats.Failed, &oldestSecs)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: job stats")
	}
	stats.OldestQueuedAge = time.Duration(oldestSecs * float64(time.Second))
	return stats, nil
}

// DeleteTerminalJobs removes completed/failed jobs older than olderThan.
// Called by the periodic cleanup handler.
func (s *PostgresStore) DeleteTerminalJobs(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM jobs WHERE status IN ($1, $2) AND updated_at < $3`,
		string(model.JobStatusCompleted), string(model.JobStatusFailed), cutoff,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete terminal jobs")
	}
	return int(tag.RowsAffected()), nil
}
