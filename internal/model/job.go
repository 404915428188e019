package model

import (
	"encoding/json"
	"time"
)

// JobStatus tracks the lifecycle of a queued unit of work.
type JobStatus string

const (
	JobStatusQueued      JobStatus = "queued"
	JobStatusProcessing  JobStatus = "processing"
	JobStatusWaitingNext JobStatus = "waiting_for_next_step"
	JobStatusCompleted   JobStatus = "completed"
	JobStatusFailed      JobStatus = "failed"
)

// JobNameLeadInsights tags jobs processed by the five-stage lead-insights chain.
const JobNameLeadInsights = "lead-insights"

// MaxProcessingJobs caps concurrently processing step-0 jobs per job name.
// Claims over the cap are rejected so downstream LLM providers are not
// overloaded by a burst of fresh jobs.
const MaxProcessingJobs = 3

// Job is one queued/claimed unit of multi-stage enrichment work.
// ProgressData is an opaque payload carried and mutated between stages.
type Job struct {
	ID           string          `json:"id"`
	JobName      string          `json:"job_name"`
	JobStep      int             `json:"job_step"`
	Status       JobStatus       `json:"status"`
	CampaignID   string          `json:"campaign_id"`
	ProgressData json.RawMessage `json:"progress_data,omitempty"`
	Retries      int             `json:"retries"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Terminal reports whether the job can no longer change state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobStats is a point-in-time view of one job name's queue.
type JobStats struct {
	JobName         string        `json:"job_name"`
	Queued          int           `json:"queued"`
	Processing      int           `json:"processing"`
	Waiting         int           `json:"waiting_for_next_step"`
	Completed       int           `json:"completed"`
	Failed          int           `json:"failed"`
	OldestQueuedAge time.Duration `json:"oldest_queued_age_ns"`
	CollectedAt     time.Time     `json:"collected_at"`
}
