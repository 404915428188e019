// Package store persists campaigns, progress documents, and the job queue.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/prospexs-ab/prospexs-api/internal/model"
)

// ErrNotFound is returned when a row does not exist or is not owned by the
// requesting user. Handlers map it to HTTP 404.
var ErrNotFound = eris.New("store: not found")

// ClaimOutcome is the result class of a claim attempt. The HTTP mapping
// (200/204/409/429) happens once at the handler boundary.
type ClaimOutcome int

const (
	// Claimed: the job was transitioned to processing by this caller.
	Claimed ClaimOutcome = iota
	// NoWork: no job matched the (job_name, status, job_step) tuple.
	NoWork
	// Conflict: a matching job existed but another worker claimed it first.
	Conflict
	// Overloaded: too many jobs already processing for this job name.
	Overloaded
)

// ClaimResult carries the outcome and, when Claimed, the job.
type ClaimResult struct {
	Outcome ClaimOutcome
	Job     *model.Job
}

// CampaignInput holds the writable campaign fields.
type CampaignInput struct {
	CompanyName    string
	CompanyWebsite string
	Language       string
}

// Store defines the persistence interface for the campaign wizard and the
// lead-insights job chain.
type Store interface {
	// Campaigns (all scoped by owning user)
	CreateCampaign(ctx context.Context, userID string, in CampaignInput) (*model.Campaign, error)
	GetCampaign(ctx context.Context, userID, campaignID string) (*model.Campaign, error)
	// GetCampaignByID skips the ownership check. For job-chain runners only,
	// which execute without a requesting user.
	GetCampaignByID(ctx context.Context, campaignID string) (*model.Campaign, error)
	ListCampaigns(ctx context.Context, userID string) ([]model.Campaign, error)
	UpdateCampaign(ctx context.Context, userID, campaignID string, in CampaignInput) error

	// Progress documents
	GetProgress(ctx context.Context, progressID string) (*model.Progress, error)
	SaveStepResult(ctx context.Context, progressID string, step int, payload json.RawMessage) error

	// User details
	GetUserDetails(ctx context.Context, userID string) (*model.UserDetails, error)

	// Job queue
	EnqueueJob(ctx context.Context, jobName, campaignID string, progressData json.RawMessage) (*model.Job, error)
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	ClaimJob(ctx context.Context, jobName string, expect model.JobStatus, step, processingCap int) (ClaimResult, error)
	CompleteStage(ctx context.Context, jobID string, fromStep int, progressData json.RawMessage, terminal bool) error
	RequeueJob(ctx context.Context, jobID string) error
	StaleProcessingJobs(ctx context.Context, olderThan time.Duration) ([]model.Job, error)
	JobStats(ctx context.Context, jobName string) (*model.JobStats, error)
	BulkUpdateJobStatus(ctx context.Context, jobs []model.Job) (int64, error)
	DeleteTerminalJobs(ctx context.Context, olderThan time.Duration) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
