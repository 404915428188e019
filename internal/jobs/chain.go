// Package jobs runs the multi-stage lead-insights chain and the stale-job
// sweeper on top of the store's claim/complete primitives.
package jobs

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/prospexs-ab/prospexs-api/internal/model"
	"github.com/prospexs-ab/prospexs-api/internal/store"
)

// Runner executes one stage against a claimed job and returns the mutated
// progress payload. Runners never touch job status themselves.
type Runner interface {
	Run(ctx context.Context, job *model.Job) (json.RawMessage, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, job *model.Job) (json.RawMessage, error)

func (f RunnerFunc) Run(ctx context.Context, job *model.Job) (json.RawMessage, error) {
	return f(ctx, job)
}

// StageResult reports what a stage invocation did. When the claim did not
// yield a job, Job is nil and Outcome says why.
type StageResult struct {
	Outcome store.ClaimOutcome
	Job     *model.Job
}

// Chain drives the ordered stages of one job name. Each stage claims its own
// step, runs the registered runner, and publishes the result through
// CompleteStage. Claim conflicts and empty queues surface as outcomes, not
// errors.
type Chain struct {
	store         store.Store
	jobName       string
	stages        []model.StageDescriptor
	runners       map[int]Runner
	processingCap int
}

// NewChain validates the runner set against the stage table: every declared
// step needs a runner and no runner may target an undeclared step.
func NewChain(st store.Store, jobName string, stages []model.StageDescriptor, runners map[int]Runner, processingCap int) (*Chain, error) {
	for _, desc := range stages {
		if _, ok := runners[desc.Step]; !ok {
			return nil, eris.Errorf("jobs: no runner registered for %s step %d (%s)", jobName, desc.Step, desc.Name)
		}
	}
	for step := range runners {
		found := false
		for _, desc := range stages {
			if desc.Step == step {
				found = true
				break
			}
		}
		if !found {
			return nil, eris.Errorf("jobs: runner registered for unknown %s step %d", jobName, step)
		}
	}
	return &Chain{
		store:         st,
		jobName:       jobName,
		stages:        stages,
		runners:       runners,
		processingCap: processingCap,
	}, nil
}

// Stage looks up the descriptor for a step.
func (c *Chain) Stage(step int) (model.StageDescriptor, bool) {
	for _, desc := range c.stages {
		if desc.Step == step {
			return desc, true
		}
	}
	return model.StageDescriptor{}, false
}

// RunStage claims one job at the given step and executes its runner.
//
// Failure handling is asymmetric. A non-terminal stage leaves a failed job
// in processing for the sweeper to revert and retry. The terminal stage
// requeues immediately to step 0, since its fan-out is all-or-nothing and
// partial results are never persisted.
func (c *Chain) RunStage(ctx context.Context, step int) (StageResult, error) {
	desc, ok := c.Stage(step)
	if !ok {
		return StageResult{}, eris.Errorf("jobs: unknown %s step %d", c.jobName, step)
	}

	claim, err := c.store.ClaimJob(ctx, c.jobName, desc.ExpectStatus, desc.Step, c.processingCap)
	if err != nil {
		return StageResult{}, err
	}
	if claim.Outcome != store.Claimed {
		return StageResult{Outcome: claim.Outcome}, nil
	}
	job := claim.Job

	log := zap.L().With(
		zap.String("job_id", job.ID),
		zap.String("job_name", c.jobName),
		zap.Int("step", desc.Step),
		zap.String("stage", desc.Name),
	)
	log.Info("stage claimed job")

	progressData, err := c.runners[desc.Step].Run(ctx, job)
	if err != nil {
		log.Error("stage failed", zap.Error(err))
		if desc.Terminal {
			if rqErr := c.store.RequeueJob(ctx, job.ID); rqErr != nil {
				return StageResult{Outcome: store.Claimed, Job: job},
					eris.Wrapf(rqErr, "jobs: requeue after terminal stage failure for job %s", job.ID)
			}
		}
		return StageResult{Outcome: store.Claimed, Job: job}, err
	}

	if err := c.store.CompleteStage(ctx, job.ID, desc.Step, progressData, desc.Terminal); err != nil {
		// The sweeper may have reclaimed the job mid-run. Its retry will
		// redo this stage, so dropping our result is safe.
		log.Warn("stage result discarded, claim no longer held", zap.Error(err))
		return StageResult{Outcome: store.Claimed, Job: job},
			eris.Wrapf(err, "jobs: complete stage %d for job %s", desc.Step, job.ID)
	}

	job.ProgressData = progressData
	job.JobStep = desc.Step + 1
	if desc.Terminal {
		job.Status = model.JobStatusCompleted
	} else {
		job.Status = model.JobStatusWaitingNext
	}
	log.Info("stage completed", zap.Bool("terminal", desc.Terminal))
	return StageResult{Outcome: store.Claimed, Job: job}, nil
}
