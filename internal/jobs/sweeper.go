package jobs

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/prospexs-ab/prospexs-api/internal/model"
	"github.com/prospexs-ab/prospexs-api/internal/store"
)

// Sweeper reverts jobs stuck in processing so crashed or timed-out stage
// invocations do not strand work forever.
type Sweeper struct {
	store        store.Store
	staleAfter   time.Duration
	retryCeiling int
}

func NewSweeper(st store.Store, staleAfter time.Duration, retryCeiling int) *Sweeper {
	return &Sweeper{store: st, staleAfter: staleAfter, retryCeiling: retryCeiling}
}

// SweepReport summarizes one sweep pass.
type SweepReport struct {
	Scanned  int `json:"scanned"`
	Requeued int `json:"requeued"`
	Failed   int `json:"failed"`
}

// Sweep finds processing jobs untouched for longer than staleAfter and
// reverts each to its claimable status with an incremented retry count.
// Step-0 jobs go back to queued; later steps go back to waiting_for_next_step
// with their step intact, so the chain resumes where it stalled. A job past
// the retry ceiling is marked failed instead.
//
// Writes are batched: one bulk upsert per (partition, outcome) pair, four at
// most, regardless of how many jobs went stale.
func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	stale, err := s.store.StaleProcessingJobs(ctx, s.staleAfter)
	if err != nil {
		return SweepReport{}, eris.Wrap(err, "jobs: sweep select")
	}
	report := SweepReport{Scanned: len(stale)}
	if len(stale) == 0 {
		return report, nil
	}

	now := time.Now().UTC()
	batches := map[string][]model.Job{}

	for _, job := range stale {
		job.UpdatedAt = now
		job.Retries++

		var key string
		switch {
		case job.Retries > s.retryCeiling:
			job.Retries = s.retryCeiling
			job.Status = model.JobStatusFailed
			if job.JobStep == 0 {
				key = "initial-failed"
			} else {
				key = "resume-failed"
			}
			report.Failed++
		case job.JobStep == 0:
			job.Status = model.JobStatusQueued
			key = "initial-requeued"
			report.Requeued++
		default:
			job.Status = model.JobStatusWaitingNext
			key = "resume-requeued"
			report.Requeued++
		}
		batches[key] = append(batches[key], job)
	}

	for key, jobs := range batches {
		if _, err := s.store.BulkUpdateJobStatus(ctx, jobs); err != nil {
			return report, eris.Wrapf(err, "jobs: sweep flush %s batch", key)
		}
		zap.L().Info("sweeper flushed batch",
			zap.String("batch", key),
			zap.Int("count", len(jobs)),
		)
	}

	zap.L().Info("sweep complete",
		zap.Int("scanned", report.Scanned),
		zap.Int("requeued", report.Requeued),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}
