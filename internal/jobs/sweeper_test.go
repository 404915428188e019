package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prospexs-ab/prospexs-api/internal/model"
)

func staleJob(id string, step, retries int) model.Job {
	return model.Job{
		ID:        id,
		JobName:   model.JobNameLeadInsights,
		JobStep:   step,
		Status:    model.JobStatusProcessing,
		Retries:   retries,
		UpdatedAt: time.Now().UTC().Add(-10 * time.Minute),
	}
}

func TestSweep_Empty(t *testing.T) {
	fs := &fakeStore{}
	sweeper := NewSweeper(fs, 5*time.Minute, 5)

	report, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepReport{}, report)
	assert.Empty(t, fs.bulkCalls)
	assert.Equal(t, 5*time.Minute, fs.staleAge)
}

func TestSweep_RequeuesByPartition(t *testing.T) {
	fs := &fakeStore{staleJobs: []model.Job{
		staleJob("fresh-0", 0, 0),
		staleJob("mid-3", 3, 2),
	}}
	sweeper := NewSweeper(fs, 5*time.Minute, 5)

	report, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 2, report.Requeued)
	assert.Equal(t, 0, report.Failed)

	byID := map[string]model.Job{}
	for _, batch := range fs.bulkCalls {
		for _, j := range batch {
			byID[j.ID] = j
		}
	}
	require.Len(t, byID, 2)

	// Step-0 jobs restart from the front of the queue.
	assert.Equal(t, model.JobStatusQueued, byID["fresh-0"].Status)
	assert.Equal(t, 0, byID["fresh-0"].JobStep)
	assert.Equal(t, 1, byID["fresh-0"].Retries)

	// Mid-chain jobs resume at their current step.
	assert.Equal(t, model.JobStatusWaitingNext, byID["mid-3"].Status)
	assert.Equal(t, 3, byID["mid-3"].JobStep)
	assert.Equal(t, 3, byID["mid-3"].Retries)
}

func TestSweep_FailsPastRetryCeiling(t *testing.T) {
	fs := &fakeStore{staleJobs: []model.Job{
		staleJob("doomed", 2, 5),
	}}
	sweeper := NewSweeper(fs, 5*time.Minute, 5)

	report, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 0, report.Requeued)

	require.Len(t, fs.bulkCalls, 1)
	failed := fs.bulkCalls[0][0]
	assert.Equal(t, model.JobStatusFailed, failed.Status)
	assert.Equal(t, 5, failed.Retries)
}

func TestSweep_BatchesPerPartitionAndOutcome(t *testing.T) {
	fs := &fakeStore{staleJobs: []model.Job{
		staleJob("q-1", 0, 0),
		staleJob("q-2", 0, 1),
		staleJob("w-1", 1, 0),
		staleJob("w-2", 4, 3),
		staleJob("f-1", 0, 5),
		staleJob("f-2", 3, 5),
	}}
	sweeper := NewSweeper(fs, 5*time.Minute, 5)

	report, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, report.Scanned)
	assert.Equal(t, 4, report.Requeued)
	assert.Equal(t, 2, report.Failed)

	// One flush per (partition, outcome) pair, never per job.
	require.Len(t, fs.bulkCalls, 4)
	for _, batch := range fs.bulkCalls {
		first := batch[0]
		for _, j := range batch[1:] {
			assert.Equal(t, first.Status, j.Status)
			assert.Equal(t, first.JobStep == 0, j.JobStep == 0)
		}
	}
}
