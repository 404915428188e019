package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prospexs-ab/prospexs-api/internal/model"
	"github.com/prospexs-ab/prospexs-api/internal/store"
)

// fakeStore stubs just the queue methods the chain touches. Calling anything
// else panics via the embedded nil interface, which is what we want in tests.
type fakeStore struct {
	store.Store

	claimResult store.ClaimResult
	claimErr    error
	claims      []claimCall

	completeErr   error
	completeCalls []completeCall

	requeued []string

	staleJobs []model.Job
	bulkCalls [][]model.Job
	bulkErr   error
	staleErr  error
	staleAge  time.Duration
}

type claimCall struct {
	jobName string
	expect  model.JobStatus
	step    int
	cap     int
}

type completeCall struct {
	jobID    string
	fromStep int
	data     json.RawMessage
	terminal bool
}

func (f *fakeStore) ClaimJob(_ context.Context, jobName string, expect model.JobStatus, step, processingCap int) (store.ClaimResult, error) {
	f.claims = append(f.claims, claimCall{jobName, expect, step, processingCap})
	return f.claimResult, f.claimErr
}

func (f *fakeStore) CompleteStage(_ context.Context, jobID string, fromStep int, data json.RawMessage, terminal bool) error {
	f.completeCalls = append(f.completeCalls, completeCall{jobID, fromStep, data, terminal})
	return f.completeErr
}

func (f *fakeStore) RequeueJob(_ context.Context, jobID string) error {
	f.requeued = append(f.requeued, jobID)
	return nil
}

func (f *fakeStore) StaleProcessingJobs(_ context.Context, olderThan time.Duration) ([]model.Job, error) {
	f.staleAge = olderThan
	return f.staleJobs, f.staleErr
}

func (f *fakeStore) BulkUpdateJobStatus(_ context.Context, jobs []model.Job) (int64, error) {
	f.bulkCalls = append(f.bulkCalls, jobs)
	return int64(len(jobs)), f.bulkErr
}

func noopRunners() map[int]Runner {
	runners := map[int]Runner{}
	for _, desc := range model.LeadInsightStages {
		runners[desc.Step] = RunnerFunc(func(_ context.Context, job *model.Job) (json.RawMessage, error) {
			return job.ProgressData, nil
		})
	}
	return runners
}

func TestNewChain_MissingRunner(t *testing.T) {
	runners := noopRunners()
	delete(runners, 2)

	_, err := NewChain(&fakeStore{}, model.JobNameLeadInsights, model.LeadInsightStages, runners, model.MaxProcessingJobs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no runner registered")
}

func TestNewChain_UnknownStep(t *testing.T) {
	runners := noopRunners()
	runners[99] = runners[0]

	_, err := NewChain(&fakeStore{}, model.JobNameLeadInsights, model.LeadInsightStages, runners, model.MaxProcessingJobs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown")
}

func TestRunStage_CompletesAndAdvances(t *testing.T) {
	job := &model.Job{
		ID:           "job-1",
		JobName:      model.JobNameLeadInsights,
		JobStep:      1,
		Status:       model.JobStatusProcessing,
		ProgressData: json.RawMessage(`{"leads":[]}`),
	}
	fs := &fakeStore{claimResult: store.ClaimResult{Outcome: store.Claimed, Job: job}}

	runners := noopRunners()
	runners[1] = RunnerFunc(func(_ context.Context, _ *model.Job) (json.RawMessage, error) {
		return json.RawMessage(`{"leads":[{"solutions":true}]}`), nil
	})

	chain, err := NewChain(fs, model.JobNameLeadInsights, model.LeadInsightStages, runners, model.MaxProcessingJobs)
	require.NoError(t, err)

	res, err := chain.RunStage(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, store.Claimed, res.Outcome)
	assert.Equal(t, 2, res.Job.JobStep)
	assert.Equal(t, model.JobStatusWaitingNext, res.Job.Status)

	require.Len(t, fs.claims, 1)
	assert.Equal(t, model.JobStatusWaitingNext, fs.claims[0].expect)
	require.Len(t, fs.completeCalls, 1)
	assert.Equal(t, "job-1", fs.completeCalls[0].jobID)
	assert.Equal(t, 1, fs.completeCalls[0].fromStep)
	assert.False(t, fs.completeCalls[0].terminal)
	assert.JSONEq(t, `{"leads":[{"solutions":true}]}`, string(fs.completeCalls[0].data))
}

func TestRunStage_TerminalCompletes(t *testing.T) {
	job := &model.Job{ID: "job-1", JobStep: 4, Status: model.JobStatusProcessing}
	fs := &fakeStore{claimResult: store.ClaimResult{Outcome: store.Claimed, Job: job}}

	chain, err := NewChain(fs, model.JobNameLeadInsights, model.LeadInsightStages, noopRunners(), model.MaxProcessingJobs)
	require.NoError(t, err)

	res, err := chain.RunStage(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, res.Job.Status)
	require.Len(t, fs.completeCalls, 1)
	assert.True(t, fs.completeCalls[0].terminal)
}

func TestRunStage_OutcomePassthrough(t *testing.T) {
	for _, outcome := range []store.ClaimOutcome{store.NoWork, store.Conflict, store.Overloaded} {
		fs := &fakeStore{claimResult: store.ClaimResult{Outcome: outcome}}
		chain, err := NewChain(fs, model.JobNameLeadInsights, model.LeadInsightStages, noopRunners(), model.MaxProcessingJobs)
		require.NoError(t, err)

		res, err := chain.RunStage(context.Background(), 0)
		require.NoError(t, err)
		assert.Equal(t, outcome, res.Outcome)
		assert.Nil(t, res.Job)
		assert.Empty(t, fs.completeCalls)
	}
}

func TestRunStage_NonTerminalFailureLeavesJobProcessing(t *testing.T) {
	job := &model.Job{ID: "job-1", JobStep: 2, Status: model.JobStatusProcessing}
	fs := &fakeStore{claimResult: store.ClaimResult{Outcome: store.Claimed, Job: job}}

	runners := noopRunners()
	runners[2] = RunnerFunc(func(_ context.Context, _ *model.Job) (json.RawMessage, error) {
		return nil, eris.New("provider timeout")
	})

	chain, err := NewChain(fs, model.JobNameLeadInsights, model.LeadInsightStages, runners, model.MaxProcessingJobs)
	require.NoError(t, err)

	_, err = chain.RunStage(context.Background(), 2)
	require.Error(t, err)
	// The sweeper owns recovery for non-terminal stages.
	assert.Empty(t, fs.requeued)
	assert.Empty(t, fs.completeCalls)
}

func TestRunStage_TerminalFailureRequeues(t *testing.T) {
	job := &model.Job{ID: "job-1", JobStep: 4, Status: model.JobStatusProcessing}
	fs := &fakeStore{claimResult: store.ClaimResult{Outcome: store.Claimed, Job: job}}

	runners := noopRunners()
	runners[4] = RunnerFunc(func(_ context.Context, _ *model.Job) (json.RawMessage, error) {
		return nil, eris.New("one of twelve calls failed")
	})

	chain, err := NewChain(fs, model.JobNameLeadInsights, model.LeadInsightStages, runners, model.MaxProcessingJobs)
	require.NoError(t, err)

	_, err = chain.RunStage(context.Background(), 4)
	require.Error(t, err)
	assert.Equal(t, []string{"job-1"}, fs.requeued)
	assert.Empty(t, fs.completeCalls)
}

func TestRunStage_StaleClaimDropsResult(t *testing.T) {
	job := &model.Job{ID: "job-1", JobStep: 1, Status: model.JobStatusProcessing}
	fs := &fakeStore{
		claimResult: store.ClaimResult{Outcome: store.Claimed, Job: job},
		completeErr: store.ErrNotFound,
	}

	chain, err := NewChain(fs, model.JobNameLeadInsights, model.LeadInsightStages, noopRunners(), model.MaxProcessingJobs)
	require.NoError(t, err)

	_, err = chain.RunStage(context.Background(), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
