package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prospexs-ab/prospexs-api/internal/config"
	"github.com/prospexs-ab/prospexs-api/internal/model"
)

type fakeSource struct {
	stats map[string]*model.JobStats
	err   error
}

func (f *fakeSource) JobStats(_ context.Context, jobName string) (*model.JobStats, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.stats[jobName], nil
}

func TestCollector_DefaultsToLeadInsights(t *testing.T) {
	src := &fakeSource{stats: map[string]*model.JobStats{
		model.JobNameLeadInsights: {JobName: model.JobNameLeadInsights, Queued: 3},
	}}

	snapshots, err := NewCollector(src).Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.Equal(t, 3, snapshots[0].Queued)
}

func TestCollector_PropagatesError(t *testing.T) {
	src := &fakeSource{err: eris.New("connection closed")}
	_, err := NewCollector(src).Collect(context.Background())
	require.Error(t, err)
}

func TestAlerter_Evaluate(t *testing.T) {
	alerter := NewAlerter(config.MonitoringConfig{
		BacklogThreshold:  10,
		FailedThreshold:   5,
		StaleQueueMinutes: 30,
	})

	t.Run("healthy queue", func(t *testing.T) {
		alerts := alerter.Evaluate([]model.JobStats{
			{JobName: "lead-insights", Queued: 2, Failed: 1},
		})
		assert.Empty(t, alerts)
	})

	t.Run("all thresholds breached", func(t *testing.T) {
		alerts := alerter.Evaluate([]model.JobStats{
			{
				JobName:         "lead-insights",
				Queued:          25,
				Failed:          7,
				OldestQueuedAge: time.Hour,
			},
		})
		require.Len(t, alerts, 3)
		types := map[AlertType]bool{}
		for _, a := range alerts {
			types[a.Type] = true
		}
		assert.True(t, types[AlertQueueBacklog])
		assert.True(t, types[AlertFailedJobs])
		assert.True(t, types[AlertStaleQueue])
	})
}

func TestAlerter_SendAlerts(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	alerter := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})
	sent := alerter.SendAlerts(context.Background(), []Alert{
		{Type: AlertFailedJobs, Severity: "high", Message: "7 failed jobs"},
		{Type: AlertQueueBacklog, Severity: "medium", Message: "backlog"},
	})
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_NoWebhookConfigured(t *testing.T) {
	alerter := NewAlerter(config.MonitoringConfig{})
	sent := alerter.SendAlerts(context.Background(), []Alert{{Type: AlertFailedJobs}})
	assert.Equal(t, 0, sent)
}
