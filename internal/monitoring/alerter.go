package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/prospexs-ab/prospexs-api/internal/config"
	"github.com/prospexs-ab/prospexs-api/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertQueueBacklog AlertType = "queue_backlog"
	AlertFailedJobs   AlertType = "failed_jobs"
	AlertStaleQueue   AlertType = "stale_queue"
)

// Alert is one threshold breach to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates queue snapshots against configured thresholds and sends
// alerts via webhook when they are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks each snapshot against the thresholds.
func (a *Alerter) Evaluate(snapshots []model.JobStats) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	for _, snap := range snapshots {
		if a.cfg.BacklogThreshold > 0 && snap.Queued >= a.cfg.BacklogThreshold {
			alerts = append(alerts, Alert{
				Type:      AlertQueueBacklog,
				Severity:  "medium",
				Message:   fmt.Sprintf("%s queue backlog at %d jobs", snap.JobName, snap.Queued),
				Details:   map[string]any{"job_name": snap.JobName, "queued": snap.Queued},
				Timestamp: now,
			})
		}
		if a.cfg.FailedThreshold > 0 && snap.Failed >= a.cfg.FailedThreshold {
			alerts = append(alerts, Alert{
				Type:      AlertFailedJobs,
				Severity:  "high",
				Message:   fmt.Sprintf("%s has %d failed jobs", snap.JobName, snap.Failed),
				Details:   map[string]any{"job_name": snap.JobName, "failed": snap.Failed},
				Timestamp: now,
			})
		}
		if a.cfg.StaleQueueMinutes > 0 && snap.OldestQueuedAge >= time.Duration(a.cfg.StaleQueueMinutes)*time.Minute {
			alerts = append(alerts, Alert{
				Type:      AlertStaleQueue,
				Severity:  "high",
				Message:   fmt.Sprintf("oldest queued %s job waiting %s", snap.JobName, snap.OldestQueuedAge.Round(time.Second)),
				Details:   map[string]any{"job_name": snap.JobName, "oldest_queued_age": snap.OldestQueuedAge.String()},
				Timestamp: now,
			})
		}
	}
	return alerts
}

// SendAlerts posts each alert to the configured webhook, returning how many
// were delivered. Delivery failures are logged, not returned; monitoring
// must never take down the caller.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		body, err := json.Marshal(alert)
		if err != nil {
			zap.L().Error("monitoring: marshal alert", zap.Error(err))
			continue
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(body))
		if err != nil {
			zap.L().Error("monitoring: build alert request", zap.Error(err))
			continue
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := a.client.Do(req)
		if err != nil {
			zap.L().Warn("monitoring: send alert", zap.Error(err))
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			sent++
		} else {
			zap.L().Warn("monitoring: alert webhook rejected",
				zap.Int("status", resp.StatusCode),
				zap.String("type", string(alert.Type)),
			)
		}
	}
	return sent
}
