// Package monitoring watches the job queue and raises webhook alerts when it
// backs up or starts failing.
package monitoring

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/prospexs-ab/prospexs-api/internal/model"
)

// StatsSource is the slice of the store the collector reads.
type StatsSource interface {
	JobStats(ctx context.Context, jobName string) (*model.JobStats, error)
}

// Collector gathers queue snapshots for the monitored job names.
type Collector struct {
	source   StatsSource
	jobNames []string
}

func NewCollector(source StatsSource, jobNames ...string) *Collector {
	if len(jobNames) == 0 {
		jobNames = []string{model.JobNameLeadInsights}
	}
	return &Collector{source: source, jobNames: jobNames}
}

// Collect fetches one snapshot per monitored job name.
func (c *Collector) Collect(ctx context.Context) ([]model.JobStats, error) {
	out := make([]model.JobStats, 0, len(c.jobNames))
	for _, name := range c.jobNames {
		stats, err := c.source.JobStats(ctx, name)
		if err != nil {
			return nil, eris.Wrapf(err, "monitoring: collect %s", name)
		}
		out = append(out, *stats)
	}
	return out, nil
}
