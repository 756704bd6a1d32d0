// Package monitoring summarizes recent run history and raises webhook alerts
// when failure rate, spend, or stalled runs cross configured thresholds.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/kpi-insights/internal/model"
	"github.com/sells-group/kpi-insights/internal/store"
)

const pageSize = 500

// RunLister is the part of store.Store the collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Snapshot holds a point-in-time view of run health.
type Snapshot struct {
	Total      int     `json:"total"`
	Complete   int     `json:"complete"`
	Failed     int     `json:"failed"`
	InProgress int     `json:"in_progress"`
	Stalled    int     `json:"stalled"`
	FailRate   float64 `json:"fail_rate"`

	AvgDurationSecs float64 `json:"avg_duration_secs"`
	InputTokens     int64   `json:"input_tokens"`
	OutputTokens    int64   `json:"output_tokens"`
	CostUSD         float64 `json:"cost_usd"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Finished returns the number of runs in a terminal state.
func (s *Snapshot) Finished() int {
	return s.Complete + s.Failed
}

// Collector builds snapshots from the run store.
type Collector struct {
	runs RunLister

	// StalledAfter marks in-progress runs older than this as stalled.
	StalledAfter time.Duration

	now func() time.Time
}

// NewCollector creates a collector over st.
func NewCollector(st RunLister, stalledAfter time.Duration) *Collector {
	if stalledAfter <= 0 {
		stalledAfter = 30 * time.Minute
	}
	return &Collector{runs: st, StalledAfter: stalledAfter, now: time.Now}
}

// Collect summarizes runs created within the last lookbackHours. A
// non-positive lookback covers the whole history.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := c.now().UTC()
	snap := &Snapshot{LookbackHours: lookbackHours, CollectedAt: now}

	var cutoff time.Time
	if lookbackHours > 0 {
		cutoff = now.Add(-time.Duration(lookbackHours) * time.Hour)
	}

	var totalDur time.Duration
	for offset := 0; ; offset += pageSize {
		page, err := c.runs.ListRuns(ctx, store.RunFilter{Limit: pageSize, Offset: offset})
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: list runs")
		}

		done := len(page) < pageSize
		for _, r := range page {
			// Pages are newest first.
			if !cutoff.IsZero() && r.CreatedAt.Before(cutoff) {
				done = true
				break
			}
			snap.Total++
			switch r.Status {
			case model.RunStatusComplete:
				snap.Complete++
				totalDur += r.UpdatedAt.Sub(r.CreatedAt)
				if r.Result != nil && r.Result.Usage != nil {
					snap.InputTokens += r.Result.Usage.InputTokens
					snap.OutputTokens += r.Result.Usage.OutputTokens
					snap.CostUSD += r.Result.Usage.CostUSD
				}
			case model.RunStatusFailed:
				snap.Failed++
			default:
				snap.InProgress++
				if now.Sub(r.UpdatedAt) > c.StalledAfter {
					snap.Stalled++
				}
			}
		}
		if done {
			break
		}
	}

	if finished := snap.Finished(); finished > 0 {
		snap.FailRate = float64(snap.Failed) / float64(finished)
	}
	if snap.Complete > 0 {
		snap.AvgDurationSecs = totalDur.Seconds() / float64(snap.Complete)
	}
	return snap, nil
}
