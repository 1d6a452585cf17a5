package usecase

import (
	"sort"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/classtools/classroom-sync/internal/domain"
)

// CompletionReport summarizes when a set of repositories last saw a push,
// typically relative to an assignment deadline.
type CompletionReport struct {
	Total      int
	WithPushes int
	Earliest   time.Time
	Latest     time.Time
	// MedianLead and P90Lead are deadline minus push time: positive means
	// pushed before the deadline. Zero when no deadline was supplied.
	MedianLead time.Duration
	P90Lead    time.Duration
	// Late lists repositories whose last push came after the deadline.
	Late []string
}

// CompletionTimes computes push-time statistics over the given snapshots.
// A zero deadline skips the lead-time figures.
func CompletionTimes(snaps []domain.RepositorySnapshot, deadline time.Time) (*CompletionReport, error) {
	report := &CompletionReport{Total: len(snaps)}

	var leads []float64
	for _, snap := range snaps {
		if snap.PushedAt.IsZero() {
			continue
		}
		report.WithPushes++
		if report.Earliest.IsZero() || snap.PushedAt.Before(report.Earliest) {
			report.Earliest = snap.PushedAt
		}
		if snap.PushedAt.After(report.Latest) {
			report.Latest = snap.PushedAt
		}
		if !deadline.IsZero() {
			leads = append(leads, deadline.Sub(snap.PushedAt).Seconds())
			if snap.PushedAt.After(deadline) {
				report.Late = append(report.Late, snap.Name)
			}
		}
	}
	sort.Strings(report.Late)

	if len(leads) > 0 {
		median, err := stats.Median(leads)
		if err != nil {
			return nil, err
		}
		p90, err := stats.Percentile(leads, 90)
		if err != nil {
			return nil, err
		}
		report.MedianLead = time.Duration(median * float64(time.Second))
		report.P90Lead = time.Duration(p90 * float64(time.Second))
	}
	return report, nil
}
