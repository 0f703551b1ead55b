package ranking

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// Composite score weights. They sum to 1.0 by construction; changing them is
// a policy change, not a structural one.
const (
	weightMemberCount        = 0.35
	weightDailyActiveMembers = 0.20
	weightSignalQuality      = 0.20
	weightEngagementVelocity = 0.15
	weightConsistency7d      = 0.10
)

const (
	// TopK is the number of entries retained after a ranking pass.
	TopK = 10

	voteWindow        = 72 * time.Hour
	activityWindow    = 24 * time.Hour
	consistencyWindow = 7 * 24 * time.Hour

	// neutralQualityScore applies when an entity has no votes in the window,
	// so a quiet community can still rank via the quality floor.
	neutralQualityScore = 0.5

	metricFetchConcurrency = 8
)

// Engine computes the ordered leaderboard. It is a pure function of the
// metrics source's current state; no hidden memory between calls.
type Engine struct {
	source MetricsSource
	clock  func() time.Time
}

// NewEngine constructs a ranking engine over the provided metrics source.
func NewEngine(source MetricsSource, clock func() time.Time) (*Engine, error) {
	if source == nil {
		return nil, fmt.Errorf("ranking: metrics source required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &Engine{source: source, clock: clock}, nil
}

// ComputeRanking scores every non-suppressed community, sorts descending by
// composite score with fetch order breaking ties, assigns 1-based ranks, and
// returns the top ten. Any metrics source failure aborts the whole pass.
func (e *Engine) ComputeRanking(ctx context.Context) ([]EntityMetrics, error) {
	entities, err := e.source.ListEntities(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list entities: %v", ErrMetricsUnavailable, err)
	}

	now := e.clock()
	scored := make([]EntityMetrics, len(entities))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(metricFetchConcurrency)
	for index, entity := range entities {
		group.Go(func() error {
			metrics, err := e.fetchMetrics(groupCtx, entity, now)
			if err != nil {
				return err
			}
			scored[index] = metrics
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	maxMemberCount := maxOf(scored, func(m EntityMetrics) float64 { return float64(m.MemberCount) })
	maxDailyActive := maxOf(scored, func(m EntityMetrics) float64 { return float64(m.DailyActiveMembers) })
	maxVelocity := maxOf(scored, func(m EntityMetrics) float64 { return m.EngagementVelocity })

	for index := range scored {
		entry := &scored[index]
		entry.CompositeScore = weightMemberCount*(float64(entry.MemberCount)/maxMemberCount) +
			weightDailyActiveMembers*(float64(entry.DailyActiveMembers)/maxDailyActive) +
			weightSignalQuality*entry.SignalQualityScore +
			weightEngagementVelocity*(entry.EngagementVelocity/maxVelocity) +
			weightConsistency7d*entry.Consistency7d
	}

	sort.SliceStable(scored, func(left, right int) bool {
		return scored[left].CompositeScore > scored[right].CompositeScore
	})
	for index := range scored {
		scored[index].Rank = index + 1
	}

	if len(scored) > TopK {
		scored = scored[:TopK]
	}
	return scored, nil
}

func (e *Engine) fetchMetrics(ctx context.Context, entity Entity, now time.Time) (EntityMetrics, error) {
	metrics := EntityMetrics{Entity: entity}

	dailyActive, err := e.source.CounterValue(ctx, entity.CultID, "daily_active")
	if err != nil {
		return EntityMetrics{}, fmt.Errorf("%w: counter %s: %v", ErrMetricsUnavailable, entity.CultID, err)
	}
	metrics.DailyActiveMembers = dailyActive

	votes, err := e.source.VoteAggregate(ctx, entity.CultID, now.Add(-voteWindow))
	if err != nil {
		return EntityMetrics{}, fmt.Errorf("%w: votes %s: %v", ErrMetricsUnavailable, entity.CultID, err)
	}
	if votes.TotalVotes > 0 {
		metrics.SignalQualityScore = float64(votes.PositiveVotes) / float64(votes.TotalVotes)
	} else {
		metrics.SignalQualityScore = neutralQualityScore
	}

	activity, err := e.source.ActivityCounts(ctx, entity.CultID, now.Add(-activityWindow))
	if err != nil {
		return EntityMetrics{}, fmt.Errorf("%w: activity %s: %v", ErrMetricsUnavailable, entity.CultID, err)
	}
	metrics.EngagementVelocity = 0.5*float64(activity.NewSignals) + 0.5*float64(activity.NewMembers)

	activeDays, err := e.source.DistinctActiveDays(ctx, entity.CultID, now.Add(-consistencyWindow))
	if err != nil {
		return EntityMetrics{}, fmt.Errorf("%w: active days %s: %v", ErrMetricsUnavailable, entity.CultID, err)
	}
	metrics.Consistency7d = float64(activeDays) / 7

	return metrics, nil
}

// maxOf returns the batch maximum of the projected metric, floored at 1 so
// normalization never divides by zero.
func maxOf(entries []EntityMetrics, project func(EntityMetrics) float64) float64 {
	maximum := 1.0
	for _, entry := range entries {
		if value := project(entry); value > maximum {
			maximum = value
		}
	}
	return maximum
}
