package ranking

import (
	"context"
	"errors"
	"time"
)

// ErrMetricsUnavailable wraps any metrics source failure during a ranking
// pass. A pass that hits it produces no result: callers never see a partial
// leaderboard.
var ErrMetricsUnavailable = errors.New("ranking: metrics source unavailable")

// Entity is the identity portion of a ranked community, passed through the
// engine unchanged.
type Entity struct {
	CultID           string `json:"id"`
	CreatedAtSeconds int64  `json:"created_at_s"`
	Slug             string `json:"slug"`
	Name             string `json:"name"`
	Symbol           string `json:"symbol,omitempty"`
	AvatarURL        string `json:"avatar_url,omitempty"`
	FounderUserID    string `json:"founder_user_id"`
	MemberCount      int64  `json:"member_count"`
}

// EntityMetrics is one fully scored leaderboard entry. Constructed fresh on
// every ranking pass and never mutated after scoring.
type EntityMetrics struct {
	Entity
	DailyActiveMembers int64   `json:"daily_active_members"`
	SignalQualityScore float64 `json:"signal_quality_score"`
	EngagementVelocity float64 `json:"engagement_velocity"`
	Consistency7d      float64 `json:"consistency_7d"`
	CompositeScore     float64 `json:"composite_score"`
	Rank               int     `json:"rank"`
}

// VoteAggregate summarizes votes on an entity's signals within a window.
type VoteAggregate struct {
	TotalVotes    int64
	PositiveVotes int64
}

// ActivityCounts summarizes fresh signals and memberships within a window.
// The two counts are independent queries, never a joined one.
type ActivityCounts struct {
	NewSignals int64
	NewMembers int64
}

// MetricsSource is the read-only provider backing the ranking computation.
// Any storage technology satisfying these five read shapes is substitutable.
type MetricsSource interface {
	// ListEntities returns all non-suppressed communities with member counts.
	ListEntities(ctx context.Context) ([]Entity, error)
	// CounterValue returns a named counter for the entity, zero when absent.
	CounterValue(ctx context.Context, entityID, name string) (int64, error)
	// VoteAggregate tallies votes on the entity's signals created after since.
	VoteAggregate(ctx context.Context, entityID string, since time.Time) (VoteAggregate, error)
	// ActivityCounts tallies signals and new memberships created after since.
	ActivityCounts(ctx context.Context, entityID string, since time.Time) (ActivityCounts, error)
	// DistinctActiveDays counts days with at least one signal after since.
	DistinctActiveDays(ctx context.Context, entityID string, since time.Time) (int64, error)
}
