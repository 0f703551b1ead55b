package ranking

import (
	"context"
	"fmt"
	"time"

	"github.com/the-sect/backend/internal/cults"
	"gorm.io/gorm"
)

// SQLMetrics implements MetricsSource over the relational cult schema.
type SQLMetrics struct {
	db *gorm.DB
}

// NewSQLMetrics constructs a metrics source over the provided database handle.
func NewSQLMetrics(db *gorm.DB) (*SQLMetrics, error) {
	if db == nil {
		return nil, fmt.Errorf("ranking: database handle required")
	}
	return &SQLMetrics{db: db}, nil
}

type entityRow struct {
	cults.Cult
	MemberCount int64 `gorm:"column:member_count"`
}

// ListEntities returns all unflagged cults joined with their member counts.
func (m *SQLMetrics) ListEntities(ctx context.Context) ([]Entity, error) {
	var rows []entityRow
	err := m.db.WithContext(ctx).
		Model(&cults.Cult{}).
		Select("cults.*, COUNT(DISTINCT memberships.user_id) AS member_count").
		Joins("LEFT JOIN memberships ON cults.cult_id = memberships.cult_id").
		Where("cults.is_flagged = ?", false).
		Group("cults.cult_id").
		Order("cults.created_at_s ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	entities := make([]Entity, 0, len(rows))
	for _, row := range rows {
		entities = append(entities, Entity{
			CultID:           row.CultID,
			CreatedAtSeconds: row.CreatedAtSeconds,
			Slug:             row.Slug,
			Name:             row.Name,
			Symbol:           row.Symbol,
			AvatarURL:        row.AvatarURL,
			FounderUserID:    row.FounderUserID,
			MemberCount:      row.MemberCount,
		})
	}
	return entities, nil
}

// CounterValue reads a named cult counter, returning zero when absent.
func (m *SQLMetrics) CounterValue(ctx context.Context, entityID, name string) (int64, error) {
	var value int64
	err := m.db.WithContext(ctx).
		Model(&cults.Counter{}).
		Select("COALESCE(MAX(value), 0)").
		Where("cult_id = ? AND name = ?", entityID, name).
		Scan(&value).Error
	if err != nil {
		return 0, err
	}
	return value, nil
}

// VoteAggregate tallies votes on the entity's signals created after since.
func (m *SQLMetrics) VoteAggregate(ctx context.Context, entityID string, since time.Time) (VoteAggregate, error) {
	var aggregate struct {
		TotalVotes    int64 `gorm:"column:total_votes"`
		PositiveVotes int64 `gorm:"column:positive_votes"`
	}
	err := m.db.WithContext(ctx).
		Model(&cults.SignalVote{}).
		Select("COUNT(*) AS total_votes, "+
			"COALESCE(SUM(CASE WHEN signal_votes.value = 1 THEN 1 ELSE 0 END), 0) AS positive_votes").
		Joins("JOIN signals ON signals.signal_id = signal_votes.signal_id").
		Where("signals.cult_id = ? AND signal_votes.created_at_s > ?", entityID, since.Unix()).
		Scan(&aggregate).Error
	if err != nil {
		return VoteAggregate{}, err
	}
	return VoteAggregate{TotalVotes: aggregate.TotalVotes, PositiveVotes: aggregate.PositiveVotes}, nil
}

// ActivityCounts tallies fresh signals and memberships after since. The two
// counts are deliberately independent queries, not a joined one.
func (m *SQLMetrics) ActivityCounts(ctx context.Context, entityID string, since time.Time) (ActivityCounts, error) {
	var newSignals int64
	err := m.db.WithContext(ctx).
		Model(&cults.Signal{}).
		Where("cult_id = ? AND created_at_s > ?", entityID, since.Unix()).
		Count(&newSignals).Error
	if err != nil {
		return ActivityCounts{}, err
	}

	var newMembers int64
	err = m.db.WithContext(ctx).
		Model(&cults.Membership{}).
		Where("cult_id = ? AND created_at_s > ?", entityID, since.Unix()).
		Count(&newMembers).Error
	if err != nil {
		return ActivityCounts{}, err
	}

	return ActivityCounts{NewSignals: newSignals, NewMembers: newMembers}, nil
}

// DistinctActiveDays counts calendar days with at least one signal after since.
func (m *SQLMetrics) DistinctActiveDays(ctx context.Context, entityID string, since time.Time) (int64, error) {
	var activeDays int64
	err := m.db.WithContext(ctx).
		Model(&cults.Signal{}).
		Select("COUNT(DISTINCT DATE(created_at_s, 'unixepoch'))").
		Where("cult_id = ? AND created_at_s > ?", entityID, since.Unix()).
		Scan(&activeDays).Error
	if err != nil {
		return 0, err
	}
	return activeDays, nil
}
