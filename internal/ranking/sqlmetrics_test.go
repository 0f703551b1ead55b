package ranking

import (
	"context"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/the-sect/backend/internal/cults"
	"gorm.io/gorm"
)

func newMetricsDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	err = db.AutoMigrate(
		&cults.Cult{},
		&cults.Membership{},
		&cults.Signal{},
		&cults.SignalVote{},
		&cults.Counter{},
	)
	if err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

func mustSQLMetrics(t *testing.T, db *gorm.DB) *SQLMetrics {
	t.Helper()
	source, err := NewSQLMetrics(db)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return source
}

func seedCult(t *testing.T, db *gorm.DB, cultID string, flagged bool, createdAt int64) {
	t.Helper()
	cult := cults.Cult{
		CultID:           cultID,
		CreatedAtSeconds: createdAt,
		Slug:             cultID,
		Name:             "Cult " + cultID,
		FounderUserID:    "founder-" + cultID,
		IsFlagged:        flagged,
	}
	if err := db.Create(&cult).Error; err != nil {
		t.Fatalf("failed to seed cult: %v", err)
	}
}

func seedMembership(t *testing.T, db *gorm.DB, userID, cultID string, createdAt int64) {
	t.Helper()
	membership := cults.Membership{
		UserID:           userID,
		CultID:           cultID,
		CreatedAtSeconds: createdAt,
		Role:             cults.MembershipRoleMember,
	}
	if err := db.Create(&membership).Error; err != nil {
		t.Fatalf("failed to seed membership: %v", err)
	}
}

func seedSignal(t *testing.T, db *gorm.DB, signalID, cultID string, createdAt int64) {
	t.Helper()
	signal := cults.Signal{
		SignalID:         signalID,
		CultID:           cultID,
		AuthorUserID:     "author",
		CreatedAtSeconds: createdAt,
		Body:             "body",
	}
	if err := db.Create(&signal).Error; err != nil {
		t.Fatalf("failed to seed signal: %v", err)
	}
}

func seedVote(t *testing.T, db *gorm.DB, signalID, userID string, value int, createdAt int64) {
	t.Helper()
	vote := cults.SignalVote{
		SignalID:         signalID,
		UserID:           userID,
		CreatedAtSeconds: createdAt,
		Value:            value,
	}
	if err := db.Create(&vote).Error; err != nil {
		t.Fatalf("failed to seed vote: %v", err)
	}
}

func TestListEntitiesExcludesFlaggedAndCountsMembers(t *testing.T) {
	db := newMetricsDB(t)
	seedCult(t, db, "alpha", false, 1000)
	seedCult(t, db, "beta", false, 2000)
	seedCult(t, db, "banned", true, 3000)
	seedMembership(t, db, "user-1", "alpha", 1000)
	seedMembership(t, db, "user-2", "alpha", 1001)
	seedMembership(t, db, "user-3", "beta", 2000)

	entities, err := mustSQLMetrics(t, db).ListEntities(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entities) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(entities))
	}
	if entities[0].CultID != "alpha" || entities[0].MemberCount != 2 {
		t.Fatalf("unexpected first entity: %+v", entities[0])
	}
	if entities[1].CultID != "beta" || entities[1].MemberCount != 1 {
		t.Fatalf("unexpected second entity: %+v", entities[1])
	}
}

func TestCounterValueDefaultsToZero(t *testing.T) {
	db := newMetricsDB(t)
	seedCult(t, db, "alpha", false, 1000)
	if err := db.Create(&cults.Counter{CultID: "alpha", Name: cults.CounterDailyActive, Value: 7}).Error; err != nil {
		t.Fatalf("failed to seed counter: %v", err)
	}

	source := mustSQLMetrics(t, db)
	value, err := source.CounterValue(context.Background(), "alpha", cults.CounterDailyActive)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != 7 {
		t.Fatalf("expected 7, got %d", value)
	}

	missing, err := source.CounterValue(context.Background(), "alpha", cults.CounterMembers)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if missing != 0 {
		t.Fatalf("expected 0 for missing counter, got %d", missing)
	}
}

func TestVoteAggregateWindowsAndPositiveSplit(t *testing.T) {
	db := newMetricsDB(t)
	now := time.Unix(1700000000, 0).UTC()
	since := now.Add(-72 * time.Hour)

	seedCult(t, db, "alpha", false, 1000)
	seedSignal(t, db, "signal-1", "alpha", since.Unix())
	seedVote(t, db, "signal-1", "user-1", 1, now.Unix()-10)
	seedVote(t, db, "signal-1", "user-2", -1, now.Unix()-20)
	seedVote(t, db, "signal-1", "user-3", 1, since.Unix()-10)

	aggregate, err := mustSQLMetrics(t, db).VoteAggregate(context.Background(), "alpha", since)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if aggregate.TotalVotes != 2 {
		t.Fatalf("expected 2 votes inside the window, got %d", aggregate.TotalVotes)
	}
	if aggregate.PositiveVotes != 1 {
		t.Fatalf("expected 1 positive vote, got %d", aggregate.PositiveVotes)
	}
}

func TestActivityCountsAreIndependent(t *testing.T) {
	db := newMetricsDB(t)
	now := time.Unix(1700000000, 0).UTC()
	since := now.Add(-24 * time.Hour)

	seedCult(t, db, "alpha", false, 1000)
	seedSignal(t, db, "signal-1", "alpha", now.Unix()-60)
	seedSignal(t, db, "signal-2", "alpha", now.Unix()-120)
	seedSignal(t, db, "signal-old", "alpha", since.Unix()-60)
	seedMembership(t, db, "user-1", "alpha", now.Unix()-30)
	seedMembership(t, db, "user-old", "alpha", since.Unix()-30)

	counts, err := mustSQLMetrics(t, db).ActivityCounts(context.Background(), "alpha", since)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts.NewSignals != 2 {
		t.Fatalf("expected 2 fresh signals, got %d", counts.NewSignals)
	}
	if counts.NewMembers != 1 {
		t.Fatalf("expected 1 fresh member, got %d", counts.NewMembers)
	}
}

func TestDistinctActiveDaysCountsCalendarDays(t *testing.T) {
	db := newMetricsDB(t)
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	since := now.Add(-7 * 24 * time.Hour)

	seedCult(t, db, "alpha", false, 1000)
	seedSignal(t, db, "signal-1", "alpha", now.Add(-2*time.Hour).Unix())
	seedSignal(t, db, "signal-2", "alpha", now.Add(-3*time.Hour).Unix())
	seedSignal(t, db, "signal-3", "alpha", now.Add(-30*time.Hour).Unix())
	seedSignal(t, db, "signal-4", "alpha", now.Add(-100*time.Hour).Unix())
	seedSignal(t, db, "signal-stale", "alpha", since.Add(-time.Hour).Unix())

	activeDays, err := mustSQLMetrics(t, db).DistinctActiveDays(context.Background(), "alpha", since)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if activeDays != 3 {
		t.Fatalf("expected 3 distinct active days, got %d", activeDays)
	}
}
