package ranking

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newSchedulerFixture(t *testing.T, computer Computer, clock *fakeClock, archiveHour int) (*Scheduler, *Archiver) {
	t.Helper()
	db := newMetricsDB(t)
	if err := db.AutoMigrate(&Snapshot{}); err != nil {
		t.Fatalf("failed to migrate snapshots: %v", err)
	}
	cache := newTestCache(t, computer, clock)
	archiver, err := NewArchiver(db, clock.Now, &sequenceIDProvider{})
	if err != nil {
		t.Fatalf("unexpected archiver error: %v", err)
	}
	scheduler, err := NewScheduler(SchedulerConfig{
		Cache:       cache,
		Archiver:    archiver,
		Interval:    5 * time.Minute,
		ArchiveHour: archiveHour,
		Clock:       clock.Now,
	})
	if err != nil {
		t.Fatalf("unexpected scheduler error: %v", err)
	}
	return scheduler, archiver
}

func TestTickRefreshesCache(t *testing.T) {
	computer := &countingComputer{}
	clock := &fakeClock{now: time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)}
	scheduler, archiver := newSchedulerFixture(t, computer, clock, 0)

	scheduler.Tick(context.Background())

	if computer.calls != 1 {
		t.Fatalf("expected one recompute, got %d", computer.calls)
	}
	snapshots, err := archiver.History(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected history error: %v", err)
	}
	if len(snapshots) != 0 {
		t.Fatalf("expected no archive outside the archive hour, got %d", len(snapshots))
	}
}

func TestTickArchivesOncePerDayAtArchiveHour(t *testing.T) {
	computer := &countingComputer{}
	clock := &fakeClock{now: time.Date(2026, 8, 28, 0, 5, 0, 0, time.UTC)}
	scheduler, archiver := newSchedulerFixture(t, computer, clock, 0)

	scheduler.Tick(context.Background())
	clock.Advance(5 * time.Minute)
	scheduler.Tick(context.Background())

	snapshots, err := archiver.History(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected history error: %v", err)
	}
	if len(snapshots) != 1 {
		t.Fatalf("expected a single archive within the hour, got %d", len(snapshots))
	}

	clock.Advance(24 * time.Hour)
	scheduler.Tick(context.Background())
	snapshots, err = archiver.History(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected history error: %v", err)
	}
	if len(snapshots) != 2 {
		t.Fatalf("expected a second archive the next day, got %d", len(snapshots))
	}
}

func TestTickSkipsArchiveWhenRefreshFails(t *testing.T) {
	computer := &countingComputer{err: errors.New("storage down")}
	clock := &fakeClock{now: time.Date(2026, 8, 28, 0, 5, 0, 0, time.UTC)}
	scheduler, archiver := newSchedulerFixture(t, computer, clock, 0)

	scheduler.Tick(context.Background())

	snapshots, err := archiver.History(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected history error: %v", err)
	}
	if len(snapshots) != 0 {
		t.Fatalf("expected no archive after a failed refresh, got %d", len(snapshots))
	}
}
