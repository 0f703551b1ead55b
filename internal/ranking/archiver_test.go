package ranking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

type sequenceIDProvider struct {
	next int
	err  error
}

func (p *sequenceIDProvider) NewID() (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.next++
	return fmt.Sprintf("snapshot-%d", p.next), nil
}

func TestArchiveAppendsImmutableSnapshots(t *testing.T) {
	db := newMetricsDB(t)
	if err := db.AutoMigrate(&Snapshot{}); err != nil {
		t.Fatalf("failed to migrate snapshots: %v", err)
	}

	clock := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	archiver, err := NewArchiver(db, clock.Now, &sequenceIDProvider{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	topList := []EntityMetrics{
		{Entity: Entity{CultID: "alpha", Slug: "alpha"}, CompositeScore: 0.9, Rank: 1},
		{Entity: Entity{CultID: "beta", Slug: "beta"}, CompositeScore: 0.4, Rank: 2},
	}
	if err := archiver.Archive(context.Background(), topList); err != nil {
		t.Fatalf("unexpected archive error: %v", err)
	}

	clock.Advance(24 * time.Hour)
	if err := archiver.Archive(context.Background(), topList[:1]); err != nil {
		t.Fatalf("unexpected archive error: %v", err)
	}

	snapshots, err := archiver.History(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected history error: %v", err)
	}
	if len(snapshots) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snapshots))
	}
	if snapshots[0].CreatedAtSeconds <= snapshots[1].CreatedAtSeconds {
		t.Fatal("expected newest snapshot first")
	}

	var stored []EntityMetrics
	if err := json.Unmarshal([]byte(snapshots[1].TopListJSON), &stored); err != nil {
		t.Fatalf("snapshot payload not decodable: %v", err)
	}
	if len(stored) != 2 || stored[0].CultID != "alpha" || stored[0].Rank != 1 {
		t.Fatalf("unexpected snapshot payload: %+v", stored)
	}
}

func TestArchiveFailsWithoutIdentifier(t *testing.T) {
	db := newMetricsDB(t)
	if err := db.AutoMigrate(&Snapshot{}); err != nil {
		t.Fatalf("failed to migrate snapshots: %v", err)
	}

	archiver, err := NewArchiver(db, time.Now, &sequenceIDProvider{err: errors.New("exhausted")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := archiver.Archive(context.Background(), nil); err == nil {
		t.Fatal("expected archive to surface the id error")
	}

	var count int64
	if err := db.Model(&Snapshot{}).Count(&count).Error; err != nil {
		t.Fatalf("unexpected count error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no snapshot rows, got %d", count)
	}
}
