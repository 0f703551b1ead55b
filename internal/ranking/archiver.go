package ranking

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Snapshot is an immutable, append-only copy of one day's top-K list.
type Snapshot struct {
	SnapshotID       string `gorm:"column:snapshot_id;primaryKey;size:190;not null" json:"id"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null;index" json:"created_at_s"`
	TopListJSON      string `gorm:"column:top_list_json;type:text;not null" json:"top_list_json"`
}

// TableName provides the explicit table binding for GORM.
func (Snapshot) TableName() string {
	return "ranking_snapshots"
}

// IDProvider issues unique snapshot identifiers.
type IDProvider interface {
	NewID() (string, error)
}

// Archiver persists daily top-K snapshots.
type Archiver struct {
	db    *gorm.DB
	clock func() time.Time
	ids   IDProvider
}

// NewArchiver constructs a snapshot archiver.
func NewArchiver(db *gorm.DB, clock func() time.Time, ids IDProvider) (*Archiver, error) {
	if db == nil {
		return nil, fmt.Errorf("ranking: database handle required")
	}
	if ids == nil {
		return nil, fmt.Errorf("ranking: id provider required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &Archiver{db: db, clock: clock, ids: ids}, nil
}

// Archive appends a timestamped copy of the top-K list. Rows are never
// updated; each archiving cycle is independent of the last.
func (a *Archiver) Archive(ctx context.Context, topList []EntityMetrics) error {
	snapshotID, err := a.ids.NewID()
	if err != nil {
		return err
	}
	serialized, err := json.Marshal(topList)
	if err != nil {
		return err
	}

	snapshot := Snapshot{
		SnapshotID:       snapshotID,
		CreatedAtSeconds: a.clock().UTC().Unix(),
		TopListJSON:      string(serialized),
	}
	return a.db.WithContext(ctx).Create(&snapshot).Error
}

// History returns stored snapshots, newest first.
func (a *Archiver) History(ctx context.Context, limit int) ([]Snapshot, error) {
	if limit <= 0 || limit > 100 {
		limit = 30
	}
	var snapshots []Snapshot
	err := a.db.WithContext(ctx).
		Order("created_at_s DESC").
		Limit(limit).
		Find(&snapshots).Error
	if err != nil {
		return nil, err
	}
	return snapshots, nil
}
