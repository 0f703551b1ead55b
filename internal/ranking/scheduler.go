package ranking

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// SchedulerConfig captures the dependencies of the periodic refresh loop.
type SchedulerConfig struct {
	Cache       *Cache
	Archiver    *Archiver
	Interval    time.Duration
	ArchiveHour int
	Clock       func() time.Time
	Logger      *zap.Logger
}

// Scheduler refreshes the ranking cache on a fixed interval and, once per
// day when the local hour matches the archive hour, persists a snapshot of
// the fresh top-K.
type Scheduler struct {
	cache       *Cache
	archiver    *Archiver
	interval    time.Duration
	archiveHour int
	clock       func() time.Time
	logger      *zap.Logger

	lastArchiveDay string
}

// NewScheduler validates dependencies and constructs the scheduler.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Cache == nil {
		return nil, fmt.Errorf("ranking: cache required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("ranking: positive refresh interval required")
	}
	if cfg.ArchiveHour < 0 || cfg.ArchiveHour > 23 {
		return nil, fmt.Errorf("ranking: archive hour out of range")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cache:       cfg.Cache,
		archiver:    cfg.Archiver,
		interval:    cfg.Interval,
		archiveHour: cfg.ArchiveHour,
		clock:       clock,
		logger:      logger,
	}, nil
}

// Run drives the refresh loop until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick performs one scheduled refresh plus the daily archive check. Archive
// failures are logged and do not affect the refreshed cache.
func (s *Scheduler) Tick(ctx context.Context) {
	if err := s.cache.ForceRecompute(ctx); err != nil {
		s.logger.Error("scheduled ranking refresh failed", zap.Error(err))
		return
	}
	s.logger.Debug("ranking cache refreshed")

	if s.archiver == nil {
		return
	}
	now := s.clock()
	if now.Hour() != s.archiveHour {
		return
	}
	day := now.Format("2006-01-02")
	if day == s.lastArchiveDay {
		return
	}

	if err := s.archiver.Archive(ctx, s.cache.Peek()); err != nil {
		s.logger.Error("ranking snapshot archive failed", zap.Error(err))
		return
	}
	s.lastArchiveDay = day
	s.logger.Info("ranking snapshot archived", zap.String("day", day))
}
