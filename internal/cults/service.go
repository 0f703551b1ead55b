package cults

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase    = errors.New("database handle is required")
	errMissingIDProvider  = errors.New("id provider is required")
	errMissingBroadcaster = errors.New("room broadcaster is required")
	noOpLogger            = zap.NewNop()

	// ErrCultNotFound indicates the referenced cult does not exist.
	ErrCultNotFound = errors.New("cults: cult not found")
	// ErrSlugTaken indicates the requested slug is already in use.
	ErrSlugTaken = errors.New("cults: slug already taken")
	// ErrAlreadyMember indicates the user already belongs to the cult.
	ErrAlreadyMember = errors.New("cults: already a member")
	// ErrNotMember indicates the user does not belong to the cult.
	ErrNotMember = errors.New("cults: not a member")
	// ErrFounderCannotLeave indicates a founder attempted to leave their own cult.
	ErrFounderCannotLeave = errors.New("cults: founders cannot leave their cult")
	// ErrSignalNotFound indicates the referenced signal does not exist.
	ErrSignalNotFound = errors.New("cults: signal not found")
	// ErrUnknownModerationAction indicates an unsupported moderation action.
	ErrUnknownModerationAction = errors.New("cults: unknown moderation action")
)

// ServiceError wraps a failure with a dotted operation code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the dotted operation code.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew  = "cults.service.new"
	opCreateCult  = "cults.create"
	opListCults   = "cults.list"
	opGetBySlug   = "cults.get_by_slug"
	opJoin        = "cults.join"
	opLeave       = "cults.leave"
	opPostSignal  = "cults.post_signal"
	opListSignals = "cults.list_signals"
	opVote        = "cults.vote"
	opModerate    = "cults.moderate"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// RoomKey derives the room addressing key for a cult.
func RoomKey(cultID string) string {
	return "cult:" + cultID
}

// IDProvider issues unique record identifiers.
type IDProvider interface {
	NewID() (string, error)
}

// RoomBroadcaster fans a server event out to every session of a cult's room.
type RoomBroadcaster interface {
	BroadcastEvent(roomKey string, event map[string]any)
}

// RankingInvalidator forces a fresh leaderboard computation after moderation.
type RankingInvalidator interface {
	ForceRecompute(ctx context.Context) error
}

// ServiceConfig captures the dependencies of the cult service.
type ServiceConfig struct {
	Database    *gorm.DB
	Clock       func() time.Time
	IDProvider  IDProvider
	Broadcaster RoomBroadcaster
	Ranking     RankingInvalidator
	Logger      *zap.Logger
}

// Service owns every cult mutation: creation, membership, signals, votes,
// and moderation. Mutations that change what room clients should see emit a
// room event; moderation additionally invalidates the cached ranking.
type Service struct {
	db          *gorm.DB
	clock       func() time.Time
	ids         IDProvider
	broadcaster RoomBroadcaster
	ranking     RankingInvalidator
	logger      *zap.Logger
}

// NewService validates dependencies and constructs the cult service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	if cfg.Broadcaster == nil {
		return nil, newServiceError(opServiceNew, "missing_broadcaster", errMissingBroadcaster)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:          cfg.Database,
		clock:       clock,
		ids:         cfg.IDProvider,
		broadcaster: cfg.Broadcaster,
		ranking:     cfg.Ranking,
		logger:      logger,
	}, nil
}

// CreateCultRequest carries validated cult creation input.
type CreateCultRequest struct {
	Name        CultName
	Slug        Slug
	Symbol      string
	Description Description
}

// CreateCult registers a new cult with the caller as founder and seeds its counters.
func (s *Service) CreateCult(ctx context.Context, founderUserID string, request CreateCultRequest) (Cult, error) {
	cultID, err := s.ids.NewID()
	if err != nil {
		return Cult{}, newServiceError(opCreateCult, "id_generation_failed", err)
	}

	now := s.clock().UTC().Unix()
	cult := Cult{
		CultID:           cultID,
		CreatedAtSeconds: now,
		Slug:             request.Slug.String(),
		Name:             request.Name.String(),
		Symbol:           Sanitize(request.Symbol),
		Description:      request.Description.String(),
		FounderUserID:    founderUserID,
		IsFlagged:        false,
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Cult
		err := tx.Where("slug = ?", cult.Slug).Take(&existing).Error
		if err == nil {
			return ErrSlugTaken
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opCreateCult, "slug_lookup_failed", err)
		}

		if err := tx.Create(&cult).Error; err != nil {
			return newServiceError(opCreateCult, "cult_insert_failed", err)
		}
		membership := Membership{
			UserID:           founderUserID,
			CultID:           cultID,
			CreatedAtSeconds: now,
			Role:             MembershipRoleFounder,
		}
		if err := tx.Create(&membership).Error; err != nil {
			return newServiceError(opCreateCult, "membership_insert_failed", err)
		}
		for _, counter := range []Counter{
			{CultID: cultID, Name: CounterMembers, Value: 1},
			{CultID: cultID, Name: CounterDailyActive, Value: 1},
		} {
			if err := tx.Create(&counter).Error; err != nil {
				return newServiceError(opCreateCult, "counter_insert_failed", err)
			}
		}
		return nil
	})
	if txErr != nil {
		return Cult{}, txErr
	}

	s.logger.Info("cult created",
		zap.String("cult_id", cultID),
		zap.String("slug", cult.Slug))
	return cult, nil
}

// CultSummary is a cult row joined with its live membership tally.
type CultSummary struct {
	Cult
	MemberCount int64 `gorm:"column:member_count" json:"member_count"`
}

// ListCults returns the fifty largest unflagged cults.
func (s *Service) ListCults(ctx context.Context) ([]CultSummary, error) {
	var summaries []CultSummary
	err := s.db.WithContext(ctx).
		Model(&Cult{}).
		Select("cults.*, COUNT(memberships.user_id) AS member_count").
		Joins("LEFT JOIN memberships ON cults.cult_id = memberships.cult_id").
		Where("cults.is_flagged = ?", false).
		Group("cults.cult_id").
		Order("member_count DESC").
		Limit(50).
		Find(&summaries).Error
	if err != nil {
		return nil, newServiceError(opListCults, "query_failed", err)
	}
	return summaries, nil
}

// CultProfile is a cult row with its counter readings.
type CultProfile struct {
	Cult
	MemberCount        int64 `json:"member_count"`
	DailyActiveMembers int64 `json:"daily_active_members"`
}

// GetBySlug returns the cult addressed by slug with its counter readings.
func (s *Service) GetBySlug(ctx context.Context, slug string) (CultProfile, error) {
	var cult Cult
	err := s.db.WithContext(ctx).Where("slug = ?", slug).Take(&cult).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return CultProfile{}, ErrCultNotFound
	}
	if err != nil {
		return CultProfile{}, newServiceError(opGetBySlug, "query_failed", err)
	}

	profile := CultProfile{Cult: cult}
	profile.MemberCount = s.counterValue(ctx, cult.CultID, CounterMembers)
	profile.DailyActiveMembers = s.counterValue(ctx, cult.CultID, CounterDailyActive)
	return profile, nil
}

// Join adds the user to the cult, bumps the member counter, and announces the join.
func (s *Service) Join(ctx context.Context, userID, cultID string) error {
	now := s.clock().UTC().Unix()
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.requireCult(tx, cultID); err != nil {
			return err
		}

		var existing Membership
		err := tx.Where("user_id = ? AND cult_id = ?", userID, cultID).Take(&existing).Error
		if err == nil {
			return ErrAlreadyMember
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opJoin, "membership_lookup_failed", err)
		}

		membership := Membership{
			UserID:           userID,
			CultID:           cultID,
			CreatedAtSeconds: now,
			Role:             MembershipRoleMember,
		}
		if err := tx.Create(&membership).Error; err != nil {
			return newServiceError(opJoin, "membership_insert_failed", err)
		}
		return s.adjustCounter(tx, cultID, CounterMembers, 1)
	})
	if txErr != nil {
		return txErr
	}

	s.broadcaster.BroadcastEvent(RoomKey(cultID), map[string]any{
		"type":      "member_joined",
		"cultId":    cultID,
		"userId":    userID,
		"timestamp": s.clock().UnixMilli(),
	})
	return nil
}

// Leave removes the user's membership, decrements the member counter, and
// announces the departure. Founders cannot leave.
func (s *Service) Leave(ctx context.Context, userID, cultID string) error {
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var membership Membership
		err := tx.Where("user_id = ? AND cult_id = ?", userID, cultID).Take(&membership).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotMember
		}
		if err != nil {
			return newServiceError(opLeave, "membership_lookup_failed", err)
		}
		if membership.Role == MembershipRoleFounder {
			return ErrFounderCannotLeave
		}

		if err := tx.Where("user_id = ? AND cult_id = ?", userID, cultID).Delete(&Membership{}).Error; err != nil {
			return newServiceError(opLeave, "membership_delete_failed", err)
		}
		return s.adjustCounter(tx, cultID, CounterMembers, -1)
	})
	if txErr != nil {
		return txErr
	}

	s.broadcaster.BroadcastEvent(RoomKey(cultID), map[string]any{
		"type":      "member_left",
		"cultId":    cultID,
		"userId":    userID,
		"timestamp": s.clock().UnixMilli(),
	})
	return nil
}

// PostSignalRequest carries validated signal input.
type PostSignalRequest struct {
	Title string
	Body  SignalBody
	URL   string
}

// PostSignal stores a new signal authored by a member and announces it to the room.
func (s *Service) PostSignal(ctx context.Context, userID, cultID string, request PostSignalRequest) (Signal, error) {
	signalID, err := s.ids.NewID()
	if err != nil {
		return Signal{}, newServiceError(opPostSignal, "id_generation_failed", err)
	}

	signal := Signal{
		SignalID:         signalID,
		CultID:           cultID,
		AuthorUserID:     userID,
		CreatedAtSeconds: s.clock().UTC().Unix(),
		Title:            Sanitize(request.Title),
		Body:             request.Body.String(),
		URL:              Sanitize(request.URL),
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.requireMembership(tx, userID, cultID, opPostSignal); err != nil {
			return err
		}
		if err := tx.Create(&signal).Error; err != nil {
			return newServiceError(opPostSignal, "signal_insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return Signal{}, txErr
	}

	s.broadcaster.BroadcastEvent(RoomKey(cultID), map[string]any{
		"type":      "new_signal",
		"cultId":    cultID,
		"signalId":  signalID,
		"userId":    userID,
		"timestamp": s.clock().UnixMilli(),
	})
	return signal, nil
}

// SignalSummary is a signal row joined with author handle and vote tallies.
type SignalSummary struct {
	Signal
	AuthorHandle string `gorm:"column:author_handle" json:"author_handle,omitempty"`
	VoteCount    int64  `gorm:"column:vote_count" json:"vote_count"`
	Upvotes      int64  `gorm:"column:upvotes" json:"upvotes"`
}

// ListSignals returns a page of a cult's signals, newest first.
func (s *Service) ListSignals(ctx context.Context, cultID string, limit, offset int) ([]SignalSummary, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var summaries []SignalSummary
	err := s.db.WithContext(ctx).
		Model(&Signal{}).
		Select("signals.*, users.handle AS author_handle, " +
			"COUNT(signal_votes.signal_id) AS vote_count, " +
			"COALESCE(SUM(CASE WHEN signal_votes.value = 1 THEN 1 ELSE 0 END), 0) AS upvotes").
		Joins("LEFT JOIN users ON signals.author_user_id = users.user_id").
		Joins("LEFT JOIN signal_votes ON signals.signal_id = signal_votes.signal_id").
		Where("signals.cult_id = ?", cultID).
		Group("signals.signal_id").
		Order("signals.created_at_s DESC").
		Limit(limit).
		Offset(offset).
		Find(&summaries).Error
	if err != nil {
		return nil, newServiceError(opListSignals, "query_failed", err)
	}
	return summaries, nil
}

// Vote records or replaces the user's vote on a signal and announces it to the room.
func (s *Service) Vote(ctx context.Context, userID, signalID string, value VoteValue) error {
	var cultID string
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var signal Signal
		err := tx.Where("signal_id = ?", signalID).Take(&signal).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSignalNotFound
		}
		if err != nil {
			return newServiceError(opVote, "signal_lookup_failed", err)
		}
		cultID = signal.CultID

		if err := s.requireMembership(tx, userID, cultID, opVote); err != nil {
			return err
		}

		vote := SignalVote{
			SignalID:         signalID,
			UserID:           userID,
			CreatedAtSeconds: s.clock().UTC().Unix(),
			Value:            value.Int(),
		}
		if err := tx.Save(&vote).Error; err != nil {
			return newServiceError(opVote, "vote_save_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return txErr
	}

	s.broadcaster.BroadcastEvent(RoomKey(cultID), map[string]any{
		"type":      "signal_vote",
		"cultId":    cultID,
		"signalId":  signalID,
		"userId":    userID,
		"value":     value.Int(),
		"timestamp": s.clock().UnixMilli(),
	})
	return nil
}

// ModerationAction enumerates supported moderation verbs.
type ModerationAction string

const (
	// ModerationActionFlag suppresses a cult from listings and the leaderboard.
	ModerationActionFlag ModerationAction = "flag"
	// ModerationActionUnflag restores a suppressed cult.
	ModerationActionUnflag ModerationAction = "unflag"
)

// Moderate toggles a cult's suppression flag and forces a leaderboard recompute
// so the change is visible without waiting for the scheduled refresh.
func (s *Service) Moderate(ctx context.Context, cultID string, action ModerationAction) error {
	var flagged bool
	switch action {
	case ModerationActionFlag:
		flagged = true
	case ModerationActionUnflag:
		flagged = false
	default:
		return ErrUnknownModerationAction
	}

	result := s.db.WithContext(ctx).
		Model(&Cult{}).
		Where("cult_id = ?", cultID).
		Update("is_flagged", flagged)
	if result.Error != nil {
		return newServiceError(opModerate, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrCultNotFound
	}

	if s.ranking != nil {
		if err := s.ranking.ForceRecompute(ctx); err != nil {
			s.logger.Warn("post-moderation recompute failed",
				zap.String("cult_id", cultID),
				zap.Error(err))
		}
	}
	return nil
}

func (s *Service) requireCult(tx *gorm.DB, cultID string) error {
	var cult Cult
	err := tx.Where("cult_id = ?", cultID).Take(&cult).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrCultNotFound
	}
	if err != nil {
		return newServiceError(opJoin, "cult_lookup_failed", err)
	}
	return nil
}

func (s *Service) requireMembership(tx *gorm.DB, userID, cultID, operation string) error {
	var membership Membership
	err := tx.Where("user_id = ? AND cult_id = ?", userID, cultID).Take(&membership).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotMember
	}
	if err != nil {
		return newServiceError(operation, "membership_lookup_failed", err)
	}
	return nil
}

func (s *Service) adjustCounter(tx *gorm.DB, cultID, name string, delta int64) error {
	var counter Counter
	err := tx.Where("cult_id = ? AND name = ?", cultID, name).Take(&counter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		counter = Counter{CultID: cultID, Name: name}
	} else if err != nil {
		return newServiceError(opJoin, "counter_lookup_failed", err)
	}

	counter.Value += delta
	if counter.Value < 0 {
		counter.Value = 0
	}
	if err := tx.Save(&counter).Error; err != nil {
		return newServiceError(opJoin, "counter_save_failed", err)
	}
	return nil
}

func (s *Service) counterValue(ctx context.Context, cultID, name string) int64 {
	var counter Counter
	err := s.db.WithContext(ctx).Where("cult_id = ? AND name = ?", cultID, name).Take(&counter).Error
	if err != nil {
		return 0
	}
	return counter.Value
}
