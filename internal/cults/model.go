package cults

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// MembershipRole enumerates the roles a member can hold within a cult.
type MembershipRole string

const (
	// MembershipRoleMember is the default role granted on join.
	MembershipRoleMember MembershipRole = "member"
	// MembershipRoleOfficer is an elevated member role.
	MembershipRoleOfficer MembershipRole = "officer"
	// MembershipRoleFounder marks the creating member; founders cannot leave.
	MembershipRoleFounder MembershipRole = "founder"
)

const (
	// CounterMembers tracks the live membership tally for a cult.
	CounterMembers = "members"
	// CounterDailyActive tracks members active during the current day.
	CounterDailyActive = "daily_active"
)

const (
	minNameLength        = 3
	maxNameLength        = 50
	minSlugLength        = 3
	maxSlugLength        = 30
	maxDescriptionLength = 500
	minSignalBodyLength  = 1
	maxSignalBodyLength  = 1000
)

var (
	// ErrInvalidCultName indicates the cult name is out of bounds.
	ErrInvalidCultName = errors.New("cults: invalid cult name")
	// ErrInvalidSlug indicates the slug is out of bounds or malformed.
	ErrInvalidSlug = errors.New("cults: invalid slug")
	// ErrInvalidDescription indicates the description exceeds storage bounds.
	ErrInvalidDescription = errors.New("cults: invalid description")
	// ErrInvalidSignalBody indicates the signal body is empty or too long.
	ErrInvalidSignalBody = errors.New("cults: invalid signal body")
	// ErrInvalidVoteValue indicates a vote value outside {+1, -1}.
	ErrInvalidVoteValue = errors.New("cults: invalid vote value")

	slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)
	tagPattern  = regexp.MustCompile(`<[^>]*>`)
)

// Sanitize trims surrounding whitespace and strips markup tags.
func Sanitize(input string) string {
	return tagPattern.ReplaceAllString(strings.TrimSpace(input), "")
}

// CultName represents a validated display name.
type CultName string

// NewCultName validates raw input and returns a CultName.
func NewCultName(rawInput string) (CultName, error) {
	cleaned := Sanitize(rawInput)
	if len(cleaned) < minNameLength || len(cleaned) > maxNameLength {
		return "", fmt.Errorf("%w: must be %d-%d characters", ErrInvalidCultName, minNameLength, maxNameLength)
	}
	return CultName(cleaned), nil
}

// String returns the underlying name.
func (n CultName) String() string {
	return string(n)
}

// Slug represents a validated URL slug.
type Slug string

// NewSlug validates raw input and returns a Slug.
func NewSlug(rawInput string) (Slug, error) {
	cleaned := strings.TrimSpace(rawInput)
	if len(cleaned) < minSlugLength || len(cleaned) > maxSlugLength {
		return "", fmt.Errorf("%w: must be %d-%d characters", ErrInvalidSlug, minSlugLength, maxSlugLength)
	}
	if !slugPattern.MatchString(cleaned) {
		return "", fmt.Errorf("%w: use lowercase letters, numbers, and hyphens only", ErrInvalidSlug)
	}
	return Slug(cleaned), nil
}

// String returns the underlying slug.
func (s Slug) String() string {
	return string(s)
}

// Description represents a validated optional description.
type Description string

// NewDescription validates raw input and returns a Description. Empty input is allowed.
func NewDescription(rawInput string) (Description, error) {
	cleaned := Sanitize(rawInput)
	if len(cleaned) > maxDescriptionLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidDescription, maxDescriptionLength)
	}
	return Description(cleaned), nil
}

// String returns the underlying description.
func (d Description) String() string {
	return string(d)
}

// SignalBody represents a validated signal body.
type SignalBody string

// NewSignalBody validates raw input and returns a SignalBody.
func NewSignalBody(rawInput string) (SignalBody, error) {
	cleaned := Sanitize(rawInput)
	if len(cleaned) < minSignalBodyLength || len(cleaned) > maxSignalBodyLength {
		return "", fmt.Errorf("%w: must be %d-%d characters", ErrInvalidSignalBody, minSignalBodyLength, maxSignalBodyLength)
	}
	return SignalBody(cleaned), nil
}

// String returns the underlying body.
func (b SignalBody) String() string {
	return string(b)
}

// VoteValue represents a validated vote.
type VoteValue int

// NewVoteValue validates the value and returns a VoteValue.
func NewVoteValue(value int) (VoteValue, error) {
	if value != 1 && value != -1 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidVoteValue, value)
	}
	return VoteValue(value), nil
}

// Int exposes the raw vote value.
func (v VoteValue) Int() int {
	return int(v)
}

// Cult models a community.
type Cult struct {
	CultID           string `gorm:"column:cult_id;primaryKey;size:190;not null" json:"id"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null" json:"created_at_s"`
	Slug             string `gorm:"column:slug;size:30;not null;uniqueIndex" json:"slug"`
	Name             string `gorm:"column:name;size:50;not null" json:"name"`
	Symbol           string `gorm:"column:symbol;size:16" json:"symbol,omitempty"`
	AvatarURL        string `gorm:"column:avatar_url;size:512" json:"avatar_url,omitempty"`
	BannerURL        string `gorm:"column:banner_url;size:512" json:"banner_url,omitempty"`
	Description      string `gorm:"column:description;size:500" json:"description,omitempty"`
	FounderUserID    string `gorm:"column:founder_user_id;size:190;not null" json:"founder_user_id"`
	IsFlagged        bool   `gorm:"column:is_flagged;not null;default:false" json:"is_flagged"`
}

// TableName provides the explicit table binding for GORM.
func (Cult) TableName() string {
	return "cults"
}

// Membership links a user to a cult.
type Membership struct {
	UserID           string         `gorm:"column:user_id;primaryKey;size:190;not null"`
	CultID           string         `gorm:"column:cult_id;primaryKey;size:190;not null;index:idx_memberships_cult_time,priority:1"`
	CreatedAtSeconds int64          `gorm:"column:created_at_s;not null;index:idx_memberships_cult_time,priority:2"`
	Role             MembershipRole `gorm:"column:role;size:16;not null;default:member"`
}

// TableName provides the explicit table binding for GORM.
func (Membership) TableName() string {
	return "memberships"
}

// Signal models a short message posted inside a cult.
type Signal struct {
	SignalID         string `gorm:"column:signal_id;primaryKey;size:190;not null" json:"id"`
	CultID           string `gorm:"column:cult_id;size:190;not null;index:idx_signals_cult_time,priority:1" json:"cult_id"`
	AuthorUserID     string `gorm:"column:author_user_id;size:190;not null" json:"author_user_id"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null;index:idx_signals_cult_time,priority:2" json:"created_at_s"`
	Title            string `gorm:"column:title;size:190" json:"title,omitempty"`
	Body             string `gorm:"column:body;size:1000;not null" json:"body"`
	URL              string `gorm:"column:url;size:512" json:"url,omitempty"`
}

// TableName provides the explicit table binding for GORM.
func (Signal) TableName() string {
	return "signals"
}

// SignalVote records one user's vote on one signal. Re-voting replaces the row.
type SignalVote struct {
	SignalID         string `gorm:"column:signal_id;primaryKey;size:190;not null"`
	UserID           string `gorm:"column:user_id;primaryKey;size:190;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
	Value            int    `gorm:"column:value;not null"`
}

// TableName provides the explicit table binding for GORM.
func (SignalVote) TableName() string {
	return "signal_votes"
}

// Counter holds a named per-cult tally maintained on mutation paths.
type Counter struct {
	CultID string `gorm:"column:cult_id;primaryKey;size:190;not null"`
	Name   string `gorm:"column:name;primaryKey;size:32;not null"`
	Value  int64  `gorm:"column:value;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (Counter) TableName() string {
	return "cult_counters"
}
