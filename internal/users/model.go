package users

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Role enumerates the access levels a user can hold.
type Role string

const (
	// RoleUser is the default role for every new account.
	RoleUser Role = "user"
	// RoleAdmin grants access to moderation and recompute endpoints.
	RoleAdmin Role = "admin"
)

const (
	minHandleLength = 3
	maxHandleLength = 32
)

var (
	// ErrInvalidHandle indicates the handle is empty, too long, or contains forbidden characters.
	ErrInvalidHandle = errors.New("users: invalid handle")

	handlePattern = regexp.MustCompile(`^[a-z0-9_]+$`)
)

// Handle represents a validated login handle.
type Handle string

// NewHandle validates raw input and returns a Handle. Handles are
// case-insensitive and stored lowercased.
func NewHandle(rawInput string) (Handle, error) {
	trimmed := strings.ToLower(strings.TrimSpace(rawInput))
	if len(trimmed) < minHandleLength {
		return "", fmt.Errorf("%w: shorter than %d characters", ErrInvalidHandle, minHandleLength)
	}
	if len(trimmed) > maxHandleLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidHandle, maxHandleLength)
	}
	if !handlePattern.MatchString(trimmed) {
		return "", fmt.Errorf("%w: use lowercase letters, numbers, and underscores only", ErrInvalidHandle)
	}
	return Handle(trimmed), nil
}

// String returns the underlying handle value.
func (h Handle) String() string {
	return string(h)
}

// User models a registered account.
type User struct {
	UserID           string `gorm:"column:user_id;primaryKey;size:190;not null"`
	Handle           string `gorm:"column:handle;size:32;not null;uniqueIndex"`
	Role             Role   `gorm:"column:role;size:16;not null;default:user"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (User) TableName() string {
	return "users"
}
