package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// IDProvider issues unique user identifiers.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies required for account resolution.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
}

// Service manages account records keyed by handle.
type Service struct {
	db    *gorm.DB
	clock func() time.Time
	ids   IDProvider
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	if cfg.IDProvider == nil {
		return nil, fmt.Errorf("users: id provider required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		db:    cfg.Database,
		clock: clock,
		ids:   cfg.IDProvider,
	}, nil
}

// Resolve returns the user owning the handle, creating the account on first login.
func (s *Service) Resolve(ctx context.Context, handle Handle) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("handle = ?", handle.String()).Take(&user).Error
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, err
	}

	userID, err := s.ids.NewID()
	if err != nil {
		return User{}, err
	}
	user = User{
		UserID:           userID,
		Handle:           handle.String(),
		Role:             RoleUser,
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return User{}, err
	}
	return user, nil
}

// Get loads a user by identifier.
func (s *Service) Get(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&user).Error
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// IsAdmin reports whether the identified user holds the admin role.
func (s *Service) IsAdmin(ctx context.Context, userID string) (bool, error) {
	user, err := s.Get(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return user.Role == RoleAdmin, nil
}
