package users

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type fixedIDProvider struct {
	ids   []string
	index int
}

func (p *fixedIDProvider) NewID() (string, error) {
	if p.index >= len(p.ids) {
		return "", errors.New("exhausted ids")
	}
	id := p.ids[p.index]
	p.index++
	return id, nil
}

func newUserService(t *testing.T, ids []string) (*Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	if err := db.AutoMigrate(&User{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      func() time.Time { return time.Unix(1700000000, 0).UTC() },
		IDProvider: &fixedIDProvider{ids: ids},
	})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return service, db
}

func TestNewHandleValidation(t *testing.T) {
	for _, invalid := range []string{"", "ab", "With Space", "dash-ed", strings.Repeat("h", 33)} {
		if _, err := NewHandle(invalid); !errors.Is(err, ErrInvalidHandle) {
			t.Fatalf("expected %q rejected, got %v", invalid, err)
		}
	}
	handle, err := NewHandle("  High_Priest7  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handle.String() != "high_priest7" {
		t.Fatalf("expected lowercased handle, got %q", handle.String())
	}
}

func TestResolveCreatesAccountOnFirstLogin(t *testing.T) {
	service, db := newUserService(t, []string{"user-1"})
	handle, err := NewHandle("prophet")
	if err != nil {
		t.Fatalf("unexpected handle error: %v", err)
	}

	created, err := service.Resolve(context.Background(), handle)
	if err != nil {
		t.Fatalf("unexpected resolve error: %v", err)
	}
	if created.UserID != "user-1" || created.Role != RoleUser {
		t.Fatalf("unexpected account %+v", created)
	}
	if created.CreatedAtSeconds != 1700000000 {
		t.Fatalf("unexpected creation time %d", created.CreatedAtSeconds)
	}

	again, err := service.Resolve(context.Background(), handle)
	if err != nil {
		t.Fatalf("unexpected resolve error: %v", err)
	}
	if again.UserID != "user-1" {
		t.Fatalf("expected same account on repeat login, got %q", again.UserID)
	}

	var count int64
	if err := db.Model(&User{}).Count(&count).Error; err != nil {
		t.Fatalf("unexpected count error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single account row, got %d", count)
	}
}

func TestResolveSurfacesIDFailure(t *testing.T) {
	service, _ := newUserService(t, nil)
	handle, err := NewHandle("prophet")
	if err != nil {
		t.Fatalf("unexpected handle error: %v", err)
	}
	if _, err := service.Resolve(context.Background(), handle); err == nil {
		t.Fatal("expected id failure to surface")
	}
}

func TestIsAdminChecksRole(t *testing.T) {
	service, db := newUserService(t, []string{"user-1"})
	admin := User{UserID: "admin-1", Handle: "overseer", Role: RoleAdmin, CreatedAtSeconds: 1000}
	if err := db.Create(&admin).Error; err != nil {
		t.Fatalf("failed to seed admin: %v", err)
	}

	handle, _ := NewHandle("prophet")
	regular, err := service.Resolve(context.Background(), handle)
	if err != nil {
		t.Fatalf("unexpected resolve error: %v", err)
	}

	isAdmin, err := service.IsAdmin(context.Background(), "admin-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !isAdmin {
		t.Fatal("expected admin role recognized")
	}

	isAdmin, err = service.IsAdmin(context.Background(), regular.UserID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if isAdmin {
		t.Fatal("expected regular account denied")
	}

	isAdmin, err = service.IsAdmin(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if isAdmin {
		t.Fatal("expected unknown account denied")
	}
}
