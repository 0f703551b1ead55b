package cults

import (
	"errors"
	"strings"
	"testing"
)

func TestNewCultNameBounds(t *testing.T) {
	if _, err := NewCultName("ab"); !errors.Is(err, ErrInvalidCultName) {
		t.Fatalf("expected short name rejected, got %v", err)
	}
	if _, err := NewCultName(strings.Repeat("x", 51)); !errors.Is(err, ErrInvalidCultName) {
		t.Fatalf("expected long name rejected, got %v", err)
	}
	name, err := NewCultName("  The <b>Order</b>  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name.String() != "The Order" {
		t.Fatalf("expected sanitized name, got %q", name.String())
	}
}

func TestNewSlugRejectsMalformedInput(t *testing.T) {
	for _, invalid := range []string{"", "ab", "UPPER", "with space", "under_score", strings.Repeat("a", 31)} {
		if _, err := NewSlug(invalid); !errors.Is(err, ErrInvalidSlug) {
			t.Fatalf("expected %q rejected, got %v", invalid, err)
		}
	}
	slug, err := NewSlug("the-order-77")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if slug.String() != "the-order-77" {
		t.Fatalf("unexpected slug %q", slug.String())
	}
}

func TestNewDescriptionAllowsEmpty(t *testing.T) {
	description, err := NewDescription("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if description.String() != "" {
		t.Fatalf("expected empty description, got %q", description.String())
	}
	if _, err := NewDescription(strings.Repeat("d", 501)); !errors.Is(err, ErrInvalidDescription) {
		t.Fatalf("expected oversized description rejected, got %v", err)
	}
}

func TestNewSignalBodyBounds(t *testing.T) {
	if _, err := NewSignalBody("   "); !errors.Is(err, ErrInvalidSignalBody) {
		t.Fatalf("expected blank body rejected, got %v", err)
	}
	if _, err := NewSignalBody(strings.Repeat("s", 1001)); !errors.Is(err, ErrInvalidSignalBody) {
		t.Fatalf("expected oversized body rejected, got %v", err)
	}
	body, err := NewSignalBody("a prophecy")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body.String() != "a prophecy" {
		t.Fatalf("unexpected body %q", body.String())
	}
}

func TestNewVoteValueAllowsOnlyUnitVotes(t *testing.T) {
	for _, invalid := range []int{0, 2, -2, 100} {
		if _, err := NewVoteValue(invalid); !errors.Is(err, ErrInvalidVoteValue) {
			t.Fatalf("expected %d rejected, got %v", invalid, err)
		}
	}
	for _, valid := range []int{1, -1} {
		value, err := NewVoteValue(valid)
		if err != nil {
			t.Fatalf("unexpected error for %d: %v", valid, err)
		}
		if value.Int() != valid {
			t.Fatalf("expected %d, got %d", valid, value.Int())
		}
	}
}

func TestRoomKeyDerivation(t *testing.T) {
	if RoomKey("abc") != "cult:abc" {
		t.Fatalf("unexpected room key %q", RoomKey("abc"))
	}
}
