package types

import (
	"testing"
	"time"
)

func TestNewLinkValidatesType(t *testing.T) {
	_, err := NewLink("t1", "a", "b", "work", "research", "vibes", 1.0, "", time.Now())
	if err == nil {
		t.Error("expected error for unknown link type")
	}

	for _, lt := range ValidLinkTypes {
		if _, err := NewLink("t1", "a", "b", "work", "research", lt, 1.0, "", time.Now()); err != nil {
			t.Errorf("valid link type %q rejected: %v", lt, err)
		}
	}
}

func TestNewLinkDefaults(t *testing.T) {
	l, err := NewLink("t1", "a", "b", "work", "research", "", 0, "", time.Now())
	if err != nil {
		t.Fatalf("NewLink failed: %v", err)
	}
	if l.LinkType != LinkResonance {
		t.Errorf("default link type = %q, want %q", l.LinkType, LinkResonance)
	}
	if l.Weight != 1.0 {
		t.Errorf("default weight = %f, want 1.0", l.Weight)
	}
}

func TestNewLinkRequiresEndpoints(t *testing.T) {
	if _, err := NewLink("t1", "", "b", "work", "research", LinkCausal, 1, "", time.Now()); err == nil {
		t.Error("expected error for missing source blob")
	}
	if _, err := NewLink("t1", "a", "b", "", "research", LinkCausal, 1, "", time.Now()); err == nil {
		t.Error("expected error for missing source branch")
	}
}
