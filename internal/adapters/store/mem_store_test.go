package store

import (
	"context"
	"errors"
	"testing"

	"github.com/proctorline/relay/internal/ports"
)

func TestMemStoreRoundTrip(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	if err := s.Set(ctx, "a", []byte("one")); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := s.Get(ctx, "a")
	if err != nil || string(got) != "one" {
		t.Fatalf("get: %q %v", got, err)
	}

	// Mutating the returned slice must not affect the stored copy.
	got[0] = 'X'
	again, _ := s.Get(ctx, "a")
	if string(again) != "one" {
		t.Fatalf("stored value mutated: %q", again)
	}

	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "a"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
