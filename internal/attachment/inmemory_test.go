package attachment

import (
	"context"
	"errors"
	"testing"
)

func TestInMemoryStoreResolve(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if err := s.Put(ctx, "img-1", "a sketch of the harbor"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := s.Resolve(ctx, "img-1")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != "a sketch of the harbor" {
		t.Fatalf("content = %q, want stored content", got)
	}
}

func TestInMemoryStoreResolveMissing(t *testing.T) {
	s := NewInMemoryStore()
	_, err := s.Resolve(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}
