package store

import (
	"context"
	"testing"
	"time"
)

func TestMemorySetGet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, ok := m.Get(ctx, "k")
	if !ok {
		t.Fatal("expected hit")
	}
	if string(got) != "v" {
		t.Errorf("got %q, want %q", got, "v")
	}

	if _, ok := m.Get(ctx, "missing"); ok {
		t.Error("expected miss for unknown key")
	}
}

func TestMemoryExpiry(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.Set(ctx, "k", []byte("v"), 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	if _, ok := m.Get(ctx, "k"); ok {
		t.Error("expected expired entry to miss")
	}
	// Expired entries linger until Cleanup.
	if m.Len() != 1 {
		t.Errorf("len = %d, want 1", m.Len())
	}

	m.Cleanup()
	if m.Len() != 0 {
		t.Errorf("len after cleanup = %d, want 0", m.Len())
	}
}

func TestMemoryOverwrite(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.Set(ctx, "k", []byte("old"), time.Minute)
	m.Set(ctx, "k", []byte("new"), time.Minute)

	got, _ := m.Get(ctx, "k")
	if string(got) != "new" {
		t.Errorf("got %q, want %q", got, "new")
	}
}

func TestMemoryInvalidate(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.Set(ctx, "k", []byte("v"), time.Minute)
	m.Invalidate("k")

	if _, ok := m.Get(ctx, "k"); ok {
		t.Error("expected miss after invalidate")
	}
}
