package kv

import (
	"context"
	"testing"
	"time"
)

func TestInMemory_SetGetDelete(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	if err := s.Set(ctx, "a", []byte("1"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := s.Get(ctx, "a")
	if err != nil || !ok || string(v) != "1" {
		t.Fatalf("Get = %q, %v, %v", v, ok, err)
	}

	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "a"); ok {
		t.Error("expected key to be gone after Delete")
	}
}

func TestInMemory_TTLExpiry(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	if err := s.Set(ctx, "a", []byte("1"), time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, ok, _ := s.Get(ctx, "a"); ok {
		t.Error("expected expired key to be absent")
	}
}

func TestInMemory_Scan(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	_ = s.Set(ctx, "rate:u1:minute", []byte("x"), 0)
	_ = s.Set(ctx, "rate:u1:hour", []byte("x"), 0)
	_ = s.Set(ctx, "cache:foo", []byte("x"), 0)

	keys, err := s.Scan(ctx, "rate:u1:")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("len(keys) = %d, want 2", len(keys))
	}
}

func TestInMemory_IncrWithExpiry(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		count, err := s.IncrWithExpiry(ctx, "k", time.Minute)
		if err != nil {
			t.Fatalf("IncrWithExpiry: %v", err)
		}
		if count != i {
			t.Errorf("count = %d, want %d", count, i)
		}
	}
}

func TestInMemory_IncrWithExpiryResetsAfterTTL(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	if _, err := s.IncrWithExpiry(ctx, "k", time.Millisecond); err != nil {
		t.Fatalf("IncrWithExpiry: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	count, err := s.IncrWithExpiry(ctx, "k", time.Minute)
	if err != nil {
		t.Fatalf("IncrWithExpiry: %v", err)
	}
	if count != 1 {
		t.Errorf("count after expiry = %d, want 1", count)
	}
}

func TestInMemory_Reap(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	_ = s.Set(ctx, "a", []byte("1"), time.Millisecond)
	_ = s.Set(ctx, "b", []byte("1"), time.Hour)
	time.Sleep(5 * time.Millisecond)

	if removed := s.Reap(); removed != 1 {
		t.Errorf("Reap removed %d, want 1", removed)
	}
}
