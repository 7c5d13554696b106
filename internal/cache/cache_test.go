package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"toolplane/internal/kv"
)

func TestFingerprint_StableAcrossMapOrdering(t *testing.T) {
	args1 := map[string]interface{}{"query": "cats", "limit": 10}
	args2 := map[string]interface{}{"limit": 10, "query": "cats"}

	fp1, err := Fingerprint("search_web", "", args1)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	fp2, err := Fingerprint("search_web", "", args2)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if fp1 != fp2 {
		t.Errorf("fingerprints differ for equivalent argument maps: %s != %s", fp1, fp2)
	}
}

func TestFingerprint_DiffersByPrincipalScope(t *testing.T) {
	args := map[string]interface{}{"query": "cats"}
	fp1, _ := Fingerprint("search_web", "user-1", args)
	fp2, _ := Fingerprint("search_web", "user-2", args)
	if fp1 == fp2 {
		t.Error("expected principal-scoped fingerprints to differ")
	}
}

func TestCache_HitAvoidsRecompute(t *testing.T) {
	store := kv.NewInMemory()
	c := New(store, map[string]time.Duration{"search_web": time.Minute})
	ctx := context.Background()

	var calls int32
	fn := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return map[string]interface{}{"hits": 3}, nil
	}

	for i := 0; i < 3; i++ {
		if _, err := c.Get(ctx, "search_web", "", map[string]interface{}{"q": "cats"}, fn); err != nil {
			t.Fatalf("Get: %v", err)
		}
	}
	if calls != 1 {
		t.Errorf("compute ran %d times, want 1", calls)
	}
}

func TestCache_ConcurrentMissesCoalesce(t *testing.T) {
	store := kv.NewInMemory()
	c := New(store, nil)
	ctx := context.Background()

	var calls int32
	release := make(chan struct{})
	fn := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "result", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Get(ctx, "search_web", "", map[string]interface{}{"q": "dogs"}, fn)
		}()
	}
	close(release)
	wg.Wait()

	if calls != 1 {
		t.Errorf("compute ran %d times under concurrent miss, want 1", calls)
	}
}
