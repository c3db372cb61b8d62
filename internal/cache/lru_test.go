package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestLRUCache_Eviction(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok { // a becomes most recent
		t.Fatal("a should be cached")
	}
	c.Set("c", 3)
	if _, ok := c.Get("b"); ok {
		t.Fatal("b should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("a = %d, %v", v, ok)
	}
	if c.Size() != 2 {
		t.Fatalf("size = %d", c.Size())
	}
}

func TestLRUCache_Expiry(t *testing.T) {
	now := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[string](10, time.Minute)
	c.now = func() time.Time { return now }
	c.Set("k", "v")
	c.Set("j", "w")

	now = now.Add(30 * time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry expired early")
	}
	now = now.Add(time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Fatal("entry should have expired")
	}
	if n := c.CleanExpired(); n != 1 {
		t.Fatalf("CleanExpired = %d, want 1", n)
	}
	if c.Size() != 0 {
		t.Fatalf("size = %d", c.Size())
	}
}

func TestLRUCache_InvalidatePrefix(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)
	for _, k := range []string{"district:1:2024-25", "district:1:2023-24", "district:2:2024-25", "vendor:1"} {
		c.Set(k, 1)
	}
	if n := c.InvalidatePrefix("district:1:"); n != 2 {
		t.Fatalf("InvalidatePrefix = %d", n)
	}
	if _, ok := c.Get("district:2:2024-25"); !ok {
		t.Fatal("unrelated key dropped")
	}
	c.Purge()
	if c.Size() != 0 {
		t.Fatal("Purge left entries")
	}
}

func TestLRUCache_GetOrLoadCollapsesCalls(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)
	var calls atomic.Int32
	release := make(chan struct{})
	load := func() (int, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}

	const n = 10
	var wg sync.WaitGroup
	results := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrLoad("k", load)
			if err != nil {
				t.Errorf("GetOrLoad: %v", err)
			}
			results[i] = v
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got < 1 || got > n {
		t.Fatalf("load called %d times", got)
	}
	for _, v := range results {
		if v != 42 {
			t.Fatalf("results = %v", results)
		}
	}
	if _, err := c.GetOrLoad("k", func() (int, error) { t.Fatal("cached value reloaded"); return 0, nil }); err != nil {
		t.Fatal(err)
	}
}

func TestLRUCache_GetOrLoadDoesNotCacheErrors(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)
	boom := errors.New("boom")
	if _, err := c.GetOrLoad("k", func() (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if c.Size() != 0 {
		t.Fatal("error result was cached")
	}
	s := c.Stats()
	if s.Misses == 0 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestLRUCache_InvalidationDuringLoad(t *testing.T) {
	const key = "district:1:2024-25"
	tests := []struct {
		name       string
		invalidate func(c *LRUCache[string])
	}{
		{"prefix", func(c *LRUCache[string]) { c.InvalidatePrefix("district:1:") }},
		{"delete", func(c *LRUCache[string]) { c.Delete(key) }},
		{"purge", func(c *LRUCache[string]) { c.Purge() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewLRUCache[string](10, time.Minute)
			started := make(chan struct{})
			release := make(chan struct{})
			done := make(chan string)
			go func() {
				v, _ := c.GetOrLoad(key, func() (string, error) {
					close(started)
					<-release
					return "before", nil
				})
				done <- v
			}()
			<-started
			tt.invalidate(c)

			v, err := c.GetOrLoad(key, func() (string, error) { return "after", nil })
			if err != nil || v != "after" {
				t.Fatalf("load after invalidation = %q, %v", v, err)
			}
			close(release)
			if v := <-done; v != "before" {
				t.Fatalf("first caller got %q", v)
			}
			if v, ok := c.Get(key); !ok || v != "after" {
				t.Fatalf("cached = %q, %v; want the value loaded after invalidation", v, ok)
			}
		})
	}
}

func TestLRUCache_LoadOverlappingInvalidationIsNotCached(t *testing.T) {
	c := NewLRUCache[string](10, time.Minute)
	v, err := c.GetOrLoad("rep:7:2024-25", func() (string, error) {
		c.InvalidatePrefix("rep:7:")
		return "snapshot", nil
	})
	if err != nil || v != "snapshot" {
		t.Fatalf("GetOrLoad = %q, %v", v, err)
	}
	if _, ok := c.Get("rep:7:2024-25"); ok {
		t.Fatal("a result loaded across an invalidation was cached")
	}
}

func TestManager_StartStop(t *testing.T) {
	c := NewLRUCache[int](10, time.Millisecond)
	c.Set("k", 1)
	m := NewManager(nil)
	m.Register(c)
	m.StartCleanup(context.Background(), 2*time.Millisecond)
	m.StartCleanup(context.Background(), 2*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for c.Size() != 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	m.Stop()
	m.Stop()
	if c.Size() != 0 {
		t.Fatal("expired entry was not swept")
	}
}
