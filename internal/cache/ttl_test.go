package cache

import (
	"testing"
	"time"
)

func TestTTLCacheExpiresOnRead(t *testing.T) {
	c := NewTTLCache[string](50 * time.Millisecond)

	c.Set("mint", "summary")
	if v, ok := c.Get("mint"); !ok || v != "summary" {
		t.Fatalf("expected hit, got %q %v", v, ok)
	}

	time.Sleep(80 * time.Millisecond)
	if _, ok := c.Get("mint"); ok {
		t.Fatal("entry should have expired")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry should be evicted, len=%d", c.Len())
	}
}

func TestTTLCacheHitDoesNotExtendExpiry(t *testing.T) {
	c := NewTTLCache[string](60 * time.Millisecond)
	c.Set("mint", "summary")

	time.Sleep(40 * time.Millisecond)
	if _, ok := c.Get("mint"); !ok {
		t.Fatal("entry should still be live")
	}
	time.Sleep(40 * time.Millisecond)
	if _, ok := c.Get("mint"); ok {
		t.Fatal("a read must not push the expiry forward")
	}
}

func TestTTLCacheLenCountsLiveEntries(t *testing.T) {
	c := NewTTLCache[int](time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 3)
	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}
	if v, _ := c.Get("a"); v != 3 {
		t.Fatalf("overwrite should win, got %d", v)
	}
}

func TestTTLCacheMiss(t *testing.T) {
	c := NewTTLCache[int](time.Second)
	if v, ok := c.Get("missing"); ok || v != 0 {
		t.Fatalf("expected zero miss, got %d %v", v, ok)
	}
}
