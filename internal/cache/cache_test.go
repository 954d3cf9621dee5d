package cache

import (
	"context"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func testCacheConfig(typ string) domain.CacheConfig {
	return domain.CacheConfig{
		Type:         typ,
		LocalMaxSize: 100,
		LocalTTL:     time.Minute,
	}
}

func TestLRUCacheBasic(t *testing.T) {
	c := NewLRUCache(10)
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "k1", []byte("v1"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	val, err := c.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(val) != "v1" {
		t.Errorf("expected v1, got %s", val)
	}
}

func TestLRUCacheMiss(t *testing.T) {
	c := NewLRUCache(10)
	defer c.Close()

	val, err := c.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if val != nil {
		t.Errorf("expected nil for miss, got %s", val)
	}
}

func TestLRUCacheExpiry(t *testing.T) {
	c := NewLRUCache(10)
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "k1", []byte("v1"), 10*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	val, err := c.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if val != nil {
		t.Errorf("expected expired entry to return nil, got %s", val)
	}
}

func TestLRUCacheEviction(t *testing.T) {
	c := NewLRUCache(2)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "k1", []byte("v1"), time.Minute)
	c.Set(ctx, "k2", []byte("v2"), time.Minute)

	// Touch k1 so k2 becomes the eviction candidate.
	c.Get(ctx, "k1")

	c.Set(ctx, "k3", []byte("v3"), time.Minute)

	if val, _ := c.Get(ctx, "k2"); val != nil {
		t.Errorf("expected k2 evicted, got %s", val)
	}
	if val, _ := c.Get(ctx, "k1"); string(val) != "v1" {
		t.Errorf("expected k1 retained, got %s", val)
	}
	if val, _ := c.Get(ctx, "k3"); string(val) != "v3" {
		t.Errorf("expected k3 present, got %s", val)
	}
}

func TestLRUCacheDelete(t *testing.T) {
	c := NewLRUCache(10)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "k1", []byte("v1"), time.Minute)

	if err := c.Delete(ctx, "k1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	val, _ := c.Get(ctx, "k1")
	if val != nil {
		t.Errorf("expected nil after delete, got %s", val)
	}
}

func TestLRUCacheOverwrite(t *testing.T) {
	c := NewLRUCache(10)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "k1", []byte("v1"), time.Minute)
	c.Set(ctx, "k1", []byte("v2"), time.Minute)

	val, _ := c.Get(ctx, "k1")
	if string(val) != "v2" {
		t.Errorf("expected overwritten value v2, got %s", val)
	}

	size, _ := c.Stats()
	if size != 1 {
		t.Errorf("expected size 1 after overwrite, got %d", size)
	}
}

func TestCacheFactory(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		c, err := New(testCacheConfig("memory"))
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer c.Close()
		if _, ok := c.(*LRUCache); !ok {
			t.Errorf("expected *LRUCache, got %T", c)
		}
	})

	t.Run("unsupported", func(t *testing.T) {
		if _, err := New(testCacheConfig("memcached")); err == nil {
			t.Error("expected error for unsupported cache type")
		}
	})
}
