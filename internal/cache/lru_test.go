package cache

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func newTestCache(size int, ttl time.Duration) (*LRUCache[int], *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[int](size, ttl)
	c.now = clock.now
	return c, clock
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a missing")
	}
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	for _, k := range []string{"a", "c"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("%s evicted", k)
		}
	}
	if c.Size() != 2 {
		t.Errorf("Size() = %d", c.Size())
	}
}

func TestLRUExpiry(t *testing.T) {
	c, clock := newTestCache(4, time.Minute)
	c.Set("a", 1)
	clock.t = clock.t.Add(30 * time.Second)
	c.Set("b", 2)
	clock.t = clock.t.Add(30 * time.Second)

	if _, ok := c.Get("a"); ok {
		t.Error("a should have expired")
	}
	if v, ok := c.Get("b"); !ok || v != 2 {
		t.Errorf("Get(b) = %d, %v", v, ok)
	}
	clock.t = clock.t.Add(time.Hour)
	if n := c.CleanExpired(); n != 1 {
		t.Errorf("CleanExpired() = %d, want 1", n)
	}
	if c.Size() != 0 {
		t.Errorf("Size() = %d", c.Size())
	}
}

func TestLRUZeroTTLDisables(t *testing.T) {
	c, _ := newTestCache(4, 0)
	c.Set("a", 1)
	if _, ok := c.Get("a"); ok {
		t.Error("zero ttl should not store")
	}
}

func TestDeletePrefixByOwner(t *testing.T) {
	c, _ := newTestCache(8, time.Minute)
	c.Set(Key("alice", "finance", "month"), 1)
	c.Set(Key("alice", "debt"), 2)
	c.Set(Key("alicia", "debt"), 3)

	if n := c.DeletePrefix(OwnerPrefix("alice")); n != 2 {
		t.Errorf("DeletePrefix removed %d, want 2", n)
	}
	if _, ok := c.Get(Key("alicia", "debt")); !ok {
		t.Error("another owner's entry was dropped")
	}
}

func TestManagerSweep(t *testing.T) {
	c, clock := newTestCache(4, time.Second)
	c.Set("a", 1)
	m := NewManager()
	m.Register(c)
	clock.t = clock.t.Add(2 * time.Second)
	if n := m.Sweep(); n != 1 {
		t.Errorf("Sweep() = %d", n)
	}
	m.Stop()
}
