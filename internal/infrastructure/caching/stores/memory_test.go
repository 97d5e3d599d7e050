package stores

import (
	"testing"
	"time"
)

func TestMemoryStoreSetGet(t *testing.T) {
	ms := NewMemoryStore(0, nil)
	defer ms.Close()

	if err := ms.Set("t1", "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, found := ms.Get("t1", "k")
	if !found {
		t.Fatal("expected hit")
	}
	if string(got) != "v" {
		t.Errorf("got %q, want %q", got, "v")
	}

	if _, found := ms.Get("t2", "k"); found {
		t.Error("tenant partitioning violated: t2 sees t1 entry")
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	ms := NewMemoryStore(0, nil)
	defer ms.Close()

	ms.Set("t1", "short", []byte("v"), 10*time.Millisecond)
	ms.Set("t1", "forever", []byte("v"), 0)

	time.Sleep(30 * time.Millisecond)

	if _, found := ms.Get("t1", "short"); found {
		t.Error("expired entry still readable")
	}
	if _, found := ms.Get("t1", "forever"); !found {
		t.Error("zero-ttl entry expired")
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	ms := NewMemoryStore(0, nil)
	defer ms.Close()

	ms.Set("t1", "k", []byte("v"), time.Minute)
	if err := ms.Delete("t1", "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, found := ms.Get("t1", "k"); found {
		t.Error("deleted entry still readable")
	}
}

func TestMemoryStorePurgeTenant(t *testing.T) {
	ms := NewMemoryStore(0, nil)
	defer ms.Close()

	ms.Set("t1", "a", []byte("1"), time.Minute)
	ms.Set("t1", "b", []byte("2"), time.Minute)
	ms.Set("t2", "a", []byte("3"), time.Minute)

	if err := ms.PurgeTenant("t1"); err != nil {
		t.Fatalf("PurgeTenant: %v", err)
	}

	if _, found := ms.Get("t1", "a"); found {
		t.Error("t1/a survived purge")
	}
	if _, found := ms.Get("t1", "b"); found {
		t.Error("t1/b survived purge")
	}
	if _, found := ms.Get("t2", "a"); !found {
		t.Error("t2/a removed by t1 purge")
	}
}

func TestMemoryStoreSweep(t *testing.T) {
	ms := NewMemoryStore(0, nil)
	defer ms.Close()

	ms.Set("t1", "stale", []byte("v"), 5*time.Millisecond)
	ms.Set("t1", "fresh", []byte("v"), time.Minute)

	time.Sleep(20 * time.Millisecond)
	ms.sweep()

	ms.mu.RLock()
	_, staleHeld := ms.entries["t1/stale"]
	_, freshHeld := ms.entries["t1/fresh"]
	ms.mu.RUnlock()

	if staleHeld {
		t.Error("sweep left expired entry in map")
	}
	if !freshHeld {
		t.Error("sweep removed live entry")
	}
}
