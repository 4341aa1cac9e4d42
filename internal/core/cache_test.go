package core

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPreviewCache_TakeIsSingleWinner(t *testing.T) {
	c := NewPreviewCache()
	c.Put(&Session{ID: "s1"})

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := c.Take("s1"); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Errorf("Take winners = %d, want 1", got)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestPreviewCache_GetDoesNotRemove(t *testing.T) {
	c := NewPreviewCache()
	c.Put(&Session{ID: "s1"})

	if _, ok := c.Get("s1"); !ok {
		t.Fatal("Get() missed a staged session")
	}
	if _, ok := c.Get("s1"); !ok {
		t.Error("Get() removed the session")
	}
	if _, ok := c.Get("nope"); ok {
		t.Error("Get() found an unknown id")
	}
}

func TestPreviewCache_TakeExpired(t *testing.T) {
	now := time.Now()
	c := NewPreviewCache()
	c.Put(&Session{ID: "old", CreatedAt: now.Add(-time.Hour)})
	c.Put(&Session{ID: "new", CreatedAt: now})

	expired := c.TakeExpired(now.Add(-time.Minute))
	if len(expired) != 1 || expired[0].ID != "old" {
		t.Fatalf("TakeExpired() = %v, want [old]", expired)
	}
	if ids := c.IDs(); len(ids) != 1 || ids[0] != "new" {
		t.Errorf("IDs() = %v, want [new]", ids)
	}
}
