package lock

import (
	"sync"
	"testing"
	"time"
)

func TestKeyed_SerializesSameKey(t *testing.T) {
	k := NewKeyed()

	var mu sync.Mutex
	var events []int

	k.Lock("acct-1")

	done := make(chan struct{})
	go func() {
		k.Lock("acct-1")
		mu.Lock()
		events = append(events, 2)
		mu.Unlock()
		k.Unlock("acct-1")
		close(done)
	}()

	// The goroutine must block until we release.
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	events = append(events, 1)
	mu.Unlock()
	k.Unlock("acct-1")

	<-done
	if events[0] != 1 || events[1] != 2 {
		t.Fatalf("expected holder to run first, got order %v", events)
	}
}

func TestKeyed_IndependentKeys(t *testing.T) {
	k := NewKeyed()
	k.Lock("acct-1")
	defer k.Unlock("acct-1")

	done := make(chan struct{})
	go func() {
		k.Lock("acct-2") // must not block on acct-1's lock
		k.Unlock("acct-2")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key should not block")
	}
}

func TestKeyed_ReuseAfterUnlock(t *testing.T) {
	k := NewKeyed()
	for i := 0; i < 3; i++ {
		k.Lock("acct-1")
		k.Unlock("acct-1")
	}
}
