package state

import (
	"strconv"
	"sync"
	"testing"
	"time"
)

const stageStart Stage = "START"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestGetOrCreateReportsCreation(t *testing.T) {
	store := NewMemoryStore(stageStart)

	if _, ok := store.Get("u1"); ok {
		t.Fatal("session must not exist before first message")
	}
	s, created := store.GetOrCreate("u1")
	if !created {
		t.Fatal("expected first GetOrCreate to create the session")
	}
	if s.Stage != stageStart {
		t.Fatalf("stage = %s, want %s", s.Stage, stageStart)
	}
	if len(s.Context) != 0 {
		t.Fatalf("new session context must be empty, got %v", s.Context)
	}
	if _, created := store.GetOrCreate("u1"); created {
		t.Fatal("second GetOrCreate must not create")
	}
	if store.Len() != 1 {
		t.Fatalf("Len = %d, want 1", store.Len())
	}
}

func TestUpdateMergesContext(t *testing.T) {
	store := NewMemoryStore(stageStart)
	store.GetOrCreate("u1")

	store.Update("u1", "AWAITING_BUDGET", Patch{Set: map[string]string{"type": "Buy"}})
	s := store.Update("u1", "AWAITING_CITY", Patch{Set: map[string]string{"budget": "50L"}})

	if s.Stage != "AWAITING_CITY" {
		t.Fatalf("stage = %s", s.Stage)
	}
	if s.Context["type"] != "Buy" || s.Context["budget"] != "50L" {
		t.Fatalf("context not merged: %v", s.Context)
	}

	s = store.Update("u1", "AWAITING_CITY", Patch{Set: map[string]string{"budget": "60L"}})
	if s.Context["budget"] != "60L" || s.Context["type"] != "Buy" {
		t.Fatalf("overwrite must be key-wise: %v", s.Context)
	}
}

func TestUpdateUnsetAndReset(t *testing.T) {
	store := NewMemoryStore(stageStart)
	store.Update("u1", "SEARCHING", Patch{Set: map[string]string{"search_location": "Pune", "type": "Rent"}})

	s := store.Update("u1", stageStart, Patch{Unset: []string{"search_location"}})
	if _, ok := s.Value("search_location"); ok {
		t.Fatalf("search_location should be unset: %v", s.Context)
	}
	if v, _ := s.Value("type"); v != "Rent" {
		t.Fatalf("unrelated keys must survive Unset: %v", s.Context)
	}

	s = store.Update("u1", stageStart, Patch{Reset: true})
	if len(s.Context) != 0 {
		t.Fatalf("Reset must clear context: %v", s.Context)
	}
}

func TestSnapshotsAreIsolated(t *testing.T) {
	store := NewMemoryStore(stageStart)
	s, _ := store.GetOrCreate("u1")
	s.Context["leak"] = "x"

	again, _ := store.Get("u1")
	if _, ok := again.Context["leak"]; ok {
		t.Fatal("mutating a snapshot must not touch the store")
	}
}

func TestClearStartsFresh(t *testing.T) {
	store := NewMemoryStore(stageStart)
	store.Update("u1", "AWAITING_CITY", Patch{Set: map[string]string{"type": "Buy"}})
	store.Clear("u1")

	if _, ok := store.Get("u1"); ok {
		t.Fatal("session should be gone after Clear")
	}
	s, created := store.GetOrCreate("u1")
	if !created || s.Stage != stageStart || len(s.Context) != 0 {
		t.Fatalf("expected fresh session, got created=%v %+v", created, s)
	}
}

func TestLockSerializesSameUser(t *testing.T) {
	store := NewMemoryStore(stageStart)
	store.GetOrCreate("u1")

	const writers = 50
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func(i int) {
			defer wg.Done()
			unlock := store.Lock("u1")
			defer unlock()
			s, _ := store.GetOrCreate("u1")
			n, _ := strconv.Atoi(s.Context["count"])
			set := map[string]string{"count": strconv.Itoa(n + 1)}
			set["writer_"+strconv.Itoa(i)] = "done"
			store.Update("u1", s.Stage, Patch{Set: set})
		}(i)
	}
	wg.Wait()

	s, _ := store.Get("u1")
	if s.Context["count"] != strconv.Itoa(writers) {
		t.Fatalf("lost update: count = %s, want %d", s.Context["count"], writers)
	}
	if len(s.Context) != writers+1 {
		t.Fatalf("expected %d keys, got %d", writers+1, len(s.Context))
	}
}

func TestLockDoesNotBlockOtherUsers(t *testing.T) {
	store := NewMemoryStore(stageStart)
	unlock := store.Lock("u1")
	defer unlock()

	done := make(chan struct{})
	go func() {
		u := store.Lock("u2")
		u()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock for u2 blocked behind u1")
	}
}

func TestLockEntriesAreReleased(t *testing.T) {
	m := NewMemoryStore(stageStart).(*memoryStore)
	unlock := m.Lock("u1")
	if m.locks.held() != 1 {
		t.Fatalf("held = %d, want 1", m.locks.held())
	}
	unlock()
	unlock()
	if m.locks.held() != 0 {
		t.Fatalf("held = %d after unlock, want 0", m.locks.held())
	}
}

func TestSweepRemovesIdleSessions(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)}
	store := NewMemoryStore(stageStart, WithClock(clock.Now))

	store.GetOrCreate("idle")
	clock.Advance(20 * time.Minute)
	store.GetOrCreate("fresh")
	clock.Advance(15 * time.Minute)

	if n := store.Sweep(0); n != 0 {
		t.Fatalf("non-positive ttl must be a no-op, removed %d", n)
	}
	if n := store.Sweep(30 * time.Minute); n != 1 {
		t.Fatalf("removed %d, want 1", n)
	}
	if _, ok := store.Get("idle"); ok {
		t.Fatal("idle session should be swept")
	}
	if _, ok := store.Get("fresh"); !ok {
		t.Fatal("fresh session must survive")
	}
}

func TestSweepSkipsLockedUsers(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)}
	store := NewMemoryStore(stageStart, WithClock(clock.Now))
	store.GetOrCreate("busy")
	clock.Advance(time.Hour)

	unlock := store.Lock("busy")
	if n := store.Sweep(time.Minute); n != 0 {
		t.Fatalf("locked session swept (%d)", n)
	}
	unlock()
	if n := store.Sweep(time.Minute); n != 1 {
		t.Fatalf("removed %d after unlock, want 1", n)
	}
}
