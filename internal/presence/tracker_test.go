package presence

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/2k1998/BWC-Portal-Backend/internal/db"
	"github.com/2k1998/BWC-Portal-Backend/internal/wire"
)

type fakeConns struct {
	mu         sync.Mutex
	broadcasts [][]byte
	sessions   map[string]bool
}

func newFakeConns() *fakeConns {
	return &fakeConns{sessions: make(map[string]bool)}
}

func (f *fakeConns) Broadcast(payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, payload)
}

func (f *fakeConns) HasSessions(userID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[userID]
}

func (f *fakeConns) setSessions(userID string, live bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[userID] = live
}

func (f *fakeConns) broadcastCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.broadcasts)
}

func (f *fakeConns) lastUpdate(t *testing.T) wire.PresenceEntry {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.broadcasts) == 0 {
		t.Fatalf("no broadcasts recorded")
	}
	var msg struct {
		Type string `json:"type"`
		wire.PresenceEntry
	}
	if err := json.Unmarshal(f.broadcasts[len(f.broadcasts)-1], &msg); err != nil {
		t.Fatalf("unmarshal broadcast: %v", err)
	}
	if msg.Type != wire.TypePresenceUpdate {
		t.Fatalf("unexpected broadcast type %q", msg.Type)
	}
	return msg.PresenceEntry
}

func newTestTracker(t *testing.T, conns Connections, grace time.Duration) (*Tracker, *GormStore) {
	t.Helper()
	gdb, err := db.Open("sqlite", filepath.Join(t.TempDir(), "presence.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	store, err := NewGormStore(gdb)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return NewTracker(nil, store, conns, grace), store
}

func TestTouchFlipsOnlineOnce(t *testing.T) {
	conns := newFakeConns()
	tracker, store := newTestTracker(t, conns, time.Minute)
	ctx := context.Background()

	tracker.Touch(ctx, "user_1")
	tracker.Touch(ctx, "user_1")

	if got := conns.broadcastCount(); got != 1 {
		t.Fatalf("expected 1 presence broadcast, got %d", got)
	}
	entry := conns.lastUpdate(t)
	if entry.UserID != "user_1" || !entry.IsOnline {
		t.Fatalf("unexpected presence entry: %+v", entry)
	}

	rec, err := store.Get(ctx, "user_1")
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if !rec.IsOnline {
		t.Fatalf("expected persisted online record")
	}
}

func TestHeartbeatsAreMonotonic(t *testing.T) {
	conns := newFakeConns()
	tracker, _ := newTestTracker(t, conns, time.Minute)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return base.Add(10 * time.Second) }
	tracker.Touch(context.Background(), "user_1")
	// Clock regression must not move the heartbeat backwards.
	tracker.now = func() time.Time { return base }
	tracker.Touch(context.Background(), "user_1")

	tracker.mu.Lock()
	hb := tracker.heartbeats["user_1"]
	tracker.mu.Unlock()
	if !hb.Equal(base.Add(10 * time.Second)) {
		t.Fatalf("heartbeat regressed to %v", hb)
	}
}

func TestSweepMarksStaleUsersOffline(t *testing.T) {
	conns := newFakeConns()
	tracker, store := newTestTracker(t, conns, time.Minute)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return base }
	tracker.Touch(ctx, "user_1")

	// Inside the grace window the user stays online.
	tracker.Sweep(ctx, base.Add(30*time.Second))
	if rec, _ := store.Get(ctx, "user_1"); !rec.IsOnline {
		t.Fatalf("user swept inside grace window")
	}

	tracker.Sweep(ctx, base.Add(2*time.Minute))
	rec, err := store.Get(ctx, "user_1")
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec.IsOnline {
		t.Fatalf("expected user offline after grace window")
	}
	entry := conns.lastUpdate(t)
	if entry.IsOnline {
		t.Fatalf("expected offline presence broadcast")
	}
}

func TestSweepNeverMarksConnectedUserOffline(t *testing.T) {
	conns := newFakeConns()
	tracker, store := newTestTracker(t, conns, time.Minute)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return base }
	tracker.Touch(ctx, "user_1")
	conns.setSessions("user_1", true)

	tracker.Sweep(ctx, base.Add(time.Hour))

	rec, err := store.Get(ctx, "user_1")
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if !rec.IsOnline {
		t.Fatalf("connected user was swept offline")
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	conns := newFakeConns()
	tracker, store := newTestTracker(t, conns, time.Minute)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return base }
	tracker.Touch(ctx, "user_1")
	before := conns.broadcastCount()

	tracker.Sweep(ctx, base.Add(2*time.Minute))
	tracker.Sweep(ctx, base.Add(2*time.Minute))

	if got := conns.broadcastCount(); got != before+1 {
		t.Fatalf("expected exactly one offline broadcast, got %d extra", got-before)
	}
	if rec, _ := store.Get(ctx, "user_1"); rec.IsOnline {
		t.Fatalf("expected user offline")
	}
}

func TestReconcileAndSnapshot(t *testing.T) {
	conns := newFakeConns()
	tracker, store := newTestTracker(t, conns, time.Minute)
	ctx := context.Background()

	tracker.Touch(ctx, "user_1")
	tracker.Touch(ctx, "user_2")

	snapshot, err := tracker.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snapshot) != 2 {
		t.Fatalf("expected 2 online users, got %d", len(snapshot))
	}

	if err := tracker.Reconcile(ctx); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	snapshot, err = tracker.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot after reconcile: %v", err)
	}
	if len(snapshot) != 0 {
		t.Fatalf("expected empty snapshot after reconcile, got %d", len(snapshot))
	}
	if _, err := store.Get(ctx, "user_1"); err != nil {
		t.Fatalf("record should survive reconcile: %v", err)
	}
}
