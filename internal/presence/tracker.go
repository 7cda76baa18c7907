// Package presence decides who counts as online. A user stays online for a
// grace window after their last heartbeat even when every connection is
// gone, which keeps tab refreshes from flapping presence for everyone.
package presence

import (
	"context"
	"io"
	"log"
	"sync"
	"time"

	"github.com/2k1998/BWC-Portal-Backend/internal/wire"
)

// Connections is the slice of the connection registry the tracker needs.
type Connections interface {
	Broadcast(payload []byte)
	HasSessions(userID string) bool
}

type Tracker struct {
	logger *log.Logger
	store  Store
	conns  Connections
	grace  time.Duration
	now    func() time.Time

	mu         sync.Mutex
	heartbeats map[string]time.Time
	online     map[string]bool
}

func NewTracker(logger *log.Logger, store Store, conns Connections, grace time.Duration) *Tracker {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if grace <= 0 {
		grace = 60 * time.Second
	}
	return &Tracker{
		logger:     logger,
		store:      store,
		conns:      conns,
		grace:      grace,
		now:        func() time.Time { return time.Now().UTC() },
		heartbeats: make(map[string]time.Time),
		online:     make(map[string]bool),
	}
}

// Touch records a heartbeat for userID. The first touch after a user was
// offline flips them online, persists the record and broadcasts the change.
// Heartbeat timestamps never move backwards.
func (t *Tracker) Touch(ctx context.Context, userID string) {
	now := t.now()

	t.mu.Lock()
	if prev, ok := t.heartbeats[userID]; !ok || now.After(prev) {
		t.heartbeats[userID] = now
	}
	wasOnline := t.online[userID]
	t.online[userID] = true
	t.mu.Unlock()

	rec := Record{UserID: userID, IsOnline: true, LastSeen: now}
	if err := t.store.Upsert(ctx, rec); err != nil {
		t.logger.Printf("presence touch user=%s persist error: %v", userID, err)
	}
	if !wasOnline {
		t.broadcastChange(rec)
	}
}

// Sweep marks users offline whose heartbeat is older than the grace window
// and who have no live connections. Safe to run redundantly.
func (t *Tracker) Sweep(ctx context.Context, now time.Time) {
	cutoff := now.Add(-t.grace)

	t.mu.Lock()
	stale := make([]string, 0)
	for userID, last := range t.heartbeats {
		if t.online[userID] && last.Before(cutoff) {
			stale = append(stale, userID)
		}
	}
	t.mu.Unlock()

	for _, userID := range stale {
		// A user with a live connection is never swept, even with a
		// lagging heartbeat.
		if t.conns.HasSessions(userID) {
			continue
		}

		t.mu.Lock()
		// Re-check under the lock; a touch may have raced the sweep.
		if !t.online[userID] || !t.heartbeats[userID].Before(cutoff) {
			t.mu.Unlock()
			continue
		}
		t.online[userID] = false
		t.mu.Unlock()

		rec := Record{UserID: userID, IsOnline: false, LastSeen: now}
		if err := t.store.Upsert(ctx, rec); err != nil {
			t.logger.Printf("presence sweep user=%s persist error: %v", userID, err)
		}
		t.broadcastChange(rec)
	}
}

// Run executes the sweep on a fixed interval until ctx is cancelled. This is
// the one piece of presence that must run regardless of connection churn.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep(ctx, t.now())
		}
	}
}

// Reconcile aligns persisted presence with the empty registry at startup.
func (t *Tracker) Reconcile(ctx context.Context) error {
	return t.store.MarkAllOffline(ctx, t.now())
}

// Snapshot returns the persisted view of currently-online users, used to
// seed a newly connected client.
func (t *Tracker) Snapshot(ctx context.Context) ([]wire.PresenceEntry, error) {
	records, err := t.store.Online(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]wire.PresenceEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, wire.PresenceEntry{UserID: rec.UserID, IsOnline: true, LastSeen: rec.LastSeen})
	}
	return entries, nil
}

// Connected implements registry.Liveness.
func (t *Tracker) Connected(userID string) {
	t.Touch(context.Background(), userID)
}

// Disconnected implements registry.Liveness. Losing the last connection does
// not flip the user offline; the next sweep decides after the grace window.
func (t *Tracker) Disconnected(userID string) {}

func (t *Tracker) broadcastChange(rec Record) {
	payload, err := wire.PresenceUpdate(wire.PresenceEntry{UserID: rec.UserID, IsOnline: rec.IsOnline, LastSeen: rec.LastSeen})
	if err != nil {
		t.logger.Printf("presence update marshal error: %v", err)
		return
	}
	t.conns.Broadcast(payload)
}
