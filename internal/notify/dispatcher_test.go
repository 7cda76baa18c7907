package notify

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/2k1998/BWC-Portal-Backend/internal/db"
	"github.com/2k1998/BWC-Portal-Backend/internal/wire"
)

type fakeSender struct {
	live bool
	sent [][]byte
}

func (f *fakeSender) SendToUser(_ string, payload []byte) bool {
	f.sent = append(f.sent, payload)
	return f.live
}

func newTestDispatcher(t *testing.T, sender *fakeSender) (*Dispatcher, *GormStore) {
	t.Helper()
	gdb, err := db.Open("sqlite", filepath.Join(t.TempDir(), "notify.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	store, err := NewGormStore(gdb)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return NewDispatcher(nil, store, sender, nil), store
}

func TestNotifySurvivesOfflineRecipient(t *testing.T) {
	sender := &fakeSender{live: false}
	d, store := newTestDispatcher(t, sender)
	ctx := context.Background()

	n, err := d.Notify(ctx, "user_b", "assigned", "New assignment", "Task handed to you", "wf_1")
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if n.ID == "" {
		t.Fatalf("expected persisted id")
	}

	listed, err := store.List(ctx, "user_b", true, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 || listed[0].Kind != "assigned" {
		t.Fatalf("unexpected notifications: %+v", listed)
	}
}

func TestPushWrapsNotificationEnvelope(t *testing.T) {
	sender := &fakeSender{live: true}
	d, _ := newTestDispatcher(t, sender)

	n, err := d.Notify(context.Background(), "user_b", "accepted", "Response", "Accepted", "wf_1")
	if err != nil {
		t.Fatalf("notify: %v", err)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("expected one live push, got %d", len(sender.sent))
	}
	var envelope struct {
		Type         string       `json:"type"`
		Notification Notification `json:"notification"`
	}
	if err := json.Unmarshal(sender.sent[0], &envelope); err != nil {
		t.Fatalf("unmarshal push: %v", err)
	}
	if envelope.Type != wire.TypeNotification || envelope.Notification.ID != n.ID {
		t.Fatalf("unexpected envelope: %+v", envelope)
	}
}

func TestMarkReadIsRecipientOnlyAndIdempotent(t *testing.T) {
	sender := &fakeSender{}
	d, _ := newTestDispatcher(t, sender)
	ctx := context.Background()

	n, err := d.Notify(ctx, "user_b", "rejected", "Response", "Rejected", "wf_1")
	if err != nil {
		t.Fatalf("notify: %v", err)
	}

	if _, err := d.MarkRead(ctx, n.ID, "user_a"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-recipient, got %v", err)
	}

	first, err := d.MarkRead(ctx, n.ID, "user_b")
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if !first.IsRead || first.ReadAt == nil {
		t.Fatalf("expected read flags set: %+v", first)
	}

	second, err := d.MarkRead(ctx, n.ID, "user_b")
	if err != nil {
		t.Fatalf("second mark read: %v", err)
	}
	if !second.ReadAt.Equal(*first.ReadAt) {
		t.Fatalf("read_at moved on repeat mark: %v vs %v", second.ReadAt, first.ReadAt)
	}

	if _, err := d.MarkRead(ctx, "missing", "user_b"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListNewestFirstAndUnreadFilter(t *testing.T) {
	sender := &fakeSender{}
	d, _ := newTestDispatcher(t, sender)
	ctx := context.Background()

	first, err := d.Notify(ctx, "user_b", "assigned", "One", "b1", "wf_1")
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	second, err := d.Notify(ctx, "user_b", "accepted", "Two", "b2", "wf_2")
	if err != nil {
		t.Fatalf("notify: %v", err)
	}

	if _, err := d.MarkRead(ctx, first.ID, "user_b"); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	unread, err := d.List(ctx, "user_b", true, 0)
	if err != nil {
		t.Fatalf("list unread: %v", err)
	}
	if len(unread) != 1 || unread[0].ID != second.ID {
		t.Fatalf("unexpected unread list: %+v", unread)
	}

	all, err := d.List(ctx, "user_b", false, 0)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(all))
	}
}
