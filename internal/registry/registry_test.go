package registry

import (
	"errors"
	"sync"
	"testing"
)

type fakeSession struct {
	id   string
	fail bool

	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func (f *fakeSession) ID() string { return f.id }

func (f *fakeSession) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("forced send failure")
	}
	f.sent = append(f.sent, payload)
	return nil
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSession) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type recordingLiveness struct {
	mu           sync.Mutex
	connected    []string
	disconnected []string
}

func (r *recordingLiveness) Connected(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = append(r.connected, userID)
}

func (r *recordingLiveness) Disconnected(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnected = append(r.disconnected, userID)
}

func TestRegisterIsIdempotentPerSessionID(t *testing.T) {
	r := New(nil, nil)
	s := &fakeSession{id: "s1"}

	r.Register("user_1", s)
	r.Register("user_1", s)

	if got := r.ConnectionCount("user_1"); got != 1 {
		t.Fatalf("expected 1 connection, got %d", got)
	}
}

func TestSendToUserReachesAllSessions(t *testing.T) {
	r := New(nil, nil)
	s1 := &fakeSession{id: "s1"}
	s2 := &fakeSession{id: "s2"}
	r.Register("user_1", s1)
	r.Register("user_1", s2)

	if !r.SendToUser("user_1", []byte("hello")) {
		t.Fatalf("expected delivery to succeed")
	}
	if s1.sentCount() != 1 || s2.sentCount() != 1 {
		t.Fatalf("expected both sessions to receive the payload")
	}
	if r.SendToUser("nobody", []byte("hello")) {
		t.Fatalf("expected delivery to unknown user to fail")
	}
}

func TestSendToUserDropsFailedSessions(t *testing.T) {
	r := New(nil, nil)
	good := &fakeSession{id: "good"}
	bad := &fakeSession{id: "bad", fail: true}
	r.Register("user_1", good)
	r.Register("user_1", bad)

	if !r.SendToUser("user_1", []byte("x")) {
		t.Fatalf("expected delivery via surviving session")
	}
	if got := r.ConnectionCount("user_1"); got != 1 {
		t.Fatalf("expected failed session dropped, have %d connections", got)
	}
	if !bad.closed {
		t.Fatalf("expected failed session to be closed")
	}

	// All sessions dead: delivery reports false and the user disappears.
	good.fail = true
	if r.SendToUser("user_1", []byte("y")) {
		t.Fatalf("expected delivery failure")
	}
	if r.HasSessions("user_1") {
		t.Fatalf("expected no live sessions left")
	}
}

func TestBroadcastReachesEveryUser(t *testing.T) {
	r := New(nil, nil)
	a := &fakeSession{id: "a"}
	b := &fakeSession{id: "b"}
	r.Register("user_a", a)
	r.Register("user_b", b)

	r.Broadcast([]byte("presence"))

	if a.sentCount() != 1 || b.sentCount() != 1 {
		t.Fatalf("expected broadcast to reach both users")
	}
}

func TestLivenessCallbacks(t *testing.T) {
	r := New(nil, nil)
	liveness := &recordingLiveness{}
	r.SetLiveness(liveness)
	s := &fakeSession{id: "s1"}

	r.Register("user_1", s)
	r.Unregister("user_1", s)
	// Second unregister of an absent session must not fire callbacks.
	r.Unregister("user_1", s)

	liveness.mu.Lock()
	defer liveness.mu.Unlock()
	if len(liveness.connected) != 1 || liveness.connected[0] != "user_1" {
		t.Fatalf("unexpected connected callbacks: %v", liveness.connected)
	}
	if len(liveness.disconnected) != 1 {
		t.Fatalf("unexpected disconnected callbacks: %v", liveness.disconnected)
	}
}
