// Package registry tracks the live duplex connections of every signed-in
// user and fans messages out to them.
package registry

import (
	"io"
	"log"
	"sync"

	"github.com/2k1998/BWC-Portal-Backend/internal/metrics"
)

// Session is one live client connection. Send must be safe for concurrent
// use; a failed Send marks the session dead and the registry drops it.
type Session interface {
	ID() string
	Send(payload []byte) error
	Close() error
}

// Liveness receives connection-lifecycle callbacks. Invoked synchronously
// from Register/Unregister, after the registry lock is released.
type Liveness interface {
	Connected(userID string)
	Disconnected(userID string)
}

type Registry struct {
	logger   *log.Logger
	liveness Liveness
	metrics  *metrics.Metrics

	mu       sync.Mutex
	sessions map[string]map[string]Session // userID -> sessionID -> session
	total    int
}

func New(logger *log.Logger, mx *metrics.Metrics) *Registry {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Registry{
		logger:   logger,
		metrics:  mx,
		sessions: make(map[string]map[string]Session),
	}
}

// SetLiveness wires the presence tracker in after construction; registry and
// tracker reference each other, so one side attaches late.
func (r *Registry) SetLiveness(l Liveness) {
	r.liveness = l
}

// Register adds a session to the user's connection set. Registering the same
// session id twice is a no-op.
func (r *Registry) Register(userID string, s Session) {
	r.mu.Lock()
	set, ok := r.sessions[userID]
	if !ok {
		set = make(map[string]Session)
		r.sessions[userID] = set
	}
	if _, exists := set[s.ID()]; !exists {
		set[s.ID()] = s
		r.total++
	}
	users, conns := len(r.sessions), r.total
	r.mu.Unlock()

	r.metrics.SetConnections(users, conns)
	if r.liveness != nil {
		r.liveness.Connected(userID)
	}
}

// Unregister removes a session; absent sessions are ignored.
func (r *Registry) Unregister(userID string, s Session) {
	r.mu.Lock()
	removed := r.removeLocked(userID, s.ID())
	users, conns := len(r.sessions), r.total
	r.mu.Unlock()

	if !removed {
		return
	}
	r.metrics.SetConnections(users, conns)
	if r.liveness != nil {
		r.liveness.Disconnected(userID)
	}
}

// SendToUser delivers payload to every live session of userID. Sessions whose
// send fails are closed and dropped. Returns true if at least one session
// received the payload. The transport write happens outside the registry
// lock so a slow socket cannot block other users.
func (r *Registry) SendToUser(userID string, payload []byte) bool {
	r.mu.Lock()
	targets := make([]Session, 0, len(r.sessions[userID]))
	for _, s := range r.sessions[userID] {
		targets = append(targets, s)
	}
	r.mu.Unlock()

	delivered := false
	var failed []Session
	for _, s := range targets {
		if err := s.Send(payload); err != nil {
			r.logger.Printf("drop session user=%s session=%s send error: %v", userID, s.ID(), err)
			failed = append(failed, s)
			continue
		}
		delivered = true
	}

	if len(failed) > 0 {
		r.mu.Lock()
		for _, s := range failed {
			r.removeLocked(userID, s.ID())
		}
		users, conns := len(r.sessions), r.total
		r.mu.Unlock()
		r.metrics.SetConnections(users, conns)
		for _, s := range failed {
			_ = s.Close()
		}
	}
	return delivered
}

// Broadcast sends payload to every currently registered user.
func (r *Registry) Broadcast(payload []byte) {
	r.mu.Lock()
	users := make([]string, 0, len(r.sessions))
	for userID := range r.sessions {
		users = append(users, userID)
	}
	r.mu.Unlock()

	for _, userID := range users {
		r.SendToUser(userID, payload)
	}
}

// HasSessions reports whether the user has at least one live connection.
func (r *Registry) HasSessions(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions[userID]) > 0
}

// Users returns the ids of all currently connected users.
func (r *Registry) Users() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := make([]string, 0, len(r.sessions))
	for userID := range r.sessions {
		users = append(users, userID)
	}
	return users
}

func (r *Registry) ConnectionCount(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions[userID])
}

func (r *Registry) removeLocked(userID, sessionID string) bool {
	set, ok := r.sessions[userID]
	if !ok {
		return false
	}
	if _, exists := set[sessionID]; !exists {
		return false
	}
	delete(set, sessionID)
	r.total--
	if len(set) == 0 {
		delete(r.sessions, userID)
	}
	return true
}
