package httpapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/2k1998/BWC-Portal-Backend/internal/ids"
	"github.com/2k1998/BWC-Portal-Backend/internal/wire"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsIdleTimeout  = 90 * time.Second
	wsMaxFrameSize = 4 << 10
)

// wsSession wraps one websocket connection. gorilla/websocket allows a
// single concurrent writer, so every write goes through the mutex.
type wsSession struct {
	id   string
	conn *websocket.Conn

	mu sync.Mutex
}

func (s *wsSession) ID() string { return s.id }

func (s *wsSession) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *wsSession) Close() error {
	return s.conn.Close()
}

func (s *server) handleWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	userID, err := s.verifier.Verify(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
		return
	}

	upgrader := websocket.Upgrader{CheckOrigin: isWebSocketOriginAllowed}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("ws upgrade user=%s failed: %v", userID, err)
		return
	}

	sess := &wsSession{id: ids.New(), conn: conn}
	s.registry.Register(userID, sess)
	defer func() {
		s.registry.Unregister(userID, sess)
		_ = conn.Close()
		if !s.registry.HasSessions(userID) {
			s.limiter.Forget(userID)
		}
	}()

	if err := s.sendSnapshot(r, sess); err != nil {
		s.logger.Printf("ws snapshot user=%s failed: %v", userID, err)
		return
	}

	conn.SetReadLimit(wsMaxFrameSize)
	for {
		if err := conn.SetReadDeadline(time.Now().Add(wsIdleTimeout)); err != nil {
			return
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Printf("ws user=%s closed: %v", userID, err)
			}
			return
		}

		var msg wire.ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case wire.TypePing:
			if !s.limiter.Allow(userID, time.Now()) {
				continue
			}
			s.tracker.Touch(r.Context(), userID)
			if payload, err := wire.Pong(); err == nil {
				_ = sess.Send(payload)
			}
		default:
			// Unknown client messages are ignored; the socket is
			// server-push except for heartbeats.
		}
	}
}

func (s *server) sendSnapshot(r *http.Request, sess *wsSession) error {
	online, err := s.tracker.Snapshot(r.Context())
	if err != nil {
		return err
	}
	payload, err := wire.PresenceSnapshot(online)
	if err != nil {
		return err
	}
	return sess.Send(payload)
}
