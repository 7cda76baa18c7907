// Package httpapi exposes the collaboration gateway over HTTP: a websocket
// endpoint for live traffic and a JSON API for assignments, notifications
// and presence.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/2k1998/BWC-Portal-Backend/internal/auth"
	"github.com/2k1998/BWC-Portal-Backend/internal/metrics"
	"github.com/2k1998/BWC-Portal-Backend/internal/notify"
	"github.com/2k1998/BWC-Portal-Backend/internal/presence"
	"github.com/2k1998/BWC-Portal-Backend/internal/ratelimit"
	"github.com/2k1998/BWC-Portal-Backend/internal/registry"
	"github.com/2k1998/BWC-Portal-Backend/internal/workflow"
)

type server struct {
	logger     *log.Logger
	verifier   auth.Verifier
	registry   *registry.Registry
	tracker    *presence.Tracker
	engine     *workflow.Engine
	dispatcher *notify.Dispatcher
	metrics    *metrics.Metrics
	limiter    *ratelimit.PerUser
}

func NewServer(
	logger *log.Logger,
	addr string,
	verifier auth.Verifier,
	reg *registry.Registry,
	tracker *presence.Tracker,
	engine *workflow.Engine,
	dispatcher *notify.Dispatcher,
	mx *metrics.Metrics,
	limiter *ratelimit.PerUser,
) *http.Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s := &server{
		logger:     logger,
		verifier:   verifier,
		registry:   reg,
		tracker:    tracker,
		engine:     engine,
		dispatcher: dispatcher,
		metrics:    mx,
		limiter:    limiter,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", mx.Handler())
	mux.HandleFunc("GET /ws", s.handleWS)

	mux.HandleFunc("POST /v1/assignments", s.withUser(s.handleCreateAssignment))
	mux.HandleFunc("GET /v1/assignments", s.withUser(s.handleListAssignments))
	mux.HandleFunc("GET /v1/assignments/{id}", s.withUser(s.handleGetAssignment))
	mux.HandleFunc("POST /v1/assignments/{id}/respond", s.withUser(s.handleRespond))
	mux.HandleFunc("GET /v1/assignments/{id}/conversation", s.withUser(s.handleGetConversation))
	mux.HandleFunc("POST /v1/assignments/{id}/conversation", s.withUser(s.handleConversationAction))
	mux.HandleFunc("POST /v1/assignments/{id}/messages", s.withUser(s.handlePostMessage))

	mux.HandleFunc("GET /v1/notifications", s.withUser(s.handleListNotifications))
	mux.HandleFunc("POST /v1/notifications/{id}/read", s.withUser(s.handleMarkNotificationRead))
	mux.HandleFunc("GET /v1/presence", s.withUser(s.handlePresence))
	mux.HandleFunc("GET /v1/summary", s.withUser(s.handleSummary))

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// withUser authenticates the bearer token and passes the resolved user id
// to the wrapped handler.
func (s *server) withUser(next func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get("Authorization"))
		token, ok := strings.CutPrefix(raw, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		userID, err := s.verifier.Verify(strings.TrimSpace(token))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}
		next(w, r, userID)
	}
}

type createAssignmentBody struct {
	Kind          string `json:"kind"`
	SubjectID     string `json:"subject_id"`
	Title         string `json:"title"`
	CounterpartID string `json:"counterpart_id"`
	Note          string `json:"note"`
}

func (s *server) handleCreateAssignment(w http.ResponseWriter, r *http.Request, userID string) {
	var body createAssignmentBody
	if !decodeBody(w, r, &body) {
		return
	}

	kind := workflow.RequestKind(body.Kind)
	switch kind {
	case "":
		kind = workflow.KindAssignment
	case workflow.KindAssignment, workflow.KindApproval:
	default:
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("unknown kind %q", body.Kind))
		return
	}

	req, err := s.engine.Assign(r.Context(), kind, body.SubjectID, body.Title, userID, body.CounterpartID, body.Note)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (s *server) handleListAssignments(w http.ResponseWriter, r *http.Request, userID string) {
	q := r.URL.Query()
	asInitiator := q.Get("role") != "counterpart"
	state := workflow.RequestState(strings.TrimSpace(q.Get("state")))

	reqs, err := s.engine.List(r.Context(), userID, asInitiator, state)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assignments": reqs})
}

func (s *server) handleGetAssignment(w http.ResponseWriter, r *http.Request, userID string) {
	req, err := s.engine.Get(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type respondBody struct {
	Action string `json:"action"`
	Note   string `json:"note"`
}

func (s *server) handleRespond(w http.ResponseWriter, r *http.Request, userID string) {
	var body respondBody
	if !decodeBody(w, r, &body) {
		return
	}
	action, ok := workflow.ParseAction(body.Action)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("unknown action %q", body.Action))
		return
	}

	req, err := s.engine.Respond(r.Context(), r.PathValue("id"), userID, action, body.Note)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *server) handleGetConversation(w http.ResponseWriter, r *http.Request, userID string) {
	conv, err := s.engine.Conversation(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

type conversationActionBody struct {
	Action string `json:"action"`
	Note   string `json:"note"`
}

func (s *server) handleConversationAction(w http.ResponseWriter, r *http.Request, userID string) {
	var body conversationActionBody
	if !decodeBody(w, r, &body) {
		return
	}
	action, ok := workflow.ParseConversationAction(body.Action)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("unknown action %q", body.Action))
		return
	}

	conv, err := s.engine.CompleteConversation(r.Context(), r.PathValue("id"), userID, action, body.Note)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

type postMessageBody struct {
	Content string `json:"content"`
}

func (s *server) handlePostMessage(w http.ResponseWriter, r *http.Request, userID string) {
	var body postMessageBody
	if !decodeBody(w, r, &body) {
		return
	}

	msg, err := s.engine.PostMessage(r.Context(), r.PathValue("id"), userID, body.Content)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *server) handleListNotifications(w http.ResponseWriter, r *http.Request, userID string) {
	q := r.URL.Query()
	unreadOnly := q.Get("unread") == "true"
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, "bad_request", "limit must be a non-negative integer")
			return
		}
		limit = v
	}

	list, err := s.dispatcher.List(r.Context(), userID, unreadOnly, limit)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": list})
}

func (s *server) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request, userID string) {
	n, err := s.dispatcher.MarkRead(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *server) handlePresence(w http.ResponseWriter, r *http.Request, userID string) {
	online, err := s.tracker.Snapshot(r.Context())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"online": online})
}

func (s *server) handleSummary(w http.ResponseWriter, r *http.Request, userID string) {
	sum, err := s.engine.Summary(r.Context(), userID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// writeEngineError maps domain sentinels onto HTTP statuses. Invalid-state
// and duplicate conflicts share 409 but keep distinct codes so clients can
// tell them apart.
func (s *server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, workflow.ErrNotFound), errors.Is(err, notify.ErrNotFound), errors.Is(err, presence.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, workflow.ErrForbidden), errors.Is(err, notify.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, workflow.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, workflow.ErrInvalidState):
		writeError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, workflow.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", "an open request already exists for this subject and counterpart")
	default:
		s.logger.Printf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("invalid json: %v", err))
		return false
	}
	if dec.More() {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json: trailing content")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}

func isWebSocketOriginAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil || strings.TrimSpace(parsed.Host) == "" {
		return false
	}
	return strings.EqualFold(parsed.Host, r.Host)
}
