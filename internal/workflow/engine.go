package workflow

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/2k1998/BWC-Portal-Backend/internal/ids"
	"github.com/2k1998/BWC-Portal-Backend/internal/metrics"
	"github.com/2k1998/BWC-Portal-Backend/internal/notify"
	"github.com/2k1998/BWC-Portal-Backend/internal/wire"
)

// Notifier is the slice of the notification dispatcher the engine needs:
// live-push an already-persisted record, or send a raw wire payload.
type Notifier interface {
	Push(n notify.Notification)
	Send(recipientID string, payload []byte) bool
}

// AcceptHook runs after an accept commits. The engine is domain-agnostic;
// whatever "accepting" means for the subject (reassigning a task owner,
// unblocking a payment) is injected here.
type AcceptHook func(ctx context.Context, req Request) error

// AssignPolicy decides whether actorID may open a request for subjectID.
// Domain role checks (task owner, creator, elevated roles) live in the
// caller, not in the engine.
type AssignPolicy func(actorID, subjectID string) bool

type Engine struct {
	logger    *log.Logger
	store     Store
	notifier  Notifier
	metrics   *metrics.Metrics
	onAccept  AcceptHook
	canAssign AssignPolicy
	now       func() time.Time

	// reqLocks serializes transitions per request id so concurrent
	// responses cannot both commit.
	mu       sync.Mutex
	reqLocks map[string]*sync.Mutex
}

type EngineOption func(*Engine)

func WithAcceptHook(hook AcceptHook) EngineOption {
	return func(e *Engine) { e.onAccept = hook }
}

func WithAssignPolicy(policy AssignPolicy) EngineOption {
	return func(e *Engine) { e.canAssign = policy }
}

func NewEngine(logger *log.Logger, store Store, notifier Notifier, mx *metrics.Metrics, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	e := &Engine{
		logger:   logger,
		store:    store,
		notifier: notifier,
		metrics:  mx,
		now:      func() time.Time { return time.Now().UTC() },
		reqLocks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Assign opens a new request from initiator to counterpart. A second open
// request for the same (subject, counterpart) pair is a conflict.
func (e *Engine) Assign(ctx context.Context, kind RequestKind, subjectID, title, initiatorID, counterpartID, note string) (Request, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return Request{}, fmt.Errorf("%w: subject_id is required", ErrInvalidArgument)
	}
	if counterpartID == "" || initiatorID == "" {
		return Request{}, fmt.Errorf("%w: initiator_id and counterpart_id are required", ErrInvalidArgument)
	}
	if counterpartID == initiatorID {
		return Request{}, fmt.Errorf("%w: cannot open a request against yourself", ErrForbidden)
	}
	if e.canAssign != nil && !e.canAssign(initiatorID, subjectID) {
		return Request{}, fmt.Errorf("%w: not allowed to assign subject %s", ErrForbidden, subjectID)
	}

	open, err := e.store.HasOpenRequest(ctx, subjectID, counterpartID)
	if err != nil {
		return Request{}, err
	}
	if open {
		return Request{}, ErrConflict
	}

	now := e.now()
	req := Request{
		ID:            ids.New(),
		Kind:          kind,
		SubjectID:     subjectID,
		Title:         title,
		InitiatorID:   initiatorID,
		CounterpartID: counterpartID,
		State:         StatePending,
		Note:          note,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	n := &notify.Notification{
		RecipientID: counterpartID,
		Kind:        "assigned",
		Title:       requestTitle(req),
		Body:        fmt.Sprintf("%s needs your response: %s", initiatorID, title),
		CreatedAt:   now,
	}
	if err := e.store.CreateRequest(ctx, &req, n); err != nil {
		return Request{}, err
	}

	e.metrics.TransitionApplied(string(StatePending))
	e.notifier.Push(*n)
	if payload, err := wire.NewApprovalRequest(req); err == nil {
		e.notifier.Send(counterpartID, payload)
	}
	return req, nil
}

// Respond applies a disposition action to a request. Only the counterpart
// may act; the legal (state, action) pairs live in the transition table.
func (e *Engine) Respond(ctx context.Context, requestID, actorID string, action Action, note string) (Request, error) {
	unlock := e.lockRequest(requestID)
	defer unlock()

	req, err := e.store.GetRequest(ctx, requestID)
	if err != nil {
		return Request{}, err
	}
	if actorID != req.CounterpartID {
		return Request{}, fmt.Errorf("%w: only the counterpart may respond", ErrForbidden)
	}
	next, ok := transitions[req.State][action]
	if !ok {
		return Request{}, fmt.Errorf("%w: %s from %s", ErrInvalidState, action, req.State)
	}

	now := e.now()
	req.State = next
	req.UpdatedAt = now

	var firstMessage *Message
	switch action {
	case ActionAccept:
		req.RespondedAt = &now
	case ActionReject:
		req.RespondedAt = &now
		req.ResponseNote = note
	case ActionDiscuss:
		if note != "" {
			firstMessage = &Message{SenderID: actorID, Content: note, SentAt: now}
		}
	}

	// The notification names the resulting state, never the action, so
	// clients render the same word the request now carries.
	n := &notify.Notification{
		RecipientID: req.InitiatorID,
		WorkflowID:  req.ID,
		Kind:        string(next),
		Title:       requestTitle(req),
		Body:        responseBody(req, actorID, note),
		CreatedAt:   now,
	}
	if err := e.store.SaveResponse(ctx, req, firstMessage, n); err != nil {
		return Request{}, err
	}

	e.metrics.TransitionApplied(string(next))
	e.notifier.Push(*n)
	if payload, err := wire.ApprovalResponse(req, string(next)); err == nil {
		e.notifier.Send(req.InitiatorID, payload)
	}

	if action == ActionAccept && e.onAccept != nil {
		// The transition is already committed; a failing side effect is
		// reported but does not roll the disposition back.
		if err := e.onAccept(ctx, req); err != nil {
			e.logger.Printf("accept hook request=%s error: %v", req.ID, err)
		}
	}
	return req, nil
}

// PostMessage appends a message to the request's conversation, creating the
// conversation if this is the first message. Posting into a requested
// discussion activates it.
func (e *Engine) PostMessage(ctx context.Context, requestID, actorID, content string) (Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Message{}, fmt.Errorf("%w: message content is required", ErrInvalidArgument)
	}

	unlock := e.lockRequest(requestID)
	defer unlock()

	req, err := e.store.GetRequest(ctx, requestID)
	if err != nil {
		return Message{}, err
	}
	if !req.Party(actorID) {
		return Message{}, fmt.Errorf("%w: not a participant", ErrForbidden)
	}

	now := e.now()
	newState := req.State
	if req.State == StateDiscussionRequested {
		newState = StateDiscussionActive
	}

	msg := Message{SenderID: actorID, Content: content, SentAt: now}
	recipient := req.Counterpart(actorID)
	n := &notify.Notification{
		RecipientID: recipient,
		WorkflowID:  req.ID,
		Kind:        "message",
		Title:       requestTitle(req),
		Body:        fmt.Sprintf("New message from %s", actorID),
		CreatedAt:   now,
	}
	if err := e.store.AppendMessage(ctx, req, &msg, newState, n); err != nil {
		return Message{}, err
	}

	if newState != req.State {
		e.metrics.TransitionApplied(string(newState))
	}
	e.notifier.Push(*n)
	if payload, err := wire.NewMessage(msg.ConversationID, msg); err == nil {
		e.notifier.Send(recipient, payload)
	}
	return msg, nil
}

// Conversation returns the request's thread and stamps the other party's
// unread messages as read by the caller.
func (e *Engine) Conversation(ctx context.Context, requestID, actorID string) (Conversation, error) {
	req, err := e.store.GetRequest(ctx, requestID)
	if err != nil {
		return Conversation{}, err
	}
	if !req.Party(actorID) {
		return Conversation{}, fmt.Errorf("%w: not a participant", ErrForbidden)
	}

	conv, err := e.store.ConversationByRequest(ctx, requestID)
	if err != nil {
		return Conversation{}, err
	}

	now := e.now()
	if err := e.store.MarkMessagesRead(ctx, conv.ID, actorID, now); err != nil {
		return Conversation{}, err
	}
	for i := range conv.Messages {
		m := &conv.Messages[i]
		if m.SenderID != actorID && m.ReadAt == nil {
			m.ReadAt = &now
		}
	}
	return conv, nil
}

// CompleteConversation finishes or reopens a discussion. Either party may
// call; the owning request follows the conversation's lifecycle.
func (e *Engine) CompleteConversation(ctx context.Context, requestID, actorID string, action ConversationAction, finalNote string) (Conversation, error) {
	unlock := e.lockRequest(requestID)
	defer unlock()

	req, err := e.store.GetRequest(ctx, requestID)
	if err != nil {
		return Conversation{}, err
	}
	if !req.Party(actorID) {
		return Conversation{}, fmt.Errorf("%w: not a participant", ErrForbidden)
	}
	conv, err := e.store.ConversationByRequest(ctx, requestID)
	if err != nil {
		return Conversation{}, err
	}

	now := e.now()
	var final *Message
	switch action {
	case ConversationComplete:
		if conv.Status != ConversationActive {
			return Conversation{}, fmt.Errorf("%w: conversation is %s", ErrInvalidState, conv.Status)
		}
		conv.Status = ConversationCompleted
		conv.CompletedAt = &now
		conv.CompletedBy = actorID
		req.State = StateDiscussionCompleted
		if finalNote != "" {
			final = &Message{SenderID: actorID, Content: finalNote, IsSystem: true, SentAt: now}
		}
	case ConversationReopen:
		if conv.Status != ConversationCompleted {
			return Conversation{}, fmt.Errorf("%w: conversation is %s", ErrInvalidState, conv.Status)
		}
		conv.Status = ConversationActive
		conv.CompletedAt = nil
		conv.CompletedBy = ""
		req.State = StateDiscussionActive
	default:
		return Conversation{}, fmt.Errorf("%w: unknown action %q", ErrInvalidState, action)
	}
	req.UpdatedAt = now

	recipient := req.Counterpart(actorID)
	n := &notify.Notification{
		RecipientID: recipient,
		WorkflowID:  req.ID,
		Kind:        string(req.State),
		Title:       requestTitle(req),
		Body:        fmt.Sprintf("Discussion %s by %s", conv.Status, actorID),
		CreatedAt:   now,
	}
	if err := e.store.SaveConversationState(ctx, conv, req, final, n); err != nil {
		return Conversation{}, err
	}

	e.metrics.TransitionApplied(string(req.State))
	e.notifier.Push(*n)

	if final != nil {
		conv.Messages = append(conv.Messages, *final)
	}
	return conv, nil
}

func (e *Engine) Get(ctx context.Context, requestID, actorID string) (Request, error) {
	req, err := e.store.GetRequest(ctx, requestID)
	if err != nil {
		return Request{}, err
	}
	if !req.Party(actorID) {
		return Request{}, fmt.Errorf("%w: not a participant", ErrForbidden)
	}
	return req, nil
}

func (e *Engine) List(ctx context.Context, userID string, asInitiator bool, state RequestState) ([]Request, error) {
	return e.store.ListRequests(ctx, userID, asInitiator, state)
}

func (e *Engine) Summary(ctx context.Context, userID string) (Summary, error) {
	return e.store.Summary(ctx, userID)
}

func (e *Engine) lockRequest(requestID string) func() {
	e.mu.Lock()
	lock, ok := e.reqLocks[requestID]
	if !ok {
		lock = &sync.Mutex{}
		e.reqLocks[requestID] = lock
	}
	e.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

func requestTitle(req Request) string {
	if req.Kind == KindApproval {
		return fmt.Sprintf("Approval request: %s", req.Title)
	}
	return fmt.Sprintf("Task assignment: %s", req.Title)
}

func responseBody(req Request, actorID, note string) string {
	switch req.State {
	case StateAccepted:
		return fmt.Sprintf("%s accepted the request", actorID)
	case StateRejected:
		if note != "" {
			return fmt.Sprintf("%s rejected the request: %s", actorID, note)
		}
		return fmt.Sprintf("%s rejected the request", actorID)
	case StateDiscussionRequested:
		return fmt.Sprintf("%s wants to discuss the request", actorID)
	default:
		return fmt.Sprintf("Request is now %s", req.State)
	}
}
