// Package workflow drives multi-party assignment and approval negotiations:
// a request moves through a closed state machine under role-gated actions,
// optionally growing a conversation thread, and every transition notifies
// the non-acting party.
package workflow

import "time"

type RequestState string

const (
	StatePending             RequestState = "pending"
	StateAccepted            RequestState = "accepted"
	StateRejected            RequestState = "rejected"
	StateDiscussionRequested RequestState = "discussion_requested"
	StateDiscussionActive    RequestState = "discussion_active"
	StateDiscussionCompleted RequestState = "discussion_completed"
)

type RequestKind string

const (
	KindAssignment RequestKind = "assignment"
	KindApproval   RequestKind = "approval"
)

type Action string

const (
	ActionAccept  Action = "accept"
	ActionReject  Action = "reject"
	ActionDiscuss Action = "discuss"
)

type ConversationAction string

const (
	ConversationComplete ConversationAction = "complete"
	ConversationReopen   ConversationAction = "reopen"
)

type ConversationStatus string

const (
	ConversationActive    ConversationStatus = "active"
	ConversationCompleted ConversationStatus = "completed"
	ConversationArchived  ConversationStatus = "archived"
)

// transitions is the full legal-transition table for respond actions, keyed
// on (current state, action). Any unmapped pair is an invalid transition.
// Accept/reject remain legal after a completed discussion: finishing the
// talk does not decide the disposition.
var transitions = map[RequestState]map[Action]RequestState{
	StatePending: {
		ActionAccept:  StateAccepted,
		ActionReject:  StateRejected,
		ActionDiscuss: StateDiscussionRequested,
	},
	StateDiscussionCompleted: {
		ActionAccept: StateAccepted,
		ActionReject: StateRejected,
	},
}

// openStates are the states that block a duplicate request for the same
// (subject, counterpart) pair.
var openStates = []RequestState{StatePending, StateDiscussionRequested, StateDiscussionActive}

// Request is the persisted unit of an assignment or approval negotiation.
// Terminal dispositions (accepted/rejected) are retained for audit.
type Request struct {
	ID            string       `json:"id"`
	Kind          RequestKind  `json:"kind"`
	SubjectID     string       `json:"subject_id"`
	Title         string       `json:"title"`
	InitiatorID   string       `json:"initiator_id"`
	CounterpartID string       `json:"counterpart_id"`
	State         RequestState `json:"state"`
	Note          string       `json:"note,omitempty"`
	ResponseNote  string       `json:"response_note,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
	RespondedAt   *time.Time   `json:"responded_at,omitempty"`
}

// Party reports whether userID is the initiator or counterpart.
func (r Request) Party(userID string) bool {
	return r.InitiatorID == userID || r.CounterpartID == userID
}

// Counterpart returns the other party relative to userID.
func (r Request) Counterpart(userID string) string {
	if r.InitiatorID == userID {
		return r.CounterpartID
	}
	return r.InitiatorID
}

type Conversation struct {
	ID          string             `json:"id"`
	RequestID   string             `json:"request_id"`
	Status      ConversationStatus `json:"status"`
	CreatedAt   time.Time          `json:"created_at"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
	CompletedBy string             `json:"completed_by,omitempty"`
	Messages    []Message          `json:"messages"`
}

type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	SenderID       string     `json:"sender_id"`
	Content        string     `json:"content"`
	IsSystem       bool       `json:"is_system"`
	SentAt         time.Time  `json:"sent_at"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
}

// Summary is the per-user dashboard view of assignment activity.
type Summary struct {
	Pending           int64 `json:"pending"`
	ActiveDiscussions int64 `json:"active_discussions"`
	AssignedByMe      int64 `json:"assigned_by_me"`
	AssignedToMe      int64 `json:"assigned_to_me"`
}

func ParseAction(raw string) (Action, bool) {
	switch Action(raw) {
	case ActionAccept, ActionReject, ActionDiscuss:
		return Action(raw), true
	}
	return "", false
}

func ParseConversationAction(raw string) (ConversationAction, bool) {
	switch ConversationAction(raw) {
	case ConversationComplete, ConversationReopen:
		return ConversationAction(raw), true
	}
	return "", false
}
