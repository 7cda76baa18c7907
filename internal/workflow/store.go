package workflow

import (
	"context"
	"time"

	"github.com/2k1998/BWC-Portal-Backend/internal/notify"
)

// Store persists workflow state. Methods that carry a *notify.Notification
// commit the state change and the notification record as one atomic unit:
// if the notification cannot be written, the transition does not commit.
type Store interface {
	CreateRequest(ctx context.Context, req *Request, n *notify.Notification) error
	GetRequest(ctx context.Context, id string) (Request, error)
	HasOpenRequest(ctx context.Context, subjectID, counterpartID string) (bool, error)
	// SaveResponse persists a respond transition; for discuss it also
	// creates the conversation and, if firstMessage is set, its opening
	// message.
	SaveResponse(ctx context.Context, req Request, firstMessage *Message, n *notify.Notification) error
	ConversationByRequest(ctx context.Context, requestID string) (Conversation, error)
	// AppendMessage adds a message (creating the conversation lazily) and
	// optionally bumps the request state in the same transaction.
	AppendMessage(ctx context.Context, req Request, msg *Message, newState RequestState, n *notify.Notification) error
	MarkMessagesRead(ctx context.Context, conversationID, readerID string, at time.Time) error
	// SaveConversationState persists a complete/reopen, the owning
	// request's new state and an optional final system message.
	SaveConversationState(ctx context.Context, conv Conversation, req Request, final *Message, n *notify.Notification) error
	ListRequests(ctx context.Context, userID string, asInitiator bool, state RequestState) ([]Request, error)
	Summary(ctx context.Context, userID string) (Summary, error)
}
