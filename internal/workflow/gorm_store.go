package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/2k1998/BWC-Portal-Backend/internal/ids"
	"github.com/2k1998/BWC-Portal-Backend/internal/notify"
)

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(gdb *gorm.DB) (*GormStore, error) {
	if err := gdb.AutoMigrate(&requestRow{}, &conversationRow{}, &messageRow{}); err != nil {
		return nil, fmt.Errorf("migrate workflow tables: %w", err)
	}
	return &GormStore{db: gdb}, nil
}

func (s *GormStore) CreateRequest(ctx context.Context, req *Request, n *notify.Notification) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := requestRowFromRecord(*req)
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		if n != nil {
			n.WorkflowID = req.ID
			if err := notify.CreateInTx(tx, n); err != nil {
				return fmt.Errorf("create request notification: %w", err)
			}
		}
		return nil
	})
	return err
}

func (s *GormStore) GetRequest(ctx context.Context, id string) (Request, error) {
	var row requestRow
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Request{}, ErrNotFound
		}
		return Request{}, fmt.Errorf("get request: %w", err)
	}
	return row.toRecord(), nil
}

func (s *GormStore) HasOpenRequest(ctx context.Context, subjectID, counterpartID string) (bool, error) {
	states := make([]string, 0, len(openStates))
	for _, st := range openStates {
		states = append(states, string(st))
	}

	var count int64
	err := s.db.WithContext(ctx).
		Model(&requestRow{}).
		Where("subject_id = ? AND counterpart_id = ? AND state IN ?", subjectID, counterpartID, states).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("count open requests: %w", err)
	}
	return count > 0, nil
}

func (s *GormStore) SaveResponse(ctx context.Context, req Request, firstMessage *Message, n *notify.Notification) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.updateRequest(tx, req); err != nil {
			return err
		}
		if req.State == StateDiscussionRequested {
			conv, err := s.ensureConversation(tx, req.ID)
			if err != nil {
				return err
			}
			if firstMessage != nil {
				firstMessage.ConversationID = conv.ID
				if err := s.appendMessage(tx, firstMessage); err != nil {
					return err
				}
			}
		}
		if n != nil {
			if err := notify.CreateInTx(tx, n); err != nil {
				return fmt.Errorf("create response notification: %w", err)
			}
		}
		return nil
	})
}

func (s *GormStore) ConversationByRequest(ctx context.Context, requestID string) (Conversation, error) {
	var row conversationRow
	err := s.db.WithContext(ctx).Where("request_id = ?", requestID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Conversation{}, ErrNotFound
		}
		return Conversation{}, fmt.Errorf("get conversation: %w", err)
	}

	conv := row.toRecord()
	var msgRows []messageRow
	err = s.db.WithContext(ctx).
		Where("conversation_id = ?", conv.ID).
		Order("seq").
		Find(&msgRows).Error
	if err != nil {
		return Conversation{}, fmt.Errorf("list messages: %w", err)
	}
	conv.Messages = make([]Message, 0, len(msgRows))
	for _, mr := range msgRows {
		conv.Messages = append(conv.Messages, mr.toRecord())
	}
	return conv, nil
}

func (s *GormStore) AppendMessage(ctx context.Context, req Request, msg *Message, newState RequestState, n *notify.Notification) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conv, err := s.ensureConversation(tx, req.ID)
		if err != nil {
			return err
		}
		msg.ConversationID = conv.ID
		if err := s.appendMessage(tx, msg); err != nil {
			return err
		}
		if newState != req.State {
			req.State = newState
			req.UpdatedAt = msg.SentAt
			if err := s.updateRequest(tx, req); err != nil {
				return err
			}
		}
		if n != nil {
			if err := notify.CreateInTx(tx, n); err != nil {
				return fmt.Errorf("create message notification: %w", err)
			}
		}
		return nil
	})
}

// MarkMessagesRead sets read_at on the other party's unread messages. The
// stamp is set once and never changes afterwards.
func (s *GormStore) MarkMessagesRead(ctx context.Context, conversationID, readerID string, at time.Time) error {
	err := s.db.WithContext(ctx).
		Model(&messageRow{}).
		Where("conversation_id = ? AND sender_id <> ? AND read_at IS NULL", conversationID, readerID).
		Update("read_at", at).Error
	if err != nil {
		return fmt.Errorf("mark messages read: %w", err)
	}
	return nil
}

func (s *GormStore) SaveConversationState(ctx context.Context, conv Conversation, req Request, final *Message, n *notify.Notification) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := conversationRowFromRecord(conv)
		if err := tx.Model(&conversationRow{}).Where("id = ?", conv.ID).
			Select("status", "completed_at", "completed_by").
			Updates(&row).Error; err != nil {
			return fmt.Errorf("update conversation: %w", err)
		}
		if err := s.updateRequest(tx, req); err != nil {
			return err
		}
		if final != nil {
			final.ConversationID = conv.ID
			if err := s.appendMessage(tx, final); err != nil {
				return err
			}
		}
		if n != nil {
			if err := notify.CreateInTx(tx, n); err != nil {
				return fmt.Errorf("create conversation notification: %w", err)
			}
		}
		return nil
	})
}

func (s *GormStore) ListRequests(ctx context.Context, userID string, asInitiator bool, state RequestState) ([]Request, error) {
	q := s.db.WithContext(ctx).Model(&requestRow{})
	if asInitiator {
		q = q.Where("initiator_id = ?", userID)
	} else {
		q = q.Where("counterpart_id = ?", userID)
	}
	if state != "" {
		q = q.Where("state = ?", string(state))
	}

	var rows []requestRow
	if err := q.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	out := make([]Request, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toRecord())
	}
	return out, nil
}

func (s *GormStore) Summary(ctx context.Context, userID string) (Summary, error) {
	var sum Summary
	base := func() *gorm.DB { return s.db.WithContext(ctx).Model(&requestRow{}) }

	err := base().
		Where("counterpart_id = ? AND state = ?", userID, string(StatePending)).
		Count(&sum.Pending).Error
	if err != nil {
		return Summary{}, fmt.Errorf("count pending: %w", err)
	}

	err = base().
		Where("(initiator_id = ? OR counterpart_id = ?) AND state IN ?",
			userID, userID, []string{string(StateDiscussionRequested), string(StateDiscussionActive)}).
		Count(&sum.ActiveDiscussions).Error
	if err != nil {
		return Summary{}, fmt.Errorf("count discussions: %w", err)
	}

	if err := base().Where("initiator_id = ?", userID).Count(&sum.AssignedByMe).Error; err != nil {
		return Summary{}, fmt.Errorf("count assigned by: %w", err)
	}
	if err := base().Where("counterpart_id = ?", userID).Count(&sum.AssignedToMe).Error; err != nil {
		return Summary{}, fmt.Errorf("count assigned to: %w", err)
	}
	return sum, nil
}

func (s *GormStore) updateRequest(tx *gorm.DB, req Request) error {
	row := requestRowFromRecord(req)
	err := tx.Model(&requestRow{}).Where("id = ?", req.ID).
		Select("state", "response_note", "updated_at", "responded_at").
		Updates(&row).Error
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	return nil
}

func (s *GormStore) ensureConversation(tx *gorm.DB, requestID string) (Conversation, error) {
	var row conversationRow
	err := tx.Where("request_id = ?", requestID).Take(&row).Error
	if err == nil {
		return row.toRecord(), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return Conversation{}, fmt.Errorf("get conversation: %w", err)
	}

	row = conversationRow{
		ID:        ids.New(),
		RequestID: requestID,
		Status:    string(ConversationActive),
		CreatedAt: time.Now().UTC(),
	}
	if err := tx.Create(&row).Error; err != nil {
		return Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	return row.toRecord(), nil
}

func (s *GormStore) appendMessage(tx *gorm.DB, msg *Message) error {
	if msg.ID == "" {
		msg.ID = ids.New()
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}

	var maxSeq int64
	err := tx.Model(&messageRow{}).
		Where("conversation_id = ?", msg.ConversationID).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&maxSeq).Error
	if err != nil {
		return fmt.Errorf("message sequence lookup: %w", err)
	}

	row := messageRowFromRecord(*msg)
	row.Seq = maxSeq + 1
	if err := tx.Create(&row).Error; err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}
