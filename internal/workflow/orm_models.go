package workflow

import "time"

type requestRow struct {
	ID            string    `gorm:"primaryKey;size:64"`
	Kind          string    `gorm:"size:32;not null"`
	SubjectID     string    `gorm:"size:191;not null;index:idx_requests_subject_counterpart,priority:1"`
	Title         string    `gorm:"size:255"`
	InitiatorID   string    `gorm:"size:191;not null;index"`
	CounterpartID string    `gorm:"size:191;not null;index:idx_requests_subject_counterpart,priority:2"`
	State         string    `gorm:"size:64;not null;index"`
	Note          string    `gorm:"type:text"`
	ResponseNote  string    `gorm:"type:text"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
	RespondedAt   *time.Time
}

func (requestRow) TableName() string {
	return "workflow_requests"
}

func (r requestRow) toRecord() Request {
	return Request{
		ID:            r.ID,
		Kind:          RequestKind(r.Kind),
		SubjectID:     r.SubjectID,
		Title:         r.Title,
		InitiatorID:   r.InitiatorID,
		CounterpartID: r.CounterpartID,
		State:         RequestState(r.State),
		Note:          r.Note,
		ResponseNote:  r.ResponseNote,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		RespondedAt:   r.RespondedAt,
	}
}

func requestRowFromRecord(rec Request) requestRow {
	return requestRow{
		ID:            rec.ID,
		Kind:          string(rec.Kind),
		SubjectID:     rec.SubjectID,
		Title:         rec.Title,
		InitiatorID:   rec.InitiatorID,
		CounterpartID: rec.CounterpartID,
		State:         string(rec.State),
		Note:          rec.Note,
		ResponseNote:  rec.ResponseNote,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
		RespondedAt:   rec.RespondedAt,
	}
}

type conversationRow struct {
	ID          string    `gorm:"primaryKey;size:64"`
	RequestID   string    `gorm:"size:64;not null;uniqueIndex"`
	Status      string    `gorm:"size:32;not null"`
	CreatedAt   time.Time `gorm:"not null"`
	CompletedAt *time.Time
	CompletedBy string `gorm:"size:191"`
}

func (conversationRow) TableName() string {
	return "workflow_conversations"
}

func (r conversationRow) toRecord() Conversation {
	return Conversation{
		ID:          r.ID,
		RequestID:   r.RequestID,
		Status:      ConversationStatus(r.Status),
		CreatedAt:   r.CreatedAt,
		CompletedAt: r.CompletedAt,
		CompletedBy: r.CompletedBy,
	}
}

func conversationRowFromRecord(rec Conversation) conversationRow {
	return conversationRow{
		ID:          rec.ID,
		RequestID:   rec.RequestID,
		Status:      string(rec.Status),
		CreatedAt:   rec.CreatedAt,
		CompletedAt: rec.CompletedAt,
		CompletedBy: rec.CompletedBy,
	}
}

type messageRow struct {
	ID             string `gorm:"primaryKey;size:64"`
	ConversationID string `gorm:"size:64;not null;uniqueIndex:idx_messages_conversation_seq,priority:1"`
	SenderID       string `gorm:"size:191;not null"`
	Content        string `gorm:"type:text;not null"`
	IsSystem       bool   `gorm:"not null"`
	// Seq is assigned inside the append transaction; message order is the
	// order of successful persistence, not network arrival.
	Seq    int64     `gorm:"not null;uniqueIndex:idx_messages_conversation_seq,priority:2"`
	SentAt time.Time `gorm:"not null"`
	ReadAt *time.Time
}

func (messageRow) TableName() string {
	return "workflow_messages"
}

func (r messageRow) toRecord() Message {
	return Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		SenderID:       r.SenderID,
		Content:        r.Content,
		IsSystem:       r.IsSystem,
		SentAt:         r.SentAt,
		ReadAt:         r.ReadAt,
	}
}

func messageRowFromRecord(rec Message) messageRow {
	return messageRow{
		ID:             rec.ID,
		ConversationID: rec.ConversationID,
		SenderID:       rec.SenderID,
		Content:        rec.Content,
		IsSystem:       rec.IsSystem,
		SentAt:         rec.SentAt,
		ReadAt:         rec.ReadAt,
	}
}
