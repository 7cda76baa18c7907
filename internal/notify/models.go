package notify

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/2k1998/BWC-Portal-Backend/internal/ids"
)

var (
	ErrNotFound  = errors.New("notification not found")
	ErrForbidden = errors.New("not the notification recipient")
)

// Notification is the durable record behind every fanout event. It stands in
// for live delivery when the recipient has no connection.
type Notification struct {
	ID          string     `json:"id"`
	RecipientID string     `json:"recipient_id"`
	WorkflowID  string     `json:"workflow_id,omitempty"`
	Kind        string     `json:"kind"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	IsRead      bool       `json:"is_read"`
	CreatedAt   time.Time  `json:"created_at"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
}

type notificationRow struct {
	ID          string    `gorm:"primaryKey;size:64"`
	RecipientID string    `gorm:"size:191;not null;index:idx_notifications_recipient_created,priority:1"`
	WorkflowID  string    `gorm:"size:64"`
	Kind        string    `gorm:"size:64;not null"`
	Title       string    `gorm:"size:255;not null"`
	Body        string    `gorm:"type:text;not null"`
	IsRead      bool      `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null;index:idx_notifications_recipient_created,priority:2"`
	ReadAt      *time.Time
}

func (notificationRow) TableName() string {
	return "notifications"
}

func (r notificationRow) toRecord() Notification {
	return Notification{
		ID:          r.ID,
		RecipientID: r.RecipientID,
		WorkflowID:  r.WorkflowID,
		Kind:        r.Kind,
		Title:       r.Title,
		Body:        r.Body,
		IsRead:      r.IsRead,
		CreatedAt:   r.CreatedAt,
		ReadAt:      r.ReadAt,
	}
}

func rowFromRecord(rec Notification) notificationRow {
	return notificationRow{
		ID:          rec.ID,
		RecipientID: rec.RecipientID,
		WorkflowID:  rec.WorkflowID,
		Kind:        rec.Kind,
		Title:       rec.Title,
		Body:        rec.Body,
		IsRead:      rec.IsRead,
		CreatedAt:   rec.CreatedAt,
		ReadAt:      rec.ReadAt,
	}
}

// CreateInTx persists a notification inside an existing transaction. The
// workflow store uses it so a transition and its notification commit as one
// unit.
func CreateInTx(tx *gorm.DB, n *Notification) error {
	if strings.TrimSpace(n.RecipientID) == "" {
		return errors.New("recipient_id is required")
	}
	if n.ID == "" {
		n.ID = ids.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	row := rowFromRecord(*n)
	return tx.Create(&row).Error
}
