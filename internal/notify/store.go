package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

type Store interface {
	Create(ctx context.Context, n *Notification) error
	Get(ctx context.Context, id string) (Notification, error)
	MarkRead(ctx context.Context, id, actorID string, at time.Time) (Notification, error)
	List(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]Notification, error)
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(gdb *gorm.DB) (*GormStore, error) {
	if err := gdb.AutoMigrate(&notificationRow{}); err != nil {
		return nil, fmt.Errorf("migrate notifications: %w", err)
	}
	return &GormStore{db: gdb}, nil
}

func (s *GormStore) Create(ctx context.Context, n *Notification) error {
	if err := CreateInTx(s.db.WithContext(ctx), n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

func (s *GormStore) Get(ctx context.Context, id string) (Notification, error) {
	var row notificationRow
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Notification{}, ErrNotFound
		}
		return Notification{}, fmt.Errorf("get notification: %w", err)
	}
	return row.toRecord(), nil
}

// MarkRead flips is_read once. Only the recipient may mark; repeated calls
// return the record unchanged.
func (s *GormStore) MarkRead(ctx context.Context, id, actorID string, at time.Time) (Notification, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return Notification{}, err
	}
	if rec.RecipientID != actorID {
		return Notification{}, ErrForbidden
	}
	if rec.IsRead {
		return rec, nil
	}

	rec.IsRead = true
	rec.ReadAt = &at
	err = s.db.WithContext(ctx).
		Model(&notificationRow{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_read": true, "read_at": at}).Error
	if err != nil {
		return Notification{}, fmt.Errorf("mark notification read: %w", err)
	}
	return rec, nil
}

func (s *GormStore) List(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	q := s.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("created_at DESC").
		Limit(limit)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}

	var rows []notificationRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	out := make([]Notification, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toRecord())
	}
	return out, nil
}
