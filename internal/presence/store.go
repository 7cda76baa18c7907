package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("not found")

// Record is the persisted presence state of one user. The tracker is the
// only writer.
type Record struct {
	UserID   string    `json:"user_id"`
	IsOnline bool      `json:"is_online"`
	LastSeen time.Time `json:"last_seen"`
}

type Store interface {
	Get(ctx context.Context, userID string) (Record, error)
	Upsert(ctx context.Context, rec Record) error
	Online(ctx context.Context) ([]Record, error)
	MarkAllOffline(ctx context.Context, at time.Time) error
}

type presenceRow struct {
	UserID   string    `gorm:"primaryKey;size:191"`
	IsOnline bool      `gorm:"not null;index"`
	LastSeen time.Time `gorm:"not null"`
}

func (presenceRow) TableName() string {
	return "presence_records"
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(gdb *gorm.DB) (*GormStore, error) {
	if err := gdb.AutoMigrate(&presenceRow{}); err != nil {
		return nil, fmt.Errorf("migrate presence records: %w", err)
	}
	return &GormStore{db: gdb}, nil
}

func (s *GormStore) Get(ctx context.Context, userID string) (Record, error) {
	var row presenceRow
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("get presence: %w", err)
	}
	return Record{UserID: row.UserID, IsOnline: row.IsOnline, LastSeen: row.LastSeen}, nil
}

func (s *GormStore) Upsert(ctx context.Context, rec Record) error {
	row := presenceRow{UserID: rec.UserID, IsOnline: rec.IsOnline, LastSeen: rec.LastSeen}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"is_online", "last_seen"}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert presence: %w", err)
	}
	return nil
}

func (s *GormStore) Online(ctx context.Context) ([]Record, error) {
	var rows []presenceRow
	err := s.db.WithContext(ctx).
		Where("is_online = ?", true).
		Order("user_id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list online users: %w", err)
	}
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, Record{UserID: row.UserID, IsOnline: row.IsOnline, LastSeen: row.LastSeen})
	}
	return out, nil
}

// MarkAllOffline resets every online row. Called once at startup: after a
// restart no connections exist, so persisted "online" is stale.
func (s *GormStore) MarkAllOffline(ctx context.Context, at time.Time) error {
	err := s.db.WithContext(ctx).
		Model(&presenceRow{}).
		Where("is_online = ?", true).
		Updates(map[string]any{"is_online": false, "last_seen": at}).Error
	if err != nil {
		return fmt.Errorf("mark all offline: %w", err)
	}
	return nil
}
