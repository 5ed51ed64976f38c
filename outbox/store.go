package outbox

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Store is the persistence interface the outbox Service depends on.
type Store interface {
	Create(ctx context.Context, msg *Message) error
	FindPending(ctx context.Context, limit int) ([]*Message, error)
	UpdateStatus(ctx context.Context, id int64, status Status, retryCount int) error
}

type gormStore struct {
	db *gorm.DB
}

// NewGormStore returns a Store backed by db, auto-migrating the
// leadership_outbox table on construction.
func NewGormStore(db *gorm.DB) (Store, error) {
	if err := db.AutoMigrate(&Message{}); err != nil {
		return nil, err
	}
	return &gormStore{db: db}, nil
}

func (s *gormStore) Create(ctx context.Context, msg *Message) error {
	return s.db.WithContext(ctx).Create(msg).Error
}

func (s *gormStore) FindPending(ctx context.Context, limit int) ([]*Message, error) {
	var messages []*Message
	err := s.db.WithContext(ctx).
		Where("status = ?", StatusPending).
		Where("updated_at < ?", time.Now().Add(-2*time.Second)).
		Order("id asc").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

func (s *gormStore) UpdateStatus(ctx context.Context, id int64, status Status, retryCount int) error {
	return s.db.WithContext(ctx).Model(&Message{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":      status,
		"retry_count": retryCount,
	}).Error
}
