// Package audit records every leadership transition an election
// observes to an append-only MySQL table, the way the teacher's
// transactional package records outbox messages: writes are best-effort
// and never block the election callback they're called from.
package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// LeadershipEvent is one row of the leadership_events table.
type LeadershipEvent struct {
	ID         int64     `gorm:"primaryKey"`
	Election   string    `gorm:"type:varchar(255);not null;index"`
	NodeID     string    `gorm:"type:varchar(255);not null"`
	Transition string    `gorm:"type:varchar(32);not null"` // won, lost, leader_alive, leader_dead
	VotePath   string    `gorm:"type:varchar(512)"`
	OccurredAt time.Time `gorm:"not null;index"`
}

func (LeadershipEvent) TableName() string { return "leadership_events" }

// Store appends LeadershipEvent rows.
type Store interface {
	Record(ctx context.Context, ev LeadershipEvent) error
}

type gormStore struct {
	db  *gorm.DB
	log zerolog.Logger
}

// NewGormStore returns a Store backed by db, auto-migrating the
// leadership_events table on construction.
func NewGormStore(db *gorm.DB, log zerolog.Logger) (Store, error) {
	if err := db.AutoMigrate(&LeadershipEvent{}); err != nil {
		return nil, err
	}
	return &gormStore{db: db, log: log}, nil
}

// Record appends ev. A failure is logged, not returned as fatal to the
// caller's election callback — an audit gap must never block a
// leadership transition.
func (s *gormStore) Record(ctx context.Context, ev LeadershipEvent) error {
	if err := s.db.WithContext(ctx).Create(&ev).Error; err != nil {
		s.log.Warn().Err(err).Str("election", ev.Election).Str("transition", ev.Transition).Msg("failed to record leadership event")
		return err
	}
	return nil
}
