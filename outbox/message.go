// Package outbox guarantees at-least-once delivery of leader-changed
// notifications to Kafka by writing them to a MySQL table first and
// forwarding them on a background ticker, instead of publishing to
// Kafka directly from an election callback where a broker outage would
// otherwise silently drop the notification.
package outbox

import "time"

// Status is the delivery status of an outbox Message.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSent    Status = "SENT"
)

// Message is one row of the leadership_outbox table: a leader-changed
// event waiting to be, or already, forwarded to Kafka.
type Message struct {
	ID         int64     `gorm:"primaryKey"`
	Topic      string    `gorm:"type:varchar(255);not null"`
	Key        string    `gorm:"type:varchar(255)"`
	Payload    []byte    `gorm:"type:blob;not null"`
	Status     Status    `gorm:"type:varchar(20);not null;index"`
	RetryCount int       `gorm:"not null;default:0"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

func (Message) TableName() string { return "leadership_outbox" }
