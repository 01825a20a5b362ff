package model

import "time"

const (
	EventDocumentIngested = "document.ingested"
	EventChatCompleted    = "chat.completed"
)

// ActivityEvent is a best-effort audit record. Events are published to
// the queue by the services and written here by the persist worker.
type ActivityEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Kind      string    `gorm:"size:64;not null;index" json:"kind"`
	Detail    string    `gorm:"type:text" json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}
