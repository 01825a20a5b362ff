package model

import "time"

// Session is a chat session owned by exactly one user. UpdatedAt is
// touched whenever a message is appended, so listing by UpdatedAt gives
// most-recently-active order.
type Session struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Title     string    `gorm:"size:128;not null" json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
