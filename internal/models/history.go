package models

import (
	"time"
)

// Message roles as stored in the history log.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// HistoryEntry is a single persisted message. Entries are append-only and
// always written in user/model pairs with server-assigned timestamps, so the
// log can be replayed in chronological order.
type HistoryEntry struct {
	ID          uint      `json:"-" gorm:"primaryKey"`
	CharacterID string    `json:"characterId" gorm:"index;not null"`
	Role        string    `json:"role" gorm:"not null"`
	Message     string    `json:"message" gorm:"not null"`
	Timestamp   time.Time `json:"timestamp" gorm:"index;not null"`
	CreatedAt   time.Time `json:"-"`
}
