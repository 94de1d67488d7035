package models

import "time"

// CustomerMemory is a durable summary of a customer, keyed by phone.
// Saved on hand-off and checkout milestones so the next conversation
// starts with context even after the session itself expired.
type CustomerMemory struct {
	ID      uint   `json:"id" gorm:"primaryKey"`
	Phone   string `json:"phone" gorm:"uniqueIndex;not null"`
	Summary string `json:"summary" gorm:"type:text"`

	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
