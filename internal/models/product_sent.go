package models

import "time"

// ProductSentRecord tracks which catalog products a session has already seen,
// so repeated searches can exclude them
type ProductSentRecord struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	SessionID string `json:"session_id" gorm:"uniqueIndex:idx_session_product;not null"`
	ProductID string `json:"product_id" gorm:"uniqueIndex:idx_session_product;not null"`

	SentCount  int       `json:"sent_count"`
	LastSentAt time.Time `json:"last_sent_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
