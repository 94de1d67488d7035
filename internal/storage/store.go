package storage

import (
	"errors"
	"time"

	"github.com/EncantoFlores/encanto-backend/internal/models"
)

// ErrNotFound is returned when a record does not exist. Callers branch on it
// to create sessions transparently, so both store implementations return it.
var ErrNotFound = errors.New("record not found")

var storeInstance Store

// SetStore sets the global store instance (call from main.go)
func SetStore(s Store) {
	storeInstance = s
}

// GetStore returns the global store instance
func GetStore() Store {
	return storeInstance
}

// Store defines the interface for storage operations
type Store interface {
	// Session operations
	CreateSession(session *models.Session) error
	GetSession(id string) (*models.Session, error)
	GetSessionByAltID(altID string) (*models.Session, error)
	UpdateSession(session *models.Session) error
	SetSessionBlocked(id string, blocked bool) error
	DeleteSession(id string) error // cascades: messages, product history, then the session row
	ListSessions(limit int) ([]*models.Session, error)
	CountSessions() (int64, error)
	DeleteExpiredSessions() (int, error)

	// Message operations
	CreateMessage(msg *models.Message) error
	GetSessionMessages(sessionID string, limit int) ([]*models.Message, error)
	CountMessages() (int64, error)

	// Product exposure operations
	UpsertProductSent(sessionID, productID string) error
	GetSentProductIDs(sessionID string) ([]string, error)
	GetProductSentRecords(sessionID string) ([]*models.ProductSentRecord, error)

	// Customer memory operations
	SaveCustomerMemory(phone, summary string, expiresAt time.Time) error
	GetCustomerMemory(phone string) (*models.CustomerMemory, error)
	DeleteExpiredMemories() (int, error)
}
