package storage

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/EncantoFlores/encanto-backend/internal/models"
)

// MemoryStore holds all data in memory for local development and tests
type MemoryStore struct {
	sessions map[string]*models.Session
	messages map[string][]*models.Message           // keyed by session ID
	sent     map[string]*models.ProductSentRecord   // keyed by sessionID+"|"+productID
	memories map[string]*models.CustomerMemory      // keyed by phone

	// Mutexes for thread safety
	sessionMu sync.RWMutex
	messageMu sync.RWMutex
	sentMu    sync.RWMutex
	memoryMu  sync.RWMutex

	// Counters for ID generation
	messageCounter uint
	sentCounter    uint
	memoryCounter  uint
}

// NewMemoryStore creates a new in-memory storage
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*models.Session),
		messages: make(map[string][]*models.Message),
		sent:     make(map[string]*models.ProductSentRecord),
		memories: make(map[string]*models.CustomerMemory),
	}
}

// Session operations

func (m *MemoryStore) CreateSession(session *models.Session) error {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	now := time.Now()
	session.CreatedAt = now
	session.UpdatedAt = now

	copied := *session
	m.sessions[session.ID] = &copied
	return nil
}

func (m *MemoryStore) GetSession(id string) (*models.Session, error) {
	m.sessionMu.RLock()
	defer m.sessionMu.RUnlock()

	session, exists := m.sessions[id]
	if !exists {
		return nil, ErrNotFound
	}
	copied := *session
	return &copied, nil
}

func (m *MemoryStore) GetSessionByAltID(altID string) (*models.Session, error) {
	m.sessionMu.RLock()
	defer m.sessionMu.RUnlock()

	for _, session := range m.sessions {
		if session.AltRemoteID == altID {
			copied := *session
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) UpdateSession(session *models.Session) error {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	if _, exists := m.sessions[session.ID]; !exists {
		return ErrNotFound
	}
	session.UpdatedAt = time.Now()
	copied := *session
	m.sessions[session.ID] = &copied
	return nil
}

func (m *MemoryStore) SetSessionBlocked(id string, blocked bool) error {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	session, exists := m.sessions[id]
	if !exists {
		return ErrNotFound
	}
	session.Blocked = blocked
	session.UpdatedAt = time.Now()
	return nil
}

// DeleteSession removes a session and its dependents. Messages and product
// history go first, matching the foreign-key order the database store needs.
func (m *MemoryStore) DeleteSession(id string) error {
	m.messageMu.Lock()
	delete(m.messages, id)
	m.messageMu.Unlock()

	m.sentMu.Lock()
	for key := range m.sent {
		if strings.HasPrefix(key, id+"|") {
			delete(m.sent, key)
		}
	}
	m.sentMu.Unlock()

	m.sessionMu.Lock()
	delete(m.sessions, id)
	m.sessionMu.Unlock()

	return nil
}

func (m *MemoryStore) ListSessions(limit int) ([]*models.Session, error) {
	m.sessionMu.RLock()
	defer m.sessionMu.RUnlock()

	var sessions []*models.Session
	for _, session := range m.sessions {
		copied := *session
		sessions = append(sessions, &copied)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

func (m *MemoryStore) CountSessions() (int64, error) {
	m.sessionMu.RLock()
	defer m.sessionMu.RUnlock()
	return int64(len(m.sessions)), nil
}

func (m *MemoryStore) DeleteExpiredSessions() (int, error) {
	m.sessionMu.RLock()
	var expired []string
	now := time.Now()
	for id, session := range m.sessions {
		if now.After(session.ExpiresAt) {
			expired = append(expired, id)
		}
	}
	m.sessionMu.RUnlock()

	for _, id := range expired {
		if err := m.DeleteSession(id); err != nil {
			return len(expired), err
		}
	}
	return len(expired), nil
}

// Message operations

func (m *MemoryStore) CreateMessage(msg *models.Message) error {
	m.messageMu.Lock()
	defer m.messageMu.Unlock()

	m.messageCounter++
	msg.ID = m.messageCounter
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	copied := *msg
	m.messages[msg.SessionID] = append(m.messages[msg.SessionID], &copied)
	return nil
}

// GetSessionMessages returns the most recent messages in chronological order
func (m *MemoryStore) GetSessionMessages(sessionID string, limit int) ([]*models.Message, error) {
	m.messageMu.RLock()
	defer m.messageMu.RUnlock()

	stored := m.messages[sessionID]
	messages := make([]*models.Message, 0, len(stored))
	for _, msg := range stored {
		copied := *msg
		messages = append(messages, &copied)
	}
	sort.Slice(messages, func(i, j int) bool {
		if messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].ID < messages[j].ID
		}
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

func (m *MemoryStore) CountMessages() (int64, error) {
	m.messageMu.RLock()
	defer m.messageMu.RUnlock()

	total := 0
	for _, msgs := range m.messages {
		total += len(msgs)
	}
	return int64(total), nil
}

// Product exposure operations

func (m *MemoryStore) UpsertProductSent(sessionID, productID string) error {
	m.sentMu.Lock()
	defer m.sentMu.Unlock()

	key := sessionID + "|" + productID
	now := time.Now()

	if record, exists := m.sent[key]; exists {
		record.SentCount++
		record.LastSentAt = now
		record.UpdatedAt = now
		return nil
	}

	m.sentCounter++
	m.sent[key] = &models.ProductSentRecord{
		ID:         m.sentCounter,
		SessionID:  sessionID,
		ProductID:  productID,
		SentCount:  1,
		LastSentAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return nil
}

func (m *MemoryStore) GetSentProductIDs(sessionID string) ([]string, error) {
	records, err := m.GetProductSentRecords(sessionID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.ProductID)
	}
	return ids, nil
}

func (m *MemoryStore) GetProductSentRecords(sessionID string) ([]*models.ProductSentRecord, error) {
	m.sentMu.RLock()
	defer m.sentMu.RUnlock()

	var records []*models.ProductSentRecord
	for _, record := range m.sent {
		if record.SessionID == sessionID {
			copied := *record
			records = append(records, &copied)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].ID < records[j].ID
	})
	return records, nil
}

// Customer memory operations

func (m *MemoryStore) SaveCustomerMemory(phone, summary string, expiresAt time.Time) error {
	m.memoryMu.Lock()
	defer m.memoryMu.Unlock()

	now := time.Now()
	if memory, exists := m.memories[phone]; exists {
		memory.Summary = summary
		memory.ExpiresAt = expiresAt
		memory.UpdatedAt = now
		return nil
	}

	m.memoryCounter++
	m.memories[phone] = &models.CustomerMemory{
		ID:        m.memoryCounter,
		Phone:     phone,
		Summary:   summary,
		ExpiresAt: expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

func (m *MemoryStore) GetCustomerMemory(phone string) (*models.CustomerMemory, error) {
	m.memoryMu.RLock()
	defer m.memoryMu.RUnlock()

	memory, exists := m.memories[phone]
	if !exists {
		return nil, ErrNotFound
	}
	if time.Now().After(memory.ExpiresAt) {
		return nil, ErrNotFound
	}
	copied := *memory
	return &copied, nil
}

func (m *MemoryStore) DeleteExpiredMemories() (int, error) {
	m.memoryMu.Lock()
	defer m.memoryMu.Unlock()

	deleted := 0
	now := time.Now()
	for phone, memory := range m.memories {
		if now.After(memory.ExpiresAt) {
			delete(m.memories, phone)
			deleted++
		}
	}
	return deleted, nil
}
