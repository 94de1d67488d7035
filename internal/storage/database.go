package storage

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/EncantoFlores/encanto-backend/internal/models"
)

// DatabaseStore persists everything in Postgres through GORM
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore creates a new database-backed storage
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

// Session operations

func (d *DatabaseStore) CreateSession(session *models.Session) error {
	return d.db.Create(session).Error
}

func (d *DatabaseStore) GetSession(id string) (*models.Session, error) {
	var session models.Session
	err := d.db.Where("id = ?", id).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (d *DatabaseStore) GetSessionByAltID(altID string) (*models.Session, error) {
	var session models.Session
	err := d.db.Where("alt_remote_id = ?", altID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (d *DatabaseStore) UpdateSession(session *models.Session) error {
	return d.db.Save(session).Error
}

func (d *DatabaseStore) SetSessionBlocked(id string, blocked bool) error {
	result := d.db.Model(&models.Session{}).Where("id = ?", id).Update("blocked", blocked)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSession removes a session and its dependents in one transaction,
// children first so foreign keys stay happy.
func (d *DatabaseStore) DeleteSession(id string) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", id).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("session_id = ?", id).Delete(&models.ProductSentRecord{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.Session{}).Error
	})
}

func (d *DatabaseStore) ListSessions(limit int) ([]*models.Session, error) {
	var sessions []*models.Session
	query := d.db.Order("updated_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (d *DatabaseStore) CountSessions() (int64, error) {
	var count int64
	err := d.db.Model(&models.Session{}).Count(&count).Error
	return count, err
}

// DeleteExpiredSessions cascades each expired session individually so one
// failure does not abort the whole sweep.
func (d *DatabaseStore) DeleteExpiredSessions() (int, error) {
	var ids []string
	err := d.db.Model(&models.Session{}).
		Where("expires_at < ?", time.Now()).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, id := range ids {
		if err := d.DeleteSession(id); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

// Message operations

func (d *DatabaseStore) CreateMessage(msg *models.Message) error {
	return d.db.Create(msg).Error
}

// GetSessionMessages returns the most recent messages in chronological order
func (d *DatabaseStore) GetSessionMessages(sessionID string, limit int) ([]*models.Message, error) {
	var messages []*models.Message
	query := d.db.Where("session_id = ?", sessionID).Order("created_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&messages).Error; err != nil {
		return nil, err
	}

	// Newest-first from the query, flip back to transcript order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (d *DatabaseStore) CountMessages() (int64, error) {
	var count int64
	err := d.db.Model(&models.Message{}).Count(&count).Error
	return count, err
}

// Product exposure operations

func (d *DatabaseStore) UpsertProductSent(sessionID, productID string) error {
	now := time.Now()
	record := models.ProductSentRecord{
		SessionID:  sessionID,
		ProductID:  productID,
		SentCount:  1,
		LastSentAt: now,
	}

	return d.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "session_id"}, {Name: "product_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"sent_count":   gorm.Expr("product_sent_records.sent_count + 1"),
			"last_sent_at": now,
			"updated_at":   now,
		}),
	}).Create(&record).Error
}

func (d *DatabaseStore) GetSentProductIDs(sessionID string) ([]string, error) {
	var ids []string
	err := d.db.Model(&models.ProductSentRecord{}).
		Where("session_id = ?", sessionID).
		Order("id ASC").
		Pluck("product_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (d *DatabaseStore) GetProductSentRecords(sessionID string) ([]*models.ProductSentRecord, error) {
	var records []*models.ProductSentRecord
	err := d.db.Where("session_id = ?", sessionID).Order("id ASC").Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Customer memory operations

func (d *DatabaseStore) SaveCustomerMemory(phone, summary string, expiresAt time.Time) error {
	memory := models.CustomerMemory{
		Phone:     phone,
		Summary:   summary,
		ExpiresAt: expiresAt,
	}

	return d.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "phone"}},
		DoUpdates: clause.AssignmentColumns([]string{"summary", "expires_at", "updated_at"}),
	}).Create(&memory).Error
}

func (d *DatabaseStore) GetCustomerMemory(phone string) (*models.CustomerMemory, error) {
	var memory models.CustomerMemory
	err := d.db.Where("phone = ? AND expires_at > ?", phone, time.Now()).First(&memory).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &memory, nil
}

func (d *DatabaseStore) DeleteExpiredMemories() (int, error) {
	result := d.db.Where("expires_at < ?", time.Now()).Delete(&models.CustomerMemory{})
	return int(result.RowsAffected), result.Error
}
