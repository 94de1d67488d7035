package services

import (
	"errors"
	"fmt"
	"log"
	"os"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/EncantoFlores/encanto-backend/internal/models"
	"github.com/EncantoFlores/encanto-backend/internal/storage"
)

// jidPhoneRe pulls the phone digits out of a JID-shaped session id like
// "5531988887777@s.whatsapp.net"
var jidPhoneRe = regexp.MustCompile(`^(\d{8,15})@`)

func phoneFromSessionID(sessionID string) string {
	match := jidPhoneRe.FindStringSubmatch(sessionID)
	if match == nil {
		return ""
	}
	return match[1]
}

// SessionTTL is how long a session lives without expiring (default 72h)
func SessionTTL() time.Duration {
	hours := 72
	if value := os.Getenv("SESSION_TTL_HOURS"); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			hours = parsed
		}
	}
	return time.Duration(hours) * time.Hour
}

// GetOrCreateSession loads, repairs, or creates the session for an inbound
// turn. Expired sessions are cascade-deleted and recreated transparently;
// phone and alternate id are backfilled but never overwritten.
func GetOrCreateSession(store storage.Store, sessionID, phone, altID string) (*models.Session, error) {
	session, err := store.GetSession(sessionID)
	switch {
	case err == nil:
		if !session.Expired() {
			return backfillSession(store, session, phone, altID)
		}
		log.Printf("🧹 Sessão %s expirada, limpando e recriando", sessionID)
		if err := store.DeleteSession(sessionID); err != nil {
			return nil, fmt.Errorf("limpar sessão expirada: %w", err)
		}
	case !errors.Is(err, storage.ErrNotFound):
		return nil, err
	}

	// Some clients flip to an alternate remote id mid-conversation; reuse the
	// session it points at instead of splitting the transcript
	if phone == "" && altID != "" {
		existing, err := store.GetSessionByAltID(altID)
		switch {
		case err == nil && !existing.Expired():
			return existing, nil
		case err == nil:
			if err := store.DeleteSession(existing.ID); err != nil {
				return nil, fmt.Errorf("limpar sessão expirada: %w", err)
			}
		case !errors.Is(err, storage.ErrNotFound):
			return nil, err
		}
	}

	seedPhone := phone
	if seedPhone == "" {
		seedPhone = phoneFromSessionID(sessionID)
	}

	session = &models.Session{
		ID:            sessionID,
		CustomerPhone: seedPhone,
		AltRemoteID:   altID,
		ExpiresAt:     time.Now().Add(SessionTTL()),
	}
	if err := store.CreateSession(session); err != nil {
		return nil, err
	}

	log.Printf("✅ Nova sessão criada: %s (telefone: %s)", sessionID, seedPhone)
	return session, nil
}

func backfillSession(store storage.Store, session *models.Session, phone, altID string) (*models.Session, error) {
	changed := false
	if session.CustomerPhone == "" && phone != "" {
		session.CustomerPhone = phone
		changed = true
	}
	if session.AltRemoteID == "" && altID != "" {
		session.AltRemoteID = altID
		changed = true
	}
	if changed {
		if err := store.UpdateSession(session); err != nil {
			return nil, err
		}
	}
	return session, nil
}

// TurnLocks serializes turns per session. Two concurrent webhooks on the same
// session would interleave history reads; different sessions stay independent.
type TurnLocks struct {
	mu    sync.Mutex
	locks map[string]*turnLock
}

type turnLock struct {
	mu   sync.Mutex
	refs int
}

var (
	turnLocksInstance *TurnLocks
	turnLocksOnce     sync.Once
)

// GetTurnLocks returns the global turn serializer
func GetTurnLocks() *TurnLocks {
	turnLocksOnce.Do(func() {
		turnLocksInstance = &TurnLocks{locks: make(map[string]*turnLock)}
	})
	return turnLocksInstance
}

// Acquire blocks until the session is free and returns the release func.
// Entries are refcounted and removed when the last holder releases.
func (t *TurnLocks) Acquire(sessionID string) func() {
	t.mu.Lock()
	lock, ok := t.locks[sessionID]
	if !ok {
		lock = &turnLock{}
		t.locks[sessionID] = lock
	}
	lock.refs++
	t.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()

		t.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(t.locks, sessionID)
		}
		t.mu.Unlock()
	}
}
