// Package session implements the server-side session stores. Tokens are
// opaque 256-bit random values checked against storage, which keeps
// revocation immediate: deleting the row is the revocation.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"mahfaza/internal/model"
)

// NewToken returns a 256-bit random session token, hex encoded.
func NewToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("session: failed to read random bytes: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// Store manages sessions inside one tenant's database. The handle passed to
// NewStore already is the tenant boundary.
type Store struct {
	db          *gorm.DB
	maxSessions int
}

// NewStore returns a tenant session store enforcing a cap of maxSessions
// concurrent unexpired sessions per user.
func NewStore(db *gorm.DB, maxSessions int) *Store {
	if maxSessions <= 0 {
		maxSessions = 5
	}
	return &Store{db: db, maxSessions: maxSessions}
}

// Create issues a new session for the user. If the user already holds the
// maximum number of unexpired sessions, the oldest ones are evicted so the
// cap still holds after the new session is added. Eviction and insert run
// in a single transaction.
func (s *Store) Create(userID, ip, userAgent string, ttl time.Duration) (*model.Session, error) {
	now := time.Now()
	sess := &model.Session{
		ID:        uuid.NewString(),
		Token:     NewToken(),
		UserID:    userID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
		UpdatedAt: now,
		IPAddress: ip,
		UserAgent: userAgent,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var valid []model.Session
		if result := tx.Where("user_id = ? AND expires_at > ?", userID, now).
			Order("created_at DESC").
			Find(&valid); result.Error != nil {
			return result.Error
		}

		if len(valid) >= s.maxSessions {
			// Keep the newest maxSessions-1 so the new session fits.
			for _, old := range valid[s.maxSessions-1:] {
				if result := tx.Delete(&model.Session{}, "id = ?", old.ID); result.Error != nil {
					return result.Error
				}
			}
		}

		return tx.Create(sess).Error
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Validate returns the session matching token if it has not expired.
// Expired rows are left in place for the periodic sweep. Returns (nil, nil)
// when the token is unknown or expired.
func (s *Store) Validate(token string) (*model.Session, error) {
	var sess model.Session
	result := s.db.Where("token = ? AND expires_at > ?", token, time.Now()).First(&sess)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &sess, nil
}

// Invalidate deletes the session with the given token. Deleting an unknown
// token is not an error.
func (s *Store) Invalidate(token string) error {
	return s.db.Delete(&model.Session{}, "token = ?", token).Error
}

// InvalidateAllForUser deletes every session belonging to the user.
func (s *Store) InvalidateAllForUser(userID string) error {
	return s.db.Delete(&model.Session{}, "user_id = ?", userID).Error
}

// Regenerate rotates the bearer credential of a valid session in place:
// same row, same expiry, fresh token. Returns "" when the old token is
// invalid or expired.
func (s *Store) Regenerate(oldToken string) (string, error) {
	sess, err := s.Validate(oldToken)
	if err != nil || sess == nil {
		return "", err
	}

	newToken := NewToken()
	result := s.db.Model(&model.Session{}).
		Where("id = ?", sess.ID).
		Updates(map[string]interface{}{"token": newToken, "updated_at": time.Now()})
	if result.Error != nil {
		return "", result.Error
	}
	return newToken, nil
}

// Extend pushes the session expiry forward from now by the given number of
// days. Returns false when the token is invalid or expired.
func (s *Store) Extend(token string, days int) (bool, error) {
	sess, err := s.Validate(token)
	if err != nil || sess == nil {
		return false, err
	}

	now := time.Now()
	result := s.db.Model(&model.Session{}).
		Where("id = ?", sess.ID).
		Updates(map[string]interface{}{
			"expires_at": now.AddDate(0, 0, days),
			"updated_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return true, nil
}

// DeleteExpired removes every expired session row and reports how many were
// deleted. Invoked by the scheduled cleanup endpoint.
func (s *Store) DeleteExpired(now time.Time) (int64, error) {
	result := s.db.Delete(&model.Session{}, "expires_at < ?", now)
	return result.RowsAffected, result.Error
}

// AdminStore manages operator sessions in the main database.
type AdminStore struct {
	db *gorm.DB
}

// NewAdminStore returns a session store over the main database.
func NewAdminStore(db *gorm.DB) *AdminStore {
	return &AdminStore{db: db}
}

// Create issues a new admin session. Admin sessions carry no concurrency cap.
func (s *AdminStore) Create(adminID string, ttl time.Duration) (*model.AdminSession, error) {
	sess := &model.AdminSession{
		ID:        uuid.NewString(),
		AdminID:   adminID,
		Token:     NewToken(),
		ExpiresAt: time.Now().Add(ttl),
		CreatedAt: time.Now(),
	}
	if result := s.db.Create(sess); result.Error != nil {
		return nil, result.Error
	}
	return sess, nil
}

// Validate returns the unexpired admin session for token, or (nil, nil).
func (s *AdminStore) Validate(token string) (*model.AdminSession, error) {
	var sess model.AdminSession
	result := s.db.Where("token = ? AND expires_at > ?", token, time.Now()).First(&sess)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &sess, nil
}

// Invalidate deletes the admin session with the given token; idempotent.
func (s *AdminStore) Invalidate(token string) error {
	return s.db.Delete(&model.AdminSession{}, "token = ?", token).Error
}

// DeleteExpired removes expired admin sessions.
func (s *AdminStore) DeleteExpired(now time.Time) (int64, error) {
	result := s.db.Delete(&model.AdminSession{}, "expires_at < ?", now)
	return result.RowsAffected, result.Error
}
