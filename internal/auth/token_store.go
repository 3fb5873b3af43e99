package auth

import (
	"context"
	"sync"
	"time"
)

// RefreshRecord captures the single refresh token considered valid for a user.
type RefreshRecord struct {
	UserID    string
	Token     string
	ExpiresAt time.Time
}

// TokenStore defines the persistence contract for current refresh tokens.
// There is at most one record per user; Save overwrites any previous value,
// which is how rotation invalidates the prior token.
type TokenStore interface {
	Save(userID, token string, expiresAt time.Time) error
	Get(userID string) (RefreshRecord, bool, error)
	Delete(userID string) error
	PurgeExpired(now time.Time) error
}

// MemoryTokenStore keeps refresh-token state in-memory. It is safe for
// concurrent use and intended for development or single-instance deployments.
type MemoryTokenStore struct {
	mu     sync.RWMutex
	tokens map[string]RefreshRecord
}

// NewMemoryTokenStore constructs an in-memory store implementation.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[string]RefreshRecord)}
}

// Save records the current refresh token for the user, replacing any prior one.
func (s *MemoryTokenStore) Save(userID, token string, expiresAt time.Time) error {
	s.mu.Lock()
	s.tokens[userID] = RefreshRecord{UserID: userID, Token: token, ExpiresAt: expiresAt}
	s.mu.Unlock()
	return nil
}

// Get retrieves the current refresh record for the user.
func (s *MemoryTokenStore) Get(userID string) (RefreshRecord, bool, error) {
	s.mu.RLock()
	record, ok := s.tokens[userID]
	s.mu.RUnlock()
	return record, ok, nil
}

// Delete removes the user's refresh record from the store.
func (s *MemoryTokenStore) Delete(userID string) error {
	s.mu.Lock()
	delete(s.tokens, userID)
	s.mu.Unlock()
	return nil
}

// PurgeExpired removes any expired refresh records from the store.
func (s *MemoryTokenStore) PurgeExpired(now time.Time) error {
	s.mu.Lock()
	for userID, record := range s.tokens {
		if now.After(record.ExpiresAt) {
			delete(s.tokens, userID)
		}
	}
	s.mu.Unlock()
	return nil
}

// Ping always reports success for the in-memory store.
func (s *MemoryTokenStore) Ping(context.Context) error {
	return nil
}
