package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"
)

// Refresh protocol failure kinds. All of them surface to clients as a generic
// unauthorized response; ErrRefreshMismatch additionally signals possible
// token reuse and is fatal to the session, never retryable.
var (
	ErrRefreshMissing  = errors.New("refresh token missing")
	ErrRefreshInvalid  = errors.New("refresh token invalid")
	ErrRefreshMismatch = errors.New("refresh token does not match active session")

	// ErrInvalidUserID is returned when issuing a session without a user
	// identifier.
	ErrInvalidUserID = errors.New("userID is required")
)

// TokenPair bundles a freshly minted access/refresh token pair.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// SessionManager coordinates token issuance, verification, rotation, and
// revocation against a backing token store. Correctness under concurrent
// refresh calls relies on the store's per-user atomic overwrite: the race
// loser's token no longer matches the stored value and fails with
// ErrRefreshMismatch.
type SessionManager struct {
	access  *TokenCodec
	refresh *TokenCodec
	store   TokenStore
	now     func() time.Time
}

// SessionOption configures a SessionManager instance.
type SessionOption func(*SessionManager)

// WithStore injects a custom TokenStore implementation.
func WithStore(store TokenStore) SessionOption {
	return func(m *SessionManager) {
		if store != nil {
			m.store = store
		}
	}
}

// WithSessionClock overrides the manager's time source, primarily for tests.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(m *SessionManager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewSessionManager constructs a manager from access and refresh codecs. The
// manager defaults to an in-memory token store when none is supplied.
func NewSessionManager(access, refresh *TokenCodec, opts ...SessionOption) (*SessionManager, error) {
	if access == nil || refresh == nil {
		return nil, errors.New("access and refresh codecs are required")
	}
	manager := &SessionManager{
		access:  access,
		refresh: refresh,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(manager)
		}
	}
	if manager.store == nil {
		manager.store = NewMemoryTokenStore()
	}
	return manager, nil
}

// Issue mints an access/refresh pair for the user and persists the refresh
// token, overwriting any previously active one. A prior session's refresh
// token becomes permanently unusable after this call.
func (m *SessionManager) Issue(userID string) (TokenPair, error) {
	if userID == "" {
		return TokenPair{}, ErrInvalidUserID
	}
	accessToken, accessExpires, err := m.access.Issue(userID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}
	refreshToken, refreshExpires, err := m.refresh.Issue(userID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue refresh token: %w", err)
	}
	if err := m.store.Save(userID, refreshToken, refreshExpires.UTC()); err != nil {
		return TokenPair{}, fmt.Errorf("persist refresh token: %w", err)
	}
	return TokenPair{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpires,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshExpires,
	}, nil
}

// VerifyAccess validates an access token and returns its subject. It is pure
// and touches no shared state.
func (m *SessionManager) VerifyAccess(token string) (string, error) {
	claims, err := m.access.Verify(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// Refresh exchanges a refresh token for a new pair. The incoming token must
// carry a valid signature, be unexpired, and match the stored value
// bit-exactly; the stored value is then overwritten so the presented token can
// never be used again.
func (m *SessionManager) Refresh(incoming string) (TokenPair, error) {
	if incoming == "" {
		return TokenPair{}, ErrRefreshMissing
	}
	claims, err := m.refresh.Verify(incoming)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrRefreshInvalid, err)
	}
	record, ok, err := m.store.Get(claims.Subject)
	if err != nil {
		return TokenPair{}, fmt.Errorf("load refresh token: %w", err)
	}
	if !ok {
		return TokenPair{}, ErrRefreshMismatch
	}
	if m.now().After(record.ExpiresAt) {
		return TokenPair{}, ErrRefreshMismatch
	}
	if subtle.ConstantTimeCompare([]byte(record.Token), []byte(incoming)) != 1 {
		// A validly signed token that is not the current one means an older
		// rotation is being replayed. Kill the session outright.
		_ = m.store.Delete(claims.Subject)
		return TokenPair{}, ErrRefreshMismatch
	}
	return m.Issue(claims.Subject)
}

// Revoke clears the user's stored refresh token. Revoking an already-revoked
// session is a no-op success.
func (m *SessionManager) Revoke(userID string) error {
	if userID == "" {
		return nil
	}
	return m.store.Delete(userID)
}

// AccessTTL reports the access token lifetime.
func (m *SessionManager) AccessTTL() time.Duration {
	return m.access.TTL()
}

// PurgeExpired removes any expired refresh records from the backing store.
func (m *SessionManager) PurgeExpired() error {
	return m.store.PurgeExpired(m.now())
}

// Ping verifies the underlying token store is reachable when it exposes a
// ping method.
func (m *SessionManager) Ping(ctx context.Context) error {
	if m == nil || m.store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if pinger, ok := m.store.(interface{ Ping(context.Context) error }); ok {
		return pinger.Ping(ctx)
	}
	return nil
}
