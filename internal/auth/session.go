package auth

import (
	"errors"
	"time"

	"cliphive/internal/models"
)

var (
	// ErrUserNotFound is returned when the credential store has no record for
	// the requested identifier or user id.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentials is returned when a login password does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthenticated is returned when a refresh or logout request carries
	// no token at all.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrRefreshTokenMismatch is returned when a presented refresh token is
	// valid but no longer matches the stored session. Rotation has already
	// consumed it, or the session was replaced by a newer login.
	ErrRefreshTokenMismatch = errors.New("refresh token is expired or used")
)

// CredentialStore is the persistence contract the session manager needs:
// password verification plus the single stored refresh-token digest per user.
type CredentialStore interface {
	AuthenticateUser(identifier, password string) (models.User, error)
	GetUser(id string) (models.User, bool)
	SetRefreshToken(userID, tokenHash string) error
	ReplaceRefreshToken(userID, expectedHash, newHash string) error
	ClearRefreshToken(userID string) error
}

// SessionManager coordinates login, refresh rotation, and logout against a
// credential store. Each user holds at most one active session: issuing a new
// refresh token overwrites the previous digest, invalidating older tokens.
type SessionManager struct {
	store  CredentialStore
	issuer *Issuer
}

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// NewSessionManager wires an issuer to a credential store.
func NewSessionManager(store CredentialStore, issuer *Issuer) *SessionManager {
	return &SessionManager{store: store, issuer: issuer}
}

// Login verifies the identifier/password pair and starts a fresh session,
// replacing any refresh token the user held before.
func (m *SessionManager) Login(identifier, password string) (models.User, TokenPair, error) {
	user, err := m.store.AuthenticateUser(identifier, password)
	if err != nil {
		return models.User{}, TokenPair{}, err
	}
	pair, hash, err := m.mintPair(user.ID)
	if err != nil {
		return models.User{}, TokenPair{}, err
	}
	if err := m.store.SetRefreshToken(user.ID, hash); err != nil {
		return models.User{}, TokenPair{}, err
	}
	return user, pair, nil
}

// Refresh rotates a session: the presented refresh token is verified, matched
// against the stored digest, and atomically swapped for a new one. A token
// that was already rotated out fails with ErrRefreshTokenMismatch, so a stolen
// older token cannot race the legitimate holder.
func (m *SessionManager) Refresh(token string) (models.User, TokenPair, error) {
	if token == "" {
		return models.User{}, TokenPair{}, ErrUnauthenticated
	}
	claims, err := m.issuer.VerifyRefresh(token)
	if err != nil {
		return models.User{}, TokenPair{}, err
	}
	user, ok := m.store.GetUser(claims.UserID)
	if !ok {
		return models.User{}, TokenPair{}, ErrUserNotFound
	}
	presentedHash, err := HashRefreshToken(token)
	if err != nil {
		return models.User{}, TokenPair{}, err
	}
	pair, newHash, err := m.mintPair(user.ID)
	if err != nil {
		return models.User{}, TokenPair{}, err
	}
	if err := m.store.ReplaceRefreshToken(user.ID, presentedHash, newHash); err != nil {
		return models.User{}, TokenPair{}, err
	}
	return user, pair, nil
}

// VerifyAccess validates an access token and returns its claims.
func (m *SessionManager) VerifyAccess(token string) (Claims, error) {
	return m.issuer.VerifyAccess(token)
}

// Logout clears the stored refresh token for the authenticated user. Clearing
// an already-empty session is not an error; logout is idempotent.
func (m *SessionManager) Logout(userID string) error {
	if userID == "" {
		return ErrUnauthenticated
	}
	return m.store.ClearRefreshToken(userID)
}

func (m *SessionManager) mintPair(userID string) (TokenPair, string, error) {
	access, accessExpiry, err := m.issuer.IssueAccess(userID)
	if err != nil {
		return TokenPair{}, "", err
	}
	refresh, refreshExpiry, err := m.issuer.IssueRefresh(userID)
	if err != nil {
		return TokenPair{}, "", err
	}
	hash, err := HashRefreshToken(refresh)
	if err != nil {
		return TokenPair{}, "", err
	}
	return TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExpiry,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExpiry,
	}, hash, nil
}
