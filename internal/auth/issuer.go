package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrTokenInvalid is returned when a token fails signature or structural
	// validation, including tokens signed with the wrong class secret.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired is returned when a structurally valid token is past its
	// expiry.
	ErrTokenExpired = errors.New("token expired")
)

const (
	// DefaultAccessTTL bounds the window an access token authorises requests.
	DefaultAccessTTL = 15 * time.Minute
	// DefaultRefreshTTL bounds how long a session can be renewed without a
	// fresh login.
	DefaultRefreshTTL = 240 * time.Hour
)

// IssuerConfig carries the secrets and lifetimes for both token classes.
// Secrets are injected by the caller; the issuer never reads the environment.
type IssuerConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// Issuer mints and verifies signed access and refresh tokens. The two classes
// use distinct secrets so a refresh token can never be replayed as an access
// token or vice versa. Issuance and verification are pure functions of the
// token, the configured secret, and the clock.
type Issuer struct {
	cfg IssuerConfig
	now func() time.Time
}

// Claims is the verified identity extracted from a token.
type Claims struct {
	UserID    string
	TokenID   string
	ExpiresAt time.Time
}

type tokenClaims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// NewIssuer validates the configuration and constructs an Issuer. Both secrets
// are required and must differ; zero TTLs fall back to the package defaults.
func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	if len(cfg.AccessSecret) == 0 {
		return nil, errors.New("access token secret is required")
	}
	if len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("refresh token secret is required")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("access and refresh token secrets must differ")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	return &Issuer{cfg: cfg, now: time.Now}, nil
}

// IssueAccess mints a short-lived access token bound to the user id.
func (i *Issuer) IssueAccess(userID string) (string, time.Time, error) {
	return i.issue(userID, i.cfg.AccessSecret, i.cfg.AccessTTL)
}

// IssueRefresh mints a refresh token bound to the user id. Callers are
// responsible for persisting its hash so rotation can be enforced.
func (i *Issuer) IssueRefresh(userID string) (string, time.Time, error) {
	return i.issue(userID, i.cfg.RefreshSecret, i.cfg.RefreshTTL)
}

// VerifyAccess checks an access token's signature and expiry.
func (i *Issuer) VerifyAccess(token string) (Claims, error) {
	return i.verify(token, i.cfg.AccessSecret)
}

// VerifyRefresh checks a refresh token's signature and expiry.
func (i *Issuer) VerifyRefresh(token string) (Claims, error) {
	return i.verify(token, i.cfg.RefreshSecret)
}

func (i *Issuer) issue(userID string, secret []byte, ttl time.Duration) (string, time.Time, error) {
	trimmed := strings.TrimSpace(userID)
	if trimmed == "" {
		return "", time.Time{}, ErrInvalidUserID
	}
	now := i.now().UTC()
	expiresAt := now.Add(ttl)
	claims := &tokenClaims{
		UserID: trimmed,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   trimmed,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func (i *Issuer) verify(token string, secret []byte) (Claims, error) {
	if strings.TrimSpace(token) == "" {
		return Claims{}, ErrTokenInvalid
	}
	parsed, err := jwt.ParseWithClaims(
		token,
		&tokenClaims{},
		func(*jwt.Token) (interface{}, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid || claims.UserID == "" || claims.ExpiresAt == nil {
		return Claims{}, ErrTokenInvalid
	}
	return Claims{
		UserID:    claims.UserID,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// ErrInvalidUserID is returned when attempting to issue a token without a user
// identifier.
var ErrInvalidUserID = errors.New("userID is required")
