package auth

import (
	"errors"
	"testing"
	"time"
)

func newTestIssuer(t *testing.T) *Issuer {
	t.Helper()
	issuer, err := NewIssuer(IssuerConfig{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
	})
	if err != nil {
		t.Fatalf("NewIssuer returned error: %v", err)
	}
	return issuer
}

func TestIssueAndVerifyAccess(t *testing.T) {
	issuer := newTestIssuer(t)
	token, expiresAt, err := issuer.IssueAccess("user-123")
	if err != nil {
		t.Fatalf("IssueAccess returned error: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}
	if expiresAt.Before(time.Now()) {
		t.Fatal("expected expiry in the future")
	}

	claims, err := issuer.VerifyAccess(token)
	if err != nil {
		t.Fatalf("VerifyAccess returned error: %v", err)
	}
	if claims.UserID != "user-123" {
		t.Fatalf("expected user id user-123, got %s", claims.UserID)
	}
	if claims.TokenID == "" {
		t.Fatal("expected token id claim")
	}
	if claims.ExpiresAt.IsZero() {
		t.Fatal("expected expiry claim")
	}
}

func TestVerifyRejectsCrossClassTokens(t *testing.T) {
	issuer := newTestIssuer(t)
	access, _, err := issuer.IssueAccess("user-123")
	if err != nil {
		t.Fatalf("IssueAccess returned error: %v", err)
	}
	refresh, _, err := issuer.IssueRefresh("user-123")
	if err != nil {
		t.Fatalf("IssueRefresh returned error: %v", err)
	}
	if _, err := issuer.VerifyRefresh(access); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for access token, got %v", err)
	}
	if _, err := issuer.VerifyAccess(refresh); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for refresh token, got %v", err)
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	issuer := newTestIssuer(t)
	token, _, err := issuer.IssueAccess("user-123")
	if err != nil {
		t.Fatalf("IssueAccess returned error: %v", err)
	}
	issuer.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := issuer.VerifyAccess(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	issuer := newTestIssuer(t)
	token, _, err := issuer.IssueAccess("user-123")
	if err != nil {
		t.Fatalf("IssueAccess returned error: %v", err)
	}
	tampered := token[:len(token)-2] + "xx"
	if _, err := issuer.VerifyAccess(tampered); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
	if _, err := issuer.VerifyAccess(""); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for empty token, got %v", err)
	}
}

func TestIssueRequiresUserID(t *testing.T) {
	issuer := newTestIssuer(t)
	if _, _, err := issuer.IssueAccess(""); err == nil {
		t.Fatal("expected error for empty user id")
	}
	if _, _, err := issuer.IssueRefresh("   "); err == nil {
		t.Fatal("expected error for blank user id")
	}
}

func TestNewIssuerValidatesConfig(t *testing.T) {
	if _, err := NewIssuer(IssuerConfig{RefreshSecret: []byte("r")}); err == nil {
		t.Fatal("expected error for missing access secret")
	}
	if _, err := NewIssuer(IssuerConfig{AccessSecret: []byte("a")}); err == nil {
		t.Fatal("expected error for missing refresh secret")
	}
	if _, err := NewIssuer(IssuerConfig{AccessSecret: []byte("same"), RefreshSecret: []byte("same")}); err == nil {
		t.Fatal("expected error for identical secrets")
	}
}
