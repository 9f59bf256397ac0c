package api

import (
	"net/http"
	"strings"
	"time"
)

const (
	// AccessCookieName carries the short-lived access token.
	AccessCookieName = "cliphive_access"
	// RefreshCookieName carries the long-lived refresh token.
	RefreshCookieName = "cliphive_refresh"
)

// CookieSecureMode controls when the Secure attribute is set on session
// cookies.
type CookieSecureMode string

const (
	// CookieSecureAuto marks cookies Secure only when the request arrived
	// over TLS (directly or via X-Forwarded-Proto).
	CookieSecureAuto CookieSecureMode = "auto"
	// CookieSecureAlways marks cookies Secure unconditionally.
	CookieSecureAlways CookieSecureMode = "always"
)

// CookiePolicy describes how session cookies are issued.
type CookiePolicy struct {
	SameSite   http.SameSite
	SecureMode CookieSecureMode
}

// DefaultCookiePolicy uses strict same-site cookies and TLS-sensing Secure.
func DefaultCookiePolicy() CookiePolicy {
	return CookiePolicy{
		SameSite:   http.SameSiteStrictMode,
		SecureMode: CookieSecureAuto,
	}
}

func (p CookiePolicy) secure(r *http.Request) bool {
	if p.SecureMode == CookieSecureAlways {
		return true
	}
	return isSecureRequest(r)
}

func isSecureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	proto := r.Header.Get("X-Forwarded-Proto")
	if proto == "" {
		return false
	}
	if i := strings.IndexByte(proto, ','); i >= 0 {
		proto = proto[:i]
	}
	return strings.EqualFold(strings.TrimSpace(proto), "https")
}

func (h *Handler) setSessionCookies(w http.ResponseWriter, r *http.Request, access, refresh string, accessExpiry, refreshExpiry time.Time) {
	secure := h.Cookies.secure(r)
	http.SetCookie(w, &http.Cookie{
		Name:     AccessCookieName,
		Value:    access,
		Path:     "/",
		Expires:  accessExpiry,
		HttpOnly: true,
		Secure:   secure,
		SameSite: h.Cookies.SameSite,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    refresh,
		Path:     "/",
		Expires:  refreshExpiry,
		HttpOnly: true,
		Secure:   secure,
		SameSite: h.Cookies.SameSite,
	})
}

func (h *Handler) clearSessionCookies(w http.ResponseWriter, r *http.Request) {
	secure := h.Cookies.secure(r)
	for _, name := range []string{AccessCookieName, RefreshCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   secure,
			SameSite: h.Cookies.SameSite,
		})
	}
}
