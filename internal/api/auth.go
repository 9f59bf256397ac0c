package api

import (
	"context"
	"net/http"
	"strings"

	"cliphive/internal/auth"
	"cliphive/internal/models"
)

type contextKey string

const userContextKey contextKey = "cliphive.user"

// ContextWithUser stores the authenticated account on the request context.
func ContextWithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext retrieves the authenticated account, if any.
func UserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(userContextKey).(models.User)
	return user, ok
}

// ExtractAccessToken pulls the access token from the Authorization header or
// the session cookie. The header wins when both are present.
func ExtractAccessToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if cookie, err := r.Cookie(AccessCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// AuthenticateRequest resolves the access token on the request to an account.
func (h *Handler) AuthenticateRequest(r *http.Request) (models.User, error) {
	token := ExtractAccessToken(r)
	if token == "" {
		return models.User{}, auth.ErrUnauthenticated
	}
	claims, err := h.Sessions.VerifyAccess(token)
	if err != nil {
		return models.User{}, err
	}
	user, ok := h.Store.GetUser(claims.UserID)
	if !ok {
		return models.User{}, auth.ErrUnauthenticated
	}
	return user, nil
}

// requireUser returns the authenticated account or writes a 401 and reports
// failure.
func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	if user, ok := UserFromContext(r.Context()); ok {
		return user, true
	}
	user, err := h.AuthenticateRequest(r)
	if err != nil {
		writeStorageError(w, err)
		return models.User{}, false
	}
	return user, true
}

// optionalUser resolves the viewer when credentials are present, without
// failing the request when they are not.
func (h *Handler) optionalUser(r *http.Request) (models.User, bool) {
	if user, ok := UserFromContext(r.Context()); ok {
		return user, true
	}
	user, err := h.AuthenticateRequest(r)
	if err != nil {
		return models.User{}, false
	}
	return user, true
}
