package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"cliphive/internal/auth"
	"cliphive/internal/models"
	"cliphive/internal/observability/metrics"
	"cliphive/internal/storage"
)

// Handler exposes the HTTP API over a repository and a session manager.
type Handler struct {
	Store    storage.Repository
	Sessions *auth.SessionManager
	Cookies  CookiePolicy
	Metrics  *metrics.Recorder
}

// NewHandler constructs an API handler with the default cookie policy.
func NewHandler(store storage.Repository, sessions *auth.SessionManager) *Handler {
	return &Handler{
		Store:    store,
		Sessions: sessions,
		Cookies:  DefaultCookiePolicy(),
		Metrics:  metrics.Default(),
	}
}

func (h *Handler) recorder() *metrics.Recorder {
	if h.Metrics != nil {
		return h.Metrics
	}
	return metrics.Default()
}

// userResponse is the wire representation of an account. Credential material
// never leaves the storage layer.
type userResponse struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	FullName      string    `json:"fullName"`
	AvatarURL     string    `json:"avatarUrl,omitempty"`
	CoverImageURL string    `json:"coverImageUrl,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

func newUserResponse(user models.User) userResponse {
	return userResponse{
		ID:            user.ID,
		Username:      user.Username,
		Email:         user.Email,
		FullName:      user.FullName,
		AvatarURL:     user.AvatarURL,
		CoverImageURL: user.CoverImageURL,
		CreatedAt:     user.CreatedAt,
	}
}

// channelResponse is the public profile for a channel page. It omits the
// email address and carries subscription context for the viewer.
type channelResponse struct {
	ID              string    `json:"id"`
	Username        string    `json:"username"`
	FullName        string    `json:"fullName"`
	AvatarURL       string    `json:"avatarUrl,omitempty"`
	CoverImageURL   string    `json:"coverImageUrl,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	SubscriberCount int       `json:"subscriberCount"`
	Subscribed      bool      `json:"subscribed"`
}

type sessionResponse struct {
	User             userResponse `json:"user"`
	AccessToken      string       `json:"accessToken"`
	AccessExpiresAt  time.Time    `json:"accessExpiresAt"`
	RefreshToken     string       `json:"refreshToken"`
	RefreshExpiresAt time.Time    `json:"refreshExpiresAt"`
}

func newSessionResponse(user models.User, pair auth.TokenPair) sessionResponse {
	return sessionResponse{
		User:             newUserResponse(user),
		AccessToken:      pair.AccessToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshToken:     pair.RefreshToken,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}
}

// writeStorageError maps repository and session errors onto API status codes.
func writeStorageError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrUserNotFound),
		errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrUnauthenticated),
		errors.Is(err, auth.ErrTokenInvalid),
		errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, auth.ErrRefreshTokenMismatch):
		writeError(w, http.StatusUnauthorized, err)
	case errors.Is(err, storage.ErrUsernameTaken),
		errors.Is(err, storage.ErrEmailTaken):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, storage.ErrSelfSubscription),
		errors.Is(err, storage.ErrVideoAlreadyInPlaylist):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, storage.ErrPostgresUnavailable):
		writeError(w, http.StatusNotImplemented, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

// shiftPath splits the first path segment from the remainder. Both results
// come back without leading slashes.
func shiftPath(p string) (head, rest string) {
	p = strings.TrimPrefix(p, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		return p[:i], p[i+1:]
	}
	return p, ""
}

func notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, errors.New("resource not found"))
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}
