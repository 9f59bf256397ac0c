package api

import (
	"errors"
	"net/http"
	"strings"

	"cliphive/internal/storage"
)

// HandleAuth routes /api/auth/* requests.
func (h *Handler) HandleAuth(w http.ResponseWriter, r *http.Request) {
	action, rest := shiftPath(strings.TrimPrefix(r.URL.Path, "/api/auth"))
	if rest != "" {
		notFound(w)
		return
	}
	switch action {
	case "register":
		h.handleRegister(w, r)
	case "login":
		h.handleLogin(w, r)
	case "refresh":
		h.handleRefresh(w, r)
	case "logout":
		h.handleLogout(w, r)
	case "session":
		h.handleSession(w, r)
	case "password":
		h.handleChangePassword(w, r)
	default:
		notFound(w)
	}
}

type registerRequest struct {
	Username      string `json:"username"`
	Email         string `json:"email"`
	FullName      string `json:"fullName"`
	Password      string `json:"password"`
	AvatarURL     string `json:"avatarUrl"`
	CoverImageURL string `json:"coverImageUrl"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	user, err := h.Store.CreateUser(storage.CreateUserParams{
		Username:      req.Username,
		Email:         req.Email,
		FullName:      req.FullName,
		Password:      req.Password,
		AvatarURL:     req.AvatarURL,
		CoverImageURL: req.CoverImageURL,
	})
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newUserResponse(user), "account created")
}

// loginRequest accepts either a combined identifier or the older explicit
// username/email fields. The identifier resolves as username-or-email.
type loginRequest struct {
	Identifier string `json:"identifier"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	identifier := req.Identifier
	if identifier == "" {
		identifier = req.Username
	}
	if identifier == "" {
		identifier = req.Email
	}
	if identifier == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, errors.New("identifier and password are required"))
		return
	}
	user, pair, err := h.Sessions.Login(identifier, req.Password)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	h.setSessionCookies(w, r, pair.AccessToken, pair.RefreshToken, pair.AccessExpiresAt, pair.RefreshExpiresAt)
	h.recorder().SessionStarted("login")
	writeJSON(w, http.StatusOK, newSessionResponse(user, pair), "logged in")
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	token := ""
	if cookie, err := r.Cookie(RefreshCookieName); err == nil {
		token = cookie.Value
	}
	if token == "" {
		var req refreshRequest
		if err := decodeJSON(r, &req); err == nil {
			token = req.RefreshToken
		}
	}
	if token == "" {
		writeError(w, http.StatusUnauthorized, errors.New("refresh token is required"))
		return
	}
	user, pair, err := h.Sessions.Refresh(token)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	h.setSessionCookies(w, r, pair.AccessToken, pair.RefreshToken, pair.AccessExpiresAt, pair.RefreshExpiresAt)
	h.recorder().SessionStarted("refresh")
	writeJSON(w, http.StatusOK, newSessionResponse(user, pair), "session refreshed")
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	if err := h.Sessions.Logout(user.ID); err != nil {
		writeStorageError(w, err)
		return
	}
	h.clearSessionCookies(w, r)
	h.recorder().SessionEnded()
	writeJSON(w, http.StatusOK, nil, "logged out")
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user), "")
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, errors.New("newPassword is required"))
		return
	}
	if err := h.Store.ChangePassword(user.ID, req.CurrentPassword, req.NewPassword); err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil, "password changed")
}
