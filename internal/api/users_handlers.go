package api

import (
	"net/http"
	"strings"
	"time"

	"cliphive/internal/models"
	"cliphive/internal/storage"
)

// HandleUsers routes /api/users/* requests. Everything under this prefix is
// scoped to the authenticated account.
func (h *Handler) HandleUsers(w http.ResponseWriter, r *http.Request) {
	head, rest := shiftPath(strings.TrimPrefix(r.URL.Path, "/api/users"))
	if head != "me" {
		notFound(w)
		return
	}
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	switch rest {
	case "":
		h.handleMe(w, r, user)
	case "history":
		h.handleWatchHistory(w, r, user)
	case "subscriptions":
		h.handleSubscriptions(w, r, user)
	default:
		notFound(w)
	}
}

type updateProfileRequest struct {
	FullName      *string `json:"fullName"`
	Email         *string `json:"email"`
	AvatarURL     *string `json:"avatarUrl"`
	CoverImageURL *string `json:"coverImageUrl"`
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request, user models.User) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, newUserResponse(user), "")
	case http.MethodPatch:
		var req updateProfileRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		updated, err := h.Store.UpdateUser(user.ID, storage.UserUpdate{
			FullName:      req.FullName,
			Email:         req.Email,
			AvatarURL:     req.AvatarURL,
			CoverImageURL: req.CoverImageURL,
		})
		if err != nil {
			writeStorageError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newUserResponse(updated), "profile updated")
	default:
		methodNotAllowed(w)
	}
}

type watchHistoryEntry struct {
	Video     models.Video `json:"video"`
	WatchedAt time.Time    `json:"watchedAt"`
}

func (h *Handler) handleWatchHistory(w http.ResponseWriter, r *http.Request, user models.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	events := h.Store.WatchHistory(user.ID)
	entries := make([]watchHistoryEntry, 0, len(events))
	for _, event := range events {
		video, ok := h.Store.GetVideo(event.VideoID)
		if !ok {
			continue
		}
		entries = append(entries, watchHistoryEntry{
			Video:     video,
			WatchedAt: event.WatchedAt,
		})
	}
	writeJSON(w, http.StatusOK, entries, "")
}

func (h *Handler) handleSubscriptions(w http.ResponseWriter, r *http.Request, user models.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	channels := h.Store.ListSubscribedChannels(user.ID)
	responses := make([]userResponse, 0, len(channels))
	for _, channel := range channels {
		responses = append(responses, newUserResponse(channel))
	}
	writeJSON(w, http.StatusOK, responses, "")
}
