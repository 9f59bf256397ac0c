package api

import (
	"net/http"
	"strings"

	"cliphive/internal/models"
)

// handleToggleLike flips the viewer's like on any likeable resource.
func (h *Handler) handleToggleLike(w http.ResponseWriter, r *http.Request, target models.LikeTarget, targetID string) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	liked, err := h.Store.ToggleLike(target, targetID, user.ID)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	h.recorder().ObserveEngagement("like")
	message := "like removed"
	if liked {
		message = "liked"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"liked":     liked,
		"likeCount": h.Store.CountLikes(target, targetID),
	}, message)
}

// HandleLikes routes /api/likes/videos, the viewer's liked-video feed.
func (h *Handler) HandleLikes(w http.ResponseWriter, r *http.Request) {
	head, rest := shiftPath(strings.TrimPrefix(r.URL.Path, "/api/likes"))
	if head != "videos" || rest != "" {
		notFound(w)
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	videos := h.Store.ListLikedVideos(user.ID)
	responses := make([]videoResponse, 0, len(videos))
	for _, video := range videos {
		responses = append(responses, h.newVideoResponse(video, user.ID))
	}
	writeJSON(w, http.StatusOK, responses, "")
}
