package api

import (
	"net/http"
	"strings"
)

// HandleDashboard routes /api/dashboard/{stats,videos}, the owner-facing
// channel views.
func (h *Handler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	section, rest := shiftPath(strings.TrimPrefix(r.URL.Path, "/api/dashboard"))
	if rest != "" {
		notFound(w)
		return
	}
	switch section {
	case "stats":
		stats, err := h.Store.ChannelStats(user.ID)
		if err != nil {
			writeStorageError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, stats, "")
	case "videos":
		videos, err := h.Store.ListChannelVideos(user.ID)
		if err != nil {
			writeStorageError(w, err)
			return
		}
		responses := make([]videoResponse, 0, len(videos))
		for _, video := range videos {
			responses = append(responses, h.newVideoResponse(video, user.ID))
		}
		writeJSON(w, http.StatusOK, responses, "")
	default:
		notFound(w)
	}
}
