package api

import (
	"errors"
	"net/http"
	"strings"

	"cliphive/internal/models"
	"cliphive/internal/storage"
)

type playlistResponse struct {
	models.Playlist
	Videos []models.Video `json:"videos"`
}

func (h *Handler) newPlaylistResponse(playlist models.Playlist) playlistResponse {
	videos := make([]models.Video, 0, len(playlist.VideoIDs))
	for _, videoID := range playlist.VideoIDs {
		if video, ok := h.Store.GetVideo(videoID); ok {
			videos = append(videos, video)
		}
	}
	return playlistResponse{Playlist: playlist, Videos: videos}
}

// HandlePlaylists routes /api/playlists, /api/playlists/{id}, and
// /api/playlists/{id}/videos/{videoId}.
func (h *Handler) HandlePlaylists(w http.ResponseWriter, r *http.Request) {
	playlistID, rest := shiftPath(strings.TrimPrefix(r.URL.Path, "/api/playlists"))
	if playlistID == "" {
		h.handlePlaylistCollection(w, r)
		return
	}
	if rest == "" {
		h.handlePlaylistByID(w, r, playlistID)
		return
	}
	head, videoID := shiftPath(rest)
	if head != "videos" || videoID == "" || strings.Contains(videoID, "/") {
		notFound(w)
		return
	}
	h.handlePlaylistVideo(w, r, playlistID, videoID)
}

type createPlaylistRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *Handler) handlePlaylistCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		ownerID := r.URL.Query().Get("userId")
		if ownerID == "" {
			user, authed := h.optionalUser(r)
			if !authed {
				writeError(w, http.StatusBadRequest, errors.New("userId is required"))
				return
			}
			ownerID = user.ID
		}
		playlists := h.Store.ListPlaylists(ownerID)
		responses := make([]playlistResponse, 0, len(playlists))
		for _, playlist := range playlists {
			responses = append(responses, h.newPlaylistResponse(playlist))
		}
		writeJSON(w, http.StatusOK, responses, "")
	case http.MethodPost:
		user, ok := h.requireUser(w, r)
		if !ok {
			return
		}
		var req createPlaylistRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		playlist, err := h.Store.CreatePlaylist(user.ID, req.Name, req.Description)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, h.newPlaylistResponse(playlist), "playlist created")
	default:
		methodNotAllowed(w)
	}
}

type updatePlaylistRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (h *Handler) handlePlaylistByID(w http.ResponseWriter, r *http.Request, playlistID string) {
	playlist, found := h.Store.GetPlaylist(playlistID)
	if !found {
		notFound(w)
		return
	}
	if r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, h.newPlaylistResponse(playlist), "")
		return
	}

	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	if playlist.OwnerID != user.ID {
		writeError(w, http.StatusForbidden, errors.New("only the owner may modify this playlist"))
		return
	}
	switch r.Method {
	case http.MethodPatch:
		var req updatePlaylistRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		updated, err := h.Store.UpdatePlaylist(playlistID, storage.PlaylistUpdate{
			Name:        req.Name,
			Description: req.Description,
		})
		if err != nil {
			writeStorageError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, h.newPlaylistResponse(updated), "playlist updated")
	case http.MethodDelete:
		if err := h.Store.DeletePlaylist(playlistID); err != nil {
			writeStorageError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, nil, "playlist deleted")
	default:
		methodNotAllowed(w)
	}
}

func (h *Handler) handlePlaylistVideo(w http.ResponseWriter, r *http.Request, playlistID, videoID string) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	playlist, found := h.Store.GetPlaylist(playlistID)
	if !found {
		notFound(w)
		return
	}
	if playlist.OwnerID != user.ID {
		writeError(w, http.StatusForbidden, errors.New("only the owner may modify this playlist"))
		return
	}
	switch r.Method {
	case http.MethodPost:
		updated, err := h.Store.AddVideoToPlaylist(playlistID, videoID)
		if err != nil {
			writeStorageError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, h.newPlaylistResponse(updated), "video added to playlist")
	case http.MethodDelete:
		updated, err := h.Store.RemoveVideoFromPlaylist(playlistID, videoID)
		if err != nil {
			writeStorageError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, h.newPlaylistResponse(updated), "video removed from playlist")
	default:
		methodNotAllowed(w)
	}
}
