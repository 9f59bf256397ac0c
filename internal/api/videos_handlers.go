package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"cliphive/internal/models"
	"cliphive/internal/observability/logging"
	"cliphive/internal/storage"
)

// videoResponse decorates a video with its like context for the viewer.
type videoResponse struct {
	models.Video
	LikeCount int  `json:"likeCount"`
	Liked     bool `json:"liked"`
}

func (h *Handler) newVideoResponse(video models.Video, viewerID string) videoResponse {
	resp := videoResponse{
		Video:     video,
		LikeCount: h.Store.CountLikes(models.LikeTargetVideo, video.ID),
	}
	if viewerID != "" {
		resp.Liked = h.Store.HasLiked(models.LikeTargetVideo, video.ID, viewerID)
	}
	return resp
}

// HandleVideos routes /api/videos and /api/videos/{id}/*.
func (h *Handler) HandleVideos(w http.ResponseWriter, r *http.Request) {
	videoID, rest := shiftPath(strings.TrimPrefix(r.URL.Path, "/api/videos"))
	if videoID == "" {
		h.handleVideoCollection(w, r)
		return
	}
	switch rest {
	case "":
		h.handleVideoByID(w, r, videoID)
	case "publish":
		h.handleTogglePublish(w, r, videoID)
	case "like":
		h.handleVideoLike(w, r, videoID)
	case "comments":
		h.handleVideoComments(w, r, videoID)
	default:
		notFound(w)
	}
}

func (h *Handler) handleVideoCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleListVideos(w, r)
	case http.MethodPost:
		h.handleCreateVideo(w, r)
	default:
		methodNotAllowed(w)
	}
}

func parseQueryInt(r *http.Request, key string) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return 0
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return parsed
}

func (h *Handler) handleListVideos(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	params := storage.ListVideosParams{
		Page:     parseQueryInt(r, "page"),
		Limit:    parseQueryInt(r, "limit"),
		Query:    query.Get("query"),
		SortBy:   query.Get("sortBy"),
		SortType: query.Get("sortType"),
		OwnerID:  query.Get("userId"),
	}
	page := h.Store.ListVideos(params)
	writeJSON(w, http.StatusOK, page, "")
}

type createVideoRequest struct {
	Title           string  `json:"title"`
	Description     string  `json:"description"`
	VideoURL        string  `json:"videoUrl"`
	ThumbnailURL    string  `json:"thumbnailUrl"`
	DurationSeconds float64 `json:"durationSeconds"`
}

func (h *Handler) handleCreateVideo(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var req createVideoRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Title == "" || req.VideoURL == "" {
		writeError(w, http.StatusBadRequest, errors.New("title and videoUrl are required"))
		return
	}
	video, err := h.Store.CreateVideo(storage.CreateVideoParams{
		OwnerID:         user.ID,
		Title:           req.Title,
		Description:     req.Description,
		VideoURL:        req.VideoURL,
		ThumbnailURL:    req.ThumbnailURL,
		DurationSeconds: req.DurationSeconds,
	})
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.newVideoResponse(video, user.ID), "video created")
}

type updateVideoRequest struct {
	Title        *string `json:"title"`
	Description  *string `json:"description"`
	ThumbnailURL *string `json:"thumbnailUrl"`
}

func (h *Handler) handleVideoByID(w http.ResponseWriter, r *http.Request, videoID string) {
	switch r.Method {
	case http.MethodGet:
		h.handleGetVideo(w, r, videoID)
	case http.MethodPatch, http.MethodDelete:
		user, ok := h.requireUser(w, r)
		if !ok {
			return
		}
		video, found := h.Store.GetVideo(videoID)
		if !found {
			notFound(w)
			return
		}
		if video.OwnerID != user.ID {
			writeError(w, http.StatusForbidden, errors.New("only the owner may modify this video"))
			return
		}
		if r.Method == http.MethodDelete {
			if err := h.Store.DeleteVideo(videoID); err != nil {
				writeStorageError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, nil, "video deleted")
			return
		}
		var req updateVideoRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		updated, err := h.Store.UpdateVideo(videoID, storage.VideoUpdate{
			Title:        req.Title,
			Description:  req.Description,
			ThumbnailURL: req.ThumbnailURL,
		})
		if err != nil {
			writeStorageError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, h.newVideoResponse(updated, user.ID), "video updated")
	default:
		methodNotAllowed(w)
	}
}

// handleGetVideo serves a single video. Each fetch counts a view, and
// authenticated viewers get a watch history entry.
func (h *Handler) handleGetVideo(w http.ResponseWriter, r *http.Request, videoID string) {
	video, found := h.Store.GetVideo(videoID)
	if !found {
		notFound(w)
		return
	}
	viewer, authed := h.optionalUser(r)
	if !video.Published && (!authed || viewer.ID != video.OwnerID) {
		notFound(w)
		return
	}
	updated, err := h.Store.IncrementViews(videoID)
	if err == nil {
		video = updated
	}
	h.recorder().ObserveVideoView()
	viewerID := ""
	if authed {
		viewerID = viewer.ID
		if err := h.Store.RecordWatchEvent(viewer.ID, videoID); err != nil {
			// History is best effort; serving the video still succeeds.
			logger := logging.LoggerFromContext(r.Context())
			if logger == nil {
				logger = slog.Default()
			}
			logger.Warn("failed to record watch event", "videoId", videoID, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, h.newVideoResponse(video, viewerID), "")
}

func (h *Handler) handleTogglePublish(w http.ResponseWriter, r *http.Request, videoID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	video, found := h.Store.GetVideo(videoID)
	if !found {
		notFound(w)
		return
	}
	if video.OwnerID != user.ID {
		writeError(w, http.StatusForbidden, errors.New("only the owner may publish this video"))
		return
	}
	updated, err := h.Store.TogglePublish(videoID)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.newVideoResponse(updated, user.ID), "publish state toggled")
}

func (h *Handler) handleVideoLike(w http.ResponseWriter, r *http.Request, videoID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	h.handleToggleLike(w, r, models.LikeTargetVideo, videoID)
}

func (h *Handler) handleVideoComments(w http.ResponseWriter, r *http.Request, videoID string) {
	if _, found := h.Store.GetVideo(videoID); !found {
		notFound(w)
		return
	}
	switch r.Method {
	case http.MethodGet:
		limit := parseQueryInt(r, "limit")
		comments, err := h.Store.ListComments(videoID, limit)
		if err != nil {
			writeStorageError(w, err)
			return
		}
		viewerID := ""
		if viewer, ok := h.optionalUser(r); ok {
			viewerID = viewer.ID
		}
		responses := make([]commentResponse, 0, len(comments))
		for _, comment := range comments {
			responses = append(responses, h.newCommentResponse(comment, viewerID))
		}
		writeJSON(w, http.StatusOK, responses, "")
	case http.MethodPost:
		user, ok := h.requireUser(w, r)
		if !ok {
			return
		}
		var req contentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		comment, err := h.Store.CreateComment(videoID, user.ID, req.Content)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		h.recorder().ObserveEngagement("comment")
		writeJSON(w, http.StatusCreated, h.newCommentResponse(comment, user.ID), "comment created")
	default:
		methodNotAllowed(w)
	}
}
