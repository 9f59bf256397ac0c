package api

import (
	"errors"
	"net/http"
	"strings"

	"cliphive/internal/models"
)

// contentRequest covers every body that carries a single text field.
type contentRequest struct {
	Content string `json:"content"`
}

type commentResponse struct {
	models.Comment
	LikeCount int  `json:"likeCount"`
	Liked     bool `json:"liked"`
}

func (h *Handler) newCommentResponse(comment models.Comment, viewerID string) commentResponse {
	resp := commentResponse{
		Comment:   comment,
		LikeCount: h.Store.CountLikes(models.LikeTargetComment, comment.ID),
	}
	if viewerID != "" {
		resp.Liked = h.Store.HasLiked(models.LikeTargetComment, comment.ID, viewerID)
	}
	return resp
}

// HandleComments routes /api/comments/{id}[ /like ].
func (h *Handler) HandleComments(w http.ResponseWriter, r *http.Request) {
	commentID, rest := shiftPath(strings.TrimPrefix(r.URL.Path, "/api/comments"))
	if commentID == "" {
		notFound(w)
		return
	}
	if rest == "like" {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		h.handleToggleLike(w, r, models.LikeTargetComment, commentID)
		return
	}
	if rest != "" {
		notFound(w)
		return
	}

	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	comment, found := h.Store.GetComment(commentID)
	if !found {
		notFound(w)
		return
	}
	if comment.OwnerID != user.ID {
		writeError(w, http.StatusForbidden, errors.New("only the author may modify this comment"))
		return
	}
	switch r.Method {
	case http.MethodPatch:
		var req contentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		updated, err := h.Store.UpdateComment(commentID, req.Content)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, h.newCommentResponse(updated, user.ID), "comment updated")
	case http.MethodDelete:
		if err := h.Store.DeleteComment(commentID); err != nil {
			writeStorageError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, nil, "comment deleted")
	default:
		methodNotAllowed(w)
	}
}
