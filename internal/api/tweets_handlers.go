package api

import (
	"errors"
	"net/http"
	"strings"

	"cliphive/internal/models"
)

type tweetResponse struct {
	models.Tweet
	LikeCount int  `json:"likeCount"`
	Liked     bool `json:"liked"`
}

func (h *Handler) newTweetResponse(tweet models.Tweet, viewerID string) tweetResponse {
	resp := tweetResponse{
		Tweet:     tweet,
		LikeCount: h.Store.CountLikes(models.LikeTargetTweet, tweet.ID),
	}
	if viewerID != "" {
		resp.Liked = h.Store.HasLiked(models.LikeTargetTweet, tweet.ID, viewerID)
	}
	return resp
}

// HandleTweets routes /api/tweets, /api/tweets/{id}, and /api/tweets/{id}/like.
func (h *Handler) HandleTweets(w http.ResponseWriter, r *http.Request) {
	tweetID, rest := shiftPath(strings.TrimPrefix(r.URL.Path, "/api/tweets"))
	if tweetID == "" {
		h.handleTweetCollection(w, r)
		return
	}
	if rest == "like" {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		h.handleToggleLike(w, r, models.LikeTargetTweet, tweetID)
		return
	}
	if rest != "" {
		notFound(w)
		return
	}
	h.handleTweetByID(w, r, tweetID)
}

func (h *Handler) handleTweetCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		ownerID := r.URL.Query().Get("userId")
		tweets := h.Store.ListTweets(ownerID)
		viewerID := ""
		if viewer, ok := h.optionalUser(r); ok {
			viewerID = viewer.ID
		}
		responses := make([]tweetResponse, 0, len(tweets))
		for _, tweet := range tweets {
			responses = append(responses, h.newTweetResponse(tweet, viewerID))
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
		tweet, err := h.Store.CreateTweet(user.ID, req.Content)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		h.recorder().ObserveEngagement("tweet")
		writeJSON(w, http.StatusCreated, h.newTweetResponse(tweet, user.ID), "tweet created")
	default:
		methodNotAllowed(w)
	}
}

func (h *Handler) handleTweetByID(w http.ResponseWriter, r *http.Request, tweetID string) {
	if r.Method == http.MethodGet {
		tweet, found := h.Store.GetTweet(tweetID)
		if !found {
			notFound(w)
			return
		}
		viewerID := ""
		if viewer, ok := h.optionalUser(r); ok {
			viewerID = viewer.ID
		}
		writeJSON(w, http.StatusOK, h.newTweetResponse(tweet, viewerID), "")
		return
	}

	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	tweet, found := h.Store.GetTweet(tweetID)
	if !found {
		notFound(w)
		return
	}
	if tweet.OwnerID != user.ID {
		writeError(w, http.StatusForbidden, errors.New("only the author may modify this tweet"))
		return
	}
	switch r.Method {
	case http.MethodPatch:
		var req contentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		updated, err := h.Store.UpdateTweet(tweetID, req.Content)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, h.newTweetResponse(updated, user.ID), "tweet updated")
	case http.MethodDelete:
		if err := h.Store.DeleteTweet(tweetID); err != nil {
			writeStorageError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, nil, "tweet deleted")
	default:
		methodNotAllowed(w)
	}
}
