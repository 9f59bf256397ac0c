package api

import (
	"net/http"
	"strings"
)

// HandleChannels routes /api/channels/{username}[ /subscribe | /subscribers ].
func (h *Handler) HandleChannels(w http.ResponseWriter, r *http.Request) {
	username, rest := shiftPath(strings.TrimPrefix(r.URL.Path, "/api/channels"))
	if username == "" {
		notFound(w)
		return
	}
	channel, ok := h.Store.FindUserByUsername(username)
	if !ok {
		notFound(w)
		return
	}
	switch rest {
	case "":
		h.handleChannelProfile(w, r, channel.ID)
	case "subscribe":
		h.handleSubscribe(w, r, channel.ID)
	case "subscribers":
		h.handleSubscribers(w, r, channel.ID)
	default:
		notFound(w)
	}
}

func (h *Handler) handleChannelProfile(w http.ResponseWriter, r *http.Request, channelID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	channel, ok := h.Store.GetUser(channelID)
	if !ok {
		notFound(w)
		return
	}
	resp := channelResponse{
		ID:              channel.ID,
		Username:        channel.Username,
		FullName:        channel.FullName,
		AvatarURL:       channel.AvatarURL,
		CoverImageURL:   channel.CoverImageURL,
		CreatedAt:       channel.CreatedAt,
		SubscriberCount: h.Store.CountSubscribers(channel.ID),
	}
	if viewer, ok := h.optionalUser(r); ok {
		resp.Subscribed = h.Store.IsSubscribed(viewer.ID, channel.ID)
	}
	writeJSON(w, http.StatusOK, resp, "")
}

func (h *Handler) handleSubscribe(w http.ResponseWriter, r *http.Request, channelID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	subscribed, err := h.Store.ToggleSubscription(user.ID, channelID)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	h.recorder().ObserveEngagement("subscription")
	message := "unsubscribed"
	if subscribed {
		message = "subscribed"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"subscribed":      subscribed,
		"subscriberCount": h.Store.CountSubscribers(channelID),
	}, message)
}

func (h *Handler) handleSubscribers(w http.ResponseWriter, r *http.Request, channelID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	subscribers := h.Store.ListSubscribers(channelID)
	responses := make([]userResponse, 0, len(subscribers))
	for _, subscriber := range subscribers {
		responses = append(responses, newUserResponse(subscriber))
	}
	writeJSON(w, http.StatusOK, responses, "")
}
