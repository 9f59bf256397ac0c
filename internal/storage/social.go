package storage

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cliphive/internal/auth"
	"cliphive/internal/models"
)

const (
	maxCommentLength = 500
	maxTweetLength   = 280
)

var ErrSelfSubscription = errors.New("cannot subscribe to own channel")

// Comment operations

func (s *Storage) CreateComment(videoID, ownerID, content string) (models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Videos[videoID]; !ok {
		return models.Comment{}, fmt.Errorf("video %s: %w", videoID, ErrNotFound)
	}
	if _, ok := s.data.Users[ownerID]; !ok {
		return models.Comment{}, auth.ErrUserNotFound
	}
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return models.Comment{}, errors.New("comment content cannot be empty")
	}
	if len([]rune(trimmed)) > maxCommentLength {
		return models.Comment{}, fmt.Errorf("comment content exceeds %d characters", maxCommentLength)
	}

	id, err := generateID()
	if err != nil {
		return models.Comment{}, err
	}

	now := time.Now().UTC()
	comment := models.Comment{
		ID:        id,
		VideoID:   videoID,
		OwnerID:   ownerID,
		Content:   trimmed,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.data.Comments[id] = comment
	if err := s.persist(); err != nil {
		delete(s.data.Comments, id)
		return models.Comment{}, err
	}

	return comment, nil
}

func (s *Storage) GetComment(id string) (models.Comment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	comment, ok := s.data.Comments[id]
	return comment, ok
}

// ListComments returns a video's comments ordered newest first.
func (s *Storage) ListComments(videoID string, limit int) ([]models.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.data.Videos[videoID]; !ok {
		return nil, fmt.Errorf("video %s: %w", videoID, ErrNotFound)
	}

	comments := make([]models.Comment, 0)
	for _, comment := range s.data.Comments {
		if comment.VideoID == videoID {
			comments = append(comments, comment)
		}
	}
	sort.Slice(comments, func(i, j int) bool {
		if comments[i].CreatedAt.Equal(comments[j].CreatedAt) {
			return comments[i].ID < comments[j].ID
		}
		return comments[i].CreatedAt.After(comments[j].CreatedAt)
	})
	if limit > 0 && len(comments) > limit {
		comments = comments[:limit]
	}
	return comments, nil
}

func (s *Storage) UpdateComment(id, content string) (models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	comment, ok := s.data.Comments[id]
	if !ok {
		return models.Comment{}, fmt.Errorf("comment %s: %w", id, ErrNotFound)
	}
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return models.Comment{}, errors.New("comment content cannot be empty")
	}
	if len([]rune(trimmed)) > maxCommentLength {
		return models.Comment{}, fmt.Errorf("comment content exceeds %d characters", maxCommentLength)
	}

	previous := comment
	comment.Content = trimmed
	comment.UpdatedAt = time.Now().UTC()
	s.data.Comments[id] = comment
	if err := s.persist(); err != nil {
		s.data.Comments[id] = previous
		return models.Comment{}, err
	}
	return comment, nil
}

func (s *Storage) DeleteComment(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)
	if _, ok := updatedData.Comments[id]; !ok {
		return fmt.Errorf("comment %s: %w", id, ErrNotFound)
	}
	delete(updatedData.Comments, id)
	delete(updatedData.CommentLikes, id)

	if err := s.persistDataset(updatedData); err != nil {
		return err
	}
	s.data = updatedData
	return nil
}

// Tweet operations

func (s *Storage) CreateTweet(ownerID, content string) (models.Tweet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Users[ownerID]; !ok {
		return models.Tweet{}, auth.ErrUserNotFound
	}
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return models.Tweet{}, errors.New("tweet content cannot be empty")
	}
	if len([]rune(trimmed)) > maxTweetLength {
		return models.Tweet{}, fmt.Errorf("tweet content exceeds %d characters", maxTweetLength)
	}

	id, err := generateID()
	if err != nil {
		return models.Tweet{}, err
	}

	now := time.Now().UTC()
	tweet := models.Tweet{
		ID:        id,
		OwnerID:   ownerID,
		Content:   trimmed,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.data.Tweets[id] = tweet
	if err := s.persist(); err != nil {
		delete(s.data.Tweets, id)
		return models.Tweet{}, err
	}

	return tweet, nil
}

func (s *Storage) GetTweet(id string) (models.Tweet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tweet, ok := s.data.Tweets[id]
	return tweet, ok
}

// ListTweets returns tweets ordered newest first, optionally filtered by owner.
func (s *Storage) ListTweets(ownerID string) []models.Tweet {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tweets := make([]models.Tweet, 0)
	for _, tweet := range s.data.Tweets {
		if ownerID != "" && tweet.OwnerID != ownerID {
			continue
		}
		tweets = append(tweets, tweet)
	}
	sort.Slice(tweets, func(i, j int) bool {
		if tweets[i].CreatedAt.Equal(tweets[j].CreatedAt) {
			return tweets[i].ID < tweets[j].ID
		}
		return tweets[i].CreatedAt.After(tweets[j].CreatedAt)
	})
	return tweets
}

func (s *Storage) UpdateTweet(id, content string) (models.Tweet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tweet, ok := s.data.Tweets[id]
	if !ok {
		return models.Tweet{}, fmt.Errorf("tweet %s: %w", id, ErrNotFound)
	}
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return models.Tweet{}, errors.New("tweet content cannot be empty")
	}
	if len([]rune(trimmed)) > maxTweetLength {
		return models.Tweet{}, fmt.Errorf("tweet content exceeds %d characters", maxTweetLength)
	}

	previous := tweet
	tweet.Content = trimmed
	tweet.UpdatedAt = time.Now().UTC()
	s.data.Tweets[id] = tweet
	if err := s.persist(); err != nil {
		s.data.Tweets[id] = previous
		return models.Tweet{}, err
	}
	return tweet, nil
}

func (s *Storage) DeleteTweet(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)
	if _, ok := updatedData.Tweets[id]; !ok {
		return fmt.Errorf("tweet %s: %w", id, ErrNotFound)
	}
	delete(updatedData.Tweets, id)
	delete(updatedData.TweetLikes, id)

	if err := s.persistDataset(updatedData); err != nil {
		return err
	}
	s.data = updatedData
	return nil
}

// Like operations

func (s *Storage) likeSetLocked(data *dataset, target models.LikeTarget) (map[string]map[string]time.Time, error) {
	switch target {
	case models.LikeTargetVideo:
		return data.VideoLikes, nil
	case models.LikeTargetComment:
		return data.CommentLikes, nil
	case models.LikeTargetTweet:
		return data.TweetLikes, nil
	default:
		return nil, fmt.Errorf("unknown like target %q", target)
	}
}

func (s *Storage) likeTargetExistsLocked(target models.LikeTarget, targetID string) bool {
	switch target {
	case models.LikeTargetVideo:
		_, ok := s.data.Videos[targetID]
		return ok
	case models.LikeTargetComment:
		_, ok := s.data.Comments[targetID]
		return ok
	case models.LikeTargetTweet:
		_, ok := s.data.Tweets[targetID]
		return ok
	default:
		return false
	}
}

// ToggleLike flips the like state for the user on the target and reports the
// resulting state. The operation is idempotent per direction.
func (s *Storage) ToggleLike(target models.LikeTarget, targetID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Users[userID]; !ok {
		return false, auth.ErrUserNotFound
	}
	if !s.likeTargetExistsLocked(target, targetID) {
		return false, fmt.Errorf("%s %s: %w", target, targetID, ErrNotFound)
	}

	updatedData := cloneDataset(s.data)
	likes, err := s.likeSetLocked(&updatedData, target)
	if err != nil {
		return false, err
	}
	entries := likes[targetID]
	if entries == nil {
		entries = make(map[string]time.Time)
	}
	_, liked := entries[userID]
	if liked {
		delete(entries, userID)
	} else {
		entries[userID] = time.Now().UTC()
	}
	if len(entries) == 0 {
		delete(likes, targetID)
	} else {
		likes[targetID] = entries
	}

	if err := s.persistDataset(updatedData); err != nil {
		return false, err
	}
	s.data = updatedData
	return !liked, nil
}

// CountLikes returns the number of likes on the target.
func (s *Storage) CountLikes(target models.LikeTarget, targetID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	likes, err := s.likeSetLocked(&s.data, target)
	if err != nil {
		return 0
	}
	return len(likes[targetID])
}

// HasLiked reports whether the user currently likes the target.
func (s *Storage) HasLiked(target models.LikeTarget, targetID, userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	likes, err := s.likeSetLocked(&s.data, target)
	if err != nil {
		return false
	}
	entries := likes[targetID]
	if entries == nil {
		return false
	}
	_, ok := entries[userID]
	return ok
}

// ListLikedVideos returns the published videos the user has liked, most
// recently liked first.
func (s *Storage) ListLikedVideos(userID string) []models.Video {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type pair struct {
		video models.Video
		when  time.Time
	}
	pairs := make([]pair, 0)
	for videoID, entries := range s.data.VideoLikes {
		likedAt, ok := entries[userID]
		if !ok {
			continue
		}
		video, exists := s.data.Videos[videoID]
		if !exists || !video.Published {
			continue
		}
		pairs = append(pairs, pair{video: video, when: likedAt})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].when.Equal(pairs[j].when) {
			return pairs[i].video.ID < pairs[j].video.ID
		}
		return pairs[i].when.After(pairs[j].when)
	})

	videos := make([]models.Video, 0, len(pairs))
	for _, p := range pairs {
		videos = append(videos, p.video)
	}
	return videos
}

// Subscription operations

// ToggleSubscription flips the subscriber's relationship to the channel owner
// and reports the resulting state.
func (s *Storage) ToggleSubscription(subscriberID, channelUserID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Users[subscriberID]; !ok {
		return false, auth.ErrUserNotFound
	}
	if _, ok := s.data.Users[channelUserID]; !ok {
		return false, fmt.Errorf("channel %s: %w", channelUserID, ErrNotFound)
	}
	if subscriberID == channelUserID {
		return false, ErrSelfSubscription
	}

	updatedData := cloneDataset(s.data)
	subscribers := updatedData.Subscriptions[channelUserID]
	if subscribers == nil {
		subscribers = make(map[string]time.Time)
	}
	_, subscribed := subscribers[subscriberID]
	if subscribed {
		delete(subscribers, subscriberID)
	} else {
		subscribers[subscriberID] = time.Now().UTC()
	}
	if len(subscribers) == 0 {
		delete(updatedData.Subscriptions, channelUserID)
	} else {
		updatedData.Subscriptions[channelUserID] = subscribers
	}

	if err := s.persistDataset(updatedData); err != nil {
		return false, err
	}
	s.data = updatedData
	return !subscribed, nil
}

// IsSubscribed reports whether the subscriber follows the channel owner.
func (s *Storage) IsSubscribed(subscriberID, channelUserID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subscribers, ok := s.data.Subscriptions[channelUserID]
	if !ok {
		return false
	}
	_, exists := subscribers[subscriberID]
	return exists
}

// CountSubscribers returns the number of users subscribed to the channel owner.
func (s *Storage) CountSubscribers(channelUserID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data.Subscriptions[channelUserID])
}

// ListSubscribers returns the users subscribed to the channel owner, most
// recent first.
func (s *Storage) ListSubscribers(channelUserID string) []models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolveSubscriptionUsersLocked(s.data.Subscriptions[channelUserID])
}

// ListSubscribedChannels returns the channel owners the user subscribes to,
// most recent first.
func (s *Storage) ListSubscribedChannels(subscriberID string) []models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	memberships := make(map[string]time.Time)
	for channelUserID, subscribers := range s.data.Subscriptions {
		if since, ok := subscribers[subscriberID]; ok {
			memberships[channelUserID] = since
		}
	}
	return s.resolveSubscriptionUsersLocked(memberships)
}

func (s *Storage) resolveSubscriptionUsersLocked(memberships map[string]time.Time) []models.User {
	type pair struct {
		user models.User
		when time.Time
	}
	pairs := make([]pair, 0, len(memberships))
	for userID, since := range memberships {
		user, ok := s.data.Users[userID]
		if !ok {
			continue
		}
		pairs = append(pairs, pair{user: user, when: since})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].when.Equal(pairs[j].when) {
			return pairs[i].user.ID < pairs[j].user.ID
		}
		return pairs[i].when.After(pairs[j].when)
	})

	users := make([]models.User, 0, len(pairs))
	for _, p := range pairs {
		users = append(users, p.user)
	}
	return users
}
