package storage

import (
	"context"

	"cliphive/internal/models"
)

// Repository exposes the datastore operations required by API handlers and
// the session manager.
type Repository interface {
	Ping(ctx context.Context) error

	CreateUser(params CreateUserParams) (models.User, error)
	AuthenticateUser(identifier, password string) (models.User, error)
	GetUser(id string) (models.User, bool)
	FindUserByUsername(username string) (models.User, bool)
	ListUsers() []models.User
	UpdateUser(id string, update UserUpdate) (models.User, error)
	ChangePassword(id, current, next string) error

	SetRefreshToken(userID, tokenHash string) error
	ReplaceRefreshToken(userID, expectedHash, newHash string) error
	ClearRefreshToken(userID string) error

	RecordWatchEvent(userID, videoID string) error
	WatchHistory(userID string) []models.WatchEvent

	CreateVideo(params CreateVideoParams) (models.Video, error)
	GetVideo(id string) (models.Video, bool)
	ListVideos(params ListVideosParams) VideoPage
	UpdateVideo(id string, update VideoUpdate) (models.Video, error)
	TogglePublish(id string) (models.Video, error)
	IncrementViews(id string) (models.Video, error)
	DeleteVideo(id string) error

	CreateComment(videoID, ownerID, content string) (models.Comment, error)
	GetComment(id string) (models.Comment, bool)
	ListComments(videoID string, limit int) ([]models.Comment, error)
	UpdateComment(id, content string) (models.Comment, error)
	DeleteComment(id string) error

	CreateTweet(ownerID, content string) (models.Tweet, error)
	GetTweet(id string) (models.Tweet, bool)
	ListTweets(ownerID string) []models.Tweet
	UpdateTweet(id, content string) (models.Tweet, error)
	DeleteTweet(id string) error

	ToggleLike(target models.LikeTarget, targetID, userID string) (bool, error)
	CountLikes(target models.LikeTarget, targetID string) int
	HasLiked(target models.LikeTarget, targetID, userID string) bool
	ListLikedVideos(userID string) []models.Video

	ToggleSubscription(subscriberID, channelUserID string) (bool, error)
	IsSubscribed(subscriberID, channelUserID string) bool
	CountSubscribers(channelUserID string) int
	ListSubscribers(channelUserID string) []models.User
	ListSubscribedChannels(subscriberID string) []models.User

	CreatePlaylist(ownerID, name, description string) (models.Playlist, error)
	GetPlaylist(id string) (models.Playlist, bool)
	ListPlaylists(ownerID string) []models.Playlist
	UpdatePlaylist(id string, update PlaylistUpdate) (models.Playlist, error)
	DeletePlaylist(id string) error
	AddVideoToPlaylist(playlistID, videoID string) (models.Playlist, error)
	RemoveVideoFromPlaylist(playlistID, videoID string) (models.Playlist, error)

	ChannelStats(ownerID string) (ChannelStats, error)
	ListChannelVideos(ownerID string) ([]models.Video, error)

	ObjectStorageEnabled() bool
	UploadObject(ctx context.Context, key, contentType string, body []byte) (ObjectRef, error)
	DeleteObject(ctx context.Context, key string) error
}

// Ping reports datastore health. The JSON-file store has no external
// dependency to probe.
func (s *Storage) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Storage) ObjectStorageEnabled() bool {
	return s.objectClient.Enabled()
}

func (s *Storage) UploadObject(ctx context.Context, key, contentType string, body []byte) (ObjectRef, error) {
	return s.objectClient.Upload(ctx, key, contentType, body)
}

func (s *Storage) DeleteObject(ctx context.Context, key string) error {
	return s.objectClient.Delete(ctx, key)
}

var _ Repository = (*Storage)(nil)
