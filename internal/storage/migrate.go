package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"cliphive/internal/models"
)

// Snapshot is a point-in-time copy of the JSON datastore, loaded without going
// through a live Storage so credential material survives the trip intact.
type Snapshot struct {
	data dataset
}

// SnapshotCounts reports how many rows each table receives on import.
type SnapshotCounts struct {
	Users          int
	Videos         int
	Comments       int
	Tweets         int
	Playlists      int
	PlaylistVideos int
	Likes          int
	Subscriptions  int
	WatchEvents    int
}

// LoadSnapshotFromJSON reads a JSON datastore file into a Snapshot.
func LoadSnapshotFromJSON(path string) (Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read datastore: %w", err)
	}
	data := newDataset()
	if err := json.Unmarshal(raw, &data); err != nil {
		return Snapshot{}, fmt.Errorf("parse datastore: %w", err)
	}
	return Snapshot{data: data}, nil
}

// Counts tallies the snapshot contents.
func (s Snapshot) Counts() SnapshotCounts {
	counts := SnapshotCounts{
		Users:     len(s.data.Users),
		Videos:    len(s.data.Videos),
		Comments:  len(s.data.Comments),
		Tweets:    len(s.data.Tweets),
		Playlists: len(s.data.Playlists),
	}
	for _, playlist := range s.data.Playlists {
		counts.PlaylistVideos += len(playlist.VideoIDs)
	}
	for _, likes := range s.data.VideoLikes {
		counts.Likes += len(likes)
	}
	for _, likes := range s.data.CommentLikes {
		counts.Likes += len(likes)
	}
	for _, likes := range s.data.TweetLikes {
		counts.Likes += len(likes)
	}
	for _, subscribers := range s.data.Subscriptions {
		counts.Subscriptions += len(subscribers)
	}
	for _, events := range s.data.WatchHistory {
		counts.WatchEvents += len(events)
	}
	return counts
}

// ImportSnapshotToPostgres applies the schema and copies the snapshot into
// Postgres inside a single transaction. Inserts use ON CONFLICT DO NOTHING so
// a partially migrated database can be re-run safely.
func ImportSnapshotToPostgres(ctx context.Context, dsn string, snap Snapshot) error {
	if err := ApplySchema(ctx, dsn); err != nil {
		return err
	}

	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect for import: %w", err)
	}
	defer func() {
		_ = conn.Close(ctx)
	}()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := importUsers(ctx, tx, snap.data.Users); err != nil {
		return err
	}
	if err := importVideos(ctx, tx, snap.data.Videos); err != nil {
		return err
	}
	if err := importComments(ctx, tx, snap.data.Comments); err != nil {
		return err
	}
	if err := importTweets(ctx, tx, snap.data.Tweets); err != nil {
		return err
	}
	if err := importPlaylists(ctx, tx, snap.data.Playlists); err != nil {
		return err
	}
	if err := importLikes(ctx, tx, models.LikeTargetVideo, snap.data.VideoLikes); err != nil {
		return err
	}
	if err := importLikes(ctx, tx, models.LikeTargetComment, snap.data.CommentLikes); err != nil {
		return err
	}
	if err := importLikes(ctx, tx, models.LikeTargetTweet, snap.data.TweetLikes); err != nil {
		return err
	}
	if err := importSubscriptions(ctx, tx, snap.data.Subscriptions); err != nil {
		return err
	}
	if err := importWatchHistory(ctx, tx, snap.data.WatchHistory); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	return nil
}

func importUsers(ctx context.Context, tx pgx.Tx, users map[string]models.User) error {
	for _, user := range sortedByID(users, func(u models.User) string { return u.ID }) {
		_, err := tx.Exec(ctx, `
INSERT INTO users (id, username, email, full_name, avatar_url, cover_image_url, password_hash, refresh_token_hash, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO NOTHING
`, user.ID, user.Username, user.Email, user.FullName, user.AvatarURL, user.CoverImageURL, user.PasswordHash, user.RefreshTokenHash, user.CreatedAt, user.UpdatedAt)
		if err != nil {
			return fmt.Errorf("import user %s: %w", user.ID, err)
		}
	}
	return nil
}

func importVideos(ctx context.Context, tx pgx.Tx, videos map[string]models.Video) error {
	for _, video := range sortedByID(videos, func(v models.Video) string { return v.ID }) {
		_, err := tx.Exec(ctx, `
INSERT INTO videos (id, owner_id, title, description, video_url, thumbnail_url, duration_seconds, views, published, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO NOTHING
`, video.ID, video.OwnerID, video.Title, video.Description, video.VideoURL, video.ThumbnailURL, video.DurationSeconds, video.Views, video.Published, video.CreatedAt, video.UpdatedAt)
		if err != nil {
			return fmt.Errorf("import video %s: %w", video.ID, err)
		}
	}
	return nil
}

func importComments(ctx context.Context, tx pgx.Tx, comments map[string]models.Comment) error {
	for _, comment := range sortedByID(comments, func(c models.Comment) string { return c.ID }) {
		_, err := tx.Exec(ctx, `
INSERT INTO comments (id, video_id, owner_id, content, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO NOTHING
`, comment.ID, comment.VideoID, comment.OwnerID, comment.Content, comment.CreatedAt, comment.UpdatedAt)
		if err != nil {
			return fmt.Errorf("import comment %s: %w", comment.ID, err)
		}
	}
	return nil
}

func importTweets(ctx context.Context, tx pgx.Tx, tweets map[string]models.Tweet) error {
	for _, tweet := range sortedByID(tweets, func(t models.Tweet) string { return t.ID }) {
		_, err := tx.Exec(ctx, `
INSERT INTO tweets (id, owner_id, content, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO NOTHING
`, tweet.ID, tweet.OwnerID, tweet.Content, tweet.CreatedAt, tweet.UpdatedAt)
		if err != nil {
			return fmt.Errorf("import tweet %s: %w", tweet.ID, err)
		}
	}
	return nil
}

func importPlaylists(ctx context.Context, tx pgx.Tx, playlists map[string]models.Playlist) error {
	for _, playlist := range sortedByID(playlists, func(p models.Playlist) string { return p.ID }) {
		_, err := tx.Exec(ctx, `
INSERT INTO playlists (id, owner_id, name, description, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO NOTHING
`, playlist.ID, playlist.OwnerID, playlist.Name, playlist.Description, playlist.CreatedAt, playlist.UpdatedAt)
		if err != nil {
			return fmt.Errorf("import playlist %s: %w", playlist.ID, err)
		}
		for position, videoID := range playlist.VideoIDs {
			_, err := tx.Exec(ctx, `
INSERT INTO playlist_videos (playlist_id, video_id, position)
VALUES ($1, $2, $3)
ON CONFLICT (playlist_id, video_id) DO NOTHING
`, playlist.ID, videoID, position)
			if err != nil {
				return fmt.Errorf("import playlist %s video %s: %w", playlist.ID, videoID, err)
			}
		}
	}
	return nil
}

func importLikes(ctx context.Context, tx pgx.Tx, target models.LikeTarget, likes map[string]map[string]time.Time) error {
	for _, targetID := range sortedKeys(likes) {
		for _, userID := range sortedKeys(likes[targetID]) {
			_, err := tx.Exec(ctx, `
INSERT INTO likes (target_kind, target_id, user_id, liked_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (target_kind, target_id, user_id) DO NOTHING
`, string(target), targetID, userID, likes[targetID][userID])
			if err != nil {
				return fmt.Errorf("import %s like %s/%s: %w", target, targetID, userID, err)
			}
		}
	}
	return nil
}

func importSubscriptions(ctx context.Context, tx pgx.Tx, subscriptions map[string]map[string]time.Time) error {
	for _, channelID := range sortedKeys(subscriptions) {
		for _, subscriberID := range sortedKeys(subscriptions[channelID]) {
			_, err := tx.Exec(ctx, `
INSERT INTO subscriptions (channel_user_id, subscriber_id, subscribed_at)
VALUES ($1, $2, $3)
ON CONFLICT (channel_user_id, subscriber_id) DO NOTHING
`, channelID, subscriberID, subscriptions[channelID][subscriberID])
			if err != nil {
				return fmt.Errorf("import subscription %s/%s: %w", channelID, subscriberID, err)
			}
		}
	}
	return nil
}

func importWatchHistory(ctx context.Context, tx pgx.Tx, history map[string][]models.WatchEvent) error {
	for _, userID := range sortedKeys(history) {
		for _, event := range history[userID] {
			_, err := tx.Exec(ctx, `
INSERT INTO watch_history (user_id, video_id, watched_at)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, video_id) DO NOTHING
`, userID, event.VideoID, event.WatchedAt)
			if err != nil {
				return fmt.Errorf("import watch event %s/%s: %w", userID, event.VideoID, err)
			}
		}
	}
	return nil
}

func sortedByID[T any](items map[string]T, id func(T) string) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return id(out[i]) < id(out[j]) })
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
