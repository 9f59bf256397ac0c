package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// schemaStatements is executed in order by ApplySchema. Statements are
// idempotent so the schema can be re-applied on every boot.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL,
	email TEXT NOT NULL,
	full_name TEXT NOT NULL,
	avatar_url TEXT NOT NULL DEFAULT '',
	cover_image_url TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL,
	refresh_token_hash TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	CONSTRAINT users_username_key UNIQUE (username),
	CONSTRAINT users_email_key UNIQUE (email)
)`,
	`CREATE TABLE IF NOT EXISTS videos (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	video_url TEXT NOT NULL,
	thumbnail_url TEXT NOT NULL DEFAULT '',
	duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
	views BIGINT NOT NULL DEFAULT 0,
	published BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS videos_owner_idx ON videos (owner_id)`,
	`CREATE TABLE IF NOT EXISTS comments (
	id TEXT PRIMARY KEY,
	video_id TEXT NOT NULL REFERENCES videos (id) ON DELETE CASCADE,
	owner_id TEXT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
	content TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS comments_video_idx ON comments (video_id)`,
	`CREATE TABLE IF NOT EXISTS tweets (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
	content TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS playlists (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS playlist_videos (
	playlist_id TEXT NOT NULL REFERENCES playlists (id) ON DELETE CASCADE,
	video_id TEXT NOT NULL REFERENCES videos (id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	PRIMARY KEY (playlist_id, video_id)
)`,
	`CREATE TABLE IF NOT EXISTS likes (
	target_kind TEXT NOT NULL,
	target_id TEXT NOT NULL,
	user_id TEXT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
	liked_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (target_kind, target_id, user_id)
)`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
	channel_user_id TEXT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
	subscriber_id TEXT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
	subscribed_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (channel_user_id, subscriber_id)
)`,
	`CREATE TABLE IF NOT EXISTS watch_history (
	user_id TEXT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
	video_id TEXT NOT NULL REFERENCES videos (id) ON DELETE CASCADE,
	watched_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, video_id)
)`,
}

// ApplySchema creates any missing tables. It opens a short-lived connection
// so it can run before the repository pool exists.
func ApplySchema(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect for schema: %w", err)
	}
	defer func() {
		_ = conn.Close(ctx)
	}()

	for _, statement := range schemaStatements {
		if _, err := conn.Exec(ctx, statement); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
