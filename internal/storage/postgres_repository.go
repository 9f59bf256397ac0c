package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cliphive/internal/auth"
	"cliphive/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrPostgresUnavailable is returned for operations the Postgres repository
// does not implement yet. The account and session surface is fully backed;
// the social surface still lives in the JSON store.
var ErrPostgresUnavailable = fmt.Errorf("postgres repository unavailable")

type postgresRepository struct {
	pool          *pgxpool.Pool
	cfg           PostgresConfig
	objectStorage ObjectStorageConfig
	objectClient  objectStorageClient
}

// NewPostgresRepository opens a Postgres-backed repository. The caller must
// ensure database migrations have been applied prior to invoking this
// constructor.
func NewPostgresRepository(dsn string, opts ...Option) (Repository, error) {
	cfg := newPostgresConfig(dsn, opts...)
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections >= 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckInterval > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckInterval
	}
	if cfg.AcquireTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.AcquireTimeout
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	repo := &postgresRepository{
		pool:          pool,
		cfg:           cfg,
		objectStorage: cfg.ObjectStorage,
	}
	repo.objectClient = newObjectStorageClient(repo.objectStorage)
	return repo, nil
}

func (r *postgresRepository) Close(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		r.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (r *postgresRepository) Ping(ctx context.Context) error {
	if r.pool == nil {
		return ErrPostgresUnavailable
	}
	return r.pool.Ping(ctx)
}

const userColumns = "id, username, email, full_name, avatar_url, cover_image_url, password_hash, COALESCE(refresh_token_hash, ''), created_at, updated_at"

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.FullName,
		&user.AvatarURL,
		&user.CoverImageURL,
		&user.PasswordHash,
		&user.RefreshTokenHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

func (r *postgresRepository) CreateUser(params CreateUserParams) (models.User, error) {
	username := strings.TrimSpace(strings.ToLower(params.Username))
	if username == "" {
		return models.User{}, errors.New("username is required")
	}
	email := strings.TrimSpace(strings.ToLower(params.Email))
	if email == "" {
		return models.User{}, errors.New("email is required")
	}
	fullName := strings.TrimSpace(params.FullName)
	if fullName == "" {
		return models.User{}, errors.New("fullName is required")
	}
	if params.Password == "" {
		return models.User{}, errors.New("password is required")
	}

	id, err := generateID()
	if err != nil {
		return models.User{}, err
	}
	hashed, err := hashPassword(params.Password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	ctx := context.Background()
	now := time.Now().UTC()
	_, err = r.pool.Exec(ctx, `
INSERT INTO users (id, username, email, full_name, avatar_url, cover_image_url, password_hash, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
`, id, username, email, fullName, strings.TrimSpace(params.AvatarURL), strings.TrimSpace(params.CoverImageURL), hashed, now)
	if err != nil {
		if isUniqueViolation(err, "users_username_key") {
			return models.User{}, ErrUsernameTaken
		}
		if isUniqueViolation(err, "users_email_key") {
			return models.User{}, ErrEmailTaken
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}

	return models.User{
		ID:            id,
		Username:      username,
		Email:         email,
		FullName:      fullName,
		AvatarURL:     strings.TrimSpace(params.AvatarURL),
		CoverImageURL: strings.TrimSpace(params.CoverImageURL),
		PasswordHash:  hashed,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func isUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}
	message := err.Error()
	return strings.Contains(message, "23505") && strings.Contains(message, constraint)
}

func (r *postgresRepository) AuthenticateUser(identifier, password string) (models.User, error) {
	if password == "" {
		return models.User{}, auth.ErrInvalidCredentials
	}
	normalized := strings.TrimSpace(strings.ToLower(identifier))
	row := r.pool.QueryRow(context.Background(), `
SELECT `+userColumns+`
FROM users
WHERE username = $1 OR email = $1
`, normalized)
	user, err := scanUser(row)
	if err != nil {
		if isNoRows(err) {
			return models.User{}, auth.ErrUserNotFound
		}
		return models.User{}, fmt.Errorf("query user: %w", err)
	}
	if err := verifyPassword(user.PasswordHash, password); err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (r *postgresRepository) GetUser(id string) (models.User, bool) {
	row := r.pool.QueryRow(context.Background(), `
SELECT `+userColumns+`
FROM users
WHERE id = $1
`, id)
	user, err := scanUser(row)
	if err != nil {
		return models.User{}, false
	}
	return user, true
}

func (r *postgresRepository) FindUserByUsername(username string) (models.User, bool) {
	normalized := strings.TrimSpace(strings.ToLower(username))
	row := r.pool.QueryRow(context.Background(), `
SELECT `+userColumns+`
FROM users
WHERE username = $1
`, normalized)
	user, err := scanUser(row)
	if err != nil {
		return models.User{}, false
	}
	return user, true
}

func (r *postgresRepository) ListUsers() []models.User {
	rows, err := r.pool.Query(context.Background(), `
SELECT `+userColumns+`
FROM users
ORDER BY created_at
`)
	if err != nil {
		return nil
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil
		}
		users = append(users, user)
	}
	return users
}

func (r *postgresRepository) UpdateUser(id string, update UserUpdate) (models.User, error) {
	ctx := context.Background()
	current, ok := r.GetUser(id)
	if !ok {
		return models.User{}, auth.ErrUserNotFound
	}

	if update.FullName != nil {
		name := strings.TrimSpace(*update.FullName)
		if name == "" {
			return models.User{}, errors.New("fullName cannot be empty")
		}
		current.FullName = name
	}
	if update.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*update.Email))
		if email == "" {
			return models.User{}, errors.New("email cannot be empty")
		}
		current.Email = email
	}
	if update.AvatarURL != nil {
		current.AvatarURL = strings.TrimSpace(*update.AvatarURL)
	}
	if update.CoverImageURL != nil {
		current.CoverImageURL = strings.TrimSpace(*update.CoverImageURL)
	}

	current.UpdatedAt = time.Now().UTC()
	_, err := r.pool.Exec(ctx, `
UPDATE users
SET full_name = $2, email = $3, avatar_url = $4, cover_image_url = $5, updated_at = $6
WHERE id = $1
`, id, current.FullName, current.Email, current.AvatarURL, current.CoverImageURL, current.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "users_email_key") {
			return models.User{}, ErrEmailTaken
		}
		return models.User{}, fmt.Errorf("update user: %w", err)
	}
	return current, nil
}

func (r *postgresRepository) ChangePassword(id, current, next string) error {
	if next == "" {
		return errors.New("new password is required")
	}
	user, ok := r.GetUser(id)
	if !ok {
		return auth.ErrUserNotFound
	}
	if err := verifyPassword(user.PasswordHash, current); err != nil {
		return err
	}
	hashed, err := hashPassword(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	_, err = r.pool.Exec(context.Background(), `
UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1
`, id, hashed, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (r *postgresRepository) SetRefreshToken(userID, tokenHash string) error {
	tag, err := r.pool.Exec(context.Background(), `
UPDATE users SET refresh_token_hash = $2 WHERE id = $1
`, userID, tokenHash)
	if err != nil {
		return fmt.Errorf("set refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}

// ReplaceRefreshToken performs the rotation swap as a single conditional
// update so concurrent refreshes cannot both succeed.
func (r *postgresRepository) ReplaceRefreshToken(userID, expectedHash, newHash string) error {
	tag, err := r.pool.Exec(context.Background(), `
UPDATE users
SET refresh_token_hash = $3
WHERE id = $1 AND refresh_token_hash = $2 AND refresh_token_hash <> ''
`, userID, expectedHash, newHash)
	if err != nil {
		return fmt.Errorf("replace refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, ok := r.GetUser(userID); !ok {
			return auth.ErrUserNotFound
		}
		return auth.ErrRefreshTokenMismatch
	}
	return nil
}

func (r *postgresRepository) ClearRefreshToken(userID string) error {
	_, err := r.pool.Exec(context.Background(), `
UPDATE users SET refresh_token_hash = '' WHERE id = $1
`, userID)
	if err != nil {
		return fmt.Errorf("clear refresh token: %w", err)
	}
	return nil
}

func (r *postgresRepository) RecordWatchEvent(userID, videoID string) error {
	return ErrPostgresUnavailable
}

func (r *postgresRepository) WatchHistory(userID string) []models.WatchEvent {
	return nil
}

func (r *postgresRepository) CreateVideo(params CreateVideoParams) (models.Video, error) {
	return models.Video{}, ErrPostgresUnavailable
}

func (r *postgresRepository) GetVideo(id string) (models.Video, bool) {
	return models.Video{}, false
}

func (r *postgresRepository) ListVideos(params ListVideosParams) VideoPage {
	return VideoPage{Videos: []models.Video{}, Page: 1, Limit: defaultVideoPageLimit}
}

func (r *postgresRepository) UpdateVideo(id string, update VideoUpdate) (models.Video, error) {
	return models.Video{}, ErrPostgresUnavailable
}

func (r *postgresRepository) TogglePublish(id string) (models.Video, error) {
	return models.Video{}, ErrPostgresUnavailable
}

func (r *postgresRepository) IncrementViews(id string) (models.Video, error) {
	return models.Video{}, ErrPostgresUnavailable
}

func (r *postgresRepository) DeleteVideo(id string) error {
	return ErrPostgresUnavailable
}

func (r *postgresRepository) CreateComment(videoID, ownerID, content string) (models.Comment, error) {
	return models.Comment{}, ErrPostgresUnavailable
}

func (r *postgresRepository) GetComment(id string) (models.Comment, bool) {
	return models.Comment{}, false
}

func (r *postgresRepository) ListComments(videoID string, limit int) ([]models.Comment, error) {
	return nil, ErrPostgresUnavailable
}

func (r *postgresRepository) UpdateComment(id, content string) (models.Comment, error) {
	return models.Comment{}, ErrPostgresUnavailable
}

func (r *postgresRepository) DeleteComment(id string) error {
	return ErrPostgresUnavailable
}

func (r *postgresRepository) CreateTweet(ownerID, content string) (models.Tweet, error) {
	return models.Tweet{}, ErrPostgresUnavailable
}

func (r *postgresRepository) GetTweet(id string) (models.Tweet, bool) {
	return models.Tweet{}, false
}

func (r *postgresRepository) ListTweets(ownerID string) []models.Tweet {
	return nil
}

func (r *postgresRepository) UpdateTweet(id, content string) (models.Tweet, error) {
	return models.Tweet{}, ErrPostgresUnavailable
}

func (r *postgresRepository) DeleteTweet(id string) error {
	return ErrPostgresUnavailable
}

func (r *postgresRepository) ToggleLike(target models.LikeTarget, targetID, userID string) (bool, error) {
	return false, ErrPostgresUnavailable
}

func (r *postgresRepository) CountLikes(target models.LikeTarget, targetID string) int {
	return 0
}

func (r *postgresRepository) HasLiked(target models.LikeTarget, targetID, userID string) bool {
	return false
}

func (r *postgresRepository) ListLikedVideos(userID string) []models.Video {
	return nil
}

func (r *postgresRepository) ToggleSubscription(subscriberID, channelUserID string) (bool, error) {
	return false, ErrPostgresUnavailable
}

func (r *postgresRepository) IsSubscribed(subscriberID, channelUserID string) bool {
	return false
}

func (r *postgresRepository) CountSubscribers(channelUserID string) int {
	return 0
}

func (r *postgresRepository) ListSubscribers(channelUserID string) []models.User {
	return nil
}

func (r *postgresRepository) ListSubscribedChannels(subscriberID string) []models.User {
	return nil
}

func (r *postgresRepository) CreatePlaylist(ownerID, name, description string) (models.Playlist, error) {
	return models.Playlist{}, ErrPostgresUnavailable
}

func (r *postgresRepository) GetPlaylist(id string) (models.Playlist, bool) {
	return models.Playlist{}, false
}

func (r *postgresRepository) ListPlaylists(ownerID string) []models.Playlist {
	return nil
}

func (r *postgresRepository) UpdatePlaylist(id string, update PlaylistUpdate) (models.Playlist, error) {
	return models.Playlist{}, ErrPostgresUnavailable
}

func (r *postgresRepository) DeletePlaylist(id string) error {
	return ErrPostgresUnavailable
}

func (r *postgresRepository) AddVideoToPlaylist(playlistID, videoID string) (models.Playlist, error) {
	return models.Playlist{}, ErrPostgresUnavailable
}

func (r *postgresRepository) RemoveVideoFromPlaylist(playlistID, videoID string) (models.Playlist, error) {
	return models.Playlist{}, ErrPostgresUnavailable
}

func (r *postgresRepository) ChannelStats(ownerID string) (ChannelStats, error) {
	return ChannelStats{}, ErrPostgresUnavailable
}

func (r *postgresRepository) ListChannelVideos(ownerID string) ([]models.Video, error) {
	return nil, ErrPostgresUnavailable
}

func (r *postgresRepository) ObjectStorageEnabled() bool {
	return r.objectClient.Enabled()
}

func (r *postgresRepository) UploadObject(ctx context.Context, key, contentType string, body []byte) (ObjectRef, error) {
	return r.objectClient.Upload(ctx, key, contentType, body)
}

func (r *postgresRepository) DeleteObject(ctx context.Context, key string) error {
	return r.objectClient.Delete(ctx, key)
}

func isNoRows(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, pgx.ErrNoRows)
}

var _ Repository = (*postgresRepository)(nil)
