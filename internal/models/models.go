package models

import (
	"strings"
	"time"
)

// User is the canonical account record. PasswordHash and RefreshTokenHash are
// owned by the storage layer and must never leave the process boundary; API
// response types re-project the public fields.
type User struct {
	ID               string    `json:"id"`
	Username         string    `json:"username"`
	Email            string    `json:"email"`
	FullName         string    `json:"fullName"`
	AvatarURL        string    `json:"avatarUrl,omitempty"`
	CoverImageURL    string    `json:"coverImageUrl,omitempty"`
	PasswordHash     string    `json:"passwordHash,omitempty"`
	RefreshTokenHash string    `json:"refreshTokenHash,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// MatchesLogin reports whether the identifier equals the user's username or
// email, ignoring case.
func (u User) MatchesLogin(identifier string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(identifier))
	return trimmed != "" && (u.Username == trimmed || u.Email == trimmed)
}

type Video struct {
	ID              string    `json:"id"`
	OwnerID         string    `json:"ownerId"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	VideoURL        string    `json:"videoUrl"`
	ThumbnailURL    string    `json:"thumbnailUrl,omitempty"`
	DurationSeconds float64   `json:"durationSeconds"`
	Views           int64     `json:"views"`
	Published       bool      `json:"published"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type Comment struct {
	ID        string    `json:"id"`
	VideoID   string    `json:"videoId"`
	OwnerID   string    `json:"ownerId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Tweet struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Playlist struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	VideoIDs    []string  `json:"videoIds"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// WatchEvent records a single authenticated video view for the history feed.
type WatchEvent struct {
	VideoID   string    `json:"videoId"`
	WatchedAt time.Time `json:"watchedAt"`
}

// LikeTarget names the kinds of resources that accept like toggles.
type LikeTarget string

const (
	LikeTargetVideo   LikeTarget = "video"
	LikeTargetComment LikeTarget = "comment"
	LikeTargetTweet   LikeTarget = "tweet"
)
