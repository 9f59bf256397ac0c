package storage

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"cliphive/internal/auth"
	"cliphive/internal/models"
	"golang.org/x/crypto/pbkdf2"
)

const (
	passwordHashSaltLength = 16
	passwordHashKeyLength  = 32
	passwordHashIterations = 120000

	watchHistoryLimit = 100
)

var (
	ErrUsernameTaken = errors.New("username already in use")
	ErrEmailTaken    = errors.New("email already in use")
	// ErrNotFound wraps every missing-resource error so callers can map them
	// without matching message text.
	ErrNotFound = errors.New("not found")
)

type dataset struct {
	Users         map[string]models.User           `json:"users"`
	Videos        map[string]models.Video          `json:"videos"`
	Comments      map[string]models.Comment        `json:"comments"`
	Tweets        map[string]models.Tweet          `json:"tweets"`
	Playlists     map[string]models.Playlist       `json:"playlists"`
	Subscriptions map[string]map[string]time.Time  `json:"subscriptions"`
	VideoLikes    map[string]map[string]time.Time  `json:"videoLikes"`
	CommentLikes  map[string]map[string]time.Time  `json:"commentLikes"`
	TweetLikes    map[string]map[string]time.Time  `json:"tweetLikes"`
	WatchHistory  map[string][]models.WatchEvent   `json:"watchHistory"`
}

type Storage struct {
	mu       sync.RWMutex
	filePath string
	data     dataset
	// persistOverride allows tests to intercept persist operations.
	persistOverride func(dataset) error
	objectStorage   ObjectStorageConfig
	objectClient    objectStorageClient
}

func newDataset() dataset {
	return dataset{
		Users:         make(map[string]models.User),
		Videos:        make(map[string]models.Video),
		Comments:      make(map[string]models.Comment),
		Tweets:        make(map[string]models.Tweet),
		Playlists:     make(map[string]models.Playlist),
		Subscriptions: make(map[string]map[string]time.Time),
		VideoLikes:    make(map[string]map[string]time.Time),
		CommentLikes:  make(map[string]map[string]time.Time),
		TweetLikes:    make(map[string]map[string]time.Time),
		WatchHistory:  make(map[string][]models.WatchEvent),
	}
}

func (s *Storage) ensureDatasetInitializedLocked() {
	if s.data.Users == nil {
		s.data.Users = make(map[string]models.User)
	}
	if s.data.Videos == nil {
		s.data.Videos = make(map[string]models.Video)
	}
	if s.data.Comments == nil {
		s.data.Comments = make(map[string]models.Comment)
	}
	if s.data.Tweets == nil {
		s.data.Tweets = make(map[string]models.Tweet)
	}
	if s.data.Playlists == nil {
		s.data.Playlists = make(map[string]models.Playlist)
	}
	if s.data.Subscriptions == nil {
		s.data.Subscriptions = make(map[string]map[string]time.Time)
	}
	if s.data.VideoLikes == nil {
		s.data.VideoLikes = make(map[string]map[string]time.Time)
	}
	if s.data.CommentLikes == nil {
		s.data.CommentLikes = make(map[string]map[string]time.Time)
	}
	if s.data.TweetLikes == nil {
		s.data.TweetLikes = make(map[string]map[string]time.Time)
	}
	if s.data.WatchHistory == nil {
		s.data.WatchHistory = make(map[string][]models.WatchEvent)
	}
}

func NewStorage(path string, opts ...Option) (*Storage, error) {
	store := &Storage{filePath: path}
	for _, opt := range opts {
		if opt != nil {
			opt.applyJSON(store)
		}
	}
	store.objectClient = newObjectStorageClient(store.objectStorage)
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Storage) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	file, err := os.Open(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		s.data = newDataset()
		return nil
	} else if err != nil {
		return fmt.Errorf("open store file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&s.data); err != nil {
		if errors.Is(err, io.EOF) {
			s.data = newDataset()
			return nil
		}
		return fmt.Errorf("decode store file: %w", err)
	}

	s.ensureDatasetInitializedLocked()

	return nil
}

func (s *Storage) persist() error {
	return s.persistDataset(s.data)
}

func (s *Storage) persistDataset(data dataset) error {
	if s.persistOverride != nil {
		if err := s.persistOverride(data); err != nil {
			return err
		}
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "store-*.json")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		if !success {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encode store file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("flush store file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp store file: %w", err)
	}

	if err := os.Rename(tmpPath, s.filePath); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	success = true
	return nil
}

func cloneSets(src map[string]map[string]time.Time) map[string]map[string]time.Time {
	if src == nil {
		return nil
	}
	clone := make(map[string]map[string]time.Time, len(src))
	for outerID, inner := range src {
		if inner == nil {
			clone[outerID] = nil
			continue
		}
		cloned := make(map[string]time.Time, len(inner))
		for innerID, when := range inner {
			cloned[innerID] = when
		}
		clone[outerID] = cloned
	}
	return clone
}

func cloneDataset(src dataset) dataset {
	clone := dataset{}

	if src.Users != nil {
		clone.Users = make(map[string]models.User, len(src.Users))
		for id, user := range src.Users {
			clone.Users[id] = user
		}
	}

	if src.Videos != nil {
		clone.Videos = make(map[string]models.Video, len(src.Videos))
		for id, video := range src.Videos {
			clone.Videos[id] = video
		}
	}

	if src.Comments != nil {
		clone.Comments = make(map[string]models.Comment, len(src.Comments))
		for id, comment := range src.Comments {
			clone.Comments[id] = comment
		}
	}

	if src.Tweets != nil {
		clone.Tweets = make(map[string]models.Tweet, len(src.Tweets))
		for id, tweet := range src.Tweets {
			clone.Tweets[id] = tweet
		}
	}

	if src.Playlists != nil {
		clone.Playlists = make(map[string]models.Playlist, len(src.Playlists))
		for id, playlist := range src.Playlists {
			cloned := playlist
			if playlist.VideoIDs != nil {
				cloned.VideoIDs = append([]string(nil), playlist.VideoIDs...)
			}
			clone.Playlists[id] = cloned
		}
	}

	clone.Subscriptions = cloneSets(src.Subscriptions)
	clone.VideoLikes = cloneSets(src.VideoLikes)
	clone.CommentLikes = cloneSets(src.CommentLikes)
	clone.TweetLikes = cloneSets(src.TweetLikes)

	if src.WatchHistory != nil {
		clone.WatchHistory = make(map[string][]models.WatchEvent, len(src.WatchHistory))
		for userID, events := range src.WatchHistory {
			clone.WatchHistory[userID] = append([]models.WatchEvent(nil), events...)
		}
	}

	return clone
}

// User operations

// CreateUserParams captures the attributes that can be set when registering a user.
type CreateUserParams struct {
	Username      string
	Email         string
	FullName      string
	Password      string
	AvatarURL     string
	CoverImageURL string
}

func (s *Storage) CreateUser(params CreateUserParams) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.TrimSpace(strings.ToLower(params.Username))
	if username == "" {
		return models.User{}, errors.New("username is required")
	}
	normalizedEmail := strings.TrimSpace(strings.ToLower(params.Email))
	if normalizedEmail == "" {
		return models.User{}, errors.New("email is required")
	}
	fullName := strings.TrimSpace(params.FullName)
	if fullName == "" {
		return models.User{}, errors.New("fullName is required")
	}
	if params.Password == "" {
		return models.User{}, errors.New("password is required")
	}
	for _, user := range s.data.Users {
		if user.Username == username {
			return models.User{}, ErrUsernameTaken
		}
		if user.Email == normalizedEmail {
			return models.User{}, ErrEmailTaken
		}
	}

	id, err := generateID()
	if err != nil {
		return models.User{}, err
	}
	hashed, err := hashPassword(params.Password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := models.User{
		ID:            id,
		Username:      username,
		Email:         normalizedEmail,
		FullName:      fullName,
		AvatarURL:     strings.TrimSpace(params.AvatarURL),
		CoverImageURL: strings.TrimSpace(params.CoverImageURL),
		PasswordHash:  hashed,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	s.data.Users[id] = user
	if err := s.persist(); err != nil {
		delete(s.data.Users, id)
		return models.User{}, err
	}

	return user, nil
}

func (s *Storage) GetUser(id string) (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.data.Users[id]
	return user, ok
}

// FindUserByUsername looks up a user by their normalized username.
func (s *Storage) FindUserByUsername(username string) (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	normalized := strings.TrimSpace(strings.ToLower(username))
	for _, user := range s.data.Users {
		if user.Username == normalized {
			return user, true
		}
	}
	return models.User{}, false
}

func (s *Storage) ListUsers() []models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]models.User, 0, len(s.data.Users))
	for _, user := range s.data.Users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users
}

// AuthenticateUser verifies credentials and returns the matching user. The
// identifier may be a username or an email address.
func (s *Storage) AuthenticateUser(identifier, password string) (models.User, error) {
	if password == "" {
		return models.User{}, auth.ErrInvalidCredentials
	}
	s.mu.RLock()
	var found models.User
	ok := false
	for _, user := range s.data.Users {
		if user.MatchesLogin(identifier) {
			found = user
			ok = true
			break
		}
	}
	s.mu.RUnlock()
	if !ok {
		return models.User{}, auth.ErrUserNotFound
	}
	if err := verifyPassword(found.PasswordHash, password); err != nil {
		return models.User{}, err
	}
	return found, nil
}

// ChangePassword swaps the stored password hash after verifying the current one.
func (s *Storage) ChangePassword(id, current, next string) error {
	if next == "" {
		return errors.New("new password is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.data.Users[id]
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

	updatedData := cloneDataset(s.data)
	user = updatedData.Users[id]
	user.PasswordHash = hashed
	user.UpdatedAt = time.Now().UTC()
	updatedData.Users[id] = user
	if err := s.persistDataset(updatedData); err != nil {
		return err
	}
	s.data = updatedData
	return nil
}

func hashPassword(password string) (string, error) {
	salt := make([]byte, passwordHashSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	derived := pbkdf2.Key([]byte(password), salt, passwordHashIterations, passwordHashKeyLength, sha256.New)
	encodedSalt := base64.RawStdEncoding.EncodeToString(salt)
	encodedKey := base64.RawStdEncoding.EncodeToString(derived)
	return fmt.Sprintf("pbkdf2$sha256$%d$%s$%s", passwordHashIterations, encodedSalt, encodedKey), nil
}

func verifyPassword(encodedHash, candidate string) error {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 5 {
		return fmt.Errorf("verify password: invalid hash format")
	}
	if parts[0] != "pbkdf2" || parts[1] != "sha256" {
		return fmt.Errorf("verify password: unsupported hash identifier")
	}
	iterations, err := strconv.Atoi(parts[2])
	if err != nil || iterations <= 0 {
		return fmt.Errorf("verify password: invalid iteration count")
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil {
		return fmt.Errorf("verify password: decode salt: %w", err)
	}
	storedKey, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return fmt.Errorf("verify password: decode hash: %w", err)
	}
	derived := pbkdf2.Key([]byte(candidate), salt, iterations, len(storedKey), sha256.New)
	if len(derived) != len(storedKey) || subtle.ConstantTimeCompare(derived, storedKey) != 1 {
		return auth.ErrInvalidCredentials
	}
	return nil
}

// UserUpdate represents the fields that can be modified for an existing user.
type UserUpdate struct {
	FullName      *string
	Email         *string
	AvatarURL     *string
	CoverImageURL *string
}

// UpdateUser mutates account metadata while enforcing uniqueness constraints.
func (s *Storage) UpdateUser(id string, update UserUpdate) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	user, ok := updatedData.Users[id]
	if !ok {
		return models.User{}, auth.ErrUserNotFound
	}

	if update.FullName != nil {
		name := strings.TrimSpace(*update.FullName)
		if name == "" {
			return models.User{}, errors.New("fullName cannot be empty")
		}
		user.FullName = name
	}

	if update.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*update.Email))
		if email == "" {
			return models.User{}, errors.New("email cannot be empty")
		}
		for existingID, existing := range updatedData.Users {
			if existingID == user.ID {
				continue
			}
			if existing.Email == email {
				return models.User{}, ErrEmailTaken
			}
		}
		user.Email = email
	}

	if update.AvatarURL != nil {
		user.AvatarURL = strings.TrimSpace(*update.AvatarURL)
	}
	if update.CoverImageURL != nil {
		user.CoverImageURL = strings.TrimSpace(*update.CoverImageURL)
	}

	user.UpdatedAt = time.Now().UTC()
	updatedData.Users[id] = user
	if err := s.persistDataset(updatedData); err != nil {
		return models.User{}, err
	}

	s.data = updatedData

	return user, nil
}

// Refresh token operations. The store keeps a single digest per user; an empty
// digest means the user has no active session.

func (s *Storage) SetRefreshToken(userID, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.data.Users[userID]
	if !ok {
		return auth.ErrUserNotFound
	}
	previous := user.RefreshTokenHash
	user.RefreshTokenHash = tokenHash
	s.data.Users[userID] = user
	if err := s.persist(); err != nil {
		user.RefreshTokenHash = previous
		s.data.Users[userID] = user
		return err
	}
	return nil
}

// ReplaceRefreshToken swaps the stored digest only when it still matches the
// expected one. A mismatch means the presented token was already rotated out.
func (s *Storage) ReplaceRefreshToken(userID, expectedHash, newHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.data.Users[userID]
	if !ok {
		return auth.ErrUserNotFound
	}
	if user.RefreshTokenHash == "" || user.RefreshTokenHash != expectedHash {
		return auth.ErrRefreshTokenMismatch
	}
	previous := user.RefreshTokenHash
	user.RefreshTokenHash = newHash
	s.data.Users[userID] = user
	if err := s.persist(); err != nil {
		user.RefreshTokenHash = previous
		s.data.Users[userID] = user
		return err
	}
	return nil
}

func (s *Storage) ClearRefreshToken(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.data.Users[userID]
	if !ok {
		return nil
	}
	if user.RefreshTokenHash == "" {
		return nil
	}
	previous := user.RefreshTokenHash
	user.RefreshTokenHash = ""
	s.data.Users[userID] = user
	if err := s.persist(); err != nil {
		user.RefreshTokenHash = previous
		s.data.Users[userID] = user
		return err
	}
	return nil
}

// Watch history operations

// RecordWatchEvent prepends a watch entry for the user, trimming the history
// to the most recent entries.
func (s *Storage) RecordWatchEvent(userID, videoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Users[userID]; !ok {
		return auth.ErrUserNotFound
	}
	if _, ok := s.data.Videos[videoID]; !ok {
		return fmt.Errorf("video %s: %w", videoID, ErrNotFound)
	}

	updatedData := cloneDataset(s.data)
	events := updatedData.WatchHistory[userID]
	filtered := make([]models.WatchEvent, 0, len(events)+1)
	filtered = append(filtered, models.WatchEvent{VideoID: videoID, WatchedAt: time.Now().UTC()})
	for _, event := range events {
		if event.VideoID == videoID {
			continue
		}
		filtered = append(filtered, event)
	}
	if len(filtered) > watchHistoryLimit {
		filtered = filtered[:watchHistoryLimit]
	}
	updatedData.WatchHistory[userID] = filtered

	if err := s.persistDataset(updatedData); err != nil {
		return err
	}
	s.data = updatedData
	return nil
}

// WatchHistory returns the user's watch entries ordered most recent first.
func (s *Storage) WatchHistory(userID string) []models.WatchEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := s.data.WatchHistory[userID]
	return append([]models.WatchEvent(nil), events...)
}
