package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"cliphive/internal/auth"
	"cliphive/internal/models"
)

func newTestStore(t *testing.T, extra ...Option) *Storage {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")
	store, err := NewStorage(path, extra...)
	if err != nil {
		t.Fatalf("NewStorage error: %v", err)
	}
	return store
}

func createTestUser(t *testing.T, store *Storage, username string) models.User {
	t.Helper()
	user, err := store.CreateUser(CreateUserParams{
		Username: username,
		Email:    username + "@example.com",
		FullName: "User " + username,
		Password: "secret123",
	})
	if err != nil {
		t.Fatalf("CreateUser(%s) error: %v", username, err)
	}
	return user
}

func createTestVideo(t *testing.T, store *Storage, ownerID, title string) models.Video {
	t.Helper()
	video, err := store.CreateVideo(CreateVideoParams{
		OwnerID:         ownerID,
		Title:           title,
		Description:     "about " + title,
		VideoURL:        "https://cdn.example.com/" + title + ".mp4",
		DurationSeconds: 120,
	})
	if err != nil {
		t.Fatalf("CreateVideo(%s) error: %v", title, err)
	}
	return video
}

func TestCreateUserNormalizesAndRejectsDuplicates(t *testing.T) {
	store := newTestStore(t)

	user, err := store.CreateUser(CreateUserParams{
		Username: "  Casey ",
		Email:    "Casey@Example.COM",
		FullName: "Casey Jones",
		Password: "secret123",
	})
	if err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}
	if user.Username != "casey" {
		t.Fatalf("expected normalized username, got %q", user.Username)
	}
	if user.Email != "casey@example.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if user.PasswordHash == "" || user.PasswordHash == "secret123" {
		t.Fatal("expected a derived password hash")
	}

	if _, err := store.CreateUser(CreateUserParams{
		Username: "casey",
		Email:    "other@example.com",
		FullName: "Other",
		Password: "secret123",
	}); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
	if _, err := store.CreateUser(CreateUserParams{
		Username: "someone",
		Email:    "casey@example.com",
		FullName: "Someone",
		Password: "secret123",
	}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestAuthenticateUserByUsernameOrEmail(t *testing.T) {
	store := newTestStore(t)
	created := createTestUser(t, store, "casey")

	byUsername, err := store.AuthenticateUser("casey", "secret123")
	if err != nil {
		t.Fatalf("AuthenticateUser by username error: %v", err)
	}
	if byUsername.ID != created.ID {
		t.Fatalf("expected user %s, got %s", created.ID, byUsername.ID)
	}

	byEmail, err := store.AuthenticateUser("CASEY@example.com", "secret123")
	if err != nil {
		t.Fatalf("AuthenticateUser by email error: %v", err)
	}
	if byEmail.ID != created.ID {
		t.Fatalf("expected user %s, got %s", created.ID, byEmail.ID)
	}

	if _, err := store.AuthenticateUser("casey", "wrong"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := store.AuthenticateUser("nobody", "secret123"); !errors.Is(err, auth.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store, "casey")

	if err := store.ChangePassword(user.ID, "wrong", "newsecret"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := store.ChangePassword(user.ID, "secret123", "newsecret"); err != nil {
		t.Fatalf("ChangePassword error: %v", err)
	}
	if _, err := store.AuthenticateUser("casey", "newsecret"); err != nil {
		t.Fatalf("expected new password to authenticate: %v", err)
	}
	if _, err := store.AuthenticateUser("casey", "secret123"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("expected old password to be rejected, got %v", err)
	}
}

func TestRefreshTokenRotation(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store, "casey")

	if err := store.SetRefreshToken(user.ID, "digest-a"); err != nil {
		t.Fatalf("SetRefreshToken error: %v", err)
	}
	if err := store.ReplaceRefreshToken(user.ID, "digest-a", "digest-b"); err != nil {
		t.Fatalf("ReplaceRefreshToken error: %v", err)
	}
	if err := store.ReplaceRefreshToken(user.ID, "digest-a", "digest-c"); !errors.Is(err, auth.ErrRefreshTokenMismatch) {
		t.Fatalf("expected ErrRefreshTokenMismatch for stale digest, got %v", err)
	}
	if err := store.ClearRefreshToken(user.ID); err != nil {
		t.Fatalf("ClearRefreshToken error: %v", err)
	}
	if err := store.ReplaceRefreshToken(user.ID, "digest-b", "digest-c"); !errors.Is(err, auth.ErrRefreshTokenMismatch) {
		t.Fatalf("expected ErrRefreshTokenMismatch after clear, got %v", err)
	}
	// clearing twice is a no-op
	if err := store.ClearRefreshToken(user.ID); err != nil {
		t.Fatalf("repeated ClearRefreshToken error: %v", err)
	}
	if err := store.ReplaceRefreshToken("missing", "x", "y"); !errors.Is(err, auth.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUpdateUserEnforcesEmailUniqueness(t *testing.T) {
	store := newTestStore(t)
	casey := createTestUser(t, store, "casey")
	createTestUser(t, store, "riley")

	taken := "riley@example.com"
	if _, err := store.UpdateUser(casey.ID, UserUpdate{Email: &taken}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	name := "Casey Updated"
	updated, err := store.UpdateUser(casey.ID, UserUpdate{FullName: &name})
	if err != nil {
		t.Fatalf("UpdateUser error: %v", err)
	}
	if updated.FullName != name {
		t.Fatalf("expected updated name, got %q", updated.FullName)
	}
}

func TestStoragePersistsAcrossReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")
	store, err := NewStorage(path)
	if err != nil {
		t.Fatalf("NewStorage error: %v", err)
	}
	user := createTestUser(t, store, "casey")
	createTestVideo(t, store, user.ID, "persisted")

	reloaded, err := NewStorage(path)
	if err != nil {
		t.Fatalf("reload NewStorage error: %v", err)
	}
	if _, ok := reloaded.GetUser(user.ID); !ok {
		t.Fatal("expected user to survive reload")
	}
	page := reloaded.ListVideos(ListVideosParams{})
	if page.TotalCount != 1 {
		t.Fatalf("expected 1 video after reload, got %d", page.TotalCount)
	}
}

func TestWatchHistoryDeduplicatesAndCaps(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store, "casey")
	first := createTestVideo(t, store, user.ID, "first")
	second := createTestVideo(t, store, user.ID, "second")

	if err := store.RecordWatchEvent(user.ID, first.ID); err != nil {
		t.Fatalf("RecordWatchEvent error: %v", err)
	}
	if err := store.RecordWatchEvent(user.ID, second.ID); err != nil {
		t.Fatalf("RecordWatchEvent error: %v", err)
	}
	// rewatching moves the video to the front without duplicating it
	if err := store.RecordWatchEvent(user.ID, first.ID); err != nil {
		t.Fatalf("RecordWatchEvent error: %v", err)
	}

	history := store.WatchHistory(user.ID)
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}
	if history[0].VideoID != first.ID {
		t.Fatalf("expected most recent watch first, got %s", history[0].VideoID)
	}

	if err := store.RecordWatchEvent(user.ID, "missing"); err == nil {
		t.Fatal("expected error for unknown video")
	}
}

func TestPersistFailureRollsBack(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store, "casey")

	store.persistOverride = func(dataset) error { return errors.New("disk full") }
	if _, err := store.CreateVideo(CreateVideoParams{
		OwnerID:  user.ID,
		Title:    "doomed",
		VideoURL: "https://cdn.example.com/doomed.mp4",
	}); err == nil {
		t.Fatal("expected persist failure to surface")
	}
	store.persistOverride = nil

	page := store.ListVideos(ListVideosParams{})
	if page.TotalCount != 0 {
		t.Fatalf("expected no videos after rollback, got %d", page.TotalCount)
	}
}
