package storage

import (
	"errors"
	"testing"
)

func TestPlaylistLifecycle(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store, "casey")
	video := createTestVideo(t, store, user.ID, "clip")

	playlist, err := store.CreatePlaylist(user.ID, "favorites", "best clips")
	if err != nil {
		t.Fatalf("CreatePlaylist error: %v", err)
	}
	if len(playlist.VideoIDs) != 0 {
		t.Fatalf("expected empty playlist, got %d entries", len(playlist.VideoIDs))
	}
	if _, err := store.CreatePlaylist(user.ID, "   ", ""); err == nil {
		t.Fatal("expected error for empty name")
	}

	withVideo, err := store.AddVideoToPlaylist(playlist.ID, video.ID)
	if err != nil {
		t.Fatalf("AddVideoToPlaylist error: %v", err)
	}
	if len(withVideo.VideoIDs) != 1 || withVideo.VideoIDs[0] != video.ID {
		t.Fatalf("unexpected playlist contents: %+v", withVideo.VideoIDs)
	}
	if _, err := store.AddVideoToPlaylist(playlist.ID, video.ID); !errors.Is(err, ErrVideoAlreadyInPlaylist) {
		t.Fatalf("expected ErrVideoAlreadyInPlaylist, got %v", err)
	}
	if _, err := store.AddVideoToPlaylist(playlist.ID, "missing"); err == nil {
		t.Fatal("expected error for unknown video")
	}

	name := "renamed"
	updated, err := store.UpdatePlaylist(playlist.ID, PlaylistUpdate{Name: &name})
	if err != nil {
		t.Fatalf("UpdatePlaylist error: %v", err)
	}
	if updated.Name != "renamed" {
		t.Fatalf("expected renamed playlist, got %q", updated.Name)
	}

	removed, err := store.RemoveVideoFromPlaylist(playlist.ID, video.ID)
	if err != nil {
		t.Fatalf("RemoveVideoFromPlaylist error: %v", err)
	}
	if len(removed.VideoIDs) != 0 {
		t.Fatalf("expected empty playlist after removal, got %+v", removed.VideoIDs)
	}
	// removal is idempotent
	if _, err := store.RemoveVideoFromPlaylist(playlist.ID, video.ID); err != nil {
		t.Fatalf("repeated RemoveVideoFromPlaylist error: %v", err)
	}

	lists := store.ListPlaylists(user.ID)
	if len(lists) != 1 {
		t.Fatalf("expected 1 playlist, got %d", len(lists))
	}

	if err := store.DeletePlaylist(playlist.ID); err != nil {
		t.Fatalf("DeletePlaylist error: %v", err)
	}
	if _, ok := store.GetPlaylist(playlist.ID); ok {
		t.Fatal("expected playlist removed")
	}
}
