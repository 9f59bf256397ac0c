package storage

import (
	"testing"
)

func TestListVideosFiltersAndPaginates(t *testing.T) {
	store := newTestStore(t)
	casey := createTestUser(t, store, "casey")
	riley := createTestUser(t, store, "riley")

	for _, title := range []string{"go tutorial", "cooking show", "go concurrency"} {
		createTestVideo(t, store, casey.ID, title)
	}
	createTestVideo(t, store, riley.ID, "travel vlog")

	all := store.ListVideos(ListVideosParams{})
	if all.TotalCount != 4 {
		t.Fatalf("expected 4 videos, got %d", all.TotalCount)
	}

	matched := store.ListVideos(ListVideosParams{Query: "go"})
	if matched.TotalCount != 2 {
		t.Fatalf("expected 2 matches for query, got %d", matched.TotalCount)
	}

	owned := store.ListVideos(ListVideosParams{OwnerID: riley.ID})
	if owned.TotalCount != 1 || owned.Videos[0].Title != "travel vlog" {
		t.Fatalf("unexpected owner filter result: %+v", owned.Videos)
	}

	paged := store.ListVideos(ListVideosParams{Limit: 3, Page: 2})
	if paged.TotalPages != 2 {
		t.Fatalf("expected 2 pages, got %d", paged.TotalPages)
	}
	if len(paged.Videos) != 1 {
		t.Fatalf("expected 1 video on last page, got %d", len(paged.Videos))
	}

	beyond := store.ListVideos(ListVideosParams{Limit: 3, Page: 9})
	if len(beyond.Videos) != 0 {
		t.Fatalf("expected empty page beyond range, got %d", len(beyond.Videos))
	}
}

func TestListVideosSortsByRequestedField(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store, "casey")
	a := createTestVideo(t, store, user.ID, "alpha")
	b := createTestVideo(t, store, user.ID, "beta")

	for i := 0; i < 3; i++ {
		if _, err := store.IncrementViews(b.ID); err != nil {
			t.Fatalf("IncrementViews error: %v", err)
		}
	}

	byViews := store.ListVideos(ListVideosParams{SortBy: "views", SortType: "desc"})
	if byViews.Videos[0].ID != b.ID {
		t.Fatalf("expected most viewed video first, got %s", byViews.Videos[0].ID)
	}

	byTitle := store.ListVideos(ListVideosParams{SortBy: "title", SortType: "asc"})
	if byTitle.Videos[0].ID != a.ID {
		t.Fatalf("expected alphabetical order, got %s", byTitle.Videos[0].Title)
	}
}

func TestTogglePublishHidesVideoFromListings(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store, "casey")
	video := createTestVideo(t, store, user.ID, "draft-bound")

	updated, err := store.TogglePublish(video.ID)
	if err != nil {
		t.Fatalf("TogglePublish error: %v", err)
	}
	if updated.Published {
		t.Fatal("expected video to be unpublished")
	}

	public := store.ListVideos(ListVideosParams{})
	if public.TotalCount != 0 {
		t.Fatalf("expected unpublished video hidden, got %d", public.TotalCount)
	}
	drafts := store.ListVideos(ListVideosParams{IncludeUnpublished: true})
	if drafts.TotalCount != 1 {
		t.Fatalf("expected draft visible to owner listing, got %d", drafts.TotalCount)
	}

	restored, err := store.TogglePublish(video.ID)
	if err != nil {
		t.Fatalf("TogglePublish error: %v", err)
	}
	if !restored.Published {
		t.Fatal("expected video to be published again")
	}
}

func TestUpdateVideoValidatesTitle(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store, "casey")
	video := createTestVideo(t, store, user.ID, "original")

	empty := "   "
	if _, err := store.UpdateVideo(video.ID, VideoUpdate{Title: &empty}); err == nil {
		t.Fatal("expected error for empty title")
	}

	title := "renamed"
	description := "new description"
	updated, err := store.UpdateVideo(video.ID, VideoUpdate{Title: &title, Description: &description})
	if err != nil {
		t.Fatalf("UpdateVideo error: %v", err)
	}
	if updated.Title != "renamed" || updated.Description != "new description" {
		t.Fatalf("unexpected update result: %+v", updated)
	}
}

func TestDeleteVideoCascades(t *testing.T) {
	store := newTestStore(t)
	owner := createTestUser(t, store, "casey")
	viewer := createTestUser(t, store, "riley")
	video := createTestVideo(t, store, owner.ID, "doomed")

	comment, err := store.CreateComment(video.ID, viewer.ID, "nice")
	if err != nil {
		t.Fatalf("CreateComment error: %v", err)
	}
	if _, err := store.ToggleLike("video", video.ID, viewer.ID); err != nil {
		t.Fatalf("ToggleLike error: %v", err)
	}
	playlist, err := store.CreatePlaylist(viewer.ID, "watch later", "")
	if err != nil {
		t.Fatalf("CreatePlaylist error: %v", err)
	}
	if _, err := store.AddVideoToPlaylist(playlist.ID, video.ID); err != nil {
		t.Fatalf("AddVideoToPlaylist error: %v", err)
	}
	if err := store.RecordWatchEvent(viewer.ID, video.ID); err != nil {
		t.Fatalf("RecordWatchEvent error: %v", err)
	}

	if err := store.DeleteVideo(video.ID); err != nil {
		t.Fatalf("DeleteVideo error: %v", err)
	}

	if _, ok := store.GetVideo(video.ID); ok {
		t.Fatal("expected video removed")
	}
	if _, ok := store.GetComment(comment.ID); ok {
		t.Fatal("expected comments removed with video")
	}
	if count := store.CountLikes("video", video.ID); count != 0 {
		t.Fatalf("expected likes removed, got %d", count)
	}
	remaining, ok := store.GetPlaylist(playlist.ID)
	if !ok || len(remaining.VideoIDs) != 0 {
		t.Fatalf("expected playlist reference removed, got %+v", remaining.VideoIDs)
	}
	if history := store.WatchHistory(viewer.ID); len(history) != 0 {
		t.Fatalf("expected watch history cleared, got %d entries", len(history))
	}
}
