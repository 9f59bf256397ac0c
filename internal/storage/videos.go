package storage

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cliphive/internal/models"
)

const (
	defaultVideoPageLimit = 10
	maxVideoPageLimit     = 50
)

// CreateVideoParams captures the attributes required to publish a new video.
type CreateVideoParams struct {
	OwnerID         string
	Title           string
	Description     string
	VideoURL        string
	ThumbnailURL    string
	DurationSeconds float64
}

// ListVideosParams narrows and orders a video listing.
type ListVideosParams struct {
	Page     int
	Limit    int
	Query    string
	SortBy   string
	SortType string
	OwnerID  string
	// IncludeUnpublished widens the listing to drafts, used for owner dashboards.
	IncludeUnpublished bool
}

// VideoPage is one page of a video listing along with pagination metadata.
type VideoPage struct {
	Videos     []models.Video `json:"videos"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalCount int            `json:"totalCount"`
	TotalPages int            `json:"totalPages"`
}

func (s *Storage) CreateVideo(params CreateVideoParams) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Users[params.OwnerID]; !ok {
		return models.Video{}, fmt.Errorf("owner %s: %w", params.OwnerID, ErrNotFound)
	}
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return models.Video{}, errors.New("title is required")
	}
	videoURL := strings.TrimSpace(params.VideoURL)
	if videoURL == "" {
		return models.Video{}, errors.New("videoUrl is required")
	}
	if params.DurationSeconds < 0 {
		return models.Video{}, errors.New("duration cannot be negative")
	}

	id, err := generateID()
	if err != nil {
		return models.Video{}, err
	}

	now := time.Now().UTC()
	video := models.Video{
		ID:              id,
		OwnerID:         params.OwnerID,
		Title:           title,
		Description:     strings.TrimSpace(params.Description),
		VideoURL:        videoURL,
		ThumbnailURL:    strings.TrimSpace(params.ThumbnailURL),
		DurationSeconds: params.DurationSeconds,
		Published:       true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	s.data.Videos[id] = video
	if err := s.persist(); err != nil {
		delete(s.data.Videos, id)
		return models.Video{}, err
	}

	return video, nil
}

func (s *Storage) GetVideo(id string) (models.Video, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	video, ok := s.data.Videos[id]
	return video, ok
}

// ListVideos returns one page of videos matching the filter. Unpublished
// videos are excluded unless the caller asks for them explicitly.
func (s *Storage) ListVideos(params ListVideosParams) VideoPage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := strings.ToLower(strings.TrimSpace(params.Query))
	videos := make([]models.Video, 0, len(s.data.Videos))
	for _, video := range s.data.Videos {
		if !video.Published && !params.IncludeUnpublished {
			continue
		}
		if params.OwnerID != "" && video.OwnerID != params.OwnerID {
			continue
		}
		if query != "" {
			haystack := strings.ToLower(video.Title + " " + video.Description)
			if !strings.Contains(haystack, query) {
				continue
			}
		}
		videos = append(videos, video)
	}

	sortVideos(videos, params.SortBy, params.SortType)

	limit := params.Limit
	if limit <= 0 {
		limit = defaultVideoPageLimit
	}
	if limit > maxVideoPageLimit {
		limit = maxVideoPageLimit
	}
	page := params.Page
	if page <= 0 {
		page = 1
	}

	total := len(videos)
	totalPages := (total + limit - 1) / limit
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return VideoPage{
		Videos:     videos[start:end],
		Page:       page,
		Limit:      limit,
		TotalCount: total,
		TotalPages: totalPages,
	}
}

func sortVideos(videos []models.Video, sortBy, sortType string) {
	ascending := strings.EqualFold(strings.TrimSpace(sortType), "asc")
	field := strings.TrimSpace(sortBy)

	less := func(i, j int) bool {
		switch field {
		case "views":
			if videos[i].Views != videos[j].Views {
				return videos[i].Views < videos[j].Views
			}
		case "duration":
			if videos[i].DurationSeconds != videos[j].DurationSeconds {
				return videos[i].DurationSeconds < videos[j].DurationSeconds
			}
		case "title":
			if videos[i].Title != videos[j].Title {
				return videos[i].Title < videos[j].Title
			}
		default:
			if !videos[i].CreatedAt.Equal(videos[j].CreatedAt) {
				return videos[i].CreatedAt.Before(videos[j].CreatedAt)
			}
		}
		return videos[i].ID < videos[j].ID
	}

	if ascending {
		sort.Slice(videos, less)
		return
	}
	sort.Slice(videos, func(i, j int) bool { return less(j, i) })
}

// VideoUpdate represents the fields that can be modified on an existing video.
type VideoUpdate struct {
	Title        *string
	Description  *string
	ThumbnailURL *string
}

func (s *Storage) UpdateVideo(id string, update VideoUpdate) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	video, ok := updatedData.Videos[id]
	if !ok {
		return models.Video{}, fmt.Errorf("video %s: %w", id, ErrNotFound)
	}

	if update.Title != nil {
		title := strings.TrimSpace(*update.Title)
		if title == "" {
			return models.Video{}, errors.New("title cannot be empty")
		}
		video.Title = title
	}
	if update.Description != nil {
		video.Description = strings.TrimSpace(*update.Description)
	}
	if update.ThumbnailURL != nil {
		video.ThumbnailURL = strings.TrimSpace(*update.ThumbnailURL)
	}

	video.UpdatedAt = time.Now().UTC()
	updatedData.Videos[id] = video
	if err := s.persistDataset(updatedData); err != nil {
		return models.Video{}, err
	}

	s.data = updatedData

	return video, nil
}

// TogglePublish flips the publish state and returns the updated video.
func (s *Storage) TogglePublish(id string) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	video, ok := updatedData.Videos[id]
	if !ok {
		return models.Video{}, fmt.Errorf("video %s: %w", id, ErrNotFound)
	}
	video.Published = !video.Published
	video.UpdatedAt = time.Now().UTC()
	updatedData.Videos[id] = video

	if err := s.persistDataset(updatedData); err != nil {
		return models.Video{}, err
	}
	s.data = updatedData
	return video, nil
}

// IncrementViews bumps the view counter and returns the updated video.
func (s *Storage) IncrementViews(id string) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	video, ok := s.data.Videos[id]
	if !ok {
		return models.Video{}, fmt.Errorf("video %s: %w", id, ErrNotFound)
	}
	previous := video.Views
	video.Views++
	s.data.Videos[id] = video
	if err := s.persist(); err != nil {
		video.Views = previous
		s.data.Videos[id] = video
		return models.Video{}, err
	}
	return video, nil
}

// DeleteVideo removes a video along with its comments, likes, playlist
// references, and watch history entries.
func (s *Storage) DeleteVideo(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	if _, ok := updatedData.Videos[id]; !ok {
		return fmt.Errorf("video %s: %w", id, ErrNotFound)
	}

	delete(updatedData.Videos, id)
	delete(updatedData.VideoLikes, id)

	for commentID, comment := range updatedData.Comments {
		if comment.VideoID == id {
			delete(updatedData.Comments, commentID)
			delete(updatedData.CommentLikes, commentID)
		}
	}

	for playlistID, playlist := range updatedData.Playlists {
		filtered := make([]string, 0, len(playlist.VideoIDs))
		for _, videoID := range playlist.VideoIDs {
			if videoID == id {
				continue
			}
			filtered = append(filtered, videoID)
		}
		if len(filtered) != len(playlist.VideoIDs) {
			playlist.VideoIDs = filtered
			playlist.UpdatedAt = time.Now().UTC()
			updatedData.Playlists[playlistID] = playlist
		}
	}

	for userID, events := range updatedData.WatchHistory {
		filtered := make([]models.WatchEvent, 0, len(events))
		for _, event := range events {
			if event.VideoID == id {
				continue
			}
			filtered = append(filtered, event)
		}
		if len(filtered) == 0 {
			delete(updatedData.WatchHistory, userID)
		} else if len(filtered) != len(events) {
			updatedData.WatchHistory[userID] = filtered
		}
	}

	if err := s.persistDataset(updatedData); err != nil {
		return err
	}

	s.data = updatedData

	return nil
}
