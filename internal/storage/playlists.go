package storage

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cliphive/internal/auth"
	"cliphive/internal/models"
)

var ErrVideoAlreadyInPlaylist = errors.New("video already in playlist")

func (s *Storage) CreatePlaylist(ownerID, name, description string) (models.Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Users[ownerID]; !ok {
		return models.Playlist{}, auth.ErrUserNotFound
	}
	trimmedName := strings.TrimSpace(name)
	if trimmedName == "" {
		return models.Playlist{}, errors.New("name is required")
	}

	id, err := generateID()
	if err != nil {
		return models.Playlist{}, err
	}

	now := time.Now().UTC()
	playlist := models.Playlist{
		ID:          id,
		OwnerID:     ownerID,
		Name:        trimmedName,
		Description: strings.TrimSpace(description),
		VideoIDs:    []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.data.Playlists[id] = playlist
	if err := s.persist(); err != nil {
		delete(s.data.Playlists, id)
		return models.Playlist{}, err
	}

	return playlist, nil
}

func (s *Storage) GetPlaylist(id string) (models.Playlist, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	playlist, ok := s.data.Playlists[id]
	if ok && playlist.VideoIDs == nil {
		playlist.VideoIDs = []string{}
	}
	return playlist, ok
}

// ListPlaylists returns a user's playlists ordered oldest first.
func (s *Storage) ListPlaylists(ownerID string) []models.Playlist {
	s.mu.RLock()
	defer s.mu.RUnlock()

	playlists := make([]models.Playlist, 0)
	for _, playlist := range s.data.Playlists {
		if ownerID != "" && playlist.OwnerID != ownerID {
			continue
		}
		if playlist.VideoIDs == nil {
			playlist.VideoIDs = []string{}
		}
		playlists = append(playlists, playlist)
	}
	sort.Slice(playlists, func(i, j int) bool {
		if playlists[i].CreatedAt.Equal(playlists[j].CreatedAt) {
			return playlists[i].ID < playlists[j].ID
		}
		return playlists[i].CreatedAt.Before(playlists[j].CreatedAt)
	})
	return playlists
}

// PlaylistUpdate represents the fields that can be modified on a playlist.
type PlaylistUpdate struct {
	Name        *string
	Description *string
}

func (s *Storage) UpdatePlaylist(id string, update PlaylistUpdate) (models.Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	playlist, ok := updatedData.Playlists[id]
	if !ok {
		return models.Playlist{}, fmt.Errorf("playlist %s: %w", id, ErrNotFound)
	}

	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return models.Playlist{}, errors.New("name cannot be empty")
		}
		playlist.Name = name
	}
	if update.Description != nil {
		playlist.Description = strings.TrimSpace(*update.Description)
	}

	playlist.UpdatedAt = time.Now().UTC()
	updatedData.Playlists[id] = playlist
	if err := s.persistDataset(updatedData); err != nil {
		return models.Playlist{}, err
	}

	s.data = updatedData

	return playlist, nil
}

func (s *Storage) DeletePlaylist(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)
	if _, ok := updatedData.Playlists[id]; !ok {
		return fmt.Errorf("playlist %s: %w", id, ErrNotFound)
	}
	delete(updatedData.Playlists, id)

	if err := s.persistDataset(updatedData); err != nil {
		return err
	}
	s.data = updatedData
	return nil
}

// AddVideoToPlaylist appends a video; adding the same video twice is rejected.
func (s *Storage) AddVideoToPlaylist(playlistID, videoID string) (models.Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	playlist, ok := updatedData.Playlists[playlistID]
	if !ok {
		return models.Playlist{}, fmt.Errorf("playlist %s: %w", playlistID, ErrNotFound)
	}
	if _, ok := updatedData.Videos[videoID]; !ok {
		return models.Playlist{}, fmt.Errorf("video %s: %w", videoID, ErrNotFound)
	}
	for _, existing := range playlist.VideoIDs {
		if existing == videoID {
			return models.Playlist{}, ErrVideoAlreadyInPlaylist
		}
	}

	playlist.VideoIDs = append(playlist.VideoIDs, videoID)
	playlist.UpdatedAt = time.Now().UTC()
	updatedData.Playlists[playlistID] = playlist

	if err := s.persistDataset(updatedData); err != nil {
		return models.Playlist{}, err
	}
	s.data = updatedData
	return playlist, nil
}

// RemoveVideoFromPlaylist drops a video reference; removal is idempotent.
func (s *Storage) RemoveVideoFromPlaylist(playlistID, videoID string) (models.Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	playlist, ok := updatedData.Playlists[playlistID]
	if !ok {
		return models.Playlist{}, fmt.Errorf("playlist %s: %w", playlistID, ErrNotFound)
	}

	filtered := make([]string, 0, len(playlist.VideoIDs))
	for _, existing := range playlist.VideoIDs {
		if existing == videoID {
			continue
		}
		filtered = append(filtered, existing)
	}
	playlist.VideoIDs = filtered
	playlist.UpdatedAt = time.Now().UTC()
	updatedData.Playlists[playlistID] = playlist

	if err := s.persistDataset(updatedData); err != nil {
		return models.Playlist{}, err
	}
	s.data = updatedData
	return playlist, nil
}
