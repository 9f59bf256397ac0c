package storage

import (
	"cliphive/internal/auth"
	"cliphive/internal/models"
)

// ChannelStats aggregates the numbers shown on an owner's dashboard.
type ChannelStats struct {
	TotalVideos      int   `json:"totalVideos"`
	TotalViews       int64 `json:"totalViews"`
	TotalSubscribers int   `json:"totalSubscribers"`
	TotalLikes       int   `json:"totalLikes"`
}

// ChannelStats computes aggregate counters across the owner's videos,
// including unpublished drafts.
func (s *Storage) ChannelStats(ownerID string) (ChannelStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.data.Users[ownerID]; !ok {
		return ChannelStats{}, auth.ErrUserNotFound
	}

	stats := ChannelStats{
		TotalSubscribers: len(s.data.Subscriptions[ownerID]),
	}
	for videoID, video := range s.data.Videos {
		if video.OwnerID != ownerID {
			continue
		}
		stats.TotalVideos++
		stats.TotalViews += video.Views
		stats.TotalLikes += len(s.data.VideoLikes[videoID])
	}
	return stats, nil
}

// ListChannelVideos returns every video the owner has uploaded, drafts
// included, ordered newest first.
func (s *Storage) ListChannelVideos(ownerID string) ([]models.Video, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.data.Users[ownerID]; !ok {
		return nil, auth.ErrUserNotFound
	}

	videos := make([]models.Video, 0)
	for _, video := range s.data.Videos {
		if video.OwnerID == ownerID {
			videos = append(videos, video)
		}
	}
	sortVideos(videos, "createdAt", "desc")
	return videos, nil
}
