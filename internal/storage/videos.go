package storage

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"streamtube/internal/models"
)

// Video operations

func (s *Storage) CreateVideo(params CreateVideoParams) (models.Video, error) {
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return models.Video{}, errors.New("title is required")
	}
	if len(title) > MaxVideoTitleLength {
		return models.Video{}, fmt.Errorf("title exceeds %d characters", MaxVideoTitleLength)
	}
	description := strings.TrimSpace(params.Description)
	if len(description) > MaxVideoDescriptionLength {
		return models.Video{}, fmt.Errorf("description exceeds %d characters", MaxVideoDescriptionLength)
	}
	if strings.TrimSpace(params.VideoURL) == "" {
		return models.Video{}, errors.New("videoUrl is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Users[params.OwnerID]; !ok {
		return models.Video{}, ErrNotFound
	}

	now := time.Now().UTC()
	video := models.Video{
		ID:           newID(),
		OwnerID:      params.OwnerID,
		Title:        title,
		Description:  description,
		VideoURL:     strings.TrimSpace(params.VideoURL),
		ThumbnailURL: strings.TrimSpace(params.ThumbnailURL),
		Published:    true,
		State:        models.VideoStateProcessing,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	s.data.Videos[video.ID] = video
	if err := s.persist(); err != nil {
		delete(s.data.Videos, video.ID)
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

// ListVideos returns videos matching the filter, newest first. Unless
// IncludeHidden is set only published, ready videos are returned.
func (s *Storage) ListVideos(params ListVideosParams) []models.Video {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := strings.ToLower(strings.TrimSpace(params.Query))
	videos := make([]models.Video, 0, len(s.data.Videos))
	for _, video := range s.data.Videos {
		if params.OwnerID != "" && video.OwnerID != params.OwnerID {
			continue
		}
		if !params.IncludeHidden && (!video.Published || video.State != models.VideoStateReady) {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(video.Title), query) &&
			!strings.Contains(strings.ToLower(video.Description), query) {
			continue
		}
		videos = append(videos, video)
	}
	sort.Slice(videos, func(i, j int) bool {
		return videos[i].CreatedAt.After(videos[j].CreatedAt)
	})
	return videos
}

// ListVideosByState returns videos in the given processing state, oldest
// first, so workers can resume interrupted jobs in order.
func (s *Storage) ListVideosByState(state models.VideoState) []models.Video {
	s.mu.RLock()
	defer s.mu.RUnlock()

	videos := make([]models.Video, 0)
	for _, video := range s.data.Videos {
		if video.State == state {
			videos = append(videos, video)
		}
	}
	sort.Slice(videos, func(i, j int) bool {
		return videos[i].CreatedAt.Before(videos[j].CreatedAt)
	})
	return videos
}

func (s *Storage) UpdateVideo(id string, update VideoUpdate) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	video, ok := s.data.Videos[id]
	if !ok {
		return models.Video{}, ErrNotFound
	}
	previous := video

	if update.Title != nil {
		title := strings.TrimSpace(*update.Title)
		if title == "" {
			return models.Video{}, errors.New("title cannot be empty")
		}
		if len(title) > MaxVideoTitleLength {
			return models.Video{}, fmt.Errorf("title exceeds %d characters", MaxVideoTitleLength)
		}
		video.Title = title
	}
	if update.Description != nil {
		description := strings.TrimSpace(*update.Description)
		if len(description) > MaxVideoDescriptionLength {
			return models.Video{}, fmt.Errorf("description exceeds %d characters", MaxVideoDescriptionLength)
		}
		video.Description = description
	}
	if update.ThumbnailURL != nil {
		video.ThumbnailURL = strings.TrimSpace(*update.ThumbnailURL)
	}
	if update.Published != nil {
		video.Published = *update.Published
	}
	video.UpdatedAt = time.Now().UTC()

	s.data.Videos[id] = video
	if err := s.persist(); err != nil {
		s.data.Videos[id] = previous
		return models.Video{}, err
	}

	return video, nil
}

// SetVideoState advances a video through the processing lifecycle, recording
// the probed duration when it becomes ready.
func (s *Storage) SetVideoState(id string, state models.VideoState, duration float64) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	video, ok := s.data.Videos[id]
	if !ok {
		return models.Video{}, ErrNotFound
	}
	previous := video

	video.State = state
	if state == models.VideoStateReady && duration > 0 {
		video.Duration = duration
	}
	video.UpdatedAt = time.Now().UTC()

	s.data.Videos[id] = video
	if err := s.persist(); err != nil {
		s.data.Videos[id] = previous
		return models.Video{}, err
	}

	return video, nil
}

// IncrementViews bumps the view counter for a watched video.
func (s *Storage) IncrementViews(id string) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	video, ok := s.data.Videos[id]
	if !ok {
		return models.Video{}, ErrNotFound
	}
	previous := video

	video.Views++
	s.data.Videos[id] = video
	if err := s.persist(); err != nil {
		s.data.Videos[id] = previous
		return models.Video{}, err
	}

	return video, nil
}

// DeleteVideo removes the video along with its comments, playlist references
// and watch history entries.
func (s *Storage) DeleteVideo(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Videos[id]; !ok {
		return ErrNotFound
	}

	next := cloneDataset(s.data)
	deleteVideoLocked(&next, id)

	if err := s.persistDataset(next); err != nil {
		return err
	}
	s.data = next
	return nil
}

// deleteVideoLocked removes a video and every reference to it from the given
// dataset. Callers hold the write lock and persist afterwards.
func deleteVideoLocked(data *dataset, videoID string) {
	delete(data.Videos, videoID)
	for commentID, comment := range data.Comments {
		if comment.VideoID == videoID {
			delete(data.Comments, commentID)
		}
	}
	for playlistID, playlist := range data.Playlists {
		filtered := playlist.VideoIDs[:0:0]
		for _, id := range playlist.VideoIDs {
			if id != videoID {
				filtered = append(filtered, id)
			}
		}
		if len(filtered) != len(playlist.VideoIDs) {
			playlist.VideoIDs = filtered
			data.Playlists[playlistID] = playlist
		}
	}
	for userID, entries := range data.WatchHistory {
		filtered := entries[:0:0]
		for _, entry := range entries {
			if entry.VideoID != videoID {
				filtered = append(filtered, entry)
			}
		}
		if len(filtered) != len(entries) {
			data.WatchHistory[userID] = filtered
		}
	}
}
