package storage

import (
	"errors"
	"sort"
	"strings"
	"time"

	"streamtube/internal/models"
)

// Playlist operations

func (s *Storage) CreatePlaylist(ownerID, name, description string) (models.Playlist, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Playlist{}, errors.New("name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Users[ownerID]; !ok {
		return models.Playlist{}, ErrNotFound
	}

	now := time.Now().UTC()
	playlist := models.Playlist{
		ID:          newID(),
		OwnerID:     ownerID,
		Name:        name,
		Description: strings.TrimSpace(description),
		VideoIDs:    []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.data.Playlists[playlist.ID] = playlist
	if err := s.persist(); err != nil {
		delete(s.data.Playlists, playlist.ID)
		return models.Playlist{}, err
	}

	return playlist, nil
}

func (s *Storage) GetPlaylist(id string) (models.Playlist, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	playlist, ok := s.data.Playlists[id]
	if ok && playlist.VideoIDs != nil {
		playlist.VideoIDs = append([]string(nil), playlist.VideoIDs...)
	}
	return playlist, ok
}

// ListPlaylists returns a user's playlists, newest first.
func (s *Storage) ListPlaylists(ownerID string) ([]models.Playlist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.data.Users[ownerID]; !ok {
		return nil, ErrNotFound
	}

	playlists := make([]models.Playlist, 0)
	for _, playlist := range s.data.Playlists {
		if playlist.OwnerID != ownerID {
			continue
		}
		if playlist.VideoIDs != nil {
			playlist.VideoIDs = append([]string(nil), playlist.VideoIDs...)
		}
		playlists = append(playlists, playlist)
	}
	sort.Slice(playlists, func(i, j int) bool {
		return playlists[i].CreatedAt.After(playlists[j].CreatedAt)
	})
	return playlists, nil
}

func (s *Storage) UpdatePlaylist(id string, update PlaylistUpdate) (models.Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	playlist, ok := s.data.Playlists[id]
	if !ok {
		return models.Playlist{}, ErrNotFound
	}
	previous := playlist

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

	s.data.Playlists[id] = playlist
	if err := s.persist(); err != nil {
		s.data.Playlists[id] = previous
		return models.Playlist{}, err
	}

	return playlist, nil
}

// AddVideoToPlaylist appends a video to the playlist. Adding a video that is
// already present is a no-op.
func (s *Storage) AddVideoToPlaylist(playlistID, videoID string) (models.Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	playlist, ok := s.data.Playlists[playlistID]
	if !ok {
		return models.Playlist{}, ErrNotFound
	}
	if _, ok := s.data.Videos[videoID]; !ok {
		return models.Playlist{}, ErrNotFound
	}

	for _, id := range playlist.VideoIDs {
		if id == videoID {
			return playlist, nil
		}
	}

	previous := playlist
	playlist.VideoIDs = append(append([]string(nil), playlist.VideoIDs...), videoID)
	playlist.UpdatedAt = time.Now().UTC()

	s.data.Playlists[playlistID] = playlist
	if err := s.persist(); err != nil {
		s.data.Playlists[playlistID] = previous
		return models.Playlist{}, err
	}

	return playlist, nil
}

// RemoveVideoFromPlaylist drops a video from the playlist. Removing a video
// that is not present is a no-op.
func (s *Storage) RemoveVideoFromPlaylist(playlistID, videoID string) (models.Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	playlist, ok := s.data.Playlists[playlistID]
	if !ok {
		return models.Playlist{}, ErrNotFound
	}

	filtered := make([]string, 0, len(playlist.VideoIDs))
	for _, id := range playlist.VideoIDs {
		if id != videoID {
			filtered = append(filtered, id)
		}
	}
	if len(filtered) == len(playlist.VideoIDs) {
		return playlist, nil
	}

	previous := playlist
	playlist.VideoIDs = filtered
	playlist.UpdatedAt = time.Now().UTC()

	s.data.Playlists[playlistID] = playlist
	if err := s.persist(); err != nil {
		s.data.Playlists[playlistID] = previous
		return models.Playlist{}, err
	}

	return playlist, nil
}

func (s *Storage) DeletePlaylist(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	playlist, ok := s.data.Playlists[id]
	if !ok {
		return ErrNotFound
	}

	delete(s.data.Playlists, id)
	if err := s.persist(); err != nil {
		s.data.Playlists[id] = playlist
		return err
	}
	return nil
}
