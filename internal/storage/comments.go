package storage

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"streamtube/internal/models"
)

// Comment operations

func (s *Storage) CreateComment(videoID, ownerID, content string) (models.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Comment{}, errors.New("content is required")
	}
	if len(content) > MaxCommentLength {
		return models.Comment{}, fmt.Errorf("content exceeds %d characters", MaxCommentLength)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Videos[videoID]; !ok {
		return models.Comment{}, ErrNotFound
	}
	if _, ok := s.data.Users[ownerID]; !ok {
		return models.Comment{}, ErrNotFound
	}

	now := time.Now().UTC()
	comment := models.Comment{
		ID:        newID(),
		VideoID:   videoID,
		OwnerID:   ownerID,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.data.Comments[comment.ID] = comment
	if err := s.persist(); err != nil {
		delete(s.data.Comments, comment.ID)
		return models.Comment{}, err
	}

	return comment, nil
}

func (s *Storage) GetComment(id string) (models.Comment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	comment, ok := s.data.Comments[id]
	return comment, ok
}

// ListComments returns a video's comments, newest first.
func (s *Storage) ListComments(videoID string) ([]models.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.data.Videos[videoID]; !ok {
		return nil, ErrNotFound
	}

	comments := make([]models.Comment, 0)
	for _, comment := range s.data.Comments {
		if comment.VideoID == videoID {
			comments = append(comments, comment)
		}
	}
	sort.Slice(comments, func(i, j int) bool {
		return comments[i].CreatedAt.After(comments[j].CreatedAt)
	})
	return comments, nil
}

func (s *Storage) UpdateComment(id, content string) (models.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Comment{}, errors.New("content is required")
	}
	if len(content) > MaxCommentLength {
		return models.Comment{}, fmt.Errorf("content exceeds %d characters", MaxCommentLength)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	comment, ok := s.data.Comments[id]
	if !ok {
		return models.Comment{}, ErrNotFound
	}
	previous := comment

	comment.Content = content
	comment.UpdatedAt = time.Now().UTC()

	s.data.Comments[id] = comment
	if err := s.persist(); err != nil {
		s.data.Comments[id] = previous
		return models.Comment{}, err
	}

	return comment, nil
}

func (s *Storage) DeleteComment(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	comment, ok := s.data.Comments[id]
	if !ok {
		return ErrNotFound
	}

	delete(s.data.Comments, id)
	if err := s.persist(); err != nil {
		s.data.Comments[id] = comment
		return err
	}
	return nil
}
