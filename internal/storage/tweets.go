package storage

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"streamtube/internal/models"
)

// Tweet operations

func (s *Storage) CreateTweet(ownerID, content string) (models.Tweet, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Tweet{}, errors.New("content is required")
	}
	if len(content) > MaxTweetLength {
		return models.Tweet{}, fmt.Errorf("content exceeds %d characters", MaxTweetLength)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Users[ownerID]; !ok {
		return models.Tweet{}, ErrNotFound
	}

	now := time.Now().UTC()
	tweet := models.Tweet{
		ID:        newID(),
		OwnerID:   ownerID,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.data.Tweets[tweet.ID] = tweet
	if err := s.persist(); err != nil {
		delete(s.data.Tweets, tweet.ID)
		return models.Tweet{}, err
	}

	return tweet, nil
}

func (s *Storage) GetTweet(id string) (models.Tweet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tweet, ok := s.data.Tweets[id]
	return tweet, ok
}

// ListTweets returns a user's tweets, newest first.
func (s *Storage) ListTweets(ownerID string) ([]models.Tweet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.data.Users[ownerID]; !ok {
		return nil, ErrNotFound
	}

	tweets := make([]models.Tweet, 0)
	for _, tweet := range s.data.Tweets {
		if tweet.OwnerID == ownerID {
			tweets = append(tweets, tweet)
		}
	}
	sort.Slice(tweets, func(i, j int) bool {
		return tweets[i].CreatedAt.After(tweets[j].CreatedAt)
	})
	return tweets, nil
}

func (s *Storage) UpdateTweet(id, content string) (models.Tweet, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Tweet{}, errors.New("content is required")
	}
	if len(content) > MaxTweetLength {
		return models.Tweet{}, fmt.Errorf("content exceeds %d characters", MaxTweetLength)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tweet, ok := s.data.Tweets[id]
	if !ok {
		return models.Tweet{}, ErrNotFound
	}
	previous := tweet

	tweet.Content = content
	tweet.UpdatedAt = time.Now().UTC()

	s.data.Tweets[id] = tweet
	if err := s.persist(); err != nil {
		s.data.Tweets[id] = previous
		return models.Tweet{}, err
	}

	return tweet, nil
}

func (s *Storage) DeleteTweet(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tweet, ok := s.data.Tweets[id]
	if !ok {
		return ErrNotFound
	}

	delete(s.data.Tweets, id)
	if err := s.persist(); err != nil {
		s.data.Tweets[id] = tweet
		return err
	}
	return nil
}
