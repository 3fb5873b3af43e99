package storage

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"streamtube/internal/auth"
	"streamtube/internal/models"
)

// User operations

func (s *Storage) CreateUser(params CreateUserParams) (models.User, error) {
	username := strings.TrimSpace(params.Username)
	if username == "" {
		return models.User{}, errors.New("username is required")
	}
	email := strings.TrimSpace(strings.ToLower(params.Email))
	if email == "" {
		return models.User{}, errors.New("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return models.User{}, fmt.Errorf("invalid email address: %w", err)
	}
	fullName := strings.TrimSpace(params.FullName)
	if fullName == "" {
		return models.User{}, errors.New("fullName is required")
	}
	if len(params.Password) < MinPasswordLength {
		return models.User{}, fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}

	hash, err := auth.HashPassword(params.Password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	foldedUsername := normalizeIdentity(username)
	foldedEmail := normalizeIdentity(email)
	for _, user := range s.data.Users {
		if normalizeIdentity(user.Username) == foldedUsername {
			return models.User{}, fmt.Errorf("username %s already in use", username)
		}
		if normalizeIdentity(user.Email) == foldedEmail {
			return models.User{}, fmt.Errorf("email %s already in use", email)
		}
	}

	now := time.Now().UTC()
	user := models.User{
		ID:           newID(),
		Username:     username,
		Email:        email,
		FullName:     fullName,
		AvatarURL:    strings.TrimSpace(params.AvatarURL),
		CoverURL:     strings.TrimSpace(params.CoverURL),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	s.data.Users[user.ID] = user
	if err := s.persist(); err != nil {
		delete(s.data.Users, user.ID)
		return models.User{}, err
	}

	return user, nil
}

func (s *Storage) GetUser(id string) (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.data.Users[id]
	return user, ok
}

// FindUserByIdentity resolves a user by username or email, case-insensitively.
func (s *Storage) FindUserByIdentity(identity string) (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findUserByIdentityLocked(identity)
}

func (s *Storage) findUserByIdentityLocked(identity string) (models.User, bool) {
	folded := normalizeIdentity(identity)
	if folded == "" {
		return models.User{}, false
	}
	for _, user := range s.data.Users {
		if normalizeIdentity(user.Username) == folded || normalizeIdentity(user.Email) == folded {
			return user, true
		}
	}
	return models.User{}, false
}

// AuthenticateUser verifies credentials and returns the matching user. Unknown
// identities and wrong passwords return the same ErrInvalidCredentials.
func (s *Storage) AuthenticateUser(identity, password string) (models.User, error) {
	if password == "" {
		return models.User{}, ErrInvalidCredentials
	}
	user, ok := s.FindUserByIdentity(identity)
	if !ok {
		// Burn comparable time so the miss is not observable by timing.
		_ = auth.VerifyPassword("", password)
		return models.User{}, ErrInvalidCredentials
	}
	if err := auth.VerifyPassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, err
	}
	return user, nil
}

func (s *Storage) UpdateUser(id string, update UserUpdate) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.data.Users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	previous := user

	if update.FullName != nil {
		fullName := strings.TrimSpace(*update.FullName)
		if fullName == "" {
			return models.User{}, errors.New("fullName cannot be empty")
		}
		user.FullName = fullName
	}
	if update.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*update.Email))
		if _, err := mail.ParseAddress(email); err != nil {
			return models.User{}, fmt.Errorf("invalid email address: %w", err)
		}
		folded := normalizeIdentity(email)
		for otherID, other := range s.data.Users {
			if otherID != id && normalizeIdentity(other.Email) == folded {
				return models.User{}, fmt.Errorf("email %s already in use", email)
			}
		}
		user.Email = email
	}
	if update.AvatarURL != nil {
		user.AvatarURL = strings.TrimSpace(*update.AvatarURL)
	}
	if update.CoverURL != nil {
		user.CoverURL = strings.TrimSpace(*update.CoverURL)
	}
	user.UpdatedAt = time.Now().UTC()

	s.data.Users[id] = user
	if err := s.persist(); err != nil {
		s.data.Users[id] = previous
		return models.User{}, err
	}

	return user, nil
}

// SetUserPassword replaces the stored password hash after verifying the
// current password.
func (s *Storage) SetUserPassword(id, currentPassword, newPassword string) error {
	if len(newPassword) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.data.Users[id]
	if !ok {
		return ErrNotFound
	}
	if err := auth.VerifyPassword(user.PasswordHash, currentPassword); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return ErrInvalidCredentials
		}
		return err
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	previous := user
	user.PasswordHash = hash
	user.UpdatedAt = time.Now().UTC()
	s.data.Users[id] = user
	if err := s.persist(); err != nil {
		s.data.Users[id] = previous
		return err
	}
	return nil
}

// DeleteUser removes the account along with its videos, comments, playlists,
// tweets and watch history.
func (s *Storage) DeleteUser(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Users[id]; !ok {
		return ErrNotFound
	}

	next := cloneDataset(s.data)
	delete(next.Users, id)
	for videoID, video := range next.Videos {
		if video.OwnerID == id {
			deleteVideoLocked(&next, videoID)
		}
	}
	for commentID, comment := range next.Comments {
		if comment.OwnerID == id {
			delete(next.Comments, commentID)
		}
	}
	for playlistID, playlist := range next.Playlists {
		if playlist.OwnerID == id {
			delete(next.Playlists, playlistID)
		}
	}
	for tweetID, tweet := range next.Tweets {
		if tweet.OwnerID == id {
			delete(next.Tweets, tweetID)
		}
	}
	delete(next.WatchHistory, id)

	if err := s.persistDataset(next); err != nil {
		return err
	}
	s.data = next
	return nil
}

// AddWatchEntry records that the user watched the given video, keeping the
// newest entry per video and capping the history length.
func (s *Storage) AddWatchEntry(userID, videoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Users[userID]; !ok {
		return ErrNotFound
	}
	if _, ok := s.data.Videos[videoID]; !ok {
		return ErrNotFound
	}

	previous := s.data.WatchHistory[userID]
	entries := make([]models.WatchEntry, 0, len(previous)+1)
	entries = append(entries, models.WatchEntry{VideoID: videoID, WatchedAt: time.Now().UTC()})
	for _, entry := range previous {
		if entry.VideoID == videoID {
			continue
		}
		entries = append(entries, entry)
	}
	if len(entries) > MaxWatchHistoryEntries {
		entries = entries[:MaxWatchHistoryEntries]
	}

	s.data.WatchHistory[userID] = entries
	if err := s.persist(); err != nil {
		if previous == nil {
			delete(s.data.WatchHistory, userID)
		} else {
			s.data.WatchHistory[userID] = previous
		}
		return err
	}
	return nil
}

// WatchHistory returns the user's watch history, most recent first.
func (s *Storage) WatchHistory(userID string) ([]models.WatchEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.data.Users[userID]; !ok {
		return nil, ErrNotFound
	}
	return append([]models.WatchEntry(nil), s.data.WatchHistory[userID]...), nil
}
