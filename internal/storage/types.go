package storage

import (
	"errors"
	"sync"

	"streamtube/internal/models"
)

const (
	// MaxVideoTitleLength bounds video titles.
	MaxVideoTitleLength = 120
	// MaxVideoDescriptionLength bounds video descriptions.
	MaxVideoDescriptionLength = 5000
	// MaxCommentLength bounds video comment bodies.
	MaxCommentLength = 1000
	// MaxTweetLength bounds tweet bodies.
	MaxTweetLength = 280
	// MaxWatchHistoryEntries caps the per-user watch history.
	MaxWatchHistoryEntries = 200

	// MinPasswordLength is the accepted lower bound for account passwords.
	MinPasswordLength = 8
)

var (
	// ErrNotFound indicates the referenced record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidCredentials is returned for unknown identities and wrong
	// passwords alike so callers cannot distinguish the two.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type dataset struct {
	Users        map[string]models.User         `json:"users"`
	Videos       map[string]models.Video        `json:"videos"`
	Comments     map[string]models.Comment      `json:"comments"`
	Playlists    map[string]models.Playlist     `json:"playlists"`
	Tweets       map[string]models.Tweet        `json:"tweets"`
	WatchHistory map[string][]models.WatchEntry `json:"watchHistory"`
}

// Storage is the JSON-file-backed datastore. All mutating operations take the
// write lock, apply the change, and persist the full dataset atomically via a
// temp-file rename.
type Storage struct {
	mu       sync.RWMutex
	filePath string
	data     dataset
	// persistOverride allows tests to intercept persist operations.
	persistOverride func(dataset) error
}

// Option mutates storage configuration.
type Option func(*Storage)

// CreateUserParams carries the fields required to register an account.
type CreateUserParams struct {
	Username  string
	Email     string
	FullName  string
	Password  string
	AvatarURL string
	CoverURL  string
}

// UserUpdate describes a partial update to a user record. Nil fields are left
// unchanged.
type UserUpdate struct {
	FullName  *string
	Email     *string
	AvatarURL *string
	CoverURL  *string
}

// CreateVideoParams carries the fields required to publish a video.
type CreateVideoParams struct {
	OwnerID      string
	Title        string
	Description  string
	VideoURL     string
	ThumbnailURL string
}

// VideoUpdate describes a partial update to a video record.
type VideoUpdate struct {
	Title        *string
	Description  *string
	ThumbnailURL *string
	Published    *bool
}

// ListVideosParams filters the video listing.
type ListVideosParams struct {
	OwnerID string
	Query   string
	// IncludeHidden lists unpublished and still-processing videos; reserved
	// for owners and internal workers.
	IncludeHidden bool
}

// PlaylistUpdate describes a partial update to a playlist record.
type PlaylistUpdate struct {
	Name        *string
	Description *string
}
