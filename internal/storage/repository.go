package storage

import (
	"context"

	"streamtube/internal/models"
)

// Repository exposes the datastore operations required by API handlers and
// the video processing worker.
type Repository interface {
	Ping(ctx context.Context) error

	CreateUser(params CreateUserParams) (models.User, error)
	AuthenticateUser(identity, password string) (models.User, error)
	GetUser(id string) (models.User, bool)
	FindUserByIdentity(identity string) (models.User, bool)
	UpdateUser(id string, update UserUpdate) (models.User, error)
	SetUserPassword(id, currentPassword, newPassword string) error
	DeleteUser(id string) error

	AddWatchEntry(userID, videoID string) error
	WatchHistory(userID string) ([]models.WatchEntry, error)

	CreateVideo(params CreateVideoParams) (models.Video, error)
	GetVideo(id string) (models.Video, bool)
	ListVideos(params ListVideosParams) []models.Video
	ListVideosByState(state models.VideoState) []models.Video
	UpdateVideo(id string, update VideoUpdate) (models.Video, error)
	SetVideoState(id string, state models.VideoState, duration float64) (models.Video, error)
	IncrementViews(id string) (models.Video, error)
	DeleteVideo(id string) error

	CreateComment(videoID, ownerID, content string) (models.Comment, error)
	GetComment(id string) (models.Comment, bool)
	ListComments(videoID string) ([]models.Comment, error)
	UpdateComment(id, content string) (models.Comment, error)
	DeleteComment(id string) error

	CreatePlaylist(ownerID, name, description string) (models.Playlist, error)
	GetPlaylist(id string) (models.Playlist, bool)
	ListPlaylists(ownerID string) ([]models.Playlist, error)
	UpdatePlaylist(id string, update PlaylistUpdate) (models.Playlist, error)
	AddVideoToPlaylist(playlistID, videoID string) (models.Playlist, error)
	RemoveVideoFromPlaylist(playlistID, videoID string) (models.Playlist, error)
	DeletePlaylist(id string) error

	CreateTweet(ownerID, content string) (models.Tweet, error)
	GetTweet(id string) (models.Tweet, bool)
	ListTweets(ownerID string) ([]models.Tweet, error)
	UpdateTweet(id, content string) (models.Tweet, error)
	DeleteTweet(id string) error
}

var _ Repository = (*Storage)(nil)
