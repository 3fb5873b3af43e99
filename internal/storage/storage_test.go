package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"streamtube/internal/models"
)

func newTestStore(t *testing.T) *Storage {
	t.Helper()
	dir := t.TempDir()
	store, err := NewStorage(filepath.Join(dir, "store.json"))
	if err != nil {
		t.Fatalf("NewStorage error: %v", err)
	}
	return store
}

func createTestUser(t *testing.T, store *Storage, username string) models.User {
	t.Helper()
	user, err := store.CreateUser(CreateUserParams{
		Username: username,
		Email:    username + "@example.com",
		FullName: "Test " + username,
		Password: "correct horse battery",
	})
	if err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}
	return user
}

func createTestVideo(t *testing.T, store *Storage, ownerID, title string) models.Video {
	t.Helper()
	video, err := store.CreateVideo(CreateVideoParams{
		OwnerID:  ownerID,
		Title:    title,
		VideoURL: "https://cdn.example.com/" + title + ".mp4",
	})
	if err != nil {
		t.Fatalf("CreateVideo error: %v", err)
	}
	return video
}

func markReady(t *testing.T, store *Storage, videoID string) models.Video {
	t.Helper()
	video, err := store.SetVideoState(videoID, models.VideoStateReady, 42.5)
	if err != nil {
		t.Fatalf("SetVideoState error: %v", err)
	}
	return video
}

func TestCreateUserRejectsDuplicateIdentities(t *testing.T) {
	store := newTestStore(t)
	createTestUser(t, store, "alice")

	cases := []struct {
		name   string
		params CreateUserParams
	}{
		{
			name: "duplicate username differing only by case",
			params: CreateUserParams{
				Username: "ALICE",
				Email:    "other@example.com",
				FullName: "Alice Again",
				Password: "correct horse battery",
			},
		},
		{
			name: "duplicate email differing only by case",
			params: CreateUserParams{
				Username: "alice2",
				Email:    "Alice@Example.com",
				FullName: "Alice Again",
				Password: "correct horse battery",
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := store.CreateUser(tc.params); err == nil {
				t.Fatal("expected duplicate identity to be rejected")
			}
		})
	}
}

func TestCreateUserValidatesInput(t *testing.T) {
	store := newTestStore(t)

	cases := []struct {
		name   string
		params CreateUserParams
	}{
		{name: "missing username", params: CreateUserParams{Email: "a@example.com", FullName: "A", Password: "longenough"}},
		{name: "missing email", params: CreateUserParams{Username: "a", FullName: "A", Password: "longenough"}},
		{name: "malformed email", params: CreateUserParams{Username: "a", Email: "not-an-email", FullName: "A", Password: "longenough"}},
		{name: "short password", params: CreateUserParams{Username: "a", Email: "a@example.com", FullName: "A", Password: "short"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := store.CreateUser(tc.params); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestAuthenticateUserByUsernameOrEmail(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store, "bob")

	for _, identity := range []string{"bob", "BOB", "bob@example.com", "Bob@Example.com"} {
		got, err := store.AuthenticateUser(identity, "correct horse battery")
		if err != nil {
			t.Fatalf("AuthenticateUser(%q) error: %v", identity, err)
		}
		if got.ID != user.ID {
			t.Fatalf("AuthenticateUser(%q) returned user %q, want %q", identity, got.ID, user.ID)
		}
	}
}

func TestAuthenticateUserFailuresAreUniform(t *testing.T) {
	store := newTestStore(t)
	createTestUser(t, store, "carol")

	cases := []struct {
		name     string
		identity string
		password string
	}{
		{name: "unknown identity", identity: "nobody", password: "correct horse battery"},
		{name: "wrong password", identity: "carol", password: "wrong password"},
		{name: "empty password", identity: "carol", password: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := store.AuthenticateUser(tc.identity, tc.password); !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("expected ErrInvalidCredentials, got %v", err)
			}
		})
	}
}

func TestUpdateUserAppliesPartialChanges(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store, "dave")

	fullName := "Dave Renamed"
	avatar := "https://cdn.example.com/avatars/dave.png"
	updated, err := store.UpdateUser(user.ID, UserUpdate{FullName: &fullName, AvatarURL: &avatar})
	if err != nil {
		t.Fatalf("UpdateUser error: %v", err)
	}
	if updated.FullName != fullName || updated.AvatarURL != avatar {
		t.Fatalf("unexpected update result: %+v", updated)
	}
	if updated.Email != user.Email {
		t.Fatalf("email changed unexpectedly: %q", updated.Email)
	}

	taken := createTestUser(t, store, "eve")
	if _, err := store.UpdateUser(user.ID, UserUpdate{Email: &taken.Email}); err == nil {
		t.Fatal("expected duplicate email to be rejected")
	}
}

func TestSetUserPasswordRequiresCurrentPassword(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store, "frank")

	if err := store.SetUserPassword(user.ID, "wrong password", "replacement pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := store.SetUserPassword(user.ID, "correct horse battery", "replacement pass"); err != nil {
		t.Fatalf("SetUserPassword error: %v", err)
	}
	if _, err := store.AuthenticateUser("frank", "replacement pass"); err != nil {
		t.Fatalf("authenticate with new password: %v", err)
	}
	if _, err := store.AuthenticateUser("frank", "correct horse battery"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password still accepted: %v", err)
	}
}

func TestDeleteUserCascades(t *testing.T) {
	store := newTestStore(t)
	owner := createTestUser(t, store, "grace")
	other := createTestUser(t, store, "heidi")

	video := createTestVideo(t, store, owner.ID, "owned")
	markReady(t, store, video.ID)
	otherVideo := createTestVideo(t, store, other.ID, "kept")
	markReady(t, store, otherVideo.ID)

	if _, err := store.CreateComment(otherVideo.ID, owner.ID, "nice"); err != nil {
		t.Fatalf("CreateComment error: %v", err)
	}
	if _, err := store.CreatePlaylist(owner.ID, "favs", ""); err != nil {
		t.Fatalf("CreatePlaylist error: %v", err)
	}
	if _, err := store.CreateTweet(owner.ID, "hello"); err != nil {
		t.Fatalf("CreateTweet error: %v", err)
	}
	if err := store.AddWatchEntry(owner.ID, otherVideo.ID); err != nil {
		t.Fatalf("AddWatchEntry error: %v", err)
	}

	if err := store.DeleteUser(owner.ID); err != nil {
		t.Fatalf("DeleteUser error: %v", err)
	}

	if _, ok := store.GetUser(owner.ID); ok {
		t.Fatal("user survived deletion")
	}
	if _, ok := store.GetVideo(video.ID); ok {
		t.Fatal("owned video survived deletion")
	}
	comments, err := store.ListComments(otherVideo.ID)
	if err != nil {
		t.Fatalf("ListComments error: %v", err)
	}
	if len(comments) != 0 {
		t.Fatalf("owner comments survived deletion: %d", len(comments))
	}
	if _, ok := store.GetVideo(otherVideo.ID); !ok {
		t.Fatal("unrelated video was deleted")
	}
}

func TestListVideosFilters(t *testing.T) {
	store := newTestStore(t)
	owner := createTestUser(t, store, "ivan")
	other := createTestUser(t, store, "judy")

	ready := createTestVideo(t, store, owner.ID, "Go Concurrency Patterns")
	markReady(t, store, ready.ID)
	processing := createTestVideo(t, store, owner.ID, "Still Processing")
	hidden := createTestVideo(t, store, other.ID, "Hidden Gem")
	markReady(t, store, hidden.ID)
	published := false
	if _, err := store.UpdateVideo(hidden.ID, VideoUpdate{Published: &published}); err != nil {
		t.Fatalf("UpdateVideo error: %v", err)
	}

	public := store.ListVideos(ListVideosParams{})
	if len(public) != 1 || public[0].ID != ready.ID {
		t.Fatalf("public listing = %+v, want only the ready published video", public)
	}

	all := store.ListVideos(ListVideosParams{IncludeHidden: true})
	if len(all) != 3 {
		t.Fatalf("hidden listing returned %d videos, want 3", len(all))
	}

	byOwner := store.ListVideos(ListVideosParams{OwnerID: owner.ID, IncludeHidden: true})
	if len(byOwner) != 2 {
		t.Fatalf("owner listing returned %d videos, want 2", len(byOwner))
	}

	matched := store.ListVideos(ListVideosParams{Query: "concurrency"})
	if len(matched) != 1 || matched[0].ID != ready.ID {
		t.Fatalf("query listing = %+v, want the concurrency video", matched)
	}

	inFlight := store.ListVideosByState(models.VideoStateProcessing)
	if len(inFlight) != 1 || inFlight[0].ID != processing.ID {
		t.Fatalf("processing listing = %+v, want the processing video", inFlight)
	}
}

func TestSetVideoStateRecordsDuration(t *testing.T) {
	store := newTestStore(t)
	owner := createTestUser(t, store, "kim")
	video := createTestVideo(t, store, owner.ID, "clip")

	if video.State != models.VideoStateProcessing {
		t.Fatalf("new video state = %q, want processing", video.State)
	}

	ready := markReady(t, store, video.ID)
	if ready.State != models.VideoStateReady || ready.Duration != 42.5 {
		t.Fatalf("ready video = %+v", ready)
	}

	failed, err := store.SetVideoState(video.ID, models.VideoStateFailed, 0)
	if err != nil {
		t.Fatalf("SetVideoState error: %v", err)
	}
	if failed.State != models.VideoStateFailed {
		t.Fatalf("failed video state = %q", failed.State)
	}
	if failed.Duration != 42.5 {
		t.Fatalf("duration reset on failure: %v", failed.Duration)
	}
}

func TestIncrementViews(t *testing.T) {
	store := newTestStore(t)
	owner := createTestUser(t, store, "liam")
	video := createTestVideo(t, store, owner.ID, "clip")

	for i := 0; i < 3; i++ {
		if _, err := store.IncrementViews(video.ID); err != nil {
			t.Fatalf("IncrementViews error: %v", err)
		}
	}
	got, _ := store.GetVideo(video.ID)
	if got.Views != 3 {
		t.Fatalf("views = %d, want 3", got.Views)
	}
}

func TestDeleteVideoCascades(t *testing.T) {
	store := newTestStore(t)
	owner := createTestUser(t, store, "mia")
	video := createTestVideo(t, store, owner.ID, "doomed")
	markReady(t, store, video.ID)
	kept := createTestVideo(t, store, owner.ID, "kept")
	markReady(t, store, kept.ID)

	comment, err := store.CreateComment(video.ID, owner.ID, "goodbye")
	if err != nil {
		t.Fatalf("CreateComment error: %v", err)
	}
	playlist, err := store.CreatePlaylist(owner.ID, "mixed", "")
	if err != nil {
		t.Fatalf("CreatePlaylist error: %v", err)
	}
	for _, id := range []string{video.ID, kept.ID} {
		if _, err := store.AddVideoToPlaylist(playlist.ID, id); err != nil {
			t.Fatalf("AddVideoToPlaylist error: %v", err)
		}
	}
	if err := store.AddWatchEntry(owner.ID, video.ID); err != nil {
		t.Fatalf("AddWatchEntry error: %v", err)
	}

	if err := store.DeleteVideo(video.ID); err != nil {
		t.Fatalf("DeleteVideo error: %v", err)
	}

	if _, ok := store.GetComment(comment.ID); ok {
		t.Fatal("comment survived video deletion")
	}
	updated, _ := store.GetPlaylist(playlist.ID)
	if len(updated.VideoIDs) != 1 || updated.VideoIDs[0] != kept.ID {
		t.Fatalf("playlist videos = %v, want only the kept video", updated.VideoIDs)
	}
	history, err := store.WatchHistory(owner.ID)
	if err != nil {
		t.Fatalf("WatchHistory error: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("watch history still references deleted video: %+v", history)
	}
}

func TestPlaylistMembershipIsSetLike(t *testing.T) {
	store := newTestStore(t)
	owner := createTestUser(t, store, "nina")
	video := createTestVideo(t, store, owner.ID, "clip")
	playlist, err := store.CreatePlaylist(owner.ID, "watchlist", "later")
	if err != nil {
		t.Fatalf("CreatePlaylist error: %v", err)
	}

	for i := 0; i < 2; i++ {
		if playlist, err = store.AddVideoToPlaylist(playlist.ID, video.ID); err != nil {
			t.Fatalf("AddVideoToPlaylist error: %v", err)
		}
	}
	if len(playlist.VideoIDs) != 1 {
		t.Fatalf("duplicate add produced %d entries", len(playlist.VideoIDs))
	}

	if playlist, err = store.RemoveVideoFromPlaylist(playlist.ID, video.ID); err != nil {
		t.Fatalf("RemoveVideoFromPlaylist error: %v", err)
	}
	if len(playlist.VideoIDs) != 0 {
		t.Fatalf("remove left %d entries", len(playlist.VideoIDs))
	}
	if _, err = store.RemoveVideoFromPlaylist(playlist.ID, video.ID); err != nil {
		t.Fatalf("removing absent video should be a no-op, got %v", err)
	}
}

func TestTweetLengthLimit(t *testing.T) {
	store := newTestStore(t)
	owner := createTestUser(t, store, "omar")

	if _, err := store.CreateTweet(owner.ID, strings.Repeat("x", MaxTweetLength+1)); err == nil {
		t.Fatal("expected oversized tweet to be rejected")
	}
	tweet, err := store.CreateTweet(owner.ID, strings.Repeat("x", MaxTweetLength))
	if err != nil {
		t.Fatalf("CreateTweet error: %v", err)
	}
	if _, err := store.UpdateTweet(tweet.ID, ""); err == nil {
		t.Fatal("expected empty update to be rejected")
	}
}

func TestWatchHistoryDeduplicatesAndOrders(t *testing.T) {
	store := newTestStore(t)
	owner := createTestUser(t, store, "pia")
	first := createTestVideo(t, store, owner.ID, "first")
	second := createTestVideo(t, store, owner.ID, "second")

	for _, id := range []string{first.ID, second.ID, first.ID} {
		if err := store.AddWatchEntry(owner.ID, id); err != nil {
			t.Fatalf("AddWatchEntry error: %v", err)
		}
	}

	history, err := store.WatchHistory(owner.ID)
	if err != nil {
		t.Fatalf("WatchHistory error: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].VideoID != first.ID || history[1].VideoID != second.ID {
		t.Fatalf("history order = %+v, want most recent first", history)
	}
}

func TestStorageReloadsPersistedDataset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")

	store, err := NewStorage(path)
	if err != nil {
		t.Fatalf("NewStorage error: %v", err)
	}
	user := createTestUser(t, store, "quinn")
	video := createTestVideo(t, store, user.ID, "persisted")

	reloaded, err := NewStorage(path)
	if err != nil {
		t.Fatalf("NewStorage reload error: %v", err)
	}
	if _, ok := reloaded.GetUser(user.ID); !ok {
		t.Fatal("user lost across reload")
	}
	if _, ok := reloaded.GetVideo(video.ID); !ok {
		t.Fatal("video lost across reload")
	}
	if _, err := reloaded.AuthenticateUser("quinn", "correct horse battery"); err != nil {
		t.Fatalf("authenticate after reload: %v", err)
	}
}

func TestPersistFailureRollsBackMutation(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store, "ruth")

	persistErr := errors.New("disk full")
	store.persistOverride = func(dataset) error { return persistErr }

	if _, err := store.CreateTweet(user.ID, "doomed"); !errors.Is(err, persistErr) {
		t.Fatalf("expected persist error, got %v", err)
	}

	store.persistOverride = nil
	tweets, err := store.ListTweets(user.ID)
	if err != nil {
		t.Fatalf("ListTweets error: %v", err)
	}
	if len(tweets) != 0 {
		t.Fatalf("rolled-back tweet still present: %+v", tweets)
	}
}

func TestStoragePing(t *testing.T) {
	store := newTestStore(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := store.Ping(ctx); err == nil {
		t.Fatal("expected cancelled context to fail ping")
	}
}
