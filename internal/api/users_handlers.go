package api

import (
	"fmt"
	"net/http"
	"strings"

	"streamtube/internal/storage"
)

// UserByID serves the public channel pages for an account. The bare path
// returns the profile plus its published videos; the tweets and playlists
// subresources list those collections. Lookup accepts a user ID or a
// username.
func (h *Handler) UserByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}

	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/users/"), "/")
	parts := strings.Split(rest, "/")
	identifier := parts[0]
	if identifier == "" || len(parts) > 2 {
		writeError(w, http.StatusNotFound, fmt.Errorf("user not found"))
		return
	}

	user, exists := h.Store.GetUser(identifier)
	if !exists {
		user, exists = h.Store.FindUserByIdentity(identifier)
	}
	if !exists {
		writeError(w, http.StatusNotFound, fmt.Errorf("user not found"))
		return
	}

	if len(parts) == 1 {
		videos := h.Store.ListVideos(storage.ListVideosParams{OwnerID: user.ID})
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"user":   user.Public(false),
			"videos": videos,
		})
		return
	}

	switch parts[1] {
	case "tweets":
		tweets, err := h.Store.ListTweets(user.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, tweets)
	case "playlists":
		playlists, err := h.Store.ListPlaylists(user.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, playlists)
	default:
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown resource"))
	}
}
