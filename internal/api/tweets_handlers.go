package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"streamtube/internal/storage"
)

type tweetRequest struct {
	Content string `json:"content"`
}

// Tweets serves the tweet collection: GET lists a user's tweets, POST posts
// one as the authenticated user.
func (h *Handler) Tweets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		ownerID := strings.TrimSpace(r.URL.Query().Get("owner"))
		if ownerID == "" {
			user, ok := h.requireAuthenticatedUser(w, r)
			if !ok {
				return
			}
			ownerID = user.ID
		}
		tweets, err := h.Store.ListTweets(ownerID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				writeError(w, http.StatusNotFound, fmt.Errorf("user not found"))
				return
			}
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"tweets": tweets})
	case http.MethodPost:
		user, ok := h.requireAuthenticatedUser(w, r)
		if !ok {
			return
		}
		var req tweetRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		tweet, err := h.Store.CreateTweet(user.ID, req.Content)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]interface{}{"tweet": tweet})
	default:
		methodNotAllowed(w, r, "GET", "POST")
	}
}

// TweetByID serves PATCH and DELETE on a single tweet for its author.
func (h *Handler) TweetByID(w http.ResponseWriter, r *http.Request) {
	tweetID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/tweets/"), "/")
	if tweetID == "" || strings.Contains(tweetID, "/") {
		writeError(w, http.StatusNotFound, fmt.Errorf("tweet not found"))
		return
	}

	tweet, exists := h.Store.GetTweet(tweetID)
	if !exists {
		writeError(w, http.StatusNotFound, fmt.Errorf("tweet not found"))
		return
	}
	if _, ok := h.requireOwnership(w, r, tweet.OwnerID); !ok {
		return
	}

	switch r.Method {
	case http.MethodPatch:
		var req tweetRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		updated, err := h.Store.UpdateTweet(tweetID, req.Content)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"tweet": updated})
	case http.MethodDelete:
		if err := h.Store.DeleteTweet(tweetID); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, "PATCH", "DELETE")
	}
}
