package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"streamtube/internal/storage"
)

type createPlaylistRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type updatePlaylistRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// Playlists serves the playlist collection: GET lists a user's playlists,
// POST creates one for the authenticated user.
func (h *Handler) Playlists(w http.ResponseWriter, r *http.Request) {
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
		playlists, err := h.Store.ListPlaylists(ownerID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				writeError(w, http.StatusNotFound, fmt.Errorf("user not found"))
				return
			}
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"playlists": playlists})
	case http.MethodPost:
		user, ok := h.requireAuthenticatedUser(w, r)
		if !ok {
			return
		}
		var req createPlaylistRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		playlist, err := h.Store.CreatePlaylist(user.ID, req.Name, req.Description)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]interface{}{"playlist": playlist})
	default:
		methodNotAllowed(w, r, "GET", "POST")
	}
}

// PlaylistByID dispatches /api/playlists/{id} and its video membership
// subresource /api/playlists/{id}/videos/{videoID}.
func (h *Handler) PlaylistByID(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/playlists/"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusNotFound, fmt.Errorf("playlist not found"))
		return
	}
	playlistID := parts[0]

	playlist, exists := h.Store.GetPlaylist(playlistID)
	if !exists {
		writeError(w, http.StatusNotFound, fmt.Errorf("playlist not found"))
		return
	}

	if len(parts) == 3 && parts[1] == "videos" {
		h.playlistMembership(w, r, playlist.OwnerID, playlistID, parts[2])
		return
	}
	if len(parts) != 1 {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown playlist resource"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]interface{}{"playlist": playlist})
	case http.MethodPatch:
		if _, ok := h.requireOwnership(w, r, playlist.OwnerID); !ok {
			return
		}
		var req updatePlaylistRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		updated, err := h.Store.UpdatePlaylist(playlistID, storage.PlaylistUpdate{
			Name:        req.Name,
			Description: req.Description,
		})
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"playlist": updated})
	case http.MethodDelete:
		if _, ok := h.requireOwnership(w, r, playlist.OwnerID); !ok {
			return
		}
		if err := h.Store.DeletePlaylist(playlistID); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, "GET", "PATCH", "DELETE")
	}
}

func (h *Handler) playlistMembership(w http.ResponseWriter, r *http.Request, ownerID, playlistID, videoID string) {
	if _, ok := h.requireOwnership(w, r, ownerID); !ok {
		return
	}

	switch r.Method {
	case http.MethodPost:
		playlist, err := h.Store.AddVideoToPlaylist(playlistID, videoID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				writeError(w, http.StatusNotFound, err)
				return
			}
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"playlist": playlist})
	case http.MethodDelete:
		playlist, err := h.Store.RemoveVideoFromPlaylist(playlistID, videoID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				writeError(w, http.StatusNotFound, err)
				return
			}
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"playlist": playlist})
	default:
		methodNotAllowed(w, r, "POST", "DELETE")
	}
}
