package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"streamtube/internal/media"
	"streamtube/internal/models"
	"streamtube/internal/observability/metrics"
	"streamtube/internal/storage"
)

type updateVideoRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Published   *bool   `json:"published"`
}

type createCommentRequest struct {
	Content string `json:"content"`
}

// Videos serves the video collection: GET lists published videos, POST
// uploads a new one and queues it for processing.
func (h *Handler) Videos(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listVideos(w, r)
	case http.MethodPost:
		h.createVideo(w, r)
	default:
		methodNotAllowed(w, r, "GET", "POST")
	}
}

func (h *Handler) listVideos(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	params := storage.ListVideosParams{
		OwnerID: strings.TrimSpace(query.Get("owner")),
		Query:   query.Get("q"),
	}
	// Owners see their own drafts and still-processing uploads.
	if user, ok := UserFromContext(r.Context()); ok && params.OwnerID == user.ID {
		params.IncludeHidden = true
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"videos": h.Store.ListVideos(params)})
}

func (h *Handler) createVideo(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}

	var params storage.CreateVideoParams
	params.OwnerID = user.ID

	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxVideoUploadBytes); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("parse form: %w", err))
			return
		}
		params.Title = r.FormValue("title")
		params.Description = r.FormValue("description")

		data, header, err := readFormFile(r, "videoFile", maxVideoUploadBytes)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		ref, err := h.mediaClient().Upload(r.Context(), media.ObjectKey("videos", user.ID, header.Filename), header.Header.Get("Content-Type"), data)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Errorf("upload video: %w", err))
			return
		}
		params.VideoURL = ref.URL
		if params.VideoURL == "" {
			params.VideoURL = ref.Key
		}

		if thumbURL, err := h.uploadFormImage(r, "thumbnail", "thumbnails", user.ID); err == nil {
			params.ThumbnailURL = thumbURL
		} else if !errors.Is(err, errFileMissing) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	} else {
		var req struct {
			Title        string `json:"title"`
			Description  string `json:"description"`
			VideoURL     string `json:"videoUrl"`
			ThumbnailURL string `json:"thumbnailUrl"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		params.Title = req.Title
		params.Description = req.Description
		params.VideoURL = req.VideoURL
		params.ThumbnailURL = req.ThumbnailURL
	}

	video, err := h.Store.CreateVideo(params)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if h.Processor != nil {
		h.Processor.Enqueue(video.ID)
	}

	h.logger().Info("video uploaded", "video_id", video.ID, "owner_id", user.ID)
	writeJSON(w, http.StatusCreated, map[string]interface{}{"video": video})
}

// VideoByID dispatches /api/videos/{id} and its comment subresource.
func (h *Handler) VideoByID(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/videos/"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusNotFound, fmt.Errorf("video not found"))
		return
	}
	videoID := parts[0]

	if len(parts) == 2 && parts[1] == "comments" {
		h.videoComments(w, r, videoID)
		return
	}
	if len(parts) != 1 {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown video resource"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getVideo(w, r, videoID)
	case http.MethodPatch:
		h.updateVideo(w, r, videoID)
	case http.MethodDelete:
		h.deleteVideo(w, r, videoID)
	default:
		methodNotAllowed(w, r, "GET", "PATCH", "DELETE")
	}
}

func (h *Handler) getVideo(w http.ResponseWriter, r *http.Request, videoID string) {
	video, exists := h.Store.GetVideo(videoID)
	if !exists {
		writeError(w, http.StatusNotFound, fmt.Errorf("video not found"))
		return
	}

	viewer, authenticated := UserFromContext(r.Context())
	visible := video.Published && video.State == models.VideoStateReady
	if !visible && (!authenticated || viewer.ID != video.OwnerID) {
		writeError(w, http.StatusNotFound, fmt.Errorf("video not found"))
		return
	}

	if visible {
		if updated, err := h.Store.IncrementViews(video.ID); err == nil {
			video = updated
		}
		metrics.ObserveVideoView()
		if authenticated {
			_ = h.Store.AddWatchEntry(viewer.ID, video.ID)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"video": video})
}

func (h *Handler) updateVideo(w http.ResponseWriter, r *http.Request, videoID string) {
	video, exists := h.Store.GetVideo(videoID)
	if !exists {
		writeError(w, http.StatusNotFound, fmt.Errorf("video not found"))
		return
	}
	if _, ok := h.requireOwnership(w, r, video.OwnerID); !ok {
		return
	}

	var update storage.VideoUpdate
	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxImageUploadBytes); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("parse form: %w", err))
			return
		}
		if title := r.FormValue("title"); title != "" {
			update.Title = &title
		}
		if description := r.FormValue("description"); description != "" {
			update.Description = &description
		}
		if thumbURL, err := h.uploadFormImage(r, "thumbnail", "thumbnails", video.OwnerID); err == nil {
			update.ThumbnailURL = &thumbURL
		} else if !errors.Is(err, errFileMissing) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	} else {
		var req updateVideoRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		update.Title = req.Title
		update.Description = req.Description
		update.Published = req.Published
	}

	updated, err := h.Store.UpdateVideo(videoID, update)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"video": updated})
}

func (h *Handler) deleteVideo(w http.ResponseWriter, r *http.Request, videoID string) {
	video, exists := h.Store.GetVideo(videoID)
	if !exists {
		writeError(w, http.StatusNotFound, fmt.Errorf("video not found"))
		return
	}
	user, ok := h.requireOwnership(w, r, video.OwnerID)
	if !ok {
		return
	}

	if err := h.Store.DeleteVideo(videoID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.logger().Info("video deleted", "video_id", videoID, "owner_id", user.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) videoComments(w http.ResponseWriter, r *http.Request, videoID string) {
	switch r.Method {
	case http.MethodGet:
		comments, err := h.Store.ListComments(videoID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				writeError(w, http.StatusNotFound, fmt.Errorf("video not found"))
				return
			}
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"comments": comments})
	case http.MethodPost:
		user, ok := h.requireAuthenticatedUser(w, r)
		if !ok {
			return
		}
		var req createCommentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		comment, err := h.Store.CreateComment(videoID, user.ID, req.Content)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				writeError(w, http.StatusNotFound, fmt.Errorf("video not found"))
				return
			}
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]interface{}{"comment": comment})
	default:
		methodNotAllowed(w, r, "GET", "POST")
	}
}
