package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"streamtube/internal/storage"
)

type updateCommentRequest struct {
	Content string `json:"content"`
}

// CommentByID serves PATCH and DELETE on a single comment. Only the comment's
// author may modify it.
func (h *Handler) CommentByID(w http.ResponseWriter, r *http.Request) {
	commentID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/comments/"), "/")
	if commentID == "" || strings.Contains(commentID, "/") {
		writeError(w, http.StatusNotFound, fmt.Errorf("comment not found"))
		return
	}

	comment, exists := h.Store.GetComment(commentID)
	if !exists {
		writeError(w, http.StatusNotFound, fmt.Errorf("comment not found"))
		return
	}
	if _, ok := h.requireOwnership(w, r, comment.OwnerID); !ok {
		return
	}

	switch r.Method {
	case http.MethodPatch:
		var req updateCommentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		updated, err := h.Store.UpdateComment(commentID, req.Content)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				writeError(w, http.StatusNotFound, err)
				return
			}
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"comment": updated})
	case http.MethodDelete:
		if err := h.Store.DeleteComment(commentID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				writeError(w, http.StatusNotFound, err)
				return
			}
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, "PATCH", "DELETE")
	}
}
