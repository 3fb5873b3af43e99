package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"streamtube/internal/models"
)

func TestCommentByIDOwnerGate(t *testing.T) {
	handler, store := newTestHandler(t)
	owner := registerUser(t, store, "alice")
	other := registerUser(t, store, "bob")
	video := createTestVideo(t, store, owner.ID, "published one")
	comment, err := store.CreateComment(video.ID, owner.ID, "original")
	if err != nil {
		t.Fatalf("CreateComment error: %v", err)
	}

	patch := authedRequest(jsonRequest(t, http.MethodPatch, "/api/comments/"+comment.ID, map[string]string{
		"content": "hijacked",
	}), other)
	rec := httptest.NewRecorder()
	handler.CommentByID(rec, patch)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rec.Code)
	}

	patch = authedRequest(jsonRequest(t, http.MethodPatch, "/api/comments/"+comment.ID, map[string]string{
		"content": "edited",
	}), owner)
	rec = httptest.NewRecorder()
	handler.CommentByID(rec, patch)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Comment models.Comment `json:"comment"`
	}
	decodeBody(t, rec, &payload)
	if payload.Comment.Content != "edited" {
		t.Fatalf("content = %q", payload.Comment.Content)
	}

	del := authedRequest(httptest.NewRequest(http.MethodDelete, "/api/comments/"+comment.ID, nil), owner)
	rec = httptest.NewRecorder()
	handler.CommentByID(rec, del)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rec.Code)
	}
	if _, exists := store.GetComment(comment.ID); exists {
		t.Fatal("comment still present")
	}
}

func TestCommentByIDNotFound(t *testing.T) {
	handler, store := newTestHandler(t)
	user := registerUser(t, store, "alice")

	req := authedRequest(jsonRequest(t, http.MethodPatch, "/api/comments/missing", map[string]string{
		"content": "anything",
	}), user)
	rec := httptest.NewRecorder()
	handler.CommentByID(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}
