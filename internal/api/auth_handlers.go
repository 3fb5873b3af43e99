package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"streamtube/internal/auth"
	"streamtube/internal/media"
	"streamtube/internal/models"
	"streamtube/internal/observability/metrics"
	"streamtube/internal/storage"
)

const (
	maxImageUploadBytes = 16 << 20
	maxVideoUploadBytes = 512 << 20
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Password string `json:"password"`
}

type loginRequest struct {
	Identity string `json:"identity"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type updateAccountRequest struct {
	FullName *string `json:"fullName"`
	Email    *string `json:"email"`
}

type tokenResponse struct {
	User             models.PublicUser `json:"user"`
	AccessToken      string            `json:"accessToken"`
	RefreshToken     string            `json:"refreshToken"`
	AccessExpiresAt  string            `json:"accessExpiresAt"`
	RefreshExpiresAt string            `json:"refreshExpiresAt"`
}

func newTokenResponse(user models.User, pair auth.TokenPair) tokenResponse {
	return tokenResponse{
		User:             user.Public(true),
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt.UTC().Format(timeFormat),
		RefreshExpiresAt: pair.RefreshExpiresAt.UTC().Format(timeFormat),
	}
}

const timeFormat = "2006-01-02T15:04:05Z07:00"

// Register creates a new account. The endpoint accepts multipart form data so
// the avatar and cover image can be uploaded in the same request, or a plain
// JSON body when no files are attached.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, "POST")
		return
	}

	var req registerRequest
	var avatarURL, coverURL string

	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxImageUploadBytes); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("parse form: %w", err))
			return
		}
		req.Username = r.FormValue("username")
		req.Email = r.FormValue("email")
		req.FullName = r.FormValue("fullName")
		req.Password = r.FormValue("password")

		if url, err := h.uploadFormImage(r, "avatar", "avatars", req.Username); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		} else {
			avatarURL = url
		}
		if url, err := h.uploadFormImage(r, "coverImage", "covers", req.Username); err != nil && !errors.Is(err, errFileMissing) {
			writeError(w, http.StatusBadRequest, err)
			return
		} else if err == nil {
			coverURL = url
		}
	} else {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	user, err := h.Store.CreateUser(storage.CreateUserParams{
		Username:  req.Username,
		Email:     req.Email,
		FullName:  req.FullName,
		Password:  req.Password,
		AvatarURL: avatarURL,
		CoverURL:  coverURL,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	h.logger().Info("account registered", "user_id", user.ID, "username", user.Username)
	writeJSON(w, http.StatusCreated, map[string]interface{}{"user": user.Public(true)})
}

// Login verifies credentials by username or email and starts a session. Any
// earlier session for the account is superseded.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, "POST")
		return
	}

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	identity := firstNonEmptyString(req.Identity, req.Username, req.Email)

	user, err := h.Store.AuthenticateUser(identity, req.Password)
	if err != nil {
		metrics.ObserveAuthEvent("login_failure")
		writeError(w, http.StatusUnauthorized, fmt.Errorf("invalid credentials"))
		return
	}

	pair, err := h.sessionManager().Issue(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	metrics.ObserveAuthEvent("login_success")
	h.setAuthCookies(w, r, pair)
	writeJSON(w, http.StatusOK, newTokenResponse(user, pair))
}

// Logout revokes the current session and clears both token cookies.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, "POST")
		return
	}
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	if err := h.sessionManager().Revoke(user.ID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	metrics.ObserveAuthEvent("logout")
	h.ClearAuthCookies(w, r)
	w.WriteHeader(http.StatusNoContent)
}

// Refresh exchanges a refresh token, taken from the cookie or the request
// body, for a fresh token pair. Presenting a superseded token revokes the
// session entirely.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, "POST")
		return
	}

	token := ""
	if cookie, err := r.Cookie(refreshTokenCookie); err == nil {
		token = cookie.Value
	}
	if token == "" {
		var req refreshRequest
		if err := decodeJSON(r, &req); err == nil {
			token = strings.TrimSpace(req.RefreshToken)
		}
	}

	pair, err := h.sessionManager().Refresh(token)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrRefreshMismatch):
			metrics.ObserveAuthEvent("refresh_reuse")
			h.logger().Warn("refresh token reuse detected", "remote_addr", r.RemoteAddr)
		case errors.Is(err, auth.ErrRefreshMissing), errors.Is(err, auth.ErrRefreshInvalid):
		default:
			// Store outage, not a bad token. Keep the client's cookies so the
			// session survives the retry.
			h.logger().Error("refresh token lookup failed", "error", err)
			writeError(w, http.StatusInternalServerError, fmt.Errorf("session store unavailable"))
			return
		}
		h.ClearAuthCookies(w, r)
		writeError(w, http.StatusUnauthorized, fmt.Errorf("invalid refresh token"))
		return
	}

	userID, verifyErr := h.sessionManager().VerifyAccess(pair.AccessToken)
	if verifyErr != nil {
		writeError(w, http.StatusInternalServerError, verifyErr)
		return
	}
	user, exists := h.Store.GetUser(userID)
	if !exists {
		h.ClearAuthCookies(w, r)
		writeError(w, http.StatusUnauthorized, fmt.Errorf("invalid refresh token"))
		return
	}

	metrics.ObserveAuthEvent("token_refresh")
	h.setAuthCookies(w, r, pair)
	writeJSON(w, http.StatusOK, newTokenResponse(user, pair))
}

// ChangePassword swaps the account password after verifying the current one.
// The active session stays valid.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, "POST")
		return
	}
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.Store.SetUserPassword(user.ID, req.OldPassword, req.NewPassword); err != nil {
		if errors.Is(err, storage.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, fmt.Errorf("invalid current password"))
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "password changed"})
}

// CurrentUser serves the authenticated account: GET returns it, PATCH updates
// the editable profile fields.
func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]interface{}{"user": user.Public(true)})
	case http.MethodPatch:
		var req updateAccountRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		updated, err := h.Store.UpdateUser(user.ID, storage.UserUpdate{
			FullName: req.FullName,
			Email:    req.Email,
		})
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"user": updated.Public(true)})
	default:
		methodNotAllowed(w, r, "GET", "PATCH")
	}
}

// UpdateAvatar replaces the account avatar with an uploaded image.
func (h *Handler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	h.updateAccountImage(w, r, "avatar", "avatars")
}

// UpdateCover replaces the account cover image with an uploaded image.
func (h *Handler) UpdateCover(w http.ResponseWriter, r *http.Request) {
	h.updateAccountImage(w, r, "coverImage", "covers")
}

func (h *Handler) updateAccountImage(w http.ResponseWriter, r *http.Request, field, kind string) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, "PATCH")
		return
	}
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxImageUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("parse form: %w", err))
		return
	}
	url, err := h.uploadFormImage(r, field, kind, user.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	update := storage.UserUpdate{}
	if kind == "avatars" {
		update.AvatarURL = &url
	} else {
		update.CoverURL = &url
	}
	updated, err := h.Store.UpdateUser(user.ID, update)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": updated.Public(true)})
}

// WatchHistoryHandler lists the authenticated user's watch history with the
// referenced videos resolved.
func (h *Handler) WatchHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}

	entries, err := h.Store.WatchHistory(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	type historyItem struct {
		Video     models.Video `json:"video"`
		WatchedAt string       `json:"watchedAt"`
	}
	items := make([]historyItem, 0, len(entries))
	for _, entry := range entries {
		video, exists := h.Store.GetVideo(entry.VideoID)
		if !exists {
			continue
		}
		items = append(items, historyItem{Video: video, WatchedAt: entry.WatchedAt.UTC().Format(timeFormat)})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"history": items})
}

var errFileMissing = errors.New("file is required")

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/")
}

func readFormFile(r *http.Request, field string, limit int64) ([]byte, *multipart.FileHeader, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil, fmt.Errorf("%w: %s", errFileMissing, field)
		}
		return nil, nil, fmt.Errorf("read %s: %w", field, err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", field, err)
	}
	if int64(len(data)) > limit {
		return nil, nil, fmt.Errorf("%s exceeds the %d byte limit", field, limit)
	}
	return data, header, nil
}

func (h *Handler) uploadFormImage(r *http.Request, field, kind, owner string) (string, error) {
	data, header, err := readFormFile(r, field, maxImageUploadBytes)
	if err != nil {
		return "", err
	}
	contentType := header.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("%s must be an image", field)
	}
	ref, err := h.mediaClient().Upload(r.Context(), media.ObjectKey(kind, owner, header.Filename), contentType, data)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", field, err)
	}
	return ref.URL, nil
}

func firstNonEmptyString(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}
