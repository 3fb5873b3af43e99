// Package api implements the HTTP handlers for the StreamTube REST surface.
package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"streamtube/internal/auth"
	"streamtube/internal/media"
	"streamtube/internal/observability/metrics"
	"streamtube/internal/storage"
)

// Handler carries the dependencies shared by every HTTP endpoint.
type Handler struct {
	Store            storage.Repository
	Sessions         *auth.SessionManager
	Media            media.Client
	Processor        *VideoProcessor
	AuthCookiePolicy AuthCookiePolicy
	Logger           *slog.Logger
}

func NewHandler(store storage.Repository, sessions *auth.SessionManager) *Handler {
	return &Handler{
		Store:    store,
		Sessions: sessions,
		Media:    media.NoopClient{},
	}
}

func (h *Handler) sessionManager() *auth.SessionManager {
	if h.Sessions == nil {
		// Throwaway dev secrets; production wiring always injects Sessions.
		access, _ := auth.NewTokenCodec([]byte("streamtube-dev-access"), 15*time.Minute)
		refresh, _ := auth.NewTokenCodec([]byte("streamtube-dev-refresh"), 7*24*time.Hour)
		if manager, err := auth.NewSessionManager(access, refresh); err == nil {
			h.Sessions = manager
		}
	}
	return h.Sessions
}

func (h *Handler) mediaClient() media.Client {
	if h.Media == nil {
		return media.NoopClient{}
	}
	return h.Media
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

// Health reports liveness of the datastore and session token store.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	checks := map[string]string{}
	if h.Store != nil {
		if err := h.Store.Ping(r.Context()); err != nil {
			checks["storage"] = "degraded"
			status = "degraded"
		} else {
			checks["storage"] = "ok"
		}
	}
	if sessions := h.sessionManager(); sessions != nil {
		if err := sessions.Ping(r.Context()); err != nil {
			checks["sessions"] = "degraded"
			status = "degraded"
		} else {
			checks["sessions"] = "ok"
		}
	}
	for component, state := range checks {
		metrics.SetDependencyHealth(component, state)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   status,
		"services": checks,
	})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed(r.Method))
}
