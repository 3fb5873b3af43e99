package api

import (
	"net/http"
	"strings"
	"time"

	"streamtube/internal/auth"
)

const (
	accessTokenCookie  = "accessToken"
	refreshTokenCookie = "refreshToken"
)

// AuthCookieSecureMode controls when auth cookies carry the Secure attribute.
type AuthCookieSecureMode int

const (
	// AuthCookieSecureAuto marks cookies Secure only on requests that
	// arrived over TLS (directly or via a trusted proxy).
	AuthCookieSecureAuto AuthCookieSecureMode = iota
	// AuthCookieSecureAlways marks cookies Secure unconditionally.
	AuthCookieSecureAlways
)

// AuthCookiePolicy configures the attributes applied to the token cookie
// pair.
type AuthCookiePolicy struct {
	SameSite   http.SameSite
	SecureMode AuthCookieSecureMode
}

func DefaultAuthCookiePolicy() AuthCookiePolicy {
	return AuthCookiePolicy{
		SameSite:   http.SameSiteStrictMode,
		SecureMode: AuthCookieSecureAuto,
	}
}

func (p AuthCookiePolicy) secure(r *http.Request) bool {
	if p.SecureMode == AuthCookieSecureAlways {
		return true
	}
	return isSecureRequest(r)
}

func (h *Handler) authCookiePolicy() AuthCookiePolicy {
	policy := h.AuthCookiePolicy
	if policy.SameSite == 0 {
		policy.SameSite = http.SameSiteStrictMode
	}
	return policy
}

func setAuthCookie(w http.ResponseWriter, r *http.Request, name, token string, expires time.Time, policy AuthCookiePolicy) {
	if token == "" {
		return
	}
	maxAge := int(time.Until(expires).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    token,
		Path:     "/",
		Expires:  expires.UTC(),
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   policy.secure(r),
		SameSite: policy.SameSite,
	})
}

func (h *Handler) setAuthCookies(w http.ResponseWriter, r *http.Request, pair auth.TokenPair) {
	policy := h.authCookiePolicy()
	setAuthCookie(w, r, accessTokenCookie, pair.AccessToken, pair.AccessExpiresAt, policy)
	setAuthCookie(w, r, refreshTokenCookie, pair.RefreshToken, pair.RefreshExpiresAt, policy)
}

func clearAuthCookie(w http.ResponseWriter, r *http.Request, name string, policy AuthCookiePolicy) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   policy.secure(r),
		SameSite: policy.SameSite,
	})
}

// ClearAuthCookies removes both token cookies using the handler's configured
// policy.
func (h *Handler) ClearAuthCookies(w http.ResponseWriter, r *http.Request) {
	policy := h.authCookiePolicy()
	clearAuthCookie(w, r, accessTokenCookie, policy)
	clearAuthCookie(w, r, refreshTokenCookie, policy)
}

func isSecureRequest(r *http.Request) bool {
	if r == nil {
		return false
	}
	if r.TLS != nil {
		return true
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		for _, p := range strings.Split(proto, ",") {
			if strings.EqualFold(strings.TrimSpace(p), "https") {
				return true
			}
		}
	}
	if r.URL != nil && strings.EqualFold(r.URL.Scheme, "https") {
		return true
	}
	return false
}
