package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/quartzlab/depot/internal/depot/domain"
	"github.com/quartzlab/depot/internal/depot/service"
	"github.com/quartzlab/depot/pkg/httpx"
)

const refreshCookieName = "refresh_token"

// refreshCookiePath keeps the cookie off every request except the auth
// endpoints themselves.
const refreshCookiePath = "/v1/auth"

// AuthHandler serves the /v1/auth endpoints. The refresh credential only
// ever travels in an HTTP-only cookie; response bodies carry the access
// token alone.
type AuthHandler struct {
	Session      service.Session
	RefreshTTL   time.Duration
	SecureCookie bool
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int64  `json:"expiresIn"`
}

func (h *AuthHandler) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     refreshCookiePath,
		MaxAge:   int(h.RefreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) writePair(w http.ResponseWriter, pair domain.TokenPair) {
	h.setRefreshCookie(w, pair.RefreshToken)
	httpx.WriteJSON(w, http.StatusOK, tokenResponse{
		AccessToken: pair.AccessToken,
		TokenType:   pair.TokenType,
		ExpiresIn:   pair.ExpiresIn,
	})
}

// HandleLogin serves POST /v1/auth/login.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadRequest(w)
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeBadRequest(w)
		return
	}

	pair, err := h.Session.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	h.writePair(w, pair)
}

// HandleRefresh serves POST /v1/auth/refresh. The credential comes from
// the cookie, never the body.
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(refreshCookieName)
	if err != nil || c.Value == "" {
		writeServiceError(r.Context(), w, service.ErrInvalidRefresh)
		return
	}

	pair, err := h.Session.Refresh(r.Context(), c.Value)
	if err != nil {
		h.clearRefreshCookie(w)
		writeServiceError(r.Context(), w, err)
		return
	}

	h.writePair(w, pair)
}

// HandleLogout serves POST /v1/auth/logout. The cookie is cleared no
// matter what; a missing or stale token still logs out cleanly.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.clearRefreshCookie(w)

	if c, err := r.Cookie(refreshCookieName); err == nil && c.Value != "" {
		if err := h.Session.Logout(r.Context(), c.Value); err != nil {
			writeServiceError(r.Context(), w, err)
			return
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleMe serves GET /v1/auth/me.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	id, err := h.Session.CurrentUser(r.Context(), bearerToken(r))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, id)
}
