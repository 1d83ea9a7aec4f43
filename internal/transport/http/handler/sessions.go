package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-auth-nosql/internal/application/session"
	"github.com/go-auth-nosql/internal/domain"
)

const refreshCookie = "refreshToken"

// SessionHandler handles login and access token refresh.
type SessionHandler struct {
	svc     session.Service
	cookies cookieWriter
}

func NewSessionHandler(svc session.Service, secureCookies bool) *SessionHandler {
	return &SessionHandler{svc: svc, cookies: cookieWriter{secure: secureCookies}}
}

func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req session.LoginRequest
	if !decode(w, r, &req) {
		return
	}
	sess, err := h.svc.Login(r.Context(), req)
	if err != nil {
		httpError(w, r, err)
		return
	}
	h.cookies.set(w, sess)
	writeJSON(w, http.StatusOK, authEnvelope("Login successful", sess))
}

// Refresh accepts the refresh token from the JSON body or the refreshToken cookie.
func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RefreshToken == "" {
		if c, err := r.Cookie(refreshCookie); err == nil {
			req.RefreshToken = c.Value
		}
	}
	sess, err := h.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authEnvelope("Access token refreshed", sess))
}

type cookieWriter struct {
	secure bool
}

func (c cookieWriter) set(w http.ResponseWriter, sess *domain.Session) {
	if sess.RefreshToken == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    sess.RefreshToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func authEnvelope(msg string, sess *domain.Session) AuthEnvelope {
	return AuthEnvelope{
		Message:      msg,
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		User:         sess.Account,
	}
}
