package handler

import (
	"net/http"

	"github.com/go-auth-nosql/internal/application/auth"
	"github.com/go-auth-nosql/internal/application/otp"
)

// VerificationHandler handles email verification by link or by one-time code.
type VerificationHandler struct {
	auth    auth.Service
	otp     otp.Service
	cookies cookieWriter
}

func NewVerificationHandler(authSvc auth.Service, otpSvc otp.Service, secureCookies bool) *VerificationHandler {
	return &VerificationHandler{auth: authSvc, otp: otpSvc, cookies: cookieWriter{secure: secureCookies}}
}

func (h *VerificationHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}
	sess, err := h.auth.VerifyEmail(r.Context(), token)
	if err != nil {
		httpError(w, r, err)
		return
	}
	h.cookies.set(w, sess)
	writeJSON(w, http.StatusOK, authEnvelope("Email verified successfully", sess))
}

func (h *VerificationHandler) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req otp.SendRequest
	if !decode(w, r, &req) {
		return
	}
	msg, err := h.otp.Send(r.Context(), req.Email)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: msg})
}

func (h *VerificationHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req otp.VerifyRequest
	if !decode(w, r, &req) {
		return
	}
	sess, err := h.otp.Verify(r.Context(), req.Email, req.Code)
	if err != nil {
		httpError(w, r, err)
		return
	}
	h.cookies.set(w, sess)
	writeJSON(w, http.StatusOK, authEnvelope("Email verified successfully", sess))
}
