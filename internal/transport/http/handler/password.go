package handler

import (
	"net/http"

	"github.com/go-auth-nosql/internal/application/auth"
)

// PasswordHandler handles the forgot and reset password flow.
type PasswordHandler struct {
	svc auth.Service
}

func NewPasswordHandler(svc auth.Service) *PasswordHandler {
	return &PasswordHandler{svc: svc}
}

func (h *PasswordHandler) Forgot(w http.ResponseWriter, r *http.Request) {
	var req auth.ForgotPasswordRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: h.svc.ForgotPassword(r.Context(), req.Email)})
}

func (h *PasswordHandler) Reset(w http.ResponseWriter, r *http.Request) {
	var req auth.ResetPasswordRequest
	if !decode(w, r, &req) {
		return
	}
	msg, err := h.svc.ResetPassword(r.Context(), req.Token, req.Password)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: msg})
}
