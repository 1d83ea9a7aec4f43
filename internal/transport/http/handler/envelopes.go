package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-auth-nosql/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// AuthEnvelope wraps responses that carry a token pair.
type AuthEnvelope struct {
	Message      string          `json:"message,omitempty"`
	AccessToken  string          `json:"access_token,omitempty"`
	RefreshToken string          `json:"refresh_token,omitempty"`
	User         *domain.Account `json:"user,omitempty"`
}

// RegistrationEnvelope wraps register and create responses.
type RegistrationEnvelope struct {
	Message          string          `json:"message"`
	User             *domain.Account `json:"user"`
	VerificationSent bool            `json:"verification_sent"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}
