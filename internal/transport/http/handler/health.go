package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// HealthHandler answers liveness checks under /health-check/{action}.
type HealthHandler struct {
	env     string
	started time.Time
}

func NewHealthHandler(env string) *HealthHandler {
	return &HealthHandler{env: env, started: time.Now()}
}

type healthInfo struct {
	Message string `json:"message"`
	Env     string `json:"env"`
	Uptime  string `json:"uptime"`
}

func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "action") {
	case "ping":
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "pong"})
	case "info":
		writeJSON(w, http.StatusOK, healthInfo{
			Message: "ok",
			Env:     h.env,
			Uptime:  time.Since(h.started).Truncate(time.Second).String(),
		})
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}
