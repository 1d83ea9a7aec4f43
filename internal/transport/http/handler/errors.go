package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/pkg/validate"
)

var kindStatus = map[domain.Kind]int{
	domain.KindBadRequest:           http.StatusBadRequest,
	domain.KindNotFound:             http.StatusNotFound,
	domain.KindConflict:             http.StatusConflict,
	domain.KindUnauthorized:         http.StatusUnauthorized,
	domain.KindForbidden:            http.StatusForbidden,
	domain.KindInvalidCredentials:   http.StatusUnauthorized,
	domain.KindTokenExpired:         http.StatusUnauthorized,
	domain.KindTokenInvalid:         http.StatusUnauthorized,
	domain.KindTokenMalformed:       http.StatusUnauthorized,
	domain.KindRateLimited:          http.StatusTooManyRequests,
	domain.KindInvalidOrExpiredCode: http.StatusBadRequest,
	domain.KindIncorrectCode:        http.StatusBadRequest,
	domain.KindLocked:               http.StatusTooManyRequests,
	domain.KindAlreadyUsedCode:      http.StatusConflict,
}

// httpError maps a service error to its status. Errors without a known kind
// are logged and reported as a generic 500.
func httpError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusInternalServerError, MessageEnvelope{Error: "internal server error", Code: kind.String()})
		return
	}
	writeJSON(w, status, MessageEnvelope{Error: err.Error(), Code: kind.String()})
}

// decode reads a JSON body into dst and validates it. It writes the error
// response itself and returns false when the request must stop.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return false
	}
	return true
}
