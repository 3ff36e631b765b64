package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	authcore "github.com/munyaradzichiondegwa/vision-2030-platform"
	"github.com/munyaradzichiondegwa/vision-2030-platform/middleware"
)

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps an engine error to an HTTP status and a client-safe message.
func statusFor(err error) (int, string) {
	var rl *authcore.RateLimitError
	switch {
	case errors.As(err, &rl):
		return http.StatusTooManyRequests, "too many requests"
	case errors.Is(err, authcore.ErrWeakInput):
		return http.StatusBadRequest, "invalid input"
	case errors.Is(err, authcore.ErrUnknownRole):
		return http.StatusBadRequest, "unknown role"
	case errors.Is(err, authcore.ErrDuplicateAccount):
		return http.StatusConflict, "account already exists"
	case errors.Is(err, authcore.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, authcore.ErrTokenExpired):
		return http.StatusUnauthorized, "token expired"
	case errors.Is(err, authcore.ErrTokenReuseDetected), errors.Is(err, authcore.ErrInvalidToken):
		return http.StatusUnauthorized, "invalid token"
	case errors.Is(err, authcore.ErrAccountInactive):
		return http.StatusForbidden, "account inactive"
	case errors.Is(err, authcore.ErrInsufficientPermission):
		return http.StatusForbidden, "insufficient permission"
	case errors.Is(err, authcore.ErrAccountNotFound):
		return http.StatusNotFound, "account not found"
	case authcore.IsRetryable(err), errors.Is(err, authcore.ErrEngineNotReady):
		return http.StatusServiceUnavailable, "service unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, msg := statusFor(err)
	body := errorBody{Error: msg}

	var verr *authcore.ValidationError
	if errors.As(err, &verr) {
		body.Fields = verr.Fields
	}
	var rl *authcore.RateLimitError
	if errors.As(err, &rl) {
		middleware.SetRetryAfter(w, rl, time.Now())
	}

	entry := a.logger.WithFields(logrus.Fields{"op": op, "status": status, "path": r.URL.Path})
	if status >= http.StatusInternalServerError {
		entry.WithError(err).Error("request failed")
	} else {
		entry.WithError(err).Debug("request rejected")
	}

	writeJSON(w, status, body)
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, a.maxBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request body"})
		return false
	}
	return true
}
