package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go-sales-insights/internal/auth"
	"go-sales-insights/internal/model"
	"go-sales-insights/internal/pipeline"
	"go-sales-insights/internal/session"
	"go-sales-insights/pkg/router"
	"go-sales-insights/pkg/utils"

	"github.com/sirupsen/logrus"
)

// Authenticator is the identity collaborator the API relies on
type Authenticator interface {
	Register(username, password string) (*model.User, error)
	Login(username, password string) (string, error)
	ParseToken(token string) (string, error)
}

// UploadHistory lists logged uploads
type UploadHistory interface {
	ListUploads(username string) ([]model.Upload, error)
}

// Handler serves the HTTP API
type Handler struct {
	Sessions       *session.Manager
	Auth           Authenticator
	History        UploadHistory
	Outputs        *utils.OutputManager
	Log            logrus.FieldLogger
	MaxUploadBytes int64
}

const defaultMaxUpload = 32 << 20

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

// --- Responses ---

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.Log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

// statusFor maps error kinds to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, model.ErrInvalidMapping),
		errors.Is(err, pipeline.ErrInvalidSelection),
		errors.Is(err, pipeline.ErrUnknownChart),
		errors.Is(err, auth.ErrMissingCredentials),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, session.ErrUnknownArtifact):
		return http.StatusNotFound
	case errors.Is(err, session.ErrNotPrepared),
		errors.Is(err, session.ErrNoData),
		errors.Is(err, auth.ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, errTooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

var (
	errBadRequest = errors.New("bad request")
	errTooLarge   = errors.New("upload too large")
)

// --- Authentication ---

type userKey struct{}

// RequireAuth rejects requests without a valid bearer token
func (h *Handler) RequireAuth(next router.HandlerFunc) router.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if token == "" || token == header {
			h.writeError(w, r, auth.ErrInvalidToken)
			return
		}
		username, err := h.Auth.ParseToken(token)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userKey{}, username)))
	}
}

func currentUser(r *http.Request) string {
	u, _ := r.Context().Value(userKey{}).(string)
	return u
}

// sessionFor resolves the session named by the first wildcard segment
func (h *Handler) sessionFor(r *http.Request) (*session.Session, error) {
	return h.Sessions.Get(router.Param(r, 0), currentUser(r))
}

// Health reports liveness
// @Summary Health check
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"sessions": h.Sessions.Len(),
	})
}
