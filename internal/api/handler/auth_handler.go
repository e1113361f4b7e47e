package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// CredentialsRequest carries a username and password
type CredentialsRequest struct {
	Username string `json:"username" example:"admin"`
	Password string `json:"password" example:"secret"`
}

// TokenResponse is returned by a successful login
type TokenResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

// Register creates a user
// @Summary Register a user
// @Description Create a user with a salted password hash
// @Tags auth
// @Accept json
// @Produce json
// @Param credentials body CredentialsRequest true "Username and password"
// @Success 201 {object} map[string]interface{} "User created"
// @Failure 400 {object} ErrorResponse "Missing credentials"
// @Failure 409 {object} ErrorResponse "Username already exists"
// @Router /auth/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: invalid JSON payload", errBadRequest))
		return
	}

	u, err := h.Auth.Register(req.Username, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.Log.WithField("user", u.Username).Info("user registered")
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":  "Account created. Please log in.",
		"username": u.Username,
	})
}

// Login exchanges credentials for a session token
// @Summary Log in
// @Tags auth
// @Accept json
// @Produce json
// @Param credentials body CredentialsRequest true "Username and password"
// @Success 200 {object} TokenResponse
// @Failure 401 {object} ErrorResponse "Invalid username or password"
// @Router /auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: invalid JSON payload", errBadRequest))
		return
	}

	token, err := h.Auth.Login(req.Username, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{Token: token, Username: req.Username})
}

// ListUploads returns the caller's upload history
// @Summary Upload history
// @Description Uploads of the current user, most recent first
// @Tags uploads
// @Produce json
// @Security BearerAuth
// @Success 200 {array} model.Upload
// @Failure 401 {object} ErrorResponse
// @Router /uploads [get]
func (h *Handler) ListUploads(w http.ResponseWriter, r *http.Request) {
	uploads, err := h.History.ListUploads(currentUser(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, uploads)
}
