package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/teamrally/internal/model"
	"github.com/sakif/teamrally/internal/service"
)

// Authenticator is the part of service.AuthService the handler calls.
type Authenticator interface {
	Register(ctx context.Context, username, password string) (*model.User, error)
	Login(ctx context.Context, username, password string) (*service.LoginResult, error)
}

// AuthHandler serves registration and login.
type AuthHandler struct {
	auth   Authenticator
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(auth Authenticator, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the body of a successful login.
type LoginResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	Message   string `json:"message"`
}

// HandleRegister creates a user.
//
// HTTP: POST /api/register
// REQUEST BODY: {"username": "alice", "password": "..."}
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if _, err := h.auth.Register(r.Context(), req.Username, req.Password); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "User registered successfully"})
}

// HandleLogin exchanges credentials for a bearer token.
//
// HTTP: POST /api/login
// REQUEST BODY: {"username": "alice", "password": "..."}
// RESPONSE: {"token": "<jwt>", "token_type": "Bearer", "message": "Login successful"}
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Token:     result.Token,
		TokenType: "Bearer",
		Message:   "Login successful",
	})
}
