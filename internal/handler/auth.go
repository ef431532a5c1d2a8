package handler

import (
	"log/slog"
	"net/http"

	"github.com/Knifucrab/mauro-zen-notes/internal/security/audit"
	"github.com/Knifucrab/mauro-zen-notes/internal/service"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *service.AuthService
	validator   *Validator
	respond     *Responder
	audit       *audit.Logger
	logger      *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *service.AuthService, respond *Responder, auditLogger *audit.Logger, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &AuthHandler{
		authService: authService,
		validator:   NewValidator(),
		respond:     respond,
		audit:       auditLogger,
		logger:      logger,
	}
}

// CredentialsRequest is the body of register and login
type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ChangePasswordRequest is the body of change-password
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`
}

// Register handles POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respond.Error(w, r, err)
		return
	}

	result, err := h.authService.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		h.logger.Info("registration failed", slog.String("error", err.Error()))
		h.respond.Error(w, r, err)
		return
	}

	h.audit.LogSuccess(r.Context(), result.User.ID, "register", audit.ResourceUser, result.User.ID)
	h.respond.JSON(w, http.StatusCreated, result)
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respond.Error(w, r, err)
		return
	}

	result, err := h.authService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}

	h.respond.JSON(w, http.StatusOK, result)
}

// Profile handles GET /api/auth/profile
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	caller, err := identity(r)
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}

	profile, err := h.authService.GetProfile(r.Context(), caller.ID)
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}
	h.respond.JSON(w, http.StatusOK, profile)
}

// ChangePassword handles POST /api/auth/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	caller, err := identity(r)
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}

	var req ChangePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respond.Error(w, r, err)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		h.respond.Error(w, r, err)
		return
	}

	if err := h.authService.ChangePassword(r.Context(), caller.ID, req.CurrentPassword, req.NewPassword); err != nil {
		h.audit.LogDenied(r.Context(), caller.ID, "change_password", audit.ResourceUser, caller.ID, "rejected")
		h.respond.Error(w, r, err)
		return
	}

	h.audit.LogSuccess(r.Context(), caller.ID, "change_password", audit.ResourceUser, caller.ID)
	h.respond.JSON(w, http.StatusOK, MessageResponse{Message: "Password changed successfully"})
}

// RefreshToken handles POST /api/auth/refresh-token
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	caller, err := identity(r)
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}

	result, err := h.authService.RefreshToken(r.Context(), caller.ID)
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}
	h.respond.JSON(w, http.StatusOK, result)
}

// Logout handles POST /api/auth/logout. Tokens are stateless so the client discards its copy.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if caller, err := identity(r); err == nil {
		h.logger.Info("user logged out", slog.String("user_id", caller.ID))
	}
	h.respond.JSON(w, http.StatusOK, MessageResponse{Message: "Logged out successfully"})
}
