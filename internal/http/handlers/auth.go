package handlers

import (
	"errors"
	"net/http"
	"strings"

	"eventmitra/backend/internal/auth"
	"eventmitra/backend/internal/http/middleware"
	"eventmitra/backend/internal/models"
	"eventmitra/backend/internal/repository"
)

type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Name     string `json:"name" validate:"required,max=120"`
	Phone    string `json:"phone" validate:"omitempty,max=32"`
	Role     string `json:"role" validate:"omitempty,oneof=attendee organizer"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type authResponse struct {
	AccessToken string      `json:"accessToken"`
	User        models.User `json:"user"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	var req registerRequest
	if !h.decodeJSON(w, r, "register", &req) {
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		logger.Warn("register", "status", "weak_password", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	user, err := h.repo.CreateUser(ctx, models.User{
		Email:        req.Email,
		PasswordHash: hash,
		Name:         req.Name,
		Phone:        strings.TrimSpace(req.Phone),
		Role:         req.Role,
	})
	if errors.Is(err, repository.ErrEmailTaken) {
		logger.Warn("register", "status", "email_taken")
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		logger.Error("register", "status", "db_error", "error", err)
		writeError(w, http.StatusInternalServerError, "db error")
		return
	}

	token, err := auth.SignAccessToken(h.cfg.JWTSecret, user.ID, user.Role)
	if err != nil {
		logger.Error("register", "status", "token_error", "error", err)
		writeError(w, http.StatusInternalServerError, "token error")
		return
	}
	logger.Info("register", "status", "success", "new_user_id", user.ID, "role", user.Role)
	writeJSON(w, http.StatusCreated, authResponse{AccessToken: token, User: user})
}

// Login exchanges credentials for an access token. Failed attempts are
// counted per email and client address; a success clears the counter.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	var req loginRequest
	if !h.decodeJSON(w, r, "login", &req) {
		return
	}
	throttleKey := strings.ToLower(strings.TrimSpace(req.Email)) + "|" + middleware.ClientIP(r)
	if !h.loginLimiter.Hit(throttleKey) {
		logger.Warn("login", "status", "throttled")
		writeError(w, http.StatusTooManyRequests, "too many login attempts")
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	user, err := h.repo.GetUserByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		logger.Error("login", "status", "db_error", "error", err)
		writeError(w, http.StatusInternalServerError, "db error")
		return
	}
	if err != nil || auth.CheckPassword(user.PasswordHash, req.Password) != nil {
		logger.Warn("login", "status", "bad_credentials")
		writeError(w, http.StatusUnauthorized, auth.ErrBadCredentials.Error())
		return
	}
	if user.IsBlocked {
		logger.Warn("login", "status", "blocked", "blocked_user_id", user.ID)
		writeError(w, http.StatusForbidden, "account is blocked")
		return
	}
	h.loginLimiter.Reset(throttleKey)

	token, err := auth.SignAccessToken(h.cfg.JWTSecret, user.ID, user.Role)
	if err != nil {
		logger.Error("login", "status", "token_error", "error", err)
		writeError(w, http.StatusInternalServerError, "token error")
		return
	}
	logger.Info("login", "status", "success", "login_user_id", user.ID)
	writeJSON(w, http.StatusOK, authResponse{AccessToken: token, User: user})
}
