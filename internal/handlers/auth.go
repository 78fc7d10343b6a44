package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/gunde1hikaye-sketch/mertinan-tryon/internal/auth"
	"github.com/gunde1hikaye-sketch/mertinan-tryon/internal/logging"
	"github.com/gunde1hikaye-sketch/mertinan-tryon/internal/models"
	"github.com/gunde1hikaye-sketch/mertinan-tryon/internal/repositories"
)

// AuthHandler implements user authentication endpoints.
type AuthHandler struct {
	Users    UserStore
	Sessions SessionManager
	Limiter  RateLimiter
	NowFunc  func() time.Time

	// SignupCredits is the balance granted to every new account.
	SignupCredits int
}

// Login handles POST /api/v1/auth/login requests.
func (h AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Users == nil || h.Sessions == nil {
		logger.Error("authentication dependencies unavailable", "hasUsers", h.Users != nil, "hasSessions", h.Sessions != nil)
		respondError(ctx, w, http.StatusInternalServerError, "server_error", "authentication services unavailable")
		return
	}

	if !allowRequest(h.Limiter, r, "login") {
		logger.Warn("login rate limited", "remoteAddr", r.RemoteAddr)
		respondError(ctx, w, http.StatusTooManyRequests, "rate_limited", "too many login attempts")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid login payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		logger.Warn("login missing credentials", "email", req.Email)
		respondError(ctx, w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	user, err := h.Users.FindByEmail(ctx, req.Email)
	if err != nil {
		logger.Warn("login user lookup failed", "email", req.Email, "error", err)
		respondError(ctx, w, http.StatusUnauthorized, "Unauthorized", "invalid credentials")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		logger.Warn("login password mismatch", "userId", user.ID)
		respondError(ctx, w, http.StatusUnauthorized, "Unauthorized", "invalid credentials")
		return
	}

	tokens, err := h.Sessions.Issue(ctx, user.ID)
	if err != nil {
		logger.Error("failed to issue session", "error", err, "userId", user.ID)
		respondError(ctx, w, http.StatusInternalServerError, "server_error", "failed to create session")
		return
	}

	respondJSON(ctx, w, http.StatusOK, authResponse{Tokens: tokens, Credits: user.Credits})
}

// SignUp handles POST /api/v1/auth/signup requests.
func (h AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Users == nil || h.Sessions == nil {
		logger.Error("authentication dependencies unavailable", "hasUsers", h.Users != nil, "hasSessions", h.Sessions != nil)
		respondError(ctx, w, http.StatusInternalServerError, "server_error", "authentication services unavailable")
		return
	}

	var req signUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid signup payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		logger.Warn("signup missing credentials", "email", req.Email)
		respondError(ctx, w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	if _, err := mail.ParseAddress(req.Email); err != nil {
		logger.Warn("signup invalid email", "email", req.Email, "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid_request", "invalid email address")
		return
	}

	if len(req.Password) < 8 {
		logger.Warn("signup password too short", "email", req.Email)
		respondError(ctx, w, http.StatusBadRequest, "invalid_request", "password must be at least 8 characters")
		return
	}

	if _, err := h.Users.FindByEmail(ctx, req.Email); err == nil {
		logger.Warn("signup existing account", "email", req.Email)
		respondError(ctx, w, http.StatusConflict, "conflict", "account already exists")
		return
	} else if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		logger.Error("signup user lookup failed", "error", err, "email", req.Email)
		respondError(ctx, w, http.StatusInternalServerError, "server_error", "unable to verify existing accounts")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		logger.Error("signup failed to hash password", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "server_error", "failed to secure password")
		return
	}

	now := h.now()
	user := models.User{
		ID:        uuid.NewString(),
		Email:     req.Email,
		Password:  string(hashed),
		Credits:   h.SignupCredits,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.Users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			logger.Warn("signup conflict", "email", req.Email)
			respondError(ctx, w, http.StatusConflict, "conflict", "account already exists")
			return
		}
		logger.Error("signup failed to create user", "error", err, "email", req.Email)
		respondError(ctx, w, http.StatusInternalServerError, "server_error", "failed to create account")
		return
	}

	tokens, err := h.Sessions.Issue(ctx, user.ID)
	if err != nil {
		logger.Error("signup failed to issue session", "error", err, "userId", user.ID)
		respondError(ctx, w, http.StatusInternalServerError, "server_error", "failed to create session")
		return
	}

	respondJSON(ctx, w, http.StatusCreated, authResponse{Tokens: tokens, Credits: user.Credits})
}

// Refresh exchanges a refresh token for a new session.
func (h AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Sessions == nil {
		logger.Error("session manager unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "server_error", "session service unavailable")
		return
	}

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid refresh payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		logger.Warn("missing refresh token")
		respondError(ctx, w, http.StatusBadRequest, "invalid_request", "refresh token is required")
		return
	}

	tokens, err := h.Sessions.Refresh(ctx, req.RefreshToken)
	if err != nil {
		status := http.StatusInternalServerError
		tag := "server_error"
		if errors.Is(err, auth.ErrRefreshTokenExpired) || errors.Is(err, auth.ErrSessionNotFound) {
			status = http.StatusUnauthorized
			tag = "Unauthorized"
		}
		logger.Error("refresh failed", "error", err, "status", status)
		respondError(ctx, w, status, tag, "unable to refresh session")
		return
	}

	respondJSON(ctx, w, http.StatusOK, authResponse{Tokens: tokens})
}

// Logout handles POST /api/v1/auth/logout requests.
func (h AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Sessions == nil {
		logger.Error("session manager unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "server_error", "session service unavailable")
		return
	}

	var req logoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid logout payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		respondError(ctx, w, http.StatusBadRequest, "invalid_request", "refresh token is required")
		return
	}

	h.Sessions.Revoke(ctx, req.RefreshToken)

	respondJSON(ctx, w, http.StatusOK, map[string]bool{"ok": true})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type authResponse struct {
	Tokens  models.SessionTokens `json:"tokens"`
	Credits int                  `json:"credits"`
}

func (h AuthHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}
