package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/contactbook/apiserver/internal/auth"
	"github.com/contactbook/apiserver/internal/notify"
	"github.com/contactbook/apiserver/internal/ratelimit"
	"github.com/contactbook/apiserver/internal/services"
	"github.com/contactbook/apiserver/internal/storage"
	"github.com/contactbook/apiserver/internal/store"
	"github.com/contactbook/apiserver/types"
)

const (
	maxAvatarBytes  = 8 << 20
	mailSendTimeout = 10 * time.Second
	formFieldAvatar = "file"
)

// AuthHandler provides registration, login, token, verification, password
// reset, and profile endpoints.
type AuthHandler struct {
	userService *services.UserService
	authService *auth.Service
	mailer      notify.Mailer
	storage     *storage.Storage
	logger      *zap.Logger
}

// NewAuthHandler constructs an AuthHandler. storage may be nil when avatar
// uploads are not configured.
func NewAuthHandler(
	userService *services.UserService,
	authService *auth.Service,
	mailer notify.Mailer,
	storage *storage.Storage,
	logger *zap.Logger,
) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		authService: authService,
		mailer:      mailer,
		storage:     storage,
		logger:      logger,
	}
}

// AuthRouter registers auth routes on the given router. Public routes sit
// behind the auth rate class; guarded routes behind the session guard.
func AuthRouter(r chi.Router, handler *AuthHandler, gate *RateLimitGate, guard func(http.Handler) http.Handler) {
	limited := gate.Limit(ratelimit.ClassAuth)

	r.With(limited).Post("/register", handler.Register)
	r.With(limited).Post("/login", handler.Login)
	r.With(limited).Post("/refresh", handler.Refresh)
	r.With(limited).Get("/verify/{token}", handler.VerifyEmail)
	r.With(limited).Post("/request-verification", handler.RequestVerification)
	r.With(limited).Post("/password-reset", handler.RequestPasswordReset)
	r.With(limited).Post("/password-reset/{token}", handler.ConfirmPasswordReset)

	r.With(guard).Get("/me", handler.Me)
	r.With(guard).Post("/upload-avatar", handler.UploadAvatar)
	r.With(guard, RequireAdmin).Put("/users/{userID}/role", handler.UpdateUserRole)
	r.With(guard, RequireAdmin).Put("/users/{userID}/status", handler.UpdateUserStatus)
}

type RegisterRequest struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

type EmailRequest struct {
	Email string `json:"email"`
}

type PasswordResetRequest struct {
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password,omitempty"`
}

type RoleUpdateRequest struct {
	Role types.Role `json:"role"`
}

type StatusUpdateRequest struct {
	IsActive *bool `json:"is_active"`
}

// Register creates a new unverified account and dispatches a verification
// email. The email is sent out-of-band: a delivery failure is logged but
// never fails the registration.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Email = services.NormalizeEmail(req.Email)
	req.FullName = strings.TrimSpace(req.FullName)
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		writeError(w, http.StatusBadRequest, "a valid email is required")
		return
	}
	if req.Password == "" {
		writeError(w, http.StatusBadRequest, "password is required")
		return
	}

	hashed, err := h.authService.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	user, err := h.userService.Create(r.Context(), types.User{
		Email:        req.Email,
		FullName:     req.FullName,
		Role:         types.RoleUser,
		PasswordHash: hashed,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "account already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	h.sendVerification(user.Email)

	writeJSON(w, http.StatusCreated, user)
}

// Login verifies credentials and returns an access/refresh token pair.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	user, err := h.userService.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "incorrect email or password")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to authenticate")
		return
	}

	if !h.authService.VerifyPassword(req.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "incorrect email or password")
		return
	}

	if !user.IsVerified {
		writeError(w, http.StatusForbidden, "email not verified")
		return
	}

	h.writeTokenPair(w, user)
}

// Refresh exchanges a valid refresh token (presented as the bearer token)
// for a new token pair.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	tokenString, err := bearerToken(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	claims, err := h.authService.ValidateToken(tokenString, auth.PurposeRefresh)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	user, err := h.userService.GetByEmail(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid refresh token")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to authenticate")
		return
	}

	h.writeTokenPair(w, user)
}

// VerifyEmail consumes a verification token and marks the account verified.
// Verifying twice is not an error.
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	claims, err := h.authService.ValidateToken(chi.URLParam(r, "token"), auth.PurposeVerify)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid or expired verification token")
		return
	}

	user, err := h.userService.GetByEmail(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to verify email")
		return
	}

	if user.IsVerified {
		writeMessage(w, http.StatusOK, "email already verified")
		return
	}

	if _, err := h.userService.MarkVerified(r.Context(), user); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to verify email")
		return
	}
	writeMessage(w, http.StatusOK, "email verified successfully")
}

// RequestVerification re-sends the verification email for an unverified
// account.
func (h *AuthHandler) RequestVerification(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.userService.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to process request")
		return
	}

	if user.IsVerified {
		writeError(w, http.StatusBadRequest, "email already verified")
		return
	}

	h.sendVerification(user.Email)
	writeMessage(w, http.StatusOK, "verification email sent")
}

// RequestPasswordReset dispatches a reset email when the account exists.
// The response is identical either way so accounts cannot be enumerated.
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.userService.GetByEmail(r.Context(), req.Email)
	if err == nil {
		h.sendPasswordReset(user.Email)
	} else if !errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "failed to process request")
		return
	}

	writeMessage(w, http.StatusOK, "if your email is registered, you will receive a password reset link")
}

// ConfirmPasswordReset consumes a reset token and installs the new password.
func (h *AuthHandler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "new password is required")
		return
	}
	if req.ConfirmPassword != "" && req.ConfirmPassword != req.NewPassword {
		writeError(w, http.StatusBadRequest, "passwords do not match")
		return
	}

	claims, err := h.authService.ValidateToken(chi.URLParam(r, "token"), auth.PurposeReset)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid or expired reset token")
		return
	}

	user, err := h.userService.GetByEmail(r.Context(), claims.Subject)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid or expired reset token")
		return
	}

	hashed, err := h.authService.HashPassword(req.NewPassword)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to reset password")
		return
	}
	if _, err := h.userService.SetPassword(r.Context(), user, hashed); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to reset password")
		return
	}

	writeMessage(w, http.StatusOK, "password has been reset successfully")
}

// Me returns the current authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := CurrentUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UploadAvatar stores the uploaded image in object storage and records its
// URL on the user.
func (h *AuthHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	user, ok := CurrentUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if h.storage == nil {
		writeError(w, http.StatusServiceUnavailable, "avatar storage is not configured")
		return
	}

	if err := r.ParseMultipartForm(maxAvatarBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile(formFieldAvatar)
	if err != nil {
		writeError(w, http.StatusBadRequest, "avatar file is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		writeError(w, http.StatusBadRequest, "file must be an image")
		return
	}

	url, err := h.storage.PutAvatar(r.Context(), file, header.Size, contentType)
	if err != nil {
		h.logger.Error("avatar upload failed", zap.Int("user_id", user.ID), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "failed to store avatar")
		return
	}

	updated, err := h.userService.SetAvatar(r.Context(), user, url)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update avatar")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// UpdateUserRole assigns a new role to a user. Admin only.
func (h *AuthHandler) UpdateUserRole(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req RoleUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if !req.Role.Valid() {
		writeError(w, http.StatusBadRequest, "invalid role")
		return
	}

	user, err := h.userService.SetRole(r.Context(), id, req.Role)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update role")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UpdateUserStatus enables or disables a user account. Admin only.
func (h *AuthHandler) UpdateUserStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req StatusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.IsActive == nil {
		writeError(w, http.StatusBadRequest, "is_active is required")
		return
	}

	user, err := h.userService.SetActive(r.Context(), id, *req.IsActive)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update status")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) writeTokenPair(w http.ResponseWriter, user types.User) {
	accessToken, err := h.authService.IssueAccessToken(user.Email, user.Role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}
	refreshToken, err := h.authService.IssueRefreshToken(user.Email, user.Role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
	})
}

func (h *AuthHandler) sendVerification(email string) {
	token, err := h.authService.IssueVerificationToken(email)
	if err != nil {
		h.logger.Error("failed to issue verification token", zap.String("email", email), zap.Error(err))
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), mailSendTimeout)
		defer cancel()
		if err := h.mailer.SendVerificationEmail(ctx, email, token); err != nil {
			h.logger.Error("failed to enqueue verification email", zap.String("email", email), zap.Error(err))
		}
	}()
}

func (h *AuthHandler) sendPasswordReset(email string) {
	token, err := h.authService.IssueResetToken(email)
	if err != nil {
		h.logger.Error("failed to issue reset token", zap.String("email", email), zap.Error(err))
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), mailSendTimeout)
		defer cancel()
		if err := h.mailer.SendPasswordResetEmail(ctx, email, token); err != nil {
			h.logger.Error("failed to enqueue password reset email", zap.String("email", email), zap.Error(err))
		}
	}()
}
