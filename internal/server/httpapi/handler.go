// Package httpapi exposes the authentication operations over a JSON HTTP API.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cooklio/auth-service/internal/common"
	"github.com/cooklio/auth-service/internal/logging"
	"github.com/cooklio/auth-service/internal/server/auth"
	"github.com/cooklio/auth-service/internal/server/models"
	"github.com/cooklio/auth-service/internal/server/services"
)

// authService is the slice of the orchestrator the handlers need.
type authService interface {
	Register(ctx context.Context, req *services.RegisterRequest) (*services.RegisterResult, error)
	Login(ctx context.Context, email, password string) (*services.LoginResult, error)
	VerifyCode(ctx context.Context, code string) (string, error)
	ForgotPassword(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, code, newPassword string) (string, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.RefreshResult, error)
	Logout(ctx context.Context, userID int64, refreshToken string) (string, error)
}

type Handler struct {
	svc    authService
	issuer *auth.Issuer
	logger logging.Logger
}

func NewHandler(svc authService, issuer *auth.Issuer, logger logging.Logger) *Handler {
	return &Handler{svc: svc, issuer: issuer, logger: logger.With("module", "httpapi")}
}

type registerRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Username  string `json:"username" binding:"required"`
	Password  string `json:"password" binding:"required,min=8"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type verifyRequest struct {
	Code string `json:"code" binding:"required"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type resetPasswordRequest struct {
	Code        string `json:"code" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,min=8"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type registerResponse struct {
	Message string `json:"message"`
	UserID  int64  `json:"userId"`
}

type loginResponse struct {
	User         *models.UserProjection `json:"user"`
	AccessToken  string                 `json:"accessToken"`
	RefreshToken string                 `json:"refreshToken"`
}

type refreshResponse struct {
	AccessToken string `json:"accessToken"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	res, err := h.svc.Register(c.Request.Context(), &services.RegisterRequest{
		Email:     strings.TrimSpace(req.Email),
		Username:  strings.TrimSpace(req.Username),
		Password:  req.Password,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmailExists):
			c.JSON(http.StatusBadRequest, errorResponse{Error: "User with this email already exists"})
		case errors.Is(err, services.ErrUsernameTaken):
			c.JSON(http.StatusBadRequest, errorResponse{Error: "Username already taken"})
		case errors.Is(err, common.ErrConflict):
			c.JSON(http.StatusBadRequest, errorResponse{Error: "Email or username already exists"})
		default:
			h.writeServerError(c, err)
		}
		return
	}

	c.JSON(http.StatusCreated, registerResponse{Message: res.Message, UserID: res.UserID})
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	res, err := h.svc.Login(c.Request.Context(), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrInvalidCredentials):
			c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid email or password"})
		case errors.Is(err, common.ErrNotVerified):
			c.JSON(http.StatusBadRequest, errorResponse{Error: "Please verify your email before logging in"})
		default:
			h.writeServerError(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, loginResponse{
		User:         res.User,
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
	})
}

func (h *Handler) VerifyCode(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	msg, err := h.svc.VerifyCode(c.Request.Context(), req.Code)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrInvalidCode):
			c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid verification code"})
		case errors.Is(err, common.ErrInvalidOrExpiredCode):
			c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid or expired verification code"})
		default:
			h.writeServerError(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, messageResponse{Message: msg})
}

func (h *Handler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	msg, err := h.svc.ForgotPassword(c.Request.Context(), strings.TrimSpace(req.Email))
	if err != nil {
		h.writeServerError(c, err)
		return
	}

	c.JSON(http.StatusOK, messageResponse{Message: msg})
}

func (h *Handler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	msg, err := h.svc.ResetPassword(c.Request.Context(), req.Code, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrInvalidCode):
			c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid reset code"})
		case errors.Is(err, common.ErrInvalidOrExpiredCode):
			c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid or expired reset code"})
		default:
			h.writeServerError(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, messageResponse{Message: msg})
}

func (h *Handler) RefreshToken(c *gin.Context) {
	token, ok := bearerToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse{Error: "Refresh token required"})
		return
	}

	res, err := h.svc.RefreshToken(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, common.ErrUnauthorized) {
			c.JSON(http.StatusUnauthorized, errorResponse{Error: "Invalid refresh token"})
			return
		}
		h.writeServerError(c, err)
		return
	}

	c.JSON(http.StatusOK, refreshResponse{AccessToken: res.AccessToken})
}

// Logout derives the user id from the refresh token's own claims, so no
// separate access token is required to revoke a session.
func (h *Handler) Logout(c *gin.Context) {
	token, ok := bearerToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse{Error: "Refresh token required"})
		return
	}

	claims, err := h.issuer.VerifyRefresh(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, errorResponse{Error: "Invalid refresh token"})
		return
	}

	msg, err := h.svc.Logout(c.Request.Context(), claims.UserID, token)
	if err != nil {
		h.writeServerError(c, err)
		return
	}

	c.JSON(http.StatusOK, messageResponse{Message: msg})
}

func (h *Handler) writeServerError(c *gin.Context, err error) {
	h.logger.Error(c.Request.Context(), "request failed",
		"error", err, "path", c.FullPath(), "request_id", c.GetString(requestIDKey))
	if errors.Is(err, common.ErrUnavailable) {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "Service temporarily unavailable"})
		return
	}
	c.JSON(http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
