package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/invoyq/invoyq-api/internal/models"
	"github.com/invoyq/invoyq-api/internal/service"
	appErrors "github.com/invoyq/invoyq-api/pkg/errors"
	"github.com/invoyq/invoyq-api/pkg/response"
)

// AuthHandler wires HTTP endpoints to the auth and oauth services.
type AuthHandler struct {
	service *service.AuthService
	oauth   *service.OAuthService
	metrics *service.MetricsService
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(svc *service.AuthService, oauth *service.OAuthService, metrics *service.MetricsService) *AuthHandler {
	return &AuthHandler{service: svc, oauth: oauth, metrics: metrics}
}

// Register godoc
// @Summary Register a new account
// @Description Create a password account and send the verification email
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.RegisterRequest true "Registration payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid registration payload"))
		return
	}

	user, err := h.service.Register(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, user)
}

// Login godoc
// @Summary Authenticate user
// @Description Authenticate with email and password using form fields
// @Tags Authentication
// @Accept x-www-form-urlencoded
// @Produce json
// @Param username formData string true "Account email"
// @Param password formData string true "Password"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid login payload"))
		return
	}
	req.DeviceID = c.GetHeader("X-Device-Id")

	pair, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		h.metrics.ObserveLogin("failure")
		response.Error(c, err)
		return
	}

	h.metrics.ObserveLogin("success")
	response.JSON(c, http.StatusOK, pair, nil)
}

// Refresh godoc
// @Summary Rotate refresh token
// @Description Exchange a refresh token for a new access/refresh pair
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.RefreshRequest true "Refresh payload"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req models.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid refresh payload"))
		return
	}
	req.DeviceID = c.GetHeader("X-Device-Id")

	pair, err := h.service.Refresh(c.Request.Context(), req)
	if err != nil {
		if appErr := appErrors.FromError(err); appErr.Code == appErrors.ErrReuseDetected.Code {
			h.metrics.ObserveRefresh("reuse_detected")
		} else {
			h.metrics.ObserveRefresh("failure")
		}
		response.Error(c, err)
		return
	}

	h.metrics.ObserveRefresh("success")
	response.JSON(c, http.StatusOK, pair, nil)
}

// Logout godoc
// @Summary Logout session
// @Description Revoke one refresh token; idempotent
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.LogoutRequest true "Logout payload"
// @Success 200 {object} response.Envelope
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	var req models.LogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid logout payload"))
		return
	}

	if err := h.service.Logout(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"message": "logged out"}, nil)
}

// VerifyEmail godoc
// @Summary Verify email address
// @Tags Authentication
// @Produce json
// @Param token query string true "Verification token"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /auth/verify-email [get]
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	result, err := h.service.VerifyEmail(c.Request.Context(), c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ResendVerification godoc
// @Summary Resend verification email
// @Description Responds identically whether or not the address exists
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.ResendVerificationRequest true "Email payload"
// @Success 200 {object} response.Envelope
// @Router /auth/resend-verification [post]
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var req models.ResendVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	if err := h.service.ResendVerification(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"message": "if the account exists, a verification email has been sent"}, nil)
}

// Me godoc
// @Summary Current account
// @Tags Authentication
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	user := userFromContext(c)
	if user == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, ""))
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// ChangePassword godoc
// @Summary Change password
// @Description Rotate the password and revoke every session
// @Tags Authentication
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.ChangePasswordRequest true "Password payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /auth/change-password [post]
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	user := userFromContext(c)
	if user == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, ""))
		return
	}

	var req models.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	if err := h.service.ChangePassword(c.Request.Context(), user, req); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"message": "password updated"}, nil)
}

// SetPassword godoc
// @Summary Set a password on an OAuth-only account
// @Tags Authentication
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.SetPasswordRequest true "Password payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /auth/set-password [post]
func (h *AuthHandler) SetPassword(c *gin.Context) {
	user := userFromContext(c)
	if user == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, ""))
		return
	}

	var req models.SetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	if err := h.service.SetPassword(c.Request.Context(), user, req); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"message": "password set"}, nil)
}

// GoogleLogin godoc
// @Summary Start Google sign-in
// @Description Returns the Google consent-screen URL for the client to follow
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 500 {object} response.Envelope
// @Router /auth/google/login [get]
func (h *AuthHandler) GoogleLogin(c *gin.Context) {
	state := uuid.NewString()
	url, err := h.oauth.AuthURL(state)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.SetCookie("oauth_state", state, 600, "/", "", false, true)
	response.JSON(c, http.StatusOK, gin.H{"auth_url": url}, nil)
}

// GoogleCallback godoc
// @Summary Google sign-in callback
// @Description Exchanges the code, links or creates the account, and redirects to the frontend with tokens
// @Tags Authentication
// @Success 302
// @Failure 400 {object} response.Envelope
// @Router /auth/google/callback [get]
func (h *AuthHandler) GoogleCallback(c *gin.Context) {
	if state, err := c.Cookie("oauth_state"); err != nil || state == "" || state != c.Query("state") {
		response.Error(c, appErrors.Clone(appErrors.ErrOAuthExchangeFailed, "state mismatch"))
		return
	}
	c.SetCookie("oauth_state", "", -1, "/", "", false, true)

	_, redirect, err := h.oauth.HandleCallback(c.Request.Context(), c.Query("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Redirect(http.StatusFound, redirect)
}
