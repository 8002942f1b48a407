package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/echowrite/internal/service"
)

// AuthHandler exposes the account endpoints.
type AuthHandler struct {
	Auth   *service.AuthService
	logger *zap.Logger
}

// NewAuthHandler creates the handler set.
func NewAuthHandler(auth *service.AuthService, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.L()
	}
	return &AuthHandler{Auth: auth, logger: logger}
}

// Signup starts an email registration.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req service.SignupInput
	if !h.bind(c, &req, service.MsgAllFieldsRequired) {
		return
	}

	msg, err := h.Auth.Signup(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// Verify redeems the emailed code.
func (h *AuthHandler) Verify(c *gin.Context) {
	var req service.VerifyInput
	if !h.bind(c, &req, service.MsgVerifyFieldsRequired) {
		return
	}

	res, err := h.Auth.Verify(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ResendOTP delivers the code again.
func (h *AuthHandler) ResendOTP(c *gin.Context) {
	var req service.ResendInput
	if !h.bind(c, &req, service.MsgEmailRequired) {
		return
	}

	msg, err := h.Auth.ResendOTP(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// Login authenticates with email and password.
func (h *AuthHandler) Login(c *gin.Context) {
	var req service.LoginInput
	if !h.bind(c, &req, service.MsgLoginFieldsRequired) {
		return
	}

	res, err := h.Auth.Login(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GoogleLogin signs in with a Google ID token.
func (h *AuthHandler) GoogleLogin(c *gin.Context) {
	var req service.GoogleLoginInput
	if !h.bind(c, &req, service.MsgNoIDToken) {
		return
	}

	res, err := h.Auth.GoogleLogin(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// CheckUsername reports whether a handle is free.
func (h *AuthHandler) CheckUsername(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
	}
	if !h.bind(c, &req, service.MsgUsernameRequired) {
		return
	}

	msg, err := h.Auth.CheckUsername(c.Request.Context(), req.Username)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// bind decodes the JSON body. An empty or malformed body is answered with
// the flow's missing-field message.
func (h *AuthHandler) bind(c *gin.Context, dst any, missingMsg string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": missingMsg})
		return false
	}
	return true
}
