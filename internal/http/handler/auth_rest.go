package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/echowrite/internal/http/middleware"
	"github.com/smallbiznis/echowrite/internal/service"
)

const msgInternal = "Something went wrong"

// Me returns the authenticated account.
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": middleware.MsgInvalidToken})
		return
	}

	user, err := h.Auth.GetUser(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": service.NewUserViewModel(user)})
}

// UpdateProfile changes profile fields or the password.
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": middleware.MsgInvalidToken})
		return
	}

	var req service.ProfileInput
	if !h.bind(c, &req, service.MsgNoProfileData) {
		return
	}

	msg, user, err := h.Auth.UpdateProfile(c.Request.Context(), userID, req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg, "user": service.NewUserViewModel(user)})
}

// respondError renders a service error as {"message"}. Anything unexpected is
// logged and hidden behind a generic 500.
func (h *AuthHandler) respondError(c *gin.Context, err error) {
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		status := svcErr.Kind.Status()
		if status >= http.StatusInternalServerError {
			h.logger.Warn("request failed",
				zap.String("path", c.FullPath()),
				zap.String("kind", svcErr.Kind.String()),
				zap.Error(err),
			)
		}
		c.JSON(status, gin.H{"message": svcErr.Message})
		return
	}

	h.logger.Error("unhandled error",
		zap.String("path", c.FullPath()),
		zap.String("request_id", c.GetString(middleware.RequestIDKey)),
		zap.Error(err),
	)
	c.JSON(http.StatusInternalServerError, gin.H{"message": msgInternal})
}
