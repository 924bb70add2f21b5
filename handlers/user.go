package handlers

import (
	"net/http"

	"gigchat/services/user"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	UserService user.UserService
}

func NewUserHandler(us user.UserService) *UserHandler {
	return &UserHandler{UserService: us}
}

// RegisterUserHandler creates a customer or worker account.
func (h *UserHandler) RegisterUserHandler(c *gin.Context) {
	var req user.RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	resp, err := h.UserService.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *UserHandler) GetMeHandler(c *gin.Context) {
	u, err := h.UserService.GetUserByID(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// RefreshTokenHandler issues a new token for the authenticated user.
func (h *UserHandler) RefreshTokenHandler(c *gin.Context) {
	resp, err := h.UserService.IssueToken(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// UpdateDeviceHandler stores the push token of the caller's device.
func (h *UserHandler) UpdateDeviceHandler(c *gin.Context) {
	var req struct {
		FCMToken string `json:"fcm_token" binding:"required,max=4096"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if err := h.UserService.UpdateFCMToken(c.Request.Context(), currentUserID(c), req.FCMToken); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
