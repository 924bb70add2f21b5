package handlers

import (
	"errors"
	"net/http"

	"gigchat/services/admin"
	"gigchat/services/user"
	"gigchat/services/workflow"
	"gigchat/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusFor maps a workflow error kind to its HTTP status.
func statusFor(kind workflow.Kind) int {
	switch kind {
	case workflow.KindValidation:
		return http.StatusBadRequest
	case workflow.KindConflict:
		return http.StatusConflict
	case workflow.KindEconomic:
		return http.StatusUnprocessableEntity
	case workflow.KindNotFound:
		return http.StatusNotFound
	case workflow.KindThrottled:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"error": CODE, "message": ..., "details": ...}.
func respondError(c *gin.Context, err error) {
	var werr *workflow.Error
	if errors.As(err, &werr) {
		status := statusFor(werr.Kind)
		if status == http.StatusInternalServerError {
			getLogger(c).Error("Workflow operation failed", zap.Error(err))
		}
		utils.JSONError(c, status, werr.Code, werr.Message, werr.Details)
		return
	}

	switch {
	case errors.Is(err, user.ErrUserNotFound), errors.Is(err, admin.ErrNotFound):
		utils.JSONError(c, http.StatusNotFound, workflow.ErrNotFound.Code, err.Error(), nil)
	case errors.Is(err, user.ErrInvalidSkill), errors.Is(err, admin.ErrInvalidCategory), errors.Is(err, admin.ErrInvalidUser):
		utils.JSONError(c, http.StatusBadRequest, workflow.ErrValidation.Code, err.Error(), nil)
	case errors.Is(err, admin.ErrDuplicate):
		utils.JSONError(c, http.StatusConflict, "DUPLICATE", err.Error(), nil)
	default:
		getLogger(c).Error("Request failed", zap.Error(err))
		utils.JSONError(c, http.StatusInternalServerError, workflow.ErrInternal.Code, "An unexpected error occurred. Please try again later.", nil)
	}
}

// bindError reports a malformed request body.
func bindError(c *gin.Context, err error) {
	utils.JSONError(c, http.StatusBadRequest, workflow.ErrValidation.Code, "Invalid request body", map[string]any{"reason": err.Error()})
}

func currentUserID(c *gin.Context) string {
	return c.GetString("userID")
}
