package handlers

import (
	"net/http"

	"gigchat/services/admin"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AdminHandler encapsulates elevated admin-level operations.
type AdminHandler struct {
	AdminService admin.AdminService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(as admin.AdminService) *AdminHandler {
	return &AdminHandler{AdminService: as}
}

func (ah *AdminHandler) CreateCategoryHandler(c *gin.Context) {
	var req admin.CategoryInput
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	cat, err := ah.AdminService.CreateCategory(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cat)
}

func (ah *AdminHandler) GetCategoryHandler(c *gin.Context) {
	cat, err := ah.AdminService.GetCategory(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cat)
}

func (ah *AdminHandler) ListSubcategoriesHandler(c *gin.Context) {
	children, err := ah.AdminService.ListSubcategories(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subcategories": children})
}

// SetApprovalHandler approves or rejects a worker.
func (ah *AdminHandler) SetApprovalHandler(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required,oneof=pending approved rejected"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	u, err := ah.AdminService.SetApprovalStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	getLogger(c).Info("Admin changed worker approval", zap.String("userID", u.ID), zap.String("status", req.Status))
	c.JSON(http.StatusOK, u)
}

// TopUpBalanceHandler credits a worker's bidding balance.
func (ah *AdminHandler) TopUpBalanceHandler(c *gin.Context) {
	var req struct {
		Amount int64 `json:"amount" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	u, err := ah.AdminService.TopUpBalance(c.Request.Context(), c.Param("id"), req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}
