package admin

import (
	"context"

	"gigchat/database/repository"
	"gigchat/models"
	"gigchat/services/notification"

	"go.uber.org/zap"
)

// AdminService manages the category catalog and worker onboarding.
type AdminService interface {
	CreateCategory(ctx context.Context, in CategoryInput) (*models.Category, error)
	GetCategory(ctx context.Context, id string) (*models.Category, error)
	ListSubcategories(ctx context.Context, parentID string) ([]models.Category, error)
	SetApprovalStatus(ctx context.Context, userID, status string) (*models.User, error)
	TopUpBalance(ctx context.Context, userID string, amount int64) (*models.User, error)
}

type CategoryInput struct {
	ID                string `json:"id" binding:"required,max=64"`
	ParentID          string `json:"parent_id" binding:"omitempty,max=64"`
	Name              string `json:"name" binding:"required,max=100"`
	Icon              string `json:"icon" binding:"omitempty,max=255"`
	RequiresPhotos    bool   `json:"requires_photos"`
	RequiresWorkCode  bool   `json:"requires_work_code"`
	BaselinePrice     int64  `json:"baseline_price" binding:"gte=0"`
	MinimumPercentage int    `json:"minimum_percentage" binding:"gte=0,lte=100"`
}

// DefaultAdminService is the production implementation.
type DefaultAdminService struct {
	store    repository.Store
	notifier notification.NotificationService
	logger   *zap.Logger
}

func NewAdminService(store repository.Store, notifier notification.NotificationService, logger *zap.Logger) *DefaultAdminService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = notification.NewLogNotificationService(logger)
	}
	return &DefaultAdminService{store: store, notifier: notifier, logger: logger}
}
