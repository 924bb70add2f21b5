package user

import (
	"context"
	"time"

	"gigchat/database/repository"
	"gigchat/models"

	"go.uber.org/zap"
)

type UserService interface {
	// Registration
	Register(ctx context.Context, in RegisterInput) (*AuthResponse, error)
	IssueToken(ctx context.Context, userID string) (*AuthResponse, error)

	// User Management
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
	UpdateFCMToken(ctx context.Context, userID, token string) error
}

// RegisterInput is the sign-up payload. Workers list the top-level
// categories they serve and start pending approval with no balance.
type RegisterInput struct {
	Name        string   `json:"name" binding:"required,max=100"`
	PhoneNumber string   `json:"phone_number" binding:"omitempty,e164"`
	Role        string   `json:"role" binding:"required,oneof=customer worker"`
	Skills      []string `json:"skills" binding:"omitempty,max=20,dive,required"`
}

// AuthResponse contains the user's ID, role and token. Token is empty when
// the server runs without a JWT secret.
type AuthResponse struct {
	ID    string `json:"id"`
	Role  string `json:"role"`
	Token string `json:"token,omitempty"`
}

// DefaultUserService is the production implementation.
type DefaultUserService struct {
	Repo       repository.UserRepository
	Categories repository.CategoryRepository
	TokenTTL   time.Duration
	Logger     *zap.Logger
}

func NewUserService(store repository.Store, tokenTTL time.Duration, logger *zap.Logger) *DefaultUserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultUserService{
		Repo:       store.Users(),
		Categories: store.Categories(),
		TokenTTL:   tokenTTL,
		Logger:     logger,
	}
}
