package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gigchat/database/repository"
	"gigchat/models"
	"gigchat/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Register creates the user and returns a session token for it.
func (s *DefaultUserService) Register(ctx context.Context, in RegisterInput) (*AuthResponse, error) {
	u := &models.User{
		ID:          uuid.New().String(),
		Name:        strings.TrimSpace(in.Name),
		PhoneNumber: in.PhoneNumber,
		Role:        in.Role,
	}
	if in.Role == models.RoleWorker {
		for _, id := range in.Skills {
			cat, err := s.Categories.GetByID(ctx, id)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return nil, fmt.Errorf("%w: unknown category %s", ErrInvalidSkill, id)
				}
				return nil, fmt.Errorf("failed to load category %s: %w", id, err)
			}
			if !cat.IsTopLevel() {
				return nil, fmt.Errorf("%w: %s is a subcategory", ErrInvalidSkill, id)
			}
		}
		u.Skills = in.Skills
		u.ApprovalStatus = models.ApprovalPending
	}

	if err := s.Repo.Create(ctx, u); err != nil {
		s.Logger.Error("Failed to create user", zap.Error(err))
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	s.Logger.Info("User registered", zap.String("userID", u.ID), zap.String("role", u.Role))
	return s.authResponse(u)
}

// IssueToken returns a fresh token for an existing user.
func (s *DefaultUserService) IssueToken(ctx context.Context, userID string) (*AuthResponse, error) {
	u, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.authResponse(u)
}

func (s *DefaultUserService) authResponse(u *models.User) (*AuthResponse, error) {
	resp := &AuthResponse{ID: u.ID, Role: u.Role}
	token, err := utils.GenerateToken(u.ID, u.Role, s.TokenTTL)
	switch {
	case errors.Is(err, utils.ErrJWTSecretMissing):
		return resp, nil
	case err != nil:
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	resp.Token = token
	return resp, nil
}

func (s *DefaultUserService) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	u, err := s.Repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// UpdateFCMToken stores the device push token used for notifications.
func (s *DefaultUserService) UpdateFCMToken(ctx context.Context, userID, token string) error {
	if err := s.Repo.SetFCMToken(ctx, userID, strings.TrimSpace(token)); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to update fcm token: %w", err)
	}
	return nil
}
