package admin

import (
	"context"
	"errors"
	"fmt"

	"gigchat/database/repository"
	"gigchat/models"
	"gigchat/services/notification"

	"go.uber.org/zap"
)

// SetApprovalStatus moves a worker through onboarding review. Approved
// workers with a positive balance start receiving broadcasts.
func (s *DefaultAdminService) SetApprovalStatus(ctx context.Context, userID, status string) (*models.User, error) {
	switch status {
	case models.ApprovalPending, models.ApprovalApproved, models.ApprovalRejected:
	default:
		return nil, fmt.Errorf("%w: unknown approval status %q", ErrInvalidUser, status)
	}

	var updated *models.User
	err := s.store.RunInTransaction(ctx, func(ctx context.Context) error {
		u, err := s.worker(ctx, userID)
		if err != nil {
			return err
		}
		if err := s.store.Users().SetApprovalStatus(ctx, u.ID, status); err != nil {
			return err
		}
		updated, err = s.store.Users().GetByID(ctx, u.ID)
		return err
	})
	if err != nil {
		return nil, s.translate("set approval status", userID, err)
	}

	s.logger.Info("Worker approval updated", zap.String("userID", userID), zap.String("status", status))
	if status == models.ApprovalApproved {
		if err := s.notifier.SendPush(ctx, userID, notification.Push{
			Title: "You're approved",
			Body:  "You can now receive and bid on jobs.",
			Data:  map[string]string{"type": notification.TypeAccountApproved},
		}); err != nil {
			s.logger.Warn("Failed to notify approved worker", zap.String("userID", userID), zap.Error(err))
		}
	}
	return updated, nil
}

// TopUpBalance credits a worker's bidding balance.
func (s *DefaultAdminService) TopUpBalance(ctx context.Context, userID string, amount int64) (*models.User, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: top-up amount must be positive", ErrInvalidUser)
	}
	var updated *models.User
	err := s.store.RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.worker(ctx, userID); err != nil {
			return err
		}
		var err error
		updated, err = s.store.Users().AdjustBalance(ctx, userID, amount)
		return err
	})
	if err != nil {
		return nil, s.translate("top up balance", userID, err)
	}
	s.logger.Info("Worker balance topped up",
		zap.String("userID", userID),
		zap.Int64("amount", amount),
		zap.Int64("balance", updated.Balance))
	return updated, nil
}

func (s *DefaultAdminService) worker(ctx context.Context, userID string) (*models.User, error) {
	u, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.IsWorker() {
		return nil, fmt.Errorf("%w: user %s is not a worker", ErrInvalidUser, userID)
	}
	return u, nil
}

func (s *DefaultAdminService) translate(op, userID string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: user %s", ErrNotFound, userID)
	case errors.Is(err, ErrInvalidUser):
		return err
	}
	s.logger.Error("Admin operation failed", zap.String("op", op), zap.String("userID", userID), zap.Error(err))
	return fmt.Errorf("failed to %s: %w", op, err)
}
