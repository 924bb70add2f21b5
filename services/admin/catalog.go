package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gigchat/database/repository"
	"gigchat/models"

	"go.uber.org/zap"
)

// CreateCategory adds a top-level category or, with ParentID, a subcategory.
// Price floors only apply to subcategories.
func (s *DefaultAdminService) CreateCategory(ctx context.Context, in CategoryInput) (*models.Category, error) {
	c := &models.Category{
		ID:                strings.TrimSpace(in.ID),
		ParentID:          strings.TrimSpace(in.ParentID),
		Name:              strings.TrimSpace(in.Name),
		Icon:              in.Icon,
		RequiresPhotos:    in.RequiresPhotos,
		RequiresWorkCode:  in.RequiresWorkCode,
		BaselinePrice:     in.BaselinePrice,
		MinimumPercentage: in.MinimumPercentage,
	}
	if c.ID == "" || c.Name == "" {
		return nil, fmt.Errorf("%w: id and name are required", ErrInvalidCategory)
	}
	if c.ParentID == "" && c.HasPriceFloor() {
		return nil, fmt.Errorf("%w: price floors are set on subcategories", ErrInvalidCategory)
	}

	err := s.store.RunInTransaction(ctx, func(ctx context.Context) error {
		if c.ParentID != "" {
			parent, err := s.store.Categories().GetByID(ctx, c.ParentID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return fmt.Errorf("%w: parent %s does not exist", ErrInvalidCategory, c.ParentID)
				}
				return err
			}
			if !parent.IsTopLevel() {
				return fmt.Errorf("%w: categories nest one level deep", ErrInvalidCategory)
			}
		}
		return s.store.Categories().Create(ctx, c)
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%w: category %s", ErrDuplicate, c.ID)
		}
		if errors.Is(err, ErrInvalidCategory) {
			return nil, err
		}
		s.logger.Error("Failed to create category", zap.String("categoryID", c.ID), zap.Error(err))
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	s.logger.Info("Category created", zap.String("categoryID", c.ID), zap.String("parentID", c.ParentID))
	return c, nil
}

func (s *DefaultAdminService) GetCategory(ctx context.Context, id string) (*models.Category, error) {
	c, err := s.store.Categories().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: category %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return c, nil
}

func (s *DefaultAdminService) ListSubcategories(ctx context.Context, parentID string) ([]models.Category, error) {
	if _, err := s.GetCategory(ctx, parentID); err != nil {
		return nil, err
	}
	children, err := s.store.Categories().ListChildren(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subcategories: %w", err)
	}
	return children, nil
}
