package memoryRepo

import (
	"context"
	"sort"
	"time"

	"gigchat/database/repository"
	"gigchat/models"
)

type userRepo struct{ s *Store }

func cloneUser(u models.User) *models.User {
	u.Skills = append([]string(nil), u.Skills...)
	return &u
}

func (r userRepo) Create(ctx context.Context, user *models.User) error {
	defer r.s.lock(ctx)()
	if _, ok := r.s.data.users[user.ID]; ok {
		return repository.ErrDuplicate
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.s.data.users[user.ID] = *cloneUser(*user)
	return nil
}

func (r userRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	defer r.s.lock(ctx)()
	u, ok := r.s.data.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneUser(u), nil
}

func (r userRepo) ListEligibleWorkers(ctx context.Context, categoryID string) ([]models.User, error) {
	defer r.s.lock(ctx)()
	var out []models.User
	for _, u := range r.s.data.users {
		if u.IsEligibleWorker() && u.HasSkill(categoryID) {
			out = append(out, *cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PriorityScore != out[j].PriorityScore {
			return out[i].PriorityScore > out[j].PriorityScore
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r userRepo) update(ctx context.Context, id string, fn func(u *models.User)) (*models.User, error) {
	defer r.s.lock(ctx)()
	u, ok := r.s.data.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	u = *cloneUser(u)
	fn(&u)
	u.UpdatedAt = time.Now()
	r.s.data.users[id] = u
	return cloneUser(u), nil
}

func (r userRepo) SetApprovalStatus(ctx context.Context, id, status string) error {
	_, err := r.update(ctx, id, func(u *models.User) { u.ApprovalStatus = status })
	return err
}

func (r userRepo) AdjustBalance(ctx context.Context, id string, delta int64) (*models.User, error) {
	return r.update(ctx, id, func(u *models.User) { u.Balance += delta })
}

func (r userRepo) IncrementCancellationCount(ctx context.Context, id string) error {
	_, err := r.update(ctx, id, func(u *models.User) { u.CancellationCount++ })
	return err
}

func (r userRepo) SetFCMToken(ctx context.Context, id, token string) error {
	_, err := r.update(ctx, id, func(u *models.User) { u.FCMToken = token })
	return err
}

type categoryRepo struct{ s *Store }

func (r categoryRepo) Create(ctx context.Context, category *models.Category) error {
	defer r.s.lock(ctx)()
	if _, ok := r.s.data.categories[category.ID]; ok {
		return repository.ErrDuplicate
	}
	r.s.data.categories[category.ID] = *category
	return nil
}

func (r categoryRepo) GetByID(ctx context.Context, id string) (*models.Category, error) {
	defer r.s.lock(ctx)()
	c, ok := r.s.data.categories[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (r categoryRepo) ListChildren(ctx context.Context, parentID string) ([]models.Category, error) {
	defer r.s.lock(ctx)()
	var out []models.Category
	for _, c := range r.s.data.categories {
		if c.ParentID == parentID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
