package memoryRepo

import (
	"context"
	"sort"
	"time"

	"gigchat/database/repository"
	"gigchat/models"
)

type codeRepo struct{ s *Store }

func (r codeRepo) SaveCompletionCode(ctx context.Context, code *models.CompletionCode) error {
	defer r.s.lock(ctx)()
	if existing, ok := r.s.data.codes[code.JobID]; ok && existing.ConsumedAt != nil {
		return repository.ErrConflict
	}
	r.s.data.codes[code.JobID] = *code
	return nil
}

func (r codeRepo) GetCompletionCode(ctx context.Context, jobID string) (*models.CompletionCode, error) {
	defer r.s.lock(ctx)()
	c, ok := r.s.data.codes[jobID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (r codeRepo) RecordFailedAttempt(ctx context.Context, jobID string) error {
	defer r.s.lock(ctx)()
	c, ok := r.s.data.codes[jobID]
	if !ok {
		return repository.ErrNotFound
	}
	c.FailedAttempts++
	r.s.data.codes[jobID] = c
	return nil
}

func (r codeRepo) ConsumeCompletionCode(ctx context.Context, jobID string, at time.Time) error {
	defer r.s.lock(ctx)()
	c, ok := r.s.data.codes[jobID]
	if !ok {
		return repository.ErrNotFound
	}
	if c.ConsumedAt != nil {
		return repository.ErrConflict
	}
	t := at
	c.ConsumedAt = &t
	r.s.data.codes[jobID] = c
	return nil
}

type ratingRepo struct{ s *Store }

func (r ratingRepo) Create(ctx context.Context, rating *models.Rating) error {
	defer r.s.lock(ctx)()
	for _, existing := range r.s.data.ratings {
		if existing.JobID == rating.JobID && existing.RaterID == rating.RaterID && existing.RatedID == rating.RatedID {
			return repository.ErrDuplicate
		}
	}
	r.s.data.ratings[rating.ID] = *rating
	return nil
}

func (r ratingRepo) ListByJob(ctx context.Context, jobID string) ([]models.Rating, error) {
	defer r.s.lock(ctx)()
	var out []models.Rating
	for _, rt := range r.s.data.ratings {
		if rt.JobID == jobID {
			out = append(out, rt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type viewRepo struct{ s *Store }

func (r viewRepo) Record(ctx context.Context, view *models.JobView) (bool, error) {
	defer r.s.lock(ctx)()
	key := viewKey{jobID: view.JobID, workerID: view.WorkerID}
	if _, ok := r.s.data.views[key]; ok {
		return true, nil
	}
	r.s.data.views[key] = *view
	return false, nil
}
