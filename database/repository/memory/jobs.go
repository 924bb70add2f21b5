package memoryRepo

import (
	"context"
	"sort"
	"time"

	"gigchat/database/repository"
	"gigchat/models"
)

type jobRepo struct{ s *Store }

func cloneJob(j models.Job) *models.Job {
	j.Photos = append([]string(nil), j.Photos...)
	return &j
}

func (r jobRepo) Create(ctx context.Context, job *models.Job) error {
	defer r.s.lock(ctx)()
	if _, ok := r.s.data.jobs[job.ID]; ok {
		return repository.ErrDuplicate
	}
	r.s.data.jobs[job.ID] = *cloneJob(*job)
	return nil
}

func (r jobRepo) GetByID(ctx context.Context, id string) (*models.Job, error) {
	defer r.s.lock(ctx)()
	j, ok := r.s.data.jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneJob(j), nil
}

// update applies fn when allowed reports true, otherwise ErrConflict.
func (r jobRepo) update(ctx context.Context, id string, allowed func(j *models.Job) bool, fn func(j *models.Job)) (*models.Job, error) {
	defer r.s.lock(ctx)()
	j, ok := r.s.data.jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	j = *cloneJob(j)
	if !allowed(&j) {
		return nil, repository.ErrConflict
	}
	fn(&j)
	r.s.data.jobs[id] = j
	return cloneJob(j), nil
}

func (r jobRepo) SetSubcategory(ctx context.Context, jobID, subcategoryID, workerID string, at time.Time) (*models.Job, error) {
	return r.update(ctx, jobID,
		func(j *models.Job) bool { return j.SubcategoryID == "" },
		func(j *models.Job) {
			j.SubcategoryID = subcategoryID
			j.CategorizedBy = workerID
			j.BroadcastingPhase = models.PhaseBidding
			j.UpdatedAt = at
		})
}

func (r jobRepo) ReserveBidSlot(ctx context.Context, jobID string, at time.Time) (*models.Job, error) {
	return r.update(ctx, jobID,
		func(j *models.Job) bool {
			return j.Status == models.JobStatusPosted && j.BroadcastingPhase == models.PhaseBidding
		},
		func(j *models.Job) {
			j.BidCount++
			j.UpdatedAt = at
		})
}

func (r jobRepo) Transition(ctx context.Context, jobID string, from []models.JobStatus, upd models.JobUpdate, at time.Time) (*models.Job, error) {
	return r.update(ctx, jobID,
		func(j *models.Job) bool { return statusIn(j.Status, from) },
		func(j *models.Job) { upd.Apply(j, at) })
}

func statusIn(s models.JobStatus, set []models.JobStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

type bidRepo struct{ s *Store }

func (r bidRepo) Create(ctx context.Context, bid *models.Bid) error {
	defer r.s.lock(ctx)()
	for _, b := range r.s.data.bids {
		if b.JobID == bid.JobID && b.WorkerID == bid.WorkerID {
			return repository.ErrDuplicate
		}
	}
	if _, ok := r.s.data.bids[bid.ID]; ok {
		return repository.ErrDuplicate
	}
	r.s.data.bids[bid.ID] = *bid
	return nil
}

func (r bidRepo) GetByID(ctx context.Context, id string) (*models.Bid, error) {
	defer r.s.lock(ctx)()
	b, ok := r.s.data.bids[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &b, nil
}

func (r bidRepo) ListByJob(ctx context.Context, jobID string) ([]models.Bid, error) {
	defer r.s.lock(ctx)()
	var out []models.Bid
	for _, b := range r.s.data.bids {
		if b.JobID == jobID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r bidRepo) Settle(ctx context.Context, bidID string, accepted bool, at time.Time) (*models.Bid, error) {
	defer r.s.lock(ctx)()
	b, ok := r.s.data.bids[bidID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if b.IsSettled() {
		return nil, repository.ErrConflict
	}
	t := at
	if accepted {
		b.AcceptedAt = &t
	} else {
		b.RejectedAt = &t
	}
	r.s.data.bids[bidID] = b
	return &b, nil
}
