package workflow

import (
	"context"
	"strings"

	"gigchat/models"
)

const maxReviewLength = 1000

// SubmitRating stores one rating per (job, rater, rated) on a completed job
// and dismisses the rater's prompt.
func (s *DefaultWorkflowService) SubmitRating(ctx context.Context, in RatingInput) (*models.Rating, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return nil, fail(ErrValidation, "rating must be between 1 and 5")
	}
	if len(in.ReviewText) > maxReviewLength {
		return nil, fail(ErrValidation, "review must be at most %d characters", maxReviewLength)
	}

	var rating *models.Rating
	err := s.run(ctx, func(ctx context.Context, fx *effects) error {
		job, err := s.getJob(ctx, in.JobID)
		if err != nil {
			return err
		}
		if job.Status != models.JobStatusCompleted {
			return fail(ErrInvalidState, "job %s is %s, ratings open after completion", job.ID, job.Status)
		}
		switch in.RatingType {
		case models.RatingCustomerToWorker:
			if in.RaterID != job.CustomerID || in.RatedID != job.WorkerID {
				return fail(ErrNotOwner, "customer_to_worker ratings are given by the job's customer to its worker")
			}
		case models.RatingWorkerToCustomer:
			if in.RaterID != job.WorkerID || in.RatedID != job.CustomerID {
				return fail(ErrNotOwner, "worker_to_customer ratings are given by the job's worker to its customer")
			}
		default:
			return fail(ErrValidation, "unknown rating type %q", in.RatingType)
		}

		rating = &models.Rating{
			ID:         newID(),
			JobID:      job.ID,
			RaterID:    in.RaterID,
			RatedID:    in.RatedID,
			Rating:     in.Rating,
			ReviewText: strings.TrimSpace(in.ReviewText),
			RatingType: in.RatingType,
			CreatedAt:  s.now(),
		}
		if err := s.store.Ratings().Create(ctx, rating); err != nil {
			if isDuplicate(err) {
				return ErrDuplicateRating
			}
			return storeErr("create rating", err)
		}

		prompts, err := s.store.Messages().ListByJob(ctx, job.ID, models.BubbleRating)
		if err != nil {
			return storeErr("list rating prompts", err)
		}
		for i := range prompts {
			if prompts[i].VisibleTo == in.RaterID && !prompts[i].IsDismissed {
				if err := s.dismiss(ctx, fx, &prompts[i]); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rating, nil
}
