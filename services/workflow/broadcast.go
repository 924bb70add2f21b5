package workflow

import (
	"context"

	"gigchat/models"

	"go.uber.org/zap"
)

// SubmitCategorization assigns the job's subcategory and opens bidding. The
// first committed categorization wins; later ones fail ALREADY_CATEGORIZED.
func (s *DefaultWorkflowService) SubmitCategorization(ctx context.Context, jobID, workerID, subcategoryID string) (*models.Job, error) {
	var job *models.Job
	err := s.run(ctx, func(ctx context.Context, fx *effects) error {
		current, err := s.getJob(ctx, jobID)
		if err != nil {
			return err
		}
		if current.Status != models.JobStatusPosted {
			return fail(ErrJobClosed, "job %s is %s", jobID, current.Status)
		}
		if current.SubcategoryID != "" {
			return ErrAlreadyCategorized
		}
		worker, err := s.getUser(ctx, workerID)
		if err != nil {
			return err
		}
		if !worker.IsEligibleWorker() || !worker.HasSkill(current.CategoryID) {
			return fail(ErrWorkerNotEligible, "worker %s cannot categorize job %s", workerID, jobID)
		}
		sub, err := s.getCategory(ctx, subcategoryID)
		if err != nil {
			return err
		}
		if sub.ParentID != current.CategoryID {
			return fail(ErrValidation, "category %s is not a subcategory of %s", subcategoryID, current.CategoryID)
		}

		job, err = s.store.Jobs().SetSubcategory(ctx, jobID, subcategoryID, workerID, s.now())
		if err != nil {
			if isConflict(err) {
				return ErrAlreadyCategorized
			}
			return storeErr("set subcategory", err)
		}
		s.jobEvent(fx, job)

		if err := s.expireWorkerBubbles(ctx, jobID); err != nil {
			return err
		}
		_, err = s.broadcast(ctx, fx, job, models.WorkerJobViewBidding)
		return err
	})
	if err != nil {
		if isConflictKind(err) {
			s.logger.Warn("Categorization rejected", zap.String("jobID", jobID), zap.String("workerID", workerID), zap.Error(err))
		}
		return nil, err
	}
	s.logger.Info("Job categorized",
		zap.String("jobID", jobID),
		zap.String("subcategoryID", subcategoryID),
		zap.String("workerID", workerID))
	return job, nil
}

// RecordJobView records that a worker opened a job and reports whether they
// had already seen it.
func (s *DefaultWorkflowService) RecordJobView(ctx context.Context, jobID, workerID string) (bool, error) {
	var already bool
	err := s.run(ctx, func(ctx context.Context, fx *effects) error {
		if _, err := s.getJob(ctx, jobID); err != nil {
			return err
		}
		worker, err := s.getUser(ctx, workerID)
		if err != nil {
			return err
		}
		if !worker.IsWorker() {
			return fail(ErrValidation, "user %s is not a worker", workerID)
		}
		already, err = s.store.Views().Record(ctx, &models.JobView{JobID: jobID, WorkerID: workerID, ViewedAt: s.now()})
		if err != nil {
			return storeErr("record job view", err)
		}
		return nil
	})
	return already, err
}
