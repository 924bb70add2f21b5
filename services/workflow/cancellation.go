package workflow

import (
	"context"

	"gigchat/models"
	"gigchat/services/events"
	"gigchat/services/notification"

	"go.uber.org/zap"
)

// CancelJobAndClearChat cancels the job and wipes its chat back to a fresh
// service chat. The job record is kept. A second call fails ALREADY_CANCELLED.
func (s *DefaultWorkflowService) CancelJobAndClearChat(ctx context.Context, jobID, userID string, phase int) (*CancelResult, error) {
	var deleted int64
	err := s.run(ctx, func(ctx context.Context, fx *effects) error {
		job, err := s.cancelJob(ctx, fx, jobID, userID, phase)
		if err != nil {
			return err
		}

		msgs := s.store.Messages()
		if deleted, err = msgs.DeleteByChat(ctx, job.ChatID); err != nil {
			return storeErr("delete chat messages", err)
		}
		if _, err := msgs.DeletePartitionsByChat(ctx, job.ChatID); err != nil {
			return storeErr("delete chat partitions", err)
		}
		if err := s.store.Chats().Reset(ctx, job.ChatID); err != nil {
			return storeErr("reset chat", err)
		}
		fx.emit(events.Event{Type: events.ChatReset, Topic: events.ChatTopic(job.ChatID), ChatID: job.ChatID, JobID: job.ID, At: s.now()})
		return nil
	})
	if err != nil {
		if isConflictKind(err) {
			s.logger.Warn("Cancellation rejected", zap.String("jobID", jobID), zap.String("userID", userID), zap.Error(err))
		}
		return nil, err
	}
	s.logger.Info("Job cancelled and chat cleared",
		zap.String("jobID", jobID),
		zap.Int("phase", phase),
		zap.Int64("messagesDeleted", deleted))
	return &CancelResult{Success: true, ChatReset: true}, nil
}

// MarkJobAsCancelled cancels the job without touching its chat history.
func (s *DefaultWorkflowService) MarkJobAsCancelled(ctx context.Context, jobID, userID string, phase int) (*models.Job, error) {
	var job *models.Job
	err := s.run(ctx, func(ctx context.Context, fx *effects) error {
		var err error
		job, err = s.cancelJob(ctx, fx, jobID, userID, phase)
		if err != nil {
			return err
		}
		if err := s.store.Chats().SetBanner(ctx, job.ChatID, &models.BannerInfo{
			Title:  "Job cancelled",
			Status: string(models.JobStatusCancelled),
		}); err != nil {
			return storeErr("update banner", err)
		}
		_, err = s.systemMessage(ctx, fx, job.ChatID, job.ID, "", "This job was cancelled.",
			models.SystemInstructionPayload{Kind: models.InstructionJobCancelled, JobID: job.ID})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Job cancelled", zap.String("jobID", jobID), zap.Int("phase", phase))
	return job, nil
}

// cancelJob applies the job side of a cancellation: the terminal transition,
// bubble expiry and the penalty for cancelling a matched job.
func (s *DefaultWorkflowService) cancelJob(ctx context.Context, fx *effects, jobID, userID string, phase int) (*models.Job, error) {
	if phase < 0 {
		return nil, fail(ErrValidation, "phase must not be negative")
	}
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status == models.JobStatusCompleted {
		return nil, ErrAlreadyCompleted
	}
	if job.CustomerID != userID {
		return nil, fail(ErrNotOwner, "job %s does not belong to user %s", jobID, userID)
	}
	if job.Status == models.JobStatusCancelled {
		return nil, ErrAlreadyCancelled
	}

	now := s.now()
	cancelled, err := s.store.Jobs().Transition(ctx, jobID,
		[]models.JobStatus{models.JobStatusPosted, models.JobStatusMatched, models.JobStatusInProgress},
		models.JobUpdate{Status: models.JobStatusCancelled, CancelledAt: timePtr(now), CancelledAtPhase: &phase}, now)
	if err != nil {
		if isConflict(err) {
			return nil, fail(ErrInvalidState, "job %s changed state concurrently", jobID)
		}
		return nil, storeErr("cancel job", err)
	}
	if err := s.expireWorkerBubbles(ctx, jobID); err != nil {
		return nil, err
	}
	s.jobEvent(fx, cancelled)

	if cancelled.HasWorker() {
		if err := s.store.Users().IncrementCancellationCount(ctx, cancelled.CustomerID); err != nil {
			return nil, storeErr("record cancellation penalty", err)
		}
		fx.notify(cancelled.WorkerID, notification.Push{
			Title: "Job cancelled",
			Body:  "The customer cancelled a job you were matched to.",
			Data:  jobPushData(notification.TypeJobCancelled, jobID),
		})
	}
	return cancelled, nil
}
