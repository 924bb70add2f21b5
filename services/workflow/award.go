package workflow

import (
	"context"

	"gigchat/models"
	"gigchat/services/events"
	"gigchat/services/notification"

	"go.uber.org/zap"
)

// AcceptBid matches the job to the bid's worker. The job's posted→matched
// transition is the single point that closes bidding. Other bids stay as they
// are; rejecting them is a separate action.
func (s *DefaultWorkflowService) AcceptBid(ctx context.Context, bidID, customerID string) (*models.Job, error) {
	var job *models.Job
	err := s.run(ctx, func(ctx context.Context, fx *effects) error {
		bid, err := s.getBid(ctx, bidID)
		if err != nil {
			return err
		}
		current, err := s.getJob(ctx, bid.JobID)
		if err != nil {
			return err
		}
		if current.CustomerID != customerID {
			return fail(ErrNotOwner, "job %s does not belong to user %s", current.ID, customerID)
		}
		if current.Status != models.JobStatusPosted {
			return fail(ErrJobClosed, "job %s is %s", current.ID, current.Status)
		}
		if bid.RejectedAt != nil {
			return fail(ErrInvalidState, "bid %s was rejected", bidID)
		}
		now := s.now()
		if bid.ExpiredAt(now) {
			return fail(ErrInvalidState, "bid %s expired at %s", bidID, bid.ExpiresAt.Format("2006-01-02 15:04"))
		}
		worker, err := s.getUser(ctx, bid.WorkerID)
		if err != nil {
			return err
		}

		if _, err := s.store.Bids().Settle(ctx, bidID, true, now); err != nil {
			if isConflict(err) {
				return fail(ErrInvalidState, "bid %s was already settled", bidID)
			}
			return storeErr("accept bid", err)
		}
		job, err = s.store.Jobs().Transition(ctx, current.ID, []models.JobStatus{models.JobStatusPosted}, models.JobUpdate{
			Status:        models.JobStatusMatched,
			WorkerID:      &worker.ID,
			AcceptedBidID: &bid.ID,
			MatchedAt:     timePtr(now),
		}, now)
		if err != nil {
			if isConflict(err) {
				return fail(ErrJobClosed, "job %s was matched concurrently", current.ID)
			}
			return storeErr("match job", err)
		}

		banner := &models.BannerInfo{Title: worker.Name, Subtitle: "Job matched", Status: string(models.JobStatusMatched)}
		if err := s.store.Chats().AttachWorker(ctx, job.ChatID, worker.ID, banner); err != nil {
			return storeErr("attach worker", err)
		}
		if err := s.expireWorkerBubbles(ctx, job.ID); err != nil {
			return err
		}
		if err := s.announceMatch(ctx, fx, job); err != nil {
			return err
		}

		s.jobEvent(fx, job)
		fx.emit(events.Event{Type: events.BidUpdated, Topic: events.JobTopic(job.ID), JobID: job.ID, BidID: bidID, At: now})
		fx.emit(events.Event{Type: events.ChatUpdated, Topic: events.ChatTopic(job.ChatID), ChatID: job.ChatID, Payload: banner, At: now})
		fx.notify(worker.ID, notification.Push{
			Title: "Your bid was accepted",
			Body:  "The customer accepted your bid. Open the chat to coordinate.",
			Data:  jobPushData(notification.TypeBidAccepted, job.ID),
		})
		return nil
	})
	if err != nil {
		if isConflictKind(err) {
			s.logger.Warn("Bid acceptance rejected", zap.String("bidID", bidID), zap.Error(err))
		}
		return nil, err
	}
	s.logger.Info("Bid accepted",
		zap.String("jobID", job.ID),
		zap.String("bidID", bidID),
		zap.String("workerID", job.WorkerID))
	return job, nil
}

// announceMatch posts the status bubble and the onboarding code exchange into
// the now shared conversation chat.
func (s *DefaultWorkflowService) announceMatch(ctx context.Context, fx *effects, job *models.Job) error {
	if _, err := s.systemMessage(ctx, fx, job.ChatID, job.ID, "", "",
		models.StatusPayload{JobID: job.ID, Status: job.Status}); err != nil {
		return err
	}
	category, err := s.jobCategory(ctx, job)
	if err != nil {
		return err
	}
	if !category.RequiresWorkCode {
		return nil
	}
	if _, err := s.systemMessage(ctx, fx, job.ChatID, job.ID, job.CustomerID,
		"Share this code with the worker when they arrive.",
		models.SystemInstructionPayload{Kind: models.InstructionOnboardingCode, JobID: job.ID, Code: job.WorkCode}); err != nil {
		return err
	}
	_, err = s.systemMessage(ctx, fx, job.ChatID, job.ID, job.WorkerID,
		"Enter the code the customer gives you to start the job.",
		models.CodeEntryPayload{JobID: job.ID, Purpose: codeKindOnboarding})
	return err
}

// RejectBid marks a bid rejected. The job's status is unchanged.
func (s *DefaultWorkflowService) RejectBid(ctx context.Context, bidID, customerID string) (*models.Bid, error) {
	var bid *models.Bid
	err := s.run(ctx, func(ctx context.Context, fx *effects) error {
		current, err := s.getBid(ctx, bidID)
		if err != nil {
			return err
		}
		job, err := s.getJob(ctx, current.JobID)
		if err != nil {
			return err
		}
		if job.CustomerID != customerID {
			return fail(ErrNotOwner, "job %s does not belong to user %s", job.ID, customerID)
		}
		now := s.now()
		bid, err = s.store.Bids().Settle(ctx, bidID, false, now)
		if err != nil {
			if isConflict(err) {
				return fail(ErrInvalidState, "bid %s was already settled", bidID)
			}
			return storeErr("reject bid", err)
		}
		if _, err := s.store.Messages().ExpireByBid(ctx, bidID, now); err != nil {
			return storeErr("expire bid bubbles", err)
		}
		fx.emit(events.Event{Type: events.BidUpdated, Topic: events.JobTopic(job.ID), JobID: job.ID, BidID: bidID, Payload: models.NewBidSnapshot(bid), At: now})
		fx.notify(bid.WorkerID, notification.Push{
			Title: "Bid not selected",
			Body:  "The customer declined your bid.",
			Data:  jobPushData(notification.TypeBidRejected, job.ID),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bid, nil
}
