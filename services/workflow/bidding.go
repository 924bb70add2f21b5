package workflow

import (
	"context"
	"sort"

	"gigchat/models"
	"gigchat/services/events"
	"gigchat/services/notification"

	"go.uber.org/zap"
)

// SubmitBid places a worker's bid. All checks and the insert run in one
// transaction; the job's bid slot reservation conflicts with acceptance so a
// bid arriving after a match fails JOB_CLOSED.
func (s *DefaultWorkflowService) SubmitBid(ctx context.Context, in BidInput) (*BidBreakdown, error) {
	if in.Amount <= 0 {
		return nil, fail(ErrValidation, "bid amount must be positive")
	}
	if in.EquipmentCost < 0 {
		return nil, fail(ErrValidation, "equipment cost must not be negative")
	}

	var out *BidBreakdown
	err := s.run(ctx, func(ctx context.Context, fx *effects) error {
		job, err := s.getJob(ctx, in.JobID)
		if err != nil {
			return err
		}
		if err := biddable(job); err != nil {
			return err
		}

		bids, err := s.store.Bids().ListByJob(ctx, job.ID)
		if err != nil {
			return storeErr("list bids", err)
		}
		for _, b := range bids {
			if b.WorkerID == in.WorkerID {
				return ErrDuplicateBid
			}
		}

		worker, err := s.getUser(ctx, in.WorkerID)
		if err != nil {
			return err
		}
		if worker.Balance <= 0 {
			return fail(ErrInsufficientBalance, "worker balance %d is too low to bid", worker.Balance).
				with(map[string]any{"balance": worker.Balance})
		}
		if !worker.IsEligibleWorker() || !worker.HasSkill(job.CategoryID) {
			return fail(ErrWorkerNotEligible, "worker %s cannot bid on job %s", in.WorkerID, in.JobID)
		}

		sub, err := s.getCategory(ctx, job.SubcategoryID)
		if err != nil {
			return err
		}
		if err := checkMinimum(sub, in.Amount); err != nil {
			return err
		}

		now := s.now()
		job, err = s.store.Jobs().ReserveBidSlot(ctx, job.ID, now)
		if err != nil {
			if isConflict(err) {
				return fail(ErrJobClosed, "job %s stopped accepting bids", in.JobID)
			}
			return storeErr("reserve bid slot", err)
		}

		fee := ServiceFee(in.Amount, s.settings.ServiceFeePercent)
		bid := &models.Bid{
			ID:                newID(),
			JobID:             job.ID,
			WorkerID:          worker.ID,
			Amount:            TotalAmount(in.Amount, in.EquipmentCost, s.settings.ServiceFeePercent),
			BaseAmount:        in.Amount,
			EquipmentCost:     in.EquipmentCost,
			ServiceFee:        fee,
			ExpiresAt:         now.Add(s.settings.BidTTL),
			PriorityWindowEnd: now.Add(s.settings.BidPriorityWindow),
			CreatedAt:         now,
		}
		if err := s.store.Bids().Create(ctx, bid); err != nil {
			if isDuplicate(err) {
				return ErrDuplicateBid
			}
			return storeErr("create bid", err)
		}

		if err := s.announceBid(ctx, fx, job, bid); err != nil {
			return err
		}
		out = &BidBreakdown{
			BidID:             bid.ID,
			BaseAmount:        bid.BaseAmount,
			EquipmentCost:     bid.EquipmentCost,
			ServiceFee:        bid.ServiceFee,
			TotalAmount:       bid.Amount,
			ExpiresAt:         bid.ExpiresAt,
			PriorityWindowEnd: bid.PriorityWindowEnd,
		}
		return nil
	})
	if err != nil {
		if isConflictKind(err) {
			s.logger.Warn("Bid rejected", zap.String("jobID", in.JobID), zap.String("workerID", in.WorkerID), zap.Error(err))
		}
		return nil, err
	}
	s.logger.Info("Bid submitted",
		zap.String("jobID", in.JobID),
		zap.String("bidID", out.BidID),
		zap.String("workerID", in.WorkerID),
		zap.Int64("total", out.TotalAmount))
	return out, nil
}

// biddable reports why a job cannot take bids, if it cannot.
func biddable(job *models.Job) error {
	if job.IsTerminal() {
		return fail(ErrJobClosed, "job %s is %s", job.ID, job.Status)
	}
	if job.BroadcastingPhase < models.PhaseBidding || job.SubcategoryID == "" {
		return ErrJobNotCategorized
	}
	if job.Status != models.JobStatusPosted {
		return fail(ErrJobClosed, "job %s is %s", job.ID, job.Status)
	}
	return nil
}

// announceBid shows the bid to the customer and to the bidding worker.
func (s *DefaultWorkflowService) announceBid(ctx context.Context, fx *effects, job *models.Job, bid *models.Bid) error {
	snapshot := models.NewBidSnapshot(bid)
	if _, err := s.appendMessage(ctx, fx, &models.Message{
		ChatID:    job.ChatID,
		JobID:     job.ID,
		BidID:     bid.ID,
		VisibleTo: job.CustomerID,
	}, models.BidPayload{Bid: snapshot}); err != nil {
		return err
	}

	feed, err := s.notificationChat(ctx, bid.WorkerID, job.CategoryID)
	if err != nil {
		return err
	}
	if _, err := s.appendMessage(ctx, fx, &models.Message{
		ChatID:    feed.ID,
		JobID:     job.ID,
		BidID:     bid.ID,
		VisibleTo: bid.WorkerID,
	}, models.WorkerJobPayload{Job: models.NewJobSnapshot(job), Bid: &snapshot, View: models.WorkerJobViewStatus}); err != nil {
		return err
	}

	fx.emit(events.Event{
		Type:    events.BidCreated,
		Topic:   events.JobTopic(job.ID),
		JobID:   job.ID,
		BidID:   bid.ID,
		Payload: snapshot,
		At:      bid.CreatedAt,
	})
	fx.notify(job.CustomerID, notification.Push{
		Title: "New bid received",
		Body:  "A worker bid " + formatAmount(bid.Amount) + " on your job.",
		Data:  jobPushData(notification.TypeBidReceived, job.ID),
	})
	fx.expiries = append(fx.expiries, pendingExpiry{bidID: bid.ID, at: bid.ExpiresAt})
	return nil
}

// ValidateBidAmount checks a base amount against a subcategory's floor
// without placing a bid.
func (s *DefaultWorkflowService) ValidateBidAmount(ctx context.Context, subcategoryID string, amount int64) (*BidAmountCheck, error) {
	sub, err := s.getCategory(ctx, subcategoryID)
	if err != nil {
		return nil, err
	}
	minimum, _ := MinimumBid(sub)
	check := &BidAmountCheck{IsValid: true, MinimumAmount: minimum}
	if amount <= 0 {
		check.IsValid = false
		check.Reason = "bid amount must be positive"
		return check, nil
	}
	if err := checkMinimum(sub, amount); err != nil {
		check.IsValid = false
		check.Reason = err.(*Error).Message
	}
	return check, nil
}

// ListJobBids returns the job's open bids for its customer, bids still in
// their priority window first, then oldest first.
func (s *DefaultWorkflowService) ListJobBids(ctx context.Context, jobID, customerID string) ([]models.BidView, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.CustomerID != customerID {
		return nil, fail(ErrNotOwner, "job %s does not belong to user %s", jobID, customerID)
	}
	bids, err := s.store.Bids().ListByJob(ctx, jobID)
	if err != nil {
		return nil, storeErr("list bids", err)
	}

	now := s.now()
	views := make([]models.BidView, 0, len(bids))
	for _, b := range bids {
		if b.RejectedAt != nil {
			continue
		}
		views = append(views, models.BidView{
			Bid:              b,
			Expired:          b.ExpiredAt(now),
			InPriorityWindow: b.InPriorityWindow(now),
		})
	}
	sort.SliceStable(views, func(i, j int) bool {
		if views[i].InPriorityWindow != views[j].InPriorityWindow {
			return views[i].InPriorityWindow
		}
		return views[i].CreatedAt.Before(views[j].CreatedAt)
	})
	return views, nil
}

// ExpireBid retires the bubbles of a bid that reached its expiry unsettled.
// A call that arrives early returns a *BidNotDueError so the timer can be
// retried.
func (s *DefaultWorkflowService) ExpireBid(ctx context.Context, bidID string) error {
	return s.run(ctx, func(ctx context.Context, fx *effects) error {
		bid, err := s.getBid(ctx, bidID)
		if err != nil {
			return err
		}
		if bid.AcceptedAt != nil {
			return nil
		}
		if now := s.now(); !bid.ExpiredAt(now) {
			return &BidNotDueError{BidID: bid.ID, Wait: bid.ExpiresAt.Sub(now)}
		}
		n, err := s.store.Messages().ExpireByBid(ctx, bidID, s.now())
		if err != nil {
			return storeErr("expire bid bubbles", err)
		}
		if n > 0 {
			fx.emit(events.Event{Type: events.BidUpdated, Topic: events.JobTopic(bid.JobID), JobID: bid.JobID, BidID: bid.ID, At: s.now()})
		}
		return nil
	})
}
