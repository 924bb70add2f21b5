package workflow

import (
	"context"
	"fmt"

	"gigchat/models"
	"gigchat/services/notification"
	"gigchat/utils"

	"go.uber.org/zap"
)

// CreateJobFromChat posts a job built from the chat's voice, date and photo
// messages and broadcasts it to eligible workers.
func (s *DefaultWorkflowService) CreateJobFromChat(ctx context.Context, chatID string, req JobRequest) (*models.Job, error) {
	var job *models.Job
	err := s.run(ctx, func(ctx context.Context, fx *effects) error {
		chat, err := s.getChat(ctx, chatID)
		if err != nil {
			return err
		}
		if _, err := s.releaseFinished(ctx, fx, chat); err != nil {
			return err
		}
		if chat.Kind() != models.ChatKindService || chat.JobID != "" {
			return fail(ErrInvalidState, "chat %s already has an active job", chatID)
		}
		job, err = s.createJob(ctx, fx, chat, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

func validateJobRequest(req JobRequest) error {
	switch {
	case req.Lat < -90 || req.Lat > 90:
		return fail(ErrValidation, "latitude %v out of range", req.Lat)
	case req.Lng < -180 || req.Lng > 180:
		return fail(ErrValidation, "longitude %v out of range", req.Lng)
	case req.PriceFloor < 0:
		return fail(ErrValidation, "price floor must not be negative")
	}
	return nil
}

func (s *DefaultWorkflowService) createJob(ctx context.Context, fx *effects, chat *models.Chat, req JobRequest) (*models.Job, error) {
	if err := validateJobRequest(req); err != nil {
		return nil, err
	}
	msgs, err := s.store.Messages().ListByChat(ctx, chat.ID)
	if err != nil {
		return nil, storeErr("list messages", err)
	}

	msgs = scriptMessages(msgs, chat.ScriptStartID)

	var voiceURL, date string
	photos := []string{}
	var prompts []*models.Message
	for i := range msgs {
		m := &msgs[i]
		switch instructionKind(m) {
		case models.InstructionVoiceConfirmation, models.InstructionDateSelection, models.InstructionPhotoSelection:
			if !m.IsDismissed {
				prompts = append(prompts, m)
			}
		}
		if m.SenderID != chat.CustomerID {
			continue
		}
		switch m.BubbleType {
		case models.BubbleVoice:
			if url, _ := m.Metadata["url"].(string); url != "" {
				voiceURL = url
			}
		case models.BubbleDate:
			if d, _ := m.Metadata["date"].(string); d != "" {
				date = d
			}
		case models.BubblePhoto:
			p, err := models.DecodeBubble(m.BubbleType, m.Content, m.Metadata)
			if err == nil {
				photos = append(photos, p.(*models.PhotoPayload).URLs...)
			}
		}
	}
	if voiceURL == "" {
		return nil, ErrMissingVoiceMessage
	}

	workCode, err := utils.GenerateNumericCode(models.CodeLength)
	if err != nil {
		return nil, storeErr("generate work code", err)
	}
	now := s.now()
	job := &models.Job{
		ID:                newID(),
		ChatID:            chat.ID,
		CustomerID:        chat.CustomerID,
		CategoryID:        chat.CategoryID,
		VoiceURL:          voiceURL,
		Photos:            photos,
		Location:          models.GeoLocation{Lat: req.Lat, Lng: req.Lng},
		ScheduledDate:     date,
		PriceFloor:        req.PriceFloor,
		PortfolioConsent:  req.PortfolioConsent,
		WorkCode:          workCode,
		Status:            models.JobStatusPosted,
		BroadcastingPhase: models.PhaseCategorization,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.Jobs().Create(ctx, job); err != nil {
		return nil, storeErr("create job", err)
	}
	if err := s.store.Chats().AttachJob(ctx, chat.ID, job.ID); err != nil {
		return nil, storeErr("attach job", err)
	}
	chat.JobID = job.ID
	// Prompts left open by a direct post can no longer be answered.
	for _, m := range prompts {
		if err := s.dismiss(ctx, fx, m); err != nil {
			return nil, err
		}
	}

	if _, err := s.systemMessage(ctx, fx, chat.ID, job.ID, "", "Your job has been posted.",
		models.JobPayload{Job: models.NewJobSnapshot(job)}); err != nil {
		return nil, err
	}
	s.jobEvent(fx, job)

	n, err := s.broadcast(ctx, fx, job, models.WorkerJobViewCategorization)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Job posted",
		zap.String("jobID", job.ID),
		zap.String("chatID", chat.ID),
		zap.String("categoryID", job.CategoryID),
		zap.Int("workers", n))
	return job, nil
}

// broadcast places a worker_job bubble with the given view in the
// notification chat of every eligible worker and returns how many it reached.
func (s *DefaultWorkflowService) broadcast(ctx context.Context, fx *effects, job *models.Job, view string) (int, error) {
	workers, err := s.store.Users().ListEligibleWorkers(ctx, job.CategoryID)
	if err != nil {
		return 0, storeErr("list eligible workers", err)
	}
	snapshot := models.NewJobSnapshot(job)

	var push notification.Push
	if view == models.WorkerJobViewCategorization {
		push = notification.Push{
			Title: "New job nearby",
			Body:  "A customer posted a new job in your category.",
			Data:  map[string]string{"type": notification.TypeJobPosted, "jobId": job.ID},
		}
	} else {
		push = notification.Push{
			Title: "Bidding is open",
			Body:  "A job in your category is ready for bids.",
			Data:  map[string]string{"type": notification.TypeJobCategorized, "jobId": job.ID},
		}
	}

	reached := 0
	for i := range workers {
		w := &workers[i]
		if w.ID == job.CustomerID {
			continue
		}
		feed, err := s.notificationChat(ctx, w.ID, job.CategoryID)
		if err != nil {
			return 0, err
		}
		if _, err := s.systemMessage(ctx, fx, feed.ID, job.ID, w.ID, "",
			models.WorkerJobPayload{Job: snapshot, View: view}); err != nil {
			return 0, err
		}
		fx.notify(w.ID, push)
		reached++
	}
	return reached, nil
}

// notificationChat returns the worker's job feed for a category, creating it
// on first use.
func (s *DefaultWorkflowService) notificationChat(ctx context.Context, workerID, categoryID string) (*models.Chat, error) {
	chat, err := s.store.Chats().FindNotificationChat(ctx, workerID, categoryID)
	if err == nil {
		return chat, nil
	}
	if !isNotFound(err) {
		return nil, storeErr("find notification chat", err)
	}
	now := s.now()
	chat = &models.Chat{
		ID:         newID(),
		WorkerID:   workerID,
		CategoryID: categoryID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.Chats().Create(ctx, chat); err != nil {
		return nil, storeErr("create notification chat", err)
	}
	return chat, nil
}

// expireWorkerBubbles retires every worker_job bubble of the job.
func (s *DefaultWorkflowService) expireWorkerBubbles(ctx context.Context, jobID string) error {
	if _, err := s.store.Messages().ExpireByJob(ctx, jobID, models.BubbleWorkerJob, s.now()); err != nil {
		return storeErr("expire worker bubbles", err)
	}
	return nil
}

func jobPushData(kind, jobID string) map[string]string {
	return map[string]string{"type": kind, "jobId": jobID}
}

func formatAmount(v int64) string {
	return fmt.Sprintf("%d", v)
}
