package workflow

import (
	"context"
	"crypto/subtle"
	"errors"

	"gigchat/models"
	"gigchat/services/notification"
	"gigchat/utils"

	"go.uber.org/zap"
)

const completionPromptText = "Have you finished the job?"

// HandleCompletionRequest answers the worker's completion command with a
// yes/no confirmation prompt visible only to them.
func (s *DefaultWorkflowService) HandleCompletionRequest(ctx context.Context, chatID, workerID string) (*models.Message, error) {
	var prompt *models.Message
	err := s.run(ctx, func(ctx context.Context, fx *effects) error {
		chat, err := s.getChat(ctx, chatID)
		if err != nil {
			return err
		}
		if chat.Kind() != models.ChatKindConversation {
			return fail(ErrInvalidState, "chat %s has no matched job", chatID)
		}
		if chat.WorkerID != workerID {
			return fail(ErrNotOwner, "only the matched worker can complete the job")
		}
		job, err := s.getJob(ctx, chat.JobID)
		if err != nil {
			return err
		}
		if err := s.completable(ctx, job); err != nil {
			return err
		}
		prompt, err = s.systemMessage(ctx, fx, chat.ID, job.ID, workerID, completionPromptText,
			models.SystemInstructionPayload{
				Kind:    models.InstructionCompletionConfirmation,
				JobID:   job.ID,
				Options: []string{models.QuickReplyYes, models.QuickReplyNo},
			})
		return err
	})
	if err != nil {
		return nil, err
	}
	return prompt, nil
}

// completable rejects jobs that cannot move to completed.
func (s *DefaultWorkflowService) completable(ctx context.Context, job *models.Job) error {
	switch job.Status {
	case models.JobStatusCompleted:
		return ErrAlreadyCompleted
	case models.JobStatusCancelled:
		return ErrAlreadyCancelled
	case models.JobStatusMatched, models.JobStatusInProgress:
	default:
		return fail(ErrInvalidState, "job %s is %s", job.ID, job.Status)
	}
	if job.OnboardingValidatedAt != nil {
		return nil
	}
	category, err := s.jobCategory(ctx, job)
	if err != nil {
		return err
	}
	if category.RequiresWorkCode {
		return fail(ErrInvalidState, "job %s has not been started with its onboarding code", job.ID)
	}
	return nil
}

// GenerateCompletionCode issues a fresh completion code for the job. The
// customer receives the code; the worker receives a code-entry prompt.
func (s *DefaultWorkflowService) GenerateCompletionCode(ctx context.Context, jobID string) (string, error) {
	var code string
	err := s.run(ctx, func(ctx context.Context, fx *effects) error {
		var err error
		_, code, err = s.issueCompletionCode(ctx, fx, jobID)
		return err
	})
	if err != nil {
		return "", err
	}
	return code, nil
}

func (s *DefaultWorkflowService) issueCompletionCode(ctx context.Context, fx *effects, jobID string) ([]*models.Message, string, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, "", err
	}
	if err := s.completable(ctx, job); err != nil {
		return nil, "", err
	}

	code, err := utils.GenerateNumericCode(models.CodeLength)
	if err != nil {
		return nil, "", storeErr("generate completion code", err)
	}
	hash, err := utils.HashCode(code)
	if err != nil {
		return nil, "", storeErr("hash completion code", err)
	}
	if err := s.store.Codes().SaveCompletionCode(ctx, &models.CompletionCode{
		JobID:     job.ID,
		CodeHash:  hash,
		CreatedAt: s.now(),
	}); err != nil {
		if isConflict(err) {
			return nil, "", fail(ErrCodeAlreadyUsed, "job %s was already confirmed complete", job.ID)
		}
		return nil, "", storeErr("save completion code", err)
	}

	// Earlier code bubbles are superseded by the new code.
	for _, bt := range []models.BubbleType{models.BubbleCompletionCode, models.BubbleCodeEntry} {
		if _, err := s.store.Messages().ExpireByJob(ctx, job.ID, bt, s.now()); err != nil {
			return nil, "", storeErr("expire code bubbles", err)
		}
	}

	codeMsg, err := s.systemMessage(ctx, fx, job.ChatID, job.ID, job.CustomerID,
		"Give this code to the worker once you are happy with the work.",
		models.CompletionCodePayload{JobID: job.ID, Code: code})
	if err != nil {
		return nil, "", err
	}
	entryMsg, err := s.systemMessage(ctx, fx, job.ChatID, job.ID, job.WorkerID,
		"Ask the customer for the completion code and enter it here.",
		models.CodeEntryPayload{JobID: job.ID, Purpose: codeKindCompletion})
	if err != nil {
		return nil, "", err
	}
	fx.notify(job.CustomerID, notification.Push{
		Title: "Job completion code",
		Body:  "Your worker marked the job as done. Open the chat to see the completion code.",
		Data:  jobPushData(notification.TypeCompletionCode, job.ID),
	})
	return []*models.Message{codeMsg, entryMsg}, code, nil
}

// ValidateCompletionCode compares input with the job's completion code. A
// mismatch is counted but does not consume the code.
func (s *DefaultWorkflowService) ValidateCompletionCode(ctx context.Context, jobID, input string) (bool, error) {
	if !s.attempts.Allow(jobID, codeKindCompletion) {
		return false, ErrTooManyAttempts
	}

	var valid bool
	err := s.run(ctx, func(ctx context.Context, fx *effects) error {
		job, err := s.getJob(ctx, jobID)
		if err != nil {
			return err
		}
		switch job.Status {
		case models.JobStatusCompleted:
			return ErrAlreadyCompleted
		case models.JobStatusCancelled:
			return ErrAlreadyCancelled
		}
		stored, err := s.store.Codes().GetCompletionCode(ctx, jobID)
		if err != nil {
			if isNotFound(err) {
				return fail(ErrNotFound, "no completion code was issued for job %s", jobID)
			}
			return storeErr("get completion code", err)
		}
		if stored.ConsumedAt != nil {
			return ErrCodeAlreadyUsed
		}

		if !utils.CodeMatches(stored.CodeHash, input) {
			if err := s.store.Codes().RecordFailedAttempt(ctx, jobID); err != nil {
				return storeErr("record failed attempt", err)
			}
			return nil
		}

		now := s.now()
		if err := s.store.Codes().ConsumeCompletionCode(ctx, jobID, now); err != nil {
			if isConflict(err) {
				return ErrCodeAlreadyUsed
			}
			return storeErr("consume completion code", err)
		}
		job, err = s.store.Jobs().Transition(ctx, jobID,
			[]models.JobStatus{models.JobStatusMatched, models.JobStatusInProgress},
			models.JobUpdate{Status: models.JobStatusCompleted, CompletedAt: timePtr(now)}, now)
		if err != nil {
			if isConflict(err) {
				return fail(ErrInvalidState, "job %s changed state concurrently", jobID)
			}
			return storeErr("complete job", err)
		}
		if err := s.finishJob(ctx, fx, job); err != nil {
			return err
		}
		valid = true
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		// Unknown jobs do not keep a bucket.
		s.attempts.Forget(jobID, codeKindCompletion)
	}
	if err != nil {
		return false, err
	}
	if valid {
		s.attempts.Forget(jobID, codeKindCompletion)
		s.logger.Info("Job completed", zap.String("jobID", jobID))
	}
	return valid, nil
}

// finishJob retires the job's bubbles and asks both parties for a rating.
func (s *DefaultWorkflowService) finishJob(ctx context.Context, fx *effects, job *models.Job) error {
	if err := s.expireWorkerBubbles(ctx, job.ID); err != nil {
		return err
	}
	if _, err := s.store.Messages().ExpireByJob(ctx, job.ID, models.BubbleCodeEntry, s.now()); err != nil {
		return storeErr("expire code entry", err)
	}
	if err := s.store.Chats().SetBanner(ctx, job.ChatID, &models.BannerInfo{
		Title:  "Job completed",
		Status: string(models.JobStatusCompleted),
	}); err != nil {
		return storeErr("update banner", err)
	}
	if _, err := s.systemMessage(ctx, fx, job.ChatID, job.ID, "", "",
		models.StatusPayload{JobID: job.ID, Status: job.Status}); err != nil {
		return err
	}
	if _, err := s.systemMessage(ctx, fx, job.ChatID, job.ID, job.CustomerID, "How did the worker do?",
		models.RatingPromptPayload{JobID: job.ID, RatedUserID: job.WorkerID, RatingType: models.RatingCustomerToWorker}); err != nil {
		return err
	}
	if _, err := s.systemMessage(ctx, fx, job.ChatID, job.ID, job.WorkerID, "How was working with this customer?",
		models.RatingPromptPayload{JobID: job.ID, RatedUserID: job.CustomerID, RatingType: models.RatingWorkerToCustomer}); err != nil {
		return err
	}
	s.jobEvent(fx, job)
	fx.notify(job.WorkerID, notification.Push{
		Title: "Job completed",
		Body:  "The customer confirmed the job is complete.",
		Data:  jobPushData(notification.TypeJobCompleted, job.ID),
	})
	return nil
}

// ValidateOnboardingCode confirms the worker started the job in person. It
// succeeds once and moves the job to in_progress.
func (s *DefaultWorkflowService) ValidateOnboardingCode(ctx context.Context, jobID, input string) (bool, error) {
	if !s.attempts.Allow(jobID, codeKindOnboarding) {
		return false, ErrTooManyAttempts
	}

	var valid bool
	err := s.run(ctx, func(ctx context.Context, fx *effects) error {
		job, err := s.getJob(ctx, jobID)
		if err != nil {
			return err
		}
		if job.OnboardingValidatedAt != nil {
			return ErrCodeAlreadyUsed
		}
		if job.Status != models.JobStatusMatched {
			return fail(ErrInvalidState, "job %s is %s", jobID, job.Status)
		}
		if subtle.ConstantTimeCompare([]byte(job.WorkCode), []byte(input)) != 1 {
			return nil
		}

		now := s.now()
		job, err = s.store.Jobs().Transition(ctx, jobID, []models.JobStatus{models.JobStatusMatched},
			models.JobUpdate{Status: models.JobStatusInProgress, OnboardingValidatedAt: timePtr(now)}, now)
		if err != nil {
			if isConflict(err) {
				return ErrCodeAlreadyUsed
			}
			return storeErr("start job", err)
		}
		if _, err := s.store.Messages().ExpireByJob(ctx, jobID, models.BubbleCodeEntry, now); err != nil {
			return storeErr("expire code entry", err)
		}
		if err := s.store.Chats().SetBanner(ctx, job.ChatID, &models.BannerInfo{
			Title:  "Job in progress",
			Status: string(models.JobStatusInProgress),
		}); err != nil {
			return storeErr("update banner", err)
		}
		if _, err := s.systemMessage(ctx, fx, job.ChatID, job.ID, "", "",
			models.StatusPayload{JobID: job.ID, Status: job.Status}); err != nil {
			return err
		}
		s.jobEvent(fx, job)
		fx.notify(job.CustomerID, notification.Push{
			Title: "Your worker has arrived",
			Body:  "The job has started.",
			Data:  jobPushData(notification.TypeOnboardingValid, job.ID),
		})
		valid = true
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		// Unknown jobs do not keep a bucket.
		s.attempts.Forget(jobID, codeKindOnboarding)
	}
	if err != nil {
		return false, err
	}
	if valid {
		s.attempts.Forget(jobID, codeKindOnboarding)
	}
	return valid, nil
}

// GetOnboardingStatus reports whether the onboarding code was used. The
// customer may cancel until it has been.
func (s *DefaultWorkflowService) GetOnboardingStatus(ctx context.Context, jobID string) (*models.OnboardingStatus, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	category, err := s.jobCategory(ctx, job)
	if err != nil {
		return nil, err
	}
	validated := job.OnboardingValidatedAt != nil
	return &models.OnboardingStatus{
		JobID:            job.ID,
		RequiresWorkCode: category.RequiresWorkCode,
		Validated:        validated,
		ValidatedAt:      job.OnboardingValidatedAt,
		CanCancel:        !validated && !job.IsTerminal(),
	}, nil
}
