package workflow

import (
	"context"
	"strings"

	"gigchat/models"
	"gigchat/services/events"

	"go.uber.org/zap"
)

const (
	welcomeText           = "Describe the job in a voice note and we will find someone to do it."
	voiceConfirmationText = "Does your voice note describe everything the worker needs to know?"
	dateSelectionText     = "When should the work be done?"
	photoSelectionText    = "Add photos of the job, or skip."
)

// OpenServiceChat returns the customer's chat for a top-level category,
// creating and initializing it on first use.
func (s *DefaultWorkflowService) OpenServiceChat(ctx context.Context, customerID, categoryID string) (*models.Chat, error) {
	var chat *models.Chat
	err := s.run(ctx, func(ctx context.Context, fx *effects) error {
		customer, err := s.getUser(ctx, customerID)
		if err != nil {
			return err
		}
		if customer.Role != models.RoleCustomer {
			return fail(ErrValidation, "user %s is not a customer", customerID)
		}
		category, err := s.getCategory(ctx, categoryID)
		if err != nil {
			return err
		}
		if !category.IsTopLevel() {
			return fail(ErrValidation, "service chats are opened for top-level categories only")
		}

		chat, err = s.store.Chats().FindServiceChat(ctx, customerID, categoryID)
		if err != nil && !isNotFound(err) {
			return storeErr("find service chat", err)
		}
		if chat == nil {
			now := s.now()
			chat = &models.Chat{
				ID:         newID(),
				CustomerID: customerID,
				CategoryID: categoryID,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if err := s.store.Chats().Create(ctx, chat); err != nil {
				return storeErr("create chat", err)
			}
		}
		if _, err := s.releaseFinished(ctx, fx, chat); err != nil {
			return err
		}
		_, err = s.ensureInitialized(ctx, fx, chat)
		return err
	})
	if err != nil {
		return nil, err
	}
	return chat, nil
}

// EnsureInitialized re-sends the welcome script when a service chat has none,
// which happens after a reset or an interrupted first write.
func (s *DefaultWorkflowService) EnsureInitialized(ctx context.Context, chatID string) (bool, error) {
	var resent bool
	err := s.run(ctx, func(ctx context.Context, fx *effects) error {
		chat, err := s.getChat(ctx, chatID)
		if err != nil {
			return err
		}
		released, err := s.releaseFinished(ctx, fx, chat)
		if err != nil {
			return err
		}
		resent, err = s.ensureInitialized(ctx, fx, chat)
		resent = resent || released
		return err
	})
	return resent, err
}

// releaseFinished frees a customer chat whose job is completed or cancelled so
// the next job can be posted from it. The history stays and a fresh welcome
// marks where the new script starts. The worker of the old job loses access.
func (s *DefaultWorkflowService) releaseFinished(ctx context.Context, fx *effects, chat *models.Chat) (bool, error) {
	if chat.CustomerID == "" || chat.JobID == "" {
		return false, nil
	}
	job, err := s.getJob(ctx, chat.JobID)
	if err != nil {
		return false, err
	}
	if !job.IsTerminal() {
		return false, nil
	}
	welcome, err := s.systemMessage(ctx, fx, chat.ID, "", "", welcomeText,
		models.SystemInstructionPayload{Kind: models.InstructionWelcome})
	if err != nil {
		return false, err
	}
	if err := s.store.Chats().Release(ctx, chat.ID, welcome.ID); err != nil {
		return false, storeErr("release chat", err)
	}
	s.logger.Info("Chat released",
		zap.String("chatID", chat.ID),
		zap.String("jobID", job.ID),
		zap.String("status", string(job.Status)))
	chat.JobID = ""
	chat.WorkerID = ""
	chat.BannerInfo = nil
	chat.FirstVoiceMessageID = ""
	chat.ScriptStartID = welcome.ID
	return true, nil
}

func (s *DefaultWorkflowService) ensureInitialized(ctx context.Context, fx *effects, chat *models.Chat) (bool, error) {
	if chat.Kind() != models.ChatKindService {
		return false, nil
	}
	msgs, err := s.store.Messages().ListByChat(ctx, chat.ID)
	if err != nil {
		return false, storeErr("list messages", err)
	}
	for _, m := range scriptMessages(msgs, chat.ScriptStartID) {
		if instructionKind(&m) == models.InstructionWelcome {
			return false, nil
		}
	}
	_, err = s.systemMessage(ctx, fx, chat.ID, "", "", welcomeText,
		models.SystemInstructionPayload{Kind: models.InstructionWelcome})
	return err == nil, err
}

// scriptMessages drops the history that precedes the current job script.
func scriptMessages(msgs []models.Message, startID string) []models.Message {
	if startID == "" {
		return msgs
	}
	for i := range msgs {
		if msgs[i].ID == startID {
			return msgs[i:]
		}
	}
	return msgs
}

// SendMessage appends a participant message. The completion token is
// intercepted and never stored. A first voice note in a service chat is
// followed by a yes/no confirmation prompt.
func (s *DefaultWorkflowService) SendMessage(ctx context.Context, in SendMessageInput) (*SendResult, error) {
	if !models.IsClientBubble(in.BubbleType) {
		return nil, fail(ErrValidation, "bubble type %q cannot be sent by a participant", in.BubbleType)
	}
	if _, err := models.DecodeBubble(in.BubbleType, in.Content, in.Metadata); err != nil {
		return nil, fail(ErrValidation, "%v", err)
	}

	if in.BubbleType == models.BubbleText && strings.TrimSpace(in.Content) == s.settings.CompletionToken {
		prompt, err := s.HandleCompletionRequest(ctx, in.ChatID, in.SenderID)
		if err != nil {
			return nil, err
		}
		return &SendResult{Prompt: prompt, Intercepted: true}, nil
	}

	result := &SendResult{}
	err := s.run(ctx, func(ctx context.Context, fx *effects) error {
		chat, err := s.getChat(ctx, in.ChatID)
		if err != nil {
			return err
		}
		if !chat.IsParticipant(in.SenderID) {
			return fail(ErrNotOwner, "user %s is not a participant of chat %s", in.SenderID, in.ChatID)
		}
		// A customer voice note after a finished job starts the next one.
		if in.BubbleType == models.BubbleVoice && in.SenderID == chat.CustomerID {
			if _, err := s.releaseFinished(ctx, fx, chat); err != nil {
				return err
			}
		}

		msg, err := s.appendMessage(ctx, fx, &models.Message{
			ChatID:        chat.ID,
			SenderID:      in.SenderID,
			BubbleType:    in.BubbleType,
			Content:       in.Content,
			Metadata:      in.Metadata,
			JobID:         chat.JobID,
			CorrelationID: in.CorrelationID,
		}, nil)
		if err != nil {
			return err
		}
		result.Message = msg

		if in.BubbleType != models.BubbleVoice || chat.Kind() != models.ChatKindService ||
			chat.FirstVoiceMessageID != "" || chat.JobID != "" {
			return nil
		}
		if err := s.store.Chats().SetFirstVoiceMessage(ctx, chat.ID, msg.ID); err != nil {
			return storeErr("set first voice message", err)
		}
		result.Prompt, err = s.systemMessage(ctx, fx, chat.ID, "", chat.CustomerID, voiceConfirmationText,
			models.SystemInstructionPayload{
				Kind:    models.InstructionVoiceConfirmation,
				ReplyTo: msg.ID,
				Options: []string{models.QuickReplyYes, models.QuickReplyNo},
			})
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// HandleQuickReply answers a yes/no prompt.
func (s *DefaultWorkflowService) HandleQuickReply(ctx context.Context, chatID, userID, promptID, reply string) (*QuickReplyResult, error) {
	result := &QuickReplyResult{}
	err := s.run(ctx, func(ctx context.Context, fx *effects) error {
		chat, err := s.getChat(ctx, chatID)
		if err != nil {
			return err
		}
		prompt, err := s.store.Messages().GetByID(ctx, promptID)
		if err != nil {
			if isNotFound(err) {
				return notFound("prompt", promptID)
			}
			return storeErr("get prompt", err)
		}
		if prompt.ChatID != chat.ID || prompt.BubbleType != models.BubbleSystemInstruction {
			return fail(ErrValidation, "message %s is not a prompt in chat %s", promptID, chatID)
		}
		if prompt.IsDismissed {
			return fail(ErrInvalidState, "prompt %s was already answered", promptID)
		}
		decoded, err := models.DecodeBubble(prompt.BubbleType, prompt.Content, prompt.Metadata)
		if err != nil {
			return storeErr("decode prompt", err)
		}
		payload := decoded.(*models.SystemInstructionPayload)
		if !containsString(payload.Options, reply) {
			return fail(ErrValidation, "%q is not a valid reply to this prompt", reply)
		}

		switch payload.Kind {
		case models.InstructionVoiceConfirmation:
			if userID != chat.CustomerID {
				return fail(ErrNotOwner, "only the customer can answer this prompt")
			}
			if chat.JobID != "" || payload.ReplyTo != chat.FirstVoiceMessageID {
				return fail(ErrInvalidState, "prompt %s no longer applies to chat %s", promptID, chatID)
			}
			return s.answerVoiceConfirmation(ctx, fx, chat, prompt, payload, reply, result)
		case models.InstructionCompletionConfirmation:
			if chat.WorkerID == "" || userID != chat.WorkerID {
				return fail(ErrNotOwner, "only the matched worker can answer this prompt")
			}
			if err := s.dismiss(ctx, fx, prompt); err != nil {
				return err
			}
			if reply == models.QuickReplyNo {
				return nil
			}
			msgs, _, err := s.issueCompletionCode(ctx, fx, payload.JobID)
			if err != nil {
				return err
			}
			// The code itself is only ever returned to the customer.
			for _, m := range msgs {
				if m.VisibleTo == "" || m.VisibleTo == userID {
					result.Messages = append(result.Messages, m)
				}
			}
			return nil
		default:
			return fail(ErrValidation, "prompt %s does not accept quick replies", promptID)
		}
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *DefaultWorkflowService) answerVoiceConfirmation(ctx context.Context, fx *effects, chat *models.Chat, prompt *models.Message, payload *models.SystemInstructionPayload, reply string, result *QuickReplyResult) error {
	if reply == models.QuickReplyNo {
		ids := []string{prompt.ID}
		if payload.ReplyTo != "" {
			ids = append(ids, payload.ReplyTo)
		}
		if err := s.store.Messages().Delete(ctx, ids...); err != nil {
			return storeErr("delete voice message", err)
		}
		if err := s.store.Chats().SetFirstVoiceMessage(ctx, chat.ID, ""); err != nil {
			return storeErr("clear first voice message", err)
		}
		for _, id := range ids {
			fx.emit(events.Event{
				Type:      events.MessageDeleted,
				Topic:     events.ChatTopic(chat.ID),
				ChatID:    chat.ID,
				MessageID: id,
				At:        s.now(),
			})
		}
		result.Deleted = ids
		return nil
	}

	if err := s.dismiss(ctx, fx, prompt); err != nil {
		return err
	}
	next, err := s.systemMessage(ctx, fx, chat.ID, "", chat.CustomerID, dateSelectionText,
		models.SystemInstructionPayload{Kind: models.InstructionDateSelection})
	if err != nil {
		return err
	}
	result.Messages = append(result.Messages, next)
	return nil
}

// SelectDate records the requested date. Categories that need photos get a
// photo prompt next; all others post the job right away.
func (s *DefaultWorkflowService) SelectDate(ctx context.Context, chatID, customerID, date string, req JobRequest) (*StepResult, error) {
	result := &StepResult{}
	err := s.run(ctx, func(ctx context.Context, fx *effects) error {
		chat, err := s.ownedServiceChat(ctx, fx, chatID, customerID)
		if err != nil {
			return err
		}
		result.Message, err = s.appendStep(ctx, fx, chat, models.DatePayload{Date: date}, date)
		if err != nil {
			return err
		}
		category, err := s.getCategory(ctx, chat.CategoryID)
		if err != nil {
			return err
		}
		if category.RequiresPhotos {
			result.Prompt, err = s.systemMessage(ctx, fx, chat.ID, "", chat.CustomerID, photoSelectionText,
				models.SystemInstructionPayload{Kind: models.InstructionPhotoSelection})
			return err
		}
		result.Job, err = s.createJob(ctx, fx, chat, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SelectPhotos records the photos, possibly none, and posts the job.
func (s *DefaultWorkflowService) SelectPhotos(ctx context.Context, chatID, customerID string, urls []string, req JobRequest) (*StepResult, error) {
	result := &StepResult{}
	err := s.run(ctx, func(ctx context.Context, fx *effects) error {
		chat, err := s.ownedServiceChat(ctx, fx, chatID, customerID)
		if err != nil {
			return err
		}
		payload := models.PhotoPayload{URLs: urls, Skipped: len(urls) == 0}
		result.Message, err = s.appendStep(ctx, fx, chat, payload, "")
		if err != nil {
			return err
		}
		result.Job, err = s.createJob(ctx, fx, chat, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *DefaultWorkflowService) ownedServiceChat(ctx context.Context, fx *effects, chatID, customerID string) (*models.Chat, error) {
	chat, err := s.getChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat.CustomerID != customerID {
		return nil, fail(ErrNotOwner, "chat %s does not belong to user %s", chatID, customerID)
	}
	if _, err := s.releaseFinished(ctx, fx, chat); err != nil {
		return nil, err
	}
	if chat.Kind() != models.ChatKindService || chat.JobID != "" {
		return nil, fail(ErrInvalidState, "chat %s already has an active job", chatID)
	}
	return chat, nil
}

// appendStep stores a customer-authored step message after validating it.
func (s *DefaultWorkflowService) appendStep(ctx context.Context, fx *effects, chat *models.Chat, payload models.BubblePayload, content string) (*models.Message, error) {
	md, err := models.EncodeBubble(payload)
	if err != nil {
		return nil, storeErr("encode step", err)
	}
	if _, err := models.DecodeBubble(payload.BubbleType(), content, md); err != nil {
		return nil, fail(ErrValidation, "%v", err)
	}
	return s.appendMessage(ctx, fx, &models.Message{
		ChatID:   chat.ID,
		SenderID: chat.CustomerID,
		Content:  content,
	}, payload)
}

func (s *DefaultWorkflowService) dismiss(ctx context.Context, fx *effects, msg *models.Message) error {
	if err := s.store.Messages().Dismiss(ctx, msg.ID); err != nil {
		return storeErr("dismiss message", err)
	}
	msg.IsDismissed = true
	fx.emit(events.Event{
		Type:      events.MessageUpdated,
		Topic:     events.ChatTopic(msg.ChatID),
		ChatID:    msg.ChatID,
		MessageID: msg.ID,
		Payload:   msg,
		At:        s.now(),
	})
	return nil
}

// GetChatMessages returns the history the user may see.
func (s *DefaultWorkflowService) GetChatMessages(ctx context.Context, chatID, userID string) ([]models.Message, error) {
	chat, err := s.getChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.IsParticipant(userID) {
		return nil, fail(ErrNotOwner, "user %s is not a participant of chat %s", userID, chatID)
	}
	msgs, err := s.store.Messages().ListByChat(ctx, chatID)
	if err != nil {
		return nil, storeErr("list messages", err)
	}
	visible := msgs[:0]
	for _, m := range msgs {
		if m.VisibleTo == "" || m.VisibleTo == userID {
			visible = append(visible, m)
		}
	}
	return visible, nil
}

// MarkMessagesRead marks messages from the other participants as read.
func (s *DefaultWorkflowService) MarkMessagesRead(ctx context.Context, chatID, userID string) (int64, error) {
	var n int64
	err := s.run(ctx, func(ctx context.Context, fx *effects) error {
		chat, err := s.getChat(ctx, chatID)
		if err != nil {
			return err
		}
		if !chat.IsParticipant(userID) {
			return fail(ErrNotOwner, "user %s is not a participant of chat %s", userID, chatID)
		}
		n, err = s.store.Messages().MarkRead(ctx, chatID, userID)
		if err != nil {
			return storeErr("mark messages read", err)
		}
		if n > 0 {
			fx.emit(events.Event{Type: events.ChatUpdated, Topic: events.ChatTopic(chatID), ChatID: chatID, At: s.now()})
		}
		return nil
	})
	if err == nil && n > 0 {
		s.logger.Debug("Messages marked read", zap.String("chatID", chatID), zap.Int64("count", n))
	}
	return n, err
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
