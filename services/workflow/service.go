package workflow

import (
	"context"
	"errors"
	"time"

	"gigchat/config"
	"gigchat/database/repository"
	"gigchat/models"
	"gigchat/services/events"
	"gigchat/services/notification"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Settings are the tunable economics and timers of the workflow.
type Settings struct {
	ServiceFeePercent     int
	BidTTL                time.Duration
	BidPriorityWindow     time.Duration
	CompletionToken       string
	CodeAttemptsPerMinute int
	CodeAttemptBurst      int
}

func SettingsFromConfig(cfg config.Config) Settings {
	return Settings{
		ServiceFeePercent:     cfg.ServiceFeePercent,
		BidTTL:                cfg.BidTTL,
		BidPriorityWindow:     cfg.BidPriorityWindow,
		CompletionToken:       cfg.CompletionToken,
		CodeAttemptsPerMinute: cfg.CodeAttemptsPerMinute,
		CodeAttemptBurst:      cfg.CodeAttemptBurst,
	}
}

// DefaultSettings matches the production defaults.
func DefaultSettings() Settings {
	return Settings{
		ServiceFeePercent:     10,
		BidTTL:                24 * time.Hour,
		BidPriorityWindow:     2 * time.Hour,
		CompletionToken:       "*1#",
		CodeAttemptsPerMinute: 5,
		CodeAttemptBurst:      5,
	}
}

// Scheduler enqueues delayed work outside the request path.
type Scheduler interface {
	ScheduleBidExpiry(ctx context.Context, bidID string, at time.Time) error
}

// DefaultWorkflowService implements WorkflowService on a repository.Store.
type DefaultWorkflowService struct {
	store     repository.Store
	settings  Settings
	events    events.Publisher
	notifier  notification.NotificationService
	scheduler Scheduler
	attempts  *AttemptLimiter
	logger    *zap.Logger
	now       func() time.Time
}

var _ WorkflowService = (*DefaultWorkflowService)(nil)

type Option func(*DefaultWorkflowService)

func WithPublisher(p events.Publisher) Option {
	return func(s *DefaultWorkflowService) { s.events = p }
}

func WithNotifier(n notification.NotificationService) Option {
	return func(s *DefaultWorkflowService) { s.notifier = n }
}

func WithScheduler(sch Scheduler) Option {
	return func(s *DefaultWorkflowService) { s.scheduler = sch }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *DefaultWorkflowService) { s.logger = l }
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *DefaultWorkflowService) { s.now = now }
}

func NewWorkflowService(store repository.Store, settings Settings, opts ...Option) *DefaultWorkflowService {
	s := &DefaultWorkflowService{
		store:    store,
		settings: settings,
		events:   events.Discard{},
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.attempts = NewAttemptLimiter(settings.CodeAttemptsPerMinute, settings.CodeAttemptBurst, s.now)
	return s
}

type pendingPush struct {
	userID string
	push   notification.Push
}

type pendingExpiry struct {
	bidID string
	at    time.Time
}

// effects collects side effects of a transaction. They run only after commit.
type effects struct {
	events   []events.Event
	pushes   []pendingPush
	expiries []pendingExpiry
}

func (fx *effects) emit(evt events.Event) {
	fx.events = append(fx.events, evt)
}

func (fx *effects) notify(userID string, push notification.Push) {
	if userID == "" {
		return
	}
	fx.pushes = append(fx.pushes, pendingPush{userID: userID, push: push})
}

// run executes fn in a transaction and flushes its effects on success.
func (s *DefaultWorkflowService) run(ctx context.Context, fn func(ctx context.Context, fx *effects) error) error {
	var fx *effects
	err := s.store.RunInTransaction(ctx, func(txCtx context.Context) error {
		// A retried attempt starts over with no queued side effects.
		fx = &effects{}
		return fn(txCtx, fx)
	})
	if errors.Is(err, repository.ErrTransient) {
		return &Error{Code: ErrInternal.Code, Kind: KindInternal, Message: "storage busy, try again", Err: err}
	}
	if err != nil {
		return err
	}
	s.flush(ctx, fx)
	return nil
}

func (s *DefaultWorkflowService) flush(ctx context.Context, fx *effects) {
	for _, evt := range fx.events {
		s.events.Publish(ctx, evt)
	}
	if s.notifier != nil {
		for _, p := range fx.pushes {
			if err := s.notifier.SendPush(ctx, p.userID, p.push); err != nil {
				s.logger.Warn("Push notification failed", zap.String("userID", p.userID), zap.Error(err))
			}
		}
	}
	if s.scheduler != nil {
		for _, e := range fx.expiries {
			if err := s.scheduler.ScheduleBidExpiry(ctx, e.bidID, e.at); err != nil {
				s.logger.Warn("Failed to schedule bid expiry", zap.String("bidID", e.bidID), zap.Error(err))
			}
		}
	}
}

func newID() string {
	return uuid.New().String()
}

// appendMessage stores a message built from payload and queues its event.
func (s *DefaultWorkflowService) appendMessage(ctx context.Context, fx *effects, msg *models.Message, payload models.BubblePayload) (*models.Message, error) {
	if payload != nil {
		md, err := models.EncodeBubble(payload)
		if err != nil {
			return nil, storeErr("encode bubble", err)
		}
		msg.BubbleType = payload.BubbleType()
		msg.Metadata = md
	}
	if msg.ID == "" {
		msg.ID = newID()
	}
	if msg.Status == "" {
		msg.Status = models.MessageStatusSent
	}
	msg.CreatedAt = s.now()
	if err := s.store.Messages().Append(ctx, msg); err != nil {
		return nil, storeErr("append message", err)
	}
	fx.emit(events.Event{
		Type:      events.MessageCreated,
		Topic:     events.ChatTopic(msg.ChatID),
		ChatID:    msg.ChatID,
		JobID:     msg.JobID,
		MessageID: msg.ID,
		Payload:   msg,
		At:        msg.CreatedAt,
	})
	return msg, nil
}

// systemMessage appends an engine-authored bubble.
func (s *DefaultWorkflowService) systemMessage(ctx context.Context, fx *effects, chatID, jobID, visibleTo, content string, payload models.BubblePayload) (*models.Message, error) {
	return s.appendMessage(ctx, fx, &models.Message{
		ChatID:    chatID,
		JobID:     jobID,
		VisibleTo: visibleTo,
		Content:   content,
	}, payload)
}

func (s *DefaultWorkflowService) jobEvent(fx *effects, job *models.Job) {
	fx.emit(events.Event{
		Type:    events.JobUpdated,
		Topic:   events.JobTopic(job.ID),
		JobID:   job.ID,
		ChatID:  job.ChatID,
		Payload: job,
		At:      s.now(),
	})
}

func (s *DefaultWorkflowService) getJob(ctx context.Context, jobID string) (*models.Job, error) {
	job, err := s.store.Jobs().GetByID(ctx, jobID)
	if err != nil {
		if isNotFound(err) {
			return nil, notFound("job", jobID)
		}
		return nil, storeErr("get job", err)
	}
	return job, nil
}

func (s *DefaultWorkflowService) getChat(ctx context.Context, chatID string) (*models.Chat, error) {
	chat, err := s.store.Chats().GetByID(ctx, chatID)
	if err != nil {
		if isNotFound(err) {
			return nil, notFound("chat", chatID)
		}
		return nil, storeErr("get chat", err)
	}
	return chat, nil
}

func (s *DefaultWorkflowService) getUser(ctx context.Context, userID string) (*models.User, error) {
	u, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return nil, notFound("user", userID)
		}
		return nil, storeErr("get user", err)
	}
	return u, nil
}

func (s *DefaultWorkflowService) getCategory(ctx context.Context, categoryID string) (*models.Category, error) {
	c, err := s.store.Categories().GetByID(ctx, categoryID)
	if err != nil {
		if isNotFound(err) {
			return nil, notFound("category", categoryID)
		}
		return nil, storeErr("get category", err)
	}
	return c, nil
}

func (s *DefaultWorkflowService) getBid(ctx context.Context, bidID string) (*models.Bid, error) {
	b, err := s.store.Bids().GetByID(ctx, bidID)
	if err != nil {
		if isNotFound(err) {
			return nil, notFound("bid", bidID)
		}
		return nil, storeErr("get bid", err)
	}
	return b, nil
}

// jobCategory returns the subcategory once set, else the top-level category.
func (s *DefaultWorkflowService) jobCategory(ctx context.Context, job *models.Job) (*models.Category, error) {
	if job.SubcategoryID != "" {
		return s.getCategory(ctx, job.SubcategoryID)
	}
	return s.getCategory(ctx, job.CategoryID)
}

// instructionKind returns the kind of a system_instruction bubble, or "".
func instructionKind(m *models.Message) string {
	if m.BubbleType != models.BubbleSystemInstruction {
		return ""
	}
	kind, _ := m.Metadata["kind"].(string)
	return kind
}

func timePtr(t time.Time) *time.Time { return &t }
