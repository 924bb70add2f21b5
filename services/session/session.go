// Package session holds the per-client state of a connected user: the
// optimistic overlay of messages sent but not yet confirmed, and a filtered
// view of the chat event stream.
package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"gigchat/models"
	"gigchat/services/events"
	"gigchat/services/workflow"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusFailed  Status = "failed"
)

// PendingMessage is a locally shown message awaiting its authoritative copy.
type PendingMessage struct {
	CorrelationID string            `json:"correlation_id"`
	ChatID        string            `json:"chat_id"`
	BubbleType    models.BubbleType `json:"bubble_type"`
	Content       string            `json:"content"`
	Metadata      map[string]any    `json:"metadata,omitempty"`
	Status        Status            `json:"status"`
	Error         string            `json:"error,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// Sender is the workflow call a session sends through.
type Sender interface {
	SendMessage(ctx context.Context, in workflow.SendMessageInput) (*workflow.SendResult, error)
}

// ClientSession is created per connected client and never shared.
type ClientSession struct {
	userID  string
	sender  Sender
	logger  *zap.Logger
	now     func() time.Time
	mu      sync.Mutex
	pending map[string]*PendingMessage
}

func NewClientSession(userID string, sender Sender, logger *zap.Logger) *ClientSession {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClientSession{
		userID:  userID,
		sender:  sender,
		logger:  logger,
		now:     time.Now,
		pending: make(map[string]*PendingMessage),
	}
}

func (s *ClientSession) UserID() string { return s.userID }

// Send shows the message optimistically, then sends it. On success the
// overlay entry is reconciled; on failure it stays marked failed for retry.
func (s *ClientSession) Send(ctx context.Context, chatID string, bt models.BubbleType, content string, metadata map[string]any) (*workflow.SendResult, error) {
	p := &PendingMessage{
		CorrelationID: uuid.New().String(),
		ChatID:        chatID,
		BubbleType:    bt,
		Content:       content,
		Metadata:      metadata,
		Status:        StatusPending,
		CreatedAt:     s.now(),
	}
	s.mu.Lock()
	s.pending[p.CorrelationID] = p
	s.mu.Unlock()

	return s.deliver(ctx, p)
}

// Retry resends a failed message under the same correlation id.
func (s *ClientSession) Retry(ctx context.Context, correlationID string) (*workflow.SendResult, error) {
	s.mu.Lock()
	p, ok := s.pending[correlationID]
	if !ok || p.Status != StatusFailed {
		s.mu.Unlock()
		return nil, workflow.ErrNotFound
	}
	p.Status = StatusPending
	p.Error = ""
	s.mu.Unlock()

	return s.deliver(ctx, p)
}

func (s *ClientSession) deliver(ctx context.Context, p *PendingMessage) (*workflow.SendResult, error) {
	res, err := s.sender.SendMessage(ctx, workflow.SendMessageInput{
		ChatID:        p.ChatID,
		SenderID:      s.userID,
		BubbleType:    p.BubbleType,
		Content:       p.Content,
		Metadata:      p.Metadata,
		CorrelationID: p.CorrelationID,
	})
	if err != nil {
		s.fail(p.CorrelationID, err)
		return nil, err
	}
	// The response carries the authoritative copy.
	s.Discard(p.CorrelationID)
	return res, nil
}

func (s *ClientSession) fail(correlationID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pending[correlationID]; ok {
		p.Status = StatusFailed
		p.Error = err.Error()
	}
	s.logger.Debug("Optimistic message failed", zap.String("correlationID", correlationID), zap.Error(err))
}

// Discard drops an overlay entry.
func (s *ClientSession) Discard(correlationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, correlationID)
}

// Reconcile removes the overlay entry an authoritative message confirms.
func (s *ClientSession) Reconcile(msg *models.Message) bool {
	if msg == nil || msg.CorrelationID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[msg.CorrelationID]; !ok {
		return false
	}
	delete(s.pending, msg.CorrelationID)
	return true
}

// Pending lists the chat's overlay entries, oldest first.
func (s *ClientSession) Pending(chatID string) []PendingMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []PendingMessage
	for _, p := range s.pending {
		if p.ChatID == chatID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Merge returns the authoritative history followed by overlay entries that
// it does not already contain.
func (s *ClientSession) Merge(chatID string, authoritative []models.Message) []models.Message {
	for i := range authoritative {
		s.Reconcile(&authoritative[i])
	}
	out := make([]models.Message, 0, len(authoritative))
	out = append(out, authoritative...)
	for _, p := range s.Pending(chatID) {
		out = append(out, models.Message{
			ID:            "local:" + p.CorrelationID,
			ChatID:        p.ChatID,
			SenderID:      s.userID,
			BubbleType:    p.BubbleType,
			Content:       p.Content,
			Metadata:      p.Metadata,
			CorrelationID: p.CorrelationID,
			Status:        string(p.Status),
			CreatedAt:     p.CreatedAt,
		})
	}
	return out
}

// Visible reports whether the event may be shown to this session's user.
func (s *ClientSession) Visible(evt events.Event) bool {
	msg, ok := evt.Payload.(*models.Message)
	if !ok {
		if m, isMap := evt.Payload.(map[string]any); isMap {
			visibleTo, _ := m["visible_to"].(string)
			return visibleTo == "" || visibleTo == s.userID
		}
		return true
	}
	return msg.VisibleTo == "" || msg.VisibleTo == s.userID
}

// Watch relays a chat's events visible to the user into out, reconciling the
// overlay as authoritative messages arrive. It returns when ctx is done or
// the subscription closes.
func (s *ClientSession) Watch(ctx context.Context, sub events.Subscriber, chatID string, out chan<- events.Event) {
	ch, cancel := sub.Subscribe(events.ChatTopic(chatID))
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if !s.Visible(evt) {
				continue
			}
			if evt.Type == events.MessageCreated {
				s.reconcileEvent(evt)
			}
			select {
			case out <- evt:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *ClientSession) reconcileEvent(evt events.Event) {
	switch p := evt.Payload.(type) {
	case *models.Message:
		s.Reconcile(p)
	case map[string]any:
		if id, _ := p["correlation_id"].(string); id != "" {
			s.Reconcile(&models.Message{CorrelationID: id})
		}
	}
}
