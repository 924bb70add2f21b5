package notification

import (
	"context"
	"fmt"

	"gigchat/database/repository"
	"gigchat/models"

	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
)

// Notification types carried in the push data payload.
const (
	TypeJobPosted       = "job_posted"
	TypeJobCategorized  = "job_categorized"
	TypeBidReceived     = "bid_received"
	TypeBidAccepted     = "bid_accepted"
	TypeBidRejected     = "bid_rejected"
	TypeCompletionCode  = "completion_code"
	TypeJobCompleted    = "job_completed"
	TypeJobCancelled    = "job_cancelled"
	TypeOnboardingValid = "onboarding_validated"
	TypeAccountApproved = "account_approved"
)

// Push is a single user-facing notification.
type Push struct {
	Title string
	Body  string
	Data  map[string]string
}

// NotificationService delivers pushes to a user's registered device.
type NotificationService interface {
	SendPush(ctx context.Context, userID string, push Push) error
}

// Messenger is the subset of the FCM client used for delivery.
type Messenger interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// DefaultNotificationService sends pushes through FCM.
type DefaultNotificationService struct {
	users  repository.UserRepository
	client Messenger
	logger *zap.Logger
}

func NewDefaultNotificationService(users repository.UserRepository, client Messenger, logger *zap.Logger) (*DefaultNotificationService, error) {
	if users == nil || client == nil {
		return nil, fmt.Errorf("notification service initialization error: user repository or messaging client is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultNotificationService{users: users, client: client, logger: logger}, nil
}

// SendPush looks up the user's FCM token and sends a push. Users without a
// token are skipped silently.
func (s *DefaultNotificationService) SendPush(ctx context.Context, userID string, push Push) error {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("SendPush: could not find user %s: %w", userID, err)
	}
	if u.FCMToken == "" {
		return nil
	}

	data := make(map[string]string, len(push.Data)+1)
	for k, v := range push.Data {
		data[k] = v
	}
	if _, ok := data["role"]; !ok {
		data["role"] = u.Role
	}

	msg := &messaging.Message{
		Token: u.FCMToken,
		Notification: &messaging.Notification{
			Title: push.Title,
			Body:  push.Body,
		},
		Data: data,
	}
	if u.Role == models.RoleWorker {
		msg.Android = &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				ChannelID: "high_priority",
				Sound:     "default",
			},
		}
		msg.APNS = &messaging.APNSConfig{
			Headers: map[string]string{
				"apns-priority":  "10",
				"apns-push-type": "alert",
			},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: "default"},
			},
		}
	}

	response, err := s.client.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("SendPush: failed to send FCM message: %w", err)
	}
	s.logger.Debug("Push sent", zap.String("userID", userID), zap.String("messageID", response))
	return nil
}

// LogNotificationService records pushes in the log. Used when FCM is not configured.
type LogNotificationService struct {
	logger *zap.Logger
}

func NewLogNotificationService(logger *zap.Logger) *LogNotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotificationService{logger: logger}
}

func (s *LogNotificationService) SendPush(_ context.Context, userID string, push Push) error {
	s.logger.Info("Push notification",
		zap.String("userID", userID),
		zap.String("title", push.Title),
		zap.String("type", push.Data["type"]))
	return nil
}
