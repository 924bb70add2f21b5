// Package events fans workflow state changes out to subscribers. Topics are
// scoped per chat, job and user so a client only receives what it renders.
package events

import (
	"context"
	"time"
)

const (
	MessageCreated = "message.created"
	MessageUpdated = "message.updated"
	MessageDeleted = "message.deleted"
	ChatUpdated    = "chat.updated"
	ChatReset      = "chat.reset"
	JobUpdated     = "job.updated"
	BidCreated     = "bid.created"
	BidUpdated     = "bid.updated"
)

// Event is a single state change. Payload holds the committed record.
type Event struct {
	Type      string    `json:"type"`
	Topic     string    `json:"topic"`
	ChatID    string    `json:"chat_id,omitempty"`
	JobID     string    `json:"job_id,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	BidID     string    `json:"bid_id,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	At        time.Time `json:"at"`
	Origin    string    `json:"origin,omitempty"` // Instance that produced the event
}

func ChatTopic(chatID string) string { return "chat:" + chatID }
func JobTopic(jobID string) string   { return "job:" + jobID }
func UserTopic(userID string) string { return "user:" + userID }

// Publisher delivers events after the transaction that produced them commits.
type Publisher interface {
	Publish(ctx context.Context, evt Event)
}

// Subscriber hands out a channel per topic. The returned func releases it.
type Subscriber interface {
	Subscribe(topic string) (<-chan Event, func())
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) {}
