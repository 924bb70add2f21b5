package models

import "time"

type BubbleType string

const (
	BubbleText              BubbleType = "text"
	BubbleVoice             BubbleType = "voice"
	BubblePhoto             BubbleType = "photo"
	BubbleDate              BubbleType = "date"
	BubbleSystemInstruction BubbleType = "system_instruction"
	BubbleJob               BubbleType = "job"
	BubbleWorkerJob         BubbleType = "worker_job"
	BubbleBid               BubbleType = "bid"
	BubbleCompletionCode    BubbleType = "completion_code"
	BubbleCodeEntry         BubbleType = "code_entry"
	BubbleRating            BubbleType = "rating"
	BubbleStatus            BubbleType = "status"
)

const (
	MessageStatusSent      = "sent"
	MessageStatusDelivered = "delivered"
	MessageStatusRead      = "read"
)

// Message is append-only. Only Status, IsDismissed, IsExpired and ExpiresAt
// change after insert.
type Message struct {
	ID            string         `bson:"id" json:"id"`
	ChatID        string         `bson:"chat_id" json:"chat_id"`
	YearMonth     string         `bson:"year_month" json:"year_month"`                       // Partition key, "2006-01"
	SenderID      string         `bson:"sender_id,omitempty" json:"sender_id,omitempty"`     // Empty for system messages
	BubbleType    BubbleType     `bson:"bubble_type" json:"bubble_type"`
	Content       string         `bson:"content" json:"content"`
	Metadata      map[string]any `bson:"metadata,omitempty" json:"metadata,omitempty"`
	JobID         string         `bson:"job_id,omitempty" json:"job_id,omitempty"`
	BidID         string         `bson:"bid_id,omitempty" json:"bid_id,omitempty"`
	VisibleTo     string         `bson:"visible_to,omitempty" json:"visible_to,omitempty"`   // Restricts rendering to one participant
	CorrelationID string         `bson:"correlation_id,omitempty" json:"correlation_id,omitempty"`
	IsDismissed   bool           `bson:"is_dismissed" json:"is_dismissed"`
	IsExpired     bool           `bson:"is_expired" json:"is_expired"`
	ExpiresAt     *time.Time     `bson:"expires_at,omitempty" json:"expires_at,omitempty"`
	Status        string         `bson:"status" json:"status"`
	CreatedAt     time.Time      `bson:"created_at" json:"created_at"`
}

// IsSystem reports whether the engine authored the message.
func (m *Message) IsSystem() bool {
	return m.SenderID == ""
}

// ExpiredAt evaluates expiry lazily against now.
func (m *Message) ExpiredAt(now time.Time) bool {
	if m.IsExpired {
		return true
	}
	return m.ExpiresAt != nil && !now.Before(*m.ExpiresAt)
}

// MessagePartition tracks one (chat, month) slice of message history.
type MessagePartition struct {
	ChatID         string    `bson:"chat_id" json:"chat_id"`
	YearMonth      string    `bson:"year_month" json:"year_month"`
	MessageCount   int64     `bson:"message_count" json:"message_count"`
	FirstMessageAt time.Time `bson:"first_message_at" json:"first_message_at"`
	LastMessageAt  time.Time `bson:"last_message_at" json:"last_message_at"`
}

// PartitionKey formats the year_month partition for t.
func PartitionKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}
