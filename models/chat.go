package models

import "time"

type ChatKind string

const (
	ChatKindService      ChatKind = "service"
	ChatKindNotification ChatKind = "notification"
	ChatKindConversation ChatKind = "conversation"
	ChatKindInvalid      ChatKind = "invalid"
)

// BannerInfo is the status strip rendered above a conversation chat.
type BannerInfo struct {
	Title    string `bson:"title" json:"title"`
	Subtitle string `bson:"subtitle,omitempty" json:"subtitle,omitempty"`
	Status   string `bson:"status,omitempty" json:"status,omitempty"`
}

// Chat is keyed by (customer, category) for a service chat or
// (worker, category) for a notification chat. Accepting a bid on a service
// chat's job sets WorkerID and turns it into a conversation chat.
type Chat struct {
	ID                  string      `bson:"id" json:"id"`
	CustomerID          string      `bson:"customer_id,omitempty" json:"customer_id,omitempty"`
	WorkerID            string      `bson:"worker_id,omitempty" json:"worker_id,omitempty"`
	CategoryID          string      `bson:"category_id" json:"category_id"`
	JobID               string      `bson:"job_id,omitempty" json:"job_id,omitempty"`
	BannerInfo          *BannerInfo `bson:"banner_info,omitempty" json:"banner_info,omitempty"`
	IsCleared           bool        `bson:"is_cleared" json:"is_cleared"`
	FirstVoiceMessageID string      `bson:"first_voice_message_id,omitempty" json:"first_voice_message_id,omitempty"`
	// ScriptStartID is the welcome message the current job script began at.
	// Earlier history belongs to finished jobs.
	ScriptStartID       string      `bson:"script_start_id,omitempty" json:"script_start_id,omitempty"`
	CreatedAt           time.Time   `bson:"created_at" json:"created_at"`
	UpdatedAt           time.Time   `bson:"updated_at" json:"updated_at"`
}

// Kind is derived solely from which identity fields are populated.
func (c *Chat) Kind() ChatKind {
	switch {
	case c.CustomerID != "" && c.WorkerID != "" && c.JobID != "":
		return ChatKindConversation
	case c.CustomerID != "" && c.WorkerID == "":
		return ChatKindService
	case c.CustomerID == "" && c.WorkerID != "":
		return ChatKindNotification
	default:
		return ChatKindInvalid
	}
}

// IsParticipant reports whether userID may post into the chat.
func (c *Chat) IsParticipant(userID string) bool {
	return userID != "" && (c.CustomerID == userID || c.WorkerID == userID)
}
