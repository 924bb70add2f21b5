package workflow

import (
	"context"
	"time"

	"gigchat/models"
)

// WorkflowService is the job marketplace engine: the scripted service chat,
// broadcast and categorization, bidding, award, completion and cancellation.
// Every mutating call is one transaction.
type WorkflowService interface {
	// Conversation engine.
	OpenServiceChat(ctx context.Context, customerID, categoryID string) (*models.Chat, error)
	EnsureInitialized(ctx context.Context, chatID string) (bool, error)
	SendMessage(ctx context.Context, in SendMessageInput) (*SendResult, error)
	HandleQuickReply(ctx context.Context, chatID, userID, promptID, reply string) (*QuickReplyResult, error)
	SelectDate(ctx context.Context, chatID, customerID, date string, req JobRequest) (*StepResult, error)
	SelectPhotos(ctx context.Context, chatID, customerID string, urls []string, req JobRequest) (*StepResult, error)
	GetChatMessages(ctx context.Context, chatID, userID string) ([]models.Message, error)
	MarkMessagesRead(ctx context.Context, chatID, userID string) (int64, error)

	// Jobs, broadcast and categorization.
	CreateJobFromChat(ctx context.Context, chatID string, req JobRequest) (*models.Job, error)
	SubmitCategorization(ctx context.Context, jobID, workerID, subcategoryID string) (*models.Job, error)
	RecordJobView(ctx context.Context, jobID, workerID string) (bool, error)

	// Bidding.
	SubmitBid(ctx context.Context, in BidInput) (*BidBreakdown, error)
	ValidateBidAmount(ctx context.Context, subcategoryID string, amount int64) (*BidAmountCheck, error)
	ListJobBids(ctx context.Context, jobID, customerID string) ([]models.BidView, error)
	ExpireBid(ctx context.Context, bidID string) error

	// Award and completion.
	AcceptBid(ctx context.Context, bidID, customerID string) (*models.Job, error)
	RejectBid(ctx context.Context, bidID, customerID string) (*models.Bid, error)
	HandleCompletionRequest(ctx context.Context, chatID, workerID string) (*models.Message, error)
	GenerateCompletionCode(ctx context.Context, jobID string) (string, error)
	ValidateCompletionCode(ctx context.Context, jobID, input string) (bool, error)
	ValidateOnboardingCode(ctx context.Context, jobID, input string) (bool, error)
	GetOnboardingStatus(ctx context.Context, jobID string) (*models.OnboardingStatus, error)
	SubmitRating(ctx context.Context, in RatingInput) (*models.Rating, error)

	// Cancellation.
	CancelJobAndClearChat(ctx context.Context, jobID, userID string, phase int) (*CancelResult, error)
	MarkJobAsCancelled(ctx context.Context, jobID, userID string, phase int) (*models.Job, error)
}

// JobRequest carries the fields the customer supplies when a job is posted.
type JobRequest struct {
	Lat              float64 `json:"lat" binding:"gte=-90,lte=90"`
	Lng              float64 `json:"lng" binding:"gte=-180,lte=180"`
	PriceFloor       int64   `json:"price_floor" binding:"gte=0"`
	PortfolioConsent bool    `json:"portfolio_consent"`
}

type SendMessageInput struct {
	ChatID        string
	SenderID      string
	BubbleType    models.BubbleType
	Content       string
	Metadata      map[string]any
	CorrelationID string
}

// SendResult reports what a message produced. An intercepted command is not
// stored; Prompt then holds the system message it triggered.
type SendResult struct {
	Message     *models.Message `json:"message,omitempty"`
	Prompt      *models.Message `json:"prompt,omitempty"`
	Intercepted bool            `json:"intercepted"`
}

type QuickReplyResult struct {
	Deleted  []string          `json:"deleted,omitempty"`
	Messages []*models.Message `json:"messages,omitempty"`
}

// StepResult is the outcome of a terminal conversation step: either the next
// prompt or the created job.
type StepResult struct {
	Message *models.Message `json:"message"`
	Prompt  *models.Message `json:"prompt,omitempty"`
	Job     *models.Job     `json:"job,omitempty"`
}

type BidInput struct {
	JobID         string
	WorkerID      string
	Amount        int64
	EquipmentCost int64
}

// BidBreakdown is everything a client needs to render a submitted bid.
type BidBreakdown struct {
	BidID             string    `json:"bid_id"`
	BaseAmount        int64     `json:"base_amount"`
	EquipmentCost     int64     `json:"equipment_cost"`
	ServiceFee        int64     `json:"service_fee"`
	TotalAmount       int64     `json:"total_amount"`
	ExpiresAt         time.Time `json:"expires_at"`
	PriorityWindowEnd time.Time `json:"priority_window_end"`
}

type BidAmountCheck struct {
	IsValid       bool   `json:"is_valid"`
	MinimumAmount int64  `json:"minimum_amount"`
	Reason        string `json:"reason,omitempty"`
}

type RatingInput struct {
	JobID      string
	RaterID    string
	RatedID    string
	Rating     int
	ReviewText string
	RatingType models.RatingType
}

type CancelResult struct {
	Success   bool `json:"success"`
	ChatReset bool `json:"chat_reset"`
}
