// Package repository declares the storage contract of the job workflow.
// Every method takes the context of the surrounding transaction, so a
// workflow operation composed of several calls commits or aborts as a unit.
package repository

import (
	"context"
	"errors"
	"time"

	"gigchat/models"
)

var (
	// ErrNotFound is returned when the addressed record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a uniqueness constraint rejects an insert.
	ErrDuplicate = errors.New("duplicate record")
	// ErrConflict is returned when a conditional write finds the record in another state.
	ErrConflict = errors.New("write conflict")
	// ErrTransient is returned when a transaction kept colliding with
	// concurrent writers and gave up. The caller may retry the operation.
	ErrTransient = errors.New("transient storage failure")
)

// Transactor runs fn atomically. Calls nested inside fn join the outer
// transaction. fn may be invoked more than once when the store retries.
type Transactor interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	// ListEligibleWorkers returns approved workers with a positive balance skilled in categoryID.
	ListEligibleWorkers(ctx context.Context, categoryID string) ([]models.User, error)
	SetApprovalStatus(ctx context.Context, id, status string) error
	AdjustBalance(ctx context.Context, id string, delta int64) (*models.User, error)
	IncrementCancellationCount(ctx context.Context, id string) error
	SetFCMToken(ctx context.Context, id, token string) error
}

type CategoryRepository interface {
	Create(ctx context.Context, category *models.Category) error
	GetByID(ctx context.Context, id string) (*models.Category, error)
	ListChildren(ctx context.Context, parentID string) ([]models.Category, error)
}

type ChatRepository interface {
	Create(ctx context.Context, chat *models.Chat) error
	GetByID(ctx context.Context, id string) (*models.Chat, error)
	FindServiceChat(ctx context.Context, customerID, categoryID string) (*models.Chat, error)
	FindNotificationChat(ctx context.Context, workerID, categoryID string) (*models.Chat, error)
	// SetFirstVoiceMessage records the voice note awaiting confirmation; "" clears it.
	SetFirstVoiceMessage(ctx context.Context, chatID, messageID string) error
	AttachJob(ctx context.Context, chatID, jobID string) error
	AttachWorker(ctx context.Context, chatID, workerID string, banner *models.BannerInfo) error
	SetBanner(ctx context.Context, chatID string, banner *models.BannerInfo) error
	// Reset clears job, worker, banner and voice state while keeping customer and category.
	Reset(ctx context.Context, chatID string) error
	// Release detaches a finished job and its worker but keeps the history.
	// The next job script starts at scriptStartID.
	Release(ctx context.Context, chatID, scriptStartID string) error
}

type MessageRepository interface {
	// Append inserts the message and bumps its (chat, year_month) partition.
	Append(ctx context.Context, msg *models.Message) error
	GetByID(ctx context.Context, id string) (*models.Message, error)
	// ListByChat returns the chat history in insertion order.
	ListByChat(ctx context.Context, chatID string) ([]models.Message, error)
	ListByJob(ctx context.Context, jobID string, bubbleType models.BubbleType) ([]models.Message, error)
	Delete(ctx context.Context, ids ...string) error
	DeleteByChat(ctx context.Context, chatID string) (int64, error)
	DeletePartitionsByChat(ctx context.Context, chatID string) (int64, error)
	ListPartitions(ctx context.Context, chatID string) ([]models.MessagePartition, error)
	Dismiss(ctx context.Context, id string) error
	ExpireByJob(ctx context.Context, jobID string, bubbleType models.BubbleType, at time.Time) (int64, error)
	ExpireByBid(ctx context.Context, bidID string, at time.Time) (int64, error)
	// MarkRead marks every message in the chat not authored by readerID as read.
	MarkRead(ctx context.Context, chatID, readerID string) (int64, error)
}

type JobRepository interface {
	Create(ctx context.Context, job *models.Job) error
	GetByID(ctx context.Context, id string) (*models.Job, error)
	// SetSubcategory sets the subcategory and opens bidding. ErrConflict if already categorized.
	SetSubcategory(ctx context.Context, jobID, subcategoryID, workerID string, at time.Time) (*models.Job, error)
	// ReserveBidSlot counts a new bid. ErrConflict unless the job is posted and in the bidding phase.
	ReserveBidSlot(ctx context.Context, jobID string, at time.Time) (*models.Job, error)
	// Transition applies upd when the job's status is one of from. ErrConflict otherwise.
	Transition(ctx context.Context, jobID string, from []models.JobStatus, upd models.JobUpdate, at time.Time) (*models.Job, error)
}

type BidRepository interface {
	// Create enforces one bid per (job, worker) with ErrDuplicate.
	Create(ctx context.Context, bid *models.Bid) error
	GetByID(ctx context.Context, id string) (*models.Bid, error)
	ListByJob(ctx context.Context, jobID string) ([]models.Bid, error)
	// Settle accepts or rejects a bid that is neither. ErrConflict otherwise.
	Settle(ctx context.Context, bidID string, accepted bool, at time.Time) (*models.Bid, error)
}

type CodeRepository interface {
	// SaveCompletionCode replaces any unconsumed code for the job.
	SaveCompletionCode(ctx context.Context, code *models.CompletionCode) error
	GetCompletionCode(ctx context.Context, jobID string) (*models.CompletionCode, error)
	RecordFailedAttempt(ctx context.Context, jobID string) error
	// ConsumeCompletionCode marks the code used. ErrConflict if already consumed.
	ConsumeCompletionCode(ctx context.Context, jobID string, at time.Time) error
}

type RatingRepository interface {
	// Create enforces one rating per (job, rater, rated) with ErrDuplicate.
	Create(ctx context.Context, rating *models.Rating) error
	ListByJob(ctx context.Context, jobID string) ([]models.Rating, error)
}

type JobViewRepository interface {
	// Record stores the view once and reports whether it already existed.
	Record(ctx context.Context, view *models.JobView) (alreadyViewed bool, err error)
}

// Store groups the repositories behind one transaction boundary.
type Store interface {
	Transactor
	Users() UserRepository
	Categories() CategoryRepository
	Chats() ChatRepository
	Messages() MessageRepository
	Jobs() JobRepository
	Bids() BidRepository
	Codes() CodeRepository
	Ratings() RatingRepository
	Views() JobViewRepository
}
