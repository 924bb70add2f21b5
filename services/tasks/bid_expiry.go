package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const TypeBidExpire = "bid:expire"

// BidExpiryPayload identifies the bid whose timer ran out.
type BidExpiryPayload struct {
	BidID string `json:"bid_id"`
}

func NewBidExpiryTask(bidID string, fireAt time.Time) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(BidExpiryPayload{BidID: bidID})
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeBidExpire, b)
	opts := []asynq.Option{
		asynq.ProcessAt(fireAt),
		asynq.TaskID(TypeBidExpire + ":" + bidID),
		asynq.MaxRetry(5),
	}
	return task, opts, nil
}

// Enqueuer is the subset of *asynq.Client used to schedule tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Scheduler enqueues delayed workflow tasks on asynq.
type Scheduler struct {
	client Enqueuer
}

func NewScheduler(client Enqueuer) *Scheduler {
	return &Scheduler{client: client}
}

func (s *Scheduler) ScheduleBidExpiry(ctx context.Context, bidID string, at time.Time) error {
	task, opts, err := NewBidExpiryTask(bidID, at)
	if err != nil {
		return err
	}
	if _, err := s.client.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("failed to enqueue bid expiry for %s: %w", bidID, err)
	}
	return nil
}

// BidExpirer is the workflow call the expiry handler makes.
type BidExpirer interface {
	ExpireBid(ctx context.Context, bidID string) error
}

// RetryDelay waits as long as a failed task asks for through a RetryAfter
// method, and falls back to asynq's backoff otherwise.
func RetryDelay(n int, err error, task *asynq.Task) time.Duration {
	var early interface{ RetryAfter() time.Duration }
	if errors.As(err, &early) {
		if d := early.RetryAfter(); d > 0 {
			return d
		}
	}
	return asynq.DefaultRetryDelayFunc(n, err, task)
}

// HandleBidExpiry returns the asynq handler for TypeBidExpire.
func HandleBidExpiry(expirer BidExpirer) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p BidExpiryPayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			return fmt.Errorf("invalid bid expiry payload: %v: %w", err, asynq.SkipRetry)
		}
		if p.BidID == "" {
			return fmt.Errorf("bid expiry payload has no bid id: %w", asynq.SkipRetry)
		}
		return expirer.ExpireBid(ctx, p.BidID)
	}
}
