package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"gigchat/database/repository"
	memoryRepo "gigchat/database/repository/memory"
	"gigchat/models"
	"gigchat/services/events"
)

var errCollided = errors.New("collided with another writer")

// retryingStore aborts the first attempts of a transaction after fn ran,
// the way the mongo store reruns fn after a transient abort.
type retryingStore struct {
	*memoryRepo.Store
	aborts int
	giveUp bool
}

func (s *retryingStore) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	for {
		err := s.Store.RunInTransaction(ctx, func(ctx context.Context) error {
			if err := fn(ctx); err != nil {
				return err
			}
			if s.aborts > 0 {
				s.aborts--
				return errCollided
			}
			return nil
		})
		if !errors.Is(err, errCollided) {
			return err
		}
		if s.giveUp {
			return fmt.Errorf("%w: %v", repository.ErrTransient, err)
		}
	}
}

func TestRetriedTransactionFlushesEffectsOnce(t *testing.T) {
	f := newFixture(t)
	store := &retryingStore{Store: f.store, aborts: 2}
	f.svc = NewWorkflowService(store, DefaultSettings(),
		WithClock(f.clock.Now),
		WithPublisher(f.pub),
		WithScheduler(f.scheduler),
	)

	chat := f.openChat(topCategory)
	store.aborts = 1
	res := f.sendVoice(chat.ID)
	if res.Prompt == nil {
		t.Fatal("no confirmation prompt")
	}

	msgs := f.messages(chat.ID)
	if len(msgs) != 3 {
		t.Fatalf("messages = %d, want welcome, voice note and prompt", len(msgs))
	}
	if got := f.pub.count(events.MessageCreated); got != len(msgs) {
		t.Fatalf("message.created events = %d, want %d", got, len(msgs))
	}
}

func TestTransientStoreFailureIsInternal(t *testing.T) {
	f := newFixture(t)
	chat := f.openChat(topCategory)
	store := &retryingStore{Store: f.store, aborts: 1, giveUp: true}
	f.svc = NewWorkflowService(store, DefaultSettings(), WithClock(f.clock.Now), WithPublisher(f.pub))

	_, err := f.svc.SendMessage(ctx, SendMessageInput{
		ChatID: chat.ID, SenderID: customerID, BubbleType: models.BubbleText, Content: "hello",
	})
	assertCode(t, err, ErrInternal)
	if !errors.Is(err, repository.ErrTransient) {
		t.Fatalf("err = %v, want it to wrap ErrTransient", err)
	}
	if n := len(f.messages(chat.ID)); n != 1 {
		t.Fatalf("messages = %d after a failed write, want only the welcome", n)
	}
}
