package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"gigchat/models"
	"gigchat/services/events"
	"gigchat/services/workflow"
)

type fakeSender struct {
	err   error
	calls []workflow.SendMessageInput
}

func (f *fakeSender) SendMessage(_ context.Context, in workflow.SendMessageInput) (*workflow.SendResult, error) {
	f.calls = append(f.calls, in)
	if f.err != nil {
		return nil, f.err
	}
	return &workflow.SendResult{Message: &models.Message{ID: "m1", ChatID: in.ChatID, CorrelationID: in.CorrelationID}}, nil
}

func TestSendFailureKeepsFailedOverlay(t *testing.T) {
	sender := &fakeSender{err: errors.New("offline")}
	s := NewClientSession("u1", sender, nil)

	if _, err := s.Send(context.Background(), "c1", models.BubbleText, "hello", nil); err == nil {
		t.Fatal("expected send error")
	}
	pending := s.Pending("c1")
	if len(pending) != 1 || pending[0].Status != StatusFailed || pending[0].Error == "" {
		t.Fatalf("pending = %+v, want one failed entry", pending)
	}

	sender.err = nil
	res, err := s.Retry(context.Background(), pending[0].CorrelationID)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if res.Message.CorrelationID != pending[0].CorrelationID {
		t.Fatal("retry did not reuse the correlation id")
	}
	if got := len(s.Pending("c1")); got != 0 {
		t.Fatalf("pending after retry = %d, want 0", got)
	}
	if _, err := s.Retry(context.Background(), pending[0].CorrelationID); !errors.Is(err, workflow.ErrNotFound) {
		t.Fatalf("second retry err = %v, want NOT_FOUND", err)
	}
}

func TestMergeDropsReconciledEntries(t *testing.T) {
	s := NewClientSession("u1", &fakeSender{}, nil)
	s.pending["a"] = &PendingMessage{CorrelationID: "a", ChatID: "c1", Status: StatusPending, CreatedAt: time.Unix(1, 0)}
	s.pending["b"] = &PendingMessage{CorrelationID: "b", ChatID: "c1", Status: StatusFailed, CreatedAt: time.Unix(2, 0)}
	s.pending["x"] = &PendingMessage{CorrelationID: "x", ChatID: "other", Status: StatusPending}

	merged := s.Merge("c1", []models.Message{{ID: "m1", ChatID: "c1", CorrelationID: "a"}})
	if len(merged) != 2 {
		t.Fatalf("merged %d messages, want 2", len(merged))
	}
	if merged[0].ID != "m1" || merged[1].CorrelationID != "b" || merged[1].Status != string(StatusFailed) {
		t.Fatalf("unexpected merge result: %+v", merged)
	}
	if len(s.Pending("other")) != 1 {
		t.Fatal("entries of other chats must be kept")
	}
}

func TestWatchFiltersAndReconciles(t *testing.T) {
	hub := events.NewHub(nil, 8)
	defer hub.Close()
	s := NewClientSession("u1", &fakeSender{}, nil)
	s.pending["corr"] = &PendingMessage{CorrelationID: "corr", ChatID: "c1", Status: StatusPending}

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan events.Event, 4)
	done := make(chan struct{})
	go func() {
		s.Watch(ctx, hub, "c1", out)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for hub.Subscribers(events.ChatTopic("c1")) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("watch never subscribed")
		}
		time.Sleep(time.Millisecond)
	}

	topic := events.ChatTopic("c1")
	hub.Publish(ctx, events.Event{Type: events.MessageCreated, Topic: topic, Payload: &models.Message{ID: "hidden", VisibleTo: "u2"}})
	hub.Publish(ctx, events.Event{Type: events.MessageCreated, Topic: topic, Payload: &models.Message{ID: "mine", CorrelationID: "corr"}})

	select {
	case evt := <-out:
		if evt.Payload.(*models.Message).ID != "mine" {
			t.Fatalf("got %+v, want the visible message", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("no event relayed")
	}
	if len(s.Pending("c1")) != 0 {
		t.Fatal("overlay entry not reconciled")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watch did not stop")
	}
}
