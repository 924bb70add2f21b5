package notification

import (
	"context"
	"errors"
	"testing"

	memoryRepo "gigchat/database/repository/memory"
	"gigchat/models"

	"firebase.google.com/go/v4/messaging"
)

type fakeMessenger struct {
	sent []*messaging.Message
	err  error
}

func (f *fakeMessenger) Send(_ context.Context, m *messaging.Message) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, m)
	return "projects/test/messages/1", nil
}

func TestSendPush(t *testing.T) {
	ctx := context.Background()
	store := memoryRepo.NewStore()
	users := store.Users()
	if err := users.Create(ctx, &models.User{ID: "w1", Role: models.RoleWorker, FCMToken: "tok-w1"}); err != nil {
		t.Fatal(err)
	}
	if err := users.Create(ctx, &models.User{ID: "c1", Role: models.RoleCustomer}); err != nil {
		t.Fatal(err)
	}

	fake := &fakeMessenger{}
	svc, err := NewDefaultNotificationService(users, fake, nil)
	if err != nil {
		t.Fatal(err)
	}

	push := Push{Title: "New job", Body: "A job was posted", Data: map[string]string{"type": TypeJobPosted}}
	if err := svc.SendPush(ctx, "w1", push); err != nil {
		t.Fatalf("SendPush: %v", err)
	}
	if len(fake.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(fake.sent))
	}
	got := fake.sent[0]
	if got.Token != "tok-w1" || got.Data["role"] != models.RoleWorker || got.Android == nil {
		t.Fatalf("unexpected message: %+v", got)
	}
	if _, ok := push.Data["role"]; ok {
		t.Fatal("caller data map was mutated")
	}

	if err := svc.SendPush(ctx, "c1", push); err != nil {
		t.Fatalf("SendPush without token: %v", err)
	}
	if len(fake.sent) != 1 {
		t.Fatal("push sent to user without a token")
	}

	if err := svc.SendPush(ctx, "missing", push); err == nil {
		t.Fatal("expected error for unknown user")
	}

	fake.err = errors.New("unavailable")
	if err := svc.SendPush(ctx, "w1", push); err == nil {
		t.Fatal("expected FCM error to surface")
	}
}
