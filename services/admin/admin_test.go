package admin

import (
	"context"
	"errors"
	"sync"
	"testing"

	memoryRepo "gigchat/database/repository/memory"
	"gigchat/models"
	"gigchat/services/notification"
)

type recordingNotifier struct {
	mu    sync.Mutex
	users []string
}

func (n *recordingNotifier) SendPush(_ context.Context, userID string, _ notification.Push) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.users = append(n.users, userID)
	return nil
}

func TestCreateCategory(t *testing.T) {
	ctx := context.Background()
	s := NewAdminService(memoryRepo.NewStore(), nil, nil)

	if _, err := s.CreateCategory(ctx, CategoryInput{ID: "cleaning", Name: "Cleaning"}); err != nil {
		t.Fatalf("top level: %v", err)
	}
	sub, err := s.CreateCategory(ctx, CategoryInput{ID: "deep", ParentID: "cleaning", Name: "Deep", BaselinePrice: 10000, MinimumPercentage: 80})
	if err != nil {
		t.Fatalf("subcategory: %v", err)
	}
	if !sub.HasPriceFloor() {
		t.Fatal("price floor lost")
	}

	tests := []struct {
		name string
		in   CategoryInput
		want error
	}{
		{"duplicate", CategoryInput{ID: "cleaning", Name: "Again"}, ErrDuplicate},
		{"unknown parent", CategoryInput{ID: "x", ParentID: "plumbing", Name: "X"}, ErrInvalidCategory},
		{"too deep", CategoryInput{ID: "y", ParentID: "deep", Name: "Y"}, ErrInvalidCategory},
		{"floor on top level", CategoryInput{ID: "z", Name: "Z", BaselinePrice: 100, MinimumPercentage: 50}, ErrInvalidCategory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.CreateCategory(ctx, tt.in); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}

	children, err := s.ListSubcategories(ctx, "cleaning")
	if err != nil || len(children) != 1 || children[0].ID != "deep" {
		t.Fatalf("children = %+v, %v", children, err)
	}
	if _, err := s.ListSubcategories(ctx, "plumbing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestWorkerApprovalAndTopUp(t *testing.T) {
	ctx := context.Background()
	store := memoryRepo.NewStore()
	notifier := &recordingNotifier{}
	s := NewAdminService(store, notifier, nil)

	for _, u := range []models.User{
		{ID: "w1", Name: "Baraka", Role: models.RoleWorker, ApprovalStatus: models.ApprovalPending},
		{ID: "c1", Name: "Amina", Role: models.RoleCustomer},
	} {
		u := u
		if err := store.Users().Create(ctx, &u); err != nil {
			t.Fatal(err)
		}
	}

	u, err := s.SetApprovalStatus(ctx, "w1", models.ApprovalApproved)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if u.ApprovalStatus != models.ApprovalApproved || u.IsEligibleWorker() {
		t.Fatalf("user = %+v, want approved but not yet eligible", u)
	}
	if len(notifier.users) != 1 || notifier.users[0] != "w1" {
		t.Fatalf("notified = %v", notifier.users)
	}

	u, err = s.TopUpBalance(ctx, "w1", 500)
	if err != nil {
		t.Fatalf("top up: %v", err)
	}
	if u.Balance != 500 || !u.IsEligibleWorker() {
		t.Fatalf("user = %+v, want eligible with 500", u)
	}

	if _, err := s.TopUpBalance(ctx, "w1", 0); !errors.Is(err, ErrInvalidUser) {
		t.Fatalf("zero top-up err = %v", err)
	}
	if _, err := s.TopUpBalance(ctx, "c1", 100); !errors.Is(err, ErrInvalidUser) {
		t.Fatalf("customer top-up err = %v", err)
	}
	if _, err := s.SetApprovalStatus(ctx, "w1", "banned"); !errors.Is(err, ErrInvalidUser) {
		t.Fatalf("bad status err = %v", err)
	}
	if _, err := s.SetApprovalStatus(ctx, "ghost", models.ApprovalApproved); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing user err = %v", err)
	}
}
