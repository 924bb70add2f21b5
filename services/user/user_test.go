package user

import (
	"context"
	"errors"
	"testing"
	"time"

	"gigchat/config"
	memoryRepo "gigchat/database/repository/memory"
	"gigchat/models"
	"gigchat/utils"
)

func newService(t *testing.T) *DefaultUserService {
	t.Helper()
	store := memoryRepo.NewStore()
	ctx := context.Background()
	for _, c := range []models.Category{
		{ID: "cleaning", Name: "Cleaning"},
		{ID: "deep-cleaning", ParentID: "cleaning", Name: "Deep cleaning"},
	} {
		c := c
		if err := store.Categories().Create(ctx, &c); err != nil {
			t.Fatal(err)
		}
	}
	return NewUserService(store, time.Hour, nil)
}

func TestRegisterWorkerStartsPending(t *testing.T) {
	config.AppConfig.JWTSecret = "test-secret"
	t.Cleanup(func() { config.AppConfig.JWTSecret = "" })

	s := newService(t)
	ctx := context.Background()

	resp, err := s.Register(ctx, RegisterInput{Name: " Baraka ", Role: models.RoleWorker, Skills: []string{"cleaning"}})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("expected a token")
	}
	sub, role, err := utils.ExtractClaims(resp.Token)
	if err != nil || sub != resp.ID || role != models.RoleWorker {
		t.Fatalf("claims = %q %q %v", sub, role, err)
	}

	u, err := s.GetUserByID(ctx, resp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if u.Name != "Baraka" || u.ApprovalStatus != models.ApprovalPending || u.Balance != 0 {
		t.Fatalf("user = %+v", u)
	}
}

func TestRegisterRejectsSubcategorySkill(t *testing.T) {
	s := newService(t)
	_, err := s.Register(context.Background(), RegisterInput{Name: "Dan", Role: models.RoleWorker, Skills: []string{"deep-cleaning"}})
	if !errors.Is(err, ErrInvalidSkill) {
		t.Fatalf("err = %v, want ErrInvalidSkill", err)
	}
	_, err = s.Register(context.Background(), RegisterInput{Name: "Dan", Role: models.RoleWorker, Skills: []string{"plumbing"}})
	if !errors.Is(err, ErrInvalidSkill) {
		t.Fatalf("err = %v, want ErrInvalidSkill", err)
	}
}

func TestRegisterWithoutSecretOmitsToken(t *testing.T) {
	config.AppConfig.JWTSecret = ""
	s := newService(t)
	resp, err := s.Register(context.Background(), RegisterInput{Name: "Amina", Role: models.RoleCustomer})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if resp.Token != "" {
		t.Fatal("token issued without a secret")
	}
}

func TestUpdateFCMToken(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	resp, err := s.Register(ctx, RegisterInput{Name: "Amina", Role: models.RoleCustomer})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateFCMToken(ctx, resp.ID, "device-token"); err != nil {
		t.Fatal(err)
	}
	u, _ := s.GetUserByID(ctx, resp.ID)
	if u.FCMToken != "device-token" {
		t.Fatalf("fcm token = %q", u.FCMToken)
	}
	if err := s.UpdateFCMToken(ctx, "missing", "x"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}
