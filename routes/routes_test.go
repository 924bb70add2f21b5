package routes

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gigchat/config"
	memoryRepo "gigchat/database/repository/memory"
	"gigchat/handlers"
	"gigchat/models"
	"gigchat/services/admin"
	"gigchat/services/events"
	"gigchat/services/storage"
	"gigchat/services/user"
	"gigchat/services/workflow"
	"gigchat/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const adminToken = "admin-secret"

type server struct {
	t      *testing.T
	router *gin.Engine
	hub    *events.Hub
	bundle *handlers.HandlerBundle
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	config.AppConfig.JWTSecret = ""
	config.AppConfig.AdminToken = adminToken
	t.Cleanup(func() { config.AppConfig.AdminToken = "" })

	store := memoryRepo.NewStore()
	hub := events.NewHub(zap.NewNop(), 64)
	t.Cleanup(hub.Close)
	wf := workflow.NewWorkflowService(store, workflow.DefaultSettings(), workflow.WithPublisher(hub))

	hb := &handlers.HandlerBundle{
		UserRepo: store.Users(),
		User:     handlers.NewUserHandler(user.NewUserService(store, time.Hour, nil)),
		Chat:     handlers.NewChatHandler(wf, store.Chats(), hub),
		Job:      handlers.NewJobHandler(wf, store.Jobs()),
		Admin:    handlers.NewAdminHandler(admin.NewAdminService(store, nil, nil)),
	}
	r := gin.New()
	r.Use(utils.ErrorHandler())
	RegisterRoutes(r, hb)
	return &server{t: t, router: r, hub: hub, bundle: hb}
}

// call performs a request as userID ("" for anonymous, "admin" for the admin token)
// and decodes the response into out when it is non-nil.
func (s *server) call(method, path, userID string, body any, wantStatus int, out any) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			s.t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	switch userID {
	case "":
	case "admin":
		req.Header.Set("Authorization", "Bearer "+adminToken)
	default:
		req.Header.Set("X-User-ID", userID)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != wantStatus {
		s.t.Fatalf("%s %s = %d, want %d: %s", method, path, w.Code, wantStatus, w.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			s.t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
}

// seed creates the catalog plus an approved, funded worker and a customer.
func (s *server) seed() (customerID, workerID string) {
	s.t.Helper()
	s.call(http.MethodPost, "/api/admin/categories", "admin",
		admin.CategoryInput{ID: "cleaning", Name: "Cleaning"}, http.StatusCreated, nil)
	s.call(http.MethodPost, "/api/admin/categories", "admin",
		admin.CategoryInput{ID: "deep-cleaning", ParentID: "cleaning", Name: "Deep cleaning", BaselinePrice: 10000, MinimumPercentage: 80},
		http.StatusCreated, nil)

	var customer, worker user.AuthResponse
	s.call(http.MethodPost, "/api/users/register", "",
		user.RegisterInput{Name: "Amina", Role: models.RoleCustomer}, http.StatusCreated, &customer)
	s.call(http.MethodPost, "/api/users/register", "",
		user.RegisterInput{Name: "Baraka", Role: models.RoleWorker, Skills: []string{"cleaning"}}, http.StatusCreated, &worker)

	s.call(http.MethodPut, "/api/admin/users/"+worker.ID+"/approval", "admin",
		gin.H{"status": models.ApprovalApproved}, http.StatusOK, nil)
	s.call(http.MethodPost, "/api/admin/users/"+worker.ID+"/balance", "admin",
		gin.H{"amount": 1000}, http.StatusOK, nil)
	return customer.ID, worker.ID
}

// postJob walks the customer through the service chat and returns the posted job.
func (s *server) postJob(customerID string) (*models.Chat, *models.Job) {
	s.t.Helper()
	var chat models.Chat
	s.call(http.MethodPost, "/api/chats", customerID, gin.H{"category_id": "cleaning"}, http.StatusOK, &chat)

	var sent workflow.SendResult
	s.call(http.MethodPost, "/api/chats/"+chat.ID+"/messages", customerID, gin.H{
		"bubble_type": models.BubbleVoice,
		"metadata":    gin.H{"url": "https://cdn.example.com/v.m4a", "duration_seconds": 9},
	}, http.StatusCreated, &sent)
	if sent.Prompt == nil {
		s.t.Fatal("voice message did not trigger a confirmation prompt")
	}
	s.call(http.MethodPost, "/api/chats/"+chat.ID+"/quick-replies", customerID,
		gin.H{"prompt_id": sent.Prompt.ID, "reply": models.QuickReplyYes}, http.StatusOK, nil)

	var step workflow.StepResult
	s.call(http.MethodPost, "/api/chats/"+chat.ID+"/date", customerID, gin.H{
		"date": "2026-03-12",
		"job":  workflow.JobRequest{Lat: -1.29, Lng: 36.82, PriceFloor: 5000},
	}, http.StatusOK, &step)
	if step.Job == nil {
		s.t.Fatal("date step did not post the job")
	}
	return &chat, step.Job
}

func TestJobLifecycleOverHTTP(t *testing.T) {
	s := newServer(t)
	customerID, workerID := s.seed()
	chat, job := s.postJob(customerID)

	s.call(http.MethodPost, "/api/jobs/"+job.ID+"/categorize", workerID,
		gin.H{"subcategory_id": "deep-cleaning"}, http.StatusOK, nil)

	var viewed map[string]any
	s.call(http.MethodPost, "/api/jobs/"+job.ID+"/views", workerID, nil, http.StatusOK, &viewed)
	if viewed["success"] != true || viewed["already_viewed"] != false {
		t.Fatalf("view response = %v", viewed)
	}

	var low utils.ErrorResponse
	s.call(http.MethodPost, "/api/jobs/"+job.ID+"/bids", workerID, gin.H{"amount": 5000}, http.StatusUnprocessableEntity, &low)
	if low.Error != workflow.ErrBidBelowMinimum.Code || low.Details["minimumAmount"] != float64(8000) {
		t.Fatalf("below minimum response = %+v", low)
	}

	var breakdown workflow.BidBreakdown
	s.call(http.MethodPost, "/api/jobs/"+job.ID+"/bids", workerID, gin.H{"amount": 9000}, http.StatusCreated, &breakdown)
	if breakdown.ServiceFee != 900 || breakdown.TotalAmount != 9900 {
		t.Fatalf("breakdown = %+v", breakdown)
	}

	var dup utils.ErrorResponse
	s.call(http.MethodPost, "/api/jobs/"+job.ID+"/bids", workerID, gin.H{"amount": 9500}, http.StatusConflict, &dup)
	if dup.Error != workflow.ErrDuplicateBid.Code {
		t.Fatalf("duplicate response = %+v", dup)
	}

	var listed struct {
		Bids []models.BidView `json:"bids"`
	}
	s.call(http.MethodGet, "/api/jobs/"+job.ID+"/bids", customerID, nil, http.StatusOK, &listed)
	if len(listed.Bids) != 1 || listed.Bids[0].ID != breakdown.BidID {
		t.Fatalf("bids = %+v", listed.Bids)
	}

	var matched models.Job
	s.call(http.MethodPost, "/api/bids/"+breakdown.BidID+"/accept", customerID, nil, http.StatusOK, &matched)
	if matched.Status != models.JobStatusMatched || matched.WorkerID != workerID {
		t.Fatalf("matched job = %+v", matched)
	}

	var issued map[string]any
	s.call(http.MethodPost, "/api/jobs/"+job.ID+"/completion-code", workerID, nil, http.StatusCreated, &issued)
	if issued["success"] != true {
		t.Fatalf("issue response = %v", issued)
	}
	if _, leaked := issued["code"]; leaked {
		t.Fatal("completion code returned to the worker")
	}

	var intercepted workflow.SendResult
	s.call(http.MethodPost, "/api/chats/"+chat.ID+"/messages", workerID,
		gin.H{"bubble_type": models.BubbleText, "content": "*1#"}, http.StatusCreated, &intercepted)
	if !intercepted.Intercepted || intercepted.Prompt == nil {
		t.Fatalf("completion command result = %+v", intercepted)
	}
	s.call(http.MethodPost, "/api/chats/"+chat.ID+"/quick-replies", workerID,
		gin.H{"prompt_id": intercepted.Prompt.ID, "reply": models.QuickReplyYes}, http.StatusOK, nil)

	code := ""
	var history struct {
		Messages []models.Message `json:"messages"`
	}
	s.call(http.MethodGet, "/api/chats/"+chat.ID+"/messages", customerID, nil, http.StatusOK, &history)
	for _, m := range history.Messages {
		if m.BubbleType == models.BubbleCompletionCode && !m.IsExpired {
			code, _ = m.Metadata["code"].(string)
		}
	}
	if code == "" {
		t.Fatal("customer did not receive a completion code")
	}
	s.call(http.MethodGet, "/api/chats/"+chat.ID+"/messages", workerID, nil, http.StatusOK, &history)
	for _, m := range history.Messages {
		if m.BubbleType == models.BubbleCompletionCode {
			t.Fatal("completion code leaked to the worker")
		}
	}

	var forbidden utils.ErrorResponse
	s.call(http.MethodPost, "/api/jobs/"+job.ID+"/completion-code/validate", customerID,
		gin.H{"code": code}, http.StatusForbidden, &forbidden)

	var result struct {
		Success bool `json:"success"`
		IsValid bool `json:"is_valid"`
	}
	s.call(http.MethodPost, "/api/jobs/"+job.ID+"/completion-code/validate", workerID,
		gin.H{"code": code}, http.StatusOK, &result)
	if !result.Success || !result.IsValid {
		t.Fatalf("completion code rejected: %+v", result)
	}

	rating := gin.H{"rated_id": workerID, "rating": 5, "rating_type": models.RatingCustomerToWorker}
	s.call(http.MethodPost, "/api/jobs/"+job.ID+"/ratings", customerID, rating, http.StatusCreated, nil)
	var dupRating utils.ErrorResponse
	s.call(http.MethodPost, "/api/jobs/"+job.ID+"/ratings", customerID, rating, http.StatusConflict, &dupRating)
	if dupRating.Error != workflow.ErrDuplicateRating.Code {
		t.Fatalf("duplicate rating = %+v", dupRating)
	}

	var cancel utils.ErrorResponse
	s.call(http.MethodPost, "/api/jobs/"+job.ID+"/cancel", customerID, gin.H{"phase": 3}, http.StatusConflict, &cancel)
	if cancel.Error != workflow.ErrAlreadyCompleted.Code {
		t.Fatalf("cancel completed job = %+v", cancel)
	}
}

func TestCancelOverHTTPResetsChat(t *testing.T) {
	s := newServer(t)
	customerID, workerID := s.seed()
	chat, job := s.postJob(customerID)

	s.call(http.MethodPost, "/api/jobs/"+job.ID+"/cancel", workerID, gin.H{"phase": 1}, http.StatusForbidden, nil)
	s.call(http.MethodPost, "/api/jobs/"+job.ID+"/cancel", customerID, gin.H{}, http.StatusBadRequest, nil)

	var res workflow.CancelResult
	s.call(http.MethodPost, "/api/jobs/"+job.ID+"/cancel", customerID, gin.H{"phase": 1}, http.StatusOK, &res)
	if !res.Success || !res.ChatReset {
		t.Fatalf("cancel result = %+v", res)
	}

	var history struct {
		Messages []models.Message `json:"messages"`
	}
	s.call(http.MethodGet, "/api/chats/"+chat.ID+"/messages", customerID, nil, http.StatusOK, &history)
	if len(history.Messages) != 0 {
		t.Fatalf("%d messages after reset", len(history.Messages))
	}

	var again utils.ErrorResponse
	s.call(http.MethodPost, "/api/jobs/"+job.ID+"/cancel", customerID, gin.H{"phase": 1}, http.StatusConflict, &again)
	if again.Error != workflow.ErrAlreadyCancelled.Code {
		t.Fatalf("second cancel = %+v", again)
	}
}

func TestAccessControl(t *testing.T) {
	s := newServer(t)
	customerID, workerID := s.seed()

	s.call(http.MethodGet, "/api/users/me", "", nil, http.StatusUnauthorized, nil)
	s.call(http.MethodGet, "/api/users/me", "ghost", nil, http.StatusUnauthorized, nil)
	s.call(http.MethodPost, "/api/chats", workerID, gin.H{"category_id": "cleaning"}, http.StatusForbidden, nil)
	s.call(http.MethodPost, "/api/admin/categories", customerID, admin.CategoryInput{ID: "x", Name: "X"}, http.StatusUnauthorized, nil)

	var chat models.Chat
	s.call(http.MethodPost, "/api/chats", customerID, gin.H{"category_id": "cleaning"}, http.StatusOK, &chat)
	var notOwner utils.ErrorResponse
	s.call(http.MethodGet, "/api/chats/"+chat.ID+"/messages", workerID, nil, http.StatusConflict, &notOwner)
	if notOwner.Error != workflow.ErrNotOwner.Code {
		t.Fatalf("foreign chat read = %+v", notOwner)
	}

	var sub utils.ErrorResponse
	s.call(http.MethodPost, "/api/chats", customerID, gin.H{"category_id": "deep-cleaning"}, http.StatusBadRequest, &sub)
	if sub.Error != workflow.ErrValidation.Code {
		t.Fatalf("subcategory chat = %+v", sub)
	}

	var me models.User
	s.call(http.MethodGet, "/api/users/me", workerID, nil, http.StatusOK, &me)
	if me.ApprovalStatus != models.ApprovalApproved || me.Balance != 1000 {
		t.Fatalf("me = %+v", me)
	}
}

func TestChatEventStream(t *testing.T) {
	s := newServer(t)
	customerID, _ := s.seed()
	var chat models.Chat
	s.call(http.MethodPost, "/api/chats", customerID, gin.H{"category_id": "cleaning"}, http.StatusOK, &chat)

	srv := httptest.NewServer(s.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/chats/"+chat.ID+"/events", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("X-User-ID", customerID)

	type streamResult struct {
		resp *http.Response
		err  error
	}
	done := make(chan streamResult, 1)
	go func() {
		resp, err := http.DefaultClient.Do(req)
		done <- streamResult{resp, err}
	}()

	topic := events.ChatTopic(chat.ID)
	for s.hub.Subscribers(topic) == 0 {
		select {
		case <-ctx.Done():
			t.Fatal("event stream never subscribed")
		case <-time.After(10 * time.Millisecond):
		}
	}
	s.call(http.MethodPost, "/api/chats/"+chat.ID+"/messages", customerID,
		gin.H{"bubble_type": models.BubbleText, "content": "hello"}, http.StatusCreated, nil)

	res := <-done
	if res.err != nil {
		t.Fatalf("stream: %v", res.err)
	}
	defer res.resp.Body.Close()

	scanner := bufio.NewScanner(res.resp.Body)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == "event:"+events.MessageCreated {
			return
		}
	}
	t.Fatalf("stream ended without a message event: %v", scanner.Err())
}

type fakeMedia struct{}

func (fakeMedia) UploadURL(_ context.Context, chatID, kind, contentType string) (*storage.UploadTicket, error) {
	if contentType != "audio/mp4" {
		return nil, storage.ErrUnsupportedMedia
	}
	return &storage.UploadTicket{UploadURL: "https://upload.example.com", Method: "PUT", Object: "chats/" + chatID + "/" + kind + "/x.m4a"}, nil
}

func TestUploadURL(t *testing.T) {
	s := newServer(t)
	customerID, workerID := s.seed()
	var chat models.Chat
	s.call(http.MethodPost, "/api/chats", customerID, gin.H{"category_id": "cleaning"}, http.StatusOK, &chat)
	path := "/api/chats/" + chat.ID + "/uploads"
	body := gin.H{"kind": storage.KindVoice, "content_type": "audio/mp4"}

	s.call(http.MethodPost, path, customerID, body, http.StatusServiceUnavailable, nil)

	s.bundle.Chat.Media = fakeMedia{}
	var ticket storage.UploadTicket
	s.call(http.MethodPost, path, customerID, body, http.StatusCreated, &ticket)
	if ticket.Object != "chats/"+chat.ID+"/voice/x.m4a" {
		t.Fatalf("ticket = %+v", ticket)
	}
	s.call(http.MethodPost, path, customerID, gin.H{"kind": storage.KindVoice, "content_type": "text/plain"}, http.StatusBadRequest, nil)
	s.call(http.MethodPost, path, customerID, gin.H{"kind": "video", "content_type": "audio/mp4"}, http.StatusBadRequest, nil)
	s.call(http.MethodPost, path, workerID, body, http.StatusConflict, nil)
}
