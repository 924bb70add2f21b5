package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	memoryRepo "gigchat/database/repository/memory"
	"gigchat/models"
	"gigchat/services/events"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, evt events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *recordingPublisher) count(typ string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

type scheduledExpiry struct {
	bidID string
	at    time.Time
}

type recordingScheduler struct {
	mu       sync.Mutex
	expiries []scheduledExpiry
}

func (s *recordingScheduler) ScheduleBidExpiry(_ context.Context, bidID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expiries = append(s.expiries, scheduledExpiry{bidID: bidID, at: at})
	return nil
}

const (
	customerID  = "customer-1"
	workerA     = "worker-a"
	workerB     = "worker-b"
	workerIdle  = "worker-pending"
	topCategory = "cleaning"
	subCategory = "deep-cleaning"
	voiceURL    = "https://cdn.example.com/voice/1.m4a"
)

var (
	ctx       = context.Background()
	startTime = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	jobReq    = JobRequest{Lat: -1.2921, Lng: 36.8219, PriceFloor: 5000}
)

type fixture struct {
	t         *testing.T
	store     *memoryRepo.Store
	svc       *DefaultWorkflowService
	clock     *fakeClock
	pub       *recordingPublisher
	scheduler *recordingScheduler
}

func newFixture(t *testing.T, mutate ...func(*Settings)) *fixture {
	t.Helper()
	settings := DefaultSettings()
	for _, m := range mutate {
		m(&settings)
	}
	f := &fixture{
		t:         t,
		store:     memoryRepo.NewStore(),
		clock:     &fakeClock{now: startTime},
		pub:       &recordingPublisher{},
		scheduler: &recordingScheduler{},
	}
	f.svc = NewWorkflowService(f.store, settings,
		WithClock(f.clock.Now),
		WithPublisher(f.pub),
		WithScheduler(f.scheduler),
	)
	f.seed()
	return f
}

func (f *fixture) seed() {
	f.t.Helper()
	users := []models.User{
		{ID: customerID, Name: "Amina", Role: models.RoleCustomer},
		{ID: workerA, Name: "Baraka", Role: models.RoleWorker, Balance: 500, ApprovalStatus: models.ApprovalApproved, Skills: []string{topCategory}, PriorityScore: 2},
		{ID: workerB, Name: "Chebet", Role: models.RoleWorker, Balance: 500, ApprovalStatus: models.ApprovalApproved, Skills: []string{topCategory}, PriorityScore: 1},
		{ID: workerIdle, Name: "Dan", Role: models.RoleWorker, Balance: 500, ApprovalStatus: models.ApprovalPending, Skills: []string{topCategory}},
	}
	for i := range users {
		if err := f.store.Users().Create(ctx, &users[i]); err != nil {
			f.t.Fatalf("seed user: %v", err)
		}
	}
	cats := []models.Category{
		{ID: topCategory, Name: "Cleaning"},
		{ID: subCategory, ParentID: topCategory, Name: "Deep cleaning", RequiresWorkCode: true, BaselinePrice: 10000, MinimumPercentage: 80},
		{ID: "gardening", Name: "Gardening", RequiresPhotos: true},
	}
	for i := range cats {
		if err := f.store.Categories().Create(ctx, &cats[i]); err != nil {
			f.t.Fatalf("seed category: %v", err)
		}
	}
}

func (f *fixture) openChat(categoryID string) *models.Chat {
	f.t.Helper()
	chat, err := f.svc.OpenServiceChat(ctx, customerID, categoryID)
	if err != nil {
		f.t.Fatalf("OpenServiceChat: %v", err)
	}
	return chat
}

func (f *fixture) sendVoice(chatID string) *SendResult {
	f.t.Helper()
	res, err := f.svc.SendMessage(ctx, SendMessageInput{
		ChatID:     chatID,
		SenderID:   customerID,
		BubbleType: models.BubbleVoice,
		Metadata:   map[string]any{"url": voiceURL, "duration_seconds": 12},
	})
	if err != nil {
		f.t.Fatalf("send voice: %v", err)
	}
	return res
}

// postJob walks the service chat script up to job creation.
func (f *fixture) postJob() *models.Job {
	f.t.Helper()
	chat := f.openChat(topCategory)
	res := f.sendVoice(chat.ID)
	if _, err := f.svc.HandleQuickReply(ctx, chat.ID, customerID, res.Prompt.ID, models.QuickReplyYes); err != nil {
		f.t.Fatalf("quick reply: %v", err)
	}
	step, err := f.svc.SelectDate(ctx, chat.ID, customerID, "2026-03-12", jobReq)
	if err != nil {
		f.t.Fatalf("SelectDate: %v", err)
	}
	if step.Job == nil {
		f.t.Fatal("SelectDate did not create a job")
	}
	return step.Job
}

func (f *fixture) categorizedJob() *models.Job {
	f.t.Helper()
	job := f.postJob()
	job, err := f.svc.SubmitCategorization(ctx, job.ID, workerA, subCategory)
	if err != nil {
		f.t.Fatalf("SubmitCategorization: %v", err)
	}
	return job
}

func (f *fixture) bid(jobID, workerID string, amount int64) *BidBreakdown {
	f.t.Helper()
	b, err := f.svc.SubmitBid(ctx, BidInput{JobID: jobID, WorkerID: workerID, Amount: amount})
	if err != nil {
		f.t.Fatalf("SubmitBid(%s): %v", workerID, err)
	}
	return b
}

// matchedJob returns a job matched to workerA.
func (f *fixture) matchedJob() *models.Job {
	f.t.Helper()
	job := f.categorizedJob()
	b := f.bid(job.ID, workerA, 12000)
	job, err := f.svc.AcceptBid(ctx, b.BidID, customerID)
	if err != nil {
		f.t.Fatalf("AcceptBid: %v", err)
	}
	return job
}

func (f *fixture) job(id string) *models.Job {
	f.t.Helper()
	j, err := f.store.Jobs().GetByID(ctx, id)
	if err != nil {
		f.t.Fatalf("get job: %v", err)
	}
	return j
}

func (f *fixture) chat(id string) *models.Chat {
	f.t.Helper()
	c, err := f.store.Chats().GetByID(ctx, id)
	if err != nil {
		f.t.Fatalf("get chat: %v", err)
	}
	return c
}

func (f *fixture) messages(chatID string) []models.Message {
	f.t.Helper()
	msgs, err := f.store.Messages().ListByChat(ctx, chatID)
	if err != nil {
		f.t.Fatalf("list messages: %v", err)
	}
	return msgs
}

func (f *fixture) jobMessages(jobID string, bt models.BubbleType) []models.Message {
	f.t.Helper()
	msgs, err := f.store.Messages().ListByJob(ctx, jobID, bt)
	if err != nil {
		f.t.Fatalf("list job messages: %v", err)
	}
	return msgs
}

func assertCode(t *testing.T, err error, want *Error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", want.Code)
	}
	if !errors.Is(err, want) {
		t.Fatalf("expected %s, got %v", want.Code, err)
	}
}
