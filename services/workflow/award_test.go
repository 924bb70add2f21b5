package workflow

import (
	"testing"
	"time"

	"gigchat/models"
)

func TestAcceptBidMatchesJob(t *testing.T) {
	f := newFixture(t)
	job := f.categorizedJob()
	winner := f.bid(job.ID, workerA, 9000)
	other := f.bid(job.ID, workerB, 9500)

	_, err := f.svc.AcceptBid(ctx, winner.BidID, workerB)
	assertCode(t, err, ErrNotOwner)

	matched, err := f.svc.AcceptBid(ctx, winner.BidID, customerID)
	if err != nil {
		t.Fatalf("AcceptBid: %v", err)
	}
	if matched.Status != models.JobStatusMatched || matched.WorkerID != workerA || matched.AcceptedBidID != winner.BidID {
		t.Fatalf("job = %+v", matched)
	}

	chat := f.chat(job.ChatID)
	if chat.Kind() != models.ChatKindConversation || chat.WorkerID != workerA || chat.BannerInfo == nil {
		t.Fatalf("chat = %+v, want a conversation with the worker and a banner", chat)
	}

	otherBid, err := f.store.Bids().GetByID(ctx, other.BidID)
	if err != nil {
		t.Fatal(err)
	}
	if otherBid.IsSettled() {
		t.Fatal("accepting one bid must not settle the others")
	}

	_, err = f.svc.AcceptBid(ctx, other.BidID, customerID)
	assertCode(t, err, ErrJobClosed)

	for _, m := range f.jobMessages(job.ID, models.BubbleWorkerJob) {
		if !m.IsExpired {
			t.Fatal("worker_job bubbles still live after the match")
		}
	}
}

func TestAcceptExpiredBidFails(t *testing.T) {
	f := newFixture(t)
	job := f.categorizedJob()
	b := f.bid(job.ID, workerA, 9000)

	f.clock.Advance(25 * time.Hour)
	_, err := f.svc.AcceptBid(ctx, b.BidID, customerID)
	assertCode(t, err, ErrInvalidState)
}

func TestRejectBidKeepsJobOpen(t *testing.T) {
	f := newFixture(t)
	job := f.categorizedJob()
	b := f.bid(job.ID, workerA, 9000)

	rejected, err := f.svc.RejectBid(ctx, b.BidID, customerID)
	if err != nil {
		t.Fatalf("RejectBid: %v", err)
	}
	if rejected.RejectedAt == nil {
		t.Fatal("rejected_at not set")
	}
	if f.job(job.ID).Status != models.JobStatusPosted {
		t.Fatal("rejecting a bid changed the job status")
	}

	_, err = f.svc.RejectBid(ctx, b.BidID, customerID)
	assertCode(t, err, ErrInvalidState)
	_, err = f.svc.AcceptBid(ctx, b.BidID, customerID)
	assertCode(t, err, ErrInvalidState)
}

func TestOnboardingCode(t *testing.T) {
	f := newFixture(t)
	job := f.matchedJob()
	code := f.job(job.ID).WorkCode

	status, err := f.svc.GetOnboardingStatus(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !status.RequiresWorkCode || status.Validated || !status.CanCancel {
		t.Fatalf("status before = %+v", status)
	}

	ok, err := f.svc.ValidateOnboardingCode(ctx, job.ID, "000000x")
	if err != nil || ok {
		t.Fatalf("wrong code = %v, %v; want false, nil", ok, err)
	}
	ok, err = f.svc.ValidateOnboardingCode(ctx, job.ID, code)
	if err != nil || !ok {
		t.Fatalf("right code = %v, %v; want true, nil", ok, err)
	}
	if f.job(job.ID).Status != models.JobStatusInProgress {
		t.Fatal("job not in progress after onboarding")
	}

	_, err = f.svc.ValidateOnboardingCode(ctx, job.ID, code)
	assertCode(t, err, ErrCodeAlreadyUsed)

	status, err = f.svc.GetOnboardingStatus(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !status.Validated || status.CanCancel || status.ValidatedAt == nil {
		t.Fatalf("status after = %+v", status)
	}
}

// completionCodeFor runs the worker's completion command through the chat
// and returns the code delivered to the customer.
func completionCodeFor(t *testing.T, f *fixture, job *models.Job) string {
	t.Helper()
	res, err := f.svc.SendMessage(ctx, SendMessageInput{
		ChatID: job.ChatID, SenderID: workerA, BubbleType: models.BubbleText, Content: "*1#",
	})
	if err != nil {
		t.Fatalf("completion command: %v", err)
	}
	if !res.Intercepted || res.Message != nil || res.Prompt == nil {
		t.Fatalf("result = %+v, want an intercepted command with a prompt", res)
	}
	for _, m := range f.messages(job.ChatID) {
		if m.BubbleType == models.BubbleText && m.Content == "*1#" {
			t.Fatal("completion command was stored as chat content")
		}
	}
	if res.Prompt.VisibleTo != workerA || instructionKind(res.Prompt) != models.InstructionCompletionConfirmation {
		t.Fatalf("prompt = %+v", res.Prompt)
	}

	out, err := f.svc.HandleQuickReply(ctx, job.ChatID, workerA, res.Prompt.ID, models.QuickReplyYes)
	if err != nil {
		t.Fatalf("confirm completion: %v", err)
	}
	if len(out.Messages) != 1 {
		t.Fatalf("messages = %d, want only the code entry", len(out.Messages))
	}
	if entry := out.Messages[0]; entry.BubbleType != models.BubbleCodeEntry || entry.VisibleTo != workerA {
		t.Fatalf("entry message = %+v", entry)
	}

	var code string
	for _, m := range f.jobMessages(job.ID, models.BubbleCompletionCode) {
		if m.IsExpired {
			continue
		}
		if m.VisibleTo != customerID {
			t.Fatalf("code message visible to %q", m.VisibleTo)
		}
		code, _ = m.Metadata["code"].(string)
	}
	if len(code) != models.CodeLength {
		t.Fatalf("code %q has wrong length", code)
	}
	return code
}

func startJob(t *testing.T, f *fixture, job *models.Job) {
	t.Helper()
	if ok, err := f.svc.ValidateOnboardingCode(ctx, job.ID, f.job(job.ID).WorkCode); err != nil || !ok {
		t.Fatalf("onboarding = %v, %v", ok, err)
	}
}

func TestCompletionRequiresOnboardingWhenCategoryDemandsIt(t *testing.T) {
	f := newFixture(t)
	job := f.matchedJob()

	_, err := f.svc.SendMessage(ctx, SendMessageInput{
		ChatID: job.ChatID, SenderID: workerA, BubbleType: models.BubbleText, Content: "*1#",
	})
	assertCode(t, err, ErrInvalidState)

	_, err = f.svc.HandleCompletionRequest(ctx, job.ChatID, customerID)
	assertCode(t, err, ErrNotOwner)
}

func TestCompletionFlow(t *testing.T) {
	f := newFixture(t)
	job := f.matchedJob()
	startJob(t, f, job)
	code := completionCodeFor(t, f, job)

	wrong := "000000"
	if wrong == code {
		wrong = "111111"
	}
	ok, err := f.svc.ValidateCompletionCode(ctx, job.ID, wrong)
	if err != nil || ok {
		t.Fatalf("wrong code = %v, %v; want false, nil", ok, err)
	}
	stored, err := f.store.Codes().GetCompletionCode(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.FailedAttempts != 1 || stored.ConsumedAt != nil {
		t.Fatalf("stored code = %+v, want one failure and unconsumed", stored)
	}
	if stored.CodeHash == code {
		t.Fatal("completion code stored in clear text")
	}

	ok, err = f.svc.ValidateCompletionCode(ctx, job.ID, code)
	if err != nil || !ok {
		t.Fatalf("right code = %v, %v; want true, nil", ok, err)
	}
	done := f.job(job.ID)
	if done.Status != models.JobStatusCompleted || done.CompletedAt == nil {
		t.Fatalf("job = %+v, want completed", done)
	}

	prompts := f.jobMessages(job.ID, models.BubbleRating)
	if len(prompts) != 2 {
		t.Fatalf("rating prompts = %d, want 2", len(prompts))
	}
	seen := map[string]any{}
	for _, p := range prompts {
		seen[p.VisibleTo] = p.Metadata["rating_type"]
	}
	if seen[customerID] != string(models.RatingCustomerToWorker) || seen[workerA] != string(models.RatingWorkerToCustomer) {
		t.Fatalf("rating prompts = %v", seen)
	}

	_, err = f.svc.ValidateCompletionCode(ctx, job.ID, code)
	assertCode(t, err, ErrAlreadyCompleted)
	_, err = f.svc.GenerateCompletionCode(ctx, job.ID)
	assertCode(t, err, ErrAlreadyCompleted)
}

func TestCompletionCodeAttemptsAreThrottled(t *testing.T) {
	f := newFixture(t, func(s *Settings) {
		s.CodeAttemptsPerMinute = 1
		s.CodeAttemptBurst = 2
	})
	job := f.matchedJob()
	startJob(t, f, job)
	code := completionCodeFor(t, f, job)
	wrong := "000000"
	if wrong == code {
		wrong = "111111"
	}

	for i := 0; i < 2; i++ {
		if ok, err := f.svc.ValidateCompletionCode(ctx, job.ID, wrong); err != nil || ok {
			t.Fatalf("attempt %d = %v, %v", i+1, ok, err)
		}
	}
	_, err := f.svc.ValidateCompletionCode(ctx, job.ID, code)
	assertCode(t, err, ErrTooManyAttempts)

	f.clock.Advance(time.Minute)
	ok, err := f.svc.ValidateCompletionCode(ctx, job.ID, code)
	if err != nil || !ok {
		t.Fatalf("after refill = %v, %v; want the code accepted", ok, err)
	}
}

func TestGenerateCompletionCodeReplacesPrevious(t *testing.T) {
	f := newFixture(t)
	job := f.matchedJob()
	startJob(t, f, job)

	first, err := f.svc.GenerateCompletionCode(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.svc.GenerateCompletionCode(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	live := 0
	for _, m := range f.jobMessages(job.ID, models.BubbleCompletionCode) {
		if !m.IsExpired {
			live++
		}
	}
	if live != 1 {
		t.Fatalf("live code bubbles = %d, want 1", live)
	}
	if first != second {
		if ok, err := f.svc.ValidateCompletionCode(ctx, job.ID, first); err != nil || ok {
			t.Fatalf("superseded code = %v, %v; want false", ok, err)
		}
	}
	if ok, err := f.svc.ValidateCompletionCode(ctx, job.ID, second); err != nil || !ok {
		t.Fatalf("latest code = %v, %v; want true", ok, err)
	}
}

func TestSubmitRating(t *testing.T) {
	f := newFixture(t)
	job := f.matchedJob()

	in := RatingInput{JobID: job.ID, RaterID: customerID, RatedID: workerA, Rating: 5, RatingType: models.RatingCustomerToWorker}
	_, err := f.svc.SubmitRating(ctx, in)
	assertCode(t, err, ErrInvalidState)

	startJob(t, f, job)
	code := completionCodeFor(t, f, job)
	if ok, err := f.svc.ValidateCompletionCode(ctx, job.ID, code); err != nil || !ok {
		t.Fatalf("complete: %v, %v", ok, err)
	}

	rating, err := f.svc.SubmitRating(ctx, in)
	if err != nil {
		t.Fatalf("SubmitRating: %v", err)
	}
	if rating.Rating != 5 || rating.RatedID != workerA {
		t.Fatalf("rating = %+v", rating)
	}
	_, err = f.svc.SubmitRating(ctx, in)
	assertCode(t, err, ErrDuplicateRating)

	for _, p := range f.jobMessages(job.ID, models.BubbleRating) {
		if p.VisibleTo == customerID && !p.IsDismissed {
			t.Fatal("customer rating prompt still open")
		}
		if p.VisibleTo == workerA && p.IsDismissed {
			t.Fatal("worker rating prompt dismissed by the customer's rating")
		}
	}

	tests := []struct {
		name string
		in   RatingInput
		want *Error
	}{
		{"out of range", RatingInput{JobID: job.ID, RaterID: workerA, RatedID: customerID, Rating: 6, RatingType: models.RatingWorkerToCustomer}, ErrValidation},
		{"wrong direction", RatingInput{JobID: job.ID, RaterID: workerA, RatedID: customerID, Rating: 4, RatingType: models.RatingCustomerToWorker}, ErrNotOwner},
		{"outsider", RatingInput{JobID: job.ID, RaterID: workerB, RatedID: customerID, Rating: 4, RatingType: models.RatingWorkerToCustomer}, ErrNotOwner},
		{"unknown type", RatingInput{JobID: job.ID, RaterID: workerA, RatedID: customerID, Rating: 4, RatingType: "peer"}, ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SubmitRating(ctx, tt.in)
			assertCode(t, err, tt.want)
		})
	}

	if _, err := f.svc.SubmitRating(ctx, RatingInput{JobID: job.ID, RaterID: workerA, RatedID: customerID, Rating: 4, RatingType: models.RatingWorkerToCustomer}); err != nil {
		t.Fatalf("worker rating: %v", err)
	}
}
