package models

import "time"

type JobStatus string

const (
	JobStatusPosted     JobStatus = "posted"
	JobStatusMatched    JobStatus = "matched"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusCancelled  JobStatus = "cancelled"
)

const (
	PhaseCategorization = 1
	PhaseBidding        = 2
)

// GeoLocation is a WGS84 coordinate pair.
type GeoLocation struct {
	Lat float64 `bson:"lat" json:"lat"`
	Lng float64 `bson:"lng" json:"lng"`
}

// Job is created from a finished service conversation and never deleted.
type Job struct {
	ID                    string      `bson:"id" json:"id"`
	ChatID                string      `bson:"chat_id" json:"chat_id"`
	CustomerID            string      `bson:"customer_id" json:"customer_id"`
	WorkerID              string      `bson:"worker_id,omitempty" json:"worker_id,omitempty"`
	CategoryID            string      `bson:"category_id" json:"category_id"`
	SubcategoryID         string      `bson:"subcategory_id,omitempty" json:"subcategory_id,omitempty"`
	CategorizedBy         string      `bson:"categorized_by,omitempty" json:"categorized_by,omitempty"`
	VoiceURL              string      `bson:"voice_url" json:"voice_url"`
	Photos                []string    `bson:"photos" json:"photos"`
	Location              GeoLocation `bson:"location" json:"location"`
	ScheduledDate         string      `bson:"scheduled_date,omitempty" json:"scheduled_date,omitempty"`
	PriceFloor            int64       `bson:"price_floor" json:"price_floor"`
	PortfolioConsent      bool        `bson:"portfolio_consent" json:"portfolio_consent"`
	WorkCode              string      `bson:"work_code" json:"-"` // Onboarding gate, never serialised to clients
	Status                JobStatus   `bson:"status" json:"status"`
	BroadcastingPhase     int         `bson:"broadcasting_phase" json:"broadcasting_phase"`
	BidCount              int         `bson:"bid_count" json:"bid_count"`
	AcceptedBidID         string      `bson:"accepted_bid_id,omitempty" json:"accepted_bid_id,omitempty"`
	OnboardingValidatedAt *time.Time  `bson:"onboarding_validated_at,omitempty" json:"onboarding_validated_at,omitempty"`
	MatchedAt             *time.Time  `bson:"matched_at,omitempty" json:"matched_at,omitempty"`
	CompletedAt           *time.Time  `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	CancelledAt           *time.Time  `bson:"cancelled_at,omitempty" json:"cancelled_at,omitempty"`
	CancelledAtPhase      *int        `bson:"cancelled_at_phase,omitempty" json:"cancelled_at_phase,omitempty"`
	CreatedAt             time.Time   `bson:"created_at" json:"created_at"`
	UpdatedAt             time.Time   `bson:"updated_at" json:"updated_at"`
}

// IsTerminal reports whether the job can no longer change.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusCancelled
}

// HasWorker reports whether a bid was accepted on the job.
func (j *Job) HasWorker() bool {
	return j.WorkerID != ""
}

// JobUpdate lists the fields a status transition may set. Nil pointers are left untouched.
type JobUpdate struct {
	Status                JobStatus
	WorkerID              *string
	AcceptedBidID         *string
	OnboardingValidatedAt *time.Time
	MatchedAt             *time.Time
	CompletedAt           *time.Time
	CancelledAt           *time.Time
	CancelledAtPhase      *int
}

// Apply copies the update onto j.
func (u JobUpdate) Apply(j *Job, now time.Time) {
	if u.Status != "" {
		j.Status = u.Status
	}
	if u.WorkerID != nil {
		j.WorkerID = *u.WorkerID
	}
	if u.AcceptedBidID != nil {
		j.AcceptedBidID = *u.AcceptedBidID
	}
	if u.OnboardingValidatedAt != nil {
		j.OnboardingValidatedAt = u.OnboardingValidatedAt
	}
	if u.MatchedAt != nil {
		j.MatchedAt = u.MatchedAt
	}
	if u.CompletedAt != nil {
		j.CompletedAt = u.CompletedAt
	}
	if u.CancelledAt != nil {
		j.CancelledAt = u.CancelledAt
	}
	if u.CancelledAtPhase != nil {
		p := *u.CancelledAtPhase
		j.CancelledAtPhase = &p
	}
	j.UpdatedAt = now
}
