package models

import "time"

const CodeLength = 6

// CompletionCode is the single-use proof of completion issued to the customer.
// Only the bcrypt hash is persisted.
type CompletionCode struct {
	JobID          string     `bson:"job_id" json:"job_id"`
	CodeHash       string     `bson:"code_hash" json:"-"`
	FailedAttempts int        `bson:"failed_attempts" json:"failed_attempts"`
	ConsumedAt     *time.Time `bson:"consumed_at,omitempty" json:"consumed_at,omitempty"`
	CreatedAt      time.Time  `bson:"created_at" json:"created_at"`
}

// OnboardingStatus tells the customer UI whether the worker has started in person.
type OnboardingStatus struct {
	JobID            string     `json:"job_id"`
	RequiresWorkCode bool       `json:"requires_work_code"`
	Validated        bool       `json:"validated"`
	ValidatedAt      *time.Time `json:"validated_at,omitempty"`
	CanCancel        bool       `json:"can_cancel"`
}
