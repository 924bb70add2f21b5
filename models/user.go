package models

import "time"

const (
	RoleCustomer = "customer"
	RoleWorker   = "worker"
)

const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

// User is either a customer posting jobs or a worker bidding on them.
type User struct {
	ID                string    `bson:"id" json:"id"`
	Name              string    `bson:"name" json:"name"`
	PhoneNumber       string    `bson:"phone_number" json:"phone_number,omitempty"`
	Role              string    `bson:"role" json:"role"`                                 // "customer" or "worker"
	Balance           int64     `bson:"balance" json:"balance"`                           // Funds a worker spends to bid, minor units
	ApprovalStatus    string    `bson:"approval_status" json:"approval_status"`           // pending, approved, rejected
	PriorityScore     float64   `bson:"priority_score" json:"priority_score"`             // Higher scores surface first in feeds
	CancellationCount int       `bson:"cancellation_count" json:"cancellation_count"`     // Penalised cancellations
	Skills            []string  `bson:"skills,omitempty" json:"skills,omitempty"`         // Top-level category IDs a worker serves
	FCMToken          string    `bson:"fcm_token,omitempty" json:"fcm_token,omitempty"`   // Push target
	CreatedAt         time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt         time.Time `bson:"updated_at" json:"updated_at"`
}

func (u *User) IsWorker() bool {
	return u.Role == RoleWorker
}

// HasSkill reports whether the worker serves the given top-level category.
func (u *User) HasSkill(categoryID string) bool {
	for _, s := range u.Skills {
		if s == categoryID {
			return true
		}
	}
	return false
}

// IsEligibleWorker is the broadcast eligibility rule: approved with a positive balance.
func (u *User) IsEligibleWorker() bool {
	return u.IsWorker() && u.Balance > 0 && u.ApprovalStatus == ApprovalApproved
}
