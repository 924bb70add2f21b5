package models

import "time"

// Bid is unique per (job, worker). Amount is the total the customer pays:
// base + equipment + service fee.
type Bid struct {
	ID                string     `bson:"id" json:"id"`
	JobID             string     `bson:"job_id" json:"job_id"`
	WorkerID          string     `bson:"worker_id" json:"worker_id"`
	Amount            int64      `bson:"amount" json:"amount"`
	BaseAmount        int64      `bson:"base_amount" json:"base_amount"`
	EquipmentCost     int64      `bson:"equipment_cost" json:"equipment_cost"`
	ServiceFee        int64      `bson:"service_fee" json:"service_fee"`
	ExpiresAt         time.Time  `bson:"expires_at" json:"expires_at"`
	PriorityWindowEnd time.Time  `bson:"priority_window_end" json:"priority_window_end"`
	AcceptedAt        *time.Time `bson:"accepted_at,omitempty" json:"accepted_at,omitempty"`
	RejectedAt        *time.Time `bson:"rejected_at,omitempty" json:"rejected_at,omitempty"`
	CreatedAt         time.Time  `bson:"created_at" json:"created_at"`
}

// IsSettled reports whether the bid was accepted or rejected.
func (b *Bid) IsSettled() bool {
	return b.AcceptedAt != nil || b.RejectedAt != nil
}

func (b *Bid) ExpiredAt(now time.Time) bool {
	return b.AcceptedAt == nil && !now.Before(b.ExpiresAt)
}

func (b *Bid) InPriorityWindow(now time.Time) bool {
	return now.Before(b.PriorityWindowEnd)
}

// BidView is a bid as shown to the customer, with timers evaluated at read time.
type BidView struct {
	Bid
	Expired          bool `json:"expired"`
	InPriorityWindow bool `json:"in_priority_window"`
}
