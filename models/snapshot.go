package models

import "time"

const (
	BidStatusPending  = "pending"
	BidStatusAccepted = "accepted"
	BidStatusRejected = "rejected"
)

// JobSnapshot is the job as embedded in job and worker_job bubble metadata.
type JobSnapshot struct {
	JobID             string      `json:"job_id" validate:"required"`
	CustomerID        string      `json:"customer_id" validate:"required"`
	CategoryID        string      `json:"category_id" validate:"required"`
	SubcategoryID     string      `json:"subcategory_id,omitempty"`
	VoiceURL          string      `json:"voice_url"`
	Photos            []string    `json:"photos"`
	Location          GeoLocation `json:"location"`
	ScheduledDate     string      `json:"scheduled_date,omitempty"`
	PriceFloor        int64       `json:"price_floor"`
	Status            JobStatus   `json:"status" validate:"required"`
	BroadcastingPhase int         `json:"broadcasting_phase" validate:"oneof=1 2"`
	BidCount          int         `json:"bid_count"`
	WorkerID          string      `json:"worker_id,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
}

// BidSnapshot is the bid breakdown embedded in bid and worker_job bubbles.
type BidSnapshot struct {
	BidID             string    `json:"bid_id" validate:"required"`
	JobID             string    `json:"job_id" validate:"required"`
	WorkerID          string    `json:"worker_id" validate:"required"`
	BaseAmount        int64     `json:"base_amount" validate:"gt=0"`
	EquipmentCost     int64     `json:"equipment_cost" validate:"gte=0"`
	ServiceFee        int64     `json:"service_fee" validate:"gte=0"`
	TotalAmount       int64     `json:"total_amount" validate:"gt=0"`
	ExpiresAt         time.Time `json:"expires_at"`
	PriorityWindowEnd time.Time `json:"priority_window_end"`
	Status            string    `json:"status" validate:"oneof=pending accepted rejected"`
}

func NewJobSnapshot(j *Job) JobSnapshot {
	photos := j.Photos
	if photos == nil {
		photos = []string{}
	}
	return JobSnapshot{
		JobID:             j.ID,
		CustomerID:        j.CustomerID,
		CategoryID:        j.CategoryID,
		SubcategoryID:     j.SubcategoryID,
		VoiceURL:          j.VoiceURL,
		Photos:            photos,
		Location:          j.Location,
		ScheduledDate:     j.ScheduledDate,
		PriceFloor:        j.PriceFloor,
		Status:            j.Status,
		BroadcastingPhase: j.BroadcastingPhase,
		BidCount:          j.BidCount,
		WorkerID:          j.WorkerID,
		CreatedAt:         j.CreatedAt,
	}
}

func NewBidSnapshot(b *Bid) BidSnapshot {
	status := BidStatusPending
	switch {
	case b.AcceptedAt != nil:
		status = BidStatusAccepted
	case b.RejectedAt != nil:
		status = BidStatusRejected
	}
	return BidSnapshot{
		BidID:             b.ID,
		JobID:             b.JobID,
		WorkerID:          b.WorkerID,
		BaseAmount:        b.BaseAmount,
		EquipmentCost:     b.EquipmentCost,
		ServiceFee:        b.ServiceFee,
		TotalAmount:       b.Amount,
		ExpiresAt:         b.ExpiresAt,
		PriorityWindowEnd: b.PriorityWindowEnd,
		Status:            status,
	}
}
