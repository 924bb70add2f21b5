package models

import "time"

type RatingType string

const (
	RatingCustomerToWorker RatingType = "customer_to_worker"
	RatingWorkerToCustomer RatingType = "worker_to_customer"
)

// Rating is unique per (job, rater, rated user) and immutable.
type Rating struct {
	ID         string     `bson:"id" json:"id"`
	JobID      string     `bson:"job_id" json:"job_id"`
	RaterID    string     `bson:"rater_id" json:"rater_id"`
	RatedID    string     `bson:"rated_id" json:"rated_id"`
	Rating     int        `bson:"rating" json:"rating"`
	ReviewText string     `bson:"review_text,omitempty" json:"review_text,omitempty"`
	RatingType RatingType `bson:"rating_type" json:"rating_type"`
	CreatedAt  time.Time  `bson:"created_at" json:"created_at"`
}

// JobView records that a worker opened a job from their feed.
type JobView struct {
	JobID    string    `bson:"job_id" json:"job_id"`
	WorkerID string    `bson:"worker_id" json:"worker_id"`
	ViewedAt time.Time `bson:"viewed_at" json:"viewed_at"`
}
