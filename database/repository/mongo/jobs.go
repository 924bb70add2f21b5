package mongoRepo

import (
	"context"
	"time"

	"gigchat/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type jobRepo struct{ coll *mongo.Collection }

func (r jobRepo) Create(ctx context.Context, job *models.Job) error {
	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = job.CreatedAt
	if job.Photos == nil {
		job.Photos = []string{}
	}
	return insertOne(ctx, r.coll, job)
}

func (r jobRepo) GetByID(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	if err := findOne(ctx, r.coll, bson.M{"id": id}, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (r jobRepo) SetSubcategory(ctx context.Context, jobID, subcategoryID, workerID string, at time.Time) (*models.Job, error) {
	filter := bson.M{
		"id":             jobID,
		"subcategory_id": bson.M{"$in": bson.A{nil, ""}},
	}
	update := bson.M{"$set": bson.M{
		"subcategory_id":     subcategoryID,
		"categorized_by":     workerID,
		"broadcasting_phase": models.PhaseBidding,
		"updated_at":         at,
	}}
	var job models.Job
	if err := conditionalUpdate(ctx, r.coll, filter, update, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (r jobRepo) ReserveBidSlot(ctx context.Context, jobID string, at time.Time) (*models.Job, error) {
	filter := bson.M{
		"id":                 jobID,
		"status":             models.JobStatusPosted,
		"broadcasting_phase": models.PhaseBidding,
	}
	update := bson.M{
		"$inc": bson.M{"bid_count": 1},
		"$set": bson.M{"updated_at": at},
	}
	var job models.Job
	if err := conditionalUpdate(ctx, r.coll, filter, update, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (r jobRepo) Transition(ctx context.Context, jobID string, from []models.JobStatus, upd models.JobUpdate, at time.Time) (*models.Job, error) {
	filter := bson.M{"id": jobID, "status": bson.M{"$in": from}}

	set := bson.M{"updated_at": at}
	if upd.Status != "" {
		set["status"] = upd.Status
	}
	if upd.WorkerID != nil {
		set["worker_id"] = *upd.WorkerID
	}
	if upd.AcceptedBidID != nil {
		set["accepted_bid_id"] = *upd.AcceptedBidID
	}
	if upd.OnboardingValidatedAt != nil {
		set["onboarding_validated_at"] = *upd.OnboardingValidatedAt
	}
	if upd.MatchedAt != nil {
		set["matched_at"] = *upd.MatchedAt
	}
	if upd.CompletedAt != nil {
		set["completed_at"] = *upd.CompletedAt
	}
	if upd.CancelledAt != nil {
		set["cancelled_at"] = *upd.CancelledAt
	}
	if upd.CancelledAtPhase != nil {
		set["cancelled_at_phase"] = *upd.CancelledAtPhase
	}

	var job models.Job
	if err := conditionalUpdate(ctx, r.coll, filter, bson.M{"$set": set}, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

type bidRepo struct{ coll *mongo.Collection }

func (r bidRepo) Create(ctx context.Context, bid *models.Bid) error {
	return insertOne(ctx, r.coll, bid)
}

func (r bidRepo) GetByID(ctx context.Context, id string) (*models.Bid, error) {
	var bid models.Bid
	if err := findOne(ctx, r.coll, bson.M{"id": id}, &bid); err != nil {
		return nil, err
	}
	return &bid, nil
}

func (r bidRepo) ListByJob(ctx context.Context, jobID string) ([]models.Bid, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "id", Value: 1}})
	var bids []models.Bid
	if err := findAll(ctx, r.coll, bson.M{"job_id": jobID}, &bids, opts); err != nil {
		return nil, err
	}
	return bids, nil
}

func (r bidRepo) Settle(ctx context.Context, bidID string, accepted bool, at time.Time) (*models.Bid, error) {
	filter := bson.M{
		"id":          bidID,
		"accepted_at": bson.M{"$exists": false},
		"rejected_at": bson.M{"$exists": false},
	}
	field := "rejected_at"
	if accepted {
		field = "accepted_at"
	}
	var bid models.Bid
	if err := conditionalUpdate(ctx, r.coll, filter, bson.M{"$set": bson.M{field: at}}, &bid); err != nil {
		return nil, err
	}
	return &bid, nil
}
