package mongoRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gigchat/database/repository"
	"gigchat/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type codeRepo struct{ coll *mongo.Collection }

func (r codeRepo) SaveCompletionCode(ctx context.Context, code *models.CompletionCode) error {
	filter := bson.M{"job_id": code.JobID, "consumed_at": bson.M{"$exists": false}}
	_, err := r.coll.ReplaceOne(ctx, filter, code, options.Replace().SetUpsert(true))
	if err != nil {
		// The upsert collides with the unique job index when a consumed code exists.
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("failed to save completion code: %w", err)
	}
	return nil
}

func (r codeRepo) GetCompletionCode(ctx context.Context, jobID string) (*models.CompletionCode, error) {
	var code models.CompletionCode
	if err := findOne(ctx, r.coll, bson.M{"job_id": jobID}, &code); err != nil {
		return nil, err
	}
	return &code, nil
}

func (r codeRepo) RecordFailedAttempt(ctx context.Context, jobID string) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"job_id": jobID}, bson.M{"$inc": bson.M{"failed_attempts": 1}})
	if err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r codeRepo) ConsumeCompletionCode(ctx context.Context, jobID string, at time.Time) error {
	filter := bson.M{"job_id": jobID, "consumed_at": bson.M{"$exists": false}}
	res, err := r.coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"consumed_at": at}})
	if err != nil {
		return fmt.Errorf("failed to consume completion code: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}
	n, err := r.coll.CountDocuments(ctx, bson.M{"job_id": jobID})
	if err != nil {
		return fmt.Errorf("failed to check completion code: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return repository.ErrConflict
}

type ratingRepo struct{ coll *mongo.Collection }

func (r ratingRepo) Create(ctx context.Context, rating *models.Rating) error {
	return insertOne(ctx, r.coll, rating)
}

func (r ratingRepo) ListByJob(ctx context.Context, jobID string) ([]models.Rating, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	var out []models.Rating
	if err := findAll(ctx, r.coll, bson.M{"job_id": jobID}, &out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

type viewRepo struct{ coll *mongo.Collection }

func (r viewRepo) Record(ctx context.Context, view *models.JobView) (bool, error) {
	err := insertOne(ctx, r.coll, view)
	if errors.Is(err, repository.ErrDuplicate) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}
