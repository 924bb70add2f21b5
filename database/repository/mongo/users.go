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

type userRepo struct{ coll *mongo.Collection }

func (r userRepo) Create(ctx context.Context, user *models.User) error {
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	return insertOne(ctx, r.coll, user)
}

func (r userRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := findOne(ctx, r.coll, bson.M{"id": id}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r userRepo) ListEligibleWorkers(ctx context.Context, categoryID string) ([]models.User, error) {
	filter := bson.M{
		"role":            models.RoleWorker,
		"approval_status": models.ApprovalApproved,
		"balance":         bson.M{"$gt": 0},
		"skills":          categoryID,
	}
	opts := options.Find().SetSort(bson.D{{Key: "priority_score", Value: -1}, {Key: "id", Value: 1}})
	var workers []models.User
	if err := findAll(ctx, r.coll, filter, &workers, opts); err != nil {
		return nil, err
	}
	return workers, nil
}

func (r userRepo) SetApprovalStatus(ctx context.Context, id, status string) error {
	return updateOne(ctx, r.coll, id, bson.M{"$set": bson.M{"approval_status": status, "updated_at": time.Now()}})
}

func (r userRepo) AdjustBalance(ctx context.Context, id string, delta int64) (*models.User, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	update := bson.M{"$inc": bson.M{"balance": delta}, "$set": bson.M{"updated_at": time.Now()}}
	var user models.User
	if err := r.coll.FindOneAndUpdate(ctx, bson.M{"id": id}, update, opts).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to adjust balance: %w", err)
	}
	return &user, nil
}

func (r userRepo) IncrementCancellationCount(ctx context.Context, id string) error {
	return updateOne(ctx, r.coll, id, bson.M{"$inc": bson.M{"cancellation_count": 1}, "$set": bson.M{"updated_at": time.Now()}})
}

func (r userRepo) SetFCMToken(ctx context.Context, id, token string) error {
	return updateOne(ctx, r.coll, id, bson.M{"$set": bson.M{"fcm_token": token, "updated_at": time.Now()}})
}

type categoryRepo struct{ coll *mongo.Collection }

func (r categoryRepo) Create(ctx context.Context, category *models.Category) error {
	return insertOne(ctx, r.coll, category)
}

func (r categoryRepo) GetByID(ctx context.Context, id string) (*models.Category, error) {
	var category models.Category
	if err := findOne(ctx, r.coll, bson.M{"id": id}, &category); err != nil {
		return nil, err
	}
	return &category, nil
}

func (r categoryRepo) ListChildren(ctx context.Context, parentID string) ([]models.Category, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	var children []models.Category
	if err := findAll(ctx, r.coll, bson.M{"parent_id": parentID}, &children, opts); err != nil {
		return nil, err
	}
	return children, nil
}

type chatRepo struct{ coll *mongo.Collection }

func (r chatRepo) Create(ctx context.Context, chat *models.Chat) error {
	now := time.Now()
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = now
	}
	chat.UpdatedAt = now
	return insertOne(ctx, r.coll, chat)
}

func (r chatRepo) GetByID(ctx context.Context, id string) (*models.Chat, error) {
	var chat models.Chat
	if err := findOne(ctx, r.coll, bson.M{"id": id}, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

func (r chatRepo) FindServiceChat(ctx context.Context, customerID, categoryID string) (*models.Chat, error) {
	if customerID == "" {
		return nil, repository.ErrNotFound
	}
	var chat models.Chat
	if err := findOne(ctx, r.coll, bson.M{"customer_id": customerID, "category_id": categoryID}, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

func (r chatRepo) FindNotificationChat(ctx context.Context, workerID, categoryID string) (*models.Chat, error) {
	if workerID == "" {
		return nil, repository.ErrNotFound
	}
	filter := bson.M{
		"worker_id":   workerID,
		"category_id": categoryID,
		"customer_id": bson.M{"$exists": false},
	}
	var chat models.Chat
	if err := findOne(ctx, r.coll, filter, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

func (r chatRepo) SetFirstVoiceMessage(ctx context.Context, chatID, messageID string) error {
	if messageID == "" {
		return updateOne(ctx, r.coll, chatID, bson.M{
			"$unset": bson.M{"first_voice_message_id": ""},
			"$set":   bson.M{"updated_at": time.Now()},
		})
	}
	return updateOne(ctx, r.coll, chatID, bson.M{"$set": bson.M{"first_voice_message_id": messageID, "updated_at": time.Now()}})
}

func (r chatRepo) AttachJob(ctx context.Context, chatID, jobID string) error {
	return updateOne(ctx, r.coll, chatID, bson.M{"$set": bson.M{"job_id": jobID, "updated_at": time.Now()}})
}

func (r chatRepo) AttachWorker(ctx context.Context, chatID, workerID string, banner *models.BannerInfo) error {
	return updateOne(ctx, r.coll, chatID, bson.M{"$set": bson.M{
		"worker_id":   workerID,
		"banner_info": banner,
		"updated_at":  time.Now(),
	}})
}

func (r chatRepo) SetBanner(ctx context.Context, chatID string, banner *models.BannerInfo) error {
	return updateOne(ctx, r.coll, chatID, bson.M{"$set": bson.M{"banner_info": banner, "updated_at": time.Now()}})
}

func (r chatRepo) Reset(ctx context.Context, chatID string) error {
	return updateOne(ctx, r.coll, chatID, bson.M{
		"$unset": bson.M{
			"job_id":                 "",
			"worker_id":              "",
			"banner_info":            "",
			"first_voice_message_id": "",
			"script_start_id":        "",
		},
		"$set": bson.M{"is_cleared": false, "updated_at": time.Now()},
	})
}

func (r chatRepo) Release(ctx context.Context, chatID, scriptStartID string) error {
	return updateOne(ctx, r.coll, chatID, bson.M{
		"$unset": bson.M{
			"job_id":                 "",
			"worker_id":              "",
			"banner_info":            "",
			"first_voice_message_id": "",
		},
		"$set": bson.M{"script_start_id": scriptStartID, "updated_at": time.Now()},
	})
}
