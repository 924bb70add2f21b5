package mongoRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gigchat/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type messageRepo struct {
	msgs  *mongo.Collection
	parts *mongo.Collection
}

var chronological = options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

func (r messageRepo) Append(ctx context.Context, msg *models.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	msg.YearMonth = models.PartitionKey(msg.CreatedAt)
	if err := insertOne(ctx, r.msgs, msg); err != nil {
		return err
	}

	filter := bson.M{"chat_id": msg.ChatID, "year_month": msg.YearMonth}
	update := bson.M{
		"$inc":         bson.M{"message_count": 1},
		"$max":         bson.M{"last_message_at": msg.CreatedAt},
		"$setOnInsert": bson.M{"first_message_at": msg.CreatedAt},
	}
	if _, err := r.parts.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("failed to update message partition: %w", err)
	}
	return nil
}

func (r messageRepo) GetByID(ctx context.Context, id string) (*models.Message, error) {
	var msg models.Message
	if err := findOne(ctx, r.msgs, bson.M{"id": id}, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r messageRepo) ListByChat(ctx context.Context, chatID string) ([]models.Message, error) {
	var out []models.Message
	if err := findAll(ctx, r.msgs, bson.M{"chat_id": chatID}, &out, chronological); err != nil {
		return nil, err
	}
	return out, nil
}

func (r messageRepo) ListByJob(ctx context.Context, jobID string, bubbleType models.BubbleType) ([]models.Message, error) {
	filter := bson.M{"job_id": jobID}
	if bubbleType != "" {
		filter["bubble_type"] = bubbleType
	}
	var out []models.Message
	if err := findAll(ctx, r.msgs, filter, &out, chronological); err != nil {
		return nil, err
	}
	return out, nil
}

func (r messageRepo) Delete(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		var msg models.Message
		err := r.msgs.FindOneAndDelete(ctx, bson.M{"id": id}).Decode(&msg)
		if errors.Is(err, mongo.ErrNoDocuments) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to delete message %s: %w", id, err)
		}
		_, err = r.parts.UpdateOne(ctx,
			bson.M{"chat_id": msg.ChatID, "year_month": msg.YearMonth},
			bson.M{"$inc": bson.M{"message_count": -1}})
		if err != nil {
			return fmt.Errorf("failed to update message partition: %w", err)
		}
	}
	return nil
}

func (r messageRepo) DeleteByChat(ctx context.Context, chatID string) (int64, error) {
	res, err := r.msgs.DeleteMany(ctx, bson.M{"chat_id": chatID})
	if err != nil {
		return 0, fmt.Errorf("failed to delete chat messages: %w", err)
	}
	return res.DeletedCount, nil
}

func (r messageRepo) DeletePartitionsByChat(ctx context.Context, chatID string) (int64, error) {
	res, err := r.parts.DeleteMany(ctx, bson.M{"chat_id": chatID})
	if err != nil {
		return 0, fmt.Errorf("failed to delete chat partitions: %w", err)
	}
	return res.DeletedCount, nil
}

func (r messageRepo) ListPartitions(ctx context.Context, chatID string) ([]models.MessagePartition, error) {
	opts := options.Find().SetSort(bson.D{{Key: "year_month", Value: 1}})
	var out []models.MessagePartition
	if err := findAll(ctx, r.parts, bson.M{"chat_id": chatID}, &out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (r messageRepo) Dismiss(ctx context.Context, id string) error {
	return updateOne(ctx, r.msgs, id, bson.M{"$set": bson.M{"is_dismissed": true}})
}

func (r messageRepo) expireMany(ctx context.Context, filter bson.M, at time.Time) (int64, error) {
	filter["is_expired"] = false
	res, err := r.msgs.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"is_expired": true, "expires_at": at}})
	if err != nil {
		return 0, fmt.Errorf("failed to expire messages: %w", err)
	}
	return res.ModifiedCount, nil
}

func (r messageRepo) ExpireByJob(ctx context.Context, jobID string, bubbleType models.BubbleType, at time.Time) (int64, error) {
	return r.expireMany(ctx, bson.M{"job_id": jobID, "bubble_type": bubbleType}, at)
}

func (r messageRepo) ExpireByBid(ctx context.Context, bidID string, at time.Time) (int64, error) {
	return r.expireMany(ctx, bson.M{"bid_id": bidID}, at)
}

func (r messageRepo) MarkRead(ctx context.Context, chatID, readerID string) (int64, error) {
	filter := bson.M{
		"chat_id":   chatID,
		"sender_id": bson.M{"$ne": readerID},
		"status":    bson.M{"$ne": models.MessageStatusRead},
	}
	res, err := r.msgs.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"status": models.MessageStatusRead}})
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", err)
	}
	return res.ModifiedCount, nil
}
