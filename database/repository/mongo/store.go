// Package mongoRepo implements the repository contract on MongoDB. Workflow
// transactions run inside a client session; every repository call made with
// the session context joins that transaction.
package mongoRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gigchat/database/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

const (
	usersCollection      = "users"
	categoriesCollection = "categories"
	chatsCollection      = "chats"
	messagesCollection   = "messages"
	partitionsCollection = "message_partitions"
	jobsCollection       = "jobs"
	bidsCollection       = "bids"
	codesCollection      = "completion_codes"
	ratingsCollection    = "ratings"
	viewsCollection      = "job_views"
)

// Store implements repository.Store on a MongoDB database.
type Store struct {
	db *mongo.Database
}

var _ repository.Store = (*Store)(nil)

// NewStore wraps db and ensures the indexes the workflow relies on for
// uniqueness and lookups.
func NewStore(ctx context.Context, db *mongo.Database) (*Store, error) {
	s := &Store{db: db}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) coll(name string) *mongo.Collection {
	return s.db.Collection(name)
}

// ensureIndexes creates indexes for fields frequently used in queries.
func (s *Store) ensureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	unique := options.Index().SetUnique(true)
	indexes := map[string][]mongo.IndexModel{
		usersCollection: {
			{Keys: bson.D{{Key: "id", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "role", Value: 1}, {Key: "skills", Value: 1}, {Key: "approval_status", Value: 1}}},
		},
		categoriesCollection: {
			{Keys: bson.D{{Key: "id", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "parent_id", Value: 1}}},
		},
		chatsCollection: {
			{Keys: bson.D{{Key: "id", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "category_id", Value: 1}}},
			{Keys: bson.D{{Key: "worker_id", Value: 1}, {Key: "category_id", Value: 1}}},
		},
		messagesCollection: {
			{Keys: bson.D{{Key: "id", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "chat_id", Value: 1}, {Key: "year_month", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "job_id", Value: 1}, {Key: "bubble_type", Value: 1}}},
			{Keys: bson.D{{Key: "bid_id", Value: 1}}},
		},
		partitionsCollection: {
			{Keys: bson.D{{Key: "chat_id", Value: 1}, {Key: "year_month", Value: 1}}, Options: unique},
		},
		jobsCollection: {
			{Keys: bson.D{{Key: "id", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "status", Value: 1}}},
		},
		bidsCollection: {
			{Keys: bson.D{{Key: "id", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "job_id", Value: 1}, {Key: "worker_id", Value: 1}}, Options: unique},
		},
		codesCollection: {
			{Keys: bson.D{{Key: "job_id", Value: 1}}, Options: unique},
		},
		ratingsCollection: {
			{Keys: bson.D{{Key: "job_id", Value: 1}, {Key: "rater_id", Value: 1}, {Key: "rated_id", Value: 1}}, Options: unique},
		},
		viewsCollection: {
			{Keys: bson.D{{Key: "job_id", Value: 1}, {Key: "worker_id", Value: 1}}, Options: unique},
		},
	}

	for name, models := range indexes {
		if _, err := s.coll(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", name, err)
		}
	}
	return nil
}

// maxTxnAttempts bounds how often a transaction aborted by a concurrent
// writer is run again.
const maxTxnAttempts = 3

// RunInTransaction executes fn inside a MongoDB multi-document transaction.
// A context that already carries a session joins it. Transient aborts rerun
// fn from the start.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}

	sess, err := s.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("could not start mongo session: %w", err)
	}
	defer sess.EndSession(ctx)

	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	for attempt := 1; ; attempt++ {
		err = mongo.WithSession(ctx, sess, func(sc mongo.SessionContext) error {
			if err := sc.StartTransaction(txnOpts); err != nil {
				return err
			}
			if err := fn(sc); err != nil {
				_ = sc.AbortTransaction(sc)
				return err
			}
			return commitWithRetry(sc)
		})
		if err == nil || !isTransient(err) || attempt == maxTxnAttempts || ctx.Err() != nil {
			return translateTxnError(err)
		}
	}
}

func commitWithRetry(sc mongo.SessionContext) error {
	for attempt := 1; ; attempt++ {
		err := sc.CommitTransaction(sc)
		if err == nil || !hasLabel(err, "UnknownTransactionCommitResult") || attempt == maxTxnAttempts {
			return err
		}
	}
}

// translateTxnError maps driver failures onto the repository sentinels.
// A filter mismatch is already ErrConflict; a collision with another
// transaction that outlived its retries becomes ErrTransient.
func translateTxnError(err error) error {
	if err == nil || errors.Is(err, repository.ErrConflict) {
		return err
	}
	if isTransient(err) {
		return fmt.Errorf("%w: %v", repository.ErrTransient, err)
	}
	if mongo.IsDuplicateKeyError(err) && !errors.Is(err, repository.ErrDuplicate) {
		return fmt.Errorf("%w: %v", repository.ErrDuplicate, err)
	}
	return err
}

// writeConflictCode is returned when two transactions touch the same document.
const writeConflictCode = 112

func isTransient(err error) bool {
	var se mongo.ServerError
	if !errors.As(err, &se) {
		return false
	}
	return se.HasErrorLabel("TransientTransactionError") || se.HasErrorCode(writeConflictCode)
}

func hasLabel(err error, label string) bool {
	var se mongo.ServerError
	return errors.As(err, &se) && se.HasErrorLabel(label)
}

func (s *Store) Users() repository.UserRepository         { return userRepo{s.coll(usersCollection)} }
func (s *Store) Categories() repository.CategoryRepository { return categoryRepo{s.coll(categoriesCollection)} }
func (s *Store) Chats() repository.ChatRepository          { return chatRepo{s.coll(chatsCollection)} }
func (s *Store) Messages() repository.MessageRepository {
	return messageRepo{msgs: s.coll(messagesCollection), parts: s.coll(partitionsCollection)}
}
func (s *Store) Jobs() repository.JobRepository       { return jobRepo{s.coll(jobsCollection)} }
func (s *Store) Bids() repository.BidRepository       { return bidRepo{s.coll(bidsCollection)} }
func (s *Store) Codes() repository.CodeRepository     { return codeRepo{s.coll(codesCollection)} }
func (s *Store) Ratings() repository.RatingRepository { return ratingRepo{s.coll(ratingsCollection)} }
func (s *Store) Views() repository.JobViewRepository  { return viewRepo{s.coll(viewsCollection)} }

// findOne decodes the first document matching filter into out.
func findOne(ctx context.Context, coll *mongo.Collection, filter bson.M, out any) error {
	if err := coll.FindOne(ctx, filter).Decode(out); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("failed to query %s: %w", coll.Name(), err)
	}
	return nil
}

// findAll decodes every document matching filter into out, a pointer to a slice.
func findAll(ctx context.Context, coll *mongo.Collection, filter bson.M, out any, opts ...*options.FindOptions) error {
	cursor, err := coll.Find(ctx, filter, opts...)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", coll.Name(), err)
	}
	defer cursor.Close(ctx)
	if err := cursor.All(ctx, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", coll.Name(), err)
	}
	return nil
}

// updateOne applies update to the document with the given id.
func updateOne(ctx context.Context, coll *mongo.Collection, id string, update bson.M) error {
	res, err := coll.UpdateOne(ctx, bson.M{"id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update %s %s: %w", coll.Name(), id, err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// conditionalUpdate applies update when filter (which must include "id")
// matches and returns the new document. It distinguishes a missing record
// from one in the wrong state. Driver errors, including write conflicts,
// keep their labels so the transaction can be retried.
func conditionalUpdate(ctx context.Context, coll *mongo.Collection, filter, update bson.M, out any) error {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(out)
	if err == nil {
		return nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("failed to update %s: %w", coll.Name(), err)
	}
	n, cerr := coll.CountDocuments(ctx, bson.M{"id": filter["id"]})
	if cerr != nil {
		return fmt.Errorf("failed to check %s: %w", coll.Name(), cerr)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return repository.ErrConflict
}

func insertOne(ctx context.Context, coll *mongo.Collection, doc any) error {
	if _, err := coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("failed to insert into %s: %w", coll.Name(), err)
	}
	return nil
}
