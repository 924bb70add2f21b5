// Package memoryRepo is an in-process implementation of the repository
// contract. Transactions are serialised and rolled back from a snapshot, so
// it honours the same atomicity guarantees as the MongoDB store. It backs
// tests and the STORE_DRIVER=memory development mode.
package memoryRepo

import (
	"context"
	"sync"

	"gigchat/database/repository"
	"gigchat/models"
)

type txKey struct{}

type partitionKey struct {
	chatID    string
	yearMonth string
}

type viewKey struct {
	jobID    string
	workerID string
}

type state struct {
	users      map[string]models.User
	categories map[string]models.Category
	chats      map[string]models.Chat
	messages   map[string]models.Message
	order      map[string]int64 // message id -> insertion sequence
	seq        int64
	partitions map[partitionKey]models.MessagePartition
	jobs       map[string]models.Job
	bids       map[string]models.Bid
	codes      map[string]models.CompletionCode
	ratings    map[string]models.Rating
	views      map[viewKey]models.JobView
}

func newState() *state {
	return &state{
		users:      map[string]models.User{},
		categories: map[string]models.Category{},
		chats:      map[string]models.Chat{},
		messages:   map[string]models.Message{},
		order:      map[string]int64{},
		partitions: map[partitionKey]models.MessagePartition{},
		jobs:       map[string]models.Job{},
		bids:       map[string]models.Bid{},
		codes:      map[string]models.CompletionCode{},
		ratings:    map[string]models.Rating{},
		views:      map[viewKey]models.JobView{},
	}
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// clone copies every table. Stored values are replaced, never mutated in
// place, so copying the maps is enough to restore them.
func (s *state) clone() *state {
	return &state{
		users:      cloneMap(s.users),
		categories: cloneMap(s.categories),
		chats:      cloneMap(s.chats),
		messages:   cloneMap(s.messages),
		order:      cloneMap(s.order),
		seq:        s.seq,
		partitions: cloneMap(s.partitions),
		jobs:       cloneMap(s.jobs),
		bids:       cloneMap(s.bids),
		codes:      cloneMap(s.codes),
		ratings:    cloneMap(s.ratings),
		views:      cloneMap(s.views),
	}
}

// Store implements repository.Store in memory.
type Store struct {
	mu   sync.Mutex
	data *state
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{data: newState()}
}

var _ repository.Store = (*Store)(nil)

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// lock serialises access outside a transaction. Inside one the lock is
// already held by RunInTransaction.
func (s *Store) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// RunInTransaction runs fn while holding the store lock and restores the
// pre-transaction snapshot if fn fails.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

func (s *Store) Users() repository.UserRepository         { return userRepo{s} }
func (s *Store) Categories() repository.CategoryRepository { return categoryRepo{s} }
func (s *Store) Chats() repository.ChatRepository          { return chatRepo{s} }
func (s *Store) Messages() repository.MessageRepository    { return messageRepo{s} }
func (s *Store) Jobs() repository.JobRepository            { return jobRepo{s} }
func (s *Store) Bids() repository.BidRepository            { return bidRepo{s} }
func (s *Store) Codes() repository.CodeRepository          { return codeRepo{s} }
func (s *Store) Ratings() repository.RatingRepository      { return ratingRepo{s} }
func (s *Store) Views() repository.JobViewRepository       { return viewRepo{s} }
