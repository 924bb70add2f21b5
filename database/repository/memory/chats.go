package memoryRepo

import (
	"context"
	"time"

	"gigchat/database/repository"
	"gigchat/models"
)

type chatRepo struct{ s *Store }

func cloneChat(c models.Chat) *models.Chat {
	if c.BannerInfo != nil {
		b := *c.BannerInfo
		c.BannerInfo = &b
	}
	return &c
}

func (r chatRepo) Create(ctx context.Context, chat *models.Chat) error {
	defer r.s.lock(ctx)()
	if _, ok := r.s.data.chats[chat.ID]; ok {
		return repository.ErrDuplicate
	}
	now := time.Now()
	chat.CreatedAt = now
	chat.UpdatedAt = now
	r.s.data.chats[chat.ID] = *cloneChat(*chat)
	return nil
}

func (r chatRepo) GetByID(ctx context.Context, id string) (*models.Chat, error) {
	defer r.s.lock(ctx)()
	c, ok := r.s.data.chats[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneChat(c), nil
}

func (r chatRepo) find(ctx context.Context, match func(c *models.Chat) bool) (*models.Chat, error) {
	defer r.s.lock(ctx)()
	for _, c := range r.s.data.chats {
		if match(&c) {
			return cloneChat(c), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r chatRepo) FindServiceChat(ctx context.Context, customerID, categoryID string) (*models.Chat, error) {
	return r.find(ctx, func(c *models.Chat) bool {
		return customerID != "" && c.CustomerID == customerID && c.CategoryID == categoryID
	})
}

func (r chatRepo) FindNotificationChat(ctx context.Context, workerID, categoryID string) (*models.Chat, error) {
	return r.find(ctx, func(c *models.Chat) bool {
		return workerID != "" && c.CustomerID == "" && c.WorkerID == workerID && c.CategoryID == categoryID
	})
}

func (r chatRepo) update(ctx context.Context, id string, fn func(c *models.Chat)) error {
	defer r.s.lock(ctx)()
	c, ok := r.s.data.chats[id]
	if !ok {
		return repository.ErrNotFound
	}
	c = *cloneChat(c)
	fn(&c)
	c.UpdatedAt = time.Now()
	r.s.data.chats[id] = c
	return nil
}

func (r chatRepo) SetFirstVoiceMessage(ctx context.Context, chatID, messageID string) error {
	return r.update(ctx, chatID, func(c *models.Chat) { c.FirstVoiceMessageID = messageID })
}

func (r chatRepo) AttachJob(ctx context.Context, chatID, jobID string) error {
	return r.update(ctx, chatID, func(c *models.Chat) { c.JobID = jobID })
}

func (r chatRepo) AttachWorker(ctx context.Context, chatID, workerID string, banner *models.BannerInfo) error {
	return r.update(ctx, chatID, func(c *models.Chat) {
		c.WorkerID = workerID
		c.BannerInfo = banner
	})
}

func (r chatRepo) SetBanner(ctx context.Context, chatID string, banner *models.BannerInfo) error {
	return r.update(ctx, chatID, func(c *models.Chat) { c.BannerInfo = banner })
}

func (r chatRepo) Reset(ctx context.Context, chatID string) error {
	return r.update(ctx, chatID, func(c *models.Chat) {
		c.JobID = ""
		c.WorkerID = ""
		c.BannerInfo = nil
		c.IsCleared = false
		c.FirstVoiceMessageID = ""
		c.ScriptStartID = ""
	})
}

func (r chatRepo) Release(ctx context.Context, chatID, scriptStartID string) error {
	return r.update(ctx, chatID, func(c *models.Chat) {
		c.JobID = ""
		c.WorkerID = ""
		c.BannerInfo = nil
		c.FirstVoiceMessageID = ""
		c.ScriptStartID = scriptStartID
	})
}
