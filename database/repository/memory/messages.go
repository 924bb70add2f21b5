package memoryRepo

import (
	"context"
	"sort"
	"time"

	"gigchat/database/repository"
	"gigchat/models"
)

type messageRepo struct{ s *Store }

func cloneMessage(m models.Message) *models.Message {
	if m.Metadata != nil {
		md := make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			md[k] = v
		}
		m.Metadata = md
	}
	return &m
}

func (r messageRepo) Append(ctx context.Context, msg *models.Message) error {
	defer r.s.lock(ctx)()
	d := r.s.data
	if _, ok := d.messages[msg.ID]; ok {
		return repository.ErrDuplicate
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	msg.YearMonth = models.PartitionKey(msg.CreatedAt)
	d.seq++
	d.order[msg.ID] = d.seq
	d.messages[msg.ID] = *cloneMessage(*msg)

	key := partitionKey{chatID: msg.ChatID, yearMonth: msg.YearMonth}
	p, ok := d.partitions[key]
	if !ok {
		p = models.MessagePartition{ChatID: msg.ChatID, YearMonth: msg.YearMonth, FirstMessageAt: msg.CreatedAt}
	}
	p.MessageCount++
	p.LastMessageAt = msg.CreatedAt
	d.partitions[key] = p
	return nil
}

func (r messageRepo) GetByID(ctx context.Context, id string) (*models.Message, error) {
	defer r.s.lock(ctx)()
	m, ok := r.s.data.messages[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneMessage(m), nil
}

func (r messageRepo) filter(match func(m *models.Message) bool) []models.Message {
	d := r.s.data
	var out []models.Message
	for _, m := range d.messages {
		if match(&m) {
			out = append(out, *cloneMessage(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return d.order[out[i].ID] < d.order[out[j].ID] })
	return out
}

func (r messageRepo) ListByChat(ctx context.Context, chatID string) ([]models.Message, error) {
	defer r.s.lock(ctx)()
	return r.filter(func(m *models.Message) bool { return m.ChatID == chatID }), nil
}

func (r messageRepo) ListByJob(ctx context.Context, jobID string, bubbleType models.BubbleType) ([]models.Message, error) {
	defer r.s.lock(ctx)()
	return r.filter(func(m *models.Message) bool {
		return m.JobID == jobID && (bubbleType == "" || m.BubbleType == bubbleType)
	}), nil
}

func (r messageRepo) Delete(ctx context.Context, ids ...string) error {
	defer r.s.lock(ctx)()
	d := r.s.data
	for _, id := range ids {
		m, ok := d.messages[id]
		if !ok {
			continue
		}
		delete(d.messages, id)
		delete(d.order, id)
		key := partitionKey{chatID: m.ChatID, yearMonth: m.YearMonth}
		if p, ok := d.partitions[key]; ok {
			p.MessageCount--
			d.partitions[key] = p
		}
	}
	return nil
}

func (r messageRepo) DeleteByChat(ctx context.Context, chatID string) (int64, error) {
	defer r.s.lock(ctx)()
	d := r.s.data
	var n int64
	for id, m := range d.messages {
		if m.ChatID == chatID {
			delete(d.messages, id)
			delete(d.order, id)
			n++
		}
	}
	return n, nil
}

func (r messageRepo) DeletePartitionsByChat(ctx context.Context, chatID string) (int64, error) {
	defer r.s.lock(ctx)()
	var n int64
	for key := range r.s.data.partitions {
		if key.chatID == chatID {
			delete(r.s.data.partitions, key)
			n++
		}
	}
	return n, nil
}

func (r messageRepo) ListPartitions(ctx context.Context, chatID string) ([]models.MessagePartition, error) {
	defer r.s.lock(ctx)()
	var out []models.MessagePartition
	for key, p := range r.s.data.partitions {
		if key.chatID == chatID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].YearMonth < out[j].YearMonth })
	return out, nil
}

func (r messageRepo) update(match func(m *models.Message) bool, fn func(m *models.Message)) int64 {
	d := r.s.data
	var n int64
	for id, m := range d.messages {
		if match(&m) {
			fn(&m)
			d.messages[id] = m
			n++
		}
	}
	return n
}

func (r messageRepo) Dismiss(ctx context.Context, id string) error {
	defer r.s.lock(ctx)()
	n := r.update(func(m *models.Message) bool { return m.ID == id }, func(m *models.Message) { m.IsDismissed = true })
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r messageRepo) ExpireByJob(ctx context.Context, jobID string, bubbleType models.BubbleType, at time.Time) (int64, error) {
	defer r.s.lock(ctx)()
	return r.update(
		func(m *models.Message) bool { return m.JobID == jobID && m.BubbleType == bubbleType && !m.IsExpired },
		func(m *models.Message) { expire(m, at) },
	), nil
}

func (r messageRepo) ExpireByBid(ctx context.Context, bidID string, at time.Time) (int64, error) {
	defer r.s.lock(ctx)()
	return r.update(
		func(m *models.Message) bool { return m.BidID == bidID && !m.IsExpired },
		func(m *models.Message) { expire(m, at) },
	), nil
}

func (r messageRepo) MarkRead(ctx context.Context, chatID, readerID string) (int64, error) {
	defer r.s.lock(ctx)()
	return r.update(
		func(m *models.Message) bool {
			return m.ChatID == chatID && m.SenderID != readerID && m.Status != models.MessageStatusRead
		},
		func(m *models.Message) { m.Status = models.MessageStatusRead },
	), nil
}

func expire(m *models.Message, at time.Time) {
	t := at
	m.IsExpired = true
	m.ExpiresAt = &t
}
