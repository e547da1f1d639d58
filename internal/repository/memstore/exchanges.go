package memstore

import (
	"context"
	"sort"

	"github.com/iliyamo/book-exchange/internal/model"
	"github.com/iliyamo/book-exchange/internal/repository"
)

// Exchanges implements the exchange store over a Store.
type Exchanges struct{ s *Store }

func (r *Exchanges) Create(_ context.Context, ex *model.Exchange) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.books[ex.BookID]
	if !ok || b.Status != model.BookAvailable {
		return repository.ErrBookUnavailable
	}
	now := r.s.now()
	b.Status, b.UpdatedAt = model.BookPending, now
	ex.ID = r.s.id()
	ex.CreatedAt, ex.UpdatedAt = now, now
	for i := range ex.Messages {
		r.stamp(&ex.Messages[i], ex.ID)
	}
	c := copyExchange(*ex)
	c.Book, c.RequesterName, c.OwnerName = nil, "", ""
	r.s.exchanges[ex.ID] = &c
	return nil
}

func (r *Exchanges) GetByID(_ context.Context, id uint64) (model.Exchange, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ex, ok := r.s.exchanges[id]
	if !ok {
		return model.Exchange{}, repository.ErrNotFound
	}
	return r.view(ex), nil
}

func (r *Exchanges) ApplyStatus(_ context.Context, id uint64, from, to model.ExchangeStatus, actor uint64, msg *model.Message, book model.BookStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ex, ok := r.s.exchanges[id]
	if !ok {
		return repository.ErrNotFound
	}
	if ex.Status != from {
		return repository.ErrStaleStatus
	}
	now := r.s.now()
	ex.Status, ex.LastModifiedBy, ex.UpdatedAt = to, actor, now
	if msg != nil {
		r.stamp(msg, id)
		ex.Messages = append(ex.Messages, *msg)
	}
	if b, ok := r.s.books[ex.BookID]; ok && book != "" {
		b.Status, b.UpdatedAt = book, now
	}
	return nil
}

func (r *Exchanges) AppendMessage(_ context.Context, msg *model.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ex, ok := r.s.exchanges[msg.ExchangeID]
	if !ok {
		return repository.ErrNotFound
	}
	r.stamp(msg, ex.ID)
	ex.Messages = append(ex.Messages, *msg)
	ex.UpdatedAt = r.s.now()
	return nil
}

func (r *Exchanges) MarkRead(_ context.Context, exchangeID, readerID uint64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ex, ok := r.s.exchanges[exchangeID]
	if !ok {
		return nil
	}
	for i := range ex.Messages {
		if ex.Messages[i].SenderID != readerID {
			ex.Messages[i].Read = true
		}
	}
	return nil
}

func (r *Exchanges) List(_ context.Context, f model.ExchangeFilter) ([]model.Exchange, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.Exchange{}
	for _, ex := range r.s.exchanges {
		if matches(ex, f) {
			out = append(out, r.view(ex))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r *Exchanges) Count(_ context.Context, f model.ExchangeFilter) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, ex := range r.s.exchanges {
		if matches(ex, f) {
			n++
		}
	}
	return n, nil
}

func (r *Exchanges) CountUnread(_ context.Context, userID uint64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, ex := range r.s.exchanges {
		if ex.RequesterID != userID && ex.OwnerID != userID {
			continue
		}
		for _, m := range ex.Messages {
			if !m.Read && m.SenderID != userID {
				n++
				break
			}
		}
	}
	return n, nil
}

func (r *Exchanges) stamp(m *model.Message, exchangeID uint64) {
	m.ID = r.s.id()
	m.ExchangeID = exchangeID
	if m.CreatedAt.IsZero() {
		m.CreatedAt = r.s.now()
	}
}

func (r *Exchanges) view(ex *model.Exchange) model.Exchange {
	c := copyExchange(*ex)
	for i := range c.Messages {
		c.Messages[i].SenderName = r.s.name(c.Messages[i].SenderID)
	}
	if b, ok := r.s.books[ex.BookID]; ok {
		c.Book = &model.BookSummary{ID: b.ID, Title: b.Title, Author: b.Author, Status: b.Status}
	}
	c.RequesterName = r.s.name(ex.RequesterID)
	c.OwnerName = r.s.name(ex.OwnerID)
	return c
}

func matches(ex *model.Exchange, f model.ExchangeFilter) bool {
	if f.RequesterID != 0 && ex.RequesterID != f.RequesterID {
		return false
	}
	if f.OwnerID != 0 && ex.OwnerID != f.OwnerID {
		return false
	}
	if f.ParticipantID != 0 && ex.RequesterID != f.ParticipantID && ex.OwnerID != f.ParticipantID {
		return false
	}
	return f.Status == "" || ex.Status == f.Status
}

func copyExchange(ex model.Exchange) model.Exchange {
	ex.Messages = append([]model.Message{}, ex.Messages...)
	return ex
}
