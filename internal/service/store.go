// Package service implements the marketplace's use cases on top of the
// user, book and exchange stores.  Both repository (MySQL) and
// repository/memstore satisfy the store interfaces below.
package service

import (
	"context"
	"time"

	"github.com/iliyamo/book-exchange/internal/model"
	"github.com/iliyamo/book-exchange/internal/queue"
)

// UserStore persists accounts.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	SetResetCode(ctx context.Context, id uint64, code string, expires time.Time) error
	ClearResetCode(ctx context.Context, id uint64) error
	UpdatePassword(ctx context.Context, id uint64, hash string) error
	UpdateProfile(ctx context.Context, id uint64, p model.ProfileUpdate) error
	SetProfileImage(ctx context.Context, id uint64, path string) error
	SetPreferences(ctx context.Context, id uint64, genres []string) error
	Delete(ctx context.Context, id uint64) error
}

// BookStore persists listings.
type BookStore interface {
	Create(ctx context.Context, b *model.Book) error
	GetByID(ctx context.Context, id uint64) (model.Book, error)
	Update(ctx context.Context, b *model.Book) error
	Delete(ctx context.Context, id, ownerID uint64) error
	ListByOwner(ctx context.Context, ownerID uint64) ([]model.Book, error)
	CountByOwner(ctx context.Context, ownerID uint64, status model.BookStatus) (int64, error)
	Search(ctx context.Context, q model.BookQuery) ([]model.Book, int64, error)
}

// ExchangeStore persists exchanges and their messages.  Create claims the
// book and ApplyStatus guards on the previous status; both are atomic.
type ExchangeStore interface {
	Create(ctx context.Context, ex *model.Exchange) error
	GetByID(ctx context.Context, id uint64) (model.Exchange, error)
	ApplyStatus(ctx context.Context, id uint64, from, to model.ExchangeStatus, actor uint64, msg *model.Message, book model.BookStatus) error
	AppendMessage(ctx context.Context, msg *model.Message) error
	MarkRead(ctx context.Context, exchangeID, readerID uint64) error
	List(ctx context.Context, f model.ExchangeFilter) ([]model.Exchange, error)
	Count(ctx context.Context, f model.ExchangeFilter) (int64, error)
	CountUnread(ctx context.Context, userID uint64) (int64, error)
}

// Publisher receives exchange lifecycle events.  queue.Publisher is the
// RabbitMQ implementation.
type Publisher interface {
	Publish(ctx context.Context, ev queue.ExchangeEvent) error
}
