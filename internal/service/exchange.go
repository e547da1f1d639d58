package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/iliyamo/book-exchange/internal/model"
	"github.com/iliyamo/book-exchange/internal/queue"
	"github.com/iliyamo/book-exchange/internal/repository"
)

const (
	publishTimeout = time.Second
	maxMessageLen  = 2000
	maxNoteLen     = 500
)

// ExchangeService runs the request / accept / message workflow.
type ExchangeService struct {
	exchanges ExchangeStore
	books     BookStore
	events    Publisher
	log       *zap.Logger
	validate  *validator.Validate
}

// NewExchangeService wires an ExchangeService.  events may be nil, in
// which case no lifecycle events are published.
func NewExchangeService(exchanges ExchangeStore, books BookStore, events Publisher, log *zap.Logger) *ExchangeService {
	return &ExchangeService{
		exchanges: exchanges,
		books:     books,
		events:    events,
		log:       log,
		validate:  newValidator(),
	}
}

// RequestInput is the body of a new exchange request.
type RequestInput struct {
	BookID  uint64      `json:"bookId" validate:"required"`
	Terms   model.Terms `json:"terms"`
	Message string      `json:"message" validate:"max=2000"`
}

// ParseExchangeID parses an exchange id from a path segment.
func ParseExchangeID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || id == 0 {
		return 0, ErrValidation.New("invalid exchange id")
	}
	return id, nil
}

// CreateRequest opens a pending exchange for a book owned by someone else
// and marks the book pending.  Two concurrent requests for the same book
// cannot both succeed.
func (s *ExchangeService) CreateRequest(ctx context.Context, requesterID uint64, in RequestInput) (model.Exchange, error) {
	in.Message = strings.TrimSpace(in.Message)
	in.Terms.MeetingLocation = strings.TrimSpace(in.Terms.MeetingLocation)
	in.Terms.Notes = strings.TrimSpace(in.Terms.Notes)
	if err := validate(s.validate, in); err != nil {
		return model.Exchange{}, err
	}
	if !model.ValidDeliveryMethod(in.Terms.DeliveryMethod) {
		return model.Exchange{}, ErrValidation.New("deliveryMethod must be one of %s", strings.Join(model.DeliveryMethods, ", "))
	}
	if d := in.Terms.DurationDays; d < model.MinDurationDays || d > model.MaxDurationDays {
		return model.Exchange{}, ErrValidation.New("duration must be between %d and %d days", model.MinDurationDays, model.MaxDurationDays)
	}

	book, err := s.books.GetByID(ctx, in.BookID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Exchange{}, ErrNotFound.New("book not found")
	}
	if err != nil {
		return model.Exchange{}, err
	}
	if book.OwnerID == requesterID {
		return model.Exchange{}, ErrValidation.New("you cannot request your own book")
	}
	if book.Status != model.BookAvailable {
		return model.Exchange{}, ErrValidation.New("book is not available")
	}

	ex := model.Exchange{
		BookID:         book.ID,
		RequesterID:    requesterID,
		OwnerID:        book.OwnerID,
		Status:         model.StatusPending,
		Terms:          in.Terms,
		LastModifiedBy: requesterID,
	}
	if in.Message != "" {
		ex.Messages = []model.Message{{SenderID: requesterID, Content: in.Message, Notified: true}}
	}
	if err := s.exchanges.Create(ctx, &ex); err != nil {
		if errors.Is(err, repository.ErrBookUnavailable) {
			return model.Exchange{}, ErrValidation.New("book is not available")
		}
		return model.Exchange{}, err
	}

	created, err := s.load(ctx, ex.ID)
	if err != nil {
		return model.Exchange{}, err
	}
	s.publish(ctx, queue.ExchangeEvent{
		Type:        queue.EventRequestCreated,
		ExchangeID:  ex.ID,
		BookID:      book.ID,
		BookTitle:   book.Title,
		ActorID:     requesterID,
		RecipientID: book.OwnerID,
		Status:      string(ex.Status),
		Message:     in.Message,
	})
	return created, nil
}

// UpdateStatus moves an exchange along the transition table on behalf of
// actorID, appending a system message and updating the book.
func (s *ExchangeService) UpdateStatus(ctx context.Context, actorID, id uint64, status, note string) (model.Exchange, error) {
	to, ok := model.ParseExchangeStatus(strings.TrimSpace(status))
	if !ok {
		return model.Exchange{}, ErrValidation.New("invalid status %q", status)
	}
	note = strings.TrimSpace(note)
	if utf8.RuneCountInString(note) > maxNoteLen {
		return model.Exchange{}, ErrValidation.New("message must be at most %d characters", maxNoteLen)
	}
	ex, err := s.participant(ctx, actorID, id)
	if err != nil {
		return model.Exchange{}, err
	}

	next, err := model.Transition(ex.Status, ex.RoleOf(actorID), to)
	switch {
	case errors.Is(err, model.ErrTransitionForbidden):
		return model.Exchange{}, ErrForbidden.Wrap(err)
	case errors.Is(err, model.ErrInvalidTransition):
		return model.Exchange{}, ErrValidation.New("cannot change a %s request to %s", ex.Status, to)
	case err != nil:
		return model.Exchange{}, err
	}

	book, _ := model.BookStatusAfter(next)
	msg := &model.Message{
		SenderID: actorID,
		Content:  model.StatusMessage(next, note),
		System:   true,
		Notified: true,
	}
	err = s.exchanges.ApplyStatus(ctx, ex.ID, ex.Status, next, actorID, msg, book)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return model.Exchange{}, ErrNotFound.New("exchange not found")
	case errors.Is(err, repository.ErrStaleStatus):
		return model.Exchange{}, ErrValidation.New("the request was updated by the other party, reload and try again")
	case err != nil:
		return model.Exchange{}, err
	}

	updated, err := s.load(ctx, ex.ID)
	if err != nil {
		return model.Exchange{}, err
	}
	s.publish(ctx, queue.ExchangeEvent{
		Type:        queue.EventStatusChanged,
		ExchangeID:  ex.ID,
		BookID:      ex.BookID,
		BookTitle:   bookTitle(ex),
		ActorID:     actorID,
		RecipientID: ex.Counterparty(actorID),
		Status:      string(next),
		Message:     msg.Content,
	})
	return updated, nil
}

// AddMessage appends a message from either party, whatever the status.
func (s *ExchangeService) AddMessage(ctx context.Context, senderID, id uint64, content string) (model.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return model.Message{}, ErrValidation.New("message content is required")
	}
	if utf8.RuneCountInString(content) > maxMessageLen {
		return model.Message{}, ErrValidation.New("message must be at most %d characters", maxMessageLen)
	}
	ex, err := s.participant(ctx, senderID, id)
	if err != nil {
		return model.Message{}, err
	}

	msg := model.Message{ExchangeID: ex.ID, SenderID: senderID, Content: content, Notified: true}
	if err := s.exchanges.AppendMessage(ctx, &msg); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Message{}, ErrNotFound.New("exchange not found")
		}
		return model.Message{}, err
	}
	if ex.RequesterID == senderID {
		msg.SenderName = ex.RequesterName
	} else {
		msg.SenderName = ex.OwnerName
	}

	s.publish(ctx, queue.ExchangeEvent{
		Type:        queue.EventMessageAdded,
		ExchangeID:  ex.ID,
		BookID:      ex.BookID,
		BookTitle:   bookTitle(ex),
		ActorID:     senderID,
		RecipientID: ex.Counterparty(senderID),
		Status:      string(ex.Status),
		Message:     content,
	})
	return msg, nil
}

// GetDetails returns an exchange to one of its parties.  Reading marks the
// other party's messages as read.
func (s *ExchangeService) GetDetails(ctx context.Context, viewerID, id uint64) (model.Exchange, error) {
	if _, err := s.participant(ctx, viewerID, id); err != nil {
		return model.Exchange{}, err
	}
	if err := s.exchanges.MarkRead(ctx, id, viewerID); err != nil {
		return model.Exchange{}, err
	}
	return s.load(ctx, id)
}

// ListMine returns the requests userID sent.
func (s *ExchangeService) ListMine(ctx context.Context, userID uint64, status string) ([]model.Exchange, error) {
	return s.list(ctx, model.ExchangeFilter{RequesterID: userID}, status)
}

// ListReceived returns the requests made for userID's books.
func (s *ExchangeService) ListReceived(ctx context.Context, userID uint64, status string) ([]model.Exchange, error) {
	return s.list(ctx, model.ExchangeFilter{OwnerID: userID}, status)
}

// ListByUser returns the exchanges userID takes part in, in either role.
func (s *ExchangeService) ListByUser(ctx context.Context, userID uint64, status string) ([]model.Exchange, error) {
	return s.list(ctx, model.ExchangeFilter{ParticipantID: userID}, status)
}

// UnreadCount returns how many exchanges hold at least one message to
// userID that userID has not read.
func (s *ExchangeService) UnreadCount(ctx context.Context, userID uint64) (int64, error) {
	return s.exchanges.CountUnread(ctx, userID)
}

// list ignores an unknown status filter.
func (s *ExchangeService) list(ctx context.Context, f model.ExchangeFilter, status string) ([]model.Exchange, error) {
	if st, ok := model.ParseExchangeStatus(strings.TrimSpace(status)); ok {
		f.Status = st
	}
	return s.exchanges.List(ctx, f)
}

func (s *ExchangeService) participant(ctx context.Context, userID, id uint64) (model.Exchange, error) {
	ex, err := s.load(ctx, id)
	if err != nil {
		return model.Exchange{}, err
	}
	if ex.RoleOf(userID) == model.RoleNone {
		return model.Exchange{}, ErrForbidden.New("you are not part of this exchange")
	}
	return ex, nil
}

func (s *ExchangeService) load(ctx context.Context, id uint64) (model.Exchange, error) {
	ex, err := s.exchanges.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Exchange{}, ErrNotFound.New("exchange not found")
	}
	return ex, err
}

// publish is best effort: the exchange is already committed.  It gets at
// most publishTimeout and never the caller's remaining deadline.
func (s *ExchangeService) publish(ctx context.Context, ev queue.ExchangeEvent) {
	if s.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	ev.OccurredAt = time.Now().UTC()
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn("publish exchange event",
			zap.String("type", ev.Type), zap.Uint64("exchange_id", ev.ExchangeID), zap.Error(err))
	}
}

func bookTitle(ex model.Exchange) string {
	if ex.Book == nil {
		return ""
	}
	return ex.Book.Title
}
