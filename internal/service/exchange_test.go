package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/iliyamo/book-exchange/internal/model"
	"github.com/iliyamo/book-exchange/internal/queue"
)

func TestCreateRequestRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "a@x.com")
	b := f.register(t, "b@x.com")
	c := f.register(t, "c@x.com")
	book := f.book(t, a.ID, "Dune", "SciFi")
	terms := model.Terms{DeliveryMethod: "mail", DurationDays: 5}

	_, err := f.exchange.CreateRequest(ctx, a.ID, RequestInput{BookID: book.ID, Terms: terms})
	requireClass(t, &ErrValidation, err)
	assert.Equal(t, "you cannot request your own book", Message(err))

	_, err = f.exchange.CreateRequest(ctx, b.ID, RequestInput{BookID: 999, Terms: terms})
	requireClass(t, &ErrNotFound, err)

	_, err = f.exchange.CreateRequest(ctx, b.ID, RequestInput{BookID: book.ID, Terms: model.Terms{DeliveryMethod: "pigeon", DurationDays: 5}})
	requireClass(t, &ErrValidation, err)
	_, err = f.exchange.CreateRequest(ctx, b.ID, RequestInput{BookID: book.ID, Terms: model.Terms{DeliveryMethod: "mail", DurationDays: 0}})
	requireClass(t, &ErrValidation, err)

	ex, err := f.exchange.CreateRequest(ctx, b.ID, RequestInput{BookID: book.ID, Terms: terms, Message: "Hi!"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, ex.Status)
	assert.Equal(t, a.ID, ex.OwnerID)
	assert.Equal(t, b.ID, ex.LastModifiedBy)
	require.Len(t, ex.Messages, 1)
	assert.Equal(t, "Hi!", ex.Messages[0].Content)
	assert.Equal(t, model.BookPending, f.bookStatus(t, book.ID))

	// A pending book cannot be requested by anyone, the owner included.
	for _, u := range []uint64{b.ID, c.ID} {
		_, err = f.exchange.CreateRequest(ctx, u, RequestInput{BookID: book.ID, Terms: terms})
		requireClass(t, &ErrValidation, err)
	}
	_, err = f.exchange.CreateRequest(ctx, a.ID, RequestInput{BookID: book.ID, Terms: terms})
	requireClass(t, &ErrValidation, err)

	assert.Equal(t, []string{queue.EventRequestCreated}, f.events.types())
	assert.Equal(t, a.ID, f.events.events[0].RecipientID)
	assert.Equal(t, "Dune", f.events.events[0].BookTitle)
}

func TestConcurrentRequestsClaimBookOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.register(t, "owner@x.com")
	book := f.book(t, owner.ID, "Dune", "SciFi")

	var requesters []uint64
	for i := 0; i < 10; i++ {
		requesters = append(requesters, f.register(t, fmt.Sprintf("r%d@x.com", i)).ID)
	}

	var wg sync.WaitGroup
	var won atomic.Int32
	for _, id := range requesters {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			_, err := f.exchange.CreateRequest(ctx, id, RequestInput{
				BookID: book.ID, Terms: model.Terms{DeliveryMethod: "mail", DurationDays: 5},
			})
			if err == nil {
				won.Add(1)
			} else {
				assert.True(t, ErrValidation.Has(err), "unexpected error: %v", err)
			}
		}(id)
	}
	wg.Wait()

	assert.EqualValues(t, 1, won.Load())
	n, err := f.store.Exchanges().Count(ctx, model.ExchangeFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestStatusTransitionRoles(t *testing.T) {
	targets := []model.ExchangeStatus{
		model.StatusPending, model.StatusAccepted, model.StatusRejected,
		model.StatusCancelled, model.StatusCompleted,
	}
	for _, actor := range []string{"owner", "requester", "stranger"} {
		for _, to := range targets {
			t.Run(actor+"->"+string(to), func(t *testing.T) {
				f := newFixture(t)
				a := f.register(t, "a@x.com")
				b := f.register(t, "b@x.com")
				c := f.register(t, "c@x.com")
				book := f.book(t, a.ID, "Dune", "SciFi")
				ex := f.request(t, b.ID, book.ID)

				ids := map[string]uint64{"owner": a.ID, "requester": b.ID, "stranger": c.ID}
				_, err := f.exchange.UpdateStatus(context.Background(), ids[actor], ex.ID, string(to), "")

				ok := (actor == "owner" && (to == model.StatusAccepted || to == model.StatusRejected)) ||
					(actor == "requester" && to == model.StatusCancelled)
				if ok {
					require.NoError(t, err)
					return
				}
				require.Error(t, err)
				assert.True(t, ErrForbidden.Has(err) || ErrValidation.Has(err), "unexpected error: %v", err)
				if actor == "stranger" {
					assert.True(t, ErrForbidden.Has(err))
				}
				got, err := f.store.Exchanges().GetByID(context.Background(), ex.ID)
				require.NoError(t, err)
				assert.Equal(t, model.StatusPending, got.Status)
			})
		}
	}
}

func TestStatusChangeBookSideEffects(t *testing.T) {
	cases := []struct {
		to     model.ExchangeStatus
		actor  string
		book   model.BookStatus
		system string
	}{
		{model.StatusAccepted, "owner", model.BookPending, "Request accepted"},
		{model.StatusRejected, "owner", model.BookAvailable, "Request rejected"},
		{model.StatusCancelled, "requester", model.BookAvailable, "Request withdrawn"},
	}
	for _, tc := range cases {
		t.Run(string(tc.to), func(t *testing.T) {
			f := newFixture(t)
			a := f.register(t, "a@x.com")
			b := f.register(t, "b@x.com")
			book := f.book(t, a.ID, "Dune", "SciFi")
			ex := f.request(t, b.ID, book.ID)
			actor := map[string]uint64{"owner": a.ID, "requester": b.ID}[tc.actor]

			got, err := f.exchange.UpdateStatus(context.Background(), actor, ex.ID, string(tc.to), "")
			require.NoError(t, err)
			assert.Equal(t, tc.to, got.Status)
			assert.Equal(t, actor, got.LastModifiedBy)
			assert.Equal(t, tc.book, f.bookStatus(t, book.ID))

			last := got.Messages[len(got.Messages)-1]
			assert.Equal(t, tc.system, last.Content)
			assert.True(t, last.System)
			assert.Equal(t, actor, last.SenderID)
		})
	}
}

func TestStatusMessageIsConcatenatedWithNote(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "a@x.com")
	b := f.register(t, "b@x.com")
	book := f.book(t, a.ID, "Dune", "SciFi")
	ex := f.request(t, b.ID, book.ID)

	got, err := f.exchange.UpdateStatus(context.Background(), a.ID, ex.ID, "accepted", " see you Sunday ")
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "Request accepted: see you Sunday", got.Messages[0].Content)
}

func TestAcceptedExchangeCannotComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "a@x.com")
	b := f.register(t, "b@x.com")
	book := f.book(t, a.ID, "Dune", "SciFi")
	ex := f.request(t, b.ID, book.ID)
	_, err := f.exchange.UpdateStatus(ctx, a.ID, ex.ID, "accepted", "")
	require.NoError(t, err)

	_, err = f.exchange.UpdateStatus(ctx, a.ID, ex.ID, "completed", "")
	requireClass(t, &ErrValidation, err)
	_, err = f.exchange.UpdateStatus(ctx, b.ID, ex.ID, "cancelled", "")
	requireClass(t, &ErrValidation, err)
	assert.Equal(t, model.BookPending, f.bookStatus(t, book.ID))
}

func TestUpdateStatusErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "a@x.com")
	b := f.register(t, "b@x.com")
	book := f.book(t, a.ID, "Dune", "SciFi")
	ex := f.request(t, b.ID, book.ID)

	_, err := f.exchange.UpdateStatus(ctx, a.ID, 999, "accepted", "")
	requireClass(t, &ErrNotFound, err)
	_, err = f.exchange.UpdateStatus(ctx, a.ID, ex.ID, "shipped", "")
	requireClass(t, &ErrValidation, err)

	_, err = ParseExchangeID("abc")
	requireClass(t, &ErrValidation, err)
	id, err := ParseExchangeID(fmt.Sprint(ex.ID))
	require.NoError(t, err)
	assert.Equal(t, ex.ID, id)
}

func TestStatusChangeWithDeletedBook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "a@x.com")
	b := f.register(t, "b@x.com")
	book := f.book(t, a.ID, "Dune", "SciFi")
	ex := f.request(t, b.ID, book.ID)
	require.NoError(t, f.catalog.Delete(ctx, a.ID, book.ID))

	got, err := f.exchange.UpdateStatus(ctx, b.ID, ex.ID, "cancelled", "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)
	assert.Nil(t, got.Book)
}

func TestAddMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "a@x.com")
	b := f.register(t, "b@x.com")
	c := f.register(t, "c@x.com")
	book := f.book(t, a.ID, "Dune", "SciFi")
	ex := f.request(t, b.ID, book.ID)

	msg, err := f.exchange.AddMessage(ctx, b.ID, ex.ID, "Is this still available?")
	require.NoError(t, err)
	assert.Equal(t, b.ID, msg.SenderID)
	assert.True(t, msg.Notified)
	assert.False(t, msg.Read)

	got, err := f.store.Exchanges().GetByID(ctx, ex.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "Is this still available?", got.Messages[0].Content)
	assert.Equal(t, b.ID, got.Messages[0].SenderID)

	_, err = f.exchange.AddMessage(ctx, c.ID, ex.ID, "hello")
	requireClass(t, &ErrForbidden, err)
	_, err = f.exchange.AddMessage(ctx, b.ID, ex.ID, "   ")
	requireClass(t, &ErrValidation, err)

	// Messages are allowed after the exchange is closed.
	_, err = f.exchange.UpdateStatus(ctx, a.ID, ex.ID, "rejected", "")
	require.NoError(t, err)
	_, err = f.exchange.AddMessage(ctx, b.ID, ex.ID, "Too bad")
	require.NoError(t, err)
}

func TestGetDetailsMarksOtherPartyMessagesRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "a@x.com")
	b := f.register(t, "b@x.com")
	c := f.register(t, "c@x.com")
	book := f.book(t, a.ID, "Dune", "SciFi")
	ex := f.request(t, b.ID, book.ID)
	_, err := f.exchange.AddMessage(ctx, b.ID, ex.ID, "from B")
	require.NoError(t, err)
	_, err = f.exchange.AddMessage(ctx, a.ID, ex.ID, "from A")
	require.NoError(t, err)

	_, err = f.exchange.GetDetails(ctx, c.ID, ex.ID)
	requireClass(t, &ErrForbidden, err)

	got, err := f.exchange.GetDetails(ctx, a.ID, ex.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	for _, m := range got.Messages {
		if m.SenderID == b.ID {
			assert.True(t, m.Read, "B's message should be read")
		} else {
			assert.False(t, m.Read, "A's own message must stay unread")
		}
	}
	assert.Equal(t, "a", got.OwnerName)
	assert.Equal(t, "b", got.RequesterName)
	require.NotNil(t, got.Book)
	assert.Equal(t, "Dune", got.Book.Title)
}

func TestUnreadCountCountsExchanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "a@x.com")
	b := f.register(t, "b@x.com")
	one := f.request(t, b.ID, f.book(t, a.ID, "Dune", "SciFi").ID)
	two := f.request(t, b.ID, f.book(t, a.ID, "Emma", "Romance").ID)
	for _, text := range []string{"one", "two", "three"} {
		_, err := f.exchange.AddMessage(ctx, b.ID, one.ID, text)
		require.NoError(t, err)
	}
	_, err := f.exchange.AddMessage(ctx, b.ID, two.ID, "hi")
	require.NoError(t, err)

	n, err := f.exchange.UnreadCount(ctx, a.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = f.exchange.UnreadCount(ctx, b.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	_, err = f.exchange.GetDetails(ctx, a.ID, one.ID)
	require.NoError(t, err)
	n, err = f.exchange.UnreadCount(ctx, a.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestListVariants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "a@x.com")
	b := f.register(t, "b@x.com")
	sent := f.request(t, b.ID, f.book(t, a.ID, "Dune", "SciFi").ID)
	received := f.request(t, a.ID, f.book(t, b.ID, "Emma", "Romance").ID)
	_, err := f.exchange.UpdateStatus(ctx, a.ID, sent.ID, "accepted", "")
	require.NoError(t, err)

	mine, err := f.exchange.ListMine(ctx, b.ID, "")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, sent.ID, mine[0].ID)

	recv, err := f.exchange.ListReceived(ctx, b.ID, "")
	require.NoError(t, err)
	require.Len(t, recv, 1)
	assert.Equal(t, received.ID, recv[0].ID)

	all, err := f.exchange.ListByUser(ctx, b.ID, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	accepted, err := f.exchange.ListByUser(ctx, b.ID, "accepted")
	require.NoError(t, err)
	require.Len(t, accepted, 1)
	assert.Equal(t, sent.ID, accepted[0].ID)

	ignored, err := f.exchange.ListByUser(ctx, b.ID, "bogus")
	require.NoError(t, err)
	assert.Len(t, ignored, 2)
}

func TestPublishFailureDoesNotFailRequest(t *testing.T) {
	f := newFixture(t)
	f.events.err = errBoom
	a := f.register(t, "a@x.com")
	b := f.register(t, "b@x.com")
	f.request(t, b.ID, f.book(t, a.ID, "Dune", "SciFi").ID)
}

// deadlineExchanges fails reads once the caller's context is done, as the
// MySQL store does.
type deadlineExchanges struct{ ExchangeStore }

func (d deadlineExchanges) GetByID(ctx context.Context, id uint64) (model.Exchange, error) {
	if err := ctx.Err(); err != nil {
		return model.Exchange{}, err
	}
	return d.ExchangeStore.GetByID(ctx, id)
}

func TestStalledBrokerDoesNotFailCommittedWrites(t *testing.T) {
	f := newFixture(t)
	f.events.stall = true
	svc := NewExchangeService(deadlineExchanges{f.store.Exchanges()}, f.store.Books(), f.events, zaptest.NewLogger(t))
	a := f.register(t, "a@x.com")
	b := f.register(t, "b@x.com")
	book := f.book(t, a.ID, "Dune", "SciFi")

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	start := time.Now()
	ex, err := svc.CreateRequest(ctx, b.ID, RequestInput{
		BookID: book.ID,
		Terms:  model.Terms{DeliveryMethod: "mail", DurationDays: 5},
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, ex.Status)
	assert.Less(t, time.Since(start), publishTimeout+time.Second)
	assert.Equal(t, model.BookPending, f.bookStatus(t, book.ID))

	ctx2, cancel2 := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel2()
	got, err := svc.UpdateStatus(ctx2, a.ID, ex.ID, "accepted", "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAccepted, got.Status)
}

func TestMessageLengthCountsCharacters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "a@x.com")
	b := f.register(t, "b@x.com")
	book := f.book(t, a.ID, "Dune", "SciFi")

	// 1000 Devanagari characters are 3000 bytes.
	hindi := strings.Repeat("क", 1000)
	ex, err := f.exchange.CreateRequest(ctx, b.ID, RequestInput{
		BookID:  book.ID,
		Terms:   model.Terms{DeliveryMethod: "mail", DurationDays: 5},
		Message: hindi,
	})
	require.NoError(t, err)
	_, err = f.exchange.AddMessage(ctx, b.ID, ex.ID, hindi)
	require.NoError(t, err)
	_, err = f.exchange.AddMessage(ctx, b.ID, ex.ID, strings.Repeat("क", maxMessageLen+1))
	requireClass(t, &ErrValidation, err)

	_, err = f.exchange.UpdateStatus(ctx, a.ID, ex.ID, "accepted", strings.Repeat("n", maxNoteLen+1))
	requireClass(t, &ErrValidation, err)
	got, err := f.exchange.UpdateStatus(ctx, a.ID, ex.ID, "accepted", strings.Repeat("क", maxNoteLen))
	require.NoError(t, err)
	assert.Equal(t, model.StatusAccepted, got.Status)
}

func TestDuneScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.register(t, "a@x.com")
	sa, err := f.auth.Login(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
	dune := f.book(t, sa.User.ID, "Dune", "SciFi")

	f.register(t, "b@x.com")
	sb, err := f.auth.Login(ctx, "b@x.com", "secret1")
	require.NoError(t, err)

	ex, err := f.exchange.CreateRequest(ctx, sb.User.ID, RequestInput{
		BookID: dune.ID, Terms: model.Terms{DeliveryMethod: "mail", DurationDays: 5},
	})
	require.NoError(t, err)
	assert.Equal(t, model.BookPending, f.bookStatus(t, dune.ID))

	_, err = f.exchange.AddMessage(ctx, sb.User.ID, ex.ID, "Is this still available?")
	require.NoError(t, err)

	got, err := f.exchange.UpdateStatus(ctx, sa.User.ID, ex.ID, "accepted", "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAccepted, got.Status)
	assert.Equal(t, model.BookPending, f.bookStatus(t, dune.ID))
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "Request accepted", got.Messages[1].Content)
	assert.True(t, got.Messages[1].System)

	assert.Equal(t, []string{queue.EventRequestCreated, queue.EventMessageAdded, queue.EventStatusChanged}, f.events.types())
}
