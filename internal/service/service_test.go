package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/book-exchange/internal/mail"
	"github.com/iliyamo/book-exchange/internal/model"
	"github.com/iliyamo/book-exchange/internal/queue"
	"github.com/iliyamo/book-exchange/internal/repository/memstore"
	"github.com/iliyamo/book-exchange/internal/storage"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []queue.ExchangeEvent
	err    error
	stall  bool // wait for ctx like an unresponsive broker
}

func (p *fakePublisher) Publish(ctx context.Context, ev queue.ExchangeEvent) error {
	if p.stall {
		<-ctx.Done()
		return ctx.Err()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

// fakeImages accepts anything starting with "PNG" and rejects the rest.
type fakeImages struct {
	n       int
	removed []string
}

func (f *fakeImages) Save(_ context.Context, r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if !bytes.HasPrefix(b, []byte("PNG")) {
		return "", storage.ErrUnsupportedType
	}
	f.n++
	return fmt.Sprintf("profiles/%d.png", f.n), nil
}

func (f *fakeImages) Remove(path string) error {
	f.removed = append(f.removed, path)
	return nil
}

type fixture struct {
	store    *memstore.Store
	mailer   *fakeMailer
	events   *fakePublisher
	images   *fakeImages
	auth     *AuthService
	catalog  *CatalogService
	exchange *ExchangeService
	profile  *ProfileService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zaptest.NewLogger(t)
	st := memstore.New()
	f := &fixture{store: st, mailer: &fakeMailer{}, events: &fakePublisher{}, images: &fakeImages{}}
	cfg := AuthConfig{JWTSecret: "test-secret", TokenTTL: time.Hour, BcryptCost: bcrypt.MinCost}
	f.auth = NewAuthService(st.Users(), f.mailer, cfg, log)
	f.catalog = NewCatalogService(st.Books(), st.Users(), log)
	f.exchange = NewExchangeService(st.Exchanges(), st.Books(), f.events, log)
	f.profile = NewProfileService(st.Users(), st.Books(), st.Exchanges(), f.images, log)
	return f
}

func (f *fixture) register(t *testing.T, email string) model.User {
	t.Helper()
	s, err := f.auth.Register(context.Background(), RegisterInput{
		Name:            email[:1],
		Email:           email,
		Password:        "secret1",
		SecurityAnswers: []string{"Paris", "Rex", "Blue"},
	})
	require.NoError(t, err)
	return s.User
}

func (f *fixture) book(t *testing.T, ownerID uint64, title, genre string) model.Book {
	t.Helper()
	b, err := f.catalog.Create(context.Background(), ownerID, BookInput{
		Title: title, Author: "Someone", Genre: genre, Condition: "Good", Location: "Pune",
	})
	require.NoError(t, err)
	return b
}

func (f *fixture) request(t *testing.T, requesterID, bookID uint64) model.Exchange {
	t.Helper()
	ex, err := f.exchange.CreateRequest(context.Background(), requesterID, RequestInput{
		BookID: bookID,
		Terms:  model.Terms{DeliveryMethod: "mail", DurationDays: 5},
	})
	require.NoError(t, err)
	return ex
}

func (f *fixture) bookStatus(t *testing.T, id uint64) model.BookStatus {
	t.Helper()
	b, err := f.catalog.Get(context.Background(), id)
	require.NoError(t, err)
	return b.Status
}

func requireClass(t *testing.T, cls interface{ Has(error) bool }, err error) {
	t.Helper()
	require.Error(t, err)
	require.True(t, cls.Has(err), "unexpected error class: %v", err)
}

var errBoom = errors.New("boom")
