package queue

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/iliyamo/book-exchange/internal/mail"
	"github.com/iliyamo/book-exchange/internal/model"
	"github.com/iliyamo/book-exchange/internal/repository"
)

type usersStub map[uint64]model.User

func (s usersStub) GetByID(_ context.Context, id uint64) (model.User, error) {
	u, ok := s[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

type captureSender struct{ sent []mail.Message }

func (c *captureSender) Send(_ context.Context, m mail.Message) error {
	c.sent = append(c.sent, m)
	return nil
}

func TestHandleEmailsRecipient(t *testing.T) {
	sender := &captureSender{}
	n := &Notifier{
		Users:  usersStub{7: {ID: 7, Email: "owner@x.com", Name: "Olga"}},
		Mailer: sender,
		Log:    zaptest.NewLogger(t),
	}
	body, err := json.Marshal(ExchangeEvent{
		Type: EventRequestCreated, ExchangeID: 1, BookTitle: "Dune", ActorID: 8, RecipientID: 7,
	})
	require.NoError(t, err)

	require.NoError(t, n.Handle(context.Background(), body))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "owner@x.com", sender.sent[0].To)
	assert.Equal(t, "New exchange request", sender.sent[0].Subject)
	assert.Contains(t, sender.sent[0].HTML, "Dune")
}

func TestHandleRejectsBadEvents(t *testing.T) {
	n := &Notifier{Users: usersStub{}, Mailer: &captureSender{}, Log: zaptest.NewLogger(t)}

	assert.Error(t, n.Handle(context.Background(), []byte("{not json")))
	assert.Error(t, n.Handle(context.Background(), []byte(`{"type":"message.added"}`)))
	assert.ErrorIs(t, n.Handle(context.Background(), []byte(`{"type":"message.added","recipientId":9}`)), repository.ErrNotFound)
}
