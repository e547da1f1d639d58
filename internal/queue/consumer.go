package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/book-exchange/internal/mail"
	"github.com/iliyamo/book-exchange/internal/model"
)

// UserLookup resolves the recipient of a notification.
type UserLookup interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// Notifier turns exchange events into emails to the recipient.
type Notifier struct {
	Users  UserLookup
	Mailer mail.Sender
	Log    *zap.Logger
}

// Run connects to the broker at url and consumes ExchangeQueue until ctx is
// cancelled, reconnecting with exponential backoff (capped at 30s) when the
// connection drops.
func (n *Notifier) Run(ctx context.Context, url string) error {
	backoff := time.Second
	for {
		conn, err := dial(ctx, url, defaultDialTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			n.Log.Warn("notifier: failed to dial broker", zap.Error(err), zap.Duration("retry_in", backoff))
			if err := sleep(ctx, backoff); err != nil {
				return err
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = n.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n.Log.Warn("notifier: consume loop ended; reconnecting", zap.Error(err))
		if err := sleep(ctx, 2*time.Second); err != nil {
			return err
		}
	}
}

func (n *Notifier) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		n.Log.Warn("notifier: set QoS failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(ExchangeQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(ExchangeQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := n.Handle(ctx, d.Body); err != nil {
				n.Log.Warn("notifier: handle message failed", zap.Error(err))
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Handle decodes one event body and emails its recipient.
func (n *Notifier) Handle(ctx context.Context, body []byte) error {
	var ev ExchangeEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.RecipientID == 0 {
		return errors.New("event has no recipient")
	}
	u, err := n.Users.GetByID(ctx, ev.RecipientID)
	if err != nil {
		return fmt.Errorf("load recipient %d: %w", ev.RecipientID, err)
	}
	subject, text := describe(ev)
	msg, err := mail.ExchangeNotice(u.Email, u.Name, subject, text, ev.BookTitle)
	if err != nil {
		return err
	}
	return n.Mailer.Send(ctx, msg)
}

func describe(ev ExchangeEvent) (subject, text string) {
	switch ev.Type {
	case EventRequestCreated:
		return "New exchange request", "Someone would like to exchange one of your books."
	case EventStatusChanged:
		return "Exchange request " + ev.Status, "Your exchange request is now " + ev.Status + "."
	case EventMessageAdded:
		return "New message about your exchange", ev.Message
	}
	return "Exchange update", "There is an update on one of your exchanges."
}
