package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const publishBuffer = 256

// ErrPublisherBusy is returned by Publish when the outgoing buffer is full.
var ErrPublisherBusy = errors.New("event buffer is full")

// Publisher sends ExchangeEvents to ExchangeQueue.  Publish only enqueues;
// Run owns one long-lived connection and drains the buffer in the
// background, so a slow or unreachable broker never holds up a request.
type Publisher struct {
	url         string
	log         *zap.Logger
	events      chan ExchangeEvent
	dialTimeout time.Duration
}

// NewPublisher returns a publisher for the broker at url.  Nothing is sent
// until Run is started.
func NewPublisher(url string, log *zap.Logger) *Publisher {
	return newPublisher(url, log, publishBuffer)
}

func newPublisher(url string, log *zap.Logger, size int) *Publisher {
	return &Publisher{
		url:         url,
		log:         log,
		events:      make(chan ExchangeEvent, size),
		dialTimeout: defaultDialTimeout,
	}
}

// Publish queues ev for delivery.  It never blocks.
func (p *Publisher) Publish(ctx context.Context, ev ExchangeEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case p.events <- ev:
		return nil
	default:
		return ErrPublisherBusy
	}
}

// Run delivers queued events until ctx is cancelled, reconnecting with
// exponential backoff (capped at 30s) when the connection drops.  Events
// still buffered at shutdown are dropped.
func (p *Publisher) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := dial(ctx, p.url, p.dialTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.log.Warn("rabbitmq: dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if err := sleep(ctx, backoff); err != nil {
				return err
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = p.drain(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.log.Warn("rabbitmq: publish loop ended; reconnecting", zap.Error(err))
		if err := sleep(ctx, 2*time.Second); err != nil {
			return err
		}
	}
}

func (p *Publisher) drain(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(ExchangeQueue, true, false, false, false, nil); err != nil {
		return err
	}
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case aerr := <-closed:
			if aerr == nil {
				return errors.New("connection closed")
			}
			return aerr
		case ev := <-p.events:
			if err := p.send(ctx, ch, ev); err != nil {
				p.log.Warn("rabbitmq: publish failed", zap.Error(err), zap.String("type", ev.Type))
				return err
			}
		}
	}
}

func (p *Publisher) send(ctx context.Context, ch *amqp.Channel, ev ExchangeEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	sctx, cancel := context.WithTimeout(ctx, p.dialTimeout)
	defer cancel()
	return ch.PublishWithContext(sctx, "", ExchangeQueue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         ev.Type,
		Body:         body,
	})
}
