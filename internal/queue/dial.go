package queue

import (
	"context"
	"net"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const defaultDialTimeout = 10 * time.Second

// dial connects to the broker.  The TCP dial and the AMQP handshake are
// bounded by timeout, and the socket is closed as soon as ctx is done, so a
// broker that accepts but never answers cannot hold up shutdown.
func dial(ctx context.Context, url string, timeout time.Duration) (*amqp.Connection, error) {
	var (
		raw  net.Conn
		stop func() bool
	)
	cfg := amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial: func(network, addr string) (net.Conn, error) {
			dctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			var d net.Dialer
			conn, err := d.DialContext(dctx, network, addr)
			if err != nil {
				return nil, err
			}
			// Cleared by the client once the handshake completes.
			if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
				_ = conn.Close()
				return nil, err
			}
			raw = conn
			stop = context.AfterFunc(ctx, func() { _ = conn.Close() })
			return conn, nil
		},
	}
	conn, err := amqp.DialConfig(url, cfg)
	if err != nil {
		if stop != nil {
			stop()
			_ = raw.Close()
		}
		return nil, err
	}
	go func() {
		<-conn.NotifyClose(make(chan *amqp.Error, 1))
		if stop != nil {
			stop()
		}
	}()
	return conn, nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
