// Package queue carries exchange lifecycle events over RabbitMQ.
package queue

import "time"

// ExchangeQueue is the durable queue exchange events are published to.
const ExchangeQueue = "exchange.events"

// Event types.
const (
	EventRequestCreated = "request.created"
	EventStatusChanged  = "status.changed"
	EventMessageAdded   = "message.added"
)

// ExchangeEvent is published after an exchange request is created, changes
// status or receives a message.  It carries enough for the notification
// consumer to email the recipient without reloading the exchange.
type ExchangeEvent struct {
	Type        string    `json:"type"`
	ExchangeID  uint64    `json:"exchangeId"`
	BookID      uint64    `json:"bookId"`
	BookTitle   string    `json:"bookTitle"`
	ActorID     uint64    `json:"actorId"`
	RecipientID uint64    `json:"recipientId"`
	Status      string    `json:"status"`
	Message     string    `json:"message,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
}
