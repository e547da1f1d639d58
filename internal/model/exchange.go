package model

import "time"

// ExchangeStatus is the state of an exchange request.
type ExchangeStatus string

const (
	StatusPending   ExchangeStatus = "pending"
	StatusAccepted  ExchangeStatus = "accepted"
	StatusRejected  ExchangeStatus = "rejected"
	StatusCancelled ExchangeStatus = "cancelled"
	StatusCompleted ExchangeStatus = "completed"
)

// ParseExchangeStatus converts s to an ExchangeStatus.
func ParseExchangeStatus(s string) (ExchangeStatus, bool) {
	switch st := ExchangeStatus(s); st {
	case StatusPending, StatusAccepted, StatusRejected, StatusCancelled, StatusCompleted:
		return st, true
	}
	return "", false
}

// Terminal reports whether no further transition leaves s.
func (s ExchangeStatus) Terminal() bool {
	return s == StatusRejected || s == StatusCancelled || s == StatusCompleted
}

// Delivery methods accepted in Terms.
var DeliveryMethods = []string{"in-person", "mail", "courier"}

// ValidDeliveryMethod reports whether s is one of DeliveryMethods.
func ValidDeliveryMethod(s string) bool { return contains(DeliveryMethods, s) }

// Bounds of Terms.DurationDays.
const (
	MinDurationDays = 1
	MaxDurationDays = 90
)

// Terms are the conditions a requester proposes with a request.
type Terms struct {
	DeliveryMethod  string `json:"deliveryMethod"`
	DurationDays    int    `json:"duration"`
	MeetingLocation string `json:"meetingLocation,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

// Message is one entry of an exchange's conversation.  System is set on
// the messages appended by status changes.
type Message struct {
	ID         uint64    `json:"id"`
	ExchangeID uint64    `json:"-"`
	SenderID   uint64    `json:"senderId"`
	SenderName string    `json:"senderName,omitempty"`
	Content    string    `json:"content"`
	System     bool      `json:"system"`
	Read       bool      `json:"read"`
	Notified   bool      `json:"notified"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Exchange is the negotiation record between a book owner and a requester
// (called a transaction on the wire).
type Exchange struct {
	ID             uint64         `json:"id"`
	BookID         uint64         `json:"bookId"`
	RequesterID    uint64         `json:"requesterId"`
	OwnerID        uint64         `json:"ownerId"`
	Status         ExchangeStatus `json:"status"`
	Terms          Terms          `json:"terms"`
	LastModifiedBy uint64         `json:"lastModifiedBy"`
	Messages       []Message      `json:"messages"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`

	// Populated on reads for display.
	Book          *BookSummary `json:"book,omitempty"`
	RequesterName string       `json:"requesterName,omitempty"`
	OwnerName     string       `json:"ownerName,omitempty"`
}

// BookSummary is the slice of a book shown next to an exchange.  It is nil
// when the book has since been deleted.
type BookSummary struct {
	ID     uint64     `json:"id"`
	Title  string     `json:"title"`
	Author string     `json:"author"`
	Status BookStatus `json:"status"`
}

// RoleOf returns the role userID plays in e.
func (e Exchange) RoleOf(userID uint64) Role {
	switch userID {
	case e.OwnerID:
		return RoleOwner
	case e.RequesterID:
		return RoleRequester
	}
	return RoleNone
}

// Counterparty returns the participant that is not userID.
func (e Exchange) Counterparty(userID uint64) uint64 {
	if userID == e.OwnerID {
		return e.RequesterID
	}
	return e.OwnerID
}

// ExchangeFilter selects exchanges for the list endpoints.  RequesterID and
// OwnerID are combined with AND, ParticipantID matches either role.  Zero
// values are ignored.
type ExchangeFilter struct {
	RequesterID   uint64
	OwnerID       uint64
	ParticipantID uint64
	Status        ExchangeStatus
}
