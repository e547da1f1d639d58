package model

import "errors"

// Role is the part a user plays in an exchange.  It is derived from the
// exchange's owner and requester references, never stored.
type Role int

const (
	RoleNone Role = iota
	RoleRequester
	RoleOwner
)

func (r Role) String() string {
	switch r {
	case RoleRequester:
		return "requester"
	case RoleOwner:
		return "owner"
	}
	return "none"
}

var (
	// ErrInvalidTransition means no edge leads from the current status to
	// the requested one.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrTransitionForbidden means the edge exists but the caller's role
	// may not take it.
	ErrTransitionForbidden = errors.New("not allowed to make this status change")
)

type edge struct {
	from, to ExchangeStatus
}

// transitions maps every legal edge to the role allowed to take it and the
// status the book moves to.
var transitions = map[edge]struct {
	role Role
	book BookStatus
	text string
}{
	{StatusPending, StatusAccepted}:  {RoleOwner, BookPending, "Request accepted"},
	{StatusPending, StatusRejected}:  {RoleOwner, BookAvailable, "Request rejected"},
	{StatusPending, StatusCancelled}: {RoleRequester, BookAvailable, "Request withdrawn"},
}

// Transition validates moving an exchange from current to requested on
// behalf of a caller with role.  It returns the new status or
// ErrTransitionForbidden / ErrInvalidTransition.
func Transition(current ExchangeStatus, role Role, requested ExchangeStatus) (ExchangeStatus, error) {
	if role == RoleNone {
		return current, ErrTransitionForbidden
	}
	t, ok := transitions[edge{current, requested}]
	if !ok {
		return current, ErrInvalidTransition
	}
	if t.role != role {
		return current, ErrTransitionForbidden
	}
	return requested, nil
}

// BookStatusAfter returns the status the exchanged book takes once an
// exchange enters to.  ok is false for statuses no edge leads to.
func BookStatusAfter(to ExchangeStatus) (status BookStatus, ok bool) {
	for e, t := range transitions {
		if e.to == to {
			return t.book, true
		}
	}
	return "", false
}

// StatusMessage builds the conversation entry appended on a transition to
// to.  A caller-supplied note is appended after the fixed text.
func StatusMessage(to ExchangeStatus, note string) string {
	var text string
	for e, t := range transitions {
		if e.to == to {
			text = t.text
			break
		}
	}
	switch {
	case text == "":
		return note
	case note == "":
		return text
	}
	return text + ": " + note
}
