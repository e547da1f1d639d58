// Package repository defines the MySQL-backed stores and the sentinel
// errors they share.  Services translate these into their own error kinds;
// handlers never see them directly.
package repository

import "errors"

var (
	// ErrNotFound is returned when the requested row does not exist, or is
	// not visible to the caller (owner-scoped deletes).
	ErrNotFound = errors.New("not found")

	// ErrEmailExists is returned by user creation on a duplicate email.
	ErrEmailExists = errors.New("email already exists")

	// ErrBookUnavailable is returned when an exchange request loses the
	// conditional claim on a book that is no longer available.
	ErrBookUnavailable = errors.New("book is not available")

	// ErrStaleStatus is returned when an exchange's status changed between
	// the read and the guarded update.
	ErrStaleStatus = errors.New("exchange status changed concurrently")
)
